// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/llm"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/runner"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/shared/logger"
)

// maxRequestBody caps the kickoff form size
const maxRequestBody = 1 << 20

// KickoffResponse is the envelope of every API answer.
type KickoffResponse struct {
	Success bool          `json:"success"`
	Result  *ResultBundle `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	recommender *Recommender
	provider    llm.Provider
	log         *logger.Logger
	started     time.Time
}

// NewServer creates the API server. provider is only used for health
// reporting.
func NewServer(rec *Recommender, provider llm.Provider) *Server {
	return &Server{
		recommender: rec,
		provider:    provider,
		log:         logger.New("api"),
		started:     time.Now(),
	}
}

func (s *Server) kickoffHandler(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set("X-Request-ID", requestID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		promRequestsTotal.WithLabelValues("bad_request").Inc()
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req, err := ParseRequirements(body)
	if err != nil {
		promRequestsTotal.WithLabelValues("bad_request").Inc()
		sendErrorResponse(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx := WithRequestID(r.Context(), requestID)
	bundle, err := s.recommender.ProduceRecommendation(ctx, req)
	if err != nil {
		var nodeErr *runner.NodeExecutionError
		fields := logger.Fields{"use_case": req.UseCase()}
		if errors.As(err, &nodeErr) {
			fields["node"] = nodeErr.Node
			fields["role"] = nodeErr.Role
		}
		s.log.ErrorWithCode(requestID, "Kickoff failed", http.StatusInternalServerError, err, fields)
		promRequestsTotal.WithLabelValues("error").Inc()
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	promRequestsTotal.WithLabelValues("success").Inc()
	sendJSON(w, KickoffResponse{Success: true, Result: bundle}, http.StatusOK)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	c := s.recommender.Crew()
	health := map[string]interface{}{
		"status":    "healthy",
		"service":   "archcrew-orchestrator",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"crew": map[string]string{
			"name":     c.Name(),
			"strategy": c.Strategy(),
		},
		"components": map[string]bool{
			"llm_provider": s.provider != nil && s.provider.IsHealthy(),
		},
	}
	if router, ok := s.provider.(*llm.Router); ok {
		health["providers"] = router.Providers()
	}
	sendJSON(w, health, http.StatusOK)
}

func (s *Server) crewHandler(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, s.recommender.Crew().Config(), http.StatusOK)
}

func sendJSON(w http.ResponseWriter, v interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	sendJSON(w, KickoffResponse{Success: false, Error: message}, statusCode)
}
