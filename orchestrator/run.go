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
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/search"
)

// NewHandler builds the routed, CORS-wrapped HTTP handler. limiter may be
// nil, in which case kickoff requests are not rate limited.
func NewHandler(s *Server, allowedOrigins []string, limiter *RateLimiter) http.Handler {
	r := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	// Health check
	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	// Prometheus native format
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/crew", s.crewHandler).Methods("GET")

	var kickoff http.Handler = http.HandlerFunc(s.kickoffHandler)
	if limiter != nil {
		kickoff = limiter.Middleware(kickoff)
	}
	r.Handle("/api/kickoff", kickoff).Methods("POST", "OPTIONS")

	return c.Handler(r)
}

// Run starts the orchestrator service.
//
// Environment Variables:
//   - PORT: HTTP port (default 8000)
//   - CREW_STRATEGY: two-phase or single-phase (default two-phase)
//   - CREW_CONFIG_PATH: crew YAML file overriding the built-in crews
//   - LLM_PROVIDERS: comma separated failover order (anthropic, bedrock, mock)
//   - ANTHROPIC_API_KEY / ANTHROPIC_API_KEY_SECRET_ARN
//   - BEDROCK_REGION, BEDROCK_MODEL
//   - SERPER_API_KEY / SERPER_API_KEY_SECRET_ARN: web search (optional)
//   - REDIS_URL: search cache and shared rate limits (optional)
//   - RATE_LIMIT_PER_MINUTE: kickoff requests per client, 0 disables
func Run() {
	log.Println("Starting architecture crew orchestrator...")
	ctx := context.Background()

	cfg, err := LoadConfig(ctx)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	c, err := cfg.LoadCrew()
	if err != nil {
		log.Fatalf("Failed to load crew: %v", err)
	}
	log.Printf("[Crew] Loaded %s (%s, %s process)", c.Name(), c.Strategy(), c.Config().Spec.Process)

	provider, err := cfg.BuildProvider(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize LLM providers: %v", err)
	}
	log.Printf("[LLM] Providers in failover order: %v", provider.Providers())

	searcher, closeSearcher, err := cfg.BuildSearcher()
	if err != nil {
		log.Fatalf("Failed to initialize web search: %v", err)
	}
	if closeSearcher != nil {
		defer func() { _ = closeSearcher() }()
	}

	rec, err := NewRecommender(RecommenderConfig{
		Crew:      c,
		Provider:  provider,
		Toolbox:   search.Tools(searcher),
		Parallel:  cfg.Parallel,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.RequestTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to create recommender: %v", err)
	}

	var limiter *RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter, err = NewRateLimiter(cfg.RedisURL, cfg.RateLimitPerMinute)
		if err != nil {
			log.Printf("[RateLimiter] Redis unavailable, limiting in memory: %v", err)
			limiter, _ = NewRateLimiter("", cfg.RateLimitPerMinute)
		}
		defer func() { _ = limiter.Close() }()
	}

	handler := NewHandler(NewServer(rec, provider), cfg.AllowedOrigins, limiter)
	log.Printf("Orchestrator listening on port %s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}
