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
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/crew"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/llm"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/runner"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/scoring"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/search"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/taskgraph"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/shared/logger"
)

type contextKey string

const ctxKeyRequestID contextKey = "request_id"

// WithRequestID attaches a request ID used by every log line of the run.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFromContext returns the attached request ID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ResultBundle is everything one recommendation run produced.
type ResultBundle struct {
	RequestID                  string            `json:"request_id"`
	Strategy                   string            `json:"strategy"`
	RequirementsAnalysis       string            `json:"requirements_analysis,omitempty"`
	Scores                     *scoring.Record   `json:"scores,omitempty"`
	SpecialistRoster           []string          `json:"specialist_roster"`
	TeamComposition            []string          `json:"team_composition"`
	ArchitectureRecommendation string            `json:"architecture_recommendation"`
	NodeOutputs                map[string]string `json:"node_outputs"`
	DurationMS                 int64             `json:"duration_ms"`
}

// RecommenderConfig wires a Recommender.
type RecommenderConfig struct {
	Crew     *crew.Crew
	Provider llm.Provider
	Toolbox  search.Toolbox

	// Parallel runs independent nodes of the main phase concurrently.
	Parallel bool

	MaxTokens int

	// Timeout bounds a whole run; zero means no limit beyond the caller's.
	Timeout time.Duration

	Logger *logger.Logger
}

// Recommender is the entry point that turns a requirements form into an
// architecture recommendation using the configured crew.
type Recommender struct {
	crew      *crew.Crew
	provider  llm.Provider
	toolbox   search.Toolbox
	parallel  bool
	maxTokens int
	timeout   time.Duration
	log       *logger.Logger
}

// NewRecommender validates cfg and creates a Recommender.
func NewRecommender(cfg RecommenderConfig) (*Recommender, error) {
	if cfg.Crew == nil {
		return nil, fmt.Errorf("crew is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	toolbox := cfg.Toolbox
	if toolbox == nil {
		toolbox = search.Tools(search.Unavailable{})
	}
	l := cfg.Logger
	if l == nil {
		l = logger.New("recommender")
	}
	return &Recommender{
		crew:      cfg.Crew,
		provider:  cfg.Provider,
		toolbox:   toolbox,
		parallel:  cfg.Parallel,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		log:       l,
	}, nil
}

// Crew returns the crew the recommender runs.
func (r *Recommender) Crew() *crew.Crew { return r.crew }

// ProduceRecommendation runs the crew for one request. Either every node
// completes and a full bundle is returned, or an error is returned and
// nothing else.
func (r *Recommender) ProduceRecommendation(ctx context.Context, req *Requirements) (*ResultBundle, error) {
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
		ctx = WithRequestID(ctx, requestID)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	strategy := r.crew.Strategy()
	r.log.Info(requestID, "Starting recommendation", logger.Fields{
		"crew":     r.crew.Name(),
		"strategy": strategy,
		"use_case": req.UseCase(),
	})

	values := req.Values()
	roles, err := r.crew.Bind(crew.BindOptions{
		Provider:  r.provider,
		Toolbox:   r.toolbox,
		Values:    values,
		MaxTokens: r.maxTokens,
		RequestID: requestID,
		Logger:    r.log,
	})
	if err != nil {
		return nil, err
	}

	bundle := &ResultBundle{
		RequestID:        requestID,
		Strategy:         strategy,
		SpecialistRoster: []string{},
	}
	var outputs map[string]string
	if strategy == crew.StrategyTwoPhase {
		outputs, err = r.runTwoPhase(ctx, requestID, roles, values, bundle)
	} else {
		outputs, err = r.runSinglePhase(ctx, requestID, roles, values)
	}
	if err != nil {
		r.log.Error(requestID, "Recommendation failed", logger.Fields{
			"strategy":    strategy,
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, err
	}

	bundle.NodeOutputs = outputs
	bundle.ArchitectureRecommendation = outputs[r.crew.ResultTask()]
	bundle.TeamComposition = r.crew.TeamComposition(bundle.SpecialistRoster)
	bundle.DurationMS = time.Since(start).Milliseconds()

	promRequestDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
	r.log.InfoWithDuration(requestID, "Recommendation complete", float64(bundle.DurationMS), logger.Fields{
		"strategy":    strategy,
		"nodes":       len(outputs),
		"specialists": bundle.SpecialistRoster,
	})
	return bundle, nil
}

func (r *Recommender) runTwoPhase(ctx context.Context, requestID string, roles runner.Roles, values map[string]string, bundle *ResultBundle) (map[string]string, error) {
	initial, err := taskgraph.Assemble(r.crew.InitialTemplates(), values, nil)
	if err != nil {
		return nil, err
	}
	// The initial phase always runs in order without a manager.
	first, err := runner.New(roles, runner.Config{RequestID: requestID, Logger: r.log}).Run(ctx, initial)
	if err != nil {
		return nil, err
	}

	analysis := first[r.crew.ScoringSource()]
	scores := scoring.Extract(analysis)
	if scores.Defaulted() {
		promScoreFallbacks.WithLabelValues(scores.Reason()).Inc()
		r.log.Warn(requestID, "Assessment scores unusable, using defaults", logger.Fields{
			"reason": scores.Reason(),
			"detail": scores.Detail(),
		})
	}

	g, roster, err := taskgraph.Build(taskgraph.BuildInput{
		Scores:   scores,
		Baseline: r.crew.Baseline(),
		Catalog:  r.crew.Catalog(),
		Values:   values,
		Prior:    initial.Nodes(),
	})
	if err != nil {
		return nil, err
	}
	for _, label := range roster {
		promSpecialistsIncluded.WithLabelValues(label).Inc()
	}
	r.log.Info(requestID, "Architecture team assembled", logger.Fields{
		"scores":      scores.String(),
		"specialists": roster,
		"nodes":       g.Names(),
	})

	second, err := runner.New(roles, runner.Config{
		Manager:   r.crew.Manager(),
		Parallel:  r.parallel,
		RequestID: requestID,
		Logger:    r.log,
	}).Run(ctx, g)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]string, len(first)+len(second))
	for k, v := range first {
		outputs[k] = v
	}
	for k, v := range second {
		outputs[k] = v
	}

	bundle.RequirementsAnalysis = analysis
	bundle.Scores = &scores
	if roster != nil {
		bundle.SpecialistRoster = roster
	}
	return outputs, nil
}

func (r *Recommender) runSinglePhase(ctx context.Context, requestID string, roles runner.Roles, values map[string]string) (map[string]string, error) {
	g, err := taskgraph.Assemble(r.crew.Templates(), values, nil)
	if err != nil {
		return nil, err
	}
	return runner.New(roles, runner.Config{
		Manager:   r.crew.Manager(),
		Parallel:  r.parallel,
		RequestID: requestID,
		Logger:    r.log,
	}).Run(ctx, g)
}
