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
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/crew"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/llm"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/search"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/shared/secrets"
)

// Config is the service configuration, read from the environment.
type Config struct {
	Port           string
	Strategy       string
	CrewConfigPath string
	Parallel       bool
	RequestTimeout time.Duration
	AllowedOrigins []string

	// Providers is the failover order; empty means every configured one.
	Providers        []string
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
	BedrockRegion    string
	BedrockModel     string
	MaxTokens        int

	SerperAPIKey   string
	RedisURL       string
	SearchCacheTTL time.Duration

	RateLimitPerMinute int
}

// Provider names accepted in LLM_PROVIDERS
const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderMock      = "mock"
)

// LoadConfig reads the environment. API keys may be given directly or as
// AWS Secrets Manager ARNs.
func LoadConfig(ctx context.Context) (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8000"),
		Strategy:         getEnv("CREW_STRATEGY", crew.StrategyTwoPhase),
		CrewConfigPath:   os.Getenv("CREW_CONFIG_PATH"),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		Providers:        splitList(os.Getenv("LLM_PROVIDERS")),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", llm.DefaultAnthropicModel),
		AnthropicBaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
		BedrockRegion:    os.Getenv("BEDROCK_REGION"),
		BedrockModel:     os.Getenv("BEDROCK_MODEL"),
		RedisURL:         os.Getenv("REDIS_URL"),
	}

	var err error
	if cfg.Parallel, err = getEnvBool("PARALLEL_SPECIALISTS", false); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SearchCacheTTL, err = getEnvDuration("SEARCH_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.MaxTokens, err = getEnvInt("LLM_MAX_TOKENS", llm.DefaultMaxTokens); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = getEnvInt("RATE_LIMIT_PER_MINUTE", 0); err != nil {
		return nil, err
	}
	if !crew.ValidStrategies[cfg.Strategy] {
		return nil, fmt.Errorf("invalid CREW_STRATEGY '%s': must be one of two-phase, single-phase", cfg.Strategy)
	}

	resolver := secretsResolver(ctx)
	if cfg.AnthropicAPIKey, err = secrets.Lookup(ctx, resolver, "ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY_SECRET_ARN", "api_key"); err != nil {
		return nil, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
	}
	if cfg.SerperAPIKey, err = secrets.Lookup(ctx, resolver, "SERPER_API_KEY", "SERPER_API_KEY_SECRET_ARN", "api_key"); err != nil {
		return nil, fmt.Errorf("failed to resolve Serper API key: %w", err)
	}

	return cfg, nil
}

// secretsResolver returns the AWS resolver only when some secret is
// given as an ARN, so local runs never touch AWS.
func secretsResolver(ctx context.Context) secrets.Resolver {
	needed := false
	for _, key := range []string{"ANTHROPIC_API_KEY_SECRET_ARN", "SERPER_API_KEY_SECRET_ARN"} {
		if strings.HasPrefix(os.Getenv(key), "arn:") {
			needed = true
		}
	}
	if !needed {
		return nil
	}
	r, err := secrets.NewAWSResolver(ctx, secrets.AWSOptions{Region: os.Getenv("AWS_REGION")})
	if err != nil {
		log.Printf("[Config] AWS Secrets Manager unavailable: %v", err)
		return nil
	}
	return r
}

// LoadCrew returns the crew file at CrewConfigPath, or the built-in
// crew for Strategy. A crew file's own strategy wins.
func (c *Config) LoadCrew() (*crew.Crew, error) {
	if c.CrewConfigPath != "" {
		return crew.Load(c.CrewConfigPath)
	}
	return crew.Default(c.Strategy)
}

// BuildProvider creates the providers in failover order behind a router.
// With no explicit order every configured backend is used, falling back
// to the mock when none is.
func (c *Config) BuildProvider(ctx context.Context) (*llm.Router, error) {
	order := c.Providers
	if len(order) == 0 {
		if c.AnthropicAPIKey != "" {
			order = append(order, ProviderAnthropic)
		}
		if c.BedrockRegion != "" {
			order = append(order, ProviderBedrock)
		}
		if len(order) == 0 {
			log.Printf("[Config] No LLM provider configured, using the mock provider")
			order = []string{ProviderMock}
		}
	}

	providers := make([]llm.Provider, 0, len(order))
	for _, name := range order {
		switch name {
		case ProviderAnthropic:
			p, err := llm.NewAnthropicProvider(llm.AnthropicConfig{
				APIKey:  c.AnthropicAPIKey,
				Model:   c.AnthropicModel,
				BaseURL: c.AnthropicBaseURL,
			})
			if err != nil {
				return nil, fmt.Errorf("anthropic provider: %w", err)
			}
			providers = append(providers, p)
		case ProviderBedrock:
			p, err := llm.NewBedrockProvider(ctx, c.BedrockRegion, c.BedrockModel)
			if err != nil {
				return nil, fmt.Errorf("bedrock provider: %w", err)
			}
			providers = append(providers, p)
		case ProviderMock:
			providers = append(providers, llm.NewMockProvider())
		default:
			return nil, fmt.Errorf("unknown LLM provider '%s'", name)
		}
	}
	return llm.NewRouter(providers...), nil
}

// BuildSearcher returns the web search backend, cached in Redis when
// REDIS_URL is set. Disabled search is never cached. The closer is nil
// when there is nothing to release.
func (c *Config) BuildSearcher() (search.Searcher, func() error, error) {
	if c.SerperAPIKey == "" {
		log.Printf("[Config] SERPER_API_KEY not set, web search disabled")
		return search.Unavailable{}, nil, nil
	}
	client, err := search.NewSerperClient(search.SerperConfig{APIKey: c.SerperAPIKey})
	if err != nil {
		return nil, nil, err
	}

	if c.RedisURL == "" {
		return client, nil, nil
	}
	cached, err := search.NewCachedSearcher(client, c.RedisURL, c.SearchCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s '%s': must be a non-negative integer", key, v)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s '%s': %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s': %w", key, v, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
