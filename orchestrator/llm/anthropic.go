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

package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicConfig configures the Anthropic API provider.
type AnthropicConfig struct {
	APIKey string
	Model  string

	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string

	// MaxRetries is passed to the SDK; nil keeps the SDK default.
	MaxRetries *int
}

// AnthropicProvider calls the Messages API through the official SDK and
// runs the tool-use loop itself.
type AnthropicProvider struct {
	client  anthropic.Client
	model   string
	healthy atomic.Bool
}

// NewAnthropicProvider creates the provider. An API key is required.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, option.WithMaxRetries(*cfg.MaxRetries))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	p := &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
	p.healthy.Store(true)
	log.Printf("[Anthropic] Provider initialized (model: %s)", model)
	return p, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// IsHealthy implements Provider.
func (p *AnthropicProvider) IsHealthy() bool { return p.healthy.Load() }

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	model := req.Model
	if model == "" {
		model = p.model
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(req.maxTokens()),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Tools: anthropicTools(req.Tools),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp := &Response{Provider: p.Name(), Model: model}
	for iteration := 0; iteration < maxToolIterations; iteration++ {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			p.healthy.Store(false)
			return nil, p.wrapError(ctx, err)
		}
		p.healthy.Store(true)

		resp.TokensUsed += int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
		if msg.Model != "" {
			resp.Model = string(msg.Model)
		}

		var text strings.Builder
		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				text.WriteString(variant.Text)
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))
			case anthropic.ToolUseBlock:
				resp.ToolCalls++
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))
				out, isError := callTool(ctx, req.Tools, variant.Name, variant.Input)
				toolResults = append(toolResults,
					anthropic.NewToolResultBlock(variant.ID, out, isError))
			}
		}

		if msg.StopReason != anthropic.StopReasonToolUse || len(toolResults) == 0 {
			resp.Content = text.String()
			resp.ResponseTime = time.Since(start)
			return resp, nil
		}

		params.Messages = append(params.Messages,
			anthropic.NewAssistantMessage(assistantBlocks...),
			anthropic.NewUserMessage(toolResults...))
	}

	return nil, NewProviderError(p.Name(), ErrCodeToolLoop,
		fmt.Sprintf("model still requesting tools after %d iterations", maxToolIterations), nil)
}

func (p *AnthropicProvider) wrapError(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := NewProviderError(p.Name(), codeForStatus(apiErr.StatusCode), "messages API call failed", err)
		pe.StatusCode = apiErr.StatusCode
		return pe
	}
	if ctx.Err() != nil {
		return NewProviderError(p.Name(), ErrCodeTimeout, ctx.Err().Error(), err)
	}
	return NewProviderError(p.Name(), ErrCodeUnavailable, err.Error(), err)
}

func anthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema()
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name(),
				Description: anthropic.String(t.Description()),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		})
	}
	return out
}
