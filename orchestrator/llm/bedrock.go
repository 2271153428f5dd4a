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
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
)

const (
	// DefaultBedrockRegion is used when no region is configured
	DefaultBedrockRegion = "us-east-1"

	// DefaultBedrockModel is used when no model is configured
	DefaultBedrockModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

	bedrockAnthropicVersion = "bedrock-2023-05-31"
)

// BedrockInvoker is the part of the Bedrock runtime client the provider uses.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider invokes models on AWS Bedrock with IAM credentials.
// Anthropic models get the full tool loop; other families receive the
// system and user prompt as plain text.
type BedrockProvider struct {
	client  BedrockInvoker
	region  string
	model   string
	healthy atomic.Bool
}

// NewBedrockProvider loads the default AWS configuration for region.
func NewBedrockProvider(ctx context.Context, region, model string) (*BedrockProvider, error) {
	if region == "" {
		region = DefaultBedrockRegion
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", region, err)
	}
	p := NewBedrockProviderWithClient(bedrockruntime.NewFromConfig(awsCfg), region, model)
	log.Printf("[Bedrock] Provider initialized (region: %s, model: %s)", region, p.model)
	return p, nil
}

// NewBedrockProviderWithClient wraps an existing invoker.
func NewBedrockProviderWithClient(client BedrockInvoker, region, model string) *BedrockProvider {
	if model == "" {
		model = DefaultBedrockModel
	}
	p := &BedrockProvider{client: client, region: region, model: model}
	p.healthy.Store(true)
	return p
}

// Name implements Provider.
func (p *BedrockProvider) Name() string { return "bedrock" }

// IsHealthy implements Provider.
func (p *BedrockProvider) IsHealthy() bool { return p.healthy.Load() && p.region != "" }

// Complete implements Provider.
func (p *BedrockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	model := req.Model
	if model == "" {
		model = p.model
	}

	family := detectBedrockModelFamily(model)
	var (
		resp *Response
		err  error
	)
	switch family {
	case "anthropic":
		resp, err = p.completeAnthropic(ctx, model, req)
	case "amazon", "meta", "mistral":
		if len(req.Tools) > 0 {
			log.Printf("[Bedrock] Model family %s does not support tools, ignoring %d tool(s)", family, len(req.Tools))
		}
		resp, err = p.completeText(ctx, family, model, req)
	default:
		return nil, NewProviderError(p.Name(), ErrCodeModelNotFound, fmt.Sprintf("unsupported model family for %q", model), nil)
	}
	if err != nil {
		return nil, err
	}
	resp.Provider = p.Name()
	resp.Model = model
	resp.ResponseTime = time.Since(start)
	return resp, nil
}

type bedrockMessage struct {
	Role    string        `json:"role"`
	Content []bedrockBlock `json:"content"`
}

type bedrockBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type bedrockTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type bedrockAnthropicRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float64          `json:"temperature"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Tools            []bedrockTool    `json:"tools,omitempty"`
}

type bedrockAnthropicResponse struct {
	Content    []bedrockBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *BedrockProvider) completeAnthropic(ctx context.Context, model string, req Request) (*Response, error) {
	temperature := req.Temperature
	body := bedrockAnthropicRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        req.maxTokens(),
		Temperature:      temperature,
		System:           req.System,
		Messages: []bedrockMessage{
			{Role: "user", Content: []bedrockBlock{{Type: "text", Text: req.Prompt}}},
		},
	}
	for _, t := range req.Tools {
		schema := t.InputSchema()
		props := schema.Properties
		if props == nil {
			props = map[string]interface{}{}
		}
		inputSchema := map[string]interface{}{"type": "object", "properties": props}
		if len(schema.Required) > 0 {
			inputSchema["required"] = schema.Required
		}
		body.Tools = append(body.Tools, bedrockTool{Name: t.Name(), Description: t.Description(), InputSchema: inputSchema})
	}

	resp := &Response{}
	for iteration := 0; iteration < maxToolIterations; iteration++ {
		raw, err := p.invoke(ctx, model, body)
		if err != nil {
			return nil, err
		}

		var out bedrockAnthropicResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, NewProviderError(p.Name(), ErrCodeServerError, "failed to unmarshal response", err)
		}
		resp.TokensUsed += out.Usage.InputTokens + out.Usage.OutputTokens

		var text strings.Builder
		var results []bedrockBlock
		for _, block := range out.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.Text)
			case "tool_use":
				resp.ToolCalls++
				result, isError := callTool(ctx, req.Tools, block.Name, block.Input)
				results = append(results, bedrockBlock{Type: "tool_result", ToolUseID: block.ID, Content: result, IsError: isError})
			}
		}

		if out.StopReason != "tool_use" || len(results) == 0 {
			resp.Content = text.String()
			return resp, nil
		}
		body.Messages = append(body.Messages,
			bedrockMessage{Role: "assistant", Content: out.Content},
			bedrockMessage{Role: "user", Content: results})
	}

	return nil, NewProviderError(p.Name(), ErrCodeToolLoop,
		fmt.Sprintf("model still requesting tools after %d iterations", maxToolIterations), nil)
}

// completeText handles the families that take a single prompt string.
func (p *BedrockProvider) completeText(ctx context.Context, family, model string, req Request) (*Response, error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}
	temperature := req.Temperature

	var body map[string]interface{}
	switch family {
	case "amazon":
		body = map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": req.maxTokens(),
				"temperature":   temperature,
				"topP":          0.9,
			},
		}
	case "meta":
		body = map[string]interface{}{
			"prompt":      prompt,
			"max_gen_len": req.maxTokens(),
			"temperature": temperature,
			"top_p":       0.9,
		}
	default:
		body = map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  req.maxTokens(),
			"temperature": temperature,
			"top_p":       0.9,
		}
	}

	raw, err := p.invoke(ctx, model, body)
	if err != nil {
		return nil, err
	}

	var content string
	var tokens int
	switch family {
	case "amazon":
		var out struct {
			Results []struct {
				OutputText string `json:"outputText"`
				TokenCount int    `json:"tokenCount"`
			} `json:"results"`
			InputTextTokenCount int `json:"inputTextTokenCount"`
		}
		err = json.Unmarshal(raw, &out)
		if len(out.Results) > 0 {
			content = out.Results[0].OutputText
			tokens = out.InputTextTokenCount + out.Results[0].TokenCount
		}
	case "meta":
		var out struct {
			Generation       string `json:"generation"`
			PromptTokenCount int    `json:"prompt_token_count"`
			GenTokenCount    int    `json:"generation_token_count"`
		}
		err = json.Unmarshal(raw, &out)
		content = out.Generation
		tokens = out.PromptTokenCount + out.GenTokenCount
	default:
		var out struct {
			Outputs []struct {
				Text string `json:"text"`
			} `json:"outputs"`
		}
		err = json.Unmarshal(raw, &out)
		if len(out.Outputs) > 0 {
			content = out.Outputs[0].Text
		}
	}
	if err != nil {
		return nil, NewProviderError(p.Name(), ErrCodeServerError, "failed to unmarshal response", err)
	}
	return &Response{Content: content, TokensUsed: tokens}, nil
}

func (p *BedrockProvider) invoke(ctx context.Context, model string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        payload,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		p.healthy.Store(false)
		log.Printf("[Bedrock] API call failed: %v", err)
		return nil, p.wrapError(ctx, err)
	}
	p.healthy.Store(true)
	return output.Body, nil
}

func (p *BedrockProvider) wrapError(ctx context.Context, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := ErrCodeServerError
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceQuotaExceededException":
			code = ErrCodeRateLimit
		case "AccessDeniedException", "UnrecognizedClientException":
			code = ErrCodeAuth
		case "ValidationException":
			code = ErrCodeInvalidRequest
		case "ResourceNotFoundException":
			code = ErrCodeModelNotFound
		case "ModelTimeoutException":
			code = ErrCodeTimeout
		}
		return NewProviderError(p.Name(), code, apiErr.ErrorMessage(), err)
	}
	if ctx.Err() != nil {
		return NewProviderError(p.Name(), ErrCodeTimeout, ctx.Err().Error(), err)
	}
	return NewProviderError(p.Name(), ErrCodeUnavailable, err.Error(), err)
}

// inferenceProfilePrefixes are the known Bedrock inference profile prefixes.
var inferenceProfilePrefixes = []string{"eu", "us", "apac", "global"}

var supportedBedrockFamilies = []string{"anthropic", "amazon", "meta", "mistral"}

// detectBedrockModelFamily extracts the provider family from a model ID
// such as anthropic.claude-3-5-sonnet-20240620-v1:0 or the inference
// profile form us.anthropic.claude-sonnet-4-5-20250929-v1:0.
func detectBedrockModelFamily(modelID string) string {
	segments := strings.Split(modelID, ".")
	if len(segments) < 2 {
		return ""
	}
	family := segments[0]
	for _, prefix := range inferenceProfilePrefixes {
		if family == prefix {
			family = segments[1]
			break
		}
	}
	for _, supported := range supportedBedrockFamilies {
		if family == supported {
			return family
		}
	}
	return ""
}
