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
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	responses []string
	err       error
	inputs    []*bedrockruntime.InvokeModelInput
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	i := len(f.inputs) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.responses[i])}, nil
}

func TestBedrockProvider_AnthropicToolLoop(t *testing.T) {
	inv := &fakeInvoker{responses: []string{
		`{"content":[{"type":"tool_use","id":"tu_1","name":"internet_search","input":{"query":"rds vs aurora"}}],"stop_reason":"tool_use","usage":{"input_tokens":10,"output_tokens":5}}`,
		`{"content":[{"type":"text","text":"Aurora Serverless v2."}],"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":7}}`,
	}}
	p := NewBedrockProviderWithClient(inv, "eu-west-1", "eu.anthropic.claude-sonnet-4-5-20250929-v1:0")
	tool := &echoTool{}

	resp, err := p.Complete(context.Background(), Request{System: "sys", Prompt: "pick a database", Tools: []Tool{tool}})
	require.NoError(t, err)

	assert.Equal(t, "Aurora Serverless v2.", resp.Content)
	assert.Equal(t, "bedrock", resp.Provider)
	assert.Equal(t, 42, resp.TokensUsed)
	assert.Equal(t, 1, resp.ToolCalls)
	require.Len(t, tool.inputs, 1)

	require.Len(t, inv.inputs, 2)
	assert.Equal(t, "eu.anthropic.claude-sonnet-4-5-20250929-v1:0", *inv.inputs[0].ModelId)

	var first bedrockAnthropicRequest
	require.NoError(t, json.Unmarshal(inv.inputs[0].Body, &first))
	assert.Equal(t, bedrockAnthropicVersion, first.AnthropicVersion)
	assert.Equal(t, "sys", first.System)
	assert.Equal(t, DefaultMaxTokens, first.MaxTokens)
	require.Len(t, first.Tools, 1)
	assert.Equal(t, "object", first.Tools[0].InputSchema["type"])

	var second bedrockAnthropicRequest
	require.NoError(t, json.Unmarshal(inv.inputs[1].Body, &second))
	require.Len(t, second.Messages, 3)
	assert.Equal(t, "assistant", second.Messages[1].Role)
	assert.Equal(t, "tool_result", second.Messages[2].Content[0].Type)
	assert.Equal(t, "tu_1", second.Messages[2].Content[0].ToolUseID)
}

func TestBedrockProvider_TextFamilies(t *testing.T) {
	tests := []struct {
		model    string
		response string
		want     string
		tokens   int
		bodyKey  string
	}{
		{"amazon.titan-text-express-v1", `{"results":[{"outputText":"titan says","tokenCount":4}],"inputTextTokenCount":6}`, "titan says", 10, "inputText"},
		{"meta.llama3-70b-instruct-v1:0", `{"generation":"llama says","prompt_token_count":3,"generation_token_count":2}`, "llama says", 5, "max_gen_len"},
		{"mistral.mistral-large-2402-v1:0", `{"outputs":[{"text":"mistral says"}]}`, "mistral says", 0, "max_tokens"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			inv := &fakeInvoker{responses: []string{tt.response}}
			p := NewBedrockProviderWithClient(inv, "us-east-1", tt.model)

			resp, err := p.Complete(context.Background(), Request{System: "be brief", Prompt: "hi", Tools: []Tool{&echoTool{}}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Content)
			assert.Equal(t, tt.tokens, resp.TokensUsed)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(inv.inputs[0].Body, &body))
			assert.Contains(t, body, tt.bodyKey)
		})
	}
}

func TestBedrockProvider_ZeroTemperature(t *testing.T) {
	for _, model := range []string{"anthropic.claude-3-haiku-20240307-v1:0", "mistral.mistral-large-2402-v1:0"} {
		t.Run(model, func(t *testing.T) {
			inv := &fakeInvoker{responses: []string{
				`{"content":[{"type":"text","text":"ok"}],"outputs":[{"text":"ok"}],"stop_reason":"end_turn"}`,
			}}
			p := NewBedrockProviderWithClient(inv, "us-east-1", model)

			_, err := p.Complete(context.Background(), Request{Prompt: "hi", Temperature: 0})
			require.NoError(t, err)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(inv.inputs[0].Body, &body))
			assert.Equal(t, float64(0), body["temperature"])
		})
	}
}

func TestBedrockProvider_UnsupportedFamily(t *testing.T) {
	p := NewBedrockProviderWithClient(&fakeInvoker{}, "us-east-1", "cohere.command-r-v1:0")

	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ErrCodeModelNotFound, pe.Code)
}

func TestBedrockProvider_ErrorMapping(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"ThrottlingException", ErrCodeRateLimit},
		{"AccessDeniedException", ErrCodeAuth},
		{"ValidationException", ErrCodeInvalidRequest},
		{"ResourceNotFoundException", ErrCodeModelNotFound},
		{"InternalServerException", ErrCodeServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			inv := &fakeInvoker{err: &smithy.GenericAPIError{Code: tt.code, Message: "boom"}}
			p := NewBedrockProviderWithClient(inv, "us-east-1", "")

			_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.want, pe.Code)
			assert.Equal(t, "boom", pe.Message)
			assert.False(t, p.IsHealthy())
		})
	}
}

func TestDetectBedrockModelFamily(t *testing.T) {
	tests := map[string]string{
		"anthropic.claude-3-5-sonnet-20240620-v1:0":        "anthropic",
		"us.anthropic.claude-sonnet-4-5-20250929-v1:0":     "anthropic",
		"global.anthropic.claude-sonnet-4-5-20250929-v1:0": "anthropic",
		"amazon.titan-text-express-v1":                     "amazon",
		"apac.meta.llama3-70b-instruct-v1:0":               "meta",
		"mistral.mistral-large-2402-v1:0":                  "mistral",
		"cohere.command-r-v1:0":                            "",
		"claude-3-5-sonnet":                                "",
		"":                                                 "",
	}
	for model, want := range tests {
		assert.Equal(t, want, detectBedrockModelFamily(model), model)
	}
}
