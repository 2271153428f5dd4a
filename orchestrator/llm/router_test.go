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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(name string, err error) *MockProvider {
	return NewScriptedMockProvider(name, func(Request) (string, error) { return "", err })
}

func answering(name, text string) *MockProvider {
	return NewScriptedMockProvider(name, func(Request) (string, error) { return text, nil })
}

func TestRouter_UsesFirstProvider(t *testing.T) {
	primary := answering("primary", "from primary")
	backup := answering("backup", "from backup")

	resp, err := NewRouter(primary, backup).Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from primary", resp.Content)
	assert.Empty(t, backup.Calls())
}

func TestRouter_FailsOver(t *testing.T) {
	primary := failing("primary", NewProviderError("primary", ErrCodeServerError, "down", nil))
	backup := answering("backup", "from backup")

	resp, err := NewRouter(primary, backup).Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from backup", resp.Content)
	assert.Len(t, primary.Calls(), 1)
}

func TestRouter_PrefersHealthy(t *testing.T) {
	primary := answering("primary", "from primary")
	primary.SetHealthy(false)
	backup := answering("backup", "from backup")

	resp, err := NewRouter(primary, backup).Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from backup", resp.Content)
	assert.Empty(t, primary.Calls())
}

func TestRouter_AllFail(t *testing.T) {
	last := errors.New("backup exploded")
	r := NewRouter(failing("primary", errors.New("primary exploded")), failing("backup", last))

	_, err := r.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, last)
	assert.True(t, strings.HasPrefix(err.Error(), "all providers failed"))
}

func TestRouter_InvalidRequestNotRetried(t *testing.T) {
	primary := failing("primary", NewProviderError("primary", ErrCodeInvalidRequest, "prompt too long", nil))
	backup := answering("backup", "unused")

	_, err := NewRouter(primary, backup).Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Empty(t, backup.Calls())
}

func TestRouter_NoProviders(t *testing.T) {
	r := NewRouter()
	_, err := r.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoProviders)
	assert.False(t, r.IsHealthy())
}

func TestMockProvider_Deterministic(t *testing.T) {
	m := NewMockProvider()
	req := Request{System: "role", Prompt: "Design a data lake\nmore detail"}

	a, err := m.Complete(context.Background(), req)
	require.NoError(t, err)
	b, err := m.Complete(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, a.Content, b.Content)
	assert.Contains(t, a.Content, "Design a data lake")
	assert.NotContains(t, a.Content, "more detail")
	assert.Len(t, m.Calls(), 2)
}

func TestProviderError(t *testing.T) {
	cause := errors.New("socket closed")
	pe := NewProviderError("anthropic", ErrCodeUnavailable, "connection failed", cause)
	assert.Equal(t, "anthropic error: connection failed", pe.Error())
	assert.True(t, pe.Retryable)
	assert.ErrorIs(t, pe, cause)

	pe.StatusCode = 503
	assert.Equal(t, "anthropic error (status 503): connection failed", pe.Error())

	assert.False(t, NewProviderError("x", ErrCodeAuth, "", nil).Retryable)
	assert.Equal(t, ErrCodeRateLimit, codeForStatus(429))
	assert.Equal(t, ErrCodeServerError, codeForStatus(502))
	assert.Equal(t, ErrCodeInvalidRequest, codeForStatus(422))
}
