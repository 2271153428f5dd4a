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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/crew"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/llm"
)

func newTestServer(t *testing.T, strategy string, provider *llm.MockProvider) (*httptest.Server, *llm.Router) {
	t.Helper()
	router := llm.NewRouter(provider)
	rec := newRecommender(t, strategy, router, 0)
	srv := httptest.NewServer(NewHandler(NewServer(rec, router), []string{"http://localhost:3000"}, nil))
	t.Cleanup(srv.Close)
	return srv, router
}

func decodeKickoff(t *testing.T, resp *http.Response) KickoffResponse {
	t.Helper()
	defer resp.Body.Close()
	var out KickoffResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestKickoffHandler_Success(t *testing.T) {
	srv, _ := newTestServer(t, crew.StrategyTwoPhase, analystMock(mixedScores))

	resp, err := http.Post(srv.URL+"/api/kickoff", "application/json",
		strings.NewReader(`{"use_case": "Video streaming service", "compliance": ["GDPR"]}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	body := decodeKickoff(t, resp)
	assert.True(t, body.Success)
	require.NotNil(t, body.Result)
	assert.Equal(t, resp.Header.Get("X-Request-ID"), body.Result.RequestID)
	assert.NotEmpty(t, body.Result.ArchitectureRecommendation)
	assert.Contains(t, body.Result.SpecialistRoster, "Integration Specialist")
}

func TestKickoffHandler_KeepsCallerRequestID(t *testing.T) {
	srv, _ := newTestServer(t, crew.StrategySinglePhase, llm.NewMockProvider())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/kickoff", strings.NewReader(`{"use_case": "chat"}`))
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	body := decodeKickoff(t, resp)
	require.True(t, body.Success)
	assert.Equal(t, "trace-42", body.Result.RequestID)
}

func TestKickoffHandler_BadRequest(t *testing.T) {
	srv, _ := newTestServer(t, crew.StrategySinglePhase, llm.NewMockProvider())

	for _, payload := range []string{`{"use_case":`, `[1, 2]`} {
		resp, err := http.Post(srv.URL+"/api/kickoff", "application/json", strings.NewReader(payload))
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
		body := decodeKickoff(t, resp)
		assert.False(t, body.Success)
		assert.Nil(t, body.Result)
		assert.Contains(t, body.Error, "Invalid request body")
	}
}

func TestKickoffHandler_FailureIs500(t *testing.T) {
	failing := llm.NewScriptedMockProvider("failing", func(llm.Request) (string, error) {
		return "", errors.New("upstream unavailable")
	})
	srv, _ := newTestServer(t, crew.StrategySinglePhase, failing)

	resp, err := http.Post(srv.URL+"/api/kickoff", "application/json", strings.NewReader(`{"use_case": "chat"}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeKickoff(t, resp)
	assert.False(t, body.Success)
	assert.Nil(t, body.Result)
	assert.Contains(t, body.Error, "upstream unavailable")
}

func TestKickoffHandler_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, crew.StrategySinglePhase, llm.NewMockProvider())

	resp, err := http.Get(srv.URL + "/api/kickoff")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthHandler(t *testing.T) {
	mock := llm.NewMockProvider()
	srv, _ := newTestServer(t, crew.StrategyTwoPhase, mock)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, []interface{}{"mock"}, health["providers"])
	assert.Equal(t, map[string]interface{}{"name": "expert-crew", "strategy": "two-phase"}, health["crew"])
	assert.Equal(t, map[string]interface{}{"llm_provider": true}, health["components"])

	mock.SetHealthy(false)
	resp2, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var degraded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&degraded))
	assert.Equal(t, map[string]interface{}{"llm_provider": false}, degraded["components"])
}

func TestCrewHandler(t *testing.T) {
	srv, _ := newTestServer(t, crew.StrategySinglePhase, llm.NewMockProvider())

	resp, err := http.Get(srv.URL + "/api/crew")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cfg crew.CrewConfigFile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, "research-crew", cfg.Metadata.Name)
	assert.Equal(t, crew.StrategySinglePhase, cfg.Spec.Strategy)
	assert.Len(t, cfg.Spec.Tasks, 6)
}

func TestPrometheusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, crew.StrategySinglePhase, llm.NewMockProvider())

	resp, err := http.Post(srv.URL+"/api/kickoff", "application/json", strings.NewReader(`{"use_case": "chat"}`))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/prometheus")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, crew.StrategySinglePhase, llm.NewMockProvider())

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/kickoff", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNewHandler_RateLimitsKickoff(t *testing.T) {
	rec := newRecommender(t, crew.StrategySinglePhase, llm.NewMockProvider(), 0)
	limiter, err := NewRateLimiter("", 1)
	require.NoError(t, err)
	srv := httptest.NewServer(NewHandler(NewServer(rec, llm.NewMockProvider()), nil, limiter))
	defer srv.Close()

	post := func() int {
		resp, err := http.Post(srv.URL+"/api/kickoff", "application/json", strings.NewReader(`{"use_case": "chat"}`))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	// health is never limited
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
