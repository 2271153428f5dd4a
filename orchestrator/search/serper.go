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

// Package search gives crew agents web search: a Serper client, an
// optional Redis-backed result cache and the query tools built on top.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultSerperEndpoint is the Serper Google search API
	DefaultSerperEndpoint = "https://google.serper.dev/search"

	// DefaultResultCount is how many organic results are requested
	DefaultResultCount = 8
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("empty search query")

// Searcher runs a web search and returns the results as plain text.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SerperClient queries the Serper API.
type SerperClient struct {
	apiKey   string
	endpoint string
	count    int
	client   *http.Client
}

// SerperConfig configures a SerperClient.
type SerperConfig struct {
	APIKey   string
	Endpoint string
	Count    int
	Timeout  time.Duration
}

// NewSerperClient creates a client. An API key is required.
func NewSerperClient(cfg SerperConfig) (*SerperClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("serper API key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultSerperEndpoint
	}
	if cfg.Count <= 0 {
		cfg.Count = DefaultResultCount
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SerperClient{
		apiKey:   cfg.APIKey,
		endpoint: cfg.Endpoint,
		count:    cfg.Count,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperResponse struct {
	AnswerBox *struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answerBox"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"knowledgeGraph"`
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search implements Searcher.
func (c *SerperClient) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	body, err := json.Marshal(serperRequest{Q: query, Num: c.count})
	if err != nil {
		return "", fmt.Errorf("failed to marshal search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		promSearches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		promSearches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		promSearches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("search API returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed serperResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		promSearches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}
	promSearches.WithLabelValues("success").Inc()
	return formatResults(query, parsed), nil
}

func formatResults(query string, r serperResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for: %s\n\n", query)
	if r.AnswerBox != nil {
		answer := r.AnswerBox.Answer
		if answer == "" {
			answer = r.AnswerBox.Snippet
		}
		if answer != "" {
			fmt.Fprintf(&b, "Answer: %s\n\n", answer)
		}
	}
	if r.KnowledgeGraph != nil && r.KnowledgeGraph.Description != "" {
		fmt.Fprintf(&b, "%s: %s\n\n", r.KnowledgeGraph.Title, r.KnowledgeGraph.Description)
	}
	if len(r.Organic) == 0 {
		b.WriteString("No results found.\n")
		return b.String()
	}
	for _, o := range r.Organic {
		fmt.Fprintf(&b, "Title: %s\nLink: %s\nSnippet: %s\n---\n", o.Title, o.Link, o.Snippet)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
