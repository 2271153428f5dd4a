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

// Package scoring extracts the specialist assessment scores that the
// requirements analyst embeds in its free-text answer.
//
// The analyst is asked to wrap a flat JSON object in a tag pair:
//
//	<assessment_scores>
//	{"software_architecture_complexity": 4, "security_requirements": 2, ...}
//	</assessment_scores>
//
// Extraction never fails. When the block is absent or unusable the
// default record (every aspect rated 3) is returned with Defaulted set.
package scoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Aspect names a rated dimension of the requirements.
type Aspect string

const (
	SoftwareArchitecture     Aspect = "software_architecture_complexity"
	SecurityRequirements     Aspect = "security_requirements"
	CostOptimization         Aspect = "cost_optimization_needs"
	DataComplexity           Aspect = "data_complexity"
	DevOpsComplexity         Aspect = "devops_complexity"
	PerformanceRequirements  Aspect = "performance_requirements"
	AvailabilityRequirements Aspect = "availability_requirements"
	IntegrationComplexity    Aspect = "integration_complexity"
)

const (
	// DefaultScore is used for every aspect when extraction falls back
	DefaultScore = 3

	MinScore = 1
	MaxScore = 5

	OpenTag  = "<assessment_scores>"
	CloseTag = "</assessment_scores>"
)

// Fallback reasons reported on a defaulted record
const (
	ReasonNoBlock      = "no_block"
	ReasonMalformed    = "malformed_json"
	ReasonInvalidValue = "invalid_value"
)

// KnownAspects lists every aspect in report order.
var KnownAspects = []Aspect{
	SoftwareArchitecture,
	SecurityRequirements,
	CostOptimization,
	DataComplexity,
	DevOpsComplexity,
	PerformanceRequirements,
	AvailabilityRequirements,
	IntegrationComplexity,
}

// aliases maps the short keys analysts tend to emit onto canonical names.
var aliases = map[string]Aspect{
	"software_architecture": SoftwareArchitecture,
	"security":              SecurityRequirements,
	"cost_optimization":     CostOptimization,
}

var blockPattern = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(OpenTag) + `(.*?)` + regexp.QuoteMeta(CloseTag))

// Record is an immutable set of aspect scores.
type Record struct {
	scores    map[Aspect]int
	defaulted bool
	reason    string
	detail    string
}

// Default returns the record used when no usable block is found.
func Default() Record {
	scores := make(map[Aspect]int, len(KnownAspects))
	for _, a := range KnownAspects {
		scores[a] = DefaultScore
	}
	return Record{scores: scores}
}

// New builds a record from explicit scores, filling unknown aspects with
// the default. Intended for callers that already hold validated values.
func New(values map[Aspect]int) Record {
	r := Default()
	for a, v := range values {
		r.scores[a] = v
	}
	return r
}

func fallback(reason, detail string) Record {
	r := Default()
	r.defaulted = true
	r.reason = reason
	r.detail = detail
	return r
}

// Get returns the score for an aspect. ok is false for aspects the
// record does not know about.
func (r Record) Get(a Aspect) (score int, ok bool) {
	score, ok = r.scores[a]
	return score, ok
}

// Scores returns a copy of all scores keyed by aspect name.
func (r Record) Scores() map[string]int {
	out := make(map[string]int, len(r.scores))
	for a, v := range r.scores {
		out[string(a)] = v
	}
	return out
}

// Defaulted reports whether extraction fell back to the default record.
func (r Record) Defaulted() bool { return r.defaulted }

// Reason is the fallback reason, empty for extracted records.
func (r Record) Reason() string { return r.reason }

// Detail carries the parse error text behind a fallback, if any.
func (r Record) Detail() string { return r.detail }

// String renders the scores in a stable order for logs.
func (r Record) String() string {
	keys := make([]string, 0, len(r.scores))
	for a := range r.scores {
		keys = append(keys, string(a))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, r.scores[Aspect(k)]))
	}
	return strings.Join(parts, " ")
}

// MarshalJSON exposes the scores and fallback flag to API clients.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Scores    map[string]int `json:"scores"`
		Defaulted bool           `json:"defaulted"`
		Reason    string         `json:"reason,omitempty"`
	}{
		Scores:    r.Scores(),
		Defaulted: r.defaulted,
		Reason:    r.reason,
	})
}

// Extract parses the first score block found in raw. Later blocks are
// ignored. Any problem with the block yields the full default record.
func Extract(raw string) Record {
	match := blockPattern.FindStringSubmatch(raw)
	if match == nil {
		return fallback(ReasonNoBlock, "")
	}

	body := strings.TrimSpace(match[1])
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()

	var parsed map[string]interface{}
	if err := dec.Decode(&parsed); err != nil {
		return fallback(ReasonMalformed, err.Error())
	}
	if parsed == nil {
		return fallback(ReasonMalformed, "score block is not an object")
	}

	// Canonical keys are applied after aliases so they win when both appear.
	keys := make([]string, 0, len(parsed))
	for key := range parsed {
		keys = append(keys, key)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		_, ai := aliases[strings.ToLower(strings.TrimSpace(keys[i]))]
		_, aj := aliases[strings.ToLower(strings.TrimSpace(keys[j]))]
		if ai != aj {
			return ai
		}
		return keys[i] < keys[j]
	})

	r := Default()
	for _, key := range keys {
		aspect, known := canonical(key)
		if !known {
			continue
		}
		num, ok := parsed[key].(json.Number)
		if !ok {
			return fallback(ReasonInvalidValue, fmt.Sprintf("%s: not a number", key))
		}
		v, err := integral(num)
		if err != nil {
			return fallback(ReasonInvalidValue, fmt.Sprintf("%s: %v", key, err))
		}
		if v < MinScore || v > MaxScore {
			return fallback(ReasonInvalidValue, fmt.Sprintf("%s: %d outside %d-%d", key, v, MinScore, MaxScore))
		}
		r.scores[aspect] = int(v)
	}

	return r
}

func canonical(key string) (Aspect, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if a, ok := aliases[key]; ok {
		return a, true
	}
	for _, a := range KnownAspects {
		if string(a) == key {
			return a, true
		}
	}
	return "", false
}

// integral accepts integers and floats with no fractional part, so a
// score written as 4.0 counts as 4.
func integral(num json.Number) (int64, error) {
	if v, err := num.Int64(); err == nil {
		return v, nil
	}
	f, err := num.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%s is not a whole number", num)
	}
	return int64(f), nil
}

// ParseAspect resolves a configured aspect name, accepting the short aliases.
func ParseAspect(name string) (Aspect, bool) {
	return canonical(name)
}
