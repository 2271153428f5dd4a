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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/crew"
)

// ErrNotAnObject is returned when the request body is valid JSON but not
// an object
var ErrNotAnObject = errors.New("requirements must be a JSON object")

const (
	// missingValue is what an absent field renders as in prompts
	missingValue = "None"

	defaultIntegrationComplexity = "Moderate"
)

// Requirements is the submitted form rendered to the text values every
// prompt template sees. It is immutable once parsed.
type Requirements struct {
	values map[string]string
}

// ParseRequirements decodes a requirements form. Only the shape is
// checked: missing fields render as "None", except integration
// complexity which defaults to "Moderate". A compliance list is joined
// with ", ".
func ParseRequirements(data []byte) (*Requirements, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid requirements JSON: %w", err)
	}
	form, ok := raw.(map[string]interface{})
	if !ok {
		return nil, ErrNotAnObject
	}
	return NewRequirements(form), nil
}

// NewRequirements normalizes an already decoded form.
func NewRequirements(form map[string]interface{}) *Requirements {
	values := make(map[string]string, len(crew.RequirementFields))
	for _, field := range crew.RequirementFields {
		v, present := form[field]
		switch {
		case !present && field == "integration_complexity":
			values[field] = defaultIntegrationComplexity
		case v == nil:
			values[field] = missingValue
		default:
			values[field] = formatValue(v)
		}
	}
	return &Requirements{values: values}
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if item == nil {
				parts = append(parts, missingValue)
				continue
			}
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Get returns one rendered field.
func (r *Requirements) Get(field string) string {
	return r.values[field]
}

// Values returns a copy of every rendered field.
func (r *Requirements) Values() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// UseCase is a shorthand for logs.
func (r *Requirements) UseCase() string {
	return r.values["use_case"]
}
