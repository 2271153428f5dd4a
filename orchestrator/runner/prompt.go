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

package runner

import (
	"fmt"
	"strings"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/taskgraph"
)

const previousResultsHeader = "===== PREVIOUS STEP RESULTS ====="

// BuildPrompt assembles a node's input: its instruction, the expected
// output, then every predecessor output in predecessor-list order.
func BuildPrompt(n *taskgraph.Node) (string, error) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(n.Instruction))
	b.WriteString("\n")

	if expected := strings.TrimSpace(n.ExpectedOutput); expected != "" {
		b.WriteString("\nExpected output:\n")
		b.WriteString(expected)
		b.WriteString("\n")
	}

	preds := n.Predecessors()
	if len(preds) == 0 {
		return b.String(), nil
	}

	b.WriteString("\n")
	b.WriteString(previousResultsHeader)
	b.WriteString("\n\n")
	b.WriteString("Use the following results from earlier steps as your context:\n\n")
	for _, p := range preds {
		out, ok := p.Output()
		if !ok {
			return "", fmt.Errorf("predecessor %q has no recorded output", p.Name)
		}
		b.WriteString(fmt.Sprintf("## Step: %s\n", p.Name))
		b.WriteString(strings.TrimSpace(out))
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func delegationPrompt(n *taskgraph.Node, roles []string) string {
	var b strings.Builder
	b.WriteString("You are coordinating a crew of specialists. Decide which crew member should perform the next task.\n\n")
	b.WriteString(fmt.Sprintf("Task: %s\n", n.Name))
	b.WriteString(fmt.Sprintf("Suggested role: %s\n\n", n.Role))
	b.WriteString(strings.TrimSpace(n.Instruction))
	b.WriteString("\n\nAvailable roles:\n")
	for _, r := range roles {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}
	b.WriteString("\nReply with exactly one role name from the list and nothing else.\n")
	return b.String()
}
