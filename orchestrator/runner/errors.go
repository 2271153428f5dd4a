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
	"errors"
	"fmt"
)

// ErrGraphAlreadyRun is returned when a graph is handed to a runner a
// second time. Graphs are single use; build a new one per request.
var ErrGraphAlreadyRun = errors.New("graph already run")

// NodeExecutionError aborts a run. No outputs are returned with it.
type NodeExecutionError struct {
	Node string
	Role string
	Err  error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q (role %s) failed: %v", e.Node, e.Role, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}
