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

// Package main is the entry point for the architecture crew orchestrator.
//
// Usage:
//
//	./orchestrator
//
// Configuration is read from the environment, optionally seeded from a
// .env file in the working directory. See orchestrator.Run for the
// variables.
package main

import (
	"github.com/joho/godotenv"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator"
)

func main() {
	// .env is optional
	_ = godotenv.Load()
	orchestrator.Run()
}
