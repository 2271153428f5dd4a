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

/*
Package logger provides structured JSON logging for the architecture crew
service.

# Overview

Every entry is a single line of JSON written to stdout so that CloudWatch,
ELK or any other aggregator can ingest it without parsing rules.

Each entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (orchestrator, runner, search, ...)
  - Instance ID and container name
  - Request ID (one per recommendation request)
  - Custom fields

# Usage

	log := logger.New("runner")

	log.Info(requestID, "Node completed", logger.Fields{
	    "node": "aws_service_selection",
	    "role": "AWS Solution Specialist",
	})

	start := time.Now()
	// ... call the executor ...
	log.InfoWithDuration(requestID, "Node completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Levels

LOG_LEVEL selects the minimum level that is written (default INFO).
Entries below the threshold are dropped before marshaling.

# Environment Variables

  - LOG_LEVEL: DEBUG, INFO, WARN or ERROR
  - INSTANCE_ID: deployment instance identifier
  - HOSTNAME: container hostname (auto-detected)

Logger instances are safe for concurrent use.
*/
package logger
