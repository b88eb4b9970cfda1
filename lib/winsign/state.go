/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package winsign

import "time"

// State is a point in the signing pipeline. A run moves through the states
// in order and stops at the first failure.
type State int

const (
	StateStart State = iota
	StateDummySigned
	StateExtracted
	StateDecoded
	StateResigned
	StatePackaged
	StateAttached
	StateFailed
)

var stateNames = []string{
	StateStart:       "START",
	StateDummySigned: "DUMMY_SIGNED",
	StateExtracted:   "EXTRACTED",
	StateDecoded:     "DECODED",
	StateResigned:    "RESIGNED",
	StatePackaged:    "PACKAGED",
	StateAttached:    "ATTACHED",
	StateFailed:      "FAILED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Result is the outcome of one pipeline run
type Result struct {
	// State is StateAttached on success and StateFailed otherwise
	State State
	// FailedAt is the state that could not be reached
	FailedAt State
	Err      error
	// Durations records how long each completed stage took
	Durations map[State]time.Duration
}

func (r Result) OK() bool {
	return r.State == StateAttached && r.Err == nil
}
