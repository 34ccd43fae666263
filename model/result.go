// Copyright 2023 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package model

// CommandStatus describes the outcome of the most recent command executed
// against a device.
type CommandStatus string

// Command statuses
const (
	StatusInvocationSuccess CommandStatus = "invocation_success"
	StatusInvocationFailed  CommandStatus = "invocation_failed"
	StatusExecuting         CommandStatus = "executing"
	// StatusNotAllocated is returned when no command has ever run against
	// the serial. It is a normal outcome, not an error.
	StatusNotAllocated CommandStatus = "not_allocated"
	// StatusNoMatch is the allocate outcome when no free device satisfies
	// the criteria.
	StatusNoMatch CommandStatus = "no_match"
)

// Valid returns true for a recognized command status.
func (s CommandStatus) Valid() bool {
	switch s {
	case StatusInvocationSuccess, StatusInvocationFailed,
		StatusExecuting, StatusNotAllocated, StatusNoMatch:
		return true
	}
	return false
}

// CommandResult is the ledger entry for the last command executed against
// a device serial. FreeDeviceState is set only once the device has been
// freed with a recorded state.
type CommandResult struct {
	Status          CommandStatus   `json:"status" bson:"status"`
	ErrorDetail     string          `json:"error,omitempty" bson:"error,omitempty"`
	FreeDeviceState FreeDeviceState `json:"free_device_state,omitempty" bson:"free_device_state,omitempty"`
}
