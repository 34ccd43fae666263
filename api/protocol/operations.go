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

// Package protocol defines the line-framed request/response control
// protocol: one JSON object per line, discriminated by a "type" field.
// Unknown operation types and unknown enum values are hard decode
// failures so that version-mismatched peers fail loudly instead of
// guessing.
package protocol

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/testfarm/devicehub/model"
)

// OperationType discriminates protocol messages.
type OperationType string

// Operation types
const (
	TypeAllocateDevice       OperationType = "AllocateDevice"
	TypeFreeDevice           OperationType = "FreeDevice"
	TypeListDevices          OperationType = "ListDevices"
	TypeGetLastCommandResult OperationType = "GetLastCommandResult"
	// TypeClose ends the client connection and asks the server to stop
	// accepting new connections once in-flight ones finish.
	TypeClose OperationType = "Close"
)

// Valid returns true for a recognized operation type.
func (t OperationType) Valid() bool {
	switch t {
	case TypeAllocateDevice, TypeFreeDevice, TypeListDevices,
		TypeGetLastCommandResult, TypeClose:
		return true
	}
	return false
}

// Request is one decoded client operation.
type Request struct {
	Type            OperationType         `json:"type"`
	Serial          string                `json:"serial,omitempty"`
	FreeDeviceState model.FreeDeviceState `json:"free_device_state,omitempty"`
	Criteria        *model.Criteria       `json:"criteria,omitempty"`
}

// Validate checks the operation envelope and its per-type required
// fields.
func (r Request) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required, validation.By(
			func(value interface{}) error {
				if !r.Type.Valid() {
					return validation.NewError("type",
						"unrecognized operation type")
				}
				return nil
			})),
	)
	if err != nil {
		return err
	}
	switch r.Type {
	case TypeFreeDevice:
		err = validation.ValidateStruct(&r,
			validation.Field(&r.Serial, validation.Required),
			validation.Field(&r.FreeDeviceState,
				validation.Required, validation.By(
					func(interface{}) error {
						if !r.FreeDeviceState.Valid() {
							return validation.NewError(
								"free_device_state",
								"unrecognized free device state")
						}
						return nil
					})),
		)
	case TypeGetLastCommandResult:
		err = validation.ValidateStruct(&r,
			validation.Field(&r.Serial, validation.Required),
		)
	case TypeAllocateDevice:
		if r.Criteria != nil {
			err = r.Criteria.Validate()
		}
	}
	return err
}

// Response is one encoded operation outcome. Optional fields are omitted
// on the wire when not applicable, and their absence decodes as "not
// applicable" rather than an error.
type Response struct {
	Type            OperationType         `json:"type"`
	Status          model.CommandStatus   `json:"status"`
	Error           string                `json:"error,omitempty"`
	FreeDeviceState model.FreeDeviceState `json:"free_device_state,omitempty"`
	Serial          string                `json:"serial,omitempty"`
	AllocationID    string                `json:"allocation_id,omitempty"`
	Devices         []model.Device        `json:"devices,omitempty"`
}

// Validate checks the response envelope against the closed enumerations.
func (r Response) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required, validation.By(
			func(interface{}) error {
				if !r.Type.Valid() {
					return validation.NewError("type",
						"unrecognized operation type")
				}
				return nil
			})),
		validation.Field(&r.Status, validation.Required, validation.By(
			func(interface{}) error {
				if !r.Status.Valid() {
					return validation.NewError("status",
						"unrecognized status")
				}
				return nil
			})),
		validation.Field(&r.FreeDeviceState, validation.By(
			func(interface{}) error {
				if r.FreeDeviceState != "" &&
					!r.FreeDeviceState.Valid() {
					return validation.NewError(
						"free_device_state",
						"unrecognized free device state")
				}
				return nil
			})),
		validation.Field(&r.Devices, validation.By(
			func(interface{}) error {
				for i := range r.Devices {
					if !r.Devices[i].Kind.Valid() {
						return validation.NewError("devices",
							"unrecognized device kind")
					}
					if !r.Devices[i].State.Valid() {
						return validation.NewError("devices",
							"unrecognized device state")
					}
				}
				return nil
			})),
	)
}
