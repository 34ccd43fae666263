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

import (
	"strings"
	"time"
)

// SubjectDevices is the wildcard NATS subject covering all device state
// change events.
const SubjectDevices = "devices.*"

// GetDeviceSubject returns the NATS subject state change events for the
// given serial are published on.
func GetDeviceSubject(serial string) string {
	return strings.Join([]string{"devices", serial}, ".")
}

// DeviceEvent announces a device state transition to event stream
// subscribers.
type DeviceEvent struct {
	Serial       string      `json:"serial" msgpack:"serial"`
	Kind         DeviceKind  `json:"kind" msgpack:"kind"`
	State        DeviceState `json:"state" msgpack:"state"`
	AllocationID string      `json:"allocation_id,omitempty" msgpack:"allocation_id,omitempty"`
	// Removed is set when the device was deregistered rather than
	// transitioned.
	Removed bool      `json:"removed,omitempty" msgpack:"removed,omitempty"`
	Ts      time.Time `json:"ts" msgpack:"ts"`
}
