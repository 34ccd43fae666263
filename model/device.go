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

import "time"

// DeviceKind classifies how a device is backed. Only physical devices
// expose battery telemetry; fastboot devices expose none at all.
type DeviceKind string

// Device kinds
const (
	KindPhysical     DeviceKind = "physical"
	KindEmulator     DeviceKind = "emulator"
	KindNullDevice   DeviceKind = "null"
	KindTCPDevice    DeviceKind = "tcp"
	KindStubEmulator DeviceKind = "stub_emulator"
	KindFastboot     DeviceKind = "fastboot"
)

// Valid returns true for a recognized device kind.
func (k DeviceKind) Valid() bool {
	switch k {
	case KindPhysical, KindEmulator, KindNullDevice,
		KindTCPDevice, KindStubEmulator, KindFastboot:
		return true
	}
	return false
}

// Virtual returns true for kinds that are stand-ins rather than real
// hardware. Virtual devices are never allocated unless explicitly
// requested.
func (k DeviceKind) Virtual() bool {
	switch k {
	case KindNullDevice, KindTCPDevice, KindStubEmulator:
		return true
	}
	return false
}

// DeviceState is the allocation lifecycle state of a device.
type DeviceState string

// Device states
const (
	StateFree        DeviceState = "free"
	StateAllocated   DeviceState = "allocated"
	StateUnavailable DeviceState = "unavailable"
	StateIgnored     DeviceState = "ignored"
)

// Valid returns true for a recognized device state.
func (s DeviceState) Valid() bool {
	switch s {
	case StateFree, StateAllocated, StateUnavailable, StateIgnored:
		return true
	}
	return false
}

// FreeDeviceState is the pool state a device should enter once released
// after a command, as reported by whoever executed the command.
type FreeDeviceState string

// Free device states
const (
	FreeDeviceAvailable    FreeDeviceState = "available"
	FreeDeviceUnavailable  FreeDeviceState = "unavailable"
	FreeDeviceUnresponsive FreeDeviceState = "unresponsive"
	FreeDeviceIgnored      FreeDeviceState = "ignored"
)

// Valid returns true for a recognized free device state.
func (s FreeDeviceState) Valid() bool {
	switch s {
	case FreeDeviceAvailable, FreeDeviceUnavailable,
		FreeDeviceUnresponsive, FreeDeviceIgnored:
		return true
	}
	return false
}

// PoolState maps the reported free device state to the device state the
// record transitions to once released.
func (s FreeDeviceState) PoolState() DeviceState {
	switch s {
	case FreeDeviceUnavailable, FreeDeviceUnresponsive:
		return StateUnavailable
	case FreeDeviceIgnored:
		return StateIgnored
	default:
		return StateFree
	}
}

// Well-known device property names
const (
	PropertyBoard         = "ro.product.board"
	PropertyVariant       = "ro.product.vendor.device"
	PropertyVariantLegacy = "ro.product.device"
	PropertySDKVersion    = "ro.build.version.sdk"
)

// Device represents one manageable device and its allocation state. All
// state transitions go through the pool; no other component mutates a
// Device.
type Device struct {
	Serial       string      `json:"serial" bson:"_id"`
	Kind         DeviceKind  `json:"kind" bson:"kind"`
	State        DeviceState `json:"state" bson:"state"`
	AllocationID string      `json:"allocation_id,omitempty" bson:"allocation_id,omitempty"`
	CreatedTs    time.Time   `json:"created_ts" bson:"created_ts,omitempty"`
	UpdatedTs    time.Time   `json:"updated_ts" bson:"updated_ts,omitempty"`
}
