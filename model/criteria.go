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
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// EnvSerial is the environment variable consulted for a device serial when
// the criteria do not name any.
const EnvSerial = "DEVICEHUB_SERIAL"

// Criteria describes which device(s) a caller will accept. The zero value
// matches any free physical or emulator device. Criteria are immutable
// once handed to the pool.
type Criteria struct {
	Serials        []string          `json:"serials,omitempty"`
	ExcludeSerials []string          `json:"exclude_serials,omitempty"`
	ProductTypes   []string          `json:"product_types,omitempty"`
	Properties     map[string]string `json:"properties,omitempty"`

	MinSDKLevel *int `json:"min_sdk_level,omitempty"`
	MaxSDKLevel *int `json:"max_sdk_level,omitempty"`

	MinBattery *int `json:"min_battery,omitempty"`
	MaxBattery *int `json:"max_battery,omitempty"`
	// Battery temperature bounds in whole degrees Celsius.
	MinBatteryTemperature *int `json:"min_battery_temperature,omitempty"`
	MaxBatteryTemperature *int `json:"max_battery_temperature,omitempty"`

	// Tri-state: nil defaults to "required whenever a bound is set".
	RequireBatteryCheck            *bool `json:"require_battery_check,omitempty"`
	RequireBatteryTemperatureCheck *bool `json:"require_battery_temperature_check,omitempty"`

	PhysicalDeviceRequested bool `json:"physical_device,omitempty"`
	EmulatorRequested       bool `json:"emulator,omitempty"`
	NullDeviceRequested     bool `json:"null_device,omitempty"`
	TCPDeviceRequested      bool `json:"tcp_device,omitempty"`
	StubEmulatorRequested   bool `json:"stub_emulator,omitempty"`

	// ResolveEnv substitutes the environment lookup used for the serial
	// fallback. Defaults to os.Getenv.
	ResolveEnv func(string) string `json:"-" bson:"-"`
}

// EffectiveSerials returns the requested serials, falling back to the
// serial named by the environment when none are set explicitly. Explicit
// serials are never overridden.
func (c *Criteria) EffectiveSerials() []string {
	if len(c.Serials) > 0 {
		return c.Serials
	}
	resolve := c.ResolveEnv
	if resolve == nil {
		resolve = os.Getenv
	}
	if serial := resolve(EnvSerial); serial != "" {
		return []string{serial}
	}
	return nil
}

// RequestedKind returns the device kind selected by a kind flag, or ""
// when no flag is set.
func (c *Criteria) RequestedKind() DeviceKind {
	switch {
	case c.PhysicalDeviceRequested:
		return KindPhysical
	case c.EmulatorRequested:
		return KindEmulator
	case c.NullDeviceRequested:
		return KindNullDevice
	case c.TCPDeviceRequested:
		return KindTCPDevice
	case c.StubEmulatorRequested:
		return KindStubEmulator
	}
	return ""
}

// HasBatteryBounds returns true if a battery level bound is configured.
func (c *Criteria) HasBatteryBounds() bool {
	return c.MinBattery != nil || c.MaxBattery != nil
}

// HasTemperatureBounds returns true if a battery temperature bound is
// configured.
func (c *Criteria) HasTemperatureBounds() bool {
	return c.MinBatteryTemperature != nil || c.MaxBatteryTemperature != nil
}

func (c Criteria) kindFlags() int {
	n := 0
	for _, set := range []bool{
		c.PhysicalDeviceRequested,
		c.EmulatorRequested,
		c.NullDeviceRequested,
		c.TCPDeviceRequested,
		c.StubEmulatorRequested,
	} {
		if set {
			n++
		}
	}
	return n
}

// Validate checks the criteria for internal consistency.
func (c Criteria) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.PhysicalDeviceRequested, validation.By(
			func(interface{}) error {
				if c.kindFlags() > 1 {
					return validation.NewError(
						"device_kind",
						"at most one device kind may be requested",
					)
				}
				return nil
			})),
		validation.Field(&c.MinBattery,
			validation.Min(0), validation.Max(100)),
		validation.Field(&c.MaxBattery,
			validation.Min(0), validation.Max(100)),
		validation.Field(&c.MaxSDKLevel, validation.By(
			func(interface{}) error {
				if c.MinSDKLevel != nil && c.MaxSDKLevel != nil &&
					*c.MinSDKLevel > *c.MaxSDKLevel {
					return validation.NewError(
						"sdk_level",
						"min_sdk_level exceeds max_sdk_level",
					)
				}
				return nil
			})),
	)
}
