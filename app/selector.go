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

package app

import (
	"context"
	"strconv"

	"github.com/mendersoftware/go-lib-micro/log"

	"github.com/testfarm/devicehub/model"
	"github.com/testfarm/devicehub/telemetry"
)

// PropertyReader resolves device properties from the underlying device.
// An empty value means the property is not set.
type PropertyReader interface {
	Property(ctx context.Context, serial, name string) (string, error)
}

// Selector decides whether a device satisfies a set of selection criteria.
// Matching is pure over its inputs except for live property and telemetry
// queries, which are cached for the duration of one Matches call only.
type Selector struct {
	props     PropertyReader
	telemetry telemetry.Source
}

// NewSelector returns a selector issuing live queries through the given
// property reader and telemetry source.
func NewSelector(props PropertyReader, source telemetry.Source) *Selector {
	return &Selector{
		props:     props,
		telemetry: source,
	}
}

// Matches returns true if the device satisfies every clause of the
// criteria. Telemetry and property query failures fail the clause that
// needed them, never the surrounding allocation scan.
func (s *Selector) Matches(
	ctx context.Context,
	device *model.Device,
	criteria *model.Criteria,
) bool {
	mc := &matchCall{
		selector: s,
		ctx:      ctx,
		serial:   device.Serial,
		props:    map[string]string{},
	}

	if !matchKind(device.Kind, criteria) {
		return false
	}
	if !matchSerial(device.Serial, criteria) {
		return false
	}
	if !mc.matchProductType(criteria) {
		return false
	}
	if !mc.matchProperties(criteria) {
		return false
	}
	if !mc.matchSDKLevel(criteria) {
		return false
	}
	return mc.matchTelemetry(device.Kind, criteria)
}

// ProductVariant returns the product variant of the device, preferring
// the vendor property and falling back to the legacy one.
func (s *Selector) ProductVariant(ctx context.Context, serial string) (string, error) {
	mc := &matchCall{
		selector: s,
		ctx:      ctx,
		serial:   serial,
		props:    map[string]string{},
	}
	return mc.productVariant()
}

// matchCall caches live queries for the duration of one Matches call.
type matchCall struct {
	selector *Selector
	ctx      context.Context
	serial   string

	props       map[string]string
	battery     *telemetry.Reading
	temperature *telemetry.Reading
}

func (mc *matchCall) property(name string) string {
	if value, ok := mc.props[name]; ok {
		return value
	}
	value, err := mc.selector.props.Property(mc.ctx, mc.serial, name)
	if err != nil {
		log.FromContext(mc.ctx).Debugf(
			"property %s query failed for device %s: %s",
			name, mc.serial, err.Error(),
		)
		value = ""
	}
	mc.props[name] = value
	return value
}

func (mc *matchCall) productVariant() (string, error) {
	if variant := mc.property(model.PropertyVariant); variant != "" {
		return variant, nil
	}
	return mc.property(model.PropertyVariantLegacy), nil
}

func (mc *matchCall) batteryLevel() telemetry.Reading {
	if mc.battery == nil {
		reading, err := mc.selector.telemetry.BatteryLevel(mc.ctx, mc.serial)
		if err != nil {
			log.FromContext(mc.ctx).Debugf(
				"battery query failed for device %s: %s",
				mc.serial, err.Error(),
			)
			reading = telemetry.Unavailable
		}
		mc.battery = &reading
	}
	return *mc.battery
}

func (mc *matchCall) batteryTemperature() telemetry.Reading {
	if mc.temperature == nil {
		reading, err := mc.selector.telemetry.BatteryTemperature(mc.ctx, mc.serial)
		if err != nil {
			log.FromContext(mc.ctx).Debugf(
				"battery temperature query failed for device %s: %s",
				mc.serial, err.Error(),
			)
			reading = telemetry.Unavailable
		}
		mc.temperature = &reading
	}
	return *mc.temperature
}

// matchKind applies the device kind gate. Virtual kinds only ever match
// when their flag is set explicitly.
func matchKind(kind model.DeviceKind, criteria *model.Criteria) bool {
	if requested := criteria.RequestedKind(); requested != "" {
		return kind == requested
	}
	return !kind.Virtual()
}

func matchSerial(serial string, criteria *model.Criteria) bool {
	if serials := criteria.EffectiveSerials(); len(serials) > 0 &&
		!containsString(serials, serial) {
		return false
	}
	return !containsString(criteria.ExcludeSerials, serial)
}

func (mc *matchCall) matchProductType(criteria *model.Criteria) bool {
	if len(criteria.ProductTypes) == 0 {
		return true
	}
	if board := mc.property(model.PropertyBoard); board != "" &&
		containsString(criteria.ProductTypes, board) {
		return true
	}
	variant, _ := mc.productVariant()
	return variant != "" && containsString(criteria.ProductTypes, variant)
}

func (mc *matchCall) matchProperties(criteria *model.Criteria) bool {
	for name, want := range criteria.Properties {
		if mc.property(name) != want {
			return false
		}
	}
	return true
}

// matchSDKLevel checks the SDK version bounds. A device whose SDK version
// property does not parse as an integer fails the match whenever a bound
// is configured.
func (mc *matchCall) matchSDKLevel(criteria *model.Criteria) bool {
	if criteria.MinSDKLevel == nil && criteria.MaxSDKLevel == nil {
		return true
	}
	sdk, err := strconv.Atoi(mc.property(model.PropertySDKVersion))
	if err != nil {
		return false
	}
	if criteria.MinSDKLevel != nil && sdk < *criteria.MinSDKLevel {
		return false
	}
	if criteria.MaxSDKLevel != nil && sdk > *criteria.MaxSDKLevel {
		return false
	}
	return true
}

func (mc *matchCall) matchTelemetry(
	kind model.DeviceKind,
	criteria *model.Criteria,
) bool {
	switch kind {
	case model.KindFastboot:
		// Fastboot exposes no battery service, so any configured bound
		// can never be satisfied.
		return !criteria.HasBatteryBounds() &&
			!criteria.HasTemperatureBounds()
	case model.KindPhysical:
		return mc.matchBattery(criteria) &&
			mc.matchTemperature(criteria)
	default:
		return true
	}
}

func (mc *matchCall) matchBattery(criteria *model.Criteria) bool {
	required := criteria.HasBatteryBounds()
	if criteria.RequireBatteryCheck != nil {
		required = *criteria.RequireBatteryCheck
	}
	if !required && !criteria.HasBatteryBounds() {
		return true
	}
	reading := mc.batteryLevel()
	if !reading.Available {
		return !required
	}
	if criteria.MinBattery != nil && reading.Value < *criteria.MinBattery {
		return false
	}
	if criteria.MaxBattery != nil && reading.Value > *criteria.MaxBattery {
		return false
	}
	return true
}

// matchTemperature compares the device reading, reported in tenths of a
// degree, against bounds configured in whole degrees.
func (mc *matchCall) matchTemperature(criteria *model.Criteria) bool {
	required := criteria.HasTemperatureBounds()
	if criteria.RequireBatteryTemperatureCheck != nil {
		required = *criteria.RequireBatteryTemperatureCheck
	}
	if !required && !criteria.HasTemperatureBounds() {
		return true
	}
	reading := mc.batteryTemperature()
	if !reading.Available {
		return !required
	}
	if criteria.MinBatteryTemperature != nil &&
		reading.Value < *criteria.MinBatteryTemperature*10 {
		return false
	}
	if criteria.MaxBatteryTemperature != nil &&
		reading.Value > *criteria.MaxBatteryTemperature*10 {
		return false
	}
	return true
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
