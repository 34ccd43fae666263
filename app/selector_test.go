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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/testfarm/devicehub/model"
	"github.com/testfarm/devicehub/telemetry"
)

const (
	testSerial         = "12345"
	testEmulatorSerial = "emulator-5554"
)

type fakeProps map[string]map[string]string

func (f fakeProps) Property(
	_ context.Context,
	serial, name string,
) (string, error) {
	return f[serial][name], nil
}

type fakeTelemetry struct {
	battery     map[string]telemetry.Reading
	temperature map[string]telemetry.Reading
	err         error
}

func (f *fakeTelemetry) BatteryLevel(
	_ context.Context,
	serial string,
) (telemetry.Reading, error) {
	if f.err != nil {
		return telemetry.Unavailable, f.err
	}
	return f.battery[serial], nil
}

func (f *fakeTelemetry) BatteryTemperature(
	_ context.Context,
	serial string,
) (telemetry.Reading, error) {
	if f.err != nil {
		return telemetry.Unavailable, f.err
	}
	return f.temperature[serial], nil
}

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func device(serial string, kind model.DeviceKind) *model.Device {
	return &model.Device{
		Serial: serial,
		Kind:   kind,
		State:  model.StateFree,
	}
}

func newTestSelector(props fakeProps, source *fakeTelemetry) *Selector {
	if props == nil {
		props = fakeProps{}
	}
	if source == nil {
		source = &fakeTelemetry{}
	}
	return NewSelector(props, source)
}

func TestMatchesKindGating(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		Name string

		Kind     model.DeviceKind
		Criteria model.Criteria

		Matches bool
	}{{
		Name: "physical matches by default",
		Kind: model.KindPhysical, Matches: true,
	}, {
		Name: "emulator matches by default",
		Kind: model.KindEmulator, Matches: true,
	}, {
		Name: "fastboot matches by default",
		Kind: model.KindFastboot, Matches: true,
	}, {
		Name: "stub emulator does not match by default",
		Kind: model.KindStubEmulator, Matches: false,
	}, {
		Name: "null device does not match by default",
		Kind: model.KindNullDevice, Matches: false,
	}, {
		Name: "tcp device does not match by default",
		Kind: model.KindTCPDevice, Matches: false,
	}, {
		Name: "stub emulator matches when requested",
		Kind: model.KindStubEmulator,
		Criteria: model.Criteria{StubEmulatorRequested: true},
		Matches: true,
	}, {
		Name: "null device matches when requested",
		Kind: model.KindNullDevice,
		Criteria: model.Criteria{NullDeviceRequested: true},
		Matches: true,
	}, {
		Name: "tcp device matches when requested",
		Kind: model.KindTCPDevice,
		Criteria: model.Criteria{TCPDeviceRequested: true},
		Matches: true,
	}, {
		Name: "physical does not match null request",
		Kind: model.KindPhysical,
		Criteria: model.Criteria{NullDeviceRequested: true},
		Matches: false,
	}, {
		Name: "physical matches physical request",
		Kind: model.KindPhysical,
		Criteria: model.Criteria{PhysicalDeviceRequested: true},
		Matches: true,
	}, {
		Name: "emulator does not match physical request",
		Kind: model.KindEmulator,
		Criteria: model.Criteria{PhysicalDeviceRequested: true},
		Matches: false,
	}, {
		Name: "fastboot does not match physical request",
		Kind: model.KindFastboot,
		Criteria: model.Criteria{PhysicalDeviceRequested: true},
		Matches: false,
	}, {
		Name: "emulator matches emulator request",
		Kind: model.KindEmulator,
		Criteria: model.Criteria{EmulatorRequested: true},
		Matches: true,
	}, {
		Name: "physical does not match emulator request",
		Kind: model.KindPhysical,
		Criteria: model.Criteria{EmulatorRequested: true},
		Matches: false,
	}}

	selector := newTestSelector(nil, nil)
	for i := range testCases {
		tc := testCases[i]
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			tc.Criteria.ResolveEnv = envReturning("")
			matches := selector.Matches(context.Background(),
				device(testSerial, tc.Kind), &tc.Criteria)
			assert.Equal(t, tc.Matches, matches)
		})
	}
}

func TestMatchesSerialFilter(t *testing.T) {
	t.Parallel()

	selector := newTestSelector(nil, nil)
	ctx := context.Background()

	criteria := &model.Criteria{
		Serials:    []string{"A"},
		ResolveEnv: envReturning(""),
	}
	assert.True(t, selector.Matches(ctx,
		device("A", model.KindPhysical), criteria))
	assert.False(t, selector.Matches(ctx,
		device("B", model.KindPhysical), criteria))

	criteria = &model.Criteria{
		ExcludeSerials: []string{"B"},
		ResolveEnv:     envReturning(""),
	}
	assert.True(t, selector.Matches(ctx,
		device("A", model.KindPhysical), criteria))
	assert.False(t, selector.Matches(ctx,
		device("B", model.KindPhysical), criteria))

	// The environment fallback behaves like an explicit serial filter.
	criteria = &model.Criteria{ResolveEnv: envReturning("A")}
	assert.True(t, selector.Matches(ctx,
		device("A", model.KindPhysical), criteria))
	assert.False(t, selector.Matches(ctx,
		device("B", model.KindPhysical), criteria))
}

func envReturning(value string) func(string) string {
	return func(string) string { return value }
}

func TestProductVariant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	selector := newTestSelector(fakeProps{
		testSerial: {model.PropertyVariantLegacy: "legacy"},
	}, nil)
	variant, err := selector.ProductVariant(ctx, testSerial)
	assert.NoError(t, err)
	assert.Equal(t, "legacy", variant)

	selector = newTestSelector(fakeProps{
		testSerial: {
			model.PropertyVariant:       "variant",
			model.PropertyVariantLegacy: "legacy",
		},
	}, nil)
	variant, err = selector.ProductVariant(ctx, testSerial)
	assert.NoError(t, err)
	assert.Equal(t, "variant", variant)
}

func TestMatchesProductType(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	testCases := []struct {
		Name string

		Props    map[string]string
		Criteria model.Criteria

		Matches bool
	}{{
		Name: "ok, board match",

		Props:    map[string]string{model.PropertyBoard: "charm"},
		Criteria: model.Criteria{ProductTypes: []string{"charm"}},
		Matches:  true,
	}, {
		Name: "ok, variant match",

		Props: map[string]string{
			model.PropertyBoard:         "other",
			model.PropertyVariantLegacy: "charm",
		},
		Criteria: model.Criteria{ProductTypes: []string{"charm"}},
		Matches:  true,
	}, {
		Name: "mismatch",

		Props:    map[string]string{model.PropertyBoard: "charm"},
		Criteria: model.Criteria{ProductTypes: []string{"strange"}},
		Matches:  false,
	}, {
		Name: "missing product type fails a configured filter",

		Props:    map[string]string{},
		Criteria: model.Criteria{ProductTypes: []string{"charm"}},
		Matches:  false,
	}, {
		Name: "missing product type passes without a filter",

		Props:   map[string]string{},
		Matches: true,
	}}

	for i := range testCases {
		tc := testCases[i]
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			selector := newTestSelector(
				fakeProps{testSerial: tc.Props}, nil)
			tc.Criteria.ResolveEnv = envReturning("")
			matches := selector.Matches(ctx,
				device(testSerial, model.KindPhysical), &tc.Criteria)
			assert.Equal(t, tc.Matches, matches)
		})
	}
}

func TestMatchesProperties(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	selector := newTestSelector(fakeProps{
		testSerial: {
			"prop1": "propvalue",
			"prop2": "propvalue2",
		},
	}, nil)
	dev := device(testSerial, model.KindPhysical)

	criteria := &model.Criteria{
		Properties: map[string]string{"prop1": "propvalue"},
		ResolveEnv: envReturning(""),
	}
	assert.True(t, selector.Matches(ctx, dev, criteria))

	criteria.Properties = map[string]string{"prop1": "wrongvalue"}
	assert.False(t, selector.Matches(ctx, dev, criteria))

	criteria.Properties = map[string]string{
		"prop1": "propvalue",
		"prop2": "propvalue2",
	}
	assert.True(t, selector.Matches(ctx, dev, criteria))

	criteria.Properties = map[string]string{
		"prop1": "propvalue",
		"prop2": "wrongpropvalue",
	}
	assert.False(t, selector.Matches(ctx, dev, criteria))
}

func TestMatchesSDKLevel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	testCases := []struct {
		Name string

		SDKVersion string
		Criteria   model.Criteria

		Matches bool
	}{{
		Name:       "min sdk pass",
		SDKVersion: "10",
		Criteria:   model.Criteria{MinSDKLevel: intPtr(10)},
		Matches:    true,
	}, {
		Name:       "min sdk fail",
		SDKVersion: "10",
		Criteria:   model.Criteria{MinSDKLevel: intPtr(15)},
		Matches:    false,
	}, {
		Name:       "max sdk pass",
		SDKVersion: "10",
		Criteria:   model.Criteria{MaxSDKLevel: intPtr(15)},
		Matches:    true,
	}, {
		Name:       "max sdk fail",
		SDKVersion: "25",
		Criteria:   model.Criteria{MaxSDKLevel: intPtr(15)},
		Matches:    false,
	}, {
		Name:       "non-numeric sdk fails min bound",
		SDKVersion: "blargh",
		Criteria:   model.Criteria{MinSDKLevel: intPtr(10)},
		Matches:    false,
	}, {
		Name:       "non-numeric sdk fails max bound",
		SDKVersion: "blargh",
		Criteria:   model.Criteria{MaxSDKLevel: intPtr(15)},
		Matches:    false,
	}, {
		Name:       "non-numeric sdk passes without bounds",
		SDKVersion: "blargh",
		Matches:    true,
	}}

	for i := range testCases {
		tc := testCases[i]
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			selector := newTestSelector(fakeProps{
				testSerial: {model.PropertySDKVersion: tc.SDKVersion},
			}, nil)
			tc.Criteria.ResolveEnv = envReturning("")
			matches := selector.Matches(ctx,
				device(testSerial, model.KindPhysical), &tc.Criteria)
			assert.Equal(t, tc.Matches, matches)
		})
	}
}

func TestMatchesBattery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	testCases := []struct {
		Name string

		Battery  telemetry.Reading
		Kind     model.DeviceKind
		Criteria model.Criteria

		Matches bool
	}{{
		Name:     "min battery pass",
		Battery:  telemetry.Available(50),
		Criteria: model.Criteria{MinBattery: intPtr(25)},
		Matches:  true,
	}, {
		Name:     "min battery fail",
		Battery:  telemetry.Available(50),
		Criteria: model.Criteria{MinBattery: intPtr(75)},
		Matches:  false,
	}, {
		Name:     "max battery pass",
		Battery:  telemetry.Available(50),
		Criteria: model.Criteria{MaxBattery: intPtr(75)},
		Matches:  true,
	}, {
		Name:     "max battery fail",
		Battery:  telemetry.Available(50),
		Criteria: model.Criteria{MaxBattery: intPtr(25)},
		Matches:  false,
	}, {
		Name:    "required check fails on unavailable reading",
		Battery: telemetry.Unavailable,
		Criteria: model.Criteria{
			RequireBatteryCheck: boolPtr(true),
		},
		Matches: false,
	}, {
		Name:    "disabled check passes unavailable reading with bound",
		Battery: telemetry.Unavailable,
		Criteria: model.Criteria{
			RequireBatteryCheck: boolPtr(false),
			MinBattery:          intPtr(25),
		},
		Matches: true,
	}, {
		Name:     "default check fails unavailable reading with bound",
		Battery:  telemetry.Unavailable,
		Criteria: model.Criteria{MinBattery: intPtr(25)},
		Matches:  false,
	}, {
		Name:     "default check passes unavailable reading without bound",
		Battery:  telemetry.Unavailable,
		Matches:  true,
	}, {
		Name:     "bounds are skipped for virtual kinds",
		Battery:  telemetry.Unavailable,
		Kind:     model.KindNullDevice,
		Criteria: model.Criteria{
			NullDeviceRequested: true,
			MinBattery:          intPtr(20),
		},
		Matches: true,
	}}

	for i := range testCases {
		tc := testCases[i]
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			if tc.Kind == "" {
				tc.Kind = model.KindPhysical
			}
			selector := newTestSelector(nil, &fakeTelemetry{
				battery: map[string]telemetry.Reading{
					testSerial: tc.Battery,
				},
			})
			tc.Criteria.ResolveEnv = envReturning("")
			matches := selector.Matches(ctx,
				device(testSerial, tc.Kind), &tc.Criteria)
			assert.Equal(t, tc.Matches, matches)
		})
	}
}

func TestMatchesBatteryTemperature(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	testCases := []struct {
		Name string

		Temperature telemetry.Reading
		Criteria    model.Criteria

		Matches bool
	}{{
		Name:        "max temperature pass",
		Temperature: telemetry.Available(500),
		Criteria: model.Criteria{
			MaxBatteryTemperature: intPtr(100),
		},
		Matches: true,
	}, {
		Name:        "max temperature fail",
		Temperature: telemetry.Available(1500),
		Criteria: model.Criteria{
			MaxBatteryTemperature: intPtr(100),
		},
		Matches: false,
	}, {
		Name:        "required check fails on unavailable reading",
		Temperature: telemetry.Unavailable,
		Criteria: model.Criteria{
			MaxBatteryTemperature:          intPtr(100),
			RequireBatteryTemperatureCheck: boolPtr(true),
		},
		Matches: false,
	}, {
		Name:        "disabled check passes unavailable reading",
		Temperature: telemetry.Unavailable,
		Criteria: model.Criteria{
			MaxBatteryTemperature:          intPtr(100),
			RequireBatteryTemperatureCheck: boolPtr(false),
		},
		Matches: true,
	}, {
		Name:        "min temperature fail",
		Temperature: telemetry.Available(150),
		Criteria: model.Criteria{
			MinBatteryTemperature: intPtr(20),
		},
		Matches: false,
	}}

	for i := range testCases {
		tc := testCases[i]
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			selector := newTestSelector(nil, &fakeTelemetry{
				temperature: map[string]telemetry.Reading{
					testSerial: tc.Temperature,
				},
			})
			tc.Criteria.ResolveEnv = envReturning("")
			matches := selector.Matches(ctx,
				device(testSerial, model.KindPhysical), &tc.Criteria)
			assert.Equal(t, tc.Matches, matches)
		})
	}
}

func TestMatchesFastboot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	selector := newTestSelector(nil, nil)
	dev := device(testSerial, model.KindFastboot)

	// No special conditions: eligible for allocation.
	assert.True(t, selector.Matches(ctx, dev, &model.Criteria{
		ResolveEnv: envReturning(""),
	}))

	// A fastboot device exposes no battery level, so a configured bound
	// can never match, regardless of the require flag.
	for _, flag := range []*bool{nil, boolPtr(true), boolPtr(false)} {
		criteria := &model.Criteria{
			MinBattery:          intPtr(20),
			RequireBatteryCheck: flag,
			ResolveEnv:          envReturning(""),
		}
		assert.False(t, selector.Matches(ctx, dev, criteria))
	}
}

func TestMatchesTelemetryError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	selector := newTestSelector(nil, &fakeTelemetry{
		err: errors.New("device did not respond"),
	})
	dev := device(testSerial, model.KindPhysical)

	// A failed fetch counts as an unavailable reading for this device
	// only.
	criteria := &model.Criteria{
		MinBattery: intPtr(25),
		ResolveEnv: envReturning(""),
	}
	assert.False(t, selector.Matches(ctx, dev, criteria))

	criteria.RequireBatteryCheck = boolPtr(false)
	assert.True(t, selector.Matches(ctx, dev, criteria))
}
