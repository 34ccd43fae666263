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
	"testing"

	"github.com/stretchr/testify/assert"
)

func envReturning(value string) func(string) string {
	return func(name string) string {
		if name == EnvSerial {
			return value
		}
		return ""
	}
}

func TestEffectiveSerials(t *testing.T) {
	t.Parallel()

	// The environment serial applies only when no serial was requested
	// explicitly.
	criteria := &Criteria{ResolveEnv: envReturning("6789")}
	assert.Equal(t, []string{"6789"}, criteria.EffectiveSerials())

	criteria.Serials = []string{"12345"}
	assert.Equal(t, []string{"12345"}, criteria.EffectiveSerials())

	criteria = &Criteria{ResolveEnv: envReturning("")}
	assert.Empty(t, criteria.EffectiveSerials())

	criteria.Serials = []string{"12345"}
	assert.Equal(t, []string{"12345"}, criteria.EffectiveSerials())
}

func TestRequestedKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DeviceKind(""), (&Criteria{}).RequestedKind())
	assert.Equal(t, KindEmulator,
		(&Criteria{EmulatorRequested: true}).RequestedKind())
	assert.Equal(t, KindNullDevice,
		(&Criteria{NullDeviceRequested: true}).RequestedKind())
}

func TestCriteriaValidate(t *testing.T) {
	t.Parallel()

	intPtr := func(n int) *int { return &n }

	testCases := []struct {
		Name string

		Criteria Criteria
		Error    bool
	}{{
		Name:     "ok, empty",
		Criteria: Criteria{},
	}, {
		Name: "ok, single kind flag",
		Criteria: Criteria{
			PhysicalDeviceRequested: true,
			MinBattery:              intPtr(20),
		},
	}, {
		Name: "error, conflicting kind flags",
		Criteria: Criteria{
			EmulatorRequested:   true,
			NullDeviceRequested: true,
		},
		Error: true,
	}, {
		Name: "error, battery out of range",
		Criteria: Criteria{
			MinBattery: intPtr(101),
		},
		Error: true,
	}, {
		Name: "error, inverted sdk bounds",
		Criteria: Criteria{
			MinSDKLevel: intPtr(30),
			MaxSDKLevel: intPtr(21),
		},
		Error: true,
	}}

	for i := range testCases {
		tc := testCases[i]
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			err := tc.Criteria.Validate()
			if tc.Error {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFreeDeviceStatePoolState(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StateFree, FreeDeviceAvailable.PoolState())
	assert.Equal(t, StateUnavailable, FreeDeviceUnavailable.PoolState())
	assert.Equal(t, StateUnavailable, FreeDeviceUnresponsive.PoolState())
	assert.Equal(t, StateIgnored, FreeDeviceIgnored.PoolState())
}
