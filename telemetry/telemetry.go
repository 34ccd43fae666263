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

package telemetry

import "context"

// Reading is one telemetry sample. Unavailable readings carry no value;
// callers must check Available instead of relying on a sentinel number.
type Reading struct {
	Value     int
	Available bool
}

// Available returns an available reading with the given value.
func Available(value int) Reading {
	return Reading{Value: value, Available: true}
}

// Unavailable is the reading returned when a device exposes no data for
// the queried metric.
var Unavailable = Reading{}

// Source provides live device telemetry. Implementations query the
// underlying device transport; a failed query is reported as an error and
// only fails the match attempt that issued it.
type Source interface {
	// BatteryLevel returns the battery charge percentage.
	BatteryLevel(ctx context.Context, serial string) (Reading, error)
	// BatteryTemperature returns the battery temperature in tenths of a
	// degree Celsius. A raw reading of zero is reported as unavailable.
	BatteryTemperature(ctx context.Context, serial string) (Reading, error)
}
