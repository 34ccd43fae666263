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

// Package adb bridges device property and telemetry queries to the shell
// transport of the device under management.
package adb

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/testfarm/devicehub/telemetry"
)

// CommandRunner executes a shell command on the device identified by
// serial and returns its combined output. It is injectable so tests can
// substitute canned transcripts.
type CommandRunner func(ctx context.Context, serial string, args ...string) (string, error)

// Client queries device properties and battery telemetry over the shell
// transport.
type Client struct {
	run CommandRunner
}

// NewClient returns a client using the given command runner. A nil runner
// falls back to invoking the adb binary on the host.
func NewClient(run CommandRunner) *Client {
	if run == nil {
		run = execRunner
	}
	return &Client{run: run}
}

func execRunner(ctx context.Context, serial string, args ...string) (string, error) {
	cmdArgs := append([]string{"-s", serial, "shell"}, args...)
	out, err := exec.CommandContext(ctx, "adb", cmdArgs...).CombinedOutput()
	if err != nil {
		return "", errors.Wrapf(err, "adb shell failed for device %s", serial)
	}
	return string(out), nil
}

// Property returns the value of the named device property, or the empty
// string when the property is not set on the device.
func (c *Client) Property(ctx context.Context, serial, name string) (string, error) {
	out, err := c.run(ctx, serial, "getprop", name)
	if err != nil {
		return "", errors.Wrapf(err, "failed to query property %s", name)
	}
	return strings.TrimSpace(out), nil
}

// BatteryLevel returns the battery charge percentage of the device.
func (c *Client) BatteryLevel(
	ctx context.Context,
	serial string,
) (telemetry.Reading, error) {
	dump, err := c.batteryDump(ctx, serial)
	if err != nil {
		return telemetry.Unavailable, err
	}
	return dump.Level, nil
}

// BatteryTemperature returns the battery temperature of the device in
// tenths of a degree Celsius.
func (c *Client) BatteryTemperature(
	ctx context.Context,
	serial string,
) (telemetry.Reading, error) {
	dump, err := c.batteryDump(ctx, serial)
	if err != nil {
		return telemetry.Unavailable, err
	}
	return dump.Temperature, nil
}

func (c *Client) batteryDump(
	ctx context.Context,
	serial string,
) (telemetry.BatteryDump, error) {
	out, err := c.run(ctx, serial, "dumpsys", "battery")
	if err != nil {
		return telemetry.BatteryDump{},
			errors.Wrap(err, "failed to query battery service")
	}
	return telemetry.ParseBatteryDump(out), nil
}
