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

import (
	"bufio"
	"strconv"
	"strings"
)

// Battery dump field names
const (
	dumpFieldLevel       = "level"
	dumpFieldTemperature = "temperature"
)

// BatteryDump is the parsed form of a "dumpsys battery" style key:value
// text dump.
type BatteryDump struct {
	Level       Reading
	Temperature Reading
}

// ParseBatteryDump extracts the battery level and temperature from a
// structured key:value dump. Fields that are absent or do not parse as
// integers yield unavailable readings. The temperature field is in tenths
// of a degree Celsius; a value of exactly zero is treated as unavailable
// since the service reports zero when it has no probe data.
func ParseBatteryDump(out string) BatteryDump {
	dump := BatteryDump{
		Level:       Unavailable,
		Temperature: Unavailable,
	}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		key, value, ok := splitDumpLine(scanner.Text())
		if !ok {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		switch key {
		case dumpFieldLevel:
			dump.Level = Available(n)
		case dumpFieldTemperature:
			if n != 0 {
				dump.Temperature = Available(n)
			}
		}
	}
	return dump
}

func splitDumpLine(line string) (key, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	return key, value, key != "" && value != ""
}
