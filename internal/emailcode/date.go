// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package emailcode

import (
	"strings"
	"time"
)

// Numeric offsets are tried before zone names.
var (
	offsetLayouts = []string{
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
	}
	zoneLayouts = []string{
		"Mon, 2 Jan 2006 15:04:05",
		"2 Jan 2006 15:04:05",
	}
)

// rfc5322Zones are the only zone names accepted, with their fixed offsets in
// hours. Any other name leaves the timestamp unparsed.
var rfc5322Zones = map[string]int{
	"UT": 0, "UTC": 0, "GMT": 0, "Z": 0,
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
}

// Timestamp is a Date header value. When Parsed is false only Raw is
// meaningful and the message cannot be compared against a threshold.
type Timestamp struct {
	Time   time.Time
	Raw    string
	Parsed bool
}

func (t Timestamp) String() string {
	if t.Parsed {
		return t.Time.Format(time.RFC3339)
	}
	return t.Raw
}

// ParseDate normalises a Date header to UTC. A trailing comment such as
// " (UTC)" is ignored.
func ParseDate(raw string) Timestamp {
	ts := Timestamp{Raw: raw}

	value := raw
	if i := strings.Index(value, " ("); i >= 0 {
		value = value[:i]
	}
	value = strings.TrimSpace(value)

	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			ts.Time = t.UTC()
			ts.Parsed = true
			return ts
		}
	}

	if t, ok := parseZoneName(value); ok {
		ts.Time = t
		ts.Parsed = true
	}
	return ts
}

// parseZoneName handles a trailing zone name such as "GMT" or "EST".
func parseZoneName(value string) (time.Time, bool) {
	i := strings.LastIndexByte(value, ' ')
	if i < 0 {
		return time.Time{}, false
	}
	name := strings.ToUpper(value[i+1:])
	hours, ok := rfc5322Zones[name]
	if !ok {
		return time.Time{}, false
	}

	loc := time.FixedZone(name, hours*3600)
	for _, layout := range zoneLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(value[:i]), loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
