// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"strconv"
)

// Power is a power limit in microwatts as exposed by hwmon power1_cap* files
type Power uint64

const (
	MicroWatt Power = 1
	MilliWatt       = 1000 * MicroWatt
	Watt            = 1000 * MilliWatt
)

// MicroWatts returns the raw value
func (p Power) MicroWatts() uint64 {
	return uint64(p)
}

// MilliWatts returns the value truncated to milliwatts
func (p Power) MilliWatts() uint64 {
	return uint64(p / MilliWatt)
}

// Watts returns the value in watts
func (p Power) Watts() float64 {
	return float64(p) / float64(Watt)
}

// Text returns the decimal representation written to sysfs
func (p Power) Text() string {
	return strconv.FormatUint(uint64(p), 10)
}

func (p Power) String() string {
	return fmt.Sprintf("%.2fW", p.Watts())
}

// CapValue is a power cap that may be absent because its source file
// could not be read or parsed.
type CapValue struct {
	power Power
	ok    bool
}

// Present returns a CapValue holding p
func Present(p Power) CapValue {
	return CapValue{power: p, ok: true}
}

// Absent returns an empty CapValue
func Absent() CapValue {
	return CapValue{}
}

// Get returns the power and whether it is present
func (c CapValue) Get() (Power, bool) {
	return c.power, c.ok
}

// IsPresent reports whether a value was read
func (c CapValue) IsPresent() bool {
	return c.ok
}

func (c CapValue) String() string {
	if !c.ok {
		return "n/a"
	}
	return c.power.String()
}
