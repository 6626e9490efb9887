// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sustainable-computing-io/powercap/internal/device"
)

func TestExport(t *testing.T) {
	buf := &bytes.Buffer{}
	e := NewExporter(buf)

	e.Export(Report{
		Card:  "/sys/class/drm/card0",
		Hwmon: "/sys/class/drm/card0/device/hwmon/hwmon3",
		Caps: device.Caps{
			Current: device.Present(150 * device.Watt),
			Default: device.Present(180 * device.Watt),
			Min:     device.Present(75 * device.Watt),
			Max:     device.Absent(),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Card:  /sys/class/drm/card0\n")
	assert.Contains(t, out, "Hwmon: /sys/class/drm/card0/device/hwmon/hwmon3\n")
	assert.NotContains(t, out, "GPU:")
	assert.Contains(t, out, "Value (µW)")
	assert.Contains(t, out, "power1_cap_min")
	assert.Contains(t, out, "75000000")
	assert.Contains(t, out, "75.00W")
	assert.Contains(t, out, "180.00W")
	assert.Contains(t, out, "n/a")
}

func TestExportWithGPUInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	NewExporter(buf).Export(Report{
		Card:  "card0",
		Hwmon: "hwmon0",
		Info: &device.GPUInfo{
			Name:             "card0",
			UniqueID:         "0xabcd",
			BusyPercent:      12,
			VRAMVendor:       "hynix",
			VRAMSize:         8 << 30,
			VRAMUsed:         512 << 20,
			PerformanceLevel: "auto",
		},
	})

	assert.Contains(t, buf.String(), "GPU:   0xabcd busy=12% vram=hynix 512/8192 MiB level=auto\n")
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write([]byte) (int, error) {
	w.writes++
	return 0, errors.New("broken pipe")
}

func TestExportWriteErrorsIgnored(t *testing.T) {
	w := &failingWriter{}

	assert.NotPanics(t, func() {
		NewExporter(w).Export(Report{
			Card:  "card0",
			Hwmon: "hwmon0",
			Info:  &device.GPUInfo{Name: "card0"},
			Caps:  device.Caps{Current: device.Present(150 * device.Watt)},
		})
	})
	assert.Positive(t, w.writes)
}
