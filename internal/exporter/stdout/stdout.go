// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/sustainable-computing-io/powercap/internal/device"
)

// Report is the power cap state of a located GPU
type Report struct {
	Card  string
	Hwmon string
	Info  *device.GPUInfo // nil when the card is not an amdgpu
	Caps  device.Caps
}

// Exporter renders reports as tables
type Exporter struct {
	out io.Writer
}

// NewExporter creates an Exporter writing to w
func NewExporter(w io.Writer) *Exporter {
	return &Exporter{out: w}
}

// Export writes the device and power cap tables
func (e *Exporter) Export(r Report) {
	_, _ = fmt.Fprintf(e.out, "Card:  %s\nHwmon: %s\n", r.Card, r.Hwmon)
	if r.Info != nil {
		_, _ = fmt.Fprintf(e.out, "GPU:   %s busy=%d%% vram=%s %d/%d MiB level=%s\n",
			r.Info.UniqueID, r.Info.BusyPercent, r.Info.VRAMVendor,
			r.Info.VRAMUsed>>20, r.Info.VRAMSize>>20, r.Info.PerformanceLevel)
	}
	_, _ = fmt.Fprintln(e.out)

	table := tablewriter.NewWriter(e.out)
	table.SetHeader([]string{"Limit", "File", "Value (µW)", "Value"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)

	rows := []struct {
		name  string
		file  string
		value device.CapValue
	}{
		{"current", device.ControlFile, r.Caps.Current},
		{"default", device.DefaultCapFile, r.Caps.Default},
		{"min", device.MinCapFile, r.Caps.Min},
		{"max", device.MaxCapFile, r.Caps.Max},
	}
	for _, row := range rows {
		raw := "n/a"
		if p, ok := row.value.Get(); ok {
			raw = p.Text()
		}
		table.Append([]string{row.name, row.file, raw, row.value.String()})
	}
	table.Render()
}
