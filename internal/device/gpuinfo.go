// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"path/filepath"

	"github.com/prometheus/procfs/sysfs"
)

// GPUInfo describes an amdgpu card
type GPUInfo struct {
	Name             string
	UniqueID         string
	BusyPercent      uint64
	VRAMVendor       string
	VRAMSize         uint64
	VRAMUsed         uint64
	PerformanceLevel string
}

// gpuInfoReader is an interface to prometheus/procfs/sysfs, used for mocking in tests
type gpuInfoReader interface {
	AMDGPUCards() ([]sysfs.ClassDRMCardAMDGPUStats, error)
}

type procfsGPUInfoReader struct {
	fs sysfs.FS
}

func (r *procfsGPUInfoReader) AMDGPUCards() ([]sysfs.ClassDRMCardAMDGPUStats, error) {
	return r.fs.ClassDRMCardAMDGPUStats()
}

func newGPUInfoReader(sysfsPath string) (gpuInfoReader, error) {
	fs, err := sysfs.NewFS(sysfsPath)
	if err != nil {
		return nil, err
	}
	return &procfsGPUInfoReader{fs: fs}, nil
}

// LookupGPUInfo returns amdgpu details for the card directory located under sysfsPath
func LookupGPUInfo(sysfsPath, card string) (*GPUInfo, error) {
	r, err := newGPUInfoReader(sysfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs: %w", err)
	}
	return lookupGPUInfo(r, card)
}

func lookupGPUInfo(r gpuInfoReader, card string) (*GPUInfo, error) {
	cards, err := r.AMDGPUCards()
	if err != nil {
		return nil, fmt.Errorf("failed to read amdgpu cards: %w", err)
	}

	name := filepath.Base(card)
	for _, c := range cards {
		if c.Name != name {
			continue
		}
		return &GPUInfo{
			Name:             c.Name,
			UniqueID:         c.UniqueID,
			BusyPercent:      c.GPUBusyPercent,
			VRAMVendor:       c.MemoryVRAMVendor,
			VRAMSize:         c.MemoryVRAMSize,
			VRAMUsed:         c.MemoryVRAMUsed,
			PerformanceLevel: c.PowerDPMForcePerformanceLevel,
		}, nil
	}
	return nil, fmt.Errorf("%s is not an amdgpu card", name)
}
