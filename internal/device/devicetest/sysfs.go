// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package devicetest builds fake sysfs trees for tests.
//
// NOTE: This is not intended for production use.
package devicetest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// FakeHwmon describes the power cap files of a hwmon directory. Empty fields
// are not created.
type FakeHwmon struct {
	Name    string
	Cap     string
	Default string
	Min     string
	Max     string
}

// FakeCard describes a card directory under class/drm
type FakeCard struct {
	Name  string
	Hwmon []FakeHwmon
}

// FakeSysFS is a sysfs mount point created in a temp dir
type FakeSysFS struct {
	Root string
}

// NewFakeSysFS creates <tmp>/class/drm with the given cards
func NewFakeSysFS(t *testing.T, cards ...FakeCard) *FakeSysFS {
	t.Helper()

	fs := &FakeSysFS{Root: t.TempDir()}
	require.NoError(t, os.MkdirAll(fs.DRMRoot(), 0o755))
	for _, c := range cards {
		fs.AddCard(t, c)
	}
	return fs
}

// DRMRoot returns <root>/class/drm
func (fs *FakeSysFS) DRMRoot() string {
	return filepath.Join(fs.Root, "class", "drm")
}

// CardPath returns the path of a card directory
func (fs *FakeSysFS) CardPath(card string) string {
	return filepath.Join(fs.DRMRoot(), card)
}

// HwmonPath returns the path of a hwmon directory of a card
func (fs *FakeSysFS) HwmonPath(card, hwmon string) string {
	return filepath.Join(fs.CardPath(card), "device", "hwmon", hwmon)
}

// AddCard creates a card, its device/hwmon directory and its hwmon entries
func (fs *FakeSysFS) AddCard(t *testing.T, c FakeCard) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(fs.CardPath(c.Name), "device", "hwmon"), 0o755))
	for _, h := range c.Hwmon {
		dir := fs.HwmonPath(c.Name, h.Name)
		require.NoError(t, os.MkdirAll(dir, 0o755))

		files := map[string]string{
			"power1_cap":         h.Cap,
			"power1_cap_default": h.Default,
			"power1_cap_min":     h.Min,
			"power1_cap_max":     h.Max,
		}
		for name, content := range files {
			if content == "" {
				continue
			}
			WriteFile(t, filepath.Join(dir, name), content)
		}
	}
}

// AddFile creates a regular file relative to the drm root
func (fs *FakeSysFS) AddFile(t *testing.T, rel, content string) {
	t.Helper()
	WriteFile(t, filepath.Join(fs.DRMRoot(), rel), content)
}

// ReadFile returns the content of a file, failing the test on error
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// WriteFile writes content to path creating parent directories
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
