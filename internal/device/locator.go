// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// CardPrefix is the name prefix of drm card directories
	CardPrefix = "card"

	drmClassPath = "class/drm"
	hwmonSubPath = "device/hwmon"
)

// Locator finds the first GPU card and its hwmon directory under a sysfs mount
type Locator struct {
	root   string // <sysfs>/class/drm
	logger *slog.Logger
}

// LocatorOptionFn configures a Locator
type LocatorOptionFn func(*Locator)

// WithLocatorLogger sets the logger for the Locator
func WithLocatorLogger(logger *slog.Logger) LocatorOptionFn {
	return func(l *Locator) {
		l.logger = logger.With("service", "locator")
	}
}

// NewLocator creates a Locator for the drm class directory of sysfsPath
func NewLocator(sysfsPath string, opts ...LocatorOptionFn) *Locator {
	l := &Locator{
		root:   filepath.Join(sysfsPath, drmClassPath),
		logger: slog.Default().With("service", "locator"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Root returns the drm class directory being scanned
func (l *Locator) Root() string {
	return l.root
}

// FindCard returns the path of the first card directory in directory order,
// or an empty string if there is none or the root cannot be read.
func (l *Locator) FindCard() string {
	entries, err := readDirUnsorted(l.root)
	if err != nil {
		l.logger.Debug("Could not read drm class directory", "path", l.root, "error", err)
		return ""
	}

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), CardPrefix) {
			continue
		}
		path := filepath.Join(l.root, entry.Name())
		if !isDir(path) {
			continue
		}
		l.logger.Debug("Found card", "path", path)
		return path
	}
	return ""
}

// FindHwmon returns the first directory under <card>/device/hwmon, or an
// empty string if there is none.
func (l *Locator) FindHwmon(card string) string {
	base := filepath.Join(card, hwmonSubPath)
	entries, err := readDirUnsorted(base)
	if err != nil {
		l.logger.Debug("Could not read hwmon directory", "path", base, "error", err)
		return ""
	}

	for _, entry := range entries {
		path := filepath.Join(base, entry.Name())
		if !isDir(path) {
			continue
		}
		l.logger.Debug("Found hwmon", "path", path)
		return path
	}
	return ""
}

// readDirUnsorted lists a directory in the order the filesystem reports it.
// os.ReadDir sorts by name which would change which entry is "first".
func readDirUnsorted(path string) ([]os.DirEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return f.ReadDir(-1)
}

// isDir follows symlinks; sysfs class entries are links to device directories
func isDir(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.IsDir()
}
