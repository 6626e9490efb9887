// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "errors"

var (
	// ErrDeviceNotFound is returned when no card directory exists under the drm root
	ErrDeviceNotFound = errors.New("unable to find gpu")

	// ErrSensorNotFound is returned when a card has no hwmon directory
	ErrSensorNotFound = errors.New("unable to find hwmon entries")

	// ErrReadParse is reported when a source file is unreadable or not an unsigned integer
	ErrReadParse = errors.New("unable to read power cap")

	// ErrNoData is returned when there is no value to write
	ErrNoData = errors.New("no data available")

	// ErrPermissionDenied is returned when the control file cannot be opened for writing
	ErrPermissionDenied = errors.New("permission denied")
)
