// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Action selects which driver provided limit is copied into the power cap
type Action int

const (
	RestoreDefault Action = iota
	SetToMin
	SetToMax
)

const (
	// ControlFile is the writable power cap file shared by all actions
	ControlFile = "power1_cap"

	DefaultCapFile = "power1_cap_default"
	MinCapFile     = "power1_cap_min"
	MaxCapFile     = "power1_cap_max"
)

var actionSources = [...]struct {
	name string
	file string
}{
	RestoreDefault: {"default", DefaultCapFile},
	SetToMin:       {"minimal", MinCapFile},
	SetToMax:       {"maximal", MaxCapFile},
}

// ParseAction converts a flag value (min, max or default) into an Action
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min":
		return SetToMin, nil
	case "max":
		return SetToMax, nil
	case "default":
		return RestoreDefault, nil
	}
	return SetToMin, fmt.Errorf("unknown action %q: must be one of min, max, default", s)
}

func (a Action) valid() bool {
	return a >= RestoreDefault && a <= SetToMax
}

// SourceFile returns the hwmon file holding the value for the action
func (a Action) SourceFile() string {
	if !a.valid() {
		return ""
	}
	return actionSources[a].file
}

func (a Action) String() string {
	if !a.valid() {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionSources[a].name
}

// Caps holds every power cap value exposed by a hwmon directory
type Caps struct {
	Current CapValue
	Default CapValue
	Min     CapValue
	Max     CapValue
}

// Transfer copies a driver provided limit into the power cap control file
type Transfer struct {
	hwmon  string
	out    io.Writer
	logger *slog.Logger
}

// TransferOptionFn configures a Transfer
type TransferOptionFn func(*Transfer)

// WithTransferLogger sets the logger used for diagnostics
func WithTransferLogger(logger *slog.Logger) TransferOptionFn {
	return func(t *Transfer) {
		t.logger = logger.With("service", "powercap")
	}
}

// WithTransferOutput sets where progress messages are written
func WithTransferOutput(w io.Writer) TransferOptionFn {
	return func(t *Transfer) {
		t.out = w
	}
}

// NewTransfer creates a Transfer operating on the given hwmon directory
func NewTransfer(hwmon string, opts ...TransferOptionFn) *Transfer {
	t := &Transfer{
		hwmon:  hwmon,
		out:    os.Stdout,
		logger: slog.Default().With("service", "powercap"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SourcePath returns the file read for the action
func (t *Transfer) SourcePath(a Action) string {
	return filepath.Join(t.hwmon, a.SourceFile())
}

// ControlPath returns the power cap control file
func (t *Transfer) ControlPath() string {
	return filepath.Join(t.hwmon, ControlFile)
}

// Apply reads the source value for the action and writes it to the control file
func (t *Transfer) Apply(a Action) error {
	if !a.valid() {
		return fmt.Errorf("invalid action: %s", a)
	}
	value := t.ReadValue(t.SourcePath(a))
	return t.WriteValue(t.ControlPath(), value)
}

// Caps reads the current cap and all driver provided limits
func (t *Transfer) Caps() Caps {
	return Caps{
		Current: t.ReadValue(t.ControlPath()),
		Default: t.ReadValue(filepath.Join(t.hwmon, DefaultCapFile)),
		Min:     t.ReadValue(filepath.Join(t.hwmon, MinCapFile)),
		Max:     t.ReadValue(filepath.Join(t.hwmon, MaxCapFile)),
	}
}

// ReadValue parses the first line of path as a decimal power value. Errors are
// logged and result in an absent value.
func (t *Transfer) ReadValue(path string) CapValue {
	p, err := readPower(path)
	if err == nil {
		return Present(p)
	}

	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		t.logger.Error("Unable to convert to unsigned value",
			"value", numErr.Num, "path", path, "error", numErr.Err)
	} else {
		t.logger.Debug("Could not read power cap", "path", path, "error", err)
	}
	return Absent()
}

// WriteValue writes value in decimal to path, truncating the file
func (t *Transfer) WriteValue(path string, value CapValue) error {
	p, ok := value.Get()
	if !ok {
		return ErrNoData
	}

	_, _ = fmt.Fprintf(t.out, "Trying to write %d to %s...\n", p.MilliWatts(), path)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	if _, err := f.WriteString(p.Text()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	t.logger.Debug("Wrote power cap", "path", path, "power", p)
	return nil
}

func readPower(path string) (Power, error) {
	data, err := sysReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrReadParse, err)
	}

	line, _, _ := strings.Cut(string(data), "\n")
	v, err := strconv.ParseUint(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrReadParse, err)
	}
	return Power(v), nil
}

// sysReadFile reads a sysfs attribute with a single read(2). Some hwmon
// drivers return EAGAIN, which makes os.ReadFile poll forever.
func sysReadFile(file string) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	b := make([]byte, 128)
	n, err := unix.Read(int(f.Fd()), b)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("failed to read file: %q, read returned negative bytes value: %d", file, n)
	}
	return b[:n], nil
}
