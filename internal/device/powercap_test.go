// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"bytes"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sustainable-computing-io/powercap/internal/device/devicetest"
)

func newTestTransfer(t *testing.T, hwmon string) (*Transfer, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewTransfer(hwmon, WithTransferOutput(out), WithTransferLogger(logger)), out, logs
}

func TestAction(t *testing.T) {
	tests := []struct {
		action Action
		name   string
		file   string
	}{
		{RestoreDefault, "default", "power1_cap_default"},
		{SetToMin, "minimal", "power1_cap_min"},
		{SetToMax, "maximal", "power1_cap_max"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.name, tc.action.String())
			assert.Equal(t, tc.file, tc.action.SourceFile())
		})
	}

	invalid := Action(42)
	assert.Empty(t, invalid.SourceFile())
	assert.Equal(t, "Action(42)", invalid.String())
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in       string
		expected Action
		wantErr  bool
	}{
		{"min", SetToMin, false},
		{"max", SetToMax, false},
		{"default", RestoreDefault, false},
		{" MAX ", SetToMax, false},
		{"", SetToMin, true},
		{"maximum", SetToMin, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAction(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestReadValue(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected CapValue
		logged   string
	}{
		{"plain", "75000000", Present(75000000), ""},
		{"trailing newline", "75000000\n", Present(75000000), ""},
		{"surrounding spaces", "  120000000 \n", Present(120000000), ""},
		{"only first line", "42\n43\n", Present(42), ""},
		{"zero", "0\n", Present(0), ""},
		{"max uint64", "18446744073709551615\n", Present(math.MaxUint64), ""},
		{"not a number", "N/A\n", Absent(), "Unable to convert"},
		{"negative", "-1\n", Absent(), "Unable to convert"},
		{"overflow", "18446744073709551616\n", Absent(), "Unable to convert"},
		{"empty", "", Absent(), "Unable to convert"},
		{"hex", "0x10\n", Absent(), "Unable to convert"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, MinCapFile)
			devicetest.WriteFile(t, path, tc.content)

			tr, _, logs := newTestTransfer(t, dir)
			assert.Equal(t, tc.expected, tr.ReadValue(path))
			if tc.logged != "" {
				assert.Contains(t, logs.String(), tc.logged)
				assert.Contains(t, logs.String(), "level=ERROR")
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		dir := t.TempDir()
		tr, _, logs := newTestTransfer(t, dir)
		v := tr.ReadValue(filepath.Join(dir, MaxCapFile))
		assert.False(t, v.IsPresent())
		assert.NotContains(t, logs.String(), "level=ERROR")
	})
}

func TestReadPowerWrapsErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := readPower(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrReadParse)
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(dir, "bad")
	devicetest.WriteFile(t, path, "abc")
	_, err = readPower(path)
	assert.ErrorIs(t, err, ErrReadParse)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
}

func TestWriteValue(t *testing.T) {
	t.Run("absent value", func(t *testing.T) {
		dir := t.TempDir()
		tr, out, _ := newTestTransfer(t, dir)

		err := tr.WriteValue(tr.ControlPath(), Absent())
		assert.ErrorIs(t, err, ErrNoData)
		assert.Empty(t, out.String())
		assert.NoFileExists(t, tr.ControlPath())
	})

	t.Run("truncates existing content", func(t *testing.T) {
		dir := t.TempDir()
		tr, out, _ := newTestTransfer(t, dir)
		devicetest.WriteFile(t, tr.ControlPath(), "999999999999\n")

		require.NoError(t, tr.WriteValue(tr.ControlPath(), Present(75000000)))
		assert.Equal(t, "75000000", devicetest.ReadFile(t, tr.ControlPath()))
		assert.Equal(t, "Trying to write 75000 to "+tr.ControlPath()+"...\n", out.String())
	})

	t.Run("control file cannot be opened", func(t *testing.T) {
		dir := t.TempDir()
		tr, out, _ := newTestTransfer(t, dir)
		require.NoError(t, os.MkdirAll(tr.ControlPath(), 0o755))

		err := tr.WriteValue(tr.ControlPath(), Present(75000000))
		assert.ErrorIs(t, err, ErrPermissionDenied)
		// progress is reported before the attempt
		assert.Contains(t, out.String(), "Trying to write 75000")
	})
}

func TestWriteReadRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 999, 1000, 75000000, 1 << 32, math.MaxInt64, math.MaxUint64 - 1, math.MaxUint64}
	dir := t.TempDir()
	tr, _, _ := newTestTransfer(t, dir)

	for _, v := range values {
		require.NoError(t, tr.WriteValue(tr.ControlPath(), Present(Power(v))))
		got, ok := tr.ReadValue(tr.ControlPath()).Get()
		require.True(t, ok)
		assert.Equal(t, v, got.MicroWatts())
	}
}

func TestTransferApply(t *testing.T) {
	hwmon := devicetest.FakeHwmon{
		Name:    "hwmon3",
		Cap:     "150000000",
		Default: "180000000",
		Min:     "75000000",
		Max:     "210000000",
	}

	tests := []struct {
		action   Action
		expected string
	}{
		{SetToMin, "75000000"},
		{SetToMax, "210000000"},
		{RestoreDefault, "180000000"},
	}
	for _, tc := range tests {
		t.Run(tc.action.String(), func(t *testing.T) {
			fs := devicetest.NewFakeSysFS(t, devicetest.FakeCard{Name: "card0", Hwmon: []devicetest.FakeHwmon{hwmon}})
			tr, _, _ := newTestTransfer(t, fs.HwmonPath("card0", "hwmon3"))

			assert.Equal(t, filepath.Join(fs.HwmonPath("card0", "hwmon3"), tc.action.SourceFile()), tr.SourcePath(tc.action))
			require.NoError(t, tr.Apply(tc.action))
			assert.Equal(t, tc.expected, devicetest.ReadFile(t, tr.ControlPath()))

			// a second run leaves the same content behind
			require.NoError(t, tr.Apply(tc.action))
			assert.Equal(t, tc.expected, devicetest.ReadFile(t, tr.ControlPath()))
		})
	}
}

func TestTransferApplyFailures(t *testing.T) {
	t.Run("unparsable source", func(t *testing.T) {
		fs := devicetest.NewFakeSysFS(t, devicetest.FakeCard{
			Name:  "card0",
			Hwmon: []devicetest.FakeHwmon{{Name: "hwmon0", Cap: "150000000", Max: "N/A"}},
		})
		tr, out, logs := newTestTransfer(t, fs.HwmonPath("card0", "hwmon0"))

		err := tr.Apply(SetToMax)
		assert.ErrorIs(t, err, ErrNoData)
		assert.Contains(t, logs.String(), "Unable to convert")
		assert.Empty(t, out.String())
		assert.Equal(t, "150000000", devicetest.ReadFile(t, tr.ControlPath()))
	})

	t.Run("missing source", func(t *testing.T) {
		fs := devicetest.NewFakeSysFS(t, devicetest.FakeCard{
			Name:  "card0",
			Hwmon: []devicetest.FakeHwmon{{Name: "hwmon0", Cap: "150000000"}},
		})
		tr, _, _ := newTestTransfer(t, fs.HwmonPath("card0", "hwmon0"))
		assert.ErrorIs(t, tr.Apply(RestoreDefault), ErrNoData)
	})

	t.Run("invalid action", func(t *testing.T) {
		tr, _, _ := newTestTransfer(t, t.TempDir())
		assert.Error(t, tr.Apply(Action(-1)))
	})
}

func TestTransferCaps(t *testing.T) {
	fs := devicetest.NewFakeSysFS(t, devicetest.FakeCard{
		Name:  "card0",
		Hwmon: []devicetest.FakeHwmon{{Name: "hwmon0", Cap: "150000000", Min: "75000000", Max: "N/A"}},
	})
	tr, out, _ := newTestTransfer(t, fs.HwmonPath("card0", "hwmon0"))

	caps := tr.Caps()
	assert.Equal(t, Present(150000000), caps.Current)
	assert.Equal(t, Absent(), caps.Default)
	assert.Equal(t, Present(75000000), caps.Min)
	assert.Equal(t, Absent(), caps.Max)
	assert.Empty(t, out.String())
}
