// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/sustainable-computing-io/powercap/config"
	"github.com/sustainable-computing-io/powercap/internal/device"
	"github.com/sustainable-computing-io/powercap/internal/exporter/stdout"
	"github.com/sustainable-computing-io/powercap/internal/logger"
)

const (
	exitOK    = 0
	exitError = 1
)

// errUsageShown is returned after help output was written
var errUsageShown = errors.New("usage shown")

// options are command only settings that are not part of the config file
type options struct {
	status bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, outW, errW io.Writer) int {
	cfg, opts, err := parseArgsAndConfig(args, outW, errW)
	if errors.Is(err, errUsageShown) {
		return exitOK
	}
	if err != nil {
		_, _ = fmt.Fprintf(errW, "powercap: error: %s\n", err)
		return exitError
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, errW)
	log.Debug("Effective configuration", "config", cfg.String())

	action, err := device.ParseAction(cfg.PowerCap.Action)
	if err != nil {
		log.Error("Invalid action", "error", err)
		return exitError
	}

	if cfg.IsVerbose() && !opts.status {
		_, _ = fmt.Fprintf(outW, "Setting power-target to %s...\n", action)
	}

	locator := device.NewLocator(cfg.Host.SysFS, device.WithLocatorLogger(log))
	card := locator.FindCard()
	if card == "" {
		log.Error("Unable to find gpu", "path", locator.Root(), "error", device.ErrDeviceNotFound)
		return exitError
	}

	hwmon := locator.FindHwmon(card)
	if hwmon == "" {
		log.Error("Unable to find hwmon entries", "card", card, "error", device.ErrSensorNotFound)
		return exitError
	}

	var info *device.GPUInfo
	if cfg.IsVerbose() || opts.status {
		info = lookupGPUInfo(log, cfg.Host.SysFS, card)
	}

	transfer := device.NewTransfer(hwmon,
		device.WithTransferLogger(log),
		device.WithTransferOutput(outW),
	)

	if opts.status {
		stdout.NewExporter(outW).Export(stdout.Report{
			Card:  card,
			Hwmon: hwmon,
			Info:  info,
			Caps:  transfer.Caps(),
		})
		return exitOK
	}

	if err := transfer.Apply(action); err != nil {
		log.Error("Could not write", "path", transfer.ControlPath(), "error", err)
		if cfg.IsStrict() {
			return exitError
		}
	}

	return exitOK
}

func parseArgsAndConfig(args []string, outW, errW io.Writer) (*config.Config, *options, error) {
	app := kingpin.New("powercap", "Set power-limits on AMD GPUs")
	app.HelpFlag.Short('h')
	app.UsageWriter(outW)
	app.ErrorWriter(errW)

	// kingpin exits the process after printing help; record it instead so
	// that run returns before any filesystem access
	usageShown := false
	app.Terminate(func(int) { usageShown = true })

	configFile := app.Flag("config.file", "Path to a YAML config file").String()
	status := app.Flag("status", "Show the current power caps and exit without writing").Bool()
	updateConfig := config.RegisterFlags(app)

	_, err := app.Parse(args)
	if usageShown {
		return nil, nil, errUsageShown
	}
	if err != nil {
		return nil, nil, err
	}

	cfg := config.DefaultConfig()
	if *configFile != "" {
		cfg, err = config.FromFile(*configFile)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := updateConfig(cfg); err != nil {
		return nil, nil, err
	}

	return cfg, &options{status: *status}, nil
}

func lookupGPUInfo(log *slog.Logger, sysfsPath, card string) *device.GPUInfo {
	info, err := device.LookupGPUInfo(sysfsPath, card)
	if err != nil {
		log.Debug("GPU details unavailable", "card", card, "error", err)
		return nil
	}
	log.Info("Found GPU",
		"card", info.Name,
		"unique-id", info.UniqueID,
		"busy-percent", info.BusyPercent,
		"performance-level", info.PerformanceLevel)
	return info
}
