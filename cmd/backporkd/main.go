// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2026 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sddaemon "github.com/coreos/go-systemd/daemon"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/backpork/backpork/cmd"
	"github.com/backpork/backpork/cmd/cmdutil"
	"github.com/backpork/backpork/config"
	"github.com/backpork/backpork/daemon"
	"github.com/backpork/backpork/history"
	"github.com/backpork/backpork/httputil"
	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/metrics"
)

func init() {
	err := logger.SimpleSetup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: failed to activate logging: %s\n", err)
	}
}

type options struct {
	Config string `long:"config" description:"Configuration file"`
	Listen string `long:"listen" description:"Address to listen on when not socket activated"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var (
	sdNotify          = sddaemon.SdNotify
	sdWatchdogEnabled = sddaemon.SdWatchdogEnabled
)

func runWatchdog(d *daemon.Daemon) (*time.Ticker, error) {
	interval, err := sdWatchdogEnabled(false)
	if err != nil {
		return nil, fmt.Errorf("cannot check watchdog: %v", err)
	}
	// not running under systemd
	if interval == 0 {
		return nil, nil
	}
	dur := interval / 2
	logger.Debugf("Setting up sd_notify() watchdog timer every %s", dur)
	wt := time.NewTicker(dur)

	go func() {
		for {
			select {
			case <-wt.C:
				sdNotify(false, sddaemon.SdNotifyWatchdog)
			case <-d.Dying():
				return
			}
		}
	}()

	return wt, nil
}

func parseArgs(args []string) (*options, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.ShortDescription = "Library retrofit daemon"
	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("too many arguments: %q", rest)
	}
	if opts.Config == "" {
		opts.Config = config.DefaultPath()
	}
	return &opts, nil
}

func setup(opts *options) (*daemon.Daemon, func(), error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, nil, err
	}
	if opts.Listen != "" {
		cfg.Daemon.Listen = opts.Listen
	}
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return nil, nil, err
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewProm("backpork", reg)
	runner, err := cmdutil.NewRunner(cfg, cmdutil.RunnerOptions{Recorder: store, Metrics: m})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	d, err := daemon.New(daemon.Options{
		Version:  cmd.Version,
		Listen:   cfg.Daemon.Listen,
		Backend:  runner,
		History:  store,
		Metrics:  m,
		Gatherer: reg,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return d, func() { store.Close() }, nil
}

func run(args []string) error {
	t0 := time.Now().Truncate(time.Millisecond)
	httputil.UserAgent = "backpork/" + cmd.Version

	opts, err := parseArgs(args)
	if err != nil {
		return err
	}

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ch)

	d, cleanup, err := setup(opts)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := d.Init(); err != nil {
		return err
	}

	d.Start()
	sdNotify(false, sddaemon.SdNotifyReady)

	watchdog, err := runWatchdog(d)
	if err != nil {
		return fmt.Errorf("cannot run software watchdog: %v", err)
	}
	if watchdog != nil {
		defer watchdog.Stop()
	}

	logger.Debugf("activation done in %v", time.Now().Truncate(time.Millisecond).Sub(t0))

	select {
	case sig := <-ch:
		logger.Noticef("Exiting on %s signal.", sig)
	case <-d.Dying():
		// something called Stop()
	}

	sdNotify(false, sddaemon.SdNotifyStopping)
	return d.Stop()
}
