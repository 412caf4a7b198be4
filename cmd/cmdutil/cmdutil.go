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

// Package cmdutil wires the configured collaborators into a pipeline
// runner for the binaries.
package cmdutil

import (
	"os"

	"github.com/backpork/backpork/config"
	"github.com/backpork/backpork/metrics"
	"github.com/backpork/backpork/patchrepo"
	"github.com/backpork/backpork/pipeline"
	"github.com/backpork/backpork/remote"
	"github.com/backpork/backpork/tooling"
)

// RunnerOptions override parts of the runner built from a configuration.
type RunnerOptions struct {
	// Dialer defaults to an FTP dialer using the console settings.
	Dialer   remote.Dialer
	Recorder pipeline.Recorder
	Metrics  metrics.Metrics
}

// NewRunner builds a pipeline runner from cfg.
func NewRunner(cfg *config.Config, opts RunnerOptions) (*pipeline.Runner, error) {
	repo, err := patchrepo.New(patchrepo.Options{
		BaseURL:   cfg.Patches.BaseURL,
		CacheDir:  cfg.Patches.CacheDir,
		Timeout:   cfg.Patches.Timeout,
		RateLimit: cfg.Patches.RateLimit,
	})
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, err
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &remote.FTPDialer{
			Timeout:    cfg.Console.Timeout,
			UploadRate: cfg.Upload.RateLimit,
		}
	}
	return pipeline.New(pipeline.Options{
		Dialer:          dialer,
		Host:            cfg.Console.Host,
		Port:            cfg.Console.FTPPort,
		Patches:         repo,
		Signer:          &tooling.Signer{Command: cfg.Tools.Sign, Timeout: cfg.Tools.Timeout},
		Decrypter:       &tooling.Decrypter{Command: cfg.Tools.Decrypt, Timeout: cfg.Tools.Timeout},
		WorkDir:         cfg.WorkDir,
		SearchPaths:     cfg.Locate.SearchPaths,
		StrictChecksums: cfg.Patches.StrictChecksums,
		Recorder:        opts.Recorder,
		Metrics:         opts.Metrics,
	})
}
