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

// Package pipeline retrofits patched system libraries into installed games.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/backpork/backpork/locate"
	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/metrics"
	"github.com/backpork/backpork/patchrepo"
	"github.com/backpork/backpork/remote"
	"github.com/backpork/backpork/strutil"
)

// SystemLibDir is where the console keeps its stock libraries.
const SystemLibDir = "/system/common/lib"

var knownLibraries = map[string]string{
	"libSceAgc.sprx":                       "libSceAgc.bps",
	"libSceAgcDriver.sprx":                 "libSceAgcDriver.bps",
	"libSceNpAuth.sprx":                    "libSceNpAuth.bps",
	"libSceNpAuthAuthorizedAppDialog.sprx": "libSceNpAuthAuthorizedAppDialog.bps",
	"libSceSaveData.native.sprx":           "libSceSaveData.native.bps",
}

// KnownLibraries returns the libraries processed by default, sorted.
func KnownLibraries() []string {
	libs := make([]string, 0, len(knownLibraries))
	for lib := range knownLibraries {
		libs = append(libs, lib)
	}
	sort.Strings(libs)
	return libs
}

// PatchName returns the patch file name for lib.
func PatchName(lib string) string {
	if name, ok := knownLibraries[lib]; ok {
		return name
	}
	return strings.TrimSuffix(lib, ".sprx") + ".bps"
}

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrHostNotSet     = errors.New("console address not set")
)

// Request asks for libraries to be retrofitted into the game at GamePath.
type Request struct {
	Firmware string `json:"firmware"`
	GamePath string `json:"game_path"`
	// Libraries defaults to KnownLibraries when empty.
	Libraries []string `json:"libraries"`
}

// pathComponent reports whether name can be used as a single local path
// element.
func pathComponent(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func (req *Request) validate() error {
	switch {
	case strings.TrimSpace(req.Firmware) == "":
		return fmt.Errorf("%w: firmware version not selected", ErrInvalidRequest)
	case !pathComponent(req.Firmware):
		return fmt.Errorf("%w: invalid firmware version %q", ErrInvalidRequest, req.Firmware)
	case strings.TrimSpace(req.GamePath) == "":
		return fmt.Errorf("%w: game path not provided", ErrInvalidRequest)
	}
	for _, lib := range req.Libraries {
		if !pathComponent(lib) {
			return fmt.Errorf("%w: invalid library name %q", ErrInvalidRequest, lib)
		}
	}
	return nil
}

// Step is one attempted stage of a job.
type Step struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Job is the outcome for a single library.
type Job struct {
	Library string `json:"library"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Steps   []Step `json:"steps"`
}

// Result is the outcome of a batch. Success is true only when every job
// succeeded.
type Result struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Results []*Job `json:"results"`
}

// PatchSource provides patches by firmware and name.
type PatchSource interface {
	Fetch(ctx context.Context, firmware, name string) (*patchrepo.Patch, error)
}

// Signer fake-signs an ELF file into a loadable container.
type Signer interface {
	Sign(ctx context.Context, in, out string) error
}

// Decrypter converts a protected container into an ELF file and returns
// its path.
type Decrypter interface {
	Decrypt(ctx context.Context, path string) (string, error)
}

// Recorder persists completed batches.
type Recorder interface {
	Record(req *Request, res *Result) error
}

// Options configure a Runner.
type Options struct {
	Dialer remote.Dialer
	Host   string
	Port   int

	Patches   PatchSource
	Signer    Signer
	Decrypter Decrypter

	// WorkDir holds fetched, patched and signed libraries.
	WorkDir     string
	SearchPaths []string
	// StrictChecksums fails the patch stage on footer checksum mismatches.
	StrictChecksums bool

	Recorder Recorder
	Metrics  metrics.Metrics
}

// Runner processes batches against one console.
type Runner struct {
	opts    Options
	metrics metrics.Metrics

	// one batch at a time
	mu sync.Mutex
}

// New returns a Runner for opts.
func New(opts Options) (*Runner, error) {
	switch {
	case opts.Dialer == nil:
		return nil, errors.New("pipeline needs a dialer")
	case opts.Patches == nil:
		return nil, errors.New("pipeline needs a patch source")
	case opts.Signer == nil:
		return nil, errors.New("pipeline needs a signer")
	case opts.Decrypter == nil:
		return nil, errors.New("pipeline needs a decrypter")
	case opts.WorkDir == "":
		return nil, errors.New("pipeline work directory is not set")
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	return &Runner{opts: opts, metrics: m}, nil
}

func (r *Runner) dial(ctx context.Context) (remote.Session, error) {
	if r.opts.Host == "" {
		return nil, ErrHostNotSet
	}
	return r.opts.Dialer.Dial(ctx, r.opts.Host, r.opts.Port)
}

// Run processes every library of req in order. The returned error is only
// for invalid requests; job failures are reported in the Result.
func (r *Runner) Run(ctx context.Context, req *Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if r.opts.Host == "" {
		return nil, ErrHostNotSet
	}
	libs := req.Libraries
	if len(libs) == 0 {
		libs = KnownLibraries()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	res := &Result{ID: uuid.New().String(), Success: true}
	logger.Noticef("batch %s: processing %s for %s (firmware %s)", res.ID, strutil.Quoted(libs), req.GamePath, req.Firmware)
	for _, lib := range libs {
		var j *Job
		if err := ctx.Err(); err != nil {
			j = &Job{Library: lib, Message: fmt.Sprintf("cannot process %s: %v", lib, err), Steps: []Step{}}
		} else {
			j = r.runJob(ctx, req, lib)
		}
		r.metrics.IncJobsCompleted(lib, metrics.Status(j.Success))
		res.Results = append(res.Results, j)
		res.Success = res.Success && j.Success
	}
	r.metrics.IncBatchesCompleted(metrics.Status(res.Success))
	logger.Noticef("batch %s: done in %v, success=%v", res.ID, time.Since(start).Round(time.Millisecond), res.Success)

	if r.opts.Recorder != nil {
		if err := r.opts.Recorder.Record(req, res); err != nil {
			logger.Noticef("cannot record batch %s: %v", res.ID, err)
		}
	}
	return res, nil
}

// TestConnection dials the console and lists its root.
func (r *Runner) TestConnection(ctx context.Context) error {
	sess, err := r.dial(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	if _, err := sess.List("/"); err != nil {
		return fmt.Errorf("cannot list remote root: %v", err)
	}
	return nil
}

// Games lists the titles installed on the console.
func (r *Runner) Games(ctx context.Context) ([]locate.Game, error) {
	sess, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return locate.Installed(sess)
}

// Address returns host:port of the console.
func (r *Runner) Address() string {
	return fmt.Sprintf("%s:%d", r.opts.Host, r.opts.Port)
}
