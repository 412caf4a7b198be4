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

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/backpork/backpork/bps"
	"github.com/backpork/backpork/locate"
	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/osutil"
	"github.com/backpork/backpork/patchrepo"
	"github.com/backpork/backpork/provision"
	"github.com/backpork/backpork/strutil"
	"github.com/backpork/backpork/tooling"
)

const (
	StageFetch   = "Fetching library"
	StageConvert = "Converting SELF to ELF"
	StagePatch   = "Downloading patch file"
	StageApply   = "Applying BPS patch"
	StageSign    = "Fake signing library"
	StageFakelib = "Creating fakelib folder"
	StageUpload  = "Uploading library"
)

type stage struct {
	name string
	// verb prefixes the job message on failure
	verb string
	run  func(*job) error
}

var stages = []stage{
	{StageFetch, "fetch", (*job).fetch},
	{StageConvert, "convert", (*job).convert},
	{StagePatch, "download patch for", (*job).downloadPatch},
	{StageApply, "patch", (*job).apply},
	{StageSign, "sign", (*job).sign},
	{StageFakelib, "create fakelib folder for", (*job).createFakelib},
	{StageUpload, "upload", (*job).upload},
}

// Stages returns the stage names in execution order.
func Stages() []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.name
	}
	return names
}

// job carries the artifacts of one library between stages.
type job struct {
	*Job
	r   *Runner
	ctx context.Context
	req *Request
	dir string

	libPath     string
	elfPath     string
	patchedPath string
	signedPath  string
	patch       *patchrepo.Patch
	fakelib     string
}

func (r *Runner) runJob(ctx context.Context, req *Request, lib string) *Job {
	j := &job{
		Job: &Job{Library: lib, Steps: []Step{}},
		r:   r,
		ctx: ctx,
		req: req,
		dir: filepath.Join(r.opts.WorkDir, req.Firmware),
	}
	base := strings.TrimSuffix(lib, ".sprx")
	j.libPath = filepath.Join(j.dir, lib)
	j.patchedPath = filepath.Join(j.dir, base+"_patched.elf")
	j.signedPath = filepath.Join(j.dir, base+"_signed.sprx")

	logger.Debugf("processing %s for %s", lib, req.GamePath)
	for _, s := range stages {
		if err := j.step(s); err != nil {
			j.Message = fmt.Sprintf("cannot %s %s: %v", s.verb, lib, err)
			logger.Noticef("%s: %s failed: %v", lib, s.name, err)
			return j.Job
		}
	}
	j.Success = true
	j.Message = fmt.Sprintf("processed and uploaded %s", lib)
	return j.Job
}

// step appends the stage to the trail, runs it and marks it terminal.
func (j *job) step(s stage) error {
	j.Steps = append(j.Steps, Step{Name: s.name})
	idx := len(j.Steps) - 1

	start := time.Now()
	err := protect(func() error { return s.run(j) })
	j.r.metrics.ObserveStage(s.name, err == nil, time.Since(start).Seconds())
	if err != nil {
		j.Steps[idx].Error = err.Error()
		return err
	}
	j.Steps[idx].Success = true
	return nil
}

func protect(f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Noticef("recovered from panic: %v", p)
			err = fmt.Errorf("internal error: %v", p)
		}
	}()
	return f()
}

func (j *job) fetch() error {
	sess, err := j.r.dial(j.ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	data, err := sess.Retrieve(path.Join(SystemLibDir, j.Library))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%s is empty", path.Join(SystemLibDir, j.Library))
	}
	if err := os.MkdirAll(j.dir, 0755); err != nil {
		return err
	}
	return osutil.AtomicWriteFile(j.libPath, data, 0644)
}

func (j *job) convert() error {
	data, err := os.ReadFile(j.libPath)
	if err != nil {
		return err
	}
	if tooling.IsELF(data) {
		j.elfPath = j.libPath
		return nil
	}
	out, err := j.r.opts.Decrypter.Decrypt(j.ctx, j.libPath)
	if err != nil {
		return err
	}
	elf, err := os.ReadFile(out)
	if err != nil {
		return err
	}
	if !tooling.IsELF(elf) {
		return fmt.Errorf("decrypted file %s is not an ELF file", filepath.Base(out))
	}
	j.elfPath = out
	return nil
}

func (j *job) downloadPatch() error {
	name := PatchName(j.Library)
	p, err := j.r.opts.Patches.Fetch(j.ctx, j.req.Firmware, name)
	if errors.Is(err, patchrepo.ErrNotFound) {
		return fmt.Errorf("patch %s does not exist for firmware %s", name, j.req.Firmware)
	}
	if err != nil {
		return fmt.Errorf("cannot download patch %s: %v", name, err)
	}
	j.patch = p
	return nil
}

func (j *job) apply() error {
	source, err := os.ReadFile(j.elfPath)
	if err != nil {
		return err
	}
	c, err := bps.Parse(j.patch.Data)
	if err != nil {
		return err
	}
	target, err := c.Apply(source)
	if err != nil {
		return err
	}
	if err := c.VerifyChecksums(source, target); err != nil {
		if j.r.opts.StrictChecksums {
			return err
		}
		logger.Debugf("%s: ignoring %v", j.Library, err)
	}
	return osutil.AtomicWriteFile(j.patchedPath, target, 0644)
}

func (j *job) sign() error {
	return j.r.opts.Signer.Sign(j.ctx, j.patchedPath, j.signedPath)
}

func (j *job) createFakelib() error {
	titleID, err := locate.TitleIDFromPath(j.req.GamePath)
	if err != nil {
		return err
	}
	p, err := j.r.CreateFakelib(j.ctx, j.req.GamePath, titleID)
	if err != nil {
		return err
	}
	j.fakelib = p
	return nil
}

func (j *job) upload() error {
	data, err := os.ReadFile(j.signedPath)
	if err != nil {
		return err
	}
	target := path.Join(j.fakelib, j.Library)
	if locate.IsForbidden(target) {
		return &provision.Error{Err: provision.ErrForbiddenPath, Path: target}
	}

	sess, err := j.r.dial(j.ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.Store(target, bytes.NewReader(data)); err != nil {
		return err
	}
	logger.Noticef("uploaded %s (%s) to %s", j.Library, strutil.SizeToStr(int64(len(data))), target)
	return nil
}

// CreateFakelib locates the source directory of titleID and makes sure it
// has a fakelib directory, returning its path. An empty titleID is taken
// from gamePath.
func (r *Runner) CreateFakelib(ctx context.Context, gamePath, titleID string) (string, error) {
	if titleID == "" {
		id, err := locate.TitleIDFromPath(gamePath)
		if err != nil {
			return "", err
		}
		titleID = id
	}

	sess, err := r.dial(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	rec, err := locate.New(sess, r.opts.SearchPaths).Locate(titleID)
	if err != nil {
		return "", err
	}
	logger.Debugf("located %s at %s", titleID, rec.SourcePath)
	return provision.EnsureSubdir(sess, rec.SourcePath, provision.FakelibDir)
}
