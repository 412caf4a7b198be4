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

// Package patchrepo downloads BPS patches per firmware and keeps them in
// a local cache.
package patchrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/ratelimit"
	"gopkg.in/retry.v1"

	"github.com/backpork/backpork/bps"
	"github.com/backpork/backpork/httputil"
	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/osutil"
)

// DefaultBaseURL hosts patches as <base>/<firmware>/<patch>.
const DefaultBaseURL = "https://raw.githubusercontent.com/BestPig/BackPork/master/patches"

var (
	ErrNotFound     = errors.New("patch not found")
	ErrInvalidPatch = errors.New("downloaded file is not a valid BPS patch (missing BPS1 header)")
)

// DownloadError is returned for unexpected http responses.
type DownloadError struct {
	Code int
	URL  *url.URL
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("received an unexpected http response code (%v) when trying to download %s", e.Code, e.URL)
}

var downloadRetryStrategy = retry.LimitCount(7, retry.LimitTime(90*time.Second,
	retry.Exponential{
		Initial: 500 * time.Millisecond,
		Factor:  2.5,
	},
))

// Options configure a Repository.
type Options struct {
	BaseURL  string
	CacheDir string
	Timeout  time.Duration
	// RateLimit caps download throughput in bytes per second, 0 for none.
	RateLimit int64
}

// Repository fetches patches, serving them from its cache when possible.
type Repository struct {
	baseURL   *url.URL
	cacheDir  string
	client    *http.Client
	rateLimit int64
}

// Patch is a fetched, magic-checked patch.
type Patch struct {
	Firmware string
	Name     string
	// Path is the location in the cache.
	Path   string
	Data   []byte
	Cached bool
	// Digest is the hex sha3-384 of Data.
	Digest string
}

// New returns a Repository for opts.
func New(opts Options) (*Repository, error) {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimSuffix(base, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid patch base url: %v", err)
	}
	if opts.CacheDir == "" {
		return nil, errors.New("patch cache directory is not set")
	}
	return &Repository{
		baseURL:   u,
		cacheDir:  opts.CacheDir,
		client:    httputil.NewHTTPClient(&httputil.ClientOptions{Timeout: opts.Timeout}),
		rateLimit: opts.RateLimit,
	}, nil
}

func validComponent(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// Path returns where the patch is cached.
func (r *Repository) Path(firmware, name string) string {
	return filepath.Join(r.cacheDir, firmware, name)
}

// URL returns where the patch is downloaded from.
func (r *Repository) URL(firmware, name string) *url.URL {
	return r.baseURL.ResolveReference(&url.URL{Path: firmware + "/" + name})
}

func lockCache(lock *osutil.FileLock) error {
	err := lock.TryLock()
	if err != osutil.ErrAlreadyLocked {
		return err
	}
	logger.Noticef("patch cache %s is in use, waiting", lock.Path())
	return lock.Lock()
}

// Fetch returns the patch for firmware, downloading it on a cache miss.
// Downloads are validated before they are cached.
func (r *Repository) Fetch(ctx context.Context, firmware, name string) (*Patch, error) {
	if !validComponent(firmware) || !validComponent(name) {
		return nil, fmt.Errorf("invalid patch reference %q/%q", firmware, name)
	}
	if err := os.MkdirAll(filepath.Join(r.cacheDir, firmware), 0755); err != nil {
		return nil, fmt.Errorf("cannot create patch cache: %v", err)
	}

	lock, err := osutil.NewFileLock(filepath.Join(r.cacheDir, ".lock"))
	if err != nil {
		return nil, fmt.Errorf("cannot open patch cache lock: %v", err)
	}
	defer lock.Close()
	if err := lockCache(lock); err != nil {
		return nil, fmt.Errorf("cannot lock patch cache: %v", err)
	}

	target := r.Path(firmware, name)
	p := &Patch{Firmware: firmware, Name: name, Path: target}
	if data, err := os.ReadFile(target); err == nil {
		if bps.HasMagic(data) {
			logger.Debugf("using cached patch %s", target)
			p.Data = data
			p.Cached = true
			p.Digest = osutil.Digest(data)
			return p, nil
		}
		logger.Noticef("discarding corrupt cached patch %s", target)
		os.Remove(target)
	}

	data, err := r.download(ctx, r.URL(firmware, name), firmware)
	if err != nil {
		return nil, err
	}
	if !bps.HasMagic(data) {
		return nil, ErrInvalidPatch
	}
	if err := osutil.AtomicWriteFile(target, data, 0644); err != nil {
		return nil, fmt.Errorf("cannot cache patch: %v", err)
	}
	p.Data = data
	p.Digest = osutil.Digest(data)
	logger.Noticef("downloaded patch %s (%d bytes, sha3-384 %s)", target, len(data), p.Digest)
	return p, nil
}

func (r *Repository) download(ctx context.Context, u *url.URL, firmware string) ([]byte, error) {
	var buf bytes.Buffer
	doRequest := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
		if err != nil {
			return nil, err
		}
		return r.client.Do(req)
	}
	readBody := func(resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			return nil
		}
		buf.Reset()
		var body io.Reader = resp.Body
		if limit := r.rateLimit; limit > 0 {
			bucket := ratelimit.NewBucketWithRate(float64(limit), 2*limit)
			body = ratelimit.Reader(resp.Body, bucket)
		}
		_, err := io.Copy(&buf, body)
		return err
	}

	resp, err := httputil.RetryRequest(u.String(), doRequest, readBody, downloadRetryStrategy)
	if err != nil {
		return nil, fmt.Errorf("cannot download patch: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return buf.Bytes(), nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w at %s, the patch may not exist for firmware %s", ErrNotFound, u, firmware)
	}
	return nil, &DownloadError{Code: resp.StatusCode, URL: u}
}
