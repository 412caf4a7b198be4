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

// Package daemon serves the backpork HTTP API.
package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coreos/go-systemd/activation"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/tomb.v2"

	"github.com/backpork/backpork/history"
	"github.com/backpork/backpork/locate"
	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/metrics"
	"github.com/backpork/backpork/pipeline"
)

// Backend does the work behind the API. *pipeline.Runner implements it.
type Backend interface {
	Run(ctx context.Context, req *pipeline.Request) (*pipeline.Result, error)
	CreateFakelib(ctx context.Context, gamePath, titleID string) (string, error)
	TestConnection(ctx context.Context) error
	Games(ctx context.Context) ([]locate.Game, error)
	Address() string
}

// History serves recorded batches. *history.Store implements it.
type History interface {
	Get(id string) (*history.Entry, error)
	List(limit int) ([]*history.Entry, error)
}

// Options configure a Daemon.
type Options struct {
	Version string
	// Listen is the TCP address used when no socket was passed by systemd.
	Listen   string
	Backend  Backend
	History  History
	Metrics  metrics.APIMetrics
	Gatherer prometheus.Gatherer
}

// A Daemon listens for requests and routes them to the right command
type Daemon struct {
	Version  string
	backend  Backend
	history  History
	metrics  metrics.APIMetrics
	gatherer prometheus.Gatherer
	listen   string

	listener net.Listener
	tomb     tomb.Tomb
	router   *mux.Router

	// batchMu serializes batches, the console handles one at a time
	batchMu sync.Mutex
}

// A ResponseFunc handles one of the individual verbs for a method
type ResponseFunc func(*Command, *http.Request) Response

// A Command routes a request to an individual per-verb ResponseFunc
type Command struct {
	Path string
	//
	GET  ResponseFunc
	POST ResponseFunc

	d *Daemon
}

func (c *Command) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var rspf ResponseFunc
	var rsp = BadMethod("method %q not allowed", r.Method)

	switch r.Method {
	case "GET":
		rspf = c.GET
	case "POST":
		rspf = c.POST
	}

	if rspf != nil {
		rsp = rspf(c, r)
	}

	rsp.ServeHTTP(w, r)
}

type wrappedWriter struct {
	w http.ResponseWriter
	s int
}

func (w *wrappedWriter) Header() http.Header {
	return w.w.Header()
}

func (w *wrappedWriter) Write(bs []byte) (int, error) {
	if w.s == 0 {
		w.s = http.StatusOK
	}
	return w.w.Write(bs)
}

func (w *wrappedWriter) WriteHeader(s int) {
	w.w.WriteHeader(s)
	w.s = s
}

func (d *Daemon) logit(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		var match mux.RouteMatch
		if d.router.Match(r, &match) && match.Route != nil {
			route = match.Route.GetName()
		}
		ww := &wrappedWriter{w: w}
		t0 := time.Now()
		handler.ServeHTTP(ww, r)
		t := time.Since(t0)
		d.metrics.ObserveRequest(r.Method, route, strconv.Itoa(ww.s), t.Seconds())
		logger.Debugf("%s %s %s %s %d", r.RemoteAddr, r.Method, r.URL, t, ww.s)
	})
}

var activationListeners = activation.Listeners

// getListener returns the socket systemd passed for addr, or listens on
// addr directly.
func getListener(addr string) (net.Listener, error) {
	listeners, err := activationListeners()
	if err != nil {
		return nil, err
	}
	for _, l := range listeners {
		if l != nil && l.Addr().String() == addr {
			return l, nil
		}
	}
	if len(listeners) == 1 && listeners[0] != nil {
		logger.Debugf("using socket activated listener %s", listeners[0].Addr())
		return listeners[0], nil
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	logger.Debugf("socket %q was not activated; listening", addr)
	return l, nil
}

// Init sets up the Daemon's internal workings.
// Don't call more than once.
func (d *Daemon) Init() error {
	t0 := time.Now()
	listener, err := getListener(d.listen)
	if err != nil {
		return fmt.Errorf("when trying to listen on %s: %v", d.listen, err)
	}
	d.listener = listener

	d.addRoutes()

	logger.Debugf("init done in %s", time.Since(t0))
	logger.Noticef("started backporkd %s on %s.", d.Version, d.listener.Addr())
	return nil
}

func (d *Daemon) addRoutes() {
	d.router = mux.NewRouter()

	for _, c := range api {
		c := *c
		c.d = d
		d.router.Handle(c.Path, &c).Name(c.Path)
	}
	d.router.Handle("/metrics", metrics.Handler(d.gatherer)).Name("/metrics")

	d.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFound("not found").ServeHTTP(w, r)
	})
}

// Start the Daemon
func (d *Daemon) Start() {
	srv := &http.Server{Handler: d.logit(d.router)}
	d.tomb.Go(func() error {
		if err := srv.Serve(d.listener); err != nil && d.tomb.Err() == tomb.ErrStillAlive {
			return err
		}
		return nil
	})
}

// Stop shuts down the Daemon
func (d *Daemon) Stop() error {
	d.tomb.Kill(nil)
	d.listener.Close()
	return d.tomb.Wait()
}

// Dying is a tomb-ish thing
func (d *Daemon) Dying() <-chan struct{} {
	return d.tomb.Dying()
}

// Addr returns the address the daemon listens on, once initialized.
func (d *Daemon) Addr() net.Addr {
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// New Daemon
func New(opts Options) (*Daemon, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("daemon needs a backend")
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	return &Daemon{
		Version:  opts.Version,
		backend:  opts.Backend,
		history:  opts.History,
		metrics:  m,
		gatherer: opts.Gatherer,
		listen:   opts.Listen,
	}, nil
}
