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

package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/backpork/backpork/history"
	"github.com/backpork/backpork/locate"
	"github.com/backpork/backpork/pipeline"
	"github.com/backpork/backpork/provision"
	"github.com/backpork/backpork/remote"
)

var api = []*Command{
	rootCmd,
	librariesCmd,
	connectionCmd,
	gamesCmd,
	fakelibCmd,
	processCmd,
	historyCmd,
	historyEntryCmd,
}

var (
	rootCmd = &Command{
		Path: "/",
		GET:  func(*Command, *http.Request) Response { return SyncResponse([]string{"/v1"}) },
	}

	librariesCmd = &Command{
		Path: "/v1/libraries",
		GET:  getLibraries,
	}

	connectionCmd = &Command{
		Path: "/v1/connection/test",
		POST: testConnection,
	}

	gamesCmd = &Command{
		Path: "/v1/games",
		GET:  getGames,
	}

	fakelibCmd = &Command{
		Path: "/v1/fakelib",
		POST: createFakelib,
	}

	processCmd = &Command{
		Path: "/v1/process",
		POST: processLibraries,
	}

	historyCmd = &Command{
		Path: "/v1/history",
		GET:  getHistory,
	}

	historyEntryCmd = &Command{
		Path: "/v1/history/{id}",
		GET:  getHistoryEntry,
	}
)

var muxVars = mux.Vars

// maximum size of a request body
const maxBody = 1 << 20

func decode(r *http.Request, v interface{}) Response {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return BadRequest("cannot decode request body: %v", err)
	}
	return nil
}

// errToResponse maps collaborator errors to API errors.
func errToResponse(err error) Response {
	var terr *remote.TransportError
	switch {
	case errors.Is(err, pipeline.ErrHostNotSet):
		return errorWithKind(http.StatusBadRequest, ErrorKindHostNotSet, err)
	case errors.Is(err, pipeline.ErrInvalidRequest), errors.Is(err, locate.ErrNoTitleID):
		return errorWithKind(http.StatusBadRequest, ErrorKindInvalidRequest, err)
	case errors.As(err, &terr):
		return errorWithKind(http.StatusBadGateway, ErrorKindConnection, err)
	case errors.Is(err, locate.ErrNotFound):
		return errorWithKind(http.StatusNotFound, ErrorKindGameNotFound, err)
	case errors.Is(err, provision.ErrForbiddenPath):
		return errorWithKind(http.StatusForbidden, ErrorKindForbiddenPath, err)
	}
	return InternalError("%v", err)
}

type library struct {
	Name  string `json:"name"`
	Patch string `json:"patch"`
}

func getLibraries(c *Command, r *http.Request) Response {
	var libs []library
	for _, lib := range pipeline.KnownLibraries() {
		libs = append(libs, library{Name: lib, Patch: pipeline.PatchName(lib)})
	}
	return SyncResponse(libs)
}

func testConnection(c *Command, r *http.Request) Response {
	if err := c.d.backend.TestConnection(r.Context()); err != nil {
		return errToResponse(err)
	}
	return SyncResponse(map[string]string{
		"message": "FTP connection successful to " + c.d.backend.Address(),
	})
}

func getGames(c *Command, r *http.Request) Response {
	games, err := c.d.backend.Games(r.Context())
	if err != nil {
		return errToResponse(err)
	}
	if games == nil {
		games = []locate.Game{}
	}
	return SyncResponse(games)
}

type fakelibRequest struct {
	GamePath string `json:"game_path"`
	TitleID  string `json:"title_id"`
}

func createFakelib(c *Command, r *http.Request) Response {
	var req fakelibRequest
	if rsp := decode(r, &req); rsp != nil {
		return rsp
	}
	if req.GamePath == "" {
		return BadRequest("game path not provided")
	}
	p, err := c.d.backend.CreateFakelib(r.Context(), req.GamePath, req.TitleID)
	if err != nil {
		return errToResponse(err)
	}
	return SyncResponse(map[string]string{
		"message": "fakelib folder ready at " + p,
		"path":    p,
	})
}

func processLibraries(c *Command, r *http.Request) Response {
	var req pipeline.Request
	if rsp := decode(r, &req); rsp != nil {
		return rsp
	}

	c.d.batchMu.Lock()
	defer c.d.batchMu.Unlock()
	res, err := c.d.backend.Run(r.Context(), &req)
	if err != nil {
		return errToResponse(err)
	}
	return SyncResponse(res)
}

func getHistory(c *Command, r *http.Request) Response {
	if c.d.history == nil {
		return NotFound("history is not enabled")
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return BadRequest("invalid limit %q", s)
		}
		limit = n
	}
	entries, err := c.d.history.List(limit)
	if err != nil {
		return InternalError("cannot list history: %v", err)
	}
	if entries == nil {
		entries = []*history.Entry{}
	}
	return SyncResponse(entries)
}

func getHistoryEntry(c *Command, r *http.Request) Response {
	if c.d.history == nil {
		return NotFound("history is not enabled")
	}
	id := muxVars(r)["id"]
	e, err := c.d.history.Get(id)
	if errors.Is(err, history.ErrNotFound) {
		return NotFound("cannot find batch %q", id)
	}
	if err != nil {
		return InternalError("cannot read history: %v", err)
	}
	return SyncResponse(e)
}
