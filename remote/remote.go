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

// Package remote defines the file transfer session used to talk to the
// console and implements it over FTP.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Entry is one item of a directory listing.
type Entry struct {
	// Perms is the ls style permission string, e.g. "drwxr-xr-x".
	Perms string
	Name  string
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return strings.HasPrefix(e.Perms, "d")
}

// Session is a connection to the remote filesystem. Paths are absolute
// or relative to the current directory.
type Session interface {
	ChangeDir(dir string) error
	List(dir string) ([]Entry, error)
	Retrieve(path string) ([]byte, error)
	Store(path string, r io.Reader) error
	MakeDir(dir string) error
	Close() error
}

// Dialer opens sessions to a console.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (Session, error)
}

// ParseListLine parses one line of an ls -l style listing. Lines with
// fewer than nine fields are not entries.
func ParseListLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return Entry{}, false
	}
	return Entry{Perms: fields[0], Name: fields[len(fields)-1]}, true
}

// ReplyError is a negative reply from the server.
type ReplyError struct {
	Code int
	Msg  string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Msg)
}

// IsAlreadyExists reports whether err is the server refusing to create
// something that is already there.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var rerr *ReplyError
	if errors.As(err, &rerr) && rerr.Code == 550 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "exists")
}

// Kind classifies connection failures.
type Kind int

const (
	Other Kind = iota
	Refused
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Refused:
		return "connection refused"
	case Timeout:
		return "timeout"
	}
	return "error"
}

// TransportError is returned when a session cannot be established.
type TransportError struct {
	Kind Kind
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case Refused:
		return fmt.Sprintf("cannot connect to %s: connection refused, is the FTP server running?", e.Addr)
	case Timeout:
		return fmt.Sprintf("cannot connect to %s: connection timed out", e.Addr)
	}
	return fmt.Sprintf("cannot connect to %s: %v", e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func classify(err error) Kind {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return Refused
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}
	return Other
}

// IsTransportKind reports whether err is a TransportError of the given kind.
func IsTransportKind(err error, kind Kind) bool {
	var terr *TransportError
	return errors.As(err, &terr) && terr.Kind == kind
}
