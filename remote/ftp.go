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

package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/juju/ratelimit"
	"golang.org/x/xerrors"

	"github.com/backpork/backpork/logger"
)

var ftpDial = ftp.Dial

// FTPDialer opens anonymous FTP sessions.
type FTPDialer struct {
	Timeout time.Duration
	// UploadRate caps Store throughput in bytes per second, 0 for none.
	UploadRate int64
}

func (d *FTPDialer) Dial(ctx context.Context, host string, port int) (Session, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if d.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(d.Timeout))
	}
	logger.Debugf("connecting to FTP server at %s", addr)
	conn, err := ftpDial(addr, opts...)
	if err != nil {
		return nil, &TransportError{Kind: classify(err), Addr: addr, Err: err}
	}
	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		conn.Quit()
		return nil, &TransportError{Kind: classify(err), Addr: addr, Err: xerrors.Errorf("cannot log in: %w", replyError(err))}
	}
	return &ftpSession{conn: conn, uploadRate: d.UploadRate}, nil
}

type ftpSession struct {
	conn       *ftp.ServerConn
	uploadRate int64
}

// replyError turns protocol replies into ReplyErrors and leaves other
// errors alone.
func replyError(err error) error {
	var terr *textproto.Error
	if errors.As(err, &terr) {
		return &ReplyError{Code: terr.Code, Msg: terr.Msg}
	}
	return err
}

func (s *ftpSession) ChangeDir(dir string) error {
	if err := s.conn.ChangeDir(dir); err != nil {
		return xerrors.Errorf("cannot change directory to %q: %w", dir, replyError(err))
	}
	return nil
}

func (s *ftpSession) List(dir string) ([]Entry, error) {
	ftpEntries, err := s.conn.List(dir)
	if err != nil {
		return nil, xerrors.Errorf("cannot list %q: %w", dir, replyError(err))
	}
	entries := make([]Entry, 0, len(ftpEntries))
	for _, fe := range ftpEntries {
		if fe.Name == "." || fe.Name == ".." {
			continue
		}
		entries = append(entries, entryFromFTP(fe))
	}
	return entries, nil
}

func entryFromFTP(fe *ftp.Entry) Entry {
	perms := "-rw-r--r--"
	switch fe.Type {
	case ftp.EntryTypeFolder:
		perms = "drwxr-xr-x"
	case ftp.EntryTypeLink:
		perms = "lrwxrwxrwx"
	}
	return Entry{Perms: perms, Name: fe.Name}
}

func (s *ftpSession) Retrieve(path string) ([]byte, error) {
	resp, err := s.conn.Retr(path)
	if err != nil {
		return nil, xerrors.Errorf("cannot retrieve %q: %w", path, replyError(err))
	}
	defer resp.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp); err != nil {
		return nil, xerrors.Errorf("cannot read %q: %w", path, err)
	}
	return buf.Bytes(), nil
}

func (s *ftpSession) Store(path string, r io.Reader) error {
	if rate := s.uploadRate; rate > 0 {
		bucket := ratelimit.NewBucketWithRate(float64(rate), 2*rate)
		r = ratelimit.Reader(r, bucket)
	}
	if err := s.conn.Stor(path, r); err != nil {
		return xerrors.Errorf("cannot store %q: %w", path, replyError(err))
	}
	return nil
}

func (s *ftpSession) MakeDir(dir string) error {
	if err := s.conn.MakeDir(dir); err != nil {
		return xerrors.Errorf("cannot create directory %q: %w", dir, replyError(err))
	}
	return nil
}

func (s *ftpSession) Close() error {
	return s.conn.Quit()
}
