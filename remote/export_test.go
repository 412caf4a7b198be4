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
	"github.com/jlaffaye/ftp"
)

var (
	Classify     = classify
	ReplyErrorOf = replyError
)

func EntryFromFTP(name string, t ftp.EntryType) Entry {
	return entryFromFTP(&ftp.Entry{Name: name, Type: t})
}

func MockFTPDial(f func(addr string, options ...ftp.DialOption) (*ftp.ServerConn, error)) (restore func()) {
	old := ftpDial
	ftpDial = f
	return func() {
		ftpDial = old
	}
}
