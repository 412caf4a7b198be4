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
	"encoding/json"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/backpork/backpork/history"
)

type cmdHistory struct {
	Limit int  `long:"limit" default:"10"`
	JSON  bool `long:"json"`

	Positional struct {
		ID string `positional-arg-name:"<id>"`
	} `positional-args:"yes"`
}

var shortHistoryHelp = "Show processed batches"
var longHistoryHelp = `
The history command lists the most recent batches, or shows the steps of the
batch with the given id.
`

func init() {
	addCommand("history", shortHistoryHelp, longHistoryHelp, func() flags.Commander {
		return &cmdHistory{}
	}, map[string]string{
		"limit": "Number of batches to list",
		"json":  "Print JSON",
	})
}

func (x *cmdHistory) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return err
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()

	if x.Positional.ID != "" {
		e, err := store.Get(x.Positional.ID)
		if err != nil {
			return fmt.Errorf("cannot find batch %q: %v", x.Positional.ID, err)
		}
		if x.JSON {
			return printJSON(e)
		}
		fmt.Fprintf(Stdout, "Batch %s for %s (firmware %s) at %s\n", e.ID, e.GamePath, e.Firmware, e.Time.Format("2006-01-02 15:04:05"))
		printResult(e.Result)
		return nil
	}

	entries, err := store.List(x.Limit)
	if err != nil {
		return err
	}
	if x.JSON {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(Stderr, "No batches recorded.")
		return nil
	}
	w := tabWriter()
	defer w.Flush()
	fmt.Fprintln(w, "ID\tTime\tFirmware\tGame\tStatus")
	for _, e := range entries {
		status := "Done"
		if e.Result == nil || !e.Result.Success {
			status = "Error"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Time.Format("2006-01-02T15:04:05Z07:00"), e.Firmware, e.GamePath, status)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
