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
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"unicode"

	"github.com/jessevdk/go-flags"

	"github.com/backpork/backpork/cmd"
	"github.com/backpork/backpork/cmd/cmdutil"
	"github.com/backpork/backpork/config"
	"github.com/backpork/backpork/httputil"
	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/pipeline"
	"github.com/backpork/backpork/remote"
)

func init() {
	httputil.UserAgent = "backpork/" + cmd.Version
}

// Standard streams, redirected for testing.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

type options struct {
	Version func() `long:"version"`
	Config  string `long:"config"`
	Host    string `long:"host"`
}

var optionsData options

// ErrExtraArgs is returned if extra arguments to a command are found
var ErrExtraArgs = fmt.Errorf("too many arguments for command")

// cmdInfo holds information needed to call parser.AddCommand(...).
type cmdInfo struct {
	name, shortHelp, longHelp string
	builder                   func() flags.Commander
	optDescs                  map[string]string
}

// commands holds information about all commands.
var commands []*cmdInfo

// addCommand replaces parser.addCommand() in a way that is compatible with
// re-constructing a pristine parser.
func addCommand(name, shortHelp, longHelp string, builder func() flags.Commander, optDescs map[string]string) *cmdInfo {
	info := &cmdInfo{
		name:      name,
		shortHelp: shortHelp,
		longHelp:  longHelp,
		builder:   builder,
		optDescs:  optDescs,
	}
	commands = append(commands, info)
	return info
}

func lintDesc(cmdName, optName, desc string) {
	if len(optName) == 0 {
		logger.Panicf("option on %q has no name", cmdName)
	}
	if len(desc) > 0 && !unicode.IsUpper(([]rune)(desc)[0]) {
		logger.Panicf("description of %s's %q not uppercase: %q", cmdName, optName, desc)
	}
}

// Parser creates and populates a fresh parser.
// Since commands have local state a fresh parser is required to isolate tests
// from each other.
func Parser() *flags.Parser {
	optionsData = options{}
	optionsData.Version = func() {
		fmt.Fprintf(Stdout, "backpork %s\n", cmd.Version)
		panic(&exitStatus{0})
	}
	parser := flags.NewParser(&optionsData, flags.HelpFlag|flags.PassDoubleDash|flags.PassAfterNonOption)
	parser.ShortDescription = "Retrofit patched system libraries into installed games"
	parser.LongDescription = `
Fetch system libraries from the console, apply BPS patches for the running
firmware, fake sign them and install them in the fakelib directory of a game.
`
	parser.FindOptionByLongName("version").Description = "Print the version and exit"
	parser.FindOptionByLongName("config").Description = "Configuration file"
	parser.FindOptionByLongName("host").Description = "Console address, overriding the configuration"

	for _, c := range commands {
		cmd, err := parser.AddCommand(c.name, c.shortHelp, strings.TrimSpace(c.longHelp), c.builder())
		if err != nil {
			logger.Panicf("cannot add command %q: %v", c.name, err)
		}
		opts := cmd.Options()
		if c.optDescs != nil && len(opts) != len(c.optDescs) {
			logger.Panicf("wrong number of option descriptions for %s: expected %d, got %d", c.name, len(opts), len(c.optDescs))
		}
		for _, opt := range opts {
			name := opt.LongName
			if name == "" {
				name = string(opt.ShortName)
			}
			desc := c.optDescs[name]
			lintDesc(c.name, name, desc)
			if desc != "" {
				opt.Description = desc
			}
		}
	}
	return parser
}

// dialer reaches the console; nil means FTP.
var dialer remote.Dialer

func loadConfig() (*config.Config, error) {
	path := optionsData.Config
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if optionsData.Host != "" {
		cfg.Console.Host = optionsData.Host
	}
	return cfg, nil
}

func newRunner(cfg *config.Config, rec pipeline.Recorder) (*pipeline.Runner, error) {
	return cmdutil.NewRunner(cfg, cmdutil.RunnerOptions{Dialer: dialer, Recorder: rec})
}

func consoleDialer(cfg *config.Config) remote.Dialer {
	if dialer != nil {
		return dialer
	}
	return &remote.FTPDialer{Timeout: cfg.Console.Timeout, UploadRate: cfg.Upload.RateLimit}
}

func tabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(Stdout, 5, 3, 2, ' ', 0)
}

func init() {
	err := logger.SimpleSetup()
	if err != nil {
		fmt.Fprintf(Stderr, "WARNING: failed to activate logging: %v\n", err)
	}
}

func main() {
	defer func() {
		if v := recover(); v != nil {
			if e, ok := v.(*exitStatus); ok {
				os.Exit(e.code)
			}
			panic(v)
		}
	}()

	if err := run(); err != nil {
		fmt.Fprintf(Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type exitStatus struct {
	code int
}

func (e *exitStatus) Error() string {
	return fmt.Sprintf("internal error: exitStatus{%d} being handled as normal error", e.code)
}

func run() error {
	parser := Parser()
	_, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok {
			if e.Type == flags.ErrHelp || e.Type == flags.ErrCommandRequired {
				parser.WriteHelp(Stdout)
				return nil
			}
			if e.Type == flags.ErrUnknownCommand {
				return fmt.Errorf(`unknown command %q, see "backpork --help"`, os.Args[1])
			}
		}
	}
	return err
}
