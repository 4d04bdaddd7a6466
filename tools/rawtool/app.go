// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package rawtool defines the logic for the "rawtool" app.
//
// rawtool reads raw event files through a reader session. It can dump their
// events, filter them into a new file, index them into an event catalog, and
// summarize them.
package rawtool

import (
	"fmt"
	"io"
	"os"

	"github.com/danjacques/gorawevent/protocol"
	"github.com/danjacques/gorawevent/replay/reader"
	"github.com/danjacques/gorawevent/replay/source"
	"github.com/danjacques/gorawevent/support/logging"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// Main is the main entry point.
func Main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		code := 1
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			code = ec.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(code)
	}
}

// errStop is returned by an eachEvent callback to stop reading early.
var errStop = errors.New("stop reading")

// tool is the state shared by every command.
type tool struct {
	cfg      Config
	logger   *zap.SugaredLogger
	registry *source.Registry
}

func newApp(stdout, stderr io.Writer) *cli.App {
	var t tool

	return &cli.App{
		Name:      "rawtool",
		Usage:     "Inspect and process raw event files",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML configuration file; flags override its values"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "sequence", Usage: "continue past the named files into their numbered sequence"},
			&cli.IntFlag{Name: "probe-attempts", Usage: "sequence numbers probed for a continuation file",
				Value: reader.DefaultProbeAttempts},
			&cli.StringFlag{Name: "hit-policy", Usage: "tracker hit policy (level, edge)", Value: "level"},
			&cli.BoolFlag{Name: "debug", Usage: "decode fields of invalid hardware payloads"},
			&cli.StringFlag{Name: "catalog", Usage: "event catalog database path"},
			&cli.StringFlag{Name: "s3-region", Usage: "AWS region for s3: names"},
			&cli.StringFlag{Name: "s3-endpoint", Usage: "custom endpoint for s3: names"},
			&cli.BoolFlag{Name: "s3-path-style", Usage: "use path-style S3 addressing"},
		},
		Before: t.setup,
		After: func(*cli.Context) error {
			if t.logger != nil {
				_ = t.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			t.dumpCommand(),
			t.filterCommand(),
			t.indexCommand(),
			t.inspectCommand(),
		},
		// Main owns exiting.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func (t *tool) setup(c *cli.Context) error {
	if path := c.String("config"); path != "" {
		cfg, err := LoadConfig(path)
		if err != nil {
			return err
		}
		t.cfg = *cfg
	}
	t.cfg.applyFlags(c)
	if _, err := t.cfg.hitPolicy(); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	t.logger = logging.NewZap(c.App.ErrWriter, t.cfg.Verbose)

	var opts source.Options
	if t.cfg.S3.enabled() {
		client, err := source.NewS3Client(c.Context, t.cfg.S3.sourceConfig())
		if err != nil {
			return errors.Wrap(err, "creating S3 client")
		}
		opts.S3 = &source.S3Opener{Client: client}
	}
	t.registry = source.DefaultRegistry(opts)
	return nil
}

// openReader opens a reader session over the command's arguments.
func (t *tool) openReader(c *cli.Context) (*reader.Reader, error) {
	names := c.Args().Slice()
	if len(names) == 0 {
		return nil, cli.Exit("at least one file is required", 2)
	}

	r, err := reader.Open(c.Context, names, reader.Options{
		Registry:        t.registry,
		SequenceReading: t.cfg.Sequence,
		ProbeAttempts:   t.cfg.ProbeAttempts,
		Logger:          t.logger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening files")
	}
	return r, nil
}

// eachEvent reads events from r until the end of the stream, calling fn with
// each event's file and offset. A file whose tail is truncated is skipped with
// a warning. Otherwise it stops at the first error, or when fn returns errStop.
func (t *tool) eachEvent(c *cli.Context, r *reader.Reader, fn func(file string, offset int64, e *protocol.Event) error) error {
	for {
		file := r.CurrentFile()
		offset, err := r.Position()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		e, err := r.Next(c.Context)
		switch {
		case err == io.EOF:
			return nil
		case errors.Cause(err) == reader.ErrOutOfFileBoundary:
			t.logger.Warnf("Skipping truncated file %q: %s", file, err)
			if err := r.SkipFile(c.Context); err != nil && err != io.EOF {
				return errors.Wrapf(err, "skipping %q", file)
			}
			continue
		case err != nil:
			return errors.Wrapf(err, "reading %q @%d", file, offset)
		}
		switch err := fn(file, offset, e); err {
		case nil:
		case errStop:
			return nil
		default:
			return err
		}
	}
}
