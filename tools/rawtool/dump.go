// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package rawtool

import (
	"github.com/danjacques/gorawevent/protocol"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

func (t *tool) dumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Print events and their decoded fragments",
		ArgsUsage: "<file>...",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "stop after this many events (0 for all)"},
			&cli.BoolFlag{Name: "words", Usage: "include a hex dump of every payload"},
			&cli.Int64SliceFlag{Name: "offset", Usage: "dump only the events at these offsets of the first file"},
		},
		Action: t.dumpAction,
	}
}

func (t *tool) dumpAction(c *cli.Context) (err error) {
	policy, err := t.cfg.hitPolicy()
	if err != nil {
		return err
	}
	d := describer{
		w:      c.App.Writer,
		words:  c.Bool("words"),
		debug:  t.cfg.Debug,
		policy: policy,
		logger: t.logger,
	}

	r, err := t.openReader(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, r.Close())
	}()

	if offsets := c.Int64Slice("offset"); len(offsets) > 0 {
		file := r.CurrentFile()
		for _, offset := range offsets {
			e, err := r.ReadAt(offset)
			if err != nil {
				return err
			}
			d.describeEvent(file, offset, e)
		}
		return nil
	}

	limit, count := c.Int("limit"), 0
	return t.eachEvent(c, r, func(file string, offset int64, e *protocol.Event) error {
		d.describeEvent(file, offset, e)
		if count++; limit > 0 && count >= limit {
			return errStop
		}
		return nil
	})
}
