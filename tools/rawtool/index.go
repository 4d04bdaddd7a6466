// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package rawtool

import (
	"fmt"

	"github.com/danjacques/gorawevent/protocol"
	"github.com/danjacques/gorawevent/replay/catalog"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

// indexBatchSize is the number of entries recorded per catalog transaction.
const indexBatchSize = 1024

func (t *tool) indexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "Record the location of every event in the event catalog",
		ArgsUsage: "<file>...",
		Action:    t.indexAction,
	}
}

func (t *tool) indexAction(c *cli.Context) (err error) {
	if t.cfg.Catalog == "" {
		return cli.Exit("a catalog path is required (--catalog)", 2)
	}

	cat, err := catalog.Open(t.cfg.Catalog)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, cat.Close())
	}()

	r, err := t.openReader(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, r.Close())
	}()

	var (
		batch []catalog.Entry
		total int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := cat.Record(c.Context, batch...); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	err = t.eachEvent(c, r, func(file string, offset int64, e *protocol.Event) error {
		batch = append(batch, catalog.EntryFor(file, offset, e))
		if len(batch) >= indexBatchSize {
			return flush()
		}
		return nil
	})
	if err = multierr.Append(err, flush()); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "indexed %d events into %s\n", total, t.cfg.Catalog)
	return nil
}
