// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package rawtool

import (
	"fmt"

	"github.com/danjacques/gorawevent/protocol"
	"github.com/danjacques/gorawevent/replay/eventfile"

	"github.com/dustin/go-humanize"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

// filterEnv is the environment filter expressions are evaluated in.
type filterEnv struct {
	Tag         string
	Run         int
	Counter     int
	EventID     int
	BCID        int
	TriggerBits int
	Status      int
	Fragments   int
	Size        int
	Compressed  bool

	// Source classes, for HasClass.
	TriggerClass int
	TrackerClass int
	PMTClass     int
	BOBRClass    int

	event *protocol.Event
}

func newFilterEnv(e *protocol.Event) filterEnv {
	return filterEnv{
		Tag:          e.Tag.String(),
		Run:          int(e.RunNumber),
		Counter:      int(e.EventCounter),
		EventID:      int(e.EventID),
		BCID:         int(e.BCID),
		TriggerBits:  int(e.TriggerBits),
		Status:       int(e.Status),
		Fragments:    e.NumFragments(),
		Size:         int(e.Size()),
		Compressed:   e.IsCompressed(),
		TriggerClass: int(protocol.TriggerSource),
		TrackerClass: int(protocol.TrackerSource),
		PMTClass:     int(protocol.PMTSource),
		BOBRClass:    int(protocol.BOBRSource),
		event:        e,
	}
}

// HasTrigger returns true if trigger bit is set.
func (env filterEnv) HasTrigger(bit int) bool { return env.TriggerBits&(1<<uint(bit)) != 0 }

// HasSource returns true if the event has a fragment from source id.
func (env filterEnv) HasSource(id int) bool {
	return env.event != nil && env.event.Fragment(protocol.SourceID(id)) != nil
}

// HasClass returns true if the event has a fragment of source class.
func (env filterEnv) HasClass(class int) bool {
	return env.event != nil && len(env.event.FragmentsOfClass(protocol.SourceID(class))) > 0
}

// eventFilter is a compiled filter expression.
type eventFilter struct {
	program *vm.Program
}

func compileFilter(src string) (*eventFilter, error) {
	program, err := expr.Compile(src, expr.Env(filterEnv{}), expr.AsBool())
	if err != nil {
		return nil, errors.Wrapf(err, "compiling filter %q", src)
	}
	return &eventFilter{program: program}, nil
}

func (f *eventFilter) match(e *protocol.Event) (bool, error) {
	out, err := expr.Run(f.program, newFilterEnv(e))
	if err != nil {
		return false, errors.Wrapf(err, "evaluating filter on event %d", e.EventCounter)
	}
	return out.(bool), nil
}

func (t *tool) filterCommand() *cli.Command {
	compression := new(eventfile.CompressionFlag)

	return &cli.Command{
		Name:      "filter",
		Usage:     "Write the events matching an expression to a new file",
		ArgsUsage: "<file>...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "expr", Required: true,
				Usage: "filter expression, e.g. 'HasClass(TrackerClass) && BCID > 100'"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "output file"},
			&cli.GenericFlag{Name: "compression", Value: compression,
				Usage: fmt.Sprintf("compression for uncompressed events (%s)", eventfile.CompressionFlagValues())},
			&cli.IntFlag{Name: "level", Usage: "compression level (0 for the default)"},
		},
		Action: func(c *cli.Context) error {
			return t.filterAction(c, compression)
		},
	}
}

func (t *tool) filterAction(c *cli.Context, compression *eventfile.CompressionFlag) (err error) {
	filter, err := compileFilter(c.String("expr"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	r, err := t.openReader(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, r.Close())
	}()

	wcfg := eventfile.WriterConfig{
		Compression:      compression.Value(),
		CompressionLevel: c.Int("level"),
	}
	w, err := wcfg.NewWriter(c.String("output"))
	if err != nil {
		return err
	}

	total := 0
	err = t.eachEvent(c, r, func(file string, offset int64, e *protocol.Event) error {
		total++
		ok, err := filter.match(e)
		if err != nil || !ok {
			return err
		}
		_, err = w.WriteEvent(e)
		return err
	})
	if err != nil {
		return multierr.Append(err, w.Abort())
	}
	if err := w.Close(); err != nil {
		return err
	}

	t.logger.Debugf("Filtered %d events into %q.", total, w.Path())
	fmt.Fprintf(c.App.Writer, "kept %d of %d events (%s) in %s\n",
		w.NumEvents(), total, humanize.Bytes(uint64(w.NumBytes())), w.Path())
	return nil
}
