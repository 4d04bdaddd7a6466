// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package rawtool

import (
	"fmt"
	"io"
	"sort"

	"github.com/danjacques/gorawevent/protocol"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/stat"
)

// fileSummary accumulates statistics about the events of one file.
type fileSummary struct {
	name string

	events     int
	compressed int
	sizes      []float64
	// stored and uncompressed are total payload byte counts.
	stored       uint64
	uncompressed uint64

	tags          map[protocol.EventTag]int
	classes       map[protocol.SourceID]int
	bcidMismatch  int
	firstCounter  uint64
	lastCounter   uint64
	counterGaps   int
	counterRepeat int
}

func newFileSummary(name string) *fileSummary {
	return &fileSummary{
		name:    name,
		tags:    make(map[protocol.EventTag]int),
		classes: make(map[protocol.SourceID]int),
	}
}

func (fs *fileSummary) add(e *protocol.Event) {
	if fs.events == 0 {
		fs.firstCounter = e.EventCounter
	} else {
		switch {
		case e.EventCounter == fs.lastCounter:
			fs.counterRepeat++
		case e.EventCounter != fs.lastCounter+1:
			fs.counterGaps++
		}
	}
	fs.lastCounter = e.EventCounter
	fs.events++

	fs.sizes = append(fs.sizes, float64(e.Size()))
	fs.stored += uint64(e.PayloadSize)
	fs.uncompressed += uint64(e.UncompressedSize())
	if e.IsCompressed() {
		fs.compressed++
	}
	if e.Status&protocol.StatusBCIDMismatch != 0 {
		fs.bcidMismatch++
	}

	fs.tags[e.Tag]++
	for _, id := range e.SourceIDs() {
		fs.classes[id.Class()]++
	}
}

func (fs *fileSummary) write(w io.Writer) {
	fmt.Fprintf(w, "%s: %d events, counters %d..%d (%d gaps, %d repeats)\n",
		fs.name, fs.events, fs.firstCounter, fs.lastCounter, fs.counterGaps, fs.counterRepeat)
	if fs.events == 0 {
		return
	}

	sorted := append([]float64(nil), fs.sizes...)
	sort.Float64s(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	fmt.Fprintf(w, "  event size: mean %s, stddev %s, median %s, max %s\n",
		humanize.Bytes(uint64(mean)), humanize.Bytes(uint64(std)), humanize.Bytes(uint64(median)),
		humanize.Bytes(uint64(sorted[len(sorted)-1])))

	ratio := 1.0
	if fs.stored > 0 {
		ratio = float64(fs.uncompressed) / float64(fs.stored)
	}
	fmt.Fprintf(w, "  payload: %s stored, %s uncompressed (%.2fx), %d compressed events\n",
		humanize.Bytes(fs.stored), humanize.Bytes(fs.uncompressed), ratio, fs.compressed)
	fmt.Fprintf(w, "  bcid mismatches: %d\n", fs.bcidMismatch)

	tags := make([]protocol.EventTag, 0, len(fs.tags))
	for tag := range fs.tags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	for _, tag := range tags {
		fmt.Fprintf(w, "  tag %s: %d\n", tag, fs.tags[tag])
	}

	classes := make([]protocol.SourceID, 0, len(fs.classes))
	for class := range fs.classes {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	for _, class := range classes {
		fmt.Fprintf(w, "  fragments of class 0x%08X: %d\n", uint32(class), fs.classes[class])
	}
}

func (t *tool) inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Summarize the events of each file",
		ArgsUsage: "<file>...",
		Action:    t.inspectAction,
	}
}

func (t *tool) inspectAction(c *cli.Context) (err error) {
	r, err := t.openReader(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, r.Close())
	}()

	var summaries []*fileSummary
	var current *fileSummary
	err = t.eachEvent(c, r, func(file string, offset int64, e *protocol.Event) error {
		if current == nil || current.name != file {
			current = newFileSummary(file)
			summaries = append(summaries, current)

			if md := r.Metadata(); md != nil {
				fmt.Fprintf(c.App.Writer, "%s: written as %s (GUID %s, run %d) at %s\n",
					file, md.FileName, md.GUID, md.RunNumber, md.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
		}
		current.add(e)
		return nil
	})
	if err != nil {
		return err
	}

	for _, fs := range summaries {
		fs.write(c.App.Writer)
	}
	return nil
}
