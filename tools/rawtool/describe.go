// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package rawtool

import (
	"fmt"
	"io"
	"strings"

	"github.com/danjacques/gorawevent/protocol"
	"github.com/danjacques/gorawevent/protocol/bobr"
	"github.com/danjacques/gorawevent/protocol/tlb"
	"github.com/danjacques/gorawevent/protocol/tracker"
	"github.com/danjacques/gorawevent/support/fmtutil"
	"github.com/danjacques/gorawevent/support/logging"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	invalidColor = color.New(color.FgRed, color.Bold)
	headingColor = color.New(color.FgCyan)
)

// describer renders events as text.
type describer struct {
	w io.Writer

	// words, if true, includes a hex dump of every payload.
	words bool
	// debug, if true, decodes fields of invalid payloads anyway.
	debug bool
	// policy is the tracker hit policy.
	policy tracker.HitPolicy

	logger logging.L
}

func (d *describer) printf(indent int, format string, args ...interface{}) {
	fmt.Fprintf(d.w, "%s%s\n", strings.Repeat("  ", indent), fmt.Sprintf(format, args...))
}

func invalid(what string) string { return invalidColor.Sprint("INVALID " + what) }

// describeEvent writes e, read from file at offset.
func (d *describer) describeEvent(file string, offset int64, e *protocol.Event) {
	compression := ""
	if e.IsCompressed() {
		compression = fmt.Sprintf(" [%s %s -> %s]", e.Compression,
			humanize.Bytes(uint64(e.UncompressedSize())), humanize.Bytes(uint64(e.PayloadSize)))
	}
	d.printf(0, "%s %s@%d tag=%s run=%d id=0x%X bcid=%d trigger=0x%04X status=%s fragments=%d size=%s%s",
		headingColor.Sprintf("event #%d", e.EventCounter), file, offset, e.Tag, e.RunNumber, e.EventID, e.BCID,
		e.TriggerBits, protocol.FormatStatus(e.Status), e.NumFragments(), humanize.Bytes(uint64(e.Size())), compression)

	for _, f := range e.Fragments() {
		d.describeFragment(e, f)
	}
}

func (d *describer) describeFragment(e *protocol.Event, f *protocol.Fragment) {
	d.printf(1, "fragment %s bcid=%d trigger=0x%04X status=%s payload=%s",
		f.SourceID, f.BCID, f.TriggerBits, protocol.FormatStatus(f.Status), humanize.Bytes(uint64(f.PayloadSize)))

	switch f.SourceID.Class() {
	case protocol.TriggerSource:
		if e.Tag == protocol.TLBMonitoringTag {
			d.describeMonitoring(f.Payload)
		} else {
			d.describeTrigger(f.Payload)
		}
	case protocol.TrackerSource:
		d.describeTracker(f.Payload)
	case protocol.BOBRSource:
		d.describeBOBR(f.Payload)
	}

	if d.words {
		for _, line := range strings.Split(fmtutil.Words(f.Payload).String(), "\n") {
			d.printf(2, "%s", line)
		}
	}
}

// validity returns a marker for an invalid view, or "".
func validity(valid bool) string {
	if valid {
		return ""
	}
	return " " + invalid("payload")
}

func (d *describer) describeTrigger(payload []byte) {
	td, err := tlb.NewTriggerData(payload)
	if err != nil {
		d.printf(2, "tlb trigger: %s", invalid(err.Error()))
		return
	}
	td.SetDebug(d.debug)

	eventID, err := td.EventID()
	if err != nil {
		d.printf(2, "tlb trigger v%d:%s", td.Version(), validity(false))
		return
	}
	orbit, _ := td.OrbitID()
	bcid, _ := td.BCID()
	tbp, _ := td.TBP()
	tap, _ := td.TAP()
	d.printf(2, "tlb trigger v%d: event=%d orbit=%d bcid=%d tbp=0x%02X tap=0x%02X%s",
		td.Version(), eventID, orbit, bcid, tbp, tap, validity(td.Valid()))
}

func (d *describer) describeMonitoring(payload []byte) {
	md, err := tlb.NewMonitoringData(payload)
	if err != nil {
		d.printf(2, "tlb monitoring: %s", invalid(err.Error()))
		return
	}
	md.SetDebug(d.debug)

	eventID, err := md.EventID()
	if err != nil {
		d.printf(2, "tlb monitoring v%d:%s", md.Version(), validity(false))
		return
	}
	d.printf(2, "tlb monitoring v%d: event=%d%s", md.Version(), eventID, validity(md.Valid()))
	for line := 0; line < tlb.TriggerLines; line++ {
		tbp, _ := md.TBP(line)
		tap, _ := md.TAP(line)
		tav, _ := md.TAV(line)
		d.printf(3, "line %d: tbp=%d tap=%d tav=%d", line, tbp, tap, tav)
	}
	deadtime, _ := md.DeadtimeVeto()
	busy, _ := md.BusyVeto()
	rate, _ := md.RateLimiterVeto()
	bcr, _ := md.BCRVeto()
	digitizer, _ := md.DigitizerBusy()
	d.printf(3, "vetoes: deadtime=%d busy=%d rate-limiter=%d bcr=%d digitizer-busy=%d",
		deadtime, busy, rate, bcr, digitizer)
}

func (d *describer) describeTracker(payload []byte) {
	td, err := tracker.New(payload)
	if err != nil {
		d.printf(2, "tracker: %s", invalid(err.Error()))
		return
	}
	td.SetDebug(d.debug)
	td.Logger = d.logger

	modules, err := td.Modules(d.policy)
	if err != nil {
		d.printf(2, "tracker v%d:%s", td.Version(), validity(false))
		return
	}
	l1id, _ := td.L1ID()
	bcid, _ := td.BCID()
	d.printf(2, "tracker v%d: l1id=%d bcid=%d modules=%d hits=%d (%s)%s",
		td.Version(), l1id, bcid, len(modules), tracker.NumHits(modules), d.policy, validity(td.Valid()))

	for _, m := range modules {
		var flags []string
		if !m.Complete {
			flags = append(flags, "incomplete")
		}
		if m.MissingData {
			flags = append(flags, "missing-data")
		}
		if m.BCIDMismatch {
			flags = append(flags, "bcid-mismatch")
		}
		if m.Malformed {
			flags = append(flags, invalid("stream"))
		}
		if len(m.UnknownChips) > 0 {
			flags = append(flags, fmt.Sprintf("unknown-chips=%v", m.UnknownChips))
		}
		d.printf(3, "module %d: hits=%d chip-errors=%d %s", m.ID, len(m.Hits), len(m.ChipErrors),
			strings.Join(flags, " "))
	}
}

func (d *describer) describeBOBR(payload []byte) {
	bd, err := bobr.New(payload)
	if err != nil {
		d.printf(2, "bobr: %s", invalid(err.Error()))
		return
	}
	bd.SetDebug(d.debug)

	gps, err := bd.GPSTime()
	if err != nil {
		d.printf(2, "bobr:%s", validity(false))
		return
	}
	fill, _ := bd.FillNumber()
	turns, _ := bd.TurnCount()
	mode, _ := bd.MachineMode()
	momentum, _ := bd.BeamMomentum()
	b1, _ := bd.BeamIntensity(1)
	b2, _ := bd.BeamIntensity(2)
	ready, _ := bd.TTCReady()
	locked, _ := bd.ClockLocked()
	d.printf(2, "bobr: gps=%s fill=%d turns=%d mode=%d momentum=%d beam1=%d beam2=%d ttc-ready=%t clock-locked=%t%s",
		gps.Format("2006-01-02T15:04:05.000000Z"), fill, turns, mode, momentum, b1, b2, ready, locked,
		validity(bd.Valid()))
}
