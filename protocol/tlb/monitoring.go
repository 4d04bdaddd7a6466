// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package tlb

import (
	"github.com/pkg/errors"
)

// Monitoring data magic words.
const (
	MonitoringMagicV1 uint32 = 0xFEAD0050
	MonitoringMagicV2 uint32 = 0xFEAD0250
)

// TriggerLines is the number of trigger lines with independent counters.
const TriggerLines = 6

const counterMask = 0x0FFFFFFF

const (
	monEventID = 1
	monOrbitID = 2
	monBCID    = 3
	monTBP     = 4
	monTAP     = monTBP + TriggerLines
	monTAV     = monTAP + TriggerLines

	monDeadtimeVeto    = monTAV + TriggerLines
	monBusyVeto        = monDeadtimeVeto + 1
	monRateLimiterVeto = monDeadtimeVeto + 2
	monBCRVeto         = monDeadtimeVeto + 3
	monDigitizerBusy   = monDeadtimeVeto + 4
	monDataWords       = monDeadtimeVeto + 5
)

var monitoringLayout = layout{
	name:   "monitoring data",
	magic:  [3]uint32{0, MonitoringMagicV1, MonitoringMagicV2},
	words:  [3]int{0, monDataWords, monDataWords + 1},
	frames: monitoringFrames(),
}

func monitoringFrames() []uint32 {
	frames := make([]uint32, monDataWords)
	frames[monEventID], frames[monOrbitID], frames[monBCID] = 0x1, 0x2, 0x3
	for i := 0; i < TriggerLines; i++ {
		frames[monTBP+i] = 0x4
		frames[monTAP+i] = 0x5
		frames[monTAV+i] = 0x6
	}
	for i, frame := 0, uint32(0x7); i < 5; i, frame = i+1, frame+1 {
		frames[monDeadtimeVeto+i] = frame
	}
	return frames
}

// MonitoringData is a view of a trigger monitoring payload.
type MonitoringData struct {
	view
}

// NewMonitoringData returns a view of payload.
//
// An error is returned only if payload is too short to hold a magic word or
// its magic word is unknown. Use Valid to check the rest of the payload.
func NewMonitoringData(payload []byte) (*MonitoringData, error) {
	v, err := newView(&monitoringLayout, payload)
	if err != nil {
		return nil, err
	}
	return &MonitoringData{v}, nil
}

// EventID returns the 24-bit L1 event id of the last event.
func (md *MonitoringData) EventID() (uint32, error) { return md.field(monEventID, 0, 0xFFFFFF) }

// OrbitID returns the 28-bit orbit id.
func (md *MonitoringData) OrbitID() (uint32, error) { return md.field(monOrbitID, 0, counterMask) }

// BCID returns the 12-bit bunch-crossing id.
func (md *MonitoringData) BCID() (uint16, error) {
	v, err := md.field(monBCID, 0, 0xFFF)
	return uint16(v), err
}

func (md *MonitoringData) line(base, line int) (uint32, error) {
	if line < 0 || line >= TriggerLines {
		return 0, errors.Errorf("trigger line %d out of range", line)
	}
	return md.field(base+line, 0, counterMask)
}

// TBP returns the trigger-before-prescale counter for a trigger line.
func (md *MonitoringData) TBP(line int) (uint32, error) { return md.line(monTBP, line) }

// TAP returns the trigger-after-prescale counter for a trigger line.
func (md *MonitoringData) TAP(line int) (uint32, error) { return md.line(monTAP, line) }

// TAV returns the trigger-after-veto counter for a trigger line.
func (md *MonitoringData) TAV(line int) (uint32, error) { return md.line(monTAV, line) }

// DeadtimeVeto returns the deadtime veto counter.
func (md *MonitoringData) DeadtimeVeto() (uint32, error) {
	return md.field(monDeadtimeVeto, 0, counterMask)
}

// BusyVeto returns the busy veto counter.
func (md *MonitoringData) BusyVeto() (uint32, error) { return md.field(monBusyVeto, 0, counterMask) }

// RateLimiterVeto returns the rate limiter veto counter.
func (md *MonitoringData) RateLimiterVeto() (uint32, error) {
	return md.field(monRateLimiterVeto, 0, counterMask)
}

// BCRVeto returns the bunch counter reset veto counter.
func (md *MonitoringData) BCRVeto() (uint32, error) { return md.field(monBCRVeto, 0, counterMask) }

// DigitizerBusy returns the digitizer busy counter.
func (md *MonitoringData) DigitizerBusy() (uint32, error) {
	return md.field(monDigitizerBusy, 0, counterMask)
}

// MonitoringRecord holds monitoring data field values for encoding.
type MonitoringRecord struct {
	EventID uint32
	OrbitID uint32
	BCID    uint16

	TBP [TriggerLines]uint32
	TAP [TriggerLines]uint32
	TAV [TriggerLines]uint32

	DeadtimeVeto    uint32
	BusyVeto        uint32
	RateLimiterVeto uint32
	BCRVeto         uint32
	DigitizerBusy   uint32
}

// Marshal encodes r as a payload of the specified version. Version 2 payloads
// include frame ids and a checksum.
func (r *MonitoringRecord) Marshal(version int) ([]byte, error) {
	words := make([]uint32, monDataWords)
	words[monEventID] = r.EventID & 0xFFFFFF
	words[monOrbitID] = r.OrbitID & counterMask
	words[monBCID] = uint32(r.BCID) & 0xFFF
	for i := 0; i < TriggerLines; i++ {
		words[monTBP+i] = r.TBP[i] & counterMask
		words[monTAP+i] = r.TAP[i] & counterMask
		words[monTAV+i] = r.TAV[i] & counterMask
	}
	words[monDeadtimeVeto] = r.DeadtimeVeto & counterMask
	words[monBusyVeto] = r.BusyVeto & counterMask
	words[monRateLimiterVeto] = r.RateLimiterVeto & counterMask
	words[monBCRVeto] = r.BCRVeto & counterMask
	words[monDigitizerBusy] = r.DigitizerBusy & counterMask
	return sealRecord(&monitoringLayout, version, words)
}
