// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"fmt"
	"strings"
)

// EventTag is the semantic classification of an event.
type EventTag uint8

// Known event tags.
const (
	PhysicsTag       EventTag = 0x00
	CalibrationTag   EventTag = 0x01
	MonitoringTag    EventTag = 0x02
	TLBMonitoringTag EventTag = 0x03
	CorruptedTag     EventTag = 0x08
	IncompleteTag    EventTag = 0x09
	DuplicateTag     EventTag = 0x0A
)

var eventTagNames = map[EventTag]string{
	PhysicsTag:       "physics",
	CalibrationTag:   "calibration",
	MonitoringTag:    "monitoring",
	TLBMonitoringTag: "tlb-monitoring",
	CorruptedTag:     "corrupted",
	IncompleteTag:    "incomplete",
	DuplicateTag:     "duplicate",
}

func (t EventTag) String() string {
	if name, ok := eventTagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventTag(0x%02X)", uint8(t))
}

// Status bits, shared by event and fragment headers.
const (
	StatusUnclassified uint16 = 1 << 0
	StatusBCIDMismatch uint16 = 1 << 1
	StatusTagMismatch  uint16 = 1 << 2
	StatusTimeout      uint16 = 1 << 3
	StatusOverflow     uint16 = 1 << 4
	StatusCorrupted    uint16 = 1 << 5
	StatusDummy        uint16 = 1 << 6
	StatusMissing      uint16 = 1 << 7
	StatusEmpty        uint16 = 1 << 8
	StatusDuplicate    uint16 = 1 << 9
	StatusError        uint16 = 1 << 10

	// StatusCompressed marks an event whose payload is stored compressed.
	StatusCompressed uint16 = 1 << 12
)

var statusNames = []struct {
	bit  uint16
	name string
}{
	{StatusUnclassified, "unclassified"},
	{StatusBCIDMismatch, "bcid-mismatch"},
	{StatusTagMismatch, "tag-mismatch"},
	{StatusTimeout, "timeout"},
	{StatusOverflow, "overflow"},
	{StatusCorrupted, "corrupted"},
	{StatusDummy, "dummy"},
	{StatusMissing, "missing"},
	{StatusEmpty, "empty"},
	{StatusDuplicate, "duplicate"},
	{StatusError, "error"},
	{StatusCompressed, "compressed"},
}

// FormatStatus renders a status bitmask as a "|"-separated list of flag
// names. Unknown bits are rendered in hex.
func FormatStatus(status uint16) string {
	if status == 0 {
		return "ok"
	}

	var parts []string
	for _, sn := range statusNames {
		if status&sn.bit != 0 {
			parts = append(parts, sn.name)
			status &^= sn.bit
		}
	}
	if status != 0 {
		parts = append(parts, fmt.Sprintf("0x%04X", status))
	}
	return strings.Join(parts, "|")
}

// SourceID identifies the sub-system that produced a fragment. The high 16
// bits select the sub-system class and the low 16 bits the instance.
type SourceID uint32

// Source classes.
const (
	SourceClassMask SourceID = 0xFFFF0000

	TriggerSource SourceID = 0x00020000
	TrackerSource SourceID = 0x00030000
	PMTSource     SourceID = 0x00040000
	BOBRSource    SourceID = 0x00050000
)

var sourceClassNames = map[SourceID]string{
	TriggerSource: "trigger",
	TrackerSource: "tracker",
	PMTSource:     "pmt",
	BOBRSource:    "bobr",
}

// Class returns the sub-system class portion of id.
func (id SourceID) Class() SourceID { return id & SourceClassMask }

// Instance returns the instance portion of id.
func (id SourceID) Instance() uint16 { return uint16(id) }

func (id SourceID) String() string {
	if name, ok := sourceClassNames[id.Class()]; ok {
		return fmt.Sprintf("%s/%d", name, id.Instance())
	}
	return fmt.Sprintf("0x%08X", uint32(id))
}
