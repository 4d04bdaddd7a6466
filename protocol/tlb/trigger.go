// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package tlb

// Trigger data magic words.
const (
	TriggerMagicV1 uint32 = 0xFEAD000A
	TriggerMagicV2 uint32 = 0xFEAD020A
)

const (
	trigEventID = 1 + iota
	trigOrbitID
	trigBCID
	trigInputs
	trigPatterns
	trigDataWords
)

var triggerLayout = layout{
	name:   "trigger data",
	magic:  [3]uint32{0, TriggerMagicV1, TriggerMagicV2},
	words:  [3]int{0, trigDataWords, trigDataWords + 1},
	frames: []uint32{0, 0x1, 0x2, 0x3, 0x4, 0x5},
}

// TriggerData is a view of a trigger data payload.
type TriggerData struct {
	view
}

// NewTriggerData returns a view of payload.
//
// An error is returned only if payload is too short to hold a magic word or
// its magic word is unknown. Use Valid to check the rest of the payload.
func NewTriggerData(payload []byte) (*TriggerData, error) {
	v, err := newView(&triggerLayout, payload)
	if err != nil {
		return nil, err
	}
	return &TriggerData{v}, nil
}

// EventID returns the 24-bit L1 event id.
func (td *TriggerData) EventID() (uint32, error) { return td.field(trigEventID, 0, 0xFFFFFF) }

// OrbitID returns the 28-bit orbit id.
func (td *TriggerData) OrbitID() (uint32, error) { return td.field(trigOrbitID, 0, 0x0FFFFFFF) }

// BCID returns the 12-bit bunch-crossing id.
func (td *TriggerData) BCID() (uint16, error) {
	v, err := td.field(trigBCID, 0, 0xFFF)
	return uint16(v), err
}

// InputBits returns the trigger input bits for this clock.
func (td *TriggerData) InputBits() (uint8, error) {
	v, err := td.field(trigInputs, 0, 0xFF)
	return uint8(v), err
}

// InputBitsNext returns the trigger input bits for the following clock.
func (td *TriggerData) InputBitsNext() (uint8, error) {
	v, err := td.field(trigInputs, 8, 0xFF)
	return uint8(v), err
}

// TBP returns the six trigger-before-prescale bits.
func (td *TriggerData) TBP() (uint8, error) {
	v, err := td.field(trigPatterns, 0, 0x3F)
	return uint8(v), err
}

// TAP returns the six trigger-after-prescale bits.
func (td *TriggerData) TAP() (uint8, error) {
	v, err := td.field(trigPatterns, 8, 0x3F)
	return uint8(v), err
}

// TriggerRecord holds trigger data field values for encoding.
type TriggerRecord struct {
	EventID       uint32
	OrbitID       uint32
	BCID          uint16
	InputBits     uint8
	InputBitsNext uint8
	TBP           uint8
	TAP           uint8
}

// Marshal encodes r as a payload of the specified version. Version 2 payloads
// include frame ids and a checksum.
func (r *TriggerRecord) Marshal(version int) ([]byte, error) {
	words := make([]uint32, trigDataWords)
	words[trigEventID] = r.EventID & 0xFFFFFF
	words[trigOrbitID] = r.OrbitID & 0x0FFFFFFF
	words[trigBCID] = uint32(r.BCID) & 0xFFF
	words[trigInputs] = uint32(r.InputBitsNext)<<8 | uint32(r.InputBits)
	words[trigPatterns] = uint32(r.TAP&0x3F)<<8 | uint32(r.TBP&0x3F)
	return sealRecord(&triggerLayout, version, words)
}
