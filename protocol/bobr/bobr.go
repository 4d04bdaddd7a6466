// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package bobr decodes beam-monitor payloads received from the accelerator's
// beam synchronous timing broadcast.
package bobr

import (
	"encoding/binary"
	"time"

	"github.com/danjacques/gorawevent/protocol"

	"github.com/pkg/errors"
)

// Magic is the first word of every beam-monitor payload.
const Magic uint32 = 0xFEAD000B

var (
	// ErrInvalidData is returned when accessing fields of an invalid payload.
	ErrInvalidData = protocol.ErrInvalidData

	// ErrUnknownFormat is returned when a payload's magic word is not Magic, or
	// the payload is too short to hold one.
	ErrUnknownFormat = errors.New("unknown payload format")
)

// Status bits.
const (
	StatusTTCReady    uint32 = 1 << 0
	StatusClockLocked uint32 = 1 << 1
	StatusBSTReceived uint32 = 1 << 2
	StatusBSTValid    uint32 = 1 << 3
	StatusGPSLocked   uint32 = 1 << 4
)

const (
	wordStatus = 1 + iota
	wordGPSSeconds
	wordGPSMicros
	wordTurnCount
	wordFillNumber
	wordModeMomentum
	wordBeam1Intensity
	wordBeam2Intensity

	// NumWords is the number of 32-bit words in a payload.
	NumWords
)

// Size is the size of a beam-monitor payload, in bytes.
const Size = NumWords * 4

// Data is a read-only view of a beam-monitor payload.
//
// It does not copy the payload, and must not outlive it.
type Data struct {
	payload []byte
	debug   bool
}

// New returns a view of payload. An error is returned if the payload does not
// begin with Magic.
func New(payload []byte) (*Data, error) {
	if len(payload) < 4 {
		return nil, errors.Wrapf(ErrUnknownFormat, "payload is %d bytes", len(payload))
	}
	if magic := binary.LittleEndian.Uint32(payload); magic != Magic {
		return nil, errors.Wrapf(ErrUnknownFormat, "magic 0x%08X", magic)
	}
	return &Data{payload: payload}, nil
}

// Valid returns true if the payload has the expected size. Beam-monitor
// payloads carry no checksum.
func (d *Data) Valid() bool { return len(d.payload) == Size }

// SetDebug enables or disables best-effort field access on invalid payloads.
func (d *Data) SetDebug(debug bool) { d.debug = debug }

func (d *Data) word(i int) (uint32, error) {
	if !d.debug && !d.Valid() {
		return 0, errors.Wrapf(ErrInvalidData, "beam monitor payload is %d bytes, expected %d", len(d.payload), Size)
	}
	if off := i * 4; off+4 <= len(d.payload) {
		return binary.LittleEndian.Uint32(d.payload[off:]), nil
	}
	return 0, nil
}

// Status returns the raw status word.
func (d *Data) Status() (uint32, error) { return d.word(wordStatus) }

func (d *Data) statusBit(bit uint32) (bool, error) {
	v, err := d.Status()
	return v&bit != 0, err
}

// TTCReady reports whether the timing receiver was ready.
func (d *Data) TTCReady() (bool, error) { return d.statusBit(StatusTTCReady) }

// ClockLocked reports whether the machine clock was locked.
func (d *Data) ClockLocked() (bool, error) { return d.statusBit(StatusClockLocked) }

// BSTReceived reports whether a beam synchronous timing message was received.
func (d *Data) BSTReceived() (bool, error) { return d.statusBit(StatusBSTReceived) }

// BSTValid reports whether the received timing message passed its own checks.
func (d *Data) BSTValid() (bool, error) { return d.statusBit(StatusBSTValid) }

// GPSLocked reports whether the GPS time source was locked.
func (d *Data) GPSLocked() (bool, error) { return d.statusBit(StatusGPSLocked) }

// GPSTime returns the GPS timestamp of the timing message, in UTC.
func (d *Data) GPSTime() (time.Time, error) {
	sec, err := d.word(wordGPSSeconds)
	if err != nil {
		return time.Time{}, err
	}
	usec, err := d.word(wordGPSMicros)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(sec), int64(usec)*int64(time.Microsecond)).UTC(), nil
}

// TurnCount returns the machine turn counter.
func (d *Data) TurnCount() (uint32, error) { return d.word(wordTurnCount) }

// FillNumber returns the machine fill number.
func (d *Data) FillNumber() (uint32, error) { return d.word(wordFillNumber) }

// MachineMode returns the accelerator's machine mode code.
func (d *Data) MachineMode() (uint16, error) {
	v, err := d.word(wordModeMomentum)
	return uint16(v), err
}

// BeamMomentum returns the beam momentum, in GeV/c.
func (d *Data) BeamMomentum() (uint16, error) {
	v, err := d.word(wordModeMomentum)
	return uint16(v >> 16), err
}

// BeamIntensity returns the intensity of beam 1 or 2, in units of 10^10
// protons.
func (d *Data) BeamIntensity(beam int) (uint32, error) {
	switch beam {
	case 1:
		return d.word(wordBeam1Intensity)
	case 2:
		return d.word(wordBeam2Intensity)
	default:
		return 0, errors.Errorf("unknown beam %d", beam)
	}
}

// Record holds beam-monitor field values for encoding.
type Record struct {
	Status       uint32
	GPSTime      time.Time
	TurnCount    uint32
	FillNumber   uint32
	MachineMode  uint16
	BeamMomentum uint16
	Beam1        uint32
	Beam2        uint32
}

// Marshal encodes r as a beam-monitor payload.
func (r *Record) Marshal() []byte {
	words := [NumWords]uint32{
		Magic,
		r.Status,
		uint32(r.GPSTime.Unix()),
		uint32(r.GPSTime.Nanosecond() / int(time.Microsecond)),
		r.TurnCount,
		r.FillNumber,
		uint32(r.BeamMomentum)<<16 | uint32(r.MachineMode),
		r.Beam1,
		r.Beam2,
	}

	payload := make([]byte, Size)
	for i, w := range words {
		binary.LittleEndian.PutUint32(payload[i*4:], w)
	}
	return payload
}
