// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bobr

import (
	"testing"
	"time"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Data", func() {
	gpsTime := time.Date(2022, time.July, 5, 10, 47, 3, 125000000, time.UTC)
	rec := Record{
		Status:       StatusTTCReady | StatusClockLocked | StatusGPSLocked,
		GPSTime:      gpsTime,
		TurnCount:    11245,
		FillNumber:   7920,
		MachineMode:  11,
		BeamMomentum: 6800,
		Beam1:        25000,
		Beam2:        24800,
	}

	It("decodes every field", func() {
		d, err := New(rec.Marshal())
		Expect(err).ToNot(HaveOccurred())
		Expect(d.Valid()).To(BeTrue())

		Expect(d.TTCReady()).To(BeTrue())
		Expect(d.ClockLocked()).To(BeTrue())
		Expect(d.BSTReceived()).To(BeFalse())
		Expect(d.BSTValid()).To(BeFalse())
		Expect(d.GPSLocked()).To(BeTrue())

		ts, err := d.GPSTime()
		Expect(err).ToNot(HaveOccurred())
		Expect(ts.Equal(gpsTime)).To(BeTrue())

		Expect(d.TurnCount()).To(Equal(uint32(11245)))
		Expect(d.FillNumber()).To(Equal(uint32(7920)))
		Expect(d.MachineMode()).To(Equal(uint16(11)))
		Expect(d.BeamMomentum()).To(Equal(uint16(6800)))
		Expect(d.BeamIntensity(1)).To(Equal(uint32(25000)))
		Expect(d.BeamIntensity(2)).To(Equal(uint32(24800)))

		_, err = d.BeamIntensity(3)
		Expect(err).To(HaveOccurred())
	})

	It("is valid by size alone", func() {
		payload := rec.Marshal()
		payload[wordTurnCount*4] ^= 0xFF
		d, err := New(payload)
		Expect(err).ToNot(HaveOccurred())
		Expect(d.Valid()).To(BeTrue())

		d, err = New(payload[:Size-4])
		Expect(err).ToNot(HaveOccurred())
		Expect(d.Valid()).To(BeFalse())
		_, err = d.FillNumber()
		Expect(errors.Cause(err)).To(Equal(ErrInvalidData))

		d.SetDebug(true)
		Expect(d.FillNumber()).To(Equal(uint32(7920)))
		Expect(d.BeamIntensity(2)).To(BeZero())
	})

	It("rejects foreign payloads", func() {
		_, err := New([]byte{0x0A, 0x00, 0xAD, 0xFE})
		Expect(errors.Cause(err)).To(Equal(ErrUnknownFormat))

		_, err = New(nil)
		Expect(errors.Cause(err)).To(Equal(ErrUnknownFormat))
	})
})

func TestBOBR(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Testing bobr")
}
