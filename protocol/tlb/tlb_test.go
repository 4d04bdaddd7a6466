// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package tlb

import (
	"testing"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// validator is implemented by both payload views.
type validator interface {
	Valid() bool
}

// expectEveryBitFlipInvalid flips each bit of payload, except those in the
// trailing checksum word, and asserts that the resulting payload is either
// rejected outright or reports itself invalid.
func expectEveryBitFlipInvalid(payload []byte, open func([]byte) (validator, error)) {
	for i := 0; i < len(payload)-4; i++ {
		for bit := uint(0); bit < 8; bit++ {
			payload[i] ^= 1 << bit
			v, err := open(payload)
			if err == nil {
				Expect(v.Valid()).To(BeFalse(), "byte %d bit %d", i, bit)
			} else {
				Expect(errors.Cause(err)).To(Equal(ErrUnknownFormat))
			}
			payload[i] ^= 1 << bit
		}
	}
}

var _ = Describe("TriggerData", func() {
	rec := TriggerRecord{
		EventID:       0xABCDEF,
		OrbitID:       0x0123456,
		BCID:          0x7FF,
		InputBits:     0x5A,
		InputBitsNext: 0xA5,
		TBP:           0x2B,
		TAP:           0x11,
	}

	openTrigger := func(p []byte) (validator, error) { return NewTriggerData(p) }

	It("decodes a version 2 payload", func() {
		payload, err := rec.Marshal(2)
		Expect(err).ToNot(HaveOccurred())
		Expect(payload).To(HaveLen(7 * 4))

		td, err := NewTriggerData(payload)
		Expect(err).ToNot(HaveOccurred())
		Expect(td.Version()).To(Equal(2))
		Expect(td.Valid()).To(BeTrue())

		Expect(td.EventID()).To(Equal(uint32(0xABCDEF)))
		Expect(td.OrbitID()).To(Equal(uint32(0x0123456)))
		Expect(td.BCID()).To(Equal(uint16(0x7FF)))
		Expect(td.InputBits()).To(Equal(uint8(0x5A)))
		Expect(td.InputBitsNext()).To(Equal(uint8(0xA5)))
		Expect(td.TBP()).To(Equal(uint8(0x2B)))
		Expect(td.TAP()).To(Equal(uint8(0x11)))
	})

	It("is invalidated by any single bit flip", func() {
		payload, err := rec.Marshal(2)
		Expect(err).ToNot(HaveOccurred())
		expectEveryBitFlipInvalid(payload, openTrigger)
	})

	It("checks validity once, when the view is created", func() {
		payload, err := rec.Marshal(2)
		Expect(err).ToNot(HaveOccurred())

		td, err := NewTriggerData(payload)
		Expect(err).ToNot(HaveOccurred())

		// The view does not copy its payload, so later edits show through
		// the accessors but do not change the verdict.
		payload[trigBCID*4] ^= 0x01
		Expect(td.Valid()).To(BeTrue())
		Expect(td.ChecksumValid()).To(BeTrue())
		Expect(td.BCID()).To(Equal(uint16(0x7FE)))

		td, err = NewTriggerData(payload)
		Expect(err).ToNot(HaveOccurred())
		Expect(td.Valid()).To(BeFalse())
	})

	It("validates version 1 payloads by size alone", func() {
		payload, err := rec.Marshal(1)
		Expect(err).ToNot(HaveOccurred())
		Expect(payload).To(HaveLen(6 * 4))

		td, err := NewTriggerData(payload)
		Expect(err).ToNot(HaveOccurred())
		Expect(td.Version()).To(Equal(1))
		Expect(td.Valid()).To(BeTrue())
		Expect(td.OrbitID()).To(Equal(uint32(0x0123456)))

		td, err = NewTriggerData(payload[:5*4])
		Expect(err).ToNot(HaveOccurred())
		Expect(td.Valid()).To(BeFalse())
	})

	It("refuses field access on invalid payloads unless debugging", func() {
		payload, err := rec.Marshal(2)
		Expect(err).ToNot(HaveOccurred())
		payload[trigBCID*4] ^= 0x01

		td, err := NewTriggerData(payload)
		Expect(err).ToNot(HaveOccurred())
		Expect(td.Valid()).To(BeFalse())
		Expect(td.FramesValid()).To(BeTrue())
		Expect(td.ChecksumValid()).To(BeFalse())

		_, err = td.BCID()
		Expect(errors.Cause(err)).To(Equal(ErrInvalidData))

		td.SetDebug(true)
		Expect(td.BCID()).To(Equal(uint16(0x7FE)))
	})

	It("rejects unknown magic and short payloads", func() {
		_, err := NewTriggerData([]byte{1, 2})
		Expect(errors.Cause(err)).To(Equal(ErrUnknownFormat))

		_, err = NewTriggerData([]byte{0x50, 0x00, 0xAD, 0xFE})
		Expect(errors.Cause(err)).To(Equal(ErrUnknownFormat))

		_, err = rec.Marshal(3)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("MonitoringData", func() {
	var rec MonitoringRecord

	BeforeEach(func() {
		rec = MonitoringRecord{
			EventID:         12345,
			OrbitID:         999,
			BCID:            42,
			DeadtimeVeto:    7,
			BusyVeto:        8,
			RateLimiterVeto: 9,
			BCRVeto:         10,
			DigitizerBusy:   11,
		}
		for i := 0; i < TriggerLines; i++ {
			rec.TBP[i] = uint32(1000 + i)
			rec.TAP[i] = uint32(2000 + i)
			rec.TAV[i] = uint32(3000 + i)
		}
	})

	openMonitoring := func(p []byte) (validator, error) { return NewMonitoringData(p) }

	It("decodes a version 2 payload", func() {
		payload, err := rec.Marshal(2)
		Expect(err).ToNot(HaveOccurred())
		Expect(payload).To(HaveLen(28 * 4))

		md, err := NewMonitoringData(payload)
		Expect(err).ToNot(HaveOccurred())
		Expect(md.Valid()).To(BeTrue())

		Expect(md.EventID()).To(Equal(uint32(12345)))
		Expect(md.OrbitID()).To(Equal(uint32(999)))
		Expect(md.BCID()).To(Equal(uint16(42)))
		for i := 0; i < TriggerLines; i++ {
			Expect(md.TBP(i)).To(Equal(uint32(1000 + i)))
			Expect(md.TAP(i)).To(Equal(uint32(2000 + i)))
			Expect(md.TAV(i)).To(Equal(uint32(3000 + i)))
		}
		Expect(md.DeadtimeVeto()).To(Equal(uint32(7)))
		Expect(md.BusyVeto()).To(Equal(uint32(8)))
		Expect(md.RateLimiterVeto()).To(Equal(uint32(9)))
		Expect(md.BCRVeto()).To(Equal(uint32(10)))
		Expect(md.DigitizerBusy()).To(Equal(uint32(11)))

		_, err = md.TAV(TriggerLines)
		Expect(err).To(HaveOccurred())
	})

	It("is invalidated by any single bit flip", func() {
		payload, err := rec.Marshal(2)
		Expect(err).ToNot(HaveOccurred())
		expectEveryBitFlipInvalid(payload, openMonitoring)
	})

	It("detects misaligned frames even with a correct checksum", func() {
		payload, err := rec.Marshal(1)
		Expect(err).ToNot(HaveOccurred())
		md, err := NewMonitoringData(payload)
		Expect(err).ToNot(HaveOccurred())
		Expect(md.Valid()).To(BeTrue())
		Expect(md.NumWords()).To(Equal(27))

		// A version 2 magic on a version 1 body has neither frames nor checksum.
		payload[1] = 0x02
		md, err = NewMonitoringData(append(payload, 0, 0, 0, 0))
		Expect(err).ToNot(HaveOccurred())
		Expect(md.SizeValid()).To(BeTrue())
		Expect(md.FramesValid()).To(BeFalse())
		Expect(md.Valid()).To(BeFalse())
	})
})

func TestTLB(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Testing tlb")
}
