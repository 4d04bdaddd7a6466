// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol_test

import (
	"bytes"
	"io"
	"runtime"

	"github.com/danjacques/gorawevent/protocol"
	"github.com/danjacques/gorawevent/protocol/compress"
	"github.com/danjacques/gorawevent/protocol/protocoltest"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

func expectSameEvent(a, b *protocol.Event) {
	Expect(cmp.Diff(a.EventHeader, b.EventHeader)).To(BeEmpty())
	Expect(cmp.Diff(a.Fragments(), b.Fragments())).To(BeEmpty())
}

var _ = Describe("Event", func() {
	Context("building", func() {
		var e *protocol.Event

		BeforeEach(func() {
			e = protocol.NewEvent(protocol.PhysicsTag, 42, 7, 99)
		})

		It("accumulates header fields from fragments", func() {
			f1 := protocol.NewFragment(protocol.TrackerSource|1, 1000, 10, []byte{1, 2})
			f1.TriggerBits = 0x01
			f1.Status = protocol.StatusTimeout
			f2 := protocol.NewFragment(protocol.TrackerSource|2, 1001, 10, []byte{3})
			f2.TriggerBits = 0x10

			flags, err := e.AddFragment(f1)
			Expect(err).ToNot(HaveOccurred())
			Expect(flags).To(BeZero())
			flags, err = e.AddFragment(f2)
			Expect(err).ToNot(HaveOccurred())
			Expect(flags).To(BeZero())

			Expect(e.FragmentCount).To(Equal(uint8(2)))
			Expect(e.PayloadSize).To(Equal(f1.Size() + f2.Size()))
			Expect(e.TriggerBits).To(Equal(uint16(0x11)))
			Expect(e.Status).To(Equal(protocol.StatusTimeout))
			Expect(e.EventID).To(Equal(uint64(1000)))
			Expect(e.BCID).To(Equal(uint16(10)))
			Expect(e.SourceIDs()).To(Equal([]protocol.SourceID{protocol.TrackerSource | 1, protocol.TrackerSource | 2}))
		})

		It("flags BCID mismatches and lets the trigger override BCID", func() {
			_, err := e.AddFragment(protocol.NewFragment(protocol.TrackerSource, 1, 10, nil))
			Expect(err).ToNot(HaveOccurred())

			flags, err := e.AddFragment(protocol.NewFragment(protocol.PMTSource, 1, 11, nil))
			Expect(err).ToNot(HaveOccurred())
			Expect(flags).To(Equal(protocol.StatusBCIDMismatch))
			Expect(e.BCID).To(Equal(uint16(10)))
			Expect(e.Status & protocol.StatusBCIDMismatch).ToNot(BeZero())

			flags, err = e.AddFragment(protocol.NewFragment(protocol.TriggerSource, 1, 12, nil))
			Expect(err).ToNot(HaveOccurred())
			Expect(flags).To(Equal(protocol.StatusBCIDMismatch))
			Expect(e.BCID).To(Equal(uint16(12)))
		})

		It("adopts a first trigger fragment's BCID without a mismatch", func() {
			flags, err := e.AddFragment(protocol.NewFragment(protocol.TriggerSource, 5, 77, nil))
			Expect(err).ToNot(HaveOccurred())
			Expect(flags).To(BeZero())
			Expect(e.BCID).To(Equal(uint16(77)))
			Expect(e.EventID).To(Equal(uint64(5)))
		})

		It("rejects duplicate source ids", func() {
			_, err := e.AddFragment(protocol.NewFragment(protocol.BOBRSource, 1, 1, nil))
			Expect(err).ToNot(HaveOccurred())
			_, err = e.AddFragment(protocol.NewFragment(protocol.BOBRSource, 1, 1, []byte{1}))
			Expect(errors.Cause(err)).To(Equal(protocol.ErrDuplicateSourceID))
			Expect(e.NumFragments()).To(Equal(1))
		})

		It("selects fragments by class", func() {
			e = protocoltest.MakeEvent(1, 4)
			Expect(e.FragmentsOfClass(protocol.TrackerSource)).To(HaveLen(3))
			Expect(e.FragmentsOfClass(protocol.TriggerSource | 9)).To(HaveLen(1))
			Expect(e.FragmentsOfClass(protocol.PMTSource)).To(BeEmpty())
			Expect(e.Fragment(protocol.TrackerSource | 2).SourceID).To(Equal(protocol.TrackerSource | 2))
			Expect(e.Fragment(protocol.PMTSource)).To(BeNil())
		})
	})

	Context("serialization", func() {
		It("round-trips an uncompressed event", func() {
			e := protocoltest.MakeEvent(3, 5)
			data := protocoltest.MustBytes(e)
			Expect(int64(len(data))).To(Equal(e.Size()))

			parsed, err := protocol.ParseEvent(data)
			Expect(err).ToNot(HaveOccurred())
			expectSameEvent(e, parsed)
		})

		It("round-trips an empty event", func() {
			e := protocol.NewEvent(protocol.CalibrationTag, protocol.MaxRunNumber, 0, 0)
			parsed, err := protocol.ParseEvent(protocoltest.MustBytes(e))
			Expect(err).ToNot(HaveOccurred())
			expectSameEvent(e, parsed)
			Expect(parsed.RunNumber).To(Equal(uint32(protocol.MaxRunNumber)))
		})

		DescribeTable("round-trips a compressed event",
			func(code compress.Code) {
				e := protocoltest.MakeEvent(9, 6)
				Expect(e.Compress(code, 0)).To(Succeed())
				Expect(e.IsCompressed()).To(BeTrue())
				Expect(e.Compression).To(Equal(code))

				data := protocoltest.MustBytes(e)
				Expect(int64(len(data))).To(Equal(e.Size()))

				parsed, err := protocol.ParseEvent(data)
				Expect(err).ToNot(HaveOccurred())
				expectSameEvent(e, parsed)
				Expect(parsed.UncompressedSize()).To(Equal(e.UncompressedSize()))

				// Compressed events re-serialize their stored bytes verbatim.
				Expect(bytes.Equal(protocoltest.MustBytes(parsed), data)).To(BeTrue())

				// Removing compression yields the plain encoding.
				Expect(parsed.Compress(compress.None, 0)).To(Succeed())
				plain := protocoltest.MakeEvent(9, 6)
				Expect(bytes.Equal(protocoltest.MustBytes(parsed), protocoltest.MustBytes(plain))).To(BeTrue())
			},
			Entry("zstd", compress.Zstd),
			Entry("gzip", compress.Gzip),
			Entry("lz4", compress.LZ4),
		)

		It("discards compression when a fragment is added", func() {
			e := protocoltest.MakeEvent(1, 2)
			Expect(e.Compress(compress.Zstd, 3)).To(Succeed())
			_, err := e.AddFragment(protocol.NewFragment(protocol.PMTSource, 0, e.BCID, []byte{1}))
			Expect(err).ToNot(HaveOccurred())
			Expect(e.IsCompressed()).To(BeFalse())
			Expect(e.PayloadSize).To(Equal(e.UncompressedSize()))
		})
	})

	Context("parsing failures", func() {
		var data []byte

		BeforeEach(func() {
			data = protocoltest.MustBytes(protocoltest.MakeEvent(2, 3))
		})

		It("rejects an unknown compression code", func() {
			e := protocoltest.MakeEvent(2, 3)
			Expect(e.Compress(compress.Zstd, 0)).To(Succeed())
			data = protocoltest.MustBytes(e)
			data[5] = 9

			_, err := protocol.ParseEvent(data)
			Expect(errors.Cause(err)).To(Equal(protocol.ErrUnsupportedCompression))
		})

		It("reports decompression failures", func() {
			e := protocoltest.MakeEvent(2, 3)
			Expect(e.Compress(compress.Zstd, 0)).To(Succeed())
			data = protocoltest.MustBytes(e)
			data[protocol.EventHeaderSize] ^= 0xFF

			_, err := protocol.ParseEvent(data)
			Expect(errors.Cause(err)).To(Equal(protocol.ErrDecompressionFailed))
		})

		It("reports unclaimed payload bytes", func() {
			data[12]-- // Fragment count.
			_, err := protocol.ParseEvent(data)
			Expect(errors.Cause(err)).To(Equal(protocol.ErrPayloadSizeMismatch))
		})

		It("reports fragments overrunning the payload", func() {
			data[12]++
			_, err := protocol.ParseEvent(data)
			Expect(errors.Cause(err)).To(Equal(protocol.ErrTruncated))
		})

		It("reports truncated and oversized buffers", func() {
			_, err := protocol.ParseEvent(data[:len(data)-1])
			Expect(errors.Cause(err)).To(Equal(protocol.ErrTruncated))

			_, err = protocol.ParseEvent(append(data, 0))
			Expect(errors.Cause(err)).To(Equal(protocol.ErrPayloadSizeMismatch))

			_, err = protocol.ParseEvent(data[:protocol.EventHeaderSize-1])
			Expect(errors.Cause(err)).To(Equal(protocol.ErrTruncated))
		})

		It("rejects a bad marker and version", func() {
			bad := append([]byte(nil), data...)
			bad[0] = protocol.FragmentMarker
			_, err := protocol.ParseEvent(bad)
			Expect(errors.Cause(err)).To(Equal(protocol.ErrMalformedHeader))

			bad = append([]byte(nil), data...)
			bad[4] = 0x01
			_, err = protocol.ParseEvent(bad)
			Expect(errors.Cause(err)).To(Equal(protocol.ErrUnsupportedVersion))
		})
	})

	Context("ReadEvent", func() {
		It("reads consecutive events, then io.EOF", func() {
			var buf bytes.Buffer
			events := []*protocol.Event{protocoltest.MakeEvent(1, 1), protocoltest.MakeEvent(2, 3)}
			for _, e := range events {
				_, err := e.WriteTo(&buf)
				Expect(err).ToNot(HaveOccurred())
			}

			for _, e := range events {
				read, err := protocol.ReadEvent(&buf)
				Expect(err).ToNot(HaveOccurred())
				expectSameEvent(e, read)
			}
			_, err := protocol.ReadEvent(&buf)
			Expect(err).To(Equal(io.EOF))
		})

		It("reports a partial event as truncated", func() {
			data := protocoltest.MustBytes(protocoltest.MakeEvent(1, 2))

			_, err := protocol.ReadEvent(bytes.NewReader(data[:10]))
			Expect(errors.Cause(err)).To(Equal(protocol.ErrTruncated))

			_, err = protocol.ReadEvent(bytes.NewReader(data[:len(data)-1]))
			Expect(errors.Cause(err)).To(Equal(protocol.ErrTruncated))
		})

		It("does not trust the declared size of a header with no body", func() {
			h, err := protocol.ParseEventHeader(protocoltest.MustBytes(protocoltest.MakeEvent(1, 2)))
			Expect(err).ToNot(HaveOccurred())
			h.PayloadSize = 0xF0000000

			var buf bytes.Buffer
			_, err = h.WriteTo(&buf)
			Expect(err).ToNot(HaveOccurred())
			Expect(buf.Len()).To(Equal(protocol.EventHeaderSize))

			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			_, err = protocol.ReadEvent(&buf)
			runtime.ReadMemStats(&after)

			Expect(errors.Cause(err)).To(Equal(protocol.ErrTruncated))
			Expect(err).To(MatchError(ContainSubstring("read 0 of 4026531840 payload bytes")))
			Expect(after.TotalAlloc - before.TotalAlloc).To(BeNumerically("<", 1<<20))
		})
	})
})
