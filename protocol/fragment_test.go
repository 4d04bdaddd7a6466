// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Fragment", func() {
	var f *Fragment
	var data []byte

	BeforeEach(func() {
		f = NewFragment(TrackerSource|2, 0xDEADBEEF, 0x123, []byte{1, 2, 3, 4, 5, 6, 7})
		f.Tag = 0x04
		f.TriggerBits = 0x8001
		f.Status = StatusTimeout
		f.Timestamp = 1234567890

		var err error
		data, err = f.Bytes()
		Expect(err).ToNot(HaveOccurred())
	})

	It("serializes to header followed by payload", func() {
		Expect(data).To(HaveLen(FragmentHeaderSize + 7))
		Expect(data[0]).To(Equal(byte(FragmentMarker)))
		Expect(data[FragmentHeaderSize:]).To(Equal([]byte{1, 2, 3, 4, 5, 6, 7}))
		Expect(f.Size()).To(Equal(uint32(len(data))))
	})

	It("round-trips", func() {
		parsed, err := ParseFragment(data, false)
		Expect(err).ToNot(HaveOccurred())
		Expect(cmp.Diff(f, parsed)).To(BeEmpty())
	})

	It("round-trips an empty payload", func() {
		f = NewFragment(BOBRSource, 1, 2, nil)
		data, err := f.Bytes()
		Expect(err).ToNot(HaveOccurred())
		Expect(data).To(HaveLen(FragmentHeaderSize))

		parsed, err := ParseFragment(data, false)
		Expect(err).ToNot(HaveOccurred())
		Expect(cmp.Diff(f, parsed)).To(BeEmpty())
	})

	It("owns a copy of its payload", func() {
		parsed, err := ParseFragment(data, false)
		Expect(err).ToNot(HaveOccurred())
		data[FragmentHeaderSize] = 0xFF
		Expect(parsed.Payload[0]).To(Equal(byte(1)))
	})

	It("fails with ErrTruncated for every proper prefix", func() {
		for n := 0; n < len(data); n++ {
			_, err := ParseFragment(data[:n], false)
			Expect(errors.Cause(err)).To(Equal(ErrTruncated), "prefix length %d", n)

			_, err = ParseFragment(data[:n], true)
			Expect(errors.Cause(err)).To(Equal(ErrTruncated), "prefix length %d", n)
		}
	})

	It("handles trailing bytes according to allowExcess", func() {
		extended := append(append([]byte(nil), data...), 0xAA, 0xBB)

		_, err := ParseFragment(extended, false)
		Expect(errors.Cause(err)).To(Equal(ErrPayloadSizeMismatch))

		parsed, err := ParseFragment(extended, true)
		Expect(err).ToNot(HaveOccurred())
		Expect(cmp.Diff(f, parsed)).To(BeEmpty())
	})

	DescribeTable("rejects corrupted headers",
		func(offset int, value byte, expected error) {
			data[offset] = value
			_, err := ParseFragment(data, false)
			Expect(errors.Cause(err)).To(Equal(expected))
		},
		Entry("bad marker", 0, byte(0xBB), ErrMalformedHeader),
		Entry("bad version", 4, byte(0x02), ErrUnsupportedVersion),
		Entry("bad header size", 6, byte(40), ErrMalformedHeader),
		Entry("oversized payload", 8, byte(200), ErrTruncated),
	)

	It("refuses to serialize an inconsistent payload size", func() {
		f.PayloadSize++
		_, err := f.Bytes()
		Expect(errors.Cause(err)).To(Equal(ErrPayloadSizeMismatch))
	})
})
