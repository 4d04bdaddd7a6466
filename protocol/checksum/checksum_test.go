// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package checksum

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Fletcher32", func() {
	It("computes known values", func() {
		Expect(Fletcher32(nil)).To(BeZero())
		// Halves 0x0001, 0x0000: sum1 = 1, sum2 = 1 + 1.
		Expect(Fletcher32([]uint32{1})).To(Equal(uint32(0x00020001)))
		// Halves 0x0002, 0x0001: sum1 = 2, 3; sum2 = 2, 5.
		Expect(Fletcher32([]uint32{0x00010002})).To(Equal(uint32(0x00050003)))
	})

	It("reduces its sums modulo 65535", func() {
		// Halves 0xFFFF, 0xFFFF both reduce to zero.
		Expect(Fletcher32([]uint32{0xFFFFFFFF})).To(BeZero())
	})

	It("detects every single-bit flip in a sealed record", func() {
		words := []uint32{0xFEAD020A, 0x10000001, 0x20000002, 0x30000003, 0x40000004, 0x50000005, 0}
		Seal(words)
		Expect(Verify(words)).To(BeTrue())

		for i := 0; i < len(words)-1; i++ {
			for bit := uint(0); bit < 32; bit++ {
				words[i] ^= 1 << bit
				Expect(Verify(words)).To(BeFalse(), "word %d bit %d", i, bit)
				words[i] ^= 1 << bit
			}
		}
		Expect(Verify(words)).To(BeTrue())
	})

	It("converts between payloads and words", func() {
		payload := PutWords([]uint32{0x04030201, 0x08070605})
		Expect(payload).To(Equal([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
		Expect(Words(append(payload, 9))).To(Equal([]uint32{0x04030201, 0x08070605}))
	})

	It("never verifies an empty record", func() {
		Expect(Verify(nil)).To(BeFalse())
	})
})

func TestChecksum(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Testing checksum")
}
