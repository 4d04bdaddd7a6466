// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bufferpool

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pool", func() {
	var bp Pool

	BeforeEach(func() {
		bp = Pool{MaxSize: 4096}
	})

	DescribeTable("rounds sizes up to their class",
		func(size, class int) {
			Expect(sizeClass(size)).To(Equal(class))
		},
		Entry("zero", 0, minClass),
		Entry("minimum", 64, minClass),
		Entry("just past the minimum", 65, 7),
		Entry("power of two", 1024, 10),
		Entry("odd size", 1000, 10),
	)

	It("returns buffers of the requested size", func() {
		b := bp.Get(100)
		Expect(b.Len()).To(Equal(100))
		Expect(b.Bytes()).To(HaveLen(100))
		Expect(cap(b.Bytes())).To(Equal(128))

		b.Truncate(10)
		Expect(b.Bytes()).To(HaveLen(10))
		b.Truncate(1000)
		Expect(b.Bytes()).To(HaveLen(10))
		b.Release()
	})

	It("allocates unpooled buffers past MaxSize", func() {
		b := bp.Get(5000)
		Expect(b.Bytes()).To(HaveLen(5000))
		Expect(b.class).To(Equal(-1))
		b.Release()
	})

	It("returns a buffer to the pool only when its last reference is released", func() {
		b := bp.Get(100)
		b.Retain()

		b.Release()
		Expect(b.pool).ToNot(BeNil())

		b.Release()
		Expect(b.pool).To(BeNil())
	})
})

func TestBufferPool(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Buffer pool tests")
}
