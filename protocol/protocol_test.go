// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Types", func() {
	It("renders status bits", func() {
		Expect(FormatStatus(0)).To(Equal("ok"))
		Expect(FormatStatus(StatusBCIDMismatch | StatusCompressed)).To(Equal("bcid-mismatch|compressed"))
		Expect(FormatStatus(StatusError | 1<<14)).To(Equal("error|0x4000"))
	})

	It("splits source ids into class and instance", func() {
		id := TrackerSource | 3
		Expect(id.Class()).To(Equal(TrackerSource))
		Expect(id.Instance()).To(Equal(uint16(3)))
		Expect(id.String()).To(Equal("tracker/3"))
		Expect(SourceID(0x00990001).String()).To(Equal("0x00990001"))
	})

	It("names event tags", func() {
		Expect(TLBMonitoringTag.String()).To(Equal("tlb-monitoring"))
		Expect(EventTag(0x42).String()).To(Equal("EventTag(0x42)"))
	})
})

func TestProtocol(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Protocol Tests")
}
