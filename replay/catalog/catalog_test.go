// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/danjacques/gorawevent/protocol"
	"github.com/danjacques/gorawevent/protocol/protocoltest"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Catalog", func() {
	var (
		ctx  context.Context
		tdir string
		c    *Catalog
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		tdir, err = os.MkdirTemp("", "catalog_test")
		Expect(err).ToNot(HaveOccurred())

		c, err = Open(filepath.Join(tdir, "catalog.db"))
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(c.Close()).To(Succeed())
		Expect(os.RemoveAll(tdir)).To(Succeed())
	})

	entries := func(file string, counters ...uint64) []Entry {
		var ents []Entry
		offset := int64(0)
		for _, counter := range counters {
			e := protocoltest.MakeEvent(counter, 2)
			ents = append(ents, EntryFor(file, offset, e))
			offset += e.Size()
		}
		return ents
	}

	It("builds entries from events", func() {
		e := protocoltest.MakeEvent(3, 2)
		e.Status |= protocol.StatusBCIDMismatch

		ent := EntryFor("a.data", 100, e)
		Expect(ent).To(Equal(Entry{
			File:         "a.data",
			Offset:       100,
			Size:         e.Size(),
			RunNumber:    1337,
			EventCounter: 3,
			EventID:      0x1003,
			BCID:         3,
			Tag:          protocol.PhysicsTag,
			TriggerBits:  e.TriggerBits,
			Status:       e.Status,
		}))
	})

	It("records and looks up entries", func() {
		a := entries("a.data", 1, 2, 3)
		b := entries("b.data", 4, 5)
		Expect(c.Record(ctx, a...)).To(Succeed())
		Expect(c.Record(ctx, b...)).To(Succeed())

		ent, err := c.Lookup(ctx, 1337, 5)
		Expect(err).ToNot(HaveOccurred())
		Expect(ent).To(Equal(b[1]))

		offsets, err := c.Offsets(ctx, "a.data")
		Expect(err).ToNot(HaveOccurred())
		Expect(offsets).To(Equal([]int64{a[0].Offset, a[1].Offset, a[2].Offset}))

		files, err := c.Files(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(files).To(Equal([]string{"a.data", "b.data"}))
	})

	It("replaces entries at the same location", func() {
		a := entries("a.data", 1, 2)
		Expect(c.Record(ctx, a...)).To(Succeed())

		a[1].EventCounter = 9
		Expect(c.Record(ctx, a[1])).To(Succeed())

		got, err := c.Entries(ctx, "a.data")
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(a))

		_, err = c.Lookup(ctx, 1337, 2)
		Expect(errors.Cause(err)).To(Equal(ErrNotFound))
	})

	It("round-trips values using every bit", func() {
		ent := Entry{
			File:         "big.data",
			Offset:       1 << 40,
			Size:         1 << 20,
			RunNumber:    protocol.MaxRunNumber,
			EventCounter: 1<<64 - 1,
			EventID:      1 << 63,
			BCID:         0xFFFF,
			Tag:          protocol.DuplicateTag,
			TriggerBits:  0xFFFF,
			Status:       0xFFFF,
		}
		Expect(c.Record(ctx, ent)).To(Succeed())

		got, err := c.Lookup(ctx, ent.RunNumber, ent.EventCounter)
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(ent))
	})

	It("persists across opens", func() {
		Expect(c.Record(ctx, entries("a.data", 1)...)).To(Succeed())
		Expect(c.Close()).To(Succeed())

		var err error
		c, err = Open(filepath.Join(tdir, "catalog.db"))
		Expect(err).ToNot(HaveOccurred())

		_, err = c.Lookup(ctx, 1337, 1)
		Expect(err).ToNot(HaveOccurred())
	})
})

func TestCatalog(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Catalog tests")
}
