// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package eventfile

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danjacques/gorawevent/protocol"
	"github.com/danjacques/gorawevent/protocol/compress"
	"github.com/danjacques/gorawevent/protocol/protocoltest"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

const sampleName = "data22.00008023.physics_Main.daq.RAW._lb0012._SFO-1._0001.data"

var _ = Describe("Metadata", func() {
	created := time.Date(2022, 7, 5, 12, 30, 0, 0, time.UTC)

	It("fills fields from a structured name", func() {
		md := NewMetadata("/data/raw/"+sampleName, created)
		Expect(md.FileName).To(Equal(sampleName))
		Expect(md.RunNumber).To(Equal(uint32(8023)))
		Expect(md.Project).To(Equal("data22"))
		Expect(md.StreamType).To(Equal("physics"))
		Expect(md.StreamName).To(Equal("Main"))
		Expect(md.LumiBlock).To(Equal(12))
		Expect(md.Application).To(Equal("SFO-1"))
		Expect(md.Sequence).To(Equal(1))

		_, err := md.UUID()
		Expect(err).ToNot(HaveOccurred())
	})

	It("records only the file name for unstructured names", func() {
		md := NewMetadata("/tmp/scratch.raw", created)
		Expect(md.FileName).To(Equal("scratch.raw"))
		Expect(md.RunNumber).To(BeZero())
	})

	It("matches names regardless of directory or source prefix", func() {
		md := NewMetadata(sampleName, created)
		Expect(md.MatchesName("/other/dir/" + sampleName)).To(BeTrue())
		Expect(md.MatchesName("mem:" + sampleName)).To(BeTrue())
		Expect(md.MatchesName("/data/raw/data22.00008023.physics_Main.daq.RAW._lb0012._SFO-1._0002.data")).To(BeFalse())
	})

	It("round-trips through a record", func() {
		md := NewMetadata(sampleName, created)
		md.Compression = "zstd"

		var buf bytes.Buffer
		n, err := WriteMetadata(&buf, md)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(int64(buf.Len())))
		buf.WriteString("trailing")

		r := bytes.NewReader(buf.Bytes())
		got, offset, err := ReadMetadata(r)
		Expect(err).ToNot(HaveOccurred())
		Expect(offset).To(Equal(n))
		Expect(got.FileName).To(Equal(md.FileName))
		Expect(got.GUID).To(Equal(md.GUID))
		Expect(got.Compression).To(Equal("zstd"))
		Expect(got.CreatedAt.Equal(created)).To(BeTrue())

		pos, err := r.Seek(0, io.SeekCurrent)
		Expect(err).ToNot(HaveOccurred())
		Expect(pos).To(Equal(n))
	})

	It("reports no metadata for bare event data", func() {
		data := protocoltest.MustBytes(protocoltest.MakeEvent(1, 2))
		r := bytes.NewReader(data)
		md, offset, err := ReadMetadata(r)
		Expect(err).ToNot(HaveOccurred())
		Expect(md).To(BeNil())
		Expect(offset).To(BeZero())

		pos, err := r.Seek(0, io.SeekCurrent)
		Expect(err).ToNot(HaveOccurred())
		Expect(pos).To(BeZero())
	})

	It("reports no metadata for an empty file", func() {
		md, offset, err := ReadMetadata(bytes.NewReader(nil))
		Expect(err).ToNot(HaveOccurred())
		Expect(md).To(BeNil())
		Expect(offset).To(BeZero())
	})

	It("rejects truncated records", func() {
		var buf bytes.Buffer
		_, err := WriteMetadata(&buf, NewMetadata(sampleName, created))
		Expect(err).ToNot(HaveOccurred())

		for _, size := range []int{6, buf.Len() - 1} {
			_, _, err := ReadMetadata(bytes.NewReader(buf.Bytes()[:size]))
			Expect(errors.Cause(err)).To(Equal(ErrMalformedMetadata), "size %d", size)
		}
	})

	It("rejects oversized records", func() {
		data := []byte(MetadataMagic + "\xFF\xFF\xFF\xFF")
		_, _, err := ReadMetadata(bytes.NewReader(data))
		Expect(errors.Cause(err)).To(Equal(ErrMalformedMetadata))
	})
})

var _ = Describe("Writer", func() {
	var tdir string
	var cfg WriterConfig
	created := time.Date(2022, 7, 5, 12, 30, 0, 0, time.UTC)

	BeforeEach(func() {
		var err error
		tdir, err = os.MkdirTemp("", "eventfile_test")
		Expect(err).ToNot(HaveOccurred())

		cfg = WriterConfig{
			NowFunc: func() time.Time { return created },
		}
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tdir)).To(Succeed())
	})

	// readAll reads the file at path, returning its metadata and events keyed by
	// offset.
	readAll := func(path string) (*Metadata, []int64, []*protocol.Event) {
		fd, err := os.Open(path)
		Expect(err).ToNot(HaveOccurred())
		defer fd.Close()

		md, _, err := ReadMetadata(fd)
		Expect(err).ToNot(HaveOccurred())

		var offsets []int64
		var events []*protocol.Event
		for {
			pos, err := fd.Seek(0, io.SeekCurrent)
			Expect(err).ToNot(HaveOccurred())

			e, err := protocol.ReadEvent(fd)
			if err == io.EOF {
				break
			}
			Expect(err).ToNot(HaveOccurred())
			offsets = append(offsets, pos)
			events = append(events, e)
		}
		return md, offsets, events
	}

	DescribeTable("writes events that read back identically",
		func(code compress.Code) {
			cfg.Compression = code
			path := filepath.Join(tdir, sampleName)

			w, err := cfg.NewWriter(path)
			Expect(err).ToNot(HaveOccurred())

			var wantOffsets []int64
			for i := uint64(0); i < 4; i++ {
				offset, err := w.WriteEvent(protocoltest.MakeEvent(i, int(i)+1))
				Expect(err).ToNot(HaveOccurred())
				wantOffsets = append(wantOffsets, offset)
			}
			Expect(w.NumEvents()).To(Equal(int64(4)))
			numBytes := w.NumBytes()

			// Nothing is visible until Close.
			_, err = os.Stat(path)
			Expect(os.IsNotExist(err)).To(BeTrue())
			Expect(w.Close()).To(Succeed())

			st, err := os.Stat(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(st.Size()).To(Equal(numBytes))

			md, offsets, events := readAll(path)
			Expect(md).ToNot(BeNil())
			Expect(md.FileName).To(Equal(sampleName))
			Expect(md.CreatedAt.Equal(created)).To(BeTrue())
			Expect(offsets).To(Equal(wantOffsets))
			Expect(events).To(HaveLen(4))
			for i, e := range events {
				Expect(e.EventCounter).To(Equal(uint64(i)))
				Expect(e.NumFragments()).To(Equal(i + 1))
				Expect(e.IsCompressed()).To(Equal(code != compress.None))
				Expect(e.Compression).To(Equal(code))

				want := protocoltest.MakeEvent(uint64(i), i+1)
				for _, id := range want.SourceIDs() {
					Expect(e.Fragment(id).Payload).To(Equal(want.Fragment(id).Payload))
				}
			}

			// The staging directory is gone.
			entries, err := os.ReadDir(tdir)
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(HaveLen(1))
		},
		Entry("uncompressed", compress.None),
		Entry("zstd", compress.Zstd),
		Entry("gzip", compress.Gzip),
		Entry("lz4", compress.LZ4),
	)

	It("commits an empty file containing only metadata", func() {
		path := filepath.Join(tdir, "empty.data")
		w, err := cfg.NewWriter(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(w.Close()).To(Succeed())

		md, _, events := readAll(path)
		Expect(md.FileName).To(Equal("empty.data"))
		Expect(events).To(BeEmpty())
	})

	It("writes bare files when metadata is omitted", func() {
		cfg.OmitMetadata = true
		path := filepath.Join(tdir, "bare.data")
		w, err := cfg.NewWriter(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(w.Metadata()).To(BeNil())

		offset, err := w.WriteEvent(protocoltest.MakeEvent(7, 2))
		Expect(err).ToNot(HaveOccurred())
		Expect(offset).To(BeZero())
		Expect(w.Close()).To(Succeed())

		md, offsets, events := readAll(path)
		Expect(md).To(BeNil())
		Expect(offsets).To(Equal([]int64{0}))
		Expect(events[0].EventCounter).To(Equal(uint64(7)))
	})

	It("leaves nothing behind when aborted", func() {
		path := filepath.Join(tdir, "aborted.data")
		w, err := cfg.NewWriter(path)
		Expect(err).ToNot(HaveOccurred())
		_, err = w.WriteEvent(protocoltest.MakeEvent(1, 1))
		Expect(err).ToNot(HaveOccurred())
		Expect(w.Abort()).To(Succeed())

		entries, err := os.ReadDir(tdir)
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})
})

var _ = Describe("CompressionFlag", func() {
	It("parses compression names", func() {
		var cf CompressionFlag
		Expect(cf.Value()).To(Equal(compress.None))

		Expect(cf.Set("lz4")).To(Succeed())
		Expect(cf.Value()).To(Equal(compress.LZ4))
		Expect(cf.String()).To(Equal("lz4"))
		Expect(cf.Type()).ToNot(BeEmpty())
	})

	It("rejects unknown names", func() {
		var cf CompressionFlag
		Expect(cf.Set("brotli")).ToNot(Succeed())
		Expect(CompressionFlagValues()).To(ContainSubstring("zstd"))
	})

	It("configures a writer from command-line flags", func() {
		cfg := WriterConfig{CompressionLevel: 2}
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		cfg.AddFlags(fs)

		Expect(fs.Lookup("compression-level").DefValue).To(Equal("2"))
		Expect(fs.Parse([]string{"--compression", "zstd", "--compression-level=5", "--omit-metadata",
			"--staging-dir", "/tmp/staging"})).To(Succeed())
		Expect(cfg.Compression).To(Equal(compress.Zstd))
		Expect(cfg.CompressionLevel).To(Equal(5))
		Expect(cfg.OmitMetadata).To(BeTrue())
		Expect(cfg.TempDir).To(Equal("/tmp/staging"))

		Expect(fs.Parse([]string{"--compression", "brotli"})).ToNot(Succeed())
	})
})

func TestEventFile(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Event file tests")
}
