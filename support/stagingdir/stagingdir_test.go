// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package stagingdir

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("D", func() {
	var tdir string

	BeforeEach(func() {
		var err error
		tdir, err = os.MkdirTemp("", "stagingdir_test")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tdir)).To(Succeed())
	})

	It("commits a staged file, replacing the destination", func() {
		dest := filepath.Join(tdir, "out.raw")
		Expect(os.WriteFile(dest, []byte("old"), 0644)).To(Succeed())

		sd, err := New(tdir, "stage")
		Expect(err).ToNot(HaveOccurred())
		Expect(os.WriteFile(sd.Path("data"), []byte("new"), 0644)).To(Succeed())

		stagePath := sd.Path("data")
		Expect(sd.CommitFile("data", dest)).To(Succeed())

		data, err := os.ReadFile(dest)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal("new"))

		_, err = os.Stat(filepath.Dir(stagePath))
		Expect(os.IsNotExist(err)).To(BeTrue())

		Expect(sd.CommitFile("data", dest)).To(MatchError(ErrInvalid))
	})

	It("destroys uncommitted contents", func() {
		sd, err := New(tdir, "stage")
		Expect(err).ToNot(HaveOccurred())
		p := sd.Path("a", "b")
		Expect(os.MkdirAll(filepath.Dir(p), 0755)).To(Succeed())
		Expect(os.WriteFile(p, nil, 0644)).To(Succeed())

		Expect(sd.Destroy()).To(Succeed())
		_, err = os.Stat(p)
		Expect(os.IsNotExist(err)).To(BeTrue())

		// Destroying twice is fine.
		Expect(sd.Destroy()).To(Succeed())
	})
})

func TestStagingDir(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Testing stagingdir")
}
