package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		basePath string
		storage  *LocalStorage
	)

	BeforeEach(func() {
		basePath = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(basePath, "archive"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Archive", func() {
		It("should write the image as <receiptID>.png and return the ref", func() {
			ref, err := storage.Archive("receipt-123", []byte("png bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(ref).To(Equal("receipt-123.png"))

			data, err := os.ReadFile(filepath.Join(basePath, "archive", "receipt-123.png"))
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("png bytes")))
		})
	})

	Describe("Get", func() {
		BeforeEach(func() {
			_, err := storage.Archive("receipt-123", []byte("png bytes"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should round-trip an archived image by ref", func() {
			data, err := storage.Get("receipt-123.png")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("png bytes")))
		})

		When("the ref does not exist", func() {
			It("should return an error", func() {
				_, err := storage.Get("missing.png")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Delete", func() {
		BeforeEach(func() {
			_, err := storage.Archive("receipt-123", []byte("png bytes"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should remove the archived image", func() {
			Expect(storage.Delete("receipt-123.png")).To(Succeed())
			_, err := storage.Get("receipt-123.png")
			Expect(err).To(HaveOccurred())
		})
	})
})
