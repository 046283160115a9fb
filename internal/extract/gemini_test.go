package extract

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewGemini", func() {
	When("an API key is provided", func() {
		var g *Gemini

		BeforeEach(func() {
			var err error
			g, err = NewGemini("test-key", "gemini-2.5-pro")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			g.Close()
		})

		It("should constrain the extraction model to schema JSON output", func() {
			Expect(g.model.ResponseMIMEType).To(Equal("application/json"))
			Expect(g.model.ResponseSchema).To(Equal(receiptSchema))
		})

		It("should leave the transcription model unconstrained", func() {
			Expect(g.ocrModel.ResponseMIMEType).To(Equal(""))
			Expect(g.ocrModel.ResponseSchema).To(BeNil())
		})
	})

	When("no API key is provided", func() {
		It("should return an error", func() {
			_, err := NewGemini("", "gemini-2.5-pro")
			Expect(err).To(HaveOccurred())
		})
	})
})
