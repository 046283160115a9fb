package enrich

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/tomwr/receiptflow/internal/receipt"
)

var _ = Describe("SerperClient", func() {
	var (
		server *ghttp.Server
		client *SerperClient
		info   *receipt.VendorInfo
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		client = NewSerperClientWithBaseURL("test-key", server.URL())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		info, err = client.SearchVendor(context.Background(), "Blue Bottle Coffee")
	})

	When("the provider returns results", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/search"),
				ghttp.VerifyHeaderKV("X-API-KEY", "test-key"),
				ghttp.VerifyJSON(`{"q": "Blue Bottle Coffee official site address reviews", "num": 5}`),
				ghttp.RespondWith(http.StatusOK, `{
					"organic": [
						{"title": "Blue Bottle Coffee", "link": "https://bluebottlecoffee.com", "snippet": "Official site", "position": 1},
						{"title": "Blue Bottle - Yelp", "link": "https://yelp.com/biz/blue-bottle", "snippet": "Reviews", "position": 2}
					]
				}`),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return all results in order", func() {
			Expect(info.Results).To(HaveLen(2))
			Expect(info.Results[0].Title).To(Equal("Blue Bottle Coffee"))
			Expect(info.Results[0].URL).To(Equal("https://bluebottlecoffee.com"))
		})

		It("should score results by rank", func() {
			Expect(info.Results[0].Score).To(BeNumerically(">", info.Results[1].Score))
		})

		It("should adopt the first result as the vendor", func() {
			Expect(info.Vendor().Title).To(Equal("Blue Bottle Coffee"))
		})
	})

	When("the provider returns a non-success status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusForbidden, `{"message": "invalid key"}`))
		})

		It("should return an error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("status 403"))
		})
	})

	When("no API key is configured", func() {
		BeforeEach(func() {
			client = NewSerperClientWithBaseURL("", server.URL())
		})

		It("should fail with the missing credential error", func() {
			Expect(err).To(MatchError(ErrMissingCredential))
		})

		It("should not call the provider", func() {
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})

	When("the provider returns no organic results", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"organic": []}`))
		})

		It("should return an empty result list", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Results).To(BeEmpty())
			Expect(info.Vendor()).To(BeNil())
		})
	})
})
