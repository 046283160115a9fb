package receipt

import "github.com/shopspring/decimal"

// Defaults applied when the extractor leaves a required field empty.
const (
	DefaultMerchantName = "Unknown Merchant"
	DefaultItemName     = "Unknown Item"
	DefaultCurrency     = "USD"
)

// Record is the canonical enriched receipt produced by one workflow run.
// Total is authoritative as extracted; it is never recomputed from
// subtotal+tax+tip even when they disagree.
type Record struct {
	MerchantName    string          `json:"merchant_name"`
	MerchantAddress string          `json:"merchant_address,omitempty"`
	ReceiptDate     string          `json:"receipt_date"`           // YYYY-MM-DD after normalization
	ReceiptTime     string          `json:"receipt_time,omitempty"` // HH:MM, empty when absent
	ReceiptNumber   string          `json:"receipt_number,omitempty"`
	Items           []LineItem      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Tip             decimal.Decimal `json:"tip"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	Currency        string          `json:"currency"`
	ImageURL        string          `json:"image_url,omitempty"`
}

// LineItem is one purchased item on a receipt. TotalPrice is independent of
// Quantity x UnitPrice; no cross-check is enforced.
type LineItem struct {
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Categorization is the expense category assigned to a whole receipt.
type Categorization struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"` // in [0,1]
	Rationale  string  `json:"rationale"`
}

// SearchResult is one entry returned by the vendor web search.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// VendorInfo is the raw result list from one vendor lookup. Only the first
// result is adopted as the vendor annotation on the merged record.
type VendorInfo struct {
	Results []SearchResult `json:"results"`
}

// Vendor returns the adopted vendor annotation, or nil when the search
// produced no results.
func (v *VendorInfo) Vendor() *SearchResult {
	if v == nil || len(v.Results) == 0 {
		return nil
	}
	return &v.Results[0]
}

// HasMerchant reports whether extraction produced a usable merchant name.
// The "Unknown Merchant" default counts as absent for enrichment purposes.
func (r *Record) HasMerchant() bool {
	return r.MerchantName != "" && r.MerchantName != DefaultMerchantName
}
