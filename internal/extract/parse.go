package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tomwr/receiptflow/internal/normalize"
	"github.com/tomwr/receiptflow/internal/receipt"
)

// extractPrompt is shared by all extraction providers. Providers that support
// schema-constrained output also attach a response schema; the prompt alone is
// enough for providers that do not.
const extractPrompt = `You are analyzing a receipt. Using the transcription and/or description provided, extract the structured receipt data.

Return ONLY valid JSON in this exact format:
{
  "merchant_name": "Store Name",
  "merchant_address": "123 Main St",
  "receipt_date": "YYYY-MM-DD",
  "receipt_time": "HH:MM",
  "receipt_number": "12345",
  "items": [
    {"name": "Item", "quantity": 1, "unit_price": 0.00, "total_price": 0.00, "category": "", "description": ""}
  ],
  "subtotal": 0.00,
  "tax": 0.00,
  "tip": 0.00,
  "total": 0.00,
  "payment_method": "card",
  "currency": "USD"
}

Important:
- The total must be the final amount actually charged, exactly as printed
- Dates in YYYY-MM-DD format, times in 24-hour HH:MM format
- All amounts must be numbers (not strings)
- Omit fields you cannot find rather than guessing
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// transcribePrompt asks for a verbatim transcription only; structure comes
// from the second pass.
const transcribePrompt = `Transcribe all text visible in this receipt image verbatim, preserving line breaks. Return only the transcription, no commentary.`

// parseReceiptJSON parses a model response into a receipt record. The text
// may be a partial accumulation from a stream; an error just means no
// complete JSON object has arrived yet.
func parseReceiptJSON(text string) (*receipt.Record, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("incomplete JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var rec receipt.Record
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling receipt: %w", err)
	}
	return &rec, nil
}

// finalizeRecord applies defaults and field normalization to an extracted
// record. Amounts default to zero values already; total stays exactly as
// extracted even when it disagrees with subtotal+tax+tip.
func finalizeRecord(rec *receipt.Record, imageURL string, now time.Time) {
	rec.MerchantName = strings.TrimSpace(rec.MerchantName)
	if rec.MerchantName == "" {
		rec.MerchantName = receipt.DefaultMerchantName
	}
	if rec.Currency == "" {
		rec.Currency = receipt.DefaultCurrency
	}
	rec.ReceiptDate = normalize.Date(rec.ReceiptDate, now)
	rec.ReceiptTime = normalize.Time(rec.ReceiptTime)
	if rec.ImageURL == "" {
		rec.ImageURL = imageURL
	}
	for i := range rec.Items {
		if strings.TrimSpace(rec.Items[i].Name) == "" {
			rec.Items[i].Name = receipt.DefaultItemName
		}
		if rec.Items[i].Quantity == 0 {
			rec.Items[i].Quantity = 1
		}
	}
}
