package extract

import (
	"context"

	"github.com/tomwr/receiptflow/internal/receipt"
)

// Input is the raw material for one extraction. At least one field should be
// meaningful, but neither is validated; an empty input yields the model's
// best-effort guess.
type Input struct {
	Description string
	ImageURL    string
}

// Output is the result of a successful extraction.
type Output struct {
	Record *receipt.Record

	// ImageData holds the fetched receipt image as PNG, nil when no image
	// URL was given or the fetch/conversion silently fell back.
	ImageData []byte

	// Degraded is set when the image fetch or the transcription pass
	// failed and extraction proceeded on the description alone. This is
	// not an error; subscribers cannot distinguish it from success.
	Degraded bool
}

// UpdateFunc receives each partial record as the extraction stream produces
// it. The last record passed is authoritative; earlier ones are replaced,
// not merged.
type UpdateFunc func(*receipt.Record)

// Extractor turns raw input into a structured receipt record.
type Extractor interface {
	// ExtractReceipt runs the extraction. onUpdate may be nil. An error
	// means no increment was produced at all; the caller treats that as
	// fatal.
	ExtractReceipt(ctx context.Context, input Input, onUpdate UpdateFunc) (*Output, error)

	// Close releases the underlying model client.
	Close() error
}
