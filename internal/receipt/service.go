package receipt

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IDGenerator generates unique IDs for receipts.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service is the persistence adapter: it owns the mapping between in-memory
// records and the stored decimal-string shape, archives original images, and
// keeps header/item deletion cascading.
type Service struct {
	db          DB
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source.
func NewService(db DB, storage Storage) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing.
func NewServiceWithDeps(db DB, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// SaveEnriched persists an enriched record and its line items, returning the
// new receipt ID. The original image bytes, when available, are archived
// best-effort; an archive failure never fails the save.
func (s *Service) SaveEnriched(rec *Record, imageData []byte) (string, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	originalImageURL := ""
	if len(imageData) > 0 {
		ref, err := s.storage.Archive(id, imageData)
		if err != nil {
			slog.Warn("Failed to archive original image", "receipt_id", id, "error", err)
		} else {
			originalImageURL = ref
		}
	}

	header := toStored(rec, id, originalImageURL, now)
	if err := s.db.CreateReceipt(header); err != nil {
		return "", fmt.Errorf("saving receipt: %w", err)
	}

	items := make([]StoredItem, 0, len(rec.Items))
	for _, item := range rec.Items {
		items = append(items, StoredItem{
			Name:        item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   decimalString(item.UnitPrice),
			TotalPrice:  item.TotalPrice.StringFixed(2),
			Category:    item.Category,
			Description: item.Description,
		})
	}
	if err := s.db.CreateReceiptItems(id, items); err != nil {
		return "", fmt.Errorf("saving receipt items: %w", err)
	}

	return id, nil
}

// GetReceipt retrieves a receipt header by ID.
func (s *Service) GetReceipt(id string) (*StoredReceipt, error) {
	rec, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return rec, nil
}

// GetReceiptWithItems retrieves a receipt header with its line items.
func (s *Service) GetReceiptWithItems(id string) (*StoredReceipt, []StoredItem, error) {
	rec, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, nil, fmt.Errorf("getting receipt: %w", err)
	}
	items, err := s.db.GetReceiptItems(id)
	if err != nil {
		return nil, nil, fmt.Errorf("getting receipt items: %w", err)
	}
	return rec, items, nil
}

// ListReceipts returns all receipt headers.
func (s *Service) ListReceipts() ([]*StoredReceipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// GetArchivedImage retrieves the archived original image of a receipt.
func (s *Service) GetArchivedImage(id string) ([]byte, error) {
	rec, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	if rec.OriginalImageURL == "" {
		return nil, fmt.Errorf("receipt %s has no archived image", id)
	}
	data, err := s.storage.Get(rec.OriginalImageURL)
	if err != nil {
		return nil, fmt.Errorf("getting archived image: %w", err)
	}
	return data, nil
}

// DeleteReceipt removes a receipt, its items and its archived image.
func (s *Service) DeleteReceipt(id string) error {
	rec, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if rec.OriginalImageURL != "" {
		if err := s.storage.Delete(rec.OriginalImageURL); err != nil {
			slog.Warn("Failed to delete archived image", "path", rec.OriginalImageURL, "error", err)
		}
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	return nil
}

// toStored maps an in-memory record to the persisted shape, re-applying
// defaults so persistence cannot fail on an incomplete record.
func toStored(rec *Record, id, originalImageURL string, now time.Time) *StoredReceipt {
	merchant := strings.TrimSpace(rec.MerchantName)
	if merchant == "" {
		merchant = DefaultMerchantName
	}
	currency := rec.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	return &StoredReceipt{
		ID:               id,
		MerchantName:     merchant,
		MerchantAddress:  rec.MerchantAddress,
		ReceiptDate:      rec.ReceiptDate,
		ReceiptTime:      rec.ReceiptTime,
		ReceiptNumber:    rec.ReceiptNumber,
		Subtotal:         rec.Subtotal.StringFixed(2),
		Tax:              rec.Tax.StringFixed(2),
		Tip:              rec.Tip.StringFixed(2),
		Total:            rec.Total.StringFixed(2),
		PaymentMethod:    rec.PaymentMethod,
		Currency:         currency,
		ImageURL:         rec.ImageURL,
		OriginalImageURL: originalImageURL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// decimalString renders an optional amount, mapping zero to absent.
func decimalString(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}
