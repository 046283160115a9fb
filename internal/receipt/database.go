package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptBucketName = "receipts"
	itemBucketName    = "receipt_items"
)

// StoredReceipt is the persisted header shape. Amounts are serialized as
// fixed-point decimal strings (2 places), never floats, to avoid rounding
// drift. Optional fields are omitted rather than stored empty.
type StoredReceipt struct {
	ID               string    `json:"id"`
	MerchantName     string    `json:"merchant_name"`
	MerchantAddress  string    `json:"merchant_address,omitempty"`
	ReceiptDate      string    `json:"receipt_date"`
	ReceiptTime      string    `json:"receipt_time,omitempty"`
	ReceiptNumber    string    `json:"receipt_number,omitempty"`
	Subtotal         string    `json:"subtotal"`
	Tax              string    `json:"tax"`
	Tip              string    `json:"tip"`
	Total            string    `json:"total"`
	PaymentMethod    string    `json:"payment_method,omitempty"`
	Currency         string    `json:"currency"`
	ImageURL         string    `json:"image_url,omitempty"`
	OriginalImageURL string    `json:"original_image_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StoredItem is one persisted line item, owned by its parent receipt and
// cascade-deleted with it.
type StoredItem struct {
	ReceiptID   string `json:"receipt_id"`
	Position    int    `json:"position"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price,omitempty"`
	TotalPrice  string `json:"total_price"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// DB defines the interface for receipt persistence.
type DB interface {
	// CreateReceipt saves a receipt header.
	CreateReceipt(rec *StoredReceipt) error

	// CreateReceiptItems bulk-inserts line items for a receipt.
	CreateReceiptItems(receiptID string, items []StoredItem) error

	// GetReceipt retrieves a receipt header by ID.
	GetReceipt(id string) (*StoredReceipt, error)

	// GetReceiptItems retrieves the line items of a receipt in order.
	GetReceiptItems(receiptID string) ([]StoredItem, error)

	// ListReceipts returns all receipt headers.
	ListReceipts() ([]*StoredReceipt, error)

	// DeleteReceipt removes a receipt and cascade-deletes its items.
	DeleteReceipt(id string) error

	// Close closes the database connection.
	Close() error
}

// BoltDB implements the DB interface using BoltDB.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(receiptBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(itemBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// itemKey orders items under their parent receipt; the zero-padded position
// keeps cursor iteration in insert order.
func itemKey(receiptID string, position int) []byte {
	return []byte(fmt.Sprintf("%s/%06d", receiptID, position))
}

// CreateReceipt saves a receipt header.
func (b *BoltDB) CreateReceipt(rec *StoredReceipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		return bucket.Put([]byte(rec.ID), data)
	})
}

// CreateReceiptItems bulk-inserts line items. Quantity defaults to 1 and
// total price to zero if missing at this boundary; the extractor should have
// filled them already but persistence must not fail on their absence.
func (b *BoltDB) CreateReceiptItems(receiptID string, items []StoredItem) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemBucketName))
		for i := range items {
			item := items[i]
			item.ReceiptID = receiptID
			item.Position = i
			if item.Quantity == 0 {
				item.Quantity = 1
			}
			if item.TotalPrice == "" {
				item.TotalPrice = "0.00"
			}
			data, err := json.Marshal(&item)
			if err != nil {
				return fmt.Errorf("marshaling item: %w", err)
			}
			if err := bucket.Put(itemKey(receiptID, i), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetReceipt retrieves a receipt header by ID.
func (b *BoltDB) GetReceipt(id string) (*StoredReceipt, error) {
	var rec *StoredReceipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("receipt not found: %s", id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetReceiptItems retrieves the line items of a receipt in stored order.
func (b *BoltDB) GetReceiptItems(receiptID string) ([]StoredItem, error) {
	items := make([]StoredItem, 0)
	prefix := []byte(receiptID + "/")
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(itemBucketName)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var item StoredItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListReceipts returns all receipt headers.
func (b *BoltDB) ListReceipts() ([]*StoredReceipt, error) {
	receipts := make([]*StoredReceipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var rec StoredReceipt
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			receipts = append(receipts, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt header and cascade-deletes its items.
func (b *BoltDB) DeleteReceipt(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(receiptBucketName)).Delete([]byte(id)); err != nil {
			return err
		}
		c := tx.Bucket([]byte(itemBucketName)).Cursor()
		prefix := []byte(id + "/")
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database connection.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
