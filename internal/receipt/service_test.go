package receipt

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

// mockDB is a mock implementation of DB
type mockDB struct {
	receipts       map[string]*StoredReceipt
	items          map[string][]StoredItem
	createErr      error
	createItemsErr error
	getErr         error
	listErr        error
	deleteErr      error
}

func newMockDB() *mockDB {
	return &mockDB{
		receipts: make(map[string]*StoredReceipt),
		items:    make(map[string][]StoredItem),
	}
}

func (m *mockDB) CreateReceipt(rec *StoredReceipt) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.receipts[rec.ID] = rec
	return nil
}

func (m *mockDB) CreateReceiptItems(receiptID string, items []StoredItem) error {
	if m.createItemsErr != nil {
		return m.createItemsErr
	}
	m.items[receiptID] = items
	return nil
}

func (m *mockDB) GetReceipt(id string) (*StoredReceipt, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.receipts[id]
	if !ok {
		return nil, errors.New("receipt not found")
	}
	return rec, nil
}

func (m *mockDB) GetReceiptItems(receiptID string) ([]StoredItem, error) {
	return m.items[receiptID], nil
}

func (m *mockDB) ListReceipts() ([]*StoredReceipt, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	receipts := make([]*StoredReceipt, 0, len(m.receipts))
	for _, r := range m.receipts {
		receipts = append(receipts, r)
	}
	return receipts, nil
}

func (m *mockDB) DeleteReceipt(id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.receipts[id]; !ok {
		return errors.New("receipt not found")
	}
	delete(m.receipts, id)
	delete(m.items, id)
	return nil
}

func (m *mockDB) Close() error {
	return nil
}

// mockStorage is a mock implementation of Storage
type mockStorage struct {
	files     map[string][]byte
	saveErr   error
	getErr    error
	deleteErr error
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: make(map[string][]byte)}
}

func (m *mockStorage) Archive(receiptID string, png []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	ref := receiptID + ".png"
	m.files[ref] = png
	return ref, nil
}

func (m *mockStorage) Get(ref string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.files[ref]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (m *mockStorage) Delete(ref string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.files[ref]; !ok {
		return errors.New("file not found")
	}
	delete(m.files, ref)
	return nil
}

// mockIDGenerator is a mock implementation of IDGenerator
type mockIDGenerator struct {
	id string
}

func (m *mockIDGenerator) Generate() string {
	return m.id
}

// mockTimeSource is a mock implementation of TimeSource
type mockTimeSource struct {
	now time.Time
}

func (m *mockTimeSource) Now() time.Time {
	return m.now
}

var _ = Describe("Service", func() {
	var (
		db      *mockDB
		storage *mockStorage
		idGen   *mockIDGenerator
		timeSrc *mockTimeSource
		service *Service
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		idGen = &mockIDGenerator{id: "receipt-123"}
		timeSrc = &mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, storage, idGen, timeSrc)
	})

	Describe("SaveEnriched", func() {
		var (
			rec       *Record
			imageData []byte
			id        string
			err       error
		)

		BeforeEach(func() {
			rec = &Record{
				MerchantName: "Blue Bottle Coffee",
				ReceiptDate:  "2024-01-15",
				ReceiptTime:  "08:45",
				Items: []LineItem{
					{Name: "Latte", Quantity: 1, UnitPrice: decimal.RequireFromString("4.5"), TotalPrice: decimal.RequireFromString("4.5")},
				},
				Subtotal: decimal.RequireFromString("4.5"),
				Tax:      decimal.RequireFromString("0.41"),
				Total:    decimal.RequireFromString("4.91"),
				Currency: "USD",
				ImageURL: "https://example.com/r.jpg",
			}
			imageData = []byte("png bytes")
		})

		JustBeforeEach(func() {
			id, err = service.SaveEnriched(rec, imageData)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the generated ID", func() {
				Expect(id).To(Equal("receipt-123"))
			})

			It("should store amounts as two-place decimal strings", func() {
				saved := db.receipts["receipt-123"]
				Expect(saved.Total).To(Equal("4.91"))
				Expect(saved.Subtotal).To(Equal("4.50"))
				Expect(saved.Tax).To(Equal("0.41"))
				Expect(saved.Tip).To(Equal("0.00"))
			})

			It("should store the line items with decimal strings", func() {
				items := db.items["receipt-123"]
				Expect(items).To(HaveLen(1))
				Expect(items[0].TotalPrice).To(Equal("4.50"))
				Expect(items[0].UnitPrice).To(Equal("4.50"))
			})

			It("should archive the original image and reference it", func() {
				Expect(storage.files).To(HaveKey("receipt-123.png"))
				Expect(db.receipts["receipt-123"].OriginalImageURL).To(Equal("receipt-123.png"))
			})

			It("should stamp creation and update times", func() {
				saved := db.receipts["receipt-123"]
				Expect(saved.CreatedAt).To(Equal(timeSrc.now))
				Expect(saved.UpdatedAt).To(Equal(timeSrc.now))
			})
		})

		When("no image data is available", func() {
			BeforeEach(func() {
				imageData = nil
			})

			It("should skip archiving and leave the reference absent", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(storage.files).To(BeEmpty())
				Expect(db.receipts["receipt-123"].OriginalImageURL).To(Equal(""))
			})
		})

		When("archiving the image fails", func() {
			BeforeEach(func() {
				storage.saveErr = errors.New("disk full")
			})

			It("should still save the receipt", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(db.receipts).To(HaveKey("receipt-123"))
				Expect(db.receipts["receipt-123"].OriginalImageURL).To(Equal(""))
			})
		})

		When("the record is missing optional fields", func() {
			BeforeEach(func() {
				rec = &Record{
					ReceiptDate: "2024-01-15",
					Total:       decimal.RequireFromString("4.91"),
					Items:       []LineItem{{TotalPrice: decimal.Decimal{}}},
				}
				imageData = nil
			})

			It("should re-apply defaults at the boundary", func() {
				Expect(err).NotTo(HaveOccurred())
				saved := db.receipts["receipt-123"]
				Expect(saved.MerchantName).To(Equal("Unknown Merchant"))
				Expect(saved.Currency).To(Equal("USD"))
			})

			It("should map the zero unit price to absent", func() {
				items := db.items["receipt-123"]
				Expect(items[0].UnitPrice).To(Equal(""))
			})
		})

		When("the header save fails", func() {
			BeforeEach(func() {
				db.createErr = errors.New("bolt closed")
			})

			It("should return an error", func() {
				Expect(err).To(HaveOccurred())
				Expect(id).To(Equal(""))
			})
		})

		When("the item save fails", func() {
			BeforeEach(func() {
				db.createItemsErr = errors.New("bolt closed")
			})

			It("should return an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("DeleteReceipt", func() {
		BeforeEach(func() {
			db.receipts["receipt-123"] = &StoredReceipt{ID: "receipt-123", OriginalImageURL: "receipt-123.png"}
			storage.files["receipt-123.png"] = []byte("png bytes")
		})

		It("should delete the receipt and its archived image", func() {
			Expect(service.DeleteReceipt("receipt-123")).To(Succeed())
			Expect(db.receipts).NotTo(HaveKey("receipt-123"))
			Expect(storage.files).NotTo(HaveKey("receipt-123.png"))
		})

		When("the archived image cannot be deleted", func() {
			BeforeEach(func() {
				storage.deleteErr = errors.New("permission denied")
			})

			It("should still delete the receipt", func() {
				Expect(service.DeleteReceipt("receipt-123")).To(Succeed())
				Expect(db.receipts).NotTo(HaveKey("receipt-123"))
			})
		})

		When("the receipt does not exist", func() {
			It("should return an error", func() {
				Expect(service.DeleteReceipt("missing")).NotTo(Succeed())
			})
		})
	})

	Describe("GetArchivedImage", func() {
		BeforeEach(func() {
			db.receipts["receipt-123"] = &StoredReceipt{ID: "receipt-123", OriginalImageURL: "receipt-123.png"}
			storage.files["receipt-123.png"] = []byte("png bytes")
		})

		It("should return the archived bytes", func() {
			data, err := service.GetArchivedImage("receipt-123")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("png bytes")))
		})

		When("the receipt has no archived image", func() {
			BeforeEach(func() {
				db.receipts["receipt-123"].OriginalImageURL = ""
			})

			It("should return an error", func() {
				_, err := service.GetArchivedImage("receipt-123")
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
