// Package workflow implements the receipt-enrichment pipeline: extraction
// (fatal on failure), vendor lookup and categorization (best-effort), and a
// final merge-and-persist step, with ordered progress events throughout.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tomwr/receiptflow/internal/enrich"
	"github.com/tomwr/receiptflow/internal/extract"
	"github.com/tomwr/receiptflow/internal/receipt"
)

// WorkflowReceiptEnrichment is the only workflow kind this engine runs.
const WorkflowReceiptEnrichment = "receipt_enrichment"

// DefaultStepTimeout bounds each adapter call so a hung service cannot stall
// a run indefinitely.
const DefaultStepTimeout = 60 * time.Second

// ErrUnknownWorkflow is returned for an unrecognized workflow name, before
// any event is emitted.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// Request asks for one workflow run.
type Request struct {
	Name   string `json:"name"`
	Params Params `json:"params"`
}

// Params are the optional inputs of a receipt-enrichment run.
type Params struct {
	ImageDescription string `json:"imageDescription,omitempty"`
	ImageURL         string `json:"imageUrl,omitempty"`
}

// Persister is the slice of the persistence adapter the merge step needs.
type Persister interface {
	SaveEnriched(rec *receipt.Record, imageData []byte) (string, error)
}

// Result is the consolidated outcome of a run. Receipt is always populated
// when extraction succeeded; Categorization and Vendor only when their steps
// succeeded. The Degraded flags record silent fallbacks that subscribers
// cannot see in the event stream.
type Result struct {
	Success                bool                    `json:"success"`
	Workflow               string                  `json:"workflow"`
	Receipt                *receipt.Record         `json:"receipt,omitempty"`
	Categorization         *receipt.Categorization `json:"categorization,omitempty"`
	Vendor                 *receipt.VendorInfo     `json:"vendor,omitempty"`
	ReceiptID              string                  `json:"receipt_id,omitempty"`
	Persisted              bool                    `json:"persisted"`
	ExtractionDegraded     bool                    `json:"extraction_degraded,omitempty"`
	CategorizationDegraded bool                    `json:"categorization_degraded,omitempty"`
}

// MergedRecord is the payload of the final record-updated event: the full
// record plus whatever enrichment succeeded.
type MergedRecord struct {
	Receipt        *receipt.Record         `json:"receipt"`
	Categorization *receipt.Categorization `json:"categorization,omitempty"`
	Vendor         *receipt.SearchResult   `json:"vendor,omitempty"`
}

// Orchestrator runs workflows to completion, one at a time per invocation.
// Concurrent runs for different requests are independent; nothing is shared
// between them.
type Orchestrator struct {
	extractor   extract.Extractor
	searcher    enrich.Searcher
	categorizer enrich.Categorizer
	persister   Persister
	stepTimeout time.Duration
}

// NewOrchestrator creates an orchestrator with the default per-step timeout.
func NewOrchestrator(extractor extract.Extractor, searcher enrich.Searcher, categorizer enrich.Categorizer, persister Persister) *Orchestrator {
	return NewOrchestratorWithTimeout(extractor, searcher, categorizer, persister, DefaultStepTimeout)
}

// NewOrchestratorWithTimeout creates an orchestrator with a custom per-step
// timeout. Zero disables the bound; the caller's context still applies.
func NewOrchestratorWithTimeout(extractor extract.Extractor, searcher enrich.Searcher, categorizer enrich.Categorizer, persister Persister, stepTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		extractor:   extractor,
		searcher:    searcher,
		categorizer: categorizer,
		persister:   persister,
		stepTimeout: stepTimeout,
	}
}

// Run executes one workflow to completion. Steps run strictly in sequence:
// extraction failure is fatal, vendor search and categorization failures are
// reported and skipped over, and the merge step always follows a successful
// extraction. Events appear on the emitter in execution order; the emitter
// may be nil.
func (o *Orchestrator) Run(ctx context.Context, req Request, emitter Emitter) (*Result, error) {
	if req.Name != WorkflowReceiptEnrichment {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, req.Name)
	}
	if emitter == nil {
		emitter = NopEmitter{}
	}

	result := &Result{Workflow: req.Name}

	// Extraction is the one fatal step: without a record there is nothing
	// for the rest of the pipeline to work on.
	emitter.Emit(Event{Type: EventStepStart, Step: StepExtract})
	ext, err := o.runExtract(ctx, req.Params, emitter)
	if err != nil {
		emitter.Emit(Event{Type: EventStepError, Step: StepExtract, Error: err.Error()})
		return nil, fmt.Errorf("extracting receipt: %w", err)
	}
	emitter.Emit(Event{Type: EventStepSuccess, Step: StepExtract, Payload: ext.Record})
	result.Receipt = ext.Record
	result.ExtractionDegraded = ext.Degraded

	// Vendor search is skipped entirely, with no events, when extraction
	// produced no usable merchant name.
	if ext.Record.HasMerchant() {
		emitter.Emit(Event{Type: EventStepStart, Step: StepVendorSearch, Info: ext.Record.MerchantName})
		info, err := o.runVendorSearch(ctx, ext.Record.MerchantName)
		if err != nil {
			slog.Warn("Vendor search failed", "merchant", ext.Record.MerchantName, "error", err)
			emitter.Emit(Event{Type: EventStepError, Step: StepVendorSearch, Error: err.Error()})
		} else {
			result.Vendor = info
			emitter.Emit(Event{Type: EventStepSuccess, Step: StepVendorSearch, Payload: info.Vendor()})
		}
	}

	emitter.Emit(Event{Type: EventStepStart, Step: StepCategorize})
	cat, degraded, err := o.runCategorize(ctx, ext.Record)
	if err != nil {
		slog.Warn("Categorization failed", "merchant", ext.Record.MerchantName, "error", err)
		emitter.Emit(Event{Type: EventStepError, Step: StepCategorize, Error: err.Error()})
	} else {
		result.Categorization = cat
		result.CategorizationDegraded = degraded
		emitter.Emit(Event{Type: EventStepSuccess, Step: StepCategorize, Payload: cat})
	}

	// Merge always runs once extraction has succeeded. Persistence is
	// best-effort: the caller gets their enriched record either way.
	emitter.Emit(Event{Type: EventStepStart, Step: StepMerge})
	receiptID, err := o.persister.SaveEnriched(ext.Record, ext.ImageData)
	if err != nil {
		slog.Error("Failed to persist receipt", "merchant", ext.Record.MerchantName, "error", err)
		emitter.Emit(Event{Type: EventStepError, Step: StepMerge, Error: err.Error()})
	} else {
		result.ReceiptID = receiptID
		result.Persisted = true
		emitter.Emit(Event{Type: EventStepSuccess, Step: StepMerge, Payload: map[string]string{"receipt_id": receiptID}})
	}

	merged := MergedRecord{
		Receipt:        ext.Record,
		Categorization: result.Categorization,
		Vendor:         result.Vendor.Vendor(),
	}
	emitter.Emit(Event{Type: EventRecordUpdated, Payload: merged})
	emitter.Emit(Event{Type: EventFinished})

	result.Success = true
	return result, nil
}

func (o *Orchestrator) runExtract(ctx context.Context, params Params, emitter Emitter) (*extract.Output, error) {
	ctx, cancel := o.stepContext(ctx)
	defer cancel()

	// Each streamed increment replaces the previous partial record and is
	// re-emitted so a live subscriber sees the record build up.
	onUpdate := func(rec *receipt.Record) {
		emitter.Emit(Event{Type: EventRecordUpdated, Payload: rec})
	}

	return o.extractor.ExtractReceipt(ctx, extract.Input{
		Description: params.ImageDescription,
		ImageURL:    params.ImageURL,
	}, onUpdate)
}

func (o *Orchestrator) runVendorSearch(ctx context.Context, merchantName string) (*receipt.VendorInfo, error) {
	ctx, cancel := o.stepContext(ctx)
	defer cancel()
	return o.searcher.SearchVendor(ctx, merchantName)
}

func (o *Orchestrator) runCategorize(ctx context.Context, rec *receipt.Record) (*receipt.Categorization, bool, error) {
	ctx, cancel := o.stepContext(ctx)
	defer cancel()
	return o.categorizer.Categorize(ctx, rec)
}

func (o *Orchestrator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.stepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.stepTimeout)
}
