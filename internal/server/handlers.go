package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tomwr/receiptflow/internal/workflow"
)

// workflowEventBuffer sizes the per-run event channel. Emission blocks once
// it fills, so a slow SSE consumer backpressures the run instead of losing
// events.
const workflowEventBuffer = 64

// corsError writes an error response with CORS headers set.
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes a JSON error body with the given status.
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// handleRunWorkflow runs one workflow and streams its progress events to the
// caller as SSE, ending with a terminal result (or error) message.
func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflow.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Reject unknown names before committing to an event stream, so the
	// caller gets a plain JSON error and zero events.
	if req.Name != workflow.WorkflowReceiptEnrichment {
		jsonError(w, fmt.Sprintf("Unknown workflow: %s", req.Name), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		corsError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	type runOutcome struct {
		result *workflow.Result
		err    error
	}
	emitter := workflow.NewChannelEmitter(workflowEventBuffer)
	outcome := make(chan runOutcome, 1)
	go func() {
		result, err := s.runner.Run(r.Context(), req, emitter)
		emitter.Close()
		outcome <- runOutcome{result: result, err: err}
	}()

	for ev := range emitter.Events() {
		writeSSE(w, string(ev.Type), ev)
		flusher.Flush()
	}

	out := <-outcome
	if out.err != nil {
		slog.Error("Workflow run failed", "workflow", req.Name, "error", out.err)
		writeSSE(w, "error", map[string]string{"error": out.err.Error()})
	} else {
		writeSSE(w, "result", out.result)
	}
	flusher.Flush()
}

// writeSSE writes one Server-Sent Event with a JSON data payload.
func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Error encoding event", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// handleListReceipts returns all persisted receipt headers.
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(receipts); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetReceipt returns one receipt header with its line items.
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	rec, items, err := s.service.GetReceiptWithItems(id)
	if err != nil {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}

	response := map[string]any{
		"receipt": rec,
		"items":   items,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetReceiptImage returns the archived original image for a receipt.
func (s *Server) handleGetReceiptImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	data, err := s.service.GetArchivedImage(id)
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt, its items and its archived image.
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	if err := s.service.DeleteReceipt(id); err != nil {
		corsError(w, "Error deleting receipt", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
