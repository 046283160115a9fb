package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Ollama implements the Extractor interface using a local Ollama vision
// model. The model reads the image directly, so there is no separate
// transcription pass; the whole record arrives as one increment.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama Extractor instance. llava is a reasonable
// default; qwen2-vl reads dense receipts better.
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models can be slow locally
		},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// ExtractReceipt analyzes the receipt in a single chat call.
func (o *Ollama) ExtractReceipt(ctx context.Context, input Input, onUpdate UpdateFunc) (*Output, error) {
	out := &Output{}

	var images []string
	if input.ImageURL != "" {
		imageData, contentType, err := fetchImage(ctx, o.client, input.ImageURL)
		if err == nil {
			imageData, err = prepareImageData(imageData, contentType)
		}
		if err != nil {
			slog.Warn("Image unavailable, extracting from description only", "url", input.ImageURL, "error", err)
			out.Degraded = true
		} else {
			out.ImageData = imageData
			images = []string{base64.StdEncoding.EncodeToString(imageData)}
		}
	}

	var prompt strings.Builder
	prompt.WriteString(extractPrompt)
	if input.Description != "" {
		prompt.WriteString("\n\nReceipt description:\n")
		prompt.WriteString(input.Description)
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading receipts and invoices and extracting accurate structured data from them.",
			},
			{
				Role:    "user",
				Content: prompt.String(),
				Images:  images,
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	rec, err := parseReceiptJSON(chatResp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing extraction output: %w", err)
	}
	if onUpdate != nil {
		onUpdate(rec)
	}

	finalizeRecord(rec, input.ImageURL, time.Now())
	out.Record = rec
	return out, nil
}

// Close closes the Ollama client (no-op for HTTP client).
func (o *Ollama) Close() error {
	return nil
}

var _ Extractor = (*Ollama)(nil)
var _ Extractor = (*Gemini)(nil)
