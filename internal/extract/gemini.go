package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tomwr/receiptflow/internal/receipt"
)

// receiptSchema constrains the extraction output to the receipt record shape.
var receiptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"merchant_name":    {Type: genai.TypeString},
		"merchant_address": {Type: genai.TypeString},
		"receipt_date":     {Type: genai.TypeString},
		"receipt_time":     {Type: genai.TypeString},
		"receipt_number":   {Type: genai.TypeString},
		"items": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":        {Type: genai.TypeString},
					"quantity":    {Type: genai.TypeInteger},
					"unit_price":  {Type: genai.TypeNumber},
					"total_price": {Type: genai.TypeNumber},
					"category":    {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
				},
				Required: []string{"name", "total_price"},
			},
		},
		"subtotal":       {Type: genai.TypeNumber},
		"tax":            {Type: genai.TypeNumber},
		"tip":            {Type: genai.TypeNumber},
		"total":          {Type: genai.TypeNumber},
		"payment_method": {Type: genai.TypeString},
		"currency":       {Type: genai.TypeString},
	},
	Required: []string{"merchant_name", "total"},
}

// Gemini implements the Extractor interface using Google Gemini. It runs an
// optional transcription pass over the receipt image, then a schema
// constrained streaming extraction over the transcript and description.
type Gemini struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	ocrModel   *genai.GenerativeModel
	httpClient *http.Client
}

// NewGemini creates a new Gemini Extractor instance.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = receiptSchema

	// The transcription pass wants plain text, not JSON.
	ocrModel := client.GenerativeModel(modelName)

	return &Gemini{
		client:     client,
		model:      model,
		ocrModel:   ocrModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// ExtractReceipt runs the two-pass extraction. Image fetch and transcription
// failures degrade silently to the description; only the structured
// extraction producing nothing is an error.
func (g *Gemini) ExtractReceipt(ctx context.Context, input Input, onUpdate UpdateFunc) (*Output, error) {
	out := &Output{}

	var transcript string
	if input.ImageURL != "" {
		imageData, err := g.fetchAndPrepare(ctx, input.ImageURL)
		if err != nil {
			slog.Warn("Image unavailable, extracting from description only", "url", input.ImageURL, "error", err)
			out.Degraded = true
		} else {
			out.ImageData = imageData
			transcript, err = g.transcribe(ctx, imageData)
			if err != nil {
				slog.Warn("Transcription failed, extracting from description only", "error", err)
				out.Degraded = true
			}
		}
	}

	if transcript == "" && input.Description == "" && input.ImageURL != "" {
		// Nothing usable survived; the model still gets the URL as a hint.
		input.Description = "Receipt image at " + input.ImageURL
	}

	rec, err := g.generateRecord(ctx, transcript, input.Description, onUpdate)
	if err != nil {
		return nil, err
	}

	finalizeRecord(rec, input.ImageURL, time.Now())
	out.Record = rec
	return out, nil
}

func (g *Gemini) fetchAndPrepare(ctx context.Context, url string) ([]byte, error) {
	data, contentType, err := fetchImage(ctx, g.httpClient, url)
	if err != nil {
		return nil, err
	}
	return prepareImageData(data, contentType)
}

// transcribe runs the verbatim OCR pass over the prepared PNG.
func (g *Gemini) transcribe(ctx context.Context, imageData []byte) (string, error) {
	resp, err := g.ocrModel.GenerateContent(ctx,
		genai.ImageData("png", imageData),
		genai.Text(transcribePrompt),
	)
	if err != nil {
		return "", fmt.Errorf("transcribing image: %w", err)
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty transcription")
	}
	return text, nil
}

// generateRecord streams the structured extraction, re-emitting every
// increment that parses as a complete record. The last increment wins.
func (g *Gemini) generateRecord(ctx context.Context, transcript, description string, onUpdate UpdateFunc) (*receipt.Record, error) {
	var prompt strings.Builder
	prompt.WriteString(extractPrompt)
	if transcript != "" {
		prompt.WriteString("\n\nReceipt transcription:\n")
		prompt.WriteString(transcript)
	}
	if description != "" {
		prompt.WriteString("\n\nReceipt description:\n")
		prompt.WriteString(description)
	}

	iter := g.model.GenerateContentStream(ctx, genai.Text(prompt.String()))

	var accumulated strings.Builder
	var last *receipt.Record
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if last != nil {
				// A parsed increment already arrived; keep it.
				slog.Warn("Extraction stream ended early", "error", err)
				break
			}
			return nil, fmt.Errorf("generating extraction: %w", err)
		}
		accumulated.WriteString(responseText(resp))
		if rec, perr := parseReceiptJSON(accumulated.String()); perr == nil {
			last = rec
			if onUpdate != nil {
				onUpdate(rec)
			}
		}
	}

	if last == nil {
		rec, err := parseReceiptJSON(accumulated.String())
		if err != nil {
			return nil, fmt.Errorf("parsing extraction output: %w", err)
		}
		last = rec
		if onUpdate != nil {
			onUpdate(rec)
		}
	}
	return last, nil
}

// responseText concatenates the text parts of a generation response.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
