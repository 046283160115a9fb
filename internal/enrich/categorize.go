package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tomwr/receiptflow/internal/receipt"
)

// Suggested expense categories. The vocabulary is open; the model may return
// something else and we keep it.
var categories = []string{
	"Groceries", "Restaurants", "Transportation", "Utilities", "Shopping",
	"Entertainment", "Healthcare", "Travel", "Services", "Other",
}

// Fallback categorization returned when the model produces nothing parseable.
// Returning it twice for the same input yields the identical triple.
const (
	fallbackCategory   = "Other"
	fallbackConfidence = 0.3
	fallbackRationale  = "Fallback categorization"
)

// Categorizer assigns one expense category to a whole receipt.
type Categorizer interface {
	// Categorize returns the categorization and whether it is the
	// degraded fallback. The fallback is a successful result, not an
	// error; only transport failures return an error.
	Categorize(ctx context.Context, rec *receipt.Record) (*receipt.Categorization, bool, error)
}

var categorizationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"category":   {Type: genai.TypeString},
		"confidence": {Type: genai.TypeNumber},
		"rationale":  {Type: genai.TypeString},
	},
	Required: []string{"category", "confidence", "rationale"},
}

// GeminiCategorizer implements Categorizer with one schema-constrained
// generation call.
type GeminiCategorizer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiCategorizer creates a new GeminiCategorizer instance.
func NewGeminiCategorizer(apiKey string, modelName string) (*GeminiCategorizer, error) {
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
	model.ResponseSchema = categorizationSchema

	return &GeminiCategorizer{client: client, model: model}, nil
}

// Categorize runs the generation call and parses the result, falling back to
// the fixed categorization when nothing parseable comes back.
func (g *GeminiCategorizer) Categorize(ctx context.Context, rec *receipt.Record) (*receipt.Categorization, bool, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(buildCategorizePrompt(rec)))
	if err != nil {
		return nil, false, fmt.Errorf("generating categorization: %w", err)
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	cat, perr := parseCategorization(text.String())
	if perr != nil {
		return FallbackCategorization(), true, nil
	}
	return cat, false, nil
}

// Close closes the Gemini client.
func (g *GeminiCategorizer) Close() error {
	return g.client.Close()
}

// FallbackCategorization returns the fixed categorization used when the
// model yields nothing parseable.
func FallbackCategorization() *receipt.Categorization {
	return &receipt.Categorization{
		Category:   fallbackCategory,
		Confidence: fallbackConfidence,
		Rationale:  fallbackRationale,
	}
}

// buildCategorizePrompt summarizes the receipt for the categorization call.
func buildCategorizePrompt(rec *receipt.Record) string {
	var sb strings.Builder
	sb.WriteString("Categorize this receipt into exactly one expense category.\n\n")
	sb.WriteString("Suggested categories: ")
	sb.WriteString(strings.Join(categories, ", "))
	sb.WriteString("\n\nReceipt:\n")
	fmt.Fprintf(&sb, "Merchant: %s\n", rec.MerchantName)
	if rec.MerchantAddress != "" {
		fmt.Fprintf(&sb, "Address: %s\n", rec.MerchantAddress)
	}
	fmt.Fprintf(&sb, "Total: %s %s\n", rec.Total.StringFixed(2), rec.Currency)
	if len(rec.Items) > 0 {
		sb.WriteString("Items:\n")
		for _, item := range rec.Items {
			fmt.Fprintf(&sb, "- %dx %s (%s)\n", item.Quantity, item.Name, item.TotalPrice.StringFixed(2))
		}
	}
	sb.WriteString("\nReturn JSON with category, confidence (0 to 1) and a short rationale.")
	return sb.String()
}

// parseCategorization parses the model response, tolerating markdown fences
// and surrounding prose.
func parseCategorization(text string) (*receipt.Categorization, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var cat receipt.Categorization
	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &cat); err != nil {
		return nil, fmt.Errorf("unmarshaling categorization: %w", err)
	}
	if cat.Category == "" {
		return nil, fmt.Errorf("empty category in response")
	}
	if cat.Confidence < 0 {
		cat.Confidence = 0
	}
	if cat.Confidence > 1 {
		cat.Confidence = 1
	}
	return &cat, nil
}

var _ Categorizer = (*GeminiCategorizer)(nil)
