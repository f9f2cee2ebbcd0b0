// Package extraction turns unstructured source text into a structured
// holdings value via a delegated text-understanding model, then applies a
// deterministic validation pass. The delegate is a black box with a fixed
// JSON contract; everything around it (short-circuits, parsing, validation)
// is deterministic.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/voskhod/treasurywatch/config"
	"github.com/voskhod/treasurywatch/internal/models"
)

// minTextLength short-circuits extraction for fragments too small to carry a
// holdings statement; no delegate call is made below it.
const minTextLength = 50

// ChatModel is the slice of the eino model interface the engine needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// NewChatModel builds the OpenAI-compatible delegate from config.
func NewChatModel(ctx context.Context, cfg *config.Config) (ChatModel, error) {
	maxTokens := 2048
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:   cfg.ExtractionBaseURL,
		APIKey:    cfg.ExtractionAPIKey,
		Model:     cfg.ExtractionModel,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("init extraction model: %w", err)
	}
	return chatModel, nil
}

// Context carries the entity framing the delegate needs to interpret text.
type Context struct {
	Ticker          string
	Name            string
	Asset           string
	CurrentHoldings float64
	SourceURL       string
	Category        models.SourceCategory
}

type Engine struct {
	model ChatModel
}

func NewEngine(m ChatModel) *Engine {
	return &Engine{model: m}
}

// delegateResponse is the fixed wire contract with the delegate.
type delegateResponse struct {
	Holdings          *float64  `json:"holdings"`
	SharesOutstanding *float64  `json:"shares_outstanding"`
	SharesBasic       *float64  `json:"shares_basic"`
	CostBasisUSD      *float64  `json:"cost_basis_usd"`
	Confidence        float64   `json:"confidence"`
	Reasoning         string    `json:"reasoning"`
	ExtractedDate     string    `json:"extracted_date"`
	RawNumbers        []float64 `json:"raw_numbers"`
	TransactionType   string    `json:"transaction_type"`
	TransactionAmount *float64  `json:"transaction_amount"`
	ExplicitlyStated  bool      `json:"explicitly_stated"`
}

// Extract runs the delegate against text and returns a structured result.
// It never returns an error: every failure mode collapses to a result with
// absent holdings and the cause in Reasoning, which downstream treats as
// "no candidate".
func (e *Engine) Extract(ctx context.Context, text string, ec Context) *models.ExtractionResult {
	if len(strings.TrimSpace(text)) < minTextLength {
		return &models.ExtractionResult{Confidence: 0, Reasoning: "text too short"}
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(e.buildPrompt(text, ec)),
	}

	resp, err := e.model.Generate(ctx, messages)
	if err != nil {
		return &models.ExtractionResult{Confidence: 0, Reasoning: fmt.Sprintf("extraction call failed: %v", err)}
	}

	var wire delegateResponse
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &wire); err != nil {
		return &models.ExtractionResult{Confidence: 0, Reasoning: "failed to parse response"}
	}

	return e.resolve(&wire, ec)
}

// resolve maps the wire response onto the result model, computing the total
// from a stated delta when the text described a transaction instead.
func (e *Engine) resolve(wire *delegateResponse, ec Context) *models.ExtractionResult {
	result := &models.ExtractionResult{
		Holdings:          wire.Holdings,
		SharesOutstanding: wire.SharesOutstanding,
		SharesBasic:       wire.SharesBasic,
		CostBasisUSD:      wire.CostBasisUSD,
		Confidence:        clamp01(wire.Confidence),
		Reasoning:         wire.Reasoning,
		ExtractedDate:     wire.ExtractedDate,
		RawNumbers:        wire.RawNumbers,
		ExplicitlyStated:  wire.ExplicitlyStated,
	}

	if wire.Holdings != nil {
		result.Basis = models.BasisStatedTotal
		return result
	}

	txType := parseTransactionType(wire.TransactionType)
	if txType == "" || wire.TransactionAmount == nil {
		return result
	}

	amount := *wire.TransactionAmount
	computed := ec.CurrentHoldings
	switch txType {
	case models.TransactionPurchase:
		computed += amount
	case models.TransactionSale:
		computed -= amount
	}

	result.Holdings = &computed
	result.Basis = models.BasisComputedDelta
	result.ExplicitlyStated = false
	result.Transaction = &models.TransactionDetail{Type: txType, Amount: amount}
	return result
}

func (e *Engine) buildPrompt(text string, ec Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entity: %s (%s)\n", ec.Name, ec.Ticker)
	fmt.Fprintf(&b, "Asset: %s\n", ec.Asset)
	fmt.Fprintf(&b, "Current recorded holdings: %.8g\n", ec.CurrentHoldings)
	if ec.SourceURL != "" {
		fmt.Fprintf(&b, "Source: %s (%s)\n", ec.SourceURL, ec.Category)
	}
	b.WriteString("\nText:\n")
	b.WriteString(text)
	return b.String()
}

func parseTransactionType(s string) models.TransactionType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "purchase", "buy", "acquisition":
		return models.TransactionPurchase
	case "sale", "sell", "disposal":
		return models.TransactionSale
	default:
		return ""
	}
}

// stripFences removes a markdown code fence wrapper if present and trims to
// the outermost JSON object. Delegates routinely wrap JSON in ```json
// fences no matter how the prompt asks.
func stripFences(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.Index(s, "{"); start > 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const systemPrompt = `You extract treasury asset holdings from financial text.

Respond with a single JSON object, no prose, with exactly these fields:
{
  "holdings": number or null,            // total asset holdings stated in the text
  "shares_outstanding": number or null,
  "shares_basic": number or null,
  "cost_basis_usd": number or null,
  "confidence": number,                  // 0.0 to 1.0
  "reasoning": string,
  "extracted_date": string,              // ISO date the statement refers to, or ""
  "raw_numbers": [numbers],              // numeric tokens found near asset keywords
  "transaction_type": string,            // "purchase" or "sale" when the text states a delta, else ""
  "transaction_amount": number or null,  // the delta amount
  "explicitly_stated": boolean           // true only when the total is stated verbatim
}

Rules:
- If the text states a total, set holdings and explicitly_stated accordingly.
- If the text states only a purchase or sale, leave holdings null and fill
  transaction_type / transaction_amount with explicitly_stated=false.
- If no holdings information is present, set holdings to null and confidence to 0.
- Never confuse share counts, prices, or market caps with asset holdings.`
