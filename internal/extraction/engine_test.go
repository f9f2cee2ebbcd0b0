package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/voskhod/treasurywatch/internal/models"
)

type fakeModel struct {
	content string
	err     error
}

func (f *fakeModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

var longText = strings.Repeat("MicroStrategy now holds 550,000 BTC. ", 5)

func TestExtractShortCircuitsShortText(t *testing.T) {
	e := NewEngine(&fakeModel{err: errors.New("must not be called")})

	result := e.Extract(context.Background(), "too short", Context{})
	if result.HasHoldings() {
		t.Fatal("short text must not produce holdings")
	}
	if result.Confidence != 0 || result.Reasoning != "text too short" {
		t.Fatalf("unexpected short-circuit result: %+v", result)
	}
}

func TestExtractStatedTotal(t *testing.T) {
	e := NewEngine(&fakeModel{content: `{
		"holdings": 550000,
		"confidence": 0.95,
		"reasoning": "total stated directly",
		"explicitly_stated": true
	}`})

	result := e.Extract(context.Background(), longText, Context{Ticker: "MSTR", CurrentHoldings: 500000})
	if !result.HasHoldings() || *result.Holdings != 550000 {
		t.Fatalf("expected holdings 550000, got %+v", result)
	}
	if result.Basis != models.BasisStatedTotal {
		t.Fatalf("expected stated-total basis, got %q", result.Basis)
	}
	if !result.ExplicitlyStated {
		t.Fatal("expected explicitly_stated carried through")
	}
}

func TestExtractToleratesCodeFences(t *testing.T) {
	e := NewEngine(&fakeModel{content: "```json\n{\"holdings\": 1234, \"confidence\": 0.9, \"reasoning\": \"fenced\"}\n```"})

	result := e.Extract(context.Background(), longText, Context{})
	if !result.HasHoldings() || *result.Holdings != 1234 {
		t.Fatalf("fenced response should parse, got %+v", result)
	}
}

func TestExtractParseFailure(t *testing.T) {
	e := NewEngine(&fakeModel{content: "I could not find any holdings information."})

	result := e.Extract(context.Background(), longText, Context{})
	if result.HasHoldings() {
		t.Fatal("unparseable response must not produce holdings")
	}
	if result.Reasoning != "failed to parse response" {
		t.Fatalf("unexpected reasoning: %q", result.Reasoning)
	}
	if result.Confidence != 0 {
		t.Fatalf("parse failure must zero confidence, got %v", result.Confidence)
	}
}

func TestExtractDelegateError(t *testing.T) {
	e := NewEngine(&fakeModel{err: errors.New("connection refused")})

	result := e.Extract(context.Background(), longText, Context{})
	if result.HasHoldings() {
		t.Fatal("delegate error must not produce holdings")
	}
	if !strings.Contains(result.Reasoning, "connection refused") {
		t.Fatalf("reasoning should carry the cause, got %q", result.Reasoning)
	}
}

func TestExtractComputesFromSaleDelta(t *testing.T) {
	// "sold approximately 1,080" against current holdings of 19,287.
	e := NewEngine(&fakeModel{content: `{
		"holdings": null,
		"confidence": 0.9,
		"reasoning": "sale of approximately 1080",
		"transaction_type": "sale",
		"transaction_amount": 1080,
		"explicitly_stated": false
	}`})

	result := e.Extract(context.Background(), longText, Context{CurrentHoldings: 19287})
	if !result.HasHoldings() {
		t.Fatal("expected computed holdings from sale delta")
	}
	if *result.Holdings != 18207 {
		t.Fatalf("expected 18207, got %v", *result.Holdings)
	}
	if result.Basis != models.BasisComputedDelta {
		t.Fatalf("expected computed-delta basis, got %q", result.Basis)
	}
	if result.ExplicitlyStated {
		t.Fatal("computed values are never explicitly stated")
	}
	if result.Transaction == nil || result.Transaction.Type != models.TransactionSale {
		t.Fatalf("expected sale transaction detail, got %+v", result.Transaction)
	}
}

func TestExtractPurchaseDelta(t *testing.T) {
	e := NewEngine(&fakeModel{content: `{
		"holdings": null,
		"confidence": 0.88,
		"reasoning": "purchased 500 more",
		"transaction_type": "purchase",
		"transaction_amount": 500
	}`})

	result := e.Extract(context.Background(), longText, Context{CurrentHoldings: 1000})
	if !result.HasHoldings() || *result.Holdings != 1500 {
		t.Fatalf("expected 1500, got %+v", result)
	}
}

func TestExtractClampsConfidence(t *testing.T) {
	e := NewEngine(&fakeModel{content: `{"holdings": 100, "confidence": 1.7, "reasoning": "x"}`})

	result := e.Extract(context.Background(), longText, Context{})
	if result.Confidence != 1.0 {
		t.Fatalf("confidence should clamp to 1.0, got %v", result.Confidence)
	}
}
