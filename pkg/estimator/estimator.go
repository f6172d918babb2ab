// Package estimator predicts the token cost of a generation operation
// before it is sent to the model, so the enforcement gate can decide on
// an estimate instead of the unknown actual cost.
//
// Counting uses tiktoken-go encodings resolved per model; when no
// encoding is available (unknown model, or offline environments without
// the BPE cache), a character-ratio heuristic is used instead. Estimates
// only feed an advisory quota check, so heuristic drift is acceptable.
package estimator

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// OperationType identifies the product feature requesting generation.
// Each operation carries a fixed overhead covering its system prompt and
// expected completion size on top of the user-supplied text.
type OperationType string

const (
	OpDraftTicket      OperationType = "draft_ticket"
	OpRefineTicket     OperationType = "refine_ticket"
	OpSummarize        OperationType = "summarize"
	OpTemplateGenerate OperationType = "template_generate"
)

// completion+prompt overhead per operation, measured against production
// prompts; unknown operations get the draft overhead.
var operationOverhead = map[OperationType]int64{
	OpDraftTicket:      1200,
	OpRefineTicket:     800,
	OpSummarize:        400,
	OpTemplateGenerate: 600,
}

const defaultOverhead int64 = 1200

// Estimator converts operation inputs into estimated token counts.
// Encodings are resolved lazily per model and cached; an Estimator is
// safe for concurrent use.
type Estimator struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// New returns an Estimator. Encoding initialization is deferred to the
// first estimate so construction never fails.
func New() *Estimator {
	return &Estimator{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// Estimate returns the predicted total token cost for running op over
// text with the given model. The result is always at least the
// operation overhead, so empty input still produces a non-zero charge
// estimate.
func (e *Estimator) Estimate(op OperationType, text string, model string) int64 {
	overhead, ok := operationOverhead[op]
	if !ok {
		overhead = defaultOverhead
	}
	return overhead + e.count(text, model)
}

func (e *Estimator) count(text, model string) int64 {
	if enc := e.encodingFor(model); enc != nil {
		return int64(len(enc.Encode(text, nil, nil)))
	}
	return heuristicCount(text)
}

func (e *Estimator) encodingFor(model string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encodings[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// cl100k_base tokenizes close enough to every chat model we
		// meter; a nil entry means even that was unavailable.
		enc, _ = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	}
	e.encodings[model] = enc
	return enc
}

// heuristicCount approximates tokens as max(runes/4, words), the common
// rule of thumb for English prose.
func heuristicCount(text string) int64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	runes := int64(len([]rune(trimmed)))
	words := int64(len(strings.Fields(trimmed)))
	return max(runes/4, words, 1)
}
