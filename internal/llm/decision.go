package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed structured decision so callers can embed the
// failure class in their fallback reason.
type ErrorKind int

const (
	// KindTransport covers model-call failures: network errors, timeouts,
	// non-2xx responses, empty completions.
	KindTransport ErrorKind = iota
	// KindParse covers completions that are not valid JSON after fence
	// stripping.
	KindParse
	// KindValidation covers well-formed JSON that fails the caller's shape
	// validator.
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "LLM error"
	case KindParse:
		return "Parse error"
	case KindValidation:
		return "Analysis error"
	default:
		return "Decision error"
	}
}

// DecisionError wraps a failed structured decision with its failure class.
type DecisionError struct {
	Kind ErrorKind
	Err  error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DecisionError) Unwrap() error { return e.Err }

// AsDecisionError extracts a *DecisionError from err, or wraps err as a
// transport-class decision error when it is not one already.
func AsDecisionError(err error) *DecisionError {
	var de *DecisionError
	if errors.As(err, &de) {
		return de
	}
	return &DecisionError{Kind: KindTransport, Err: err}
}

// CleanResponse removes markdown code fences from a model response so the
// remainder can be parsed as JSON.
func CleanResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}

// Decide sends prompt to the model and decodes the JSON response into out.
// validate, when non-nil, runs after decoding and may reject the decoded
// shape. Every failure path returns a *DecisionError; the caller substitutes
// its own deterministic fallback. Partially-validated output never reaches
// the caller: on any error, out must be treated as garbage.
func Decide(ctx context.Context, client Client, prompt string, out interface{}, validate func() error) error {
	raw, err := client.Complete(ctx, prompt)
	if err != nil {
		return &DecisionError{Kind: KindTransport, Err: err}
	}

	cleaned := CleanResponse(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &DecisionError{Kind: KindParse, Err: fmt.Errorf("invalid JSON from model: %w", err)}
	}

	if validate != nil {
		if err := validate(); err != nil {
			return &DecisionError{Kind: KindValidation, Err: err}
		}
	}
	return nil
}
