package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cxrescue/internal/config"
	"cxrescue/internal/llm"
	"cxrescue/internal/logging"
	"cxrescue/internal/tools"
)

// TriageStage decides whether an alert warrants automated rescue. It is
// fail-closed: any failure along the way yields a negative verdict, never an
// error, so a broken collaborator can only suppress escalations.
type TriageStage struct {
	cfg         *config.Config
	model       llm.Client
	customers   CustomerStore
	transcripts TranscriptStore
}

func NewTriageStage(cfg *config.Config, model llm.Client, customers CustomerStore, transcripts TranscriptStore) *TriageStage {
	return &TriageStage{cfg: cfg, model: model, customers: customers, transcripts: transcripts}
}

// Process gathers the customer profile and transcript, then asks the model
// for an escalation decision. A positive verdict always carries a complete
// case file built from the authoritative fetched data.
func (t *TriageStage) Process(ctx context.Context, alert *Alert) *TriageVerdict {
	logging.Triage("triage processing for customer %s", alert.CustomerID)

	profile, err := t.customers.LookupCustomer(ctx, alert.CustomerID)
	if err != nil {
		if errors.Is(err, tools.ErrNotFound) {
			logging.TriageError("customer %s not found in CRM", alert.CustomerID)
			return &TriageVerdict{Escalate: false, Reason: "Customer not found in CRM"}
		}
		logging.TriageError("CRM lookup failed for %s: %v", alert.CustomerID, err)
		return &TriageVerdict{Escalate: false, Reason: fmt.Sprintf("Processing error: %v", err)}
	}

	transcript, err := t.transcripts.Fetch(ctx, alert.TranscriptID)
	if err != nil {
		if errors.Is(err, tools.ErrNotFound) {
			logging.TriageError("transcript %s not found", alert.TranscriptID)
			return &TriageVerdict{Escalate: false, Reason: "Transcript not found"}
		}
		logging.TriageError("transcript fetch failed for %s: %v", alert.TranscriptID, err)
		return &TriageVerdict{Escalate: false, Reason: fmt.Sprintf("Processing error: %v", err)}
	}

	return t.analyzeEscalation(ctx, profile, transcript, alert.SentimentScore)
}

// analyzeEscalation runs the escalation decision through the model. The
// model's case_file must carry all three fields; the verdict's case file is
// then rebuilt from the fetched profile and transcript so downstream stages
// never act on model-echoed customer data.
func (t *TriageStage) analyzeEscalation(ctx context.Context, profile *tools.CustomerProfile, transcript string, sentimentScore float64) *TriageVerdict {
	prompt := triagePrompt(t.cfg, profile, sentimentScore, transcript)

	var wire struct {
		Escalate *bool  `json:"escalate"`
		Reason   string `json:"reason"`
		CaseFile *struct {
			CustomerDetails json.RawMessage `json:"customer_details"`
			TranscriptText  string          `json:"transcript_text"`
			IssueSummary    string          `json:"issue_summary"`
		} `json:"case_file"`
	}

	err := llm.Decide(ctx, t.model, prompt, &wire, func() error {
		if wire.Escalate == nil {
			return fmt.Errorf("invalid response format from LLM")
		}
		if !*wire.Escalate {
			return nil
		}
		cf := wire.CaseFile
		if cf == nil {
			return fmt.Errorf("escalation decision missing case_file")
		}
		if len(cf.CustomerDetails) == 0 || string(cf.CustomerDetails) == "null" {
			return fmt.Errorf("case_file missing customer_details")
		}
		if cf.TranscriptText == "" {
			return fmt.Errorf("case_file missing transcript_text")
		}
		if cf.IssueSummary == "" {
			return fmt.Errorf("case_file missing issue_summary")
		}
		return nil
	})
	if err != nil {
		logging.TriageError("escalation analysis failed: %v", err)
		return &TriageVerdict{Escalate: false, Reason: err.Error()}
	}

	if !*wire.Escalate {
		logging.Triage("triage decision: NO ESCALATION")
		return &TriageVerdict{Escalate: false, Reason: wire.Reason}
	}

	logging.Triage("triage decision: ESCALATE")
	return &TriageVerdict{
		Escalate: true,
		CaseFile: &CaseFile{
			CustomerDetails: profile,
			TranscriptText:  transcript,
			IssueSummary:    wire.CaseFile.IssueSummary,
		},
	}
}
