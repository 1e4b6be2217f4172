package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"cxrescue/internal/config"
	"cxrescue/internal/llm"
	"cxrescue/internal/logging"
	"cxrescue/internal/tools"
)

// Stage contracts for the orchestrator. Concrete stages satisfy these;
// tests substitute scripted fakes.
type TriageRunner interface {
	Process(ctx context.Context, alert *Alert) *TriageVerdict
}

type SolutionRunner interface {
	Process(ctx context.Context, caseFile *CaseFile) *SolutionSet
}

type ActionRunner interface {
	Process(ctx context.Context, caseFile *CaseFile, solutions *SolutionSet) *ActionResult
}

// runState tracks the orchestrator's progression through the pipeline.
type runState int

const (
	stateReceived runState = iota
	stateTriaged
	stateSolved
	stateActed
)

func (s runState) String() string {
	switch s {
	case stateReceived:
		return "RECEIVED"
	case stateTriaged:
		return "TRIAGED"
	case stateSolved:
		return "SOLVED"
	case stateActed:
		return "ACTED"
	}
	return fmt.Sprintf("runState(%d)", int(s))
}

// Orchestrator drives an alert through triage, solution, and action in
// strict sequence. Each run is independent; the orchestrator holds no
// per-case state between calls.
type Orchestrator struct {
	triage   TriageRunner
	solution SolutionRunner
	action   ActionRunner
}

// New assembles an orchestrator from the three stage runners.
func New(triage TriageRunner, solution SolutionRunner, action ActionRunner) *Orchestrator {
	return &Orchestrator{triage: triage, solution: solution, action: action}
}

// Collaborators bundles the external systems the production stages talk to.
type Collaborators struct {
	Customers   CustomerStore
	Transcripts TranscriptStore
	Policies    PolicySearcher
	Orders      OrderSystem
	Inventory   InventoryChecker
	Payments    PaymentGateway
	Email       EmailSender
	SMS         SMSSender
}

// NewFromCollaborators wires the production stages from config, a decision
// model, and the collaborator set.
func NewFromCollaborators(cfg *config.Config, model llm.Client, c Collaborators) *Orchestrator {
	return New(
		NewTriageStage(cfg, model, c.Customers, c.Transcripts),
		NewSolutionStage(cfg, model, c.Policies, c.Orders, c.Inventory),
		NewActionStage(cfg, model, c.Customers, c.Orders, c.Payments, c.Email, c.SMS),
	)
}

// ProcessAlert runs one alert through the pipeline and always returns a
// terminal outcome record. Panics in any stage are converted to an error
// outcome so a crashing collaborator cannot take down the caller's loop.
func (o *Orchestrator) ProcessAlert(ctx context.Context, alert *Alert) (rec *OutcomeRecord) {
	runID := uuid.NewString()[:8]
	defer func() {
		if r := recover(); r != nil {
			logging.PipelineError("run %s: panic processing alert for customer %s: %v", runID, alert.CustomerID, r)
			rec = &OutcomeRecord{
				Status:     StatusError,
				Message:    fmt.Sprintf("internal error: %v", r),
				CustomerID: alert.CustomerID,
			}
		}
	}()

	state := stateReceived
	logging.Pipeline("run %s: processing alert for customer %s [%s]", runID, alert.CustomerID, state)

	verdict := o.triage.Process(ctx, alert)
	state = stateTriaged
	logging.Pipeline("run %s: triage complete for customer %s [%s]", runID, alert.CustomerID, state)

	if !verdict.Escalate {
		return &OutcomeRecord{
			Status:       StatusNoActionRequired,
			Message:      "Alert did not meet escalation criteria",
			CustomerID:   alert.CustomerID,
			TriageResult: verdict,
		}
	}
	if err := verdict.CaseFile.Validate(); err != nil {
		logging.PipelineError("run %s: escalation verdict with invalid case file: %v", runID, err)
		return &OutcomeRecord{
			Status:     StatusError,
			Message:    "Invalid triage result",
			CustomerID: alert.CustomerID,
		}
	}
	caseFile := verdict.CaseFile

	solutions := o.solution.Process(ctx, caseFile)
	state = stateSolved
	logging.Pipeline("run %s: solution stage complete for customer %s [%s]", runID, alert.CustomerID, state)

	if len(solutions.RankedSolutions) == 0 {
		logging.PipelineError("run %s: solution stage produced no solutions for customer %s", runID, alert.CustomerID)
		return &OutcomeRecord{
			Status:     StatusError,
			Message:    "No solutions generated",
			CustomerID: alert.CustomerID,
		}
	}

	actions := o.action.Process(ctx, caseFile, solutions)
	state = stateActed
	logging.Pipeline("run %s: rescue completed for customer %s [%s]", runID, alert.CustomerID, state)

	return &OutcomeRecord{
		Status:       StatusSuccess,
		CustomerID:   alert.CustomerID,
		CaseFile:     caseFile,
		Solutions:    solutions,
		ActionsTaken: actions,
	}
}

// ProcessEvent decodes a raw alert payload and processes it. Malformed
// events are rejected before the pipeline starts.
func (o *Orchestrator) ProcessEvent(ctx context.Context, payload []byte) (*OutcomeRecord, error) {
	alert, err := ParseAlert(payload)
	if err != nil {
		return nil, err
	}
	return o.ProcessAlert(ctx, alert), nil
}

// DefaultCollaborators builds the HTTP-backed collaborator set from config,
// reading credentials through the given secret source.
func DefaultCollaborators(cfg *config.Config, secrets tools.SecretSource, policies PolicySearcher) Collaborators {
	timeout := cfg.GetCollaboratorTimeout()
	return Collaborators{
		Customers:   tools.NewCRMClient(cfg.Collaborators.CRMBaseURL, secrets, timeout),
		Transcripts: tools.NewTranscriptClient(cfg.Collaborators.TranscriptURL, secrets, timeout),
		Policies:    policies,
		Orders:      tools.NewOrderClient(cfg.Collaborators.InventoryBaseURL, secrets, timeout),
		Inventory:   tools.NewInventoryClient(cfg.Collaborators.InventoryBaseURL, secrets, timeout),
		Payments:    tools.NewPaymentClient(cfg.Collaborators.PaymentBaseURL, secrets, timeout),
		Email:       tools.NewEmailClient(cfg.Collaborators.EmailEndpoint, cfg.Communication.FromEmail, secrets, timeout),
		SMS:         tools.NewSMSClient(cfg.Collaborators.SMSBaseURL, cfg.Communication.SMSAccountID, cfg.Communication.FromPhone, cfg.Communication.SMSMaxLength, secrets, timeout),
	}
}
