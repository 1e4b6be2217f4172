// Package pipeline implements the customer-experience rescue pipeline: triage
// of negative-sentiment alerts, solution generation from policy and
// operational context, and action execution with customer communication.
// Stages are pure input-to-output transformations; everything a downstream
// stage needs travels in the case file or the solution set.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"cxrescue/internal/tools"
)

// Alert is the inbound event signaling a negative-sentiment interaction.
type Alert struct {
	TranscriptID   string  `json:"transcript_id"`
	CustomerID     string  `json:"customer_id"`
	SentimentScore float64 `json:"sentiment_score"`
}

// ParseAlert decodes and validates an inbound alert event. The event must
// contain transcript_id, customer_id, and sentiment_score; extra fields are
// ignored, missing fields reject the event before the pipeline starts.
func ParseAlert(data []byte) (*Alert, error) {
	var wire struct {
		TranscriptID   *string  `json:"transcript_id"`
		CustomerID     *string  `json:"customer_id"`
		SentimentScore *float64 `json:"sentiment_score"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("invalid alert payload: %w", err)
	}
	if wire.TranscriptID == nil || *wire.TranscriptID == "" {
		return nil, fmt.Errorf("alert missing transcript_id")
	}
	if wire.CustomerID == nil || *wire.CustomerID == "" {
		return nil, fmt.Errorf("alert missing customer_id")
	}
	if wire.SentimentScore == nil {
		return nil, fmt.Errorf("alert missing sentiment_score")
	}
	if *wire.SentimentScore < 0 || *wire.SentimentScore > 1 {
		return nil, fmt.Errorf("sentiment_score out of range [0,1]: %v", *wire.SentimentScore)
	}
	return &Alert{
		TranscriptID:   *wire.TranscriptID,
		CustomerID:     *wire.CustomerID,
		SentimentScore: *wire.SentimentScore,
	}, nil
}

// CaseFile is the validated escalation packet handed from triage to the
// solution and action stages. Read-only once created.
type CaseFile struct {
	CustomerDetails *tools.CustomerProfile `json:"customer_details"`
	TranscriptText  string                 `json:"transcript_text"`
	IssueSummary    string                 `json:"issue_summary"`
}

// Validate reports whether all three case file fields are populated. A
// partial case file must never propagate downstream.
func (c *CaseFile) Validate() error {
	if c == nil {
		return fmt.Errorf("case file is nil")
	}
	if c.CustomerDetails == nil || c.CustomerDetails.CustomerID == "" {
		return fmt.Errorf("case file missing customer details")
	}
	if c.TranscriptText == "" {
		return fmt.Errorf("case file missing transcript text")
	}
	if c.IssueSummary == "" {
		return fmt.Errorf("case file missing issue summary")
	}
	return nil
}

// TriageVerdict is the tagged result of the triage stage: either a negative
// verdict carrying a reason, or an escalation carrying a complete case file.
type TriageVerdict struct {
	Escalate bool      `json:"escalate"`
	Reason   string    `json:"reason,omitempty"`
	CaseFile *CaseFile `json:"case_file,omitempty"`
}

// Category is the problem classification enum.
type Category string

const (
	CategoryOrderIssue    Category = "ORDER_ISSUE"
	CategoryBillingIssue  Category = "BILLING_ISSUE"
	CategoryProductIssue  Category = "PRODUCT_ISSUE"
	CategoryServiceIssue  Category = "SERVICE_ISSUE"
	CategoryShippingIssue Category = "SHIPPING_ISSUE"
	CategoryAccountIssue  Category = "ACCOUNT_ISSUE"
)

// ValidCategory reports whether c is one of the six problem categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryOrderIssue, CategoryBillingIssue, CategoryProductIssue,
		CategoryServiceIssue, CategoryShippingIssue, CategoryAccountIssue:
		return true
	}
	return false
}

// Urgency is the customer urgency level extracted during classification.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// ValidUrgency reports whether u is a recognized urgency level.
func ValidUrgency(u Urgency) bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// ProblemAnalysis is the classification of a case, produced and consumed
// within the solution stage.
type ProblemAnalysis struct {
	PrimaryCategory     Category   `json:"primary_category"`
	SecondaryCategories []Category `json:"secondary_categories,omitempty"`
	OrderID             string     `json:"order_id,omitempty"`
	Products            []string   `json:"products,omitempty"`
	ComplaintDetails    []string   `json:"complaint_details,omitempty"`
	UrgencyLevel        Urgency    `json:"urgency_level"`
}

// Action is the closed set of remediation actions a solution may specify.
type Action string

const (
	ActionFullRefund        Action = "full_refund"
	ActionPartialRefund     Action = "partial_refund"
	ActionReshipOrder       Action = "reship_order"
	ActionGenerateCoupon    Action = "generate_coupon"
	ActionAccountCredit     Action = "account_credit"
	ActionExpediteShipping  Action = "expedite_shipping"
	ActionEscalateToManager Action = "escalate_to_manager"
	ActionCustomAppeasement Action = "custom_appeasement"
)

// ValidAction reports whether a is a recognized remediation action.
func ValidAction(a Action) bool {
	switch a {
	case ActionFullRefund, ActionPartialRefund, ActionReshipOrder,
		ActionGenerateCoupon, ActionAccountCredit, ActionExpediteShipping,
		ActionEscalateToManager, ActionCustomAppeasement:
		return true
	}
	return false
}

// Solution is one candidate remediation with the parameters needed to
// execute it.
type Solution struct {
	SolutionID     int                    `json:"solution_id"`
	Action         Action                 `json:"action"`
	Params         map[string]interface{} `json:"params"`
	Explanation    string                 `json:"explanation"`
	EstimatedCost  string                 `json:"estimated_cost,omitempty"`
	CustomerImpact string                 `json:"customer_impact,omitempty"`
}

// paramString extracts a string parameter, tolerating absent keys and
// non-string JSON values.
func paramString(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	switch v := params[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// paramFloat extracts a numeric parameter, returning 0 when absent or
// non-numeric.
func paramFloat(params map[string]interface{}, key string) float64 {
	if params == nil {
		return 0
	}
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// SolutionSet is the solution stage output: the ranked solutions plus the
// context they were generated from. Rank order is best-first and is never
// re-sorted downstream.
type SolutionSet struct {
	RankedSolutions []Solution             `json:"ranked_solutions"`
	ProblemAnalysis *ProblemAnalysis       `json:"problem_analysis,omitempty"`
	PolicyContext   string                 `json:"policy_context,omitempty"`
	OperationalData map[string]interface{} `json:"operational_data,omitempty"`
}

// ExecutionResult records the outcome of executing the top-ranked solution.
// Success here reflects the underlying collaborator call, not the stage.
type ExecutionResult struct {
	Success bool                   `json:"success"`
	Action  Action                 `json:"action,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// CommunicationResult records which customer notifications went out.
type CommunicationResult struct {
	EmailSent        *tools.SendReceipt `json:"email_sent,omitempty"`
	SMSSent          *tools.SendReceipt `json:"sms_sent,omitempty"`
	ContentGenerated bool               `json:"content_generated"`
	Error            string             `json:"error,omitempty"`
}

// ActionResult is the action stage output. Success reflects whether the stage
// ran to completion; ExecutionResult.Success carries whether the underlying
// action succeeded.
type ActionResult struct {
	Success           bool                 `json:"success"`
	Error             string               `json:"error,omitempty"`
	SolutionExecuted  *Solution            `json:"solution_executed,omitempty"`
	ExecutionResult   *ExecutionResult     `json:"execution_result,omitempty"`
	CommunicationSent *CommunicationResult `json:"communication_sent,omitempty"`
	CRMLogged         bool                 `json:"crm_logged"`
}

// Status is the terminal pipeline status.
type Status string

const (
	StatusNoActionRequired Status = "no_action_required"
	StatusSuccess          Status = "success"
	StatusError            Status = "error"
)

// OutcomeRecord is the terminal aggregate returned by the orchestrator.
type OutcomeRecord struct {
	Status       Status         `json:"status"`
	Message      string         `json:"message,omitempty"`
	CustomerID   string         `json:"customer_id,omitempty"`
	TriageResult *TriageVerdict `json:"triage_result,omitempty"`
	CaseFile     *CaseFile      `json:"case_file,omitempty"`
	Solutions    *SolutionSet   `json:"solutions,omitempty"`
	ActionsTaken *ActionResult  `json:"actions_taken,omitempty"`
}

// Collaborator contracts consumed by the stages. The tools package provides
// HTTP-backed implementations; tests substitute fakes.

// CustomerStore is the customer record collaborator.
type CustomerStore interface {
	LookupCustomer(ctx context.Context, customerID string) (*tools.CustomerProfile, error)
	AppendNote(ctx context.Context, customerID, note string) (bool, error)
	AddCredit(ctx context.Context, customerID string, amount float64, reason string) (*tools.CreditReceipt, error)
}

// TranscriptStore fetches conversation transcripts.
type TranscriptStore interface {
	Fetch(ctx context.Context, transcriptID string) (string, error)
}

// PolicySearcher returns ranked policy snippets for a query.
type PolicySearcher interface {
	Search(ctx context.Context, query string, topK int) (string, error)
}

// OrderSystem is the order management collaborator.
type OrderSystem interface {
	GetStatus(ctx context.Context, orderID string) (*tools.Order, error)
	CreateReplacement(ctx context.Context, originalOrderID string, upgrade bool) (*tools.ReplacementReceipt, error)
	UpgradeShipping(ctx context.Context, orderID, newMethod string) (*tools.ShippingReceipt, error)
}

// InventoryChecker checks product availability.
type InventoryChecker interface {
	CheckAvailability(ctx context.Context, productIdentifier string) (*tools.StockInfo, error)
}

// PaymentGateway processes refunds and coupons.
type PaymentGateway interface {
	Refund(ctx context.Context, orderID string, amount float64, reason string) (*tools.RefundReceipt, error)
	CreateCoupon(ctx context.Context, customerID string, value float64, unit string) (*tools.CouponReceipt, error)
}

// EmailSender sends customer emails.
type EmailSender interface {
	SendEmail(ctx context.Context, recipient, subject, body string) (*tools.SendReceipt, error)
}

// SMSSender sends short customer notifications.
type SMSSender interface {
	SendSMS(ctx context.Context, recipient, body string) (*tools.SendReceipt, error)
}
