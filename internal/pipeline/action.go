package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"cxrescue/internal/config"
	"cxrescue/internal/llm"
	"cxrescue/internal/logging"
	"cxrescue/internal/tools"
)

// ActionStage executes the top-ranked solution, notifies the customer, and
// logs the resolution to the CRM. Only the top solution is ever executed;
// lower-ranked alternatives remain in the record for audit.
type ActionStage struct {
	cfg       *config.Config
	model     llm.Client
	customers CustomerStore
	orders    OrderSystem
	payments  PaymentGateway
	email     EmailSender
	sms       SMSSender
}

func NewActionStage(cfg *config.Config, model llm.Client, customers CustomerStore, orders OrderSystem, payments PaymentGateway, email EmailSender, sms SMSSender) *ActionStage {
	return &ActionStage{cfg: cfg, model: model, customers: customers, orders: orders, payments: payments, email: email, sms: sms}
}

// Process executes the top solution and communicates the outcome. Stage
// success means the stage ran to completion; the dispatched action's own
// outcome lives in ExecutionResult.
func (a *ActionStage) Process(ctx context.Context, caseFile *CaseFile, solutions *SolutionSet) *ActionResult {
	logging.Action("action stage executing solution")

	if len(solutions.RankedSolutions) == 0 {
		return &ActionResult{Success: false, Error: "No solutions provided"}
	}

	top := solutions.RankedSolutions[0]
	profile := caseFile.CustomerDetails

	execResult := a.execute(ctx, &top, profile)
	commResult := a.communicate(ctx, caseFile, &top, execResult)
	crmLogged := a.logToCRM(ctx, caseFile, &top, execResult)

	return &ActionResult{
		Success:           true,
		SolutionExecuted:  &top,
		ExecutionResult:   execResult,
		CommunicationSent: commResult,
		CRMLogged:         crmLogged,
	}
}

// execute dispatches the solution's action to the owning collaborator. Every
// collaborator error is captured, never propagated.
func (a *ActionStage) execute(ctx context.Context, solution *Solution, profile *tools.CustomerProfile) *ExecutionResult {
	action := solution.Action
	params := solution.Params

	logging.Action("executing action: %s", action)

	var (
		receipt interface{}
		err     error
	)
	switch action {
	case ActionFullRefund:
		receipt, err = a.payments.Refund(ctx, paramString(params, "order_id"), paramFloat(params, "amount"), "Customer experience rescue")
	case ActionPartialRefund:
		receipt, err = a.payments.Refund(ctx, paramString(params, "order_id"), paramFloat(params, "amount"), "Partial compensation")
	case ActionReshipOrder:
		receipt, err = a.orders.CreateReplacement(ctx, paramString(params, "order_id"), true)
	case ActionGenerateCoupon:
		unit := paramString(params, "unit")
		if unit == "" {
			unit = "percent"
		}
		receipt, err = a.payments.CreateCoupon(ctx, profile.CustomerID, paramFloat(params, "value"), unit)
	case ActionAccountCredit:
		receipt, err = a.customers.AddCredit(ctx, profile.CustomerID, paramFloat(params, "amount"), "Service recovery credit")
	case ActionExpediteShipping:
		receipt, err = a.orders.UpgradeShipping(ctx, paramString(params, "order_id"), "express")
	case ActionEscalateToManager:
		reason := paramString(params, "reason")
		if reason == "" {
			reason = "Complex case requiring human intervention"
		}
		return &ExecutionResult{
			Success: true,
			Action:  action,
			Details: map[string]interface{}{
				"action":            "escalated",
				"message":           "Case escalated to human manager",
				"escalation_reason": reason,
			},
		}
	default:
		logging.ActionError("unknown action: %s", action)
		return &ExecutionResult{Success: false, Error: fmt.Sprintf("Unknown action: %s", action)}
	}

	if err != nil {
		logging.ActionError("error executing action %s: %v", action, err)
		return &ExecutionResult{Success: false, Error: err.Error(), Action: action}
	}
	return &ExecutionResult{Success: true, Action: action, Details: receiptDetails(receipt)}
}

// receiptDetails flattens a collaborator receipt into the generic details
// map carried by the outcome record.
func receiptDetails(receipt interface{}) map[string]interface{} {
	data, err := json.Marshal(receipt)
	if err != nil {
		return map[string]interface{}{"receipt": fmt.Sprintf("%v", receipt)}
	}
	var details map[string]interface{}
	if err := json.Unmarshal(data, &details); err != nil {
		return map[string]interface{}{"receipt": string(data)}
	}
	return details
}

// communicate sends the resolution email and, when the action succeeded and
// a phone number is on file, an SMS. Send failures are recorded in the
// result rather than failing the stage.
func (a *ActionStage) communicate(ctx context.Context, caseFile *CaseFile, solution *Solution, execResult *ExecutionResult) *CommunicationResult {
	profile := caseFile.CustomerDetails
	body := a.generateEmailBody(ctx, profile, caseFile.IssueSummary, solution, execResult)

	result := &CommunicationResult{ContentGenerated: true}

	if profile.Email != "" {
		name := profile.Name
		if name == "" {
			name = "Valued Customer"
		}
		subject := fmt.Sprintf("We've Resolved Your Recent Concern - %s", name)
		receipt, err := a.email.SendEmail(ctx, profile.Email, subject, body)
		if err != nil {
			logging.ActionError("error sending customer email: %v", err)
			result.Error = err.Error()
		} else {
			result.EmailSent = receipt
		}
	}

	if profile.Phone != "" && execResult.Success {
		sms := tools.TruncateSMS(smsBody(solution.Action), a.cfg.Communication.SMSMaxLength)
		receipt, err := a.sms.SendSMS(ctx, profile.Phone, sms)
		if err != nil {
			logging.ActionError("error sending customer SMS: %v", err)
			result.Error = err.Error()
		} else {
			result.SMSSent = receipt
		}
	}

	return result
}

// generateEmailBody produces the resolution email via the model, falling
// back to the canned apology when generation fails.
func (a *ActionStage) generateEmailBody(ctx context.Context, profile *tools.CustomerProfile, issueSummary string, solution *Solution, execResult *ExecutionResult) string {
	prompt := emailPrompt(profile, issueSummary, solution, execResult)
	body, err := a.model.Complete(ctx, prompt)
	if err != nil || body == "" {
		logging.ActionError("error generating email content: %v", err)
		return fallbackEmailBody(profile)
	}
	return llm.CleanResponse(body)
}

// logToCRM appends a resolution note to the customer record. Returns false
// when the customer ID is missing or the CRM write fails.
func (a *ActionStage) logToCRM(ctx context.Context, caseFile *CaseFile, solution *Solution, execResult *ExecutionResult) bool {
	customerID := caseFile.CustomerDetails.CustomerID
	if customerID == "" {
		return false
	}

	status := "FAILED"
	if execResult.Success {
		status = "SUCCESS"
	}
	note := fmt.Sprintf(`CX RESCUE INCIDENT - %s

RESOLUTION DETAILS:
- Action Taken: %s
- Execution Status: %s
- Solution Explanation: %s

CUSTOMER COMMUNICATION:
- Email sent to customer
- Issue resolved automatically by CX Rescue Pipeline

FOLLOW-UP:
- Monitor customer satisfaction
- Ensure resolution effectiveness`,
		caseFile.IssueSummary, solution.Action, status, solution.Explanation)

	ok, err := a.customers.AppendNote(ctx, customerID, note)
	if err != nil || !ok {
		logging.ActionError("failed to log incident to CRM for customer %s: %v", customerID, err)
		return false
	}
	logging.Action("logged incident to CRM for customer %s", customerID)
	return true
}
