package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cxrescue/internal/config"
)

func newActionStage(cfg *config.Config, model *scriptedModel, customers *fakeCustomers, orders *fakeOrders, payments *fakePayments, email *fakeEmail, sms *fakeSMS) *ActionStage {
	return NewActionStage(cfg, model, customers, orders, payments, email, sms)
}

func actionFixtures() (*fakeCustomers, *fakeOrders, *fakePayments, *fakeEmail, *fakeSMS) {
	return &fakeCustomers{profile: goldProfile()}, &fakeOrders{}, &fakePayments{}, &fakeEmail{}, &fakeSMS{}
}

func solutionSet(solutions ...Solution) *SolutionSet {
	return &SolutionSet{RankedSolutions: solutions}
}

func TestActionNoSolutionsProvided(t *testing.T) {
	customers, orders, payments, email, sms := actionFixtures()
	stage := newActionStage(testConfig(), &scriptedModel{}, customers, orders, payments, email, sms)

	result := stage.Process(context.Background(), caseFileFixture(), solutionSet())

	assert.False(t, result.Success)
	assert.Equal(t, "No solutions provided", result.Error)
	assert.Empty(t, email.sent)
	assert.Empty(t, sms.sent)
}

func TestActionExecutesOnlyTopSolution(t *testing.T) {
	customers, orders, payments, email, sms := actionFixtures()
	model := &scriptedModel{responses: []string{"Dear Sarah, your refund is on its way."}}
	stage := newActionStage(testConfig(), model, customers, orders, payments, email, sms)

	set := solutionSet(
		Solution{SolutionID: 1, Action: ActionFullRefund, Params: map[string]interface{}{"order_id": "O-1"}, Explanation: "refund"},
		Solution{SolutionID: 2, Action: ActionGenerateCoupon, Params: map[string]interface{}{"value": 20.0}, Explanation: "coupon"},
		Solution{SolutionID: 3, Action: ActionAccountCredit, Params: map[string]interface{}{"amount": 10.0}, Explanation: "credit"},
	)
	result := stage.Process(context.Background(), caseFileFixture(), set)

	require.True(t, result.Success)
	require.Len(t, payments.refunds, 1)
	assert.Equal(t, "O-1", payments.refunds[0].orderID)
	// Lower-ranked alternatives are never attempted.
	assert.Empty(t, payments.coupons)
	assert.Empty(t, customers.credits)
	assert.Equal(t, ActionFullRefund, result.SolutionExecuted.Action)
}

func TestActionDispatchTable(t *testing.T) {
	tests := []struct {
		name     string
		solution Solution
		verify   func(t *testing.T, customers *fakeCustomers, orders *fakeOrders, payments *fakePayments)
	}{
		{
			name:     "full refund omits amount",
			solution: Solution{SolutionID: 1, Action: ActionFullRefund, Params: map[string]interface{}{"order_id": "O-1"}, Explanation: "x"},
			verify: func(t *testing.T, _ *fakeCustomers, _ *fakeOrders, payments *fakePayments) {
				require.Len(t, payments.refunds, 1)
				assert.Equal(t, refundCall{orderID: "O-1", amount: 0, reason: "Customer experience rescue"}, payments.refunds[0])
			},
		},
		{
			name:     "partial refund carries amount",
			solution: Solution{SolutionID: 1, Action: ActionPartialRefund, Params: map[string]interface{}{"order_id": "O-1", "amount": 25.5}, Explanation: "x"},
			verify: func(t *testing.T, _ *fakeCustomers, _ *fakeOrders, payments *fakePayments) {
				require.Len(t, payments.refunds, 1)
				assert.Equal(t, refundCall{orderID: "O-1", amount: 25.5, reason: "Partial compensation"}, payments.refunds[0])
			},
		},
		{
			name:     "reship order",
			solution: Solution{SolutionID: 1, Action: ActionReshipOrder, Params: map[string]interface{}{"order_id": "O-2"}, Explanation: "x"},
			verify: func(t *testing.T, _ *fakeCustomers, orders *fakeOrders, _ *fakePayments) {
				assert.Equal(t, []string{"O-2"}, orders.replacements)
			},
		},
		{
			name:     "coupon defaults to percent",
			solution: Solution{SolutionID: 1, Action: ActionGenerateCoupon, Params: map[string]interface{}{"value": 20.0}, Explanation: "x"},
			verify: func(t *testing.T, _ *fakeCustomers, _ *fakeOrders, payments *fakePayments) {
				assert.Equal(t, []float64{20}, payments.coupons)
			},
		},
		{
			name:     "account credit",
			solution: Solution{SolutionID: 1, Action: ActionAccountCredit, Params: map[string]interface{}{"amount": 15.0}, Explanation: "x"},
			verify: func(t *testing.T, customers *fakeCustomers, _ *fakeOrders, _ *fakePayments) {
				assert.Equal(t, []float64{15}, customers.credits)
			},
		},
		{
			name:     "expedite shipping",
			solution: Solution{SolutionID: 1, Action: ActionExpediteShipping, Params: map[string]interface{}{"order_id": "O-3"}, Explanation: "x"},
			verify: func(t *testing.T, _ *fakeCustomers, orders *fakeOrders, _ *fakePayments) {
				assert.Equal(t, []string{"O-3"}, orders.upgrades)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customers, orders, payments, email, sms := actionFixtures()
			model := &scriptedModel{responses: []string{"resolution email"}}
			stage := newActionStage(testConfig(), model, customers, orders, payments, email, sms)

			result := stage.Process(context.Background(), caseFileFixture(), solutionSet(tt.solution))

			require.True(t, result.Success)
			require.NotNil(t, result.ExecutionResult)
			assert.True(t, result.ExecutionResult.Success)
			tt.verify(t, customers, orders, payments)
		})
	}
}

func TestActionEscalateToManagerIsLocal(t *testing.T) {
	customers, orders, payments, email, sms := actionFixtures()
	model := &scriptedModel{responses: []string{"resolution email"}}
	stage := newActionStage(testConfig(), model, customers, orders, payments, email, sms)

	sol := Solution{SolutionID: 1, Action: ActionEscalateToManager, Params: map[string]interface{}{"reason": "VIP dispute"}, Explanation: "needs a human"}
	result := stage.Process(context.Background(), caseFileFixture(), solutionSet(sol))

	require.True(t, result.ExecutionResult.Success)
	assert.Equal(t, "escalated", result.ExecutionResult.Details["action"])
	assert.Equal(t, "Case escalated to human manager", result.ExecutionResult.Details["message"])
	assert.Equal(t, "VIP dispute", result.ExecutionResult.Details["escalation_reason"])
	assert.Empty(t, payments.refunds)
	assert.Empty(t, orders.replacements)
}

func TestActionUnknownActionFailsExecution(t *testing.T) {
	customers, orders, payments, email, sms := actionFixtures()
	model := &scriptedModel{responses: []string{"resolution email"}}
	stage := newActionStage(testConfig(), model, customers, orders, payments, email, sms)

	sol := Solution{SolutionID: 1, Action: "teleport_order", Params: map[string]interface{}{}, Explanation: "x"}
	result := stage.Process(context.Background(), caseFileFixture(), solutionSet(sol))

	// Stage completes, execution records the failure.
	require.True(t, result.Success)
	assert.False(t, result.ExecutionResult.Success)
	assert.Equal(t, "Unknown action: teleport_order", result.ExecutionResult.Error)
	assert.Empty(t, sms.sent)
}

func TestActionCollaboratorFailureIsCaptured(t *testing.T) {
	customers, orders, payments, email, sms := actionFixtures()
	payments.refundErr = fmt.Errorf("gateway declined")
	model := &scriptedModel{responses: []string{"resolution email"}}
	stage := newActionStage(testConfig(), model, customers, orders, payments, email, sms)

	sol := Solution{SolutionID: 1, Action: ActionFullRefund, Params: map[string]interface{}{"order_id": "O-1"}, Explanation: "x"}
	result := stage.Process(context.Background(), caseFileFixture(), solutionSet(sol))

	require.True(t, result.Success)
	assert.False(t, result.ExecutionResult.Success)
	assert.Contains(t, result.ExecutionResult.Error, "gateway declined")
	assert.Equal(t, ActionFullRefund, result.ExecutionResult.Action)
	// Email still goes out, SMS does not.
	assert.Len(t, email.sent, 1)
	assert.Empty(t, sms.sent)
}

func TestActionSMSGating(t *testing.T) {
	tests := []struct {
		name      string
		phone     string
		refundErr error
		wantSMS   bool
	}{
		{name: "phone and success", phone: "+15551234567", wantSMS: true},
		{name: "no phone", phone: "", wantSMS: false},
		{name: "phone but failed execution", phone: "+15551234567", refundErr: fmt.Errorf("declined"), wantSMS: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customers, orders, payments, email, sms := actionFixtures()
			payments.refundErr = tt.refundErr
			model := &scriptedModel{responses: []string{"resolution email"}}
			stage := newActionStage(testConfig(), model, customers, orders, payments, email, sms)

			caseFile := caseFileFixture()
			caseFile.CustomerDetails.Phone = tt.phone
			sol := Solution{SolutionID: 1, Action: ActionFullRefund, Params: map[string]interface{}{"order_id": "O-1"}, Explanation: "x"}
			stage.Process(context.Background(), caseFile, solutionSet(sol))

			if tt.wantSMS {
				assert.Len(t, sms.sent, 1)
			} else {
				assert.Empty(t, sms.sent)
			}
		})
	}
}

func TestActionSMSTruncatedToConfiguredLength(t *testing.T) {
	cfg := testConfig()
	cfg.Communication.SMSMaxLength = 60
	customers, orders, payments, email, sms := actionFixtures()
	model := &scriptedModel{responses: []string{"resolution email"}}
	stage := newActionStage(cfg, model, customers, orders, payments, email, sms)

	sol := Solution{SolutionID: 1, Action: ActionFullRefund, Params: map[string]interface{}{"order_id": "O-1"}, Explanation: "x"}
	stage.Process(context.Background(), caseFileFixture(), solutionSet(sol))

	require.Len(t, sms.sent, 1)
	body := sms.sent[0].body
	assert.Len(t, body, 60)
	assert.True(t, strings.HasSuffix(body, "..."))
}

func TestActionSMSTemplatePerAction(t *testing.T) {
	assert.Contains(t, smsBody(ActionFullRefund), "refund has been processed")
	assert.Contains(t, smsBody(ActionGenerateCoupon), "special discount")
	assert.Contains(t, smsBody(ActionReshipOrder), "replacement order")
	assert.Contains(t, smsBody(ActionAccountCredit), "resolved your recent concern")
}

func TestActionEmailFallbackOnModelFailure(t *testing.T) {
	customers, orders, payments, email, sms := actionFixtures()
	model := &scriptedModel{err: fmt.Errorf("model offline")}
	stage := newActionStage(testConfig(), model, customers, orders, payments, email, sms)

	sol := Solution{SolutionID: 1, Action: ActionFullRefund, Params: map[string]interface{}{"order_id": "O-1"}, Explanation: "x"}
	result := stage.Process(context.Background(), caseFileFixture(), solutionSet(sol))

	require.Len(t, email.sent, 1)
	assert.Equal(t, "We've Resolved Your Recent Concern - Sarah Johnson", email.sent[0].subject)
	assert.Equal(t, fallbackEmailBody(goldProfile()), email.sent[0].body)
	assert.True(t, result.CommunicationSent.ContentGenerated)
}

func TestActionEmailSendFailureDoesNotFailStage(t *testing.T) {
	customers, orders, payments, email, sms := actionFixtures()
	email.err = fmt.Errorf("smtp rejected")
	model := &scriptedModel{responses: []string{"resolution email"}}
	stage := newActionStage(testConfig(), model, customers, orders, payments, email, sms)

	sol := Solution{SolutionID: 1, Action: ActionFullRefund, Params: map[string]interface{}{"order_id": "O-1"}, Explanation: "x"}
	result := stage.Process(context.Background(), caseFileFixture(), solutionSet(sol))

	require.True(t, result.Success)
	assert.Nil(t, result.CommunicationSent.EmailSent)
	assert.Contains(t, result.CommunicationSent.Error, "smtp rejected")
	// SMS is independent of the email outcome.
	assert.Len(t, sms.sent, 1)
}

func TestActionLogsResolutionToCRM(t *testing.T) {
	customers, orders, payments, email, sms := actionFixtures()
	model := &scriptedModel{responses: []string{"resolution email"}}
	stage := newActionStage(testConfig(), model, customers, orders, payments, email, sms)

	sol := Solution{SolutionID: 1, Action: ActionFullRefund, Params: map[string]interface{}{"order_id": "O-1"}, Explanation: "full refund per policy"}
	result := stage.Process(context.Background(), caseFileFixture(), solutionSet(sol))

	assert.True(t, result.CRMLogged)
	require.Len(t, customers.notes, 1)
	note := customers.notes[0]
	assert.Contains(t, note, "CX RESCUE INCIDENT")
	assert.Contains(t, note, "full_refund")
	assert.Contains(t, note, "Execution Status: SUCCESS")
	assert.Contains(t, note, "full refund per policy")
}

func TestActionCRMLogFailureIsNonFatal(t *testing.T) {
	customers, orders, payments, email, sms := actionFixtures()
	customers.noteErr = fmt.Errorf("CRM write denied")
	model := &scriptedModel{responses: []string{"resolution email"}}
	stage := newActionStage(testConfig(), model, customers, orders, payments, email, sms)

	sol := Solution{SolutionID: 1, Action: ActionFullRefund, Params: map[string]interface{}{"order_id": "O-1"}, Explanation: "x"}
	result := stage.Process(context.Background(), caseFileFixture(), solutionSet(sol))

	require.True(t, result.Success)
	assert.False(t, result.CRMLogged)
}
