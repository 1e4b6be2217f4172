package pipeline

import (
	"context"
	"fmt"

	"cxrescue/internal/config"
	"cxrescue/internal/tools"
)

// scriptedModel replays canned completions in order. An empty script or an
// exhausted one returns the configured error.
type scriptedModel struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (m *scriptedModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.calls < len(m.responses) {
		resp := m.responses[m.calls]
		m.calls++
		return resp, nil
	}
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return "", fmt.Errorf("model unavailable")
}

type fakeCustomers struct {
	profile   *tools.CustomerProfile
	lookupErr error
	notes     []string
	noteErr   error
	credits   []float64
	creditErr error
}

func (f *fakeCustomers) LookupCustomer(ctx context.Context, customerID string) (*tools.CustomerProfile, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.profile, nil
}

func (f *fakeCustomers) AppendNote(ctx context.Context, customerID, note string) (bool, error) {
	if f.noteErr != nil {
		return false, f.noteErr
	}
	f.notes = append(f.notes, note)
	return true, nil
}

func (f *fakeCustomers) AddCredit(ctx context.Context, customerID string, amount float64, reason string) (*tools.CreditReceipt, error) {
	if f.creditErr != nil {
		return nil, f.creditErr
	}
	f.credits = append(f.credits, amount)
	return &tools.CreditReceipt{CreditID: "CR-1", CustomerID: customerID, Amount: amount}, nil
}

type fakeTranscripts struct {
	text string
	err  error
}

func (f *fakeTranscripts) Fetch(ctx context.Context, transcriptID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakePolicies struct {
	result  string
	err     error
	queries []string
}

func (f *fakePolicies) Search(ctx context.Context, query string, topK int) (string, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

type fakeOrders struct {
	order          *tools.Order
	statusErr      error
	replacements   []string
	replacementErr error
	upgrades       []string
}

func (f *fakeOrders) GetStatus(ctx context.Context, orderID string) (*tools.Order, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.order, nil
}

func (f *fakeOrders) CreateReplacement(ctx context.Context, originalOrderID string, upgrade bool) (*tools.ReplacementReceipt, error) {
	if f.replacementErr != nil {
		return nil, f.replacementErr
	}
	f.replacements = append(f.replacements, originalOrderID)
	return &tools.ReplacementReceipt{NewOrderID: "O-NEW", OriginalOrderID: originalOrderID, ShippingMethod: "express"}, nil
}

func (f *fakeOrders) UpgradeShipping(ctx context.Context, orderID, newMethod string) (*tools.ShippingReceipt, error) {
	f.upgrades = append(f.upgrades, orderID)
	return &tools.ShippingReceipt{OrderID: orderID, NewMethod: newMethod}, nil
}

type fakeInventory struct {
	stock *tools.StockInfo
	err   error
}

func (f *fakeInventory) CheckAvailability(ctx context.Context, productIdentifier string) (*tools.StockInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stock, nil
}

type refundCall struct {
	orderID string
	amount  float64
	reason  string
}

type fakePayments struct {
	refunds   []refundCall
	refundErr error
	coupons   []float64
	couponErr error
}

func (f *fakePayments) Refund(ctx context.Context, orderID string, amount float64, reason string) (*tools.RefundReceipt, error) {
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	f.refunds = append(f.refunds, refundCall{orderID: orderID, amount: amount, reason: reason})
	return &tools.RefundReceipt{RefundID: "RF-1", OrderID: orderID, Amount: amount, Status: "succeeded"}, nil
}

func (f *fakePayments) CreateCoupon(ctx context.Context, customerID string, value float64, unit string) (*tools.CouponReceipt, error) {
	if f.couponErr != nil {
		return nil, f.couponErr
	}
	f.coupons = append(f.coupons, value)
	return &tools.CouponReceipt{CouponCode: "CX-RESCUE-DEADBEEF", CustomerID: customerID, Value: value, Unit: unit}, nil
}

type sentMessage struct {
	recipient string
	subject   string
	body      string
}

type fakeEmail struct {
	sent []sentMessage
	err  error
}

func (f *fakeEmail) SendEmail(ctx context.Context, recipient, subject, body string) (*tools.SendReceipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, sentMessage{recipient: recipient, subject: subject, body: body})
	return &tools.SendReceipt{Recipient: recipient, MessageID: "EM-1", Status: "sent"}, nil
}

type fakeSMS struct {
	sent []sentMessage
	err  error
}

func (f *fakeSMS) SendSMS(ctx context.Context, recipient, body string) (*tools.SendReceipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, sentMessage{recipient: recipient, body: body})
	return &tools.SendReceipt{Recipient: recipient, MessageID: "SM-1", Status: "queued"}, nil
}

func goldProfile() *tools.CustomerProfile {
	return &tools.CustomerProfile{
		CustomerID: "C67890",
		Name:       "Sarah Johnson",
		Email:      "sarah@example.com",
		Phone:      "+15551234567",
		LTV:        1500,
		Status:     "Gold",
	}
}

func testConfig() *config.Config {
	return config.DefaultConfig()
}

func caseFileFixture() *CaseFile {
	return &CaseFile{
		CustomerDetails: goldProfile(),
		TranscriptText:  "Customer: This is the worst experience I have ever had. I want a refund for order O-1.",
		IssueSummary:    "Customer demands refund for damaged order O-1",
	}
}
