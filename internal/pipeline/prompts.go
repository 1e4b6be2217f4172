package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"cxrescue/internal/config"
	"cxrescue/internal/tools"
)

// mustJSON renders v as indented JSON for prompt interpolation. Marshal
// failures degrade to the fmt representation rather than aborting a prompt.
func mustJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// triagePrompt asks the model for an escalation decision over the customer
// profile and transcript. The value criteria come from config so operators
// can tune thresholds without touching code.
func triagePrompt(cfg *config.Config, profile *tools.CustomerProfile, sentimentScore float64, transcript string) string {
	tiers := strings.Join(cfg.Escalation.HighValueTiers, "/")
	return fmt.Sprintf(`You are a Triage Agent for critical customer complaints.
Your goal is to assess the situation's severity and escalate if necessary.

Customer Details:
%s

Sentiment Score: %v (0=neutral, 1=extremely negative)

Transcript:
%s

Instructions:
1. Analyze the customer's value (LTV > $%.0f OR status is %s tier)
2. Analyze the transcript for explicit phrases of severe dissatisfaction:
   - "never again", "worst experience", "reporting you"
   - Threats to leave or switch competitors
   - Demands for refunds or escalation to management
   - Language indicating extreme frustration or anger
3. Consider the high sentiment score (%v) as additional evidence

Decision Criteria:
- Escalate if: Customer is high-value AND transcript confirms severe dissatisfaction
- Do not escalate if: Customer is low-value OR transcript shows mild complaints only

If escalating, create a case_file with:
- customer_details: The full customer information
- transcript_text: The full transcript
- issue_summary: One-sentence summary of the core problem

Respond ONLY with valid JSON in this format:
{"escalate": true/false, "case_file": {"customer_details": ..., "transcript_text": "...", "issue_summary": "..."}}

OR if not escalating:
{"escalate": false, "reason": "explanation"}`,
		mustJSON(profile), sentimentScore, transcript,
		cfg.Escalation.LTVThreshold, tiers, sentimentScore)
}

// classificationTranscriptLimit bounds the transcript excerpt included in
// the classification prompt.
const classificationTranscriptLimit = 2000

// classificationPrompt asks the model to categorize the issue and extract
// order IDs, products, and urgency.
func classificationPrompt(issueSummary, transcript string) string {
	excerpt := transcript
	if len(excerpt) > classificationTranscriptLimit {
		excerpt = excerpt[:classificationTranscriptLimit]
	}
	return fmt.Sprintf(`Analyze this customer issue to determine the problem category and key details.

Issue Summary: %s

Transcript: %s...

Categorize this issue into one or more of these types:
- ORDER_ISSUE: Problems with orders (delays, wrong items, damaged goods)
- BILLING_ISSUE: Payment, refund, or billing problems
- PRODUCT_ISSUE: Product defects or quality issues
- SERVICE_ISSUE: Poor service experience or support issues
- SHIPPING_ISSUE: Delivery problems or shipping concerns
- ACCOUNT_ISSUE: Account access or profile problems

Also extract:
- Order ID (if mentioned)
- Product names/SKUs (if mentioned)
- Specific complaint details
- Customer emotions/urgency level

Respond with JSON:
{
  "primary_category": "category",
  "secondary_categories": ["other categories"],
  "order_id": "order_id or null",
  "products": ["product names"],
  "complaint_details": ["specific issues"],
  "urgency_level": "low/medium/high/critical"
}`, issueSummary, excerpt)
}

// solutionsPrompt asks the model for 2-3 ranked remediation solutions given
// the full case context.
func solutionsPrompt(caseFile *CaseFile, analysis *ProblemAnalysis, policyContext string, operationalData map[string]interface{}) string {
	return fmt.Sprintf(`You are a master Solution Agent. Generate ranked solutions for this customer case.

CASE FILE:
%s

PROBLEM ANALYSIS:
%s

RELEVANT POLICIES:
%s

OPERATIONAL DATA:
%s

Instructions:
1. Analyze the customer's problem, value, and available policies
2. Generate 2-3 concrete, ranked solutions in order of preference
3. Each solution should specify exact actions and parameters
4. Consider customer tier, problem severity, and company policies
5. Prioritize solutions that restore customer confidence

Available Actions:
- full_refund: Full refund for order
- partial_refund: Partial refund with amount
- reship_order: Resend order with shipping upgrade
- generate_coupon: Create discount coupon
- account_credit: Add credit to customer account
- expedite_shipping: Upgrade shipping on pending order
- escalate_to_manager: Human escalation
- custom_appeasement: Custom resolution

Format your response as JSON:
{
  "ranked_solutions": [
    {
      "solution_id": 1,
      "action": "action_name",
      "params": {"param1": "value1", "param2": "value2"},
      "explanation": "Why this is the best solution",
      "estimated_cost": "dollar amount or 'low/medium/high'",
      "customer_impact": "expected customer satisfaction outcome"
    }
  ]
}`, mustJSON(caseFile), mustJSON(analysis), policyContext, mustJSON(operationalData))
}

// emailPrompt asks the model for a personalized resolution email.
func emailPrompt(profile *tools.CustomerProfile, issueSummary string, solution *Solution, execResult *ExecutionResult) string {
	name := profile.Name
	if name == "" {
		name = "Valued Customer"
	}
	tier := profile.Status
	if tier == "" {
		tier = "Standard"
	}
	return fmt.Sprintf(`Generate a personalized, empathetic email to a customer whose issue has been resolved.

Customer Details:
- Name: %s
- Customer Tier: %s
- Issue: %s

Solution Executed:
- Action: %s
- Details: %s

Execution Result:
%s

Email Requirements:
1. Acknowledge their frustration and apologize sincerely
2. Explain the specific action taken to resolve their issue
3. Mention any compensation or benefits provided
4. Reassure them of our commitment to their satisfaction
5. Provide contact information for follow-up
6. Use a warm, professional tone

Keep the email concise but thorough. Include specific details about what was done.`,
		name, tier, issueSummary, solution.Action, solution.Explanation, mustJSON(execResult))
}

// fallbackEmailBody is the deterministic apology used when email generation
// fails. Safe to send for any resolved case.
func fallbackEmailBody(profile *tools.CustomerProfile) string {
	name := profile.Name
	if name == "" {
		name = "Valued Customer"
	}
	return fmt.Sprintf(`Dear %s,

We sincerely apologize for the recent issue you experienced. We have taken immediate action to resolve your concern and ensure your satisfaction.

We understand how frustrating this situation must have been, and we want to make it right.

If you have any questions or concerns, please don't hesitate to reach out to us.

Thank you for your patience and for being a valued customer.

Best regards,
Customer Experience Team`, name)
}

// smsBody returns the canned SMS notification for an executed action.
func smsBody(action Action) string {
	switch action {
	case ActionFullRefund:
		return "Good news! Your refund has been processed and should appear in your account within 3-5 business days. Thank you for your patience."
	case ActionGenerateCoupon:
		return "We've added a special discount to your account as an apology for the recent issue. Check your email for details!"
	case ActionReshipOrder:
		return "Your replacement order has been shipped with expedited delivery. You'll receive tracking information shortly."
	default:
		return "We've resolved your recent concern. Please check your email for full details. Thank you for your patience!"
	}
}
