package policy

// builtinCorpus returns the company policy documents shipped with the
// pipeline. A configured docs directory extends, never replaces, this set.
func builtinCorpus() []Document {
	return []Document{
		{
			ID: "refund_policy_gold",
			Content: `Refund Policy for Gold Tier Customers:
Gold tier customers are eligible for full refunds within 90 days of purchase.
No restocking fees apply. Expedited processing within 24 hours.
For damaged items, immediate replacement or full refund at customer's choice.`,
		},
		{
			ID: "shipping_compensation",
			Content: `Shipping Issue Compensation Guidelines:
For late deliveries: Offer full shipping refund plus 10% order discount.
For lost packages: Full replacement order with expedited shipping at no charge.
For damaged shipments: Full refund or replacement plus shipping compensation.`,
		},
		{
			ID: "appeasement_matrix",
			Content: `Customer Appeasement Matrix:
High-value customers (LTV > $500): Up to $100 credit without approval.
Order issues: 20-50% discount on next purchase.
Service failures: Expedited shipping upgrade + account credit.`,
		},
		{
			ID: "escalation_guidelines",
			Content: `Escalation Guidelines:
Immediate escalation required for threats to leave or legal action.
Gold/VIP customers: Direct manager contact within 2 hours.
Compensation authority: Front-line agents up to $50, managers up to $200.`,
		},
	}
}
