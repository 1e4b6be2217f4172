package pipeline

import (
	"context"
	"fmt"
	"strings"

	"cxrescue/internal/config"
	"cxrescue/internal/llm"
	"cxrescue/internal/logging"
)

// SolutionStage turns a case file into ranked remediation solutions. Policy
// and operational lookups are best-effort context gathering: a failed lookup
// degrades the prompt, never the stage.
type SolutionStage struct {
	cfg       *config.Config
	model     llm.Client
	policies  PolicySearcher
	orders    OrderSystem
	inventory InventoryChecker
}

func NewSolutionStage(cfg *config.Config, model llm.Client, policies PolicySearcher, orders OrderSystem, inventory InventoryChecker) *SolutionStage {
	return &SolutionStage{cfg: cfg, model: model, policies: policies, orders: orders, inventory: inventory}
}

// Process classifies the problem, gathers policy and operational context,
// and generates ranked solutions. The returned set always includes the
// context it was built from so the outcome record is auditable.
func (s *SolutionStage) Process(ctx context.Context, caseFile *CaseFile) *SolutionSet {
	logging.Solution("solution stage processing case file for customer %s", caseFile.CustomerDetails.CustomerID)

	analysis := s.classifyProblem(ctx, caseFile)
	policyContext := s.gatherPolicyContext(ctx, analysis, caseFile)
	operationalData := s.gatherOperationalData(ctx, analysis)
	solutions := s.generateSolutions(ctx, caseFile, analysis, policyContext, operationalData)

	return &SolutionSet{
		RankedSolutions: solutions,
		ProblemAnalysis: analysis,
		PolicyContext:   policyContext,
		OperationalData: operationalData,
	}
}

// classifyProblem categorizes the issue. On any model failure the stage
// proceeds with the conservative SERVICE_ISSUE/high fallback.
func (s *SolutionStage) classifyProblem(ctx context.Context, caseFile *CaseFile) *ProblemAnalysis {
	prompt := classificationPrompt(caseFile.IssueSummary, caseFile.TranscriptText)

	var analysis ProblemAnalysis
	err := llm.Decide(ctx, s.model, prompt, &analysis, func() error {
		if !ValidCategory(analysis.PrimaryCategory) {
			return fmt.Errorf("unrecognized primary_category %q", analysis.PrimaryCategory)
		}
		if analysis.UrgencyLevel == "" {
			analysis.UrgencyLevel = UrgencyHigh
		}
		if !ValidUrgency(analysis.UrgencyLevel) {
			return fmt.Errorf("unrecognized urgency_level %q", analysis.UrgencyLevel)
		}
		return nil
	})
	if err != nil {
		logging.SolutionError("problem classification failed: %v", err)
		return &ProblemAnalysis{PrimaryCategory: CategoryServiceIssue, UrgencyLevel: UrgencyHigh}
	}

	logging.Solution("problem analysis completed: %s", analysis.PrimaryCategory)
	return &analysis
}

// gatherPolicyContext runs targeted policy queries for the problem category
// and customer tier. Individual query failures are logged and skipped.
func (s *SolutionStage) gatherPolicyContext(ctx context.Context, analysis *ProblemAnalysis, caseFile *CaseFile) string {
	category := strings.ToLower(string(analysis.PrimaryCategory))
	tier := caseFile.CustomerDetails.Status
	if tier == "" {
		tier = "Standard"
	}

	queries := []string{
		fmt.Sprintf("%s policy for %s tier customer", category, tier),
		fmt.Sprintf("refund policy %s customer", tier),
		fmt.Sprintf("appeasement guidelines %s", category),
		"escalation procedures high value customer",
	}

	var sections []string
	for _, query := range queries {
		policies, err := s.policies.Search(ctx, query, s.cfg.Policy.TopK)
		if err != nil {
			logging.SolutionError("policy search %q failed: %v", query, err)
			continue
		}
		if policies != "" {
			sections = append(sections, policies)
		}
	}
	if len(sections) == 0 {
		return noPolicyContext
	}
	return strings.Join(sections, "\n\n")
}

// noPolicyContext marks a failed or empty retrieval so the generation prompt
// never carries a silently blank policy section.
const noPolicyContext = "No relevant policy context found."

// gatherOperationalData fetches order status and product availability when
// the analysis surfaced them. A missing key means the lookup failed or was
// not applicable, which is not a pipeline error.
func (s *SolutionStage) gatherOperationalData(ctx context.Context, analysis *ProblemAnalysis) map[string]interface{} {
	data := make(map[string]interface{})

	if analysis.OrderID != "" {
		order, err := s.orders.GetStatus(ctx, analysis.OrderID)
		if err != nil {
			logging.SolutionError("order status lookup for %s failed: %v", analysis.OrderID, err)
		} else {
			data["order_status"] = order
		}
	}

	if len(analysis.Products) > 0 {
		inventory := make(map[string]interface{})
		for _, product := range analysis.Products {
			stock, err := s.inventory.CheckAvailability(ctx, product)
			if err != nil {
				logging.SolutionError("inventory check for %q failed: %v", product, err)
				continue
			}
			inventory[product] = stock
		}
		if len(inventory) > 0 {
			data["inventory"] = inventory
		}
	}

	return data
}

// generateSolutions asks the model for ranked solutions. A model failure
// falls back to a single manager escalation; an empty parsed list passes
// through so the orchestrator can surface it as a pipeline error.
func (s *SolutionStage) generateSolutions(ctx context.Context, caseFile *CaseFile, analysis *ProblemAnalysis, policyContext string, operationalData map[string]interface{}) []Solution {
	prompt := solutionsPrompt(caseFile, analysis, policyContext, operationalData)

	var wire struct {
		RankedSolutions []Solution `json:"ranked_solutions"`
	}
	err := llm.Decide(ctx, s.model, prompt, &wire, func() error { return nil })
	if err != nil {
		logging.SolutionError("solution generation failed: %v", err)
		return []Solution{{
			SolutionID:  1,
			Action:      ActionEscalateToManager,
			Params:      map[string]interface{}{"reason": "Error in automated solution generation"},
			Explanation: "Due to processing error, escalating to human manager",
		}}
	}

	for i, sol := range wire.RankedSolutions {
		if sol.SolutionID == 0 || sol.Action == "" || sol.Params == nil || sol.Explanation == "" {
			logging.Solution("solution %d missing required fields", i+1)
		}
	}

	logging.Solution("generated %d solutions", len(wire.RankedSolutions))
	return wire.RankedSolutions
}
