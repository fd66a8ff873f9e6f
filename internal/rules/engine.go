// Package rules derives the obligations a deal's shape imposes at each
// stage. Evaluation is pure and deterministic: no state, no I/O, identical
// input always yields the identical obligation set, so the deals service can
// re-run it on every transition and de-duplicate at reconciliation.
package rules

import (
	"sort"
	"strings"
	"time"

	"dealflow/internal/domain"
)

// ObligationKind says whether an obligation lands in the task ledger or the
// compliance ledger.
type ObligationKind string

const (
	KindTask     ObligationKind = "task"
	KindDocument ObligationKind = "document"
)

// Obligation is one derived requirement. SourceRule plus Name is the
// reconciliation de-duplication key.
type Obligation struct {
	Kind       ObligationKind
	Name       string
	Rationale  string
	SourceRule string
	// Task-only hints; zero for documents.
	Priority     domain.Priority
	Category     string
	AssigneeRole string
	DueIn        time.Duration
}

// Document rule identifiers.
const (
	RuleYearBuiltPre1978 = "year_built_pre_1978"
	RulePropertyCondo    = "property_type_condo"
	RuleKeywordSeptic    = "keyword_septic"
	RuleKeywordWell      = "keyword_well"
	RuleFinancingFHA     = "financing_fha_va"
	RuleKeywordHOA       = "keyword_hoa"
)

// Stage task rule identifiers.
const (
	RuleStageUnderContract = "stage_under_contract"
	RuleStageInspection    = "stage_inspection"
	RuleStageFinancing     = "stage_financing"
	RuleStageClosing       = "stage_closing"
)

// Evaluate returns the obligations the deal's attributes impose on entry to
// stage. Unmatched attributes contribute nothing; the function is total over
// the attribute space.
func Evaluate(attrs domain.Attributes, stage domain.Stage) []Obligation {
	var out []Obligation

	if attrs.YearBuilt > 0 && attrs.YearBuilt < 1978 {
		out = append(out, Obligation{
			Kind:       KindDocument,
			Name:       "Lead-Based Paint Disclosure",
			Rationale:  "federal disclosure required for homes built before 1978",
			SourceRule: RuleYearBuiltPre1978,
		})
	}
	if attrs.PropertyType == domain.PropertyCondo {
		out = append(out, Obligation{
			Kind:       KindDocument,
			Name:       "Condo Bylaws Receipt",
			Rationale:  "buyer must acknowledge receipt of association bylaws",
			SourceRule: RulePropertyCondo,
		})
	}
	if attrs.FinancingType == domain.FinancingFHA || attrs.FinancingType == domain.FinancingVA {
		out = append(out, Obligation{
			Kind:       KindDocument,
			Name:       "FHA/VA Amendatory Clause",
			Rationale:  "government-backed loans require the amendatory clause",
			SourceRule: RuleFinancingFHA,
		})
	}
	for _, kw := range attrs.Keywords {
		switch strings.ToLower(strings.TrimSpace(kw)) {
		case "septic":
			out = append(out, Obligation{
				Kind:       KindDocument,
				Name:       "Septic Inspection Certificate",
				Rationale:  "septic systems require a passing inspection on transfer",
				SourceRule: RuleKeywordSeptic,
			})
		case "well":
			out = append(out, Obligation{
				Kind:       KindDocument,
				Name:       "Well Water Test Report",
				Rationale:  "private wells require a potability test",
				SourceRule: RuleKeywordWell,
			})
		case "hoa":
			out = append(out, Obligation{
				Kind:       KindDocument,
				Name:       "HOA Resale Package",
				Rationale:  "association-governed properties require resale docs",
				SourceRule: RuleKeywordHOA,
			})
		}
	}

	out = append(out, stageTasks(stage)...)

	// Deterministic order plus in-set de-duplication keeps re-evaluation
	// idempotent even if two keywords derive the same document.
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceRule != out[j].SourceRule {
			return out[i].SourceRule < out[j].SourceRule
		}
		return out[i].Name < out[j].Name
	})
	dedup := out[:0]
	for i, o := range out {
		if i > 0 && o.SourceRule == out[i-1].SourceRule && o.Name == out[i-1].Name {
			continue
		}
		dedup = append(dedup, o)
	}
	return dedup
}

// stageTasks derives the standing work items each stage opens.
func stageTasks(stage domain.Stage) []Obligation {
	switch stage {
	case domain.StageUnderContract:
		return []Obligation{
			{
				Kind: KindTask, Name: "Open escrow account",
				Rationale:  "earnest money must be deposited on ratification",
				SourceRule: RuleStageUnderContract,
				Priority:   domain.PriorityCritical, Category: "escrow",
				AssigneeRole: "transaction_coordinator", DueIn: 48 * time.Hour,
			},
			{
				Kind: KindTask, Name: "Order title search",
				Rationale:  "title must be clear before closing",
				SourceRule: RuleStageUnderContract,
				Priority:   domain.PriorityHigh, Category: "title",
				AssigneeRole: "transaction_coordinator", DueIn: 5 * 24 * time.Hour,
			},
		}
	case domain.StageInspection:
		return []Obligation{
			{
				Kind: KindTask, Name: "Schedule home inspection",
				Rationale:  "inspection contingency window is running",
				SourceRule: RuleStageInspection,
				Priority:   domain.PriorityCritical, Category: "inspection",
				AssigneeRole: "buyer_agent", DueIn: 72 * time.Hour,
			},
		}
	case domain.StageFinancing:
		return []Obligation{
			{
				Kind: KindTask, Name: "Confirm appraisal ordered",
				Rationale:  "lender appraisal gates loan approval",
				SourceRule: RuleStageFinancing,
				Priority:   domain.PriorityHigh, Category: "financing",
				AssigneeRole: "lender_liaison", DueIn: 5 * 24 * time.Hour,
			},
		}
	case domain.StageClosing:
		return []Obligation{
			{
				Kind: KindTask, Name: "Review closing disclosure",
				Rationale:  "CD must be reviewed three days before signing",
				SourceRule: RuleStageClosing,
				Priority:   domain.PriorityCritical, Category: "closing",
				AssigneeRole: "buyer_agent", DueIn: 72 * time.Hour,
			},
			{
				Kind: KindTask, Name: "Schedule final walkthrough",
				Rationale:  "walkthrough precedes the closing table",
				SourceRule: RuleStageClosing,
				Priority:   domain.PriorityHigh, Category: "closing",
				AssigneeRole: "buyer_agent", DueIn: 5 * 24 * time.Hour,
			},
		}
	}
	return nil
}
