package rules

import (
	"reflect"
	"testing"

	"dealflow/internal/domain"
)

func TestEvaluateDeterministic(t *testing.T) {
	attrs := domain.Attributes{
		YearBuilt:     1965,
		PropertyType:  domain.PropertyCondo,
		FinancingType: domain.FinancingFHA,
		Keywords:      []string{"septic", "HOA"},
	}
	first := Evaluate(attrs, domain.StageUnderContract)
	second := Evaluate(attrs, domain.StageUnderContract)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical input produced different obligation sets")
	}
	if len(first) == 0 {
		t.Fatal("expected obligations")
	}
}

func TestEvaluatePre1978DerivesLeadPaint(t *testing.T) {
	attrs := domain.Attributes{YearBuilt: 1965, PropertyType: domain.PropertySingleFamily, FinancingType: domain.FinancingConventional}
	got := Evaluate(attrs, domain.StageNegotiation)

	var found bool
	for _, o := range got {
		if o.SourceRule == RuleYearBuiltPre1978 {
			found = true
			if o.Kind != KindDocument || o.Name != "Lead-Based Paint Disclosure" {
				t.Fatalf("unexpected obligation %+v", o)
			}
		}
	}
	if !found {
		t.Fatal("pre-1978 build did not derive the lead paint disclosure")
	}

	// Boundary: 1978 itself does not trigger.
	attrs.YearBuilt = 1978
	for _, o := range Evaluate(attrs, domain.StageNegotiation) {
		if o.SourceRule == RuleYearBuiltPre1978 {
			t.Fatal("1978 build should not derive the disclosure")
		}
	}
}

func TestEvaluateKeywordsCaseInsensitive(t *testing.T) {
	attrs := domain.Attributes{
		YearBuilt:     2000,
		PropertyType:  domain.PropertySingleFamily,
		FinancingType: domain.FinancingCash,
		Keywords:      []string{" Septic ", "WELL", "hoa"},
	}
	got := Evaluate(attrs, domain.StageNew)
	want := map[string]bool{RuleKeywordSeptic: false, RuleKeywordWell: false, RuleKeywordHOA: false}
	for _, o := range got {
		if _, ok := want[o.SourceRule]; ok {
			want[o.SourceRule] = true
		}
	}
	for rule, seen := range want {
		if !seen {
			t.Errorf("keyword rule %s did not fire", rule)
		}
	}
}

func TestEvaluateDedupesRepeatedKeywords(t *testing.T) {
	attrs := domain.Attributes{
		YearBuilt:     2000,
		PropertyType:  domain.PropertySingleFamily,
		FinancingType: domain.FinancingCash,
		Keywords:      []string{"septic", "septic"},
	}
	got := Evaluate(attrs, domain.StageNew)
	count := 0
	for _, o := range got {
		if o.SourceRule == RuleKeywordSeptic {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one septic obligation, got %d", count)
	}
}

func TestEvaluateStageTasks(t *testing.T) {
	attrs := domain.Attributes{YearBuilt: 2000, PropertyType: domain.PropertySingleFamily, FinancingType: domain.FinancingCash}

	byStage := map[domain.Stage]int{
		domain.StageNew:           0,
		domain.StageNegotiation:   0,
		domain.StageUnderContract: 2,
		domain.StageInspection:    1,
		domain.StageFinancing:     1,
		domain.StageClosing:       2,
		domain.StageClosed:        0,
	}
	for stage, want := range byStage {
		tasks := 0
		for _, o := range Evaluate(attrs, stage) {
			if o.Kind == KindTask {
				tasks++
				if o.Priority == "" || o.DueIn == 0 {
					t.Errorf("stage %s task %q missing hints", stage, o.Name)
				}
			}
		}
		if tasks != want {
			t.Errorf("stage %s derived %d tasks, want %d", stage, tasks, want)
		}
	}
}

func TestEvaluateFHAandVA(t *testing.T) {
	for _, ft := range []domain.FinancingType{domain.FinancingFHA, domain.FinancingVA} {
		attrs := domain.Attributes{YearBuilt: 2000, PropertyType: domain.PropertySingleFamily, FinancingType: ft}
		var found bool
		for _, o := range Evaluate(attrs, domain.StageNew) {
			if o.SourceRule == RuleFinancingFHA {
				found = true
			}
		}
		if !found {
			t.Errorf("%s financing did not derive the amendatory clause", ft)
		}
	}
}
