package cypher

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestBuildContextualComponentProtocol(t *testing.T) {
	query := BuildContextual("What hardware handles network communication?", map[string][]string{
		"Component": {"R-ICU"},
		"Protocol":  {"CAN", "Ethernet"},
	})

	if !strings.Contains(query.Text, "USES_PROTOCOL") {
		t.Fatal("component+protocol query should traverse USES_PROTOCOL")
	}
	if !reflect.DeepEqual(query.Params["components"], []string{"R-ICU"}) {
		t.Fatalf("components param = %v", query.Params["components"])
	}
	if query.Params["lead_protocol"] != "CAN" {
		t.Fatalf("lead_protocol = %v, want CAN", query.Params["lead_protocol"])
	}
}

func TestBuildContextualComponentRequirement(t *testing.T) {
	query := BuildContextual("Show traceability for FuncR_S110", map[string][]string{
		"Requirement": {"FuncR_S110"},
		"Component":   {"R-ICU"},
	})

	if !strings.Contains(query.Text, "requirement_statements") {
		t.Fatal("component+requirement query should return statements")
	}
	if !reflect.DeepEqual(query.Params["requirements"], []string{"FuncR_S110"}) {
		t.Fatalf("requirements param = %v", query.Params["requirements"])
	}
}

func TestBuildContextualRequirementTestCase(t *testing.T) {
	query := BuildContextual("Is SafR_A010 verified by CT-A-1?", map[string][]string{
		"Requirement": {"SafR_A010"},
		"TestCase":    {"CT-A-1"},
	})

	if !strings.Contains(query.Text, "verification_method") {
		t.Fatal("requirement+testcase query should report verification method")
	}
	if !reflect.DeepEqual(query.Params["test_cases"], []string{"CT-A-1"}) {
		t.Fatalf("test_cases param = %v", query.Params["test_cases"])
	}
}

func TestBuildContextualComponentTestIntent(t *testing.T) {
	cases := []string{
		"What tests verify R-ICU?",
		"R-ICU 검증 방법은?",
		"Show R-ICU validation status",
	}
	for _, question := range cases {
		query := BuildContextual(question, map[string][]string{"Component": {"R-ICU"}})
		if !strings.Contains(query.Text, "test_count") {
			t.Errorf("question %q should select the verification pattern", question)
		}
	}
}

func TestBuildContextualComponentGeneral(t *testing.T) {
	query := BuildContextual("Tell me about the Walking Manipulator", map[string][]string{
		"Component": {"WM"},
	})

	if !strings.Contains(query.Text, "design_sections") {
		t.Fatal("general component query should return design sections")
	}
	if strings.Contains(query.Text, "test_count") {
		t.Fatal("general component query should not use the verification pattern")
	}
}

func TestBuildContextualRequirementOnly(t *testing.T) {
	query := BuildContextual("Details of FuncR_S110", map[string][]string{
		"Requirement": {"FuncR_S110"},
	})

	if !strings.Contains(query.Text, "DERIVES_FROM") {
		t.Fatal("requirement query should include derivation context")
	}
}

func TestBuildContextualTestCaseOnly(t *testing.T) {
	query := BuildContextual("What does CT-A-1 cover?", map[string][]string{
		"TestCase": {"CT-A-1"},
	})

	if !strings.Contains(query.Text, "verified_requirements") {
		t.Fatal("test-case query should return verified requirements")
	}
}

func TestBuildContextualGenericFallback(t *testing.T) {
	query := BuildContextual("anything", map[string][]string{})

	if !strings.Contains(query.Text, "LIMIT 10") {
		t.Fatal("generic fallback must be bounded")
	}
	if _, ok := query.Params["entity_ids"]; !ok {
		t.Fatal("generic fallback should carry entity_ids param")
	}
}

func TestBuildContextualQueriesPassValidation(t *testing.T) {
	v := NewValidator(nil, nil)
	inputs := []map[string][]string{
		{"Component": {"R-ICU"}, "Protocol": {"CAN"}},
		{"Component": {"WM"}, "Requirement": {"FuncR_S110"}},
		{"Requirement": {"SafR_A010"}, "TestCase": {"CT-A-1"}},
		{"Component": {"OBC"}},
		{"Requirement": {"PerfR_B200"}},
		{"TestCase": {"IT3"}},
		{},
	}
	for i, entities := range inputs {
		query := BuildContextual("test question", entities)
		if err := v.Validate(context.Background(), query.Text); err != nil {
			t.Errorf("pattern %d failed validation: %v", i, err)
		}
	}
}
