package models

import (
	"regexp"
	"testing"
	"time"
)

func TestStatusForCount(t *testing.T) {
	tests := []struct {
		n    int
		want Status
	}{
		{0, StatusSeedling},
		{7, StatusSeedling},
		{8, StatusBudding},
		{14, StatusBudding},
		{15, StatusEvergreen},
		{40, StatusEvergreen},
	}
	for _, tt := range tests {
		if got := StatusForCount(tt.n); got != tt.want {
			t.Errorf("StatusForCount(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestEdgeTypeReverse(t *testing.T) {
	tests := map[EdgeType]EdgeType{
		EdgeSupports:     EdgeSupportedBy,
		EdgeExtends:      EdgeExtendedBy,
		EdgeApplies:      EdgeAppliedIn,
		EdgePrerequisite: EdgeRequiredFor,
		EdgeContrasts:    EdgeContrasts,
		EdgeRelated:      EdgeRelated,
		EdgeType("odd"):  EdgeRelated,
	}
	for in, want := range tests {
		if got := in.Reverse(); got != want {
			t.Errorf("%q.Reverse() = %q, want %q", in, got, want)
		}
	}
}

func TestParseEdgeType(t *testing.T) {
	if _, ok := ParseEdgeType("supports"); !ok {
		t.Error("supports should parse")
	}
	if _, ok := ParseEdgeType("supported_by"); ok {
		t.Error("reverse types are not valid outbound types")
	}
}

func TestEdgeMirror(t *testing.T) {
	src := &Record{ID: "a", Title: "Alpha"}
	e := Edge{Target: "Beta", TargetID: "b", Type: EdgePrerequisite, Confidence: 0.8, Strategy: StrategyGeneration}
	m := e.Mirror(src)
	if m.TargetID != "a" || m.Target != "Alpha" {
		t.Errorf("mirror points to %q/%q, want a/Alpha", m.TargetID, m.Target)
	}
	if m.Type != EdgeRequiredFor {
		t.Errorf("mirror type = %q, want %q", m.Type, EdgeRequiredFor)
	}
	if m.Confidence != e.Confidence {
		t.Errorf("mirror confidence = %v, want %v", m.Confidence, e.Confidence)
	}
}

func TestNewID(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	id := NewID(now)
	if !regexp.MustCompile(`^20240305140709-[0-9a-f]{8}$`).MatchString(id) {
		t.Errorf("unexpected id format: %q", id)
	}
	if NewID(now) == id {
		t.Error("ids generated at the same instant must differ")
	}
}

func TestConnectionCountNeverNegative(t *testing.T) {
	r := &Record{Zettelkasten: Zettelkasten{ConnectionsCount: -2}}
	if got := r.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount = %d, want 0", got)
	}
}

func TestStatusLabel(t *testing.T) {
	if got := StatusBudding.Label(); got != "Budding" {
		t.Errorf("Label = %q, want Budding", got)
	}
}

func TestReport(t *testing.T) {
	var r Report
	r.Add("count", true, "ok", 5)
	if !r.Passed() || r.Summary() != "PASSED: 1/1 checks" {
		t.Errorf("report = %+v summary %q", r, r.Summary())
	}
	r.Add("length", false, "too short", 12)
	if r.Passed() {
		t.Error("report with a failed check should not pass")
	}
	if got := r.Failures(); len(got) != 1 || got[0] != "length: too short (12)" {
		t.Errorf("failures = %v", got)
	}
	if r.Summary() != "FAILED: 1/2 checks" {
		t.Errorf("summary = %q", r.Summary())
	}
}
