package pack

import (
	"fmt"
	"strings"

	"github.com/tripnara/readiness/pkg/condition"
)

// Level classifies how strongly a triggered rule gates readiness.
type Level string

const (
	LevelBlocker  Level = "blocker"
	LevelMust     Level = "must"
	LevelShould   Level = "should"
	LevelOptional Level = "optional"
)

// ParseLevel normalizes a level, folding the legacy aliases
// "warning" (must) and "suggestion" (should).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blocker":
		return LevelBlocker, nil
	case "must", "warning":
		return LevelMust, nil
	case "should", "suggestion":
		return LevelShould, nil
	case "optional":
		return LevelOptional, nil
	}
	return "", fmt.Errorf("unknown rule level %q", s)
}

// Severity is shared by rules and hazards.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Category is the finding category a rule contributes to.
type Category string

const (
	CategoryEvidence  Category = "evidence"
	CategorySchedule  Category = "schedule"
	CategoryTransport Category = "transport"
	CategorySafety    Category = "safety"
	CategoryBuffer    Category = "buffer"
)

// Source is an authority backing a pack's rules.
type Source struct {
	Authority string `yaml:"authority" json:"authority"`
	Title     string `yaml:"title" json:"title"`
	URL       string `yaml:"url,omitempty" json:"url,omitempty"`
}

// Rule is one conditional check inside a pack.
type Rule struct {
	ID             string            `yaml:"id" json:"id"`
	Level          Level             `yaml:"level" json:"level"`
	Category       Category          `yaml:"category" json:"category"`
	Severity       Severity          `yaml:"severity,omitempty" json:"severity,omitempty"`
	Trigger        condition.Trigger `yaml:"trigger" json:"trigger"`
	Message        string            `yaml:"message" json:"message"`
	ActionRequired string            `yaml:"action_required,omitempty" json:"actionRequired,omitempty"`
	AffectedDays   []int             `yaml:"affected_days,omitempty" json:"affectedDays,omitempty"`
	RepairHints    []string          `yaml:"repair_hints,omitempty" json:"repairHints,omitempty"`
}

// Hazard is emitted whenever its pack triggers.
type Hazard struct {
	Type        string   `yaml:"type" json:"type"`
	Severity    Severity `yaml:"severity" json:"severity"`
	Summary     string   `yaml:"summary" json:"summary"`
	Mitigations []string `yaml:"mitigations,omitempty" json:"mitigations,omitempty"`
}

// CapabilityPack is a named rule set keyed by Type.
type CapabilityPack struct {
	SchemaVersion string   `yaml:"schema_version" json:"schemaVersion"`
	Type          string   `yaml:"type" json:"type"`
	DisplayName   string   `yaml:"display_name" json:"displayName"`
	Description   string   `yaml:"description,omitempty" json:"description,omitempty"`
	Sources       []Source `yaml:"sources,omitempty" json:"sources,omitempty"`
	Rules         []Rule   `yaml:"rules" json:"rules"`
	Hazards       []Hazard `yaml:"hazards,omitempty" json:"hazards,omitempty"`
}

// Info is the catalogue entry for a pack.
type Info struct {
	Type        string   `json:"type"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description,omitempty"`
	RuleCount   int      `json:"ruleCount"`
	Fields      []string `json:"fields"`
}

// RuleResult records one rule outcome within a pack evaluation.
type RuleResult struct {
	ID             string   `json:"id"`
	Level          Level    `json:"level"`
	Category       Category `json:"category"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	ActionRequired string   `json:"actionRequired,omitempty"`
	AffectedDays   []int    `json:"affectedDays,omitempty"`
	RepairHints    []string `json:"repairHints,omitempty"`
	Triggered      bool     `json:"triggered"`
	Reason         string   `json:"reason,omitempty"`
}

// PackResult is the outcome of evaluating one pack against a trip.
// A failed pack carries Error and is never Triggered.
type PackResult struct {
	PackType      string       `json:"packType"`
	DisplayName   string       `json:"displayName"`
	Triggered     bool         `json:"triggered"`
	TriggerReason string       `json:"triggerReason,omitempty"`
	Rules         []RuleResult `json:"rules"`
	Hazards       []Hazard     `json:"hazards,omitempty"`
	Sources       []Source     `json:"sources,omitempty"`
	Failed        bool         `json:"failed,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// TriggeredRules returns only the rules that fired.
func (r PackResult) TriggeredRules() []RuleResult {
	var out []RuleResult
	for _, rr := range r.Rules {
		if rr.Triggered {
			out = append(out, rr)
		}
	}
	return out
}

// Summary is returned by catalogue-level evaluation.
type Summary struct {
	Total     int          `json:"total"`
	Triggered int          `json:"triggered"`
	Failed    int          `json:"failed"`
	Results   []PackResult `json:"results"`
}

// Summarize counts triggered and failed packs.
func Summarize(results []PackResult) Summary {
	s := Summary{Total: len(results), Results: results}
	for _, r := range results {
		if r.Triggered {
			s.Triggered++
		}
		if r.Failed {
			s.Failed++
		}
	}
	return s
}
