// Package readiness turns pack results and dimension scores into findings,
// risks and a single readiness score with a status.
package readiness

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/tripnara/readiness/pkg/pack"
)

// Status is the overall verdict for a trip.
type Status string

const (
	StatusReady    Status = "ready"
	StatusNearly   Status = "nearly"
	StatusNotReady Status = "not-ready"
)

// FindingType mirrors pack levels once legacy aliases are folded.
type FindingType string

const (
	TypeBlocker  FindingType = "blocker"
	TypeMust     FindingType = "must"
	TypeShould   FindingType = "should"
	TypeOptional FindingType = "optional"
)

var typeRank = map[FindingType]int{
	TypeBlocker:  0,
	TypeMust:     1,
	TypeShould:   2,
	TypeOptional: 3,
}

// NormalizeType folds legacy finding types. Unknown values are treated as optional.
func NormalizeType(s string) FindingType {
	lvl, err := pack.ParseLevel(s)
	if err != nil {
		return TypeOptional
	}
	return FindingType(lvl)
}

// Dimension names a readiness score dimension.
type Dimension string

const (
	DimEvidenceCoverage    Dimension = "evidenceCoverage"
	DimScheduleFeasibility Dimension = "scheduleFeasibility"
	DimTransportCertainty  Dimension = "transportCertainty"
	DimSafetyRisk          Dimension = "safetyRisk"
	DimBuffers             Dimension = "buffers"
)

// Fallback scores used when a dimension evaluator is missing or fails.
var Fallbacks = map[Dimension]int{
	DimEvidenceCoverage:    85,
	DimScheduleFeasibility: 70,
	DimTransportCertainty:  65,
	DimBuffers:             60,
}

// Finding is one actionable observation about a trip.
type Finding struct {
	ID             string        `json:"id"`
	Category       pack.Category `json:"category"`
	Type           FindingType   `json:"type"`
	Severity       pack.Severity `json:"severity"`
	Message        string        `json:"message"`
	ActionRequired string        `json:"actionRequired,omitempty"`
	AffectedDays   []int         `json:"affectedDays,omitempty"`
	Source         string        `json:"source"`
	RepairHints    []string      `json:"repairHints,omitempty"`
}

// PackSource is provenance for a risk.
type PackSource struct {
	Authority string `json:"authority"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
}

// Risk is a hazard surfaced by a triggered pack.
type Risk struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Severity     pack.Severity `json:"severity"`
	Message      string        `json:"message"`
	Mitigation   []string      `json:"mitigation,omitempty"`
	AffectedPOIs []string      `json:"affectedPois,omitempty"`
	PackType     string        `json:"packType"`
	PackSources  []PackSource  `json:"packSources,omitempty"`
}

// ScoreBreakdown holds per-dimension scores and the overall score.
type ScoreBreakdown struct {
	EvidenceCoverage    int                `json:"evidenceCoverage"`
	ScheduleFeasibility int                `json:"scheduleFeasibility"`
	TransportCertainty  int                `json:"transportCertainty"`
	SafetyRisk          int                `json:"safetyRisk"`
	Buffers             int                `json:"buffers"`
	Overall             int                `json:"overall"`
	Degraded            map[Dimension]bool `json:"degraded,omitempty"`
	CalculatedAt        time.Time          `json:"calculatedAt"`
}

// IsDegraded reports whether any dimension fell back.
func (s ScoreBreakdown) IsDegraded() bool {
	for _, d := range s.Degraded {
		if d {
			return true
		}
	}
	return false
}

// Fingerprint hashes the breakdown in canonical JSON, ignoring CalculatedAt.
func (s ScoreBreakdown) Fingerprint() (string, error) {
	s.CalculatedAt = time.Time{}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal breakdown: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize breakdown: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// BlockerSeverity grades blockers and watchlist items.
type BlockerSeverity string

const (
	BlockerCritical BlockerSeverity = "critical"
	BlockerHigh     BlockerSeverity = "high"
	BlockerMedium   BlockerSeverity = "medium"
)

// EvidenceSummary says where a blocker came from and when.
type EvidenceSummary struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Blocker is the user-facing view of a blocking finding.
type Blocker struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Severity        BlockerSeverity `json:"severity"`
	ImpactScope     string          `json:"impactScope"`
	EvidenceSummary EvidenceSummary `json:"evidenceSummary"`
	Category        pack.Category   `json:"category"`
	RepairHints     []string        `json:"repairHints,omitempty"`
}

// Report is a complete readiness evaluation for one trip.
type Report struct {
	TripID    string            `json:"tripId"`
	Status    Status            `json:"status"`
	Score     ScoreBreakdown    `json:"score"`
	Findings  []Finding         `json:"findings"`
	Risks     []Risk            `json:"risks"`
	Blockers  []Blocker         `json:"blockers"`
	Watchlist []Blocker         `json:"watchlist,omitempty"`
	Packs     []pack.PackResult `json:"packs"`
}

// Blocker looks up a blocker by id.
func (r Report) Blocker(id string) (Blocker, bool) {
	for _, b := range r.Blockers {
		if b.ID == id {
			return b, true
		}
	}
	return Blocker{}, false
}

func impactScope(days []int) string {
	if len(days) == 0 {
		return "entire trip"
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = fmt.Sprintf("%d", d)
	}
	if len(days) == 1 {
		return "day " + parts[0]
	}
	return "days " + strings.Join(parts, ", ")
}
