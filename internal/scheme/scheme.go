// Package scheme defines the domain model shared by the retrieval pipeline:
// government/skill/education scheme records, user profiles, and the fixed
// education-level ordering used for eligibility checks.
package scheme

import (
	"fmt"
	"strings"
	"time"
)

// EducationLevel is a fixed, ordered enumeration of education attainment.
// The ordering is meaningful: a profile satisfies a scheme's minimum
// education requirement iff profile level >= scheme minimum.
type EducationLevel int

const (
	EducationNone EducationLevel = iota
	EducationBelow10th
	Education10thPass
	Education12thPass
	EducationUndergraduate
	EducationPostgraduate
)

var educationNames = map[EducationLevel]string{
	EducationNone:          "none",
	EducationBelow10th:     "below-10th",
	Education10thPass:      "10th-pass",
	Education12thPass:      "12th-pass",
	EducationUndergraduate: "undergraduate",
	EducationPostgraduate:  "postgraduate",
}

// String returns the canonical lowercase name of the level.
func (l EducationLevel) String() string {
	if name, ok := educationNames[l]; ok {
		return name
	}
	return fmt.Sprintf("education(%d)", int(l))
}

// ParseEducation maps a canonical level name to its EducationLevel.
// Matching is case-insensitive.
func ParseEducation(s string) (EducationLevel, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for level, name := range educationNames {
		if name == needle {
			return level, nil
		}
	}
	return EducationNone, fmt.Errorf("unknown education level %q", s)
}

// Scheme is a government/skill/education program record. Name, Description,
// Benefits, and SourceURL are always non-empty for stored schemes; nil
// eligibility bounds mean "no constraint".
type Scheme struct {
	ID              string
	Name            string
	Description     string
	Benefits        string
	EligibilityText string
	Category        string
	SourceURL       string

	AgeMin       *int
	AgeMax       *int
	MinEducation *EducationLevel

	// Embedding is L2-normalized; dimensionality is constant across all
	// stored schemes.
	Embedding []float32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the invariants required of a stored scheme.
func (s Scheme) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("scheme %s: name must not be empty", s.ID)
	case s.Description == "":
		return fmt.Errorf("scheme %s: description must not be empty", s.ID)
	case s.Benefits == "":
		return fmt.Errorf("scheme %s: benefits must not be empty", s.ID)
	case s.SourceURL == "":
		return fmt.Errorf("scheme %s: source URL must not be empty", s.ID)
	}
	if s.AgeMin != nil && s.AgeMax != nil && *s.AgeMin > *s.AgeMax {
		return fmt.Errorf("scheme %s: age-min %d exceeds age-max %d", s.ID, *s.AgeMin, *s.AgeMax)
	}
	return nil
}

// Eligible reports whether the profile passes the scheme's eligibility
// predicate: age within [AgeMin, AgeMax] (unset bounds unconstrained) and
// education >= MinEducation in the fixed ordering.
func (s Scheme) Eligible(p Profile) bool {
	if s.AgeMin != nil && p.Age < *s.AgeMin {
		return false
	}
	if s.AgeMax != nil && p.Age > *s.AgeMax {
		return false
	}
	if s.MinEducation != nil && p.Education < *s.MinEducation {
		return false
	}
	return true
}

// EmbeddingText returns the text that is embedded to represent the scheme in
// vector space. Kept deterministic so re-ingestion yields identical vectors
// for unchanged schemes.
func (s Scheme) EmbeddingText() string {
	parts := []string{s.Name, s.Description, s.Benefits}
	if s.EligibilityText != "" {
		parts = append(parts, s.EligibilityText)
	}
	if s.Category != "" {
		parts = append(parts, s.Category)
	}
	return strings.Join(parts, "\n")
}

// Profile is a read-only snapshot of a user profile. The core never mutates
// profiles; they are owned by the profile store.
type Profile struct {
	ID        string
	Language  string // BCP-47 tag, e.g. "hi", "en-IN"
	Age       int    // 1..120
	Education EducationLevel
}

// Validate checks the profile invariants.
func (p Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("profile: id must not be empty")
	}
	if p.Age < 1 || p.Age > 120 {
		return fmt.Errorf("profile %s: age %d out of range [1,120]", p.ID, p.Age)
	}
	return nil
}
