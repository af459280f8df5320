package models

import (
	"fmt"
	"sort"
	"time"

	appErrors "github.com/noah-isme/university-records-api/pkg/errors"
)

// GradeBand maps the half-open score range [Min, next band's Min) to a letter
// and grade-point value. Bands are kept sorted by descending Min.
type GradeBand struct {
	Min    float64 `json:"min"`
	Letter string  `json:"letter"`
	Points float64 `json:"points"`
}

// GradeScale converts a numeric score into a letter grade and grade points.
// Classification is pure: a fixed scale always maps the same score to the
// same band.
type GradeScale struct {
	ID           string      `db:"id" json:"id"`
	Name         string      `db:"name" json:"name"`
	MaxScore     float64     `db:"max_score" json:"max_score"`
	PassingGrade float64     `db:"passing_grade" json:"passing_grade"`
	Bands        []GradeBand `db:"-" json:"bands"`
	CreatedBy    *string     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

// Validate checks the band table covers [0, MaxScore] with no gaps or
// overlaps and that thresholds are strictly descending.
func (s *GradeScale) Validate() error {
	if s.MaxScore <= 0 {
		return fmt.Errorf("max score must be positive")
	}
	if s.PassingGrade < 0 || s.PassingGrade > s.MaxScore {
		return fmt.Errorf("passing grade must lie within [0, %g]", s.MaxScore)
	}
	if len(s.Bands) == 0 {
		return fmt.Errorf("scale requires at least one band")
	}
	bands := make([]GradeBand, len(s.Bands))
	copy(bands, s.Bands)
	sort.Slice(bands, func(i, j int) bool { return bands[i].Min > bands[j].Min })
	for i, band := range bands {
		if band.Min < 0 || band.Min > s.MaxScore {
			return fmt.Errorf("band %q threshold %g outside [0, %g]", band.Letter, band.Min, s.MaxScore)
		}
		if i > 0 && band.Min == bands[i-1].Min {
			return fmt.Errorf("duplicate band threshold %g", band.Min)
		}
		if band.Letter == "" {
			return fmt.Errorf("band at threshold %g missing letter", band.Min)
		}
	}
	if bands[len(bands)-1].Min != 0 {
		return fmt.Errorf("lowest band must start at 0 to cover the full score domain")
	}
	return nil
}

// Classify returns the letter and grade points for the score. The matching
// band is the one with the greatest lower bound not exceeding the score.
func (s *GradeScale) Classify(score float64) (string, float64, error) {
	if score < 0 || score > s.MaxScore {
		return "", 0, appErrors.Clone(appErrors.ErrScoreOutOfRange,
			fmt.Sprintf("score %g outside [0, %g]", score, s.MaxScore))
	}
	best := -1
	for i, band := range s.Bands {
		if band.Min > score {
			continue
		}
		if best == -1 || band.Min > s.Bands[best].Min {
			best = i
		}
	}
	if best == -1 {
		return "", 0, appErrors.Clone(appErrors.ErrScoreOutOfRange,
			fmt.Sprintf("no band covers score %g", score))
	}
	return s.Bands[best].Letter, s.Bands[best].Points, nil
}

// IsPassing reports whether the score meets the passing threshold.
func (s *GradeScale) IsPassing(score float64) bool {
	return score >= s.PassingGrade
}

// Built-in default scale names selectable via configuration.
const (
	ScalePercentage = "percentage"
	ScaleCredit     = "credit"
)

// PercentageScale is the 90/80/70/60 letter table with whole-point grades.
func PercentageScale() *GradeScale {
	return &GradeScale{
		Name:         ScalePercentage,
		MaxScore:     100,
		PassingGrade: 60,
		Bands: []GradeBand{
			{Min: 90, Letter: "A", Points: 4.0},
			{Min: 80, Letter: "B", Points: 3.0},
			{Min: 70, Letter: "C", Points: 2.0},
			{Min: 60, Letter: "D", Points: 1.0},
			{Min: 0, Letter: "F", Points: 0.0},
		},
	}
}

// CreditScale is the 80/70/60/55/50/45/40 table with plus-grades in halves.
func CreditScale() *GradeScale {
	return &GradeScale{
		Name:         ScaleCredit,
		MaxScore:     100,
		PassingGrade: 40,
		Bands: []GradeBand{
			{Min: 80, Letter: "A", Points: 4.0},
			{Min: 70, Letter: "B+", Points: 3.5},
			{Min: 60, Letter: "B", Points: 3.0},
			{Min: 55, Letter: "C+", Points: 2.5},
			{Min: 50, Letter: "C", Points: 2.0},
			{Min: 45, Letter: "D+", Points: 1.5},
			{Min: 40, Letter: "D", Points: 1.0},
			{Min: 0, Letter: "F", Points: 0.0},
		},
	}
}
