package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentageScaleClassify(t *testing.T) {
	scale := PercentageScale()
	require.NoError(t, scale.Validate())

	cases := []struct {
		score  float64
		letter string
		points float64
	}{
		{100, "A", 4.0},
		{90, "A", 4.0},
		{89.99, "B", 3.0},
		{80, "B", 3.0},
		{70, "C", 2.0},
		{60, "D", 1.0},
		{59.99, "F", 0.0},
		{0, "F", 0.0},
	}
	for _, tc := range cases {
		letter, points, err := scale.Classify(tc.score)
		require.NoError(t, err)
		assert.Equal(t, tc.letter, letter, "score %g", tc.score)
		assert.Equal(t, tc.points, points, "score %g", tc.score)
	}
}

func TestCreditScaleClassify(t *testing.T) {
	scale := CreditScale()
	require.NoError(t, scale.Validate())

	cases := []struct {
		score  float64
		letter string
		points float64
	}{
		{95, "A", 4.0},
		{80, "A", 4.0},
		{79.5, "B+", 3.5},
		{70, "B+", 3.5},
		{60, "B", 3.0},
		{55, "C+", 2.5},
		{50, "C", 2.0},
		{45, "D+", 1.5},
		{40, "D", 1.0},
		{39.99, "F", 0.0},
	}
	for _, tc := range cases {
		letter, points, err := scale.Classify(tc.score)
		require.NoError(t, err)
		assert.Equal(t, tc.letter, letter, "score %g", tc.score)
		assert.Equal(t, tc.points, points, "score %g", tc.score)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	scale := PercentageScale()
	first, _, err := scale.Classify(72.5)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		letter, _, err := scale.Classify(72.5)
		require.NoError(t, err)
		assert.Equal(t, first, letter)
	}
}

func TestClassifyCoversWholeDomain(t *testing.T) {
	for _, scale := range []*GradeScale{PercentageScale(), CreditScale()} {
		for score := 0.0; score <= scale.MaxScore; score += 0.5 {
			letter, _, err := scale.Classify(score)
			require.NoError(t, err, "scale %s score %g", scale.Name, score)
			require.NotEmpty(t, letter)
		}
	}
}

func TestClassifyRejectsOutOfRange(t *testing.T) {
	scale := PercentageScale()
	_, _, err := scale.Classify(-0.01)
	assert.Error(t, err)
	_, _, err = scale.Classify(100.01)
	assert.Error(t, err)
}

func TestGradeScaleValidate(t *testing.T) {
	t.Run("rejects duplicate thresholds", func(t *testing.T) {
		scale := &GradeScale{
			Name:     "dup",
			MaxScore: 100,
			Bands: []GradeBand{
				{Min: 50, Letter: "P", Points: 1},
				{Min: 50, Letter: "Q", Points: 2},
				{Min: 0, Letter: "F", Points: 0},
			},
		}
		assert.Error(t, scale.Validate())
	})

	t.Run("rejects uncovered low scores", func(t *testing.T) {
		scale := &GradeScale{
			Name:     "gap",
			MaxScore: 100,
			Bands:    []GradeBand{{Min: 10, Letter: "P", Points: 1}},
		}
		assert.Error(t, scale.Validate())
	})

	t.Run("rejects passing grade above max", func(t *testing.T) {
		scale := PercentageScale()
		scale.PassingGrade = 120
		assert.Error(t, scale.Validate())
	})

	t.Run("rejects non positive max score", func(t *testing.T) {
		scale := PercentageScale()
		scale.MaxScore = 0
		assert.Error(t, scale.Validate())
	})
}

func TestIsPassing(t *testing.T) {
	percentage := PercentageScale()
	assert.True(t, percentage.IsPassing(60))
	assert.False(t, percentage.IsPassing(59.99))

	credit := CreditScale()
	assert.True(t, credit.IsPassing(40))
	assert.False(t, credit.IsPassing(39.99))
}
