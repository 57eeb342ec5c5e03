package app

import (
	"math"
	"time"

	"mathchrono-quiz-service/internal/domain"
)

// ScoringRules holds the raw point constants.
type ScoringRules struct {
	CorrectPoints int
	FastBonus     int
	FastThreshold time.Duration
}

// DefaultScoringRules awards 3 points per correct answer plus 1 when answered within 5 seconds.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		CorrectPoints: 3,
		FastBonus:     1,
		FastThreshold: 5 * time.Second,
	}
}

func (r ScoringRules) maxPerQuestion() int {
	return r.CorrectPoints + r.FastBonus
}

// Score maps recorded answers onto a 0..100 score using DefaultScoringRules.
func Score(answers []domain.Answer, questions []domain.Question) int {
	return DefaultScoringRules().Score(answers, questions)
}

// Score is pure: answer i only counts against questions[i], and rounding
// happens once on the final percentage.
func (r ScoringRules) Score(answers []domain.Answer, questions []domain.Question) int {
	max := len(questions) * r.maxPerQuestion()
	if max <= 0 {
		return 0
	}

	raw := 0
	for i, ans := range answers {
		if i >= len(questions) {
			break
		}
		raw += r.points(ans, questions[i])
	}

	score := int(math.Round(float64(raw*100) / float64(max)))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (r ScoringRules) points(ans domain.Answer, q domain.Question) int {
	if ans.Value == nil || ans.QuestionID == "" || ans.QuestionID != q.ID {
		return 0
	}
	if *ans.Value != q.CorrectValue() {
		return 0
	}
	pts := r.CorrectPoints
	threshold := int(r.FastThreshold / time.Second)
	if ans.ElapsedSeconds >= 0 && ans.ElapsedSeconds <= threshold {
		pts += r.FastBonus
	}
	return pts
}
