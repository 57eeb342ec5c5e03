package app_test

import (
	"fmt"
	"testing"

	"mathchrono-quiz-service/internal/app"
	"mathchrono-quiz-service/internal/domain"
)

func TestScoreScenarios(t *testing.T) {
	questions := buildQuestions(30)

	cases := []struct {
		name    string
		correct int
		elapsed int
		want    int
	}{
		{"perfect fast run", 30, 3, 100},
		{"perfect slow run", 30, 12, 75},
		{"half correct none fast", 15, 12, 38},
		{"boundary five seconds is fast", 30, 5, 100},
		{"nothing correct", 0, 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			answers := make([]domain.Answer, 0, len(questions))
			for i, q := range questions {
				value := "wrong"
				if i < tc.correct {
					value = q.CorrectValue()
				}
				answers = append(answers, answerFor(q, value, tc.elapsed))
			}
			if got := app.Score(answers, questions); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestScoreIgnoresMismatchedPositions(t *testing.T) {
	questions := buildQuestions(4)
	answers := []domain.Answer{
		answerFor(questions[1], questions[1].CorrectValue(), 1), // answered out of order
		{QuestionID: questions[1].ID, Value: nil, ElapsedSeconds: 1},
		answerFor(questions[2], questions[2].CorrectValue(), 9),
	}
	// only position 2 counts: 3 raw of 16
	if got := app.Score(answers, questions); got != 19 {
		t.Fatalf("expected 19, got %d", got)
	}
}

func TestScoreBoundsAndDeterminism(t *testing.T) {
	questions := buildQuestions(7)
	for correct := 0; correct <= len(questions); correct++ {
		answers := make([]domain.Answer, 0, correct)
		for i := 0; i < correct; i++ {
			answers = append(answers, answerFor(questions[i], questions[i].CorrectValue(), i))
		}
		first := app.Score(answers, questions)
		if first < 0 || first > 100 {
			t.Fatalf("score out of bounds: %d", first)
		}
		if again := app.Score(answers, questions); again != first {
			t.Fatalf("score not deterministic: %d vs %d", first, again)
		}
	}
	if got := app.Score(nil, nil); got != 0 {
		t.Fatalf("expected 0 for empty quiz, got %d", got)
	}
}

func TestScoreTextQuestionsMatchExactly(t *testing.T) {
	q := domain.Question{ID: "t1", Kind: domain.KindText, CorrectText: "42"}
	answers := []domain.Answer{answerFor(q, " 42", 1)}
	if got := app.Score(answers, []domain.Question{q}); got != 0 {
		t.Fatalf("expected whitespace to break exact match, got %d", got)
	}
	answers = []domain.Answer{answerFor(q, "42", 6)}
	if got := app.Score(answers, []domain.Question{q}); got != 75 {
		t.Fatalf("expected 75, got %d", got)
	}
}

func answerFor(q domain.Question, value string, elapsed int) domain.Answer {
	v := value
	return domain.Answer{QuestionID: q.ID, Value: &v, ElapsedSeconds: elapsed}
}

func buildQuestions(n int) []domain.Question {
	out := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Question{
			ID:           fmt.Sprintf("q%d", i+1),
			Kind:         domain.KindMCQ,
			Prompt:       domain.Prompt{EN: fmt.Sprintf("question %d", i+1)},
			Options:      []string{"a", "b", "c"},
			CorrectIndex: i % 3,
			Category:     domain.Categories[i%len(domain.Categories)],
			Difficulty:   domain.DifficultyMedium,
			TimeRefSec:   60,
			Active:       true,
		})
	}
	return out
}
