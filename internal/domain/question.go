package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Category is a fixed topical grouping used to balance quiz composition.
type Category string

const (
	CategoryAlgebra      Category = "Algebra"
	CategoryTrigonometry Category = "Trigonometry"
	CategoryProfitLoss   Category = "Profit & Loss"
)

// Categories lists every known category in their stable assembly order.
var Categories = []Category{CategoryAlgebra, CategoryTrigonometry, CategoryProfitLoss}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Difficulty is the tier of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// QuestionKind tags the question variant.
type QuestionKind string

const (
	KindMCQ  QuestionKind = "mcq"
	KindDrag QuestionKind = "drag"
	KindText QuestionKind = "text"
)

// HasOptions reports whether answers pick from an option list.
func (k QuestionKind) HasOptions() bool {
	return k == KindMCQ || k == KindDrag
}

// Language selects the prompt translation.
type Language string

const (
	LanguageEnglish Language = "english"
	LanguageMalay   Language = "malay"
)

// Prompt holds the question text per language.
type Prompt struct {
	EN string `json:"en" yaml:"en"`
	MS string `json:"ms" yaml:"ms"`
}

// For returns the prompt in lang, falling back to English.
func (p Prompt) For(lang Language) string {
	if lang == LanguageMalay && p.MS != "" {
		return p.MS
	}
	return p.EN
}

const (
	DefaultTimeRefSec = 60
	minChoiceOptions  = 2
)

// Question is a tagged variant over QuestionKind. Choice kinds carry Options and
// CorrectIndex; text questions carry CorrectText and no options.
type Question struct {
	ID           string       `json:"id" yaml:"id"`
	Kind         QuestionKind `json:"type" yaml:"type"`
	Prompt       Prompt       `json:"prompt" yaml:"prompt"`
	Options      []string     `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectIndex int          `json:"correctIndex" yaml:"correct_index"`
	CorrectText  string       `json:"correctText,omitempty" yaml:"correct_text,omitempty"`
	Category     Category     `json:"category" yaml:"category"`
	Difficulty   Difficulty   `json:"difficulty" yaml:"difficulty"`
	TimeRefSec   int          `json:"timeRefSec" yaml:"time_ref_sec"`
	Active       bool         `json:"active" yaml:"active"`
	Grade        string       `json:"grade,omitempty" yaml:"grade,omitempty"`
}

// NewQuestion fills defaults and validates q for its kind.
func NewQuestion(q Question) (Question, error) {
	if q.Kind == "" {
		q.Kind = KindMCQ
	}
	if q.Difficulty == "" {
		q.Difficulty = DifficultyMedium
	}
	if q.TimeRefSec == 0 {
		q.TimeRefSec = DefaultTimeRefSec
	}
	q.Grade = strings.TrimSpace(q.Grade)
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Validate enforces the per-variant invariants.
func (q Question) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(q.Prompt.EN) == "" {
		verr.Add("prompt.en", "required")
	}
	if !q.Category.Valid() {
		verr.Add("category", fmt.Sprintf("unknown category %q", q.Category))
	}
	if !q.Difficulty.Valid() {
		verr.Add("difficulty", fmt.Sprintf("unknown difficulty %q", q.Difficulty))
	}
	if q.TimeRefSec < 0 {
		verr.Add("timeRefSec", "must be >= 0")
	}

	switch q.Kind {
	case KindMCQ, KindDrag:
		if len(q.Options) < minChoiceOptions {
			verr.Add("options", "at least 2 options required")
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			verr.Add("correctIndex", "must index into options")
		}
	case KindText:
		if len(q.Options) > 0 {
			verr.Add("options", "text questions take no options")
		}
		if strings.TrimSpace(q.CorrectText) == "" {
			verr.Add("correctText", "required for text questions")
		}
	default:
		verr.Add("type", fmt.Sprintf("unknown question type %q", q.Kind))
	}
	return verr.OrNil()
}

// CorrectValue is the exact answer string that scores.
func (q Question) CorrectValue() string {
	if q.Kind.HasOptions() {
		if q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
			return q.Options[q.CorrectIndex]
		}
		return ""
	}
	return q.CorrectText
}

// OptionValue resolves an option index to its text.
func (q Question) OptionValue(index int) (string, error) {
	if !q.Kind.HasOptions() || index < 0 || index >= len(q.Options) {
		return "", &ValidationError{Fields: []FieldError{{Field: "optionIndex", Message: "out of range: " + strconv.Itoa(index)}}}
	}
	return q.Options[index], nil
}

// MatchesGrade reports whether q is offered to grade. Questions without a grade apply to all.
func (q Question) MatchesGrade(grade string) bool {
	return grade == "" || q.Grade == "" || q.Grade == grade
}

// PublicQuestion is what participants see: no correct-answer reference.
type PublicQuestion struct {
	ID         string       `json:"id"`
	Kind       QuestionKind `json:"type"`
	Text       string       `json:"question"`
	Options    []string     `json:"options,omitempty"`
	Category   Category     `json:"category"`
	Difficulty Difficulty   `json:"difficulty"`
	TimeRefSec int          `json:"timeRefSec"`
}

// Public strips the answer key and picks the prompt language.
func (q Question) Public(lang Language) PublicQuestion {
	return PublicQuestion{
		ID:         q.ID,
		Kind:       q.Kind,
		Text:       q.Prompt.For(lang),
		Options:    append([]string(nil), q.Options...),
		Category:   q.Category,
		Difficulty: q.Difficulty,
		TimeRefSec: q.TimeRefSec,
	}
}
