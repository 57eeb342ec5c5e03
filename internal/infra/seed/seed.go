package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"mathchrono-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// File is the on-disk seed layout.
type File struct {
	Questions []domain.Question `yaml:"questions"`
}

// QuestionWriter is the store side seeding writes through.
type QuestionWriter interface {
	CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
}

// LoadFile reads and validates questions from a YAML file.
func LoadFile(path string) ([]domain.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a seed document. Every question gets defaults applied and is
// validated; all problems are reported together with their index.
func Decode(r io.Reader) ([]domain.Question, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	out := make([]domain.Question, 0, len(file.Questions))
	var errs []error
	seen := make(map[string]bool, len(file.Questions))
	for i, raw := range file.Questions {
		q, err := domain.NewQuestion(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("question %d (%s): %w", i, raw.ID, err))
			continue
		}
		if q.ID != "" {
			if seen[q.ID] {
				errs = append(errs, fmt.Errorf("question %d: duplicate id %q", i, q.ID))
				continue
			}
			seen[q.ID] = true
		}
		out = append(out, q)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply writes questions through w. Questions with IDs overwrite earlier copies,
// so applying the same file twice leaves one copy of each.
func Apply(ctx context.Context, w QuestionWriter, questions []domain.Question) (int, error) {
	for i, q := range questions {
		if _, err := w.CreateQuestion(ctx, q); err != nil {
			return i, fmt.Errorf("seed question %s: %w", q.ID, err)
		}
	}
	return len(questions), nil
}
