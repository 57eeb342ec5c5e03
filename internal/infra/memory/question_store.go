package memory

import (
	"context"
	"sort"
	"sync"

	"mathchrono-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// QuestionStore is an in-memory question bank implementing app.QuestionRepository.
type QuestionStore struct {
	mu        sync.RWMutex
	questions map[string]domain.Question
	order     []string
}

func NewQuestionStore() *QuestionStore {
	return &QuestionStore{questions: make(map[string]domain.Question)}
}

func (s *QuestionStore) ListActiveQuestions(_ context.Context, category domain.Category, grade string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0)
	for _, id := range s.order {
		q := s.questions[id]
		if q.Active && q.Category == category && q.MatchesGrade(grade) {
			out = append(out, cloneQuestion(q))
		}
	}
	return out, nil
}

func (s *QuestionStore) ListQuestions(_ context.Context) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneQuestion(s.questions[id]))
	}
	return out, nil
}

func (s *QuestionStore) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return cloneQuestion(q), nil
}

// CreateQuestion stores q, assigning an ID when empty. An existing ID is overwritten
// so seed files can be re-applied.
func (s *QuestionStore) CreateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; !ok {
		s.order = append(s.order, q.ID)
	}
	s.questions[q.ID] = cloneQuestion(q)
	return cloneQuestion(q), nil
}

func (s *QuestionStore) UpdateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	s.questions[q.ID] = cloneQuestion(q)
	return cloneQuestion(q), nil
}

func (s *QuestionStore) DeleteQuestion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(s.questions, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *QuestionStore) CountByCategory(_ context.Context) (map[domain.Category]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.Category]int, len(domain.Categories))
	for _, q := range s.questions {
		out[q.Category]++
	}
	return out, nil
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}

// ResultStore keeps one result per participant.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]domain.Result
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]domain.Result)}
}

func (s *ResultStore) UpsertResult(_ context.Context, r domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.ParticipantID] = r
	return nil
}

func (s *ResultStore) ListResults(_ context.Context, grade string) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Result, 0, len(s.results))
	for _, r := range s.results {
		if grade == "" || r.Grade == grade {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}
