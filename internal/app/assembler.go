package app

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"mathchrono-quiz-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DefaultQuizSize is the question count used when callers pass zero.
const DefaultQuizSize = 30

// MaxQuizSize is the largest question count callers may request by default.
const MaxQuizSize = 200

// QuestionStore is the read side the Assembler draws from.
type QuestionStore interface {
	// ListActiveQuestions returns active questions in category offered to grade ("" = any grade).
	ListActiveQuestions(ctx context.Context, category domain.Category, grade string) ([]domain.Question, error)
}

// CategoryWeight is one entry of the target distribution.
type CategoryWeight struct {
	Category domain.Category
	Weight   float64
}

// Distribution is the static per-category target share, in assembly order.
type Distribution []CategoryWeight

// DefaultDistribution is 30% Algebra, 40% Trigonometry, 30% Profit & Loss.
func DefaultDistribution() Distribution {
	return Distribution{
		{Category: domain.CategoryAlgebra, Weight: 0.3},
		{Category: domain.CategoryTrigonometry, Weight: 0.4},
		{Category: domain.CategoryProfitLoss, Weight: 0.3},
	}
}

// Validate checks categories are known and unique and weights sum to 1.
func (d Distribution) Validate() error {
	if len(d) == 0 {
		return fmt.Errorf("distribution is empty")
	}
	seen := make(map[domain.Category]bool, len(d))
	sum := 0.0
	for _, cw := range d {
		if !cw.Category.Valid() {
			return fmt.Errorf("unknown category %q", cw.Category)
		}
		if seen[cw.Category] {
			return fmt.Errorf("duplicate category %q", cw.Category)
		}
		if cw.Weight < 0 {
			return fmt.Errorf("negative weight for %q", cw.Category)
		}
		seen[cw.Category] = true
		sum += cw.Weight
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("weights sum to %.4f, want 1.0", sum)
	}
	return nil
}

// Targets returns round(total*weight) per category. Where rounding overshoots
// total, the most over-rounded categories give up one question each until the
// sum fits.
func (d Distribution) Targets(total int) []int {
	targets := make([]int, len(d))
	exact := make([]float64, len(d))
	sum := 0
	for i, cw := range d {
		exact[i] = float64(total) * cw.Weight
		targets[i] = int(math.Round(exact[i]))
		sum += targets[i]
	}
	for sum > total {
		pick := -1
		for i := range targets {
			if targets[i] == 0 {
				continue
			}
			if pick == -1 || float64(targets[i])-exact[i] >= float64(targets[pick])-exact[pick] {
				pick = i
			}
		}
		if pick == -1 {
			break
		}
		targets[pick]--
		sum--
	}
	return targets
}

// Assembler draws a category-weighted random sample of active questions.
type Assembler struct {
	store QuestionStore
	dist  Distribution

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewAssembler(store QuestionStore, dist Distribution) *Assembler {
	return NewAssemblerWithRand(store, dist, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewAssemblerWithRand is used by tests for reproducible draws.
func NewAssemblerWithRand(store QuestionStore, dist Distribution, rnd *rand.Rand) *Assembler {
	if len(dist) == 0 {
		dist = DefaultDistribution()
	}
	return &Assembler{store: store, dist: dist, rnd: rnd}
}

// Distribution returns the configured target distribution.
func (a *Assembler) Distribution() Distribution {
	return append(Distribution(nil), a.dist...)
}

// Assemble returns at most total questions, concatenated per category in
// distribution order. A short category contributes what it has; store errors
// are returned as-is without retrying.
func (a *Assembler) Assemble(ctx context.Context, total int, grade string) ([]domain.Question, error) {
	if total <= 0 {
		total = DefaultQuizSize
	}
	targets := a.dist.Targets(total)

	pools := make([][]domain.Question, len(a.dist))
	g, gctx := errgroup.WithContext(ctx)
	for i, cw := range a.dist {
		if targets[i] == 0 {
			continue
		}
		i, category := i, cw.Category
		g.Go(func() error {
			qs, err := a.store.ListActiveQuestions(gctx, category, grade)
			if err != nil {
				return fmt.Errorf("list %s questions: %w", category, err)
			}
			pools[i] = eligible(qs, category, grade)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Sizes are bounded by what the store returned, never by the request.
	sizes := make([]int, len(a.dist))
	n := 0
	for i := range a.dist {
		sizes[i] = min(targets[i], len(pools[i]))
		n += sizes[i]
	}

	out := make([]domain.Question, 0, n)
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.dist {
		out = append(out, a.sampleLocked(pools[i], sizes[i])...)
	}
	return out, nil
}

// sampleLocked is a partial Fisher-Yates shuffle over a copy of pool.
func (a *Assembler) sampleLocked(pool []domain.Question, size int) []domain.Question {
	if size <= 0 {
		return nil
	}
	work := append([]domain.Question(nil), pool...)
	for i := 0; i < size; i++ {
		j := i + a.rnd.Intn(len(work)-i)
		work[i], work[j] = work[j], work[i]
	}
	return work[:size]
}

func eligible(qs []domain.Question, category domain.Category, grade string) []domain.Question {
	out := qs[:0:0]
	for _, q := range qs {
		if q.Active && q.Category == category && q.MatchesGrade(grade) {
			out = append(out, q)
		}
	}
	return out
}
