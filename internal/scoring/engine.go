package scoring

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/imaging"
)

// ErrUnscored is returned when ranking a candidate that has no score.
var ErrUnscored = errors.New("candidate has not been scored")

// Engine applies a registry to candidates.
type Engine struct {
	registry *Registry
}

// NewEngine returns an engine over reg.
func NewEngine(reg *Registry) *Engine {
	return &Engine{registry: reg}
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Evaluate sums the weight of every rule that fires. meta is nil for the
// declared phase. Hits are in registry order.
func (e *Engine) Evaluate(c candidate.Candidate, meta *imaging.Metadata) (int, []candidate.Hit) {
	facts := Facts{Candidate: c, Meta: meta}
	score := 0
	var hits []candidate.Hit
	for _, r := range e.registry.rules {
		if !r.Predicate(facts) {
			continue
		}
		score += r.Weight
		hits = append(hits, candidate.Hit{Rule: r.ID(), Weight: r.Weight})
	}
	return score, hits
}

// ScoreDeclared returns copies of cands with their declared score assigned.
// Candidates that already carry a score keep it.
func (e *Engine) ScoreDeclared(cands []candidate.Candidate) ([]candidate.Candidate, error) {
	out := make([]candidate.Candidate, len(cands))
	for i, c := range cands {
		if !c.Scored() {
			score, hits := e.Evaluate(c, nil)
			if err := c.SetScore(score, hits); err != nil {
				return nil, fmt.Errorf("declared score: %w", err)
			}
		}
		out[i] = c
	}
	return out, nil
}

// RankDeclared scores cands in the declared phase and ranks them.
func (e *Engine) RankDeclared(cands []candidate.Candidate) ([]candidate.Candidate, error) {
	scored, err := e.ScoreDeclared(cands)
	if err != nil {
		return nil, err
	}
	return Rank(scored)
}

// ScoreValidated computes the refined score once the payload is known. The
// candidate is not modified.
func (e *Engine) ScoreValidated(c candidate.Candidate, meta imaging.Metadata) (int, []candidate.Hit) {
	return e.Evaluate(c, &meta)
}

// Rank returns a sorted copy of cands: score descending, then SVG first, then
// more context tags, then the shorter URL, then URL order.
func Rank(cands []candidate.Candidate) ([]candidate.Candidate, error) {
	for _, c := range cands {
		if !c.Scored() {
			return nil, fmt.Errorf("%s: %w", c.URL, ErrUnscored)
		}
	}
	out := slices.Clone(cands)
	slices.SortStableFunc(out, Compare)
	return out, nil
}

// Compare orders two scored candidates for ranking.
func Compare(a, b candidate.Candidate) int {
	sa, _ := a.Score()
	sb, _ := b.Score()
	if sa != sb {
		return sb - sa
	}
	if av, bv := a.Format.IsVector(), b.Format.IsVector(); av != bv {
		if av {
			return -1
		}
		return 1
	}
	if na, nb := len(a.Tags()), len(b.Tags()); na != nb {
		return nb - na
	}
	if la, lb := len(a.URL), len(b.URL); la != lb {
		return la - lb
	}
	return strings.Compare(a.URL, b.URL)
}
