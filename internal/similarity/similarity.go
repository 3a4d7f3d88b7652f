// Package similarity finds past case cards that resemble the current
// failure by shared error signatures and files.
package similarity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/models"
)

const (
	DefaultThreshold = 0.3
	DefaultLimit     = 3

	fileBoost         = 0.2
	maxVerifyCommands = 3
)

// CardSource lists stored case cards.
type CardSource interface {
	CaseCards(ctx context.Context) ([]models.CaseCard, error)
}

// Case is a stored card scored against the current failure.
type Case struct {
	CaseID          int64    `json:"case_id"`
	Title           string   `json:"title,omitempty"`
	Score           float64  `json:"match_score"`
	MatchingSignals []string `json:"matching_signals"`
	RootCause       string   `json:"root_cause,omitempty"`
	FixSummary      string   `json:"fix_summary,omitempty"`
	VerifyCommands  []string `json:"verify_commands"`
}

// Options tune Find. Zero values take the defaults.
type Options struct {
	Threshold float64
	Limit     int
}

// Find scores every card that shares at least one signal with sigs:
// overlap / max(set sizes), plus 0.2 per shared related file, capped at 1.
// Signals and files compare case-insensitively. Cards under the threshold
// are dropped; the rest are ranked by score, then card id.
func Find(ctx context.Context, src CardSource, sigs, files []string, opts Options) ([]Case, error) {
	if len(sigs) == 0 {
		return nil, nil
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	cards, err := src.CaseCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("load case cards: %w", err)
	}

	want := lowerSet(sigs)
	wantFiles := lowerSet(files)

	var out []Case
	for _, c := range cards {
		have := lowerSet(c.Signals)
		shared := intersect(want, have)
		if len(shared) == 0 {
			continue
		}
		score := float64(len(shared)) / float64(max(len(want), len(have)))
		if len(wantFiles) > 0 {
			if n := len(intersect(wantFiles, lowerSet(c.RelatedFiles))); n > 0 {
				score = min(1.0, score+fileBoost*float64(n))
			}
		}
		if score < opts.Threshold {
			continue
		}

		cmds := c.VerifyCommands
		if len(cmds) > maxVerifyCommands {
			cmds = cmds[:maxVerifyCommands]
		}
		out = append(out, Case{
			CaseID:          c.ID,
			Title:           c.Title,
			Score:           score,
			MatchingSignals: shared,
			RootCause:       c.RootCause,
			FixSummary:      c.FixSummary,
			VerifyCommands:  append([]string{}, cmds...),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CaseID < out[j].CaseID
	})
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Jaccard is |a ∩ b| / |a ∪ b| over lowercased entries; 0 when either side
// is empty.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	sa, sb := lowerSet(a), lowerSet(b)
	inter := len(intersect(sa, sb))
	union := len(sa)
	for k := range sb {
		if !sa[k] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func lowerSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, s := range list {
		set[strings.ToLower(s)] = true
	}
	return set
}

// intersect returns the shared keys, sorted.
func intersect(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
