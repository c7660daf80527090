package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"chain-sentry/internal/knowledge"
)

// ErrInvalidTarget is returned when the assessment target fails validation.
var ErrInvalidTarget = errors.New("invalid assessment target")

const defaultSourceTimeout = 30 * time.Second

// Engine aggregates verdicts from multiple sources into a single
// consensus verdict. Sources are queried concurrently; a failed source
// contributes a fallback medium verdict and marks the result degraded.
type Engine struct {
	sources       []Source
	kb            *knowledge.Base
	sourceTimeout time.Duration
	logger        *slog.Logger
}

// NewEngine creates a consensus engine over the given sources.
func NewEngine(sources []Source, kb *knowledge.Base, sourceTimeout time.Duration, logger *slog.Logger) *Engine {
	if sourceTimeout <= 0 {
		sourceTimeout = defaultSourceTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sources:       sources,
		kb:            kb,
		sourceTimeout: sourceTimeout,
		logger:        logger,
	}
}

// Assess queries all sources about the target and folds their verdicts
// into one. It returns an error only for invalid input; source failures
// degrade the verdict instead of failing the assessment.
func (e *Engine) Assess(ctx context.Context, targetType TargetType, targetID string) (*Verdict, error) {
	if !targetType.Valid() {
		return nil, fmt.Errorf("%w: unknown target type %q", ErrInvalidTarget, targetType)
	}
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, fmt.Errorf("%w: empty target id", ErrInvalidTarget)
	}

	kbContext := e.kb.Build(string(targetType), targetID)

	if len(e.sources) == 0 {
		e.logger.Warn("no verdict sources configured", "target_type", targetType, "target_id", targetID)
		return &Verdict{
			TargetType: targetType,
			TargetID:   targetID,
			Overall:    LevelMedium,
			Findings:   []Finding{},
			Summary:    "No assessment sources available; defaulting to medium risk.",
			Degraded:   true,
			ProducedAt: time.Now().UTC(),
			Metadata: map[string]any{
				"source_count":   0,
				"context_length": len(kbContext),
			},
		}, nil
	}

	raws, failures := e.queryAll(ctx, targetType, targetID, kbContext)

	verdict := &Verdict{
		TargetType: targetType,
		TargetID:   targetID,
		Overall:    consensusLevel(raws),
		Findings:   e.mergeFindings(raws),
		Degraded:   failures > 0,
		ProducedAt: time.Now().UTC(),
		Metadata: map[string]any{
			"source_count":   len(e.sources),
			"context_length": len(kbContext),
		},
	}
	verdict.Summary = e.summarize(raws, verdict)
	return verdict, nil
}

// queryAll fans out to every source with a per-source timeout. Results
// keep source order; failed slots are replaced with fallback verdicts.
func (e *Engine) queryAll(ctx context.Context, targetType TargetType, targetID, kbContext string) ([]sourceVerdict, int) {
	results := make([]sourceVerdict, len(e.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range e.sources {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, e.sourceTimeout)
			defer cancel()

			raw, err := src.Query(qctx, targetType, targetID, kbContext)
			if err != nil || raw == nil {
				if err != nil {
					e.logger.Warn("verdict source failed",
						"source", src.Name(),
						"target_id", targetID,
						"error", err)
				}
				results[i] = sourceVerdict{source: src.Name(), raw: fallbackVerdict(), failed: true}
				return nil
			}
			results[i] = sourceVerdict{source: src.Name(), raw: raw}
			return nil
		})
	}
	// Goroutines never return an error; failures become fallbacks.
	_ = g.Wait()

	failures := 0
	for _, r := range results {
		if r.failed {
			failures++
		}
	}
	return results, failures
}

type sourceVerdict struct {
	source string
	raw    *RawVerdict
	failed bool
}

func fallbackVerdict() *RawVerdict {
	return &RawVerdict{
		OverallLevel: string(LevelMedium),
		Findings:     nil,
		Summary:      "Assessment unavailable or unparseable.",
	}
}

// consensusLevel tallies each source's overall level and walks from
// critical down, picking the first level backed by at least two votes,
// or by any vote when fewer than three sources reported.
func consensusLevel(raws []sourceVerdict) Level {
	tally := make(map[Level]int, 4)
	for _, r := range raws {
		tally[ParseLevel(r.raw.OverallLevel)]++
	}

	total := len(raws)
	for _, level := range []Level{LevelCritical, LevelHigh, LevelMedium, LevelLow} {
		votes := tally[level]
		if votes >= 2 || (votes > 0 && total < 3) {
			return level
		}
	}
	return LevelLow
}

// mergeFindings flattens, normalizes, and deduplicates findings from
// all sources, then orders them by severity and confidence.
func (e *Engine) mergeFindings(raws []sourceVerdict) []Finding {
	merged := make([]Finding, 0)

	for _, r := range raws {
		for _, rf := range r.raw.Findings {
			f := Finding{
				Category:       ParseCategory(rf.Category),
				Level:          ParseLevel(rf.Level),
				Title:          strings.TrimSpace(rf.Title),
				Description:    strings.TrimSpace(rf.Description),
				Recommendation: strings.TrimSpace(rf.Recommendation),
				Confidence:     clampConfidence(rf.Confidence),
				Sources:        []string{r.source},
			}
			if f.Title == "" && f.Description == "" {
				continue
			}

			idx := -1
			for i := range merged {
				if merged[i].duplicateOf(&f) {
					idx = i
					break
				}
			}
			if idx == -1 {
				merged = append(merged, f)
				continue
			}

			// Duplicate: keep the highest-confidence copy, union sources.
			if f.Confidence > merged[idx].Confidence {
				f.Sources = merged[idx].Sources
				merged[idx] = f
			}
			if !containsString(merged[idx].Sources, r.source) {
				merged[idx].Sources = append(merged[idx].Sources, r.source)
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Level.Rank() != merged[j].Level.Rank() {
			return merged[i].Level.Rank() > merged[j].Level.Rank()
		}
		return merged[i].Confidence > merged[j].Confidence
	})
	return merged
}

// summarize prefers the first non-fallback source summary, falling back
// to a templated sentence.
func (e *Engine) summarize(raws []sourceVerdict, v *Verdict) string {
	for _, r := range raws {
		if !r.failed && strings.TrimSpace(r.raw.Summary) != "" {
			return strings.TrimSpace(r.raw.Summary)
		}
	}
	return fmt.Sprintf("Consensus of %d source assessments identified %d findings with overall %s risk.",
		len(raws), len(v.Findings), v.Overall)
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
