package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sentimetry/pipeline/internal/metrics"
	"github.com/sentimetry/pipeline/internal/store"
	"github.com/sentimetry/pipeline/pkg/sentiment"
)

const retweetPrefix = "RT @"

type runCounts struct {
	raw       int64
	processed int64
	malformed int64
	filtered  int64
}

// processPartition reads the raw partition, collapses duplicates, drops
// malformed and filtered records, scores the rest, and swaps the processed
// partition in one transaction. A failed swap leaves the prior rows visible.
func (p *Pipeline) processPartition(ctx context.Context, date time.Time) (runCounts, error) {
	var counts runCounts

	raw, err := p.store.GetRawTweetsForDate(ctx, date)
	if err != nil {
		return counts, fmt.Errorf("failed to read raw partition: %w", err)
	}
	counts.raw = int64(len(raw))

	// The feed is at-least-once: keep the newest delivery per id. Exact
	// collected_at ties break on text so the winner never depends on the
	// engine's scan order.
	deduped := make(map[string]store.RawTweet, len(raw))
	order := make([]string, 0, len(raw))
	for _, r := range raw {
		if r.ID == "" {
			counts.malformed++
			continue
		}
		prev, seen := deduped[r.ID]
		if !seen {
			order = append(order, r.ID)
			deduped[r.ID] = r
			continue
		}
		if r.CollectedAt.After(prev.CollectedAt) ||
			(r.CollectedAt.Equal(prev.CollectedAt) && r.Text > prev.Text) {
			deduped[r.ID] = r
		}
	}

	processedAt := p.cfg.Clock.Now().UTC()
	processed := make([]store.ProcessedTweet, 0, len(order))
	for _, id := range order {
		r := deduped[id]
		if p.malformed(r, date) {
			counts.malformed++
			continue
		}
		if filter := p.filtered(r); filter != "" {
			metrics.TweetsFilteredTotal.WithLabelValues(filter).Inc()
			counts.filtered++
			continue
		}

		score := p.classify(r.Text)
		processed = append(processed, store.ProcessedTweet{
			RawTweet:       r,
			ProcessedAt:    processedAt,
			TweetHour:      r.CreatedAt.UTC().Hour(),
			Polarity:       score.Polarity,
			Subjectivity:   score.Subjectivity,
			SentimentLabel: string(score.Label),
			Confidence:     score.Confidence,
		})
	}
	counts.processed = int64(len(processed))

	if err := p.store.ReplaceProcessedTweets(ctx, date, processed); err != nil {
		return counts, fmt.Errorf("failed to replace processed partition: %w", err)
	}

	metrics.TweetsProcessedTotal.Add(float64(counts.processed))
	metrics.TweetsMalformedTotal.Add(float64(counts.malformed))
	return counts, nil
}

// malformed reports whether a record is unprocessable: no creation time,
// text the classifier cannot read, or a creation date that disagrees with
// the partition by more than the collection-lag allowance.
func (p *Pipeline) malformed(r store.RawTweet, date time.Time) bool {
	if r.CreatedAt.IsZero() {
		p.log.Debug("pipeline: malformed record, zero created_at", "id", r.ID)
		return true
	}
	if !utf8.ValidString(r.Text) {
		p.log.Debug("pipeline: malformed record, invalid encoding", "id", r.ID)
		return true
	}
	day := r.CreatedAt.UTC().Truncate(24 * time.Hour)
	if drift := day.Sub(date).Abs(); drift > p.cfg.DateLagAllowance {
		p.log.Debug("pipeline: malformed record, date drift",
			"id", r.ID, "created", day.Format(time.DateOnly), "partition", date.Format(time.DateOnly))
		return true
	}
	return false
}

// filtered returns the name of the feed filter that excludes the record, or
// "" to keep it. Filters are off by default so raw and processed stay 1:1.
func (p *Pipeline) filtered(r store.RawTweet) string {
	if len(p.cfg.Languages) > 0 && !slices.Contains(p.cfg.Languages, r.Lang) {
		return "lang"
	}
	if p.cfg.SkipRetweets && strings.HasPrefix(r.Text, retweetPrefix) {
		return "retweet"
	}
	return ""
}

// classify scores text through the memo cache. Tweets repeat heavily across
// redeliveries and retweets, so the cache carries most of a reprocess.
func (p *Pipeline) classify(text string) sentiment.Score {
	if val, ok := p.scores.Get(text); ok {
		metrics.ClassifierCacheOutcomes.WithLabelValues("hit").Inc()
		return val.(sentiment.Score)
	}
	metrics.ClassifierCacheOutcomes.WithLabelValues("miss").Inc()

	score := p.classifier.Analyze(text)
	p.scores.Set(text, score, 1)
	return score
}
