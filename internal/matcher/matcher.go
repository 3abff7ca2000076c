package matcher

import (
	"context"
	"fmt"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/charmbracelet/log"

	"github.com/musikai/musikd/internal/services"
	"github.com/musikai/musikd/internal/shared"
)

const (
	// DefaultThreshold is the minimum combined score for a candidate to
	// count as a match.
	DefaultThreshold = 0.72

	// searchLimit is how many candidates each catalog query returns.
	searchLimit = 5

	// tieEpsilon: candidates whose scores differ by less than this are
	// considered tied and broken by popularity.
	tieEpsilon = 0.02

	titleWeight  = 0.7
	artistWeight = 0.3
)

// Searcher is the slice of the catalog the matcher needs.
type Searcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]services.Candidate, error)
}

// Outcome records the result of matching one source item. Exactly one of
// Matched/Track being set (true/non-nil) or neither holds; an Outcome is
// produced for every item even when no candidate clears the threshold.
type Outcome struct {
	Item    services.SourceItem
	Matched bool
	Track   *services.TrackRef
	Score   float64
}

// Matcher scores catalog search results against source item titles.
type Matcher struct {
	catalog   Searcher
	threshold float64
	metric    *metrics.JaroWinkler
	logger    *log.Logger
}

func New(catalog Searcher, threshold float64, logger *log.Logger) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Matcher{
		catalog:   catalog,
		threshold: threshold,
		metric:    metrics.NewJaroWinkler(),
		logger:    logger,
	}
}

// Match resolves a single source item against the catalog. Search failures
// propagate to the caller; a title that simply finds no good candidate
// yields an unmatched Outcome and a nil error.
func (m *Matcher) Match(ctx context.Context, item services.SourceItem) (Outcome, error) {
	outcome := Outcome{Item: item}

	cleaned := CleanTitle(item.Title)
	if cleaned == "" {
		return outcome, nil
	}

	artist, track, parsed := ParseArtistTrack(cleaned)

	queries := make([]string, 0, 3)
	if parsed {
		queries = append(queries,
			fmt.Sprintf("artist:%s track:%s", artist, track),
			track,
		)
	}
	queries = append(queries, cleaned)

	var (
		best      services.Candidate
		bestScore float64
		found     bool
	)

	for _, query := range queries {
		candidates, err := m.catalog.SearchTracks(ctx, query, searchLimit)
		if err != nil {
			return outcome, fmt.Errorf("search %q: %w", query, err)
		}

		for _, candidate := range candidates {
			score := m.score(cleaned, artist, track, parsed, candidate)

			switch {
			case !found || score > bestScore+tieEpsilon:
				best, bestScore, found = candidate, score, true
			case score > bestScore-tieEpsilon && candidate.Popularity > best.Popularity:
				best, bestScore = candidate, score
			}
		}

		// A staged query that already produced a confident hit means the
		// broader fallback queries would only add noise.
		if found && bestScore >= m.threshold {
			break
		}
	}

	if !found || bestScore < m.threshold {
		m.logger.Debug("no match", "title", item.Title, "best_score", bestScore)
		return outcome, nil
	}

	outcome.Matched = true
	outcome.Score = bestScore
	outcome.Track = &services.TrackRef{
		URI:        best.URI,
		Name:       best.Name,
		Artist:     best.Artist,
		Album:      best.Album,
		ImageURL:   best.ImageURL,
		PreviewURL: best.PreviewURL,
	}

	return outcome, nil
}

func (m *Matcher) score(cleaned, artist, track string, parsed bool, candidate services.Candidate) float64 {
	if parsed {
		titleSim := m.similarity(track, candidate.Name)
		artistSim := m.similarity(artist, candidate.Artist)
		return titleWeight*titleSim + artistWeight*artistSim
	}

	// Without a parsed artist the whole title may or may not embed the
	// artist name, so score it both ways and keep the better reading.
	direct := m.similarity(cleaned, candidate.Name)
	combined := m.similarity(cleaned, candidate.Artist+" "+candidate.Name)
	if combined > direct {
		return combined
	}

	return direct
}

func (m *Matcher) similarity(a, b string) float64 {
	na, nb := normalizeForScore(a), normalizeForScore(b)
	if na == "" || nb == "" {
		return 0
	}

	return strutil.Similarity(na, nb, m.metric)
}
