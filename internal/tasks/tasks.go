// Package tasks orchestrates the playlist conversion pipeline: enumerate a
// source playlist, match its items against the catalog concurrently, and
// create or extend catalog playlists from the results.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/musikai/musikd/internal/matcher"
	"github.com/musikai/musikd/internal/services"
	"github.com/musikai/musikd/internal/shared"
)

const (
	defaultWorkers = 4
	maxWorkers     = 8

	// maxSeeds bounds how many tracks are hydrated into LLM seed context.
	maxSeeds = 10

	// playlistSeedLimit applies when seeding from a full playlist instead
	// of an explicit URI list.
	playlistSeedLimit = 20

	defaultMaxRecommendations = 15
)

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	Threshold          float64
	Workers            int
	RateLimit          float64
	MaxRecommendations int
}

// Engine ties the enumerator, matcher and recommender together.
type Engine struct {
	enumerator  services.SourceEnumerator
	recommender services.Recommender
	opts        Options
	logger      *log.Logger
}

func NewEngine(enumerator services.SourceEnumerator, recommender services.Recommender, opts Options, logger *log.Logger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Workers > maxWorkers {
		opts.Workers = maxWorkers
	}
	if opts.MaxRecommendations <= 0 {
		opts.MaxRecommendations = defaultMaxRecommendations
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Engine{
		enumerator:  enumerator,
		recommender: recommender,
		opts:        opts,
		logger:      logger,
	}
}

// MatchSummary aggregates per-item outcomes in source order.
type MatchSummary struct {
	TotalItems   int
	MatchedURIs  []string
	FailedTitles []string
}

// MatchTracks enumerates the source playlist and matches every item
// against the catalog. Items are processed concurrently but the summary
// preserves source order.
//
// On a fatal catalog error the partial summary built so far is returned
// alongside the error.
func (e *Engine) MatchTracks(ctx context.Context, catalog matcher.Searcher, playlistID string) (MatchSummary, error) {
	items, err := e.enumerator.PlaylistItems(ctx, playlistID)
	if err != nil {
		return MatchSummary{}, fmt.Errorf("failed to enumerate playlist: %w", err)
	}

	summary := MatchSummary{TotalItems: len(items)}
	if len(items) == 0 {
		return summary, nil
	}

	outcomes, err := e.matchAll(ctx, catalog, items)
	aggregate(&summary, outcomes)

	if err != nil {
		return summary, err
	}

	e.logger.Info("matching complete",
		"total", summary.TotalItems,
		"matched", len(summary.MatchedURIs),
		"failed", len(summary.FailedTitles))

	return summary, nil
}

// matchAll runs the worker pool. The outcome slice is indexed by item
// position so results stay deterministic regardless of completion order;
// attempted marks which slots hold real outcomes when a fatal error aborts
// the run early.
func (e *Engine) matchAll(ctx context.Context, catalog matcher.Searcher, items []services.SourceItem) ([]matcher.Outcome, error) {
	m := matcher.New(catalog, e.opts.Threshold, e.logger)

	var limiter *rate.Limiter
	if e.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.opts.RateLimit), 1)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	outcomes := make([]matcher.Outcome, len(items))
	attempted := make([]bool, len(items))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for w := 0; w < e.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						fail(err)
						return
					}
				}

				outcome, err := m.Match(ctx, items[i])
				if err != nil {
					if fatalMatchError(err) {
						fail(err)
						return
					}
					// Per-item search failures count against this item
					// only; the rest of the batch keeps going.
					e.logger.Warn("search failed, item left unmatched",
						"title", items[i].Title, "error", err)
					outcome = matcher.Outcome{Item: items[i]}
				}

				outcomes[i] = outcome
				attempted[i] = true
			}
		}()
	}

dispatch:
	for i := range items {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}

	// Compact to attempted outcomes only so the aggregate never counts
	// zero-valued slots from an aborted run.
	kept := outcomes[:0]
	for i, outcome := range outcomes {
		if attempted[i] {
			kept = append(kept, outcome)
		}
	}

	return kept, firstErr
}

// fatalMatchError reports whether a search failure should abort the whole
// batch. Catalog outages, rate limiting and lost authentication affect every
// remaining item; anything else degrades to an unmatched outcome.
func fatalMatchError(err error) bool {
	return errors.Is(err, shared.ErrCatalogUnavailable) ||
		errors.Is(err, shared.ErrRateLimited) ||
		errors.Is(err, shared.ErrNotAuthenticated) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func aggregate(summary *MatchSummary, outcomes []matcher.Outcome) {
	for _, outcome := range outcomes {
		if outcome.Matched && outcome.Track != nil {
			summary.MatchedURIs = append(summary.MatchedURIs, outcome.Track.URI)
		} else {
			summary.FailedTitles = append(summary.FailedTitles, outcome.Item.Title)
		}
	}
}

// RecommendationSet is the deduplicated result of a recommendation pass.
type RecommendationSet struct {
	Tracks []services.TrackRef
}

// Recommend suggests catalog tracks similar to the given seed URIs. Seeds
// are hydrated through the catalog; suggestions already present in the
// seed set are dropped, as are suggestions the catalog cannot resolve.
func (e *Engine) Recommend(ctx context.Context, catalog services.Catalog, uris []string) (RecommendationSet, error) {
	if len(uris) == 0 {
		return RecommendationSet{}, fmt.Errorf("%w: no seed tracks provided", shared.ErrInsufficientSeed)
	}

	seen := make(map[string]bool, len(uris))
	for _, uri := range uris {
		if id := services.TrackIDFromURI(uri); id != "" {
			seen[id] = true
		}
	}

	seeds := make([]services.SeedTrack, 0, maxSeeds)
	for _, uri := range uris {
		if len(seeds) >= maxSeeds {
			break
		}

		id := services.TrackIDFromURI(uri)
		if id == "" {
			continue
		}

		candidate, err := catalog.Track(ctx, id)
		if err != nil {
			e.logger.Warn("failed to hydrate seed track", "id", id, "error", err)
			continue
		}

		seeds = append(seeds, services.SeedTrack{Name: candidate.Name, Artist: candidate.Artist})
	}

	if len(seeds) == 0 {
		return RecommendationSet{}, fmt.Errorf("%w: no seed tracks could be resolved", shared.ErrInsufficientSeed)
	}

	return e.resolveSuggestions(ctx, catalog, seeds, seen)
}

// RecommendForPlaylist seeds recommendations from an existing catalog
// playlist's contents.
func (e *Engine) RecommendForPlaylist(ctx context.Context, catalog services.Catalog, playlistID string) (RecommendationSet, error) {
	tracks, err := catalog.PlaylistTracks(ctx, playlistID)
	if err != nil {
		return RecommendationSet{}, err
	}

	if len(tracks) == 0 {
		return RecommendationSet{}, fmt.Errorf("%w: playlist has no tracks", shared.ErrInsufficientSeed)
	}

	seen := make(map[string]bool, len(tracks))
	seeds := make([]services.SeedTrack, 0, playlistSeedLimit)
	for _, track := range tracks {
		if id := services.TrackIDFromURI(track.URI); id != "" {
			seen[id] = true
		}
		if len(seeds) < playlistSeedLimit {
			seeds = append(seeds, services.SeedTrack{Name: track.Name, Artist: track.Artist})
		}
	}

	return e.resolveSuggestions(ctx, catalog, seeds, seen)
}

func (e *Engine) resolveSuggestions(ctx context.Context, catalog services.Catalog, seeds []services.SeedTrack, seen map[string]bool) (RecommendationSet, error) {
	suggestions, err := e.recommender.Suggest(ctx, seeds, e.opts.MaxRecommendations*2)
	if err != nil {
		return RecommendationSet{}, err
	}

	var set RecommendationSet
	for _, suggestion := range suggestions {
		if len(set.Tracks) >= e.opts.MaxRecommendations {
			break
		}
		if ctx.Err() != nil {
			return RecommendationSet{}, ctx.Err()
		}

		query := fmt.Sprintf("track:%s artist:%s", suggestion.Name, suggestion.Artist)
		candidates, err := catalog.SearchTracks(ctx, query, 1)
		if err != nil {
			e.logger.Warn("failed to resolve suggestion", "name", suggestion.Name, "error", err)
			continue
		}
		if len(candidates) == 0 {
			continue
		}

		candidate := candidates[0]
		if seen[candidate.ID] {
			continue
		}
		seen[candidate.ID] = true

		set.Tracks = append(set.Tracks, services.TrackRef{
			URI:        candidate.URI,
			Name:       candidate.Name,
			Artist:     candidate.Artist,
			Album:      candidate.Album,
			ImageURL:   candidate.ImageURL,
			PreviewURL: candidate.PreviewURL,
		})
	}

	// The recommender answered but nothing survived catalog resolution:
	// that is a lookup miss, not a backend outage.
	if len(set.Tracks) == 0 {
		return RecommendationSet{}, fmt.Errorf("%w: no recommendations found in catalog", shared.ErrNotFound)
	}

	return set, nil
}

// ConversionResult reports a completed playlist creation.
type ConversionResult struct {
	PlaylistID  string
	PlaylistURL string
	TracksAdded int
}

// CreatePlaylist creates a playlist for the user and fills it with the
// given tracks. An empty track set still creates the (empty) playlist.
func (e *Engine) CreatePlaylist(ctx context.Context, catalog services.Catalog, userID, name string, uris []string) (ConversionResult, error) {
	if name == "" {
		return ConversionResult{}, fmt.Errorf("%w: playlist name required", shared.ErrInvalidInput)
	}

	created, err := catalog.CreatePlaylist(ctx, userID, name)
	if err != nil {
		return ConversionResult{}, fmt.Errorf("failed to create playlist: %w", err)
	}

	if len(uris) > 0 {
		if err := catalog.AddTracks(ctx, created.ID, uris); err != nil {
			return ConversionResult{}, fmt.Errorf("failed to add tracks: %w", err)
		}
	}

	return ConversionResult{
		PlaylistID:  created.ID,
		PlaylistURL: created.URL,
		TracksAdded: len(uris),
	}, nil
}

// AddTracks appends tracks to an existing playlist and returns how many
// were sent.
func (e *Engine) AddTracks(ctx context.Context, catalog services.Catalog, playlistID string, uris []string) (int, error) {
	if playlistID == "" {
		return 0, fmt.Errorf("%w: playlist id required", shared.ErrInvalidInput)
	}
	if len(uris) == 0 {
		return 0, nil
	}

	if err := catalog.AddTracks(ctx, playlistID, uris); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to add tracks: %w", err)
	}

	return len(uris), nil
}
