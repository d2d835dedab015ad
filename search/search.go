// Package search ranks library records against a free-text query with
// optional filters. Scoring favors title hits over body hits and boosts
// recently modified documents.
package search

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bbalet/stopwords"
	"golang.org/x/sync/errgroup"

	"github.com/abiiranathan/doclib/library"
	"github.com/abiiranathan/doclib/store"
)

const (
	titleWeight   = 10.0
	bodyWeight    = 1.0
	recencyBoost  = 1.2
	recencyWindow = 7 * 24 * time.Hour

	scoreWorkers = 8
	excerptLines = 2
)

// ErrSuperseded is returned when a newer query was issued while this one was
// still executing. The superseded results are never published.
var ErrSuperseded = errors.New("search: superseded by a newer query")

// Result pairs a record with its relevance score and a matched excerpt from
// the document body, when the body matched.
type Result struct {
	Record  library.Record
	Score   float64
	Excerpt string
}

// Engine scans the library's in-memory metadata and, when a store is
// attached, the document bodies. It remembers the last query and the active
// filter set so filters can be added or removed without repeating the query.
type Engine struct {
	lib *library.Library

	// loader fetches a record's body text; nil disables body matching.
	// Defaults to the store's self-healing Load.
	loader func(path string) ([]byte, error)

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	lastQuery string
	filters   []Filter
}

// NewEngine builds a search engine over lib. contentStore may be nil, in
// which case only metadata is searched.
func NewEngine(lib *library.Library, contentStore *store.Store) *Engine {
	e := &Engine{lib: lib}
	if contentStore != nil {
		e.loader = contentStore.Load
	}
	return e
}

// Tokenize splits a query into lowercase terms, dropping stopwords. Queries
// consisting entirely of stopwords fall back to plain whitespace splitting so
// they still search literally.
func Tokenize(query string) []string {
	cleaned := stopwords.CleanString(strings.ToLower(query), "en", false)
	terms := strings.Fields(cleaned)
	if len(terms) == 0 {
		terms = strings.Fields(strings.ToLower(query))
	}
	return terms
}

// Search ranks all records against query, then applies filters as an
// AND-reduction over the candidate set. Issuing a new search cancels any
// in-flight one; the older call returns ErrSuperseded so stale results can
// never overwrite fresher ones.
func (e *Engine) Search(ctx context.Context, query string, filters ...Filter) ([]Result, error) {
	e.mu.Lock()
	e.gen++
	mine := e.gen
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.lastQuery = query
	e.filters = slices.Clone(filters)
	e.mu.Unlock()

	results, err := e.run(ctx, query, filters)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ErrSuperseded
		}
		return nil, err
	}

	e.mu.Lock()
	latest := e.gen == mine
	e.mu.Unlock()
	if !latest {
		return nil, ErrSuperseded
	}
	return results, nil
}

// AddFilter re-runs the last query with filter appended to the active set.
// Filtering always starts from the unfiltered candidate set, so removing a
// filter later correctly widens the results again.
func (e *Engine) AddFilter(ctx context.Context, filter Filter) ([]Result, error) {
	e.mu.Lock()
	query := e.lastQuery
	filters := append(slices.Clone(e.filters), filter)
	e.mu.Unlock()
	return e.Search(ctx, query, filters...)
}

// RemoveFilter re-runs the last query with the named filter dropped from the
// active set.
func (e *Engine) RemoveFilter(ctx context.Context, name string) ([]Result, error) {
	e.mu.Lock()
	query := e.lastQuery
	filters := slices.DeleteFunc(slices.Clone(e.filters), func(f Filter) bool {
		return f.Name == name
	})
	e.mu.Unlock()
	return e.Search(ctx, query, filters...)
}

// Refresh re-runs the last query with the current filter set, e.g. after the
// collection changed.
func (e *Engine) Refresh(ctx context.Context) ([]Result, error) {
	e.mu.Lock()
	query := e.lastQuery
	filters := slices.Clone(e.filters)
	e.mu.Unlock()
	return e.Search(ctx, query, filters...)
}

func (e *Engine) run(ctx context.Context, query string, filters []Filter) ([]Result, error) {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	records := e.lib.Snapshot()

	var (
		mu         sync.Mutex
		candidates []Result
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreWorkers)

	for i := range records {
		rec := records[i]
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var body string
			if e.loader != nil && rec.FilePath != "" {
				if content, err := e.loader(rec.FilePath); err == nil {
					body = strings.ToLower(string(content))
				}
			}

			result, ok := scoreRecord(rec, body, terms)
			if !ok {
				return nil
			}

			mu.Lock()
			candidates = append(candidates, result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := candidates[:0]
	for _, result := range candidates {
		if matchesAll(result.Record, filters) {
			results = append(results, result)
		}
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		// Ties go to the more recently modified record.
		return b.Record.DateModified.Compare(a.Record.DateModified)
	})
	return slices.Clip(results), nil
}

// scoreRecord sums per-term scores across fields. A record is a candidate if
// any term hits its title, tags, content-type label or body.
func scoreRecord(rec library.Record, lowerBody string, terms []string) (Result, bool) {
	title := strings.ToLower(rec.Title)
	label := rec.ContentType()

	score := 0.0
	matched := false

	for _, term := range terms {
		if strings.Contains(title, term) {
			score += titleWeight
			matched = true
		}
		for _, tag := range rec.Tags {
			if strings.Contains(tag, term) {
				matched = true
				break
			}
		}
		if label != "" && label == term {
			matched = true
		}
		if lowerBody != "" {
			if n := strings.Count(lowerBody, term); n > 0 {
				score += bodyWeight * float64(n)
				matched = true
			}
		}
	}
	if !matched {
		return Result{}, false
	}

	if time.Since(rec.DateModified) <= recencyWindow {
		score *= recencyBoost
	}

	return Result{
		Record:  rec,
		Score:   score,
		Excerpt: excerpt(lowerBody, terms),
	}, true
}

// excerpt returns the first body line containing a term, with a couple of
// surrounding lines for context.
func excerpt(lowerBody string, terms []string) string {
	if lowerBody == "" {
		return ""
	}

	lines := strings.Split(lowerBody, "\n")
	for i, line := range lines {
		for _, term := range terms {
			if strings.Contains(line, term) {
				start := max(0, i-excerptLines)
				end := min(len(lines), i+excerptLines+1)
				return strings.TrimSpace(strings.Join(lines[start:end], " "))
			}
		}
	}
	return ""
}
