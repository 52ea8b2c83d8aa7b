package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/model"
	"github.com/venedict/inquest/internal/provider"
	"github.com/venedict/inquest/internal/worker"
)

// searchResult is the fan-in unit for one sub-query's search
type searchResult struct {
	sub     model.SubQuery
	sources []model.Source
	err     error
}

func (r *searchResult) GetError() error { return r.err }

type searchJob struct {
	p        *Pipeline
	sub      model.SubQuery
	perQuery int
}

// Execute searches one sub-query through the fallback chain and fetches
// content for its hits. Fetch failures degrade to snippet-only sources
// rather than losing the hit.
func (j *searchJob) Execute(ctx context.Context) worker.Result {
	res := &searchResult{sub: j.sub}

	var hits []model.SearchHit
	err := j.p.exec.Do(ctx, provider.CapabilitySearch, func(ctx context.Context, name string) error {
		found, err := j.p.gateway.Search(ctx, name, j.sub.Text, j.perQuery)
		if err != nil {
			return err
		}
		hits = found
		if j.p.searchCache != nil && name != j.p.searchCache.Name() {
			if err := j.p.searchCache.Store(j.sub.Text, found); err != nil {
				j.p.logger.Debug("search cache store failed", zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		res.err = err
		return res
	}

	for _, hit := range hits {
		src := j.p.sourceFromHit(ctx, hit, j.sub.ID)
		res.sources = append(res.sources, src)
	}
	return res
}

// sourceFromHit fetches page content for a hit, falling back to the
// search snippet when the page cannot be retrieved in time
func (p *Pipeline) sourceFromHit(ctx context.Context, hit model.SearchHit, subQueryID string) model.Source {
	src := model.Source{
		ID:          uuid.NewString(),
		URL:         hit.URL,
		Title:       hit.Title,
		Snippet:     hit.Snippet,
		Domain:      hostOf(hit.URL),
		RetrievedAt: time.Now().UTC(),
		SubQueryID:  subQueryID,
	}

	if err := p.limiter.Wait(ctx, hit.URL); err != nil {
		return src
	}
	page, err := p.fetcher.Fetch(ctx, hit.URL)
	if err != nil {
		p.logger.Debug("content fetch failed, keeping snippet",
			zap.String("url", hit.URL), zap.Error(err))
		return src
	}

	src.Content = page.Content
	if page.Title != "" {
		src.Title = page.Title
	}
	src.RetrievedAt = page.RetrievedAt
	src.PublishedAt = page.LastModified
	return src
}

// search fans out every sub-query concurrently, fans results back in at
// the stage deadline, dedupes by URL, and preserves sub-query priority
// order regardless of completion order.
func (p *Pipeline) search(ctx context.Context, sess *session) StageOutcome {
	sess.mu.Lock()
	subs := sess.query.SubQueries
	maxSources := sess.opts.MaxSources
	sess.mu.Unlock()

	if maxSources <= 0 {
		maxSources = p.cfg.Pipeline.MaxSources
	}
	perQuery := maxSources/len(subs) + 1

	pool := worker.NewPool(ctx, p.cfg.Concurrency.SearchWorkers)
	pool.Start()
	for _, sub := range subs {
		pool.Submit(&searchJob{p: p, sub: sub, perQuery: perQuery})
	}
	results := pool.Wait()

	completed := make(map[string]*searchResult, len(results))
	for _, r := range results {
		sr := r.(*searchResult)
		if sr.err == nil {
			completed[sr.sub.ID] = sr
		}
	}

	// Fan-in in declared priority order so concurrent completion order
	// never leaks into the output
	ordered := make([]model.SubQuery, len(subs))
	copy(ordered, subs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	var sources []model.Source
	var missing []model.MissingWork
	seen := make(map[string]bool)
	for _, sub := range ordered {
		sr, ok := completed[sub.ID]
		if !ok {
			if err := searchError(results, sub.ID); err != nil {
				p.logger.Warn("sub-query search failed",
					zap.String("query_id", sess.query.ID),
					zap.String("sub_query_id", sub.ID),
					zap.Error(err))
			}
			missing = append(missing, model.MissingWork{
				Stage:      string(StateSearching),
				SubQueryID: sub.ID,
				Reason:     failureReason(searchError(results, sub.ID)),
			})
			continue
		}
		sess.mu.Lock()
		sess.searched[sub.ID] = true
		sess.mu.Unlock()

		for _, src := range sr.sources {
			if seen[src.URL] || len(sources) >= maxSources {
				continue
			}
			seen[src.URL] = true
			sources = append(sources, src)
		}
	}

	for _, src := range sources {
		p.graph.RecordSource(src.ID, string(StateSearching))
	}

	sess.mu.Lock()
	sess.sources = sources
	sess.mu.Unlock()

	p.logger.Info("search stage collected sources",
		zap.String("query_id", sess.query.ID),
		zap.Int("sources", len(sources)),
		zap.Int("missing_sub_queries", len(missing)))

	switch {
	case len(missing) == 0:
		return Success()
	case len(sources) > 0:
		return Partial(missing...)
	default:
		out := Failed(fmt.Errorf("no sub-query produced sources"))
		out.Missing = missing
		return out
	}
}

// searchError finds the failure for a sub-query's fan-out slot; nil means
// the deadline cut the search short before it reported back
func searchError(results []worker.Result, subID string) error {
	for _, r := range results {
		sr := r.(*searchResult)
		if sr.sub.ID == subID && sr.err != nil {
			return sr.err
		}
	}
	return nil
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
