package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/raitonoberu/ytsearch"
)

// searchPageFunc fetches one page of video results for query.
type searchPageFunc func(query string) (*ytsearch.SearchResult, error)

// YTSearchProvider implements SearchProvider by scraping the search page.
type YTSearchProvider struct {
	fetch searchPageFunc
}

var _ repository.SearchProvider = (*YTSearchProvider)(nil)

// NewYTSearchProvider creates a search provider backed by ytsearch.
func NewYTSearchProvider() *YTSearchProvider {
	return &YTSearchProvider{
		fetch: func(query string) (*ytsearch.SearchResult, error) {
			return ytsearch.VideoSearch(query).Next()
		},
	}
}

// Search returns up to limit video hits from the first result page.
// The scraper does not accept a context, so ctx is only checked around the call.
func (p *YTSearchProvider) Search(ctx context.Context, query string, limit int) ([]model.CandidateRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", repository.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := p.fetch(query)
	if err != nil {
		return nil, fmt.Errorf("%w: search %q: %v", repository.ErrUpstreamUnavailable, query, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("%w: empty search page", repository.ErrMalformedUpstreamResponse)
	}

	results := make([]model.CandidateRecord, 0, min(len(page.Videos), max(limit, 0)))
	for _, v := range page.Videos {
		if len(results) >= limit {
			break
		}
		if v == nil || v.ID == "" {
			continue
		}

		c := model.CandidateRecord{
			ID:    v.ID,
			Title: v.Title,
			Link:  model.WatchURL(v.ID),
			Type:  model.ItemTypeVideo,
		}
		if v.Duration > 0 {
			text := formatClock(v.Duration)
			c.DurationText = &text
		}
		if v.Channel.Title != "" {
			ch := v.Channel.Title
			c.Channel = &ch
		}
		if len(v.Thumbnails) > 0 {
			u := v.Thumbnails[0].URL
			c.ThumbnailURL = &u
		}
		results = append(results, c)
	}

	return results, nil
}
