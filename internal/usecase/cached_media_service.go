package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/infrastructure/cache"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
	"github.com/hszk-dev/mediagate/internal/normalize"
)

// Cached operation names, used as key namespaces.
const (
	opSearch   = "search"
	opSlider   = "slider"
	opDetails  = "details"
	opTrack    = "track"
	opResolve  = "resolve"
	opStream   = "stream"
	opPlaylist = "playlist"
)

// CachedMediaServiceConfig holds configuration for the result cache.
type CachedMediaServiceConfig struct {
	// TTL is the lifetime of cached results.
	TTL time.Duration
	// HandleTTL is the lifetime of handles issued for cached resolve
	// results. It also caps how long a resolved upstream URL is cached.
	HandleTTL time.Duration
	// PublicBaseURL prefixes stream URLs of reissued handles.
	PublicBaseURL string
	// LoadTimeout bounds an upstream load shared by coalesced callers.
	// Zero means no bound beyond the extractor's own timeouts.
	LoadTimeout time.Duration
	// CacheType labels cache metrics (memory or redis).
	CacheType string
}

// DefaultCachedMediaServiceConfig returns the default configuration.
func DefaultCachedMediaServiceConfig() CachedMediaServiceConfig {
	return CachedMediaServiceConfig{
		TTL:           6 * time.Hour,
		HandleTTL:     30 * time.Minute,
		PublicBaseURL: "http://localhost:8080",
		LoadTimeout:   2 * time.Minute,
		CacheType:     metrics.CacheTypeMemory,
	}
}

// cachedMediaService wraps MediaService with a result cache.
// Formats are never cached because their direct URLs expire upstream.
type cachedMediaService struct {
	delegate MediaService
	store    cache.Store[[]byte]
	handles  HandleIssuer
	sfGroup  singleflight.Group

	ttl           time.Duration
	resolveTTL    time.Duration
	handleTTL     time.Duration
	publicBaseURL string
	loadTimeout   time.Duration
	cacheType     string
}

// NewCachedMediaService creates a MediaService that serves repeated
// queries from store.
func NewCachedMediaService(
	delegate MediaService,
	store cache.Store[[]byte],
	handles HandleIssuer,
	cfg CachedMediaServiceConfig,
) MediaService {
	handleTTL := cfg.HandleTTL
	if handleTTL <= 0 {
		handleTTL = 30 * time.Minute
	}
	resolveTTL := min(cfg.TTL, handleTTL)
	return &cachedMediaService{
		delegate:      delegate,
		store:         store,
		handles:       handles,
		ttl:           cfg.TTL,
		resolveTTL:    resolveTTL,
		handleTTL:     handleTTL,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		loadTimeout:   cfg.LoadTimeout,
		cacheType:     cfg.CacheType,
	}
}

func (s *cachedMediaService) Search(ctx context.Context, input SearchInput) ([]model.CandidateRecord, error) {
	key := cacheKey(opSearch, url.Values{
		"query":     {input.Query},
		"limit":     {strconv.Itoa(input.Limit)},
		"videoOnly": {strconv.FormatBool(input.VideoOnly)},
	})
	return cachedValue(ctx, s, key, s.ttl, func(ctx context.Context) ([]model.CandidateRecord, error) {
		return s.delegate.Search(ctx, input)
	})
}

func (s *cachedMediaService) Slider(ctx context.Context, input SliderInput) (*normalize.Response, error) {
	key := cacheKey(opSlider, url.Values{
		"query": {input.Query},
		"index": {strconv.Itoa(input.Index)},
	})
	return cachedValue(ctx, s, key, s.ttl, func(ctx context.Context) (*normalize.Response, error) {
		return s.delegate.Slider(ctx, input)
	})
}

func (s *cachedMediaService) Details(ctx context.Context, input MetadataInput) (*normalize.Response, error) {
	key := cacheKey(opDetails, metadataParams(input))
	return cachedValue(ctx, s, key, s.ttl, func(ctx context.Context) (*normalize.Response, error) {
		return s.delegate.Details(ctx, input)
	})
}

func (s *cachedMediaService) Track(ctx context.Context, input MetadataInput) (*normalize.Response, error) {
	key := cacheKey(opTrack, metadataParams(input))
	return cachedValue(ctx, s, key, s.ttl, func(ctx context.Context) (*normalize.Response, error) {
		return s.delegate.Track(ctx, input)
	})
}

func (s *cachedMediaService) Resolve(ctx context.Context, input ResolveInput) (*ResolveOutput, error) {
	key := cacheKey(opResolve, url.Values{
		"url":       {input.Link},
		"videoid":   {strconv.FormatBool(input.VideoID)},
		"wantVideo": {strconv.FormatBool(input.Video)},
	})
	return s.cachedResolve(ctx, key, func(ctx context.Context) (*ResolveOutput, error) {
		return s.delegate.Resolve(ctx, input)
	})
}

func (s *cachedMediaService) StreamQuery(ctx context.Context, input StreamQueryInput) (*ResolveOutput, error) {
	key := cacheKey(opStream, url.Values{
		"query": {input.Query},
		"video": {strconv.FormatBool(input.Video)},
	})
	return s.cachedResolve(ctx, key, func(ctx context.Context) (*ResolveOutput, error) {
		return s.delegate.StreamQuery(ctx, input)
	})
}

// Formats delegates without caching.
func (s *cachedMediaService) Formats(ctx context.Context, input MetadataInput) ([]model.FormatDescriptor, error) {
	return s.delegate.Formats(ctx, input)
}

func (s *cachedMediaService) Playlist(ctx context.Context, input PlaylistInput) ([]model.PlaylistEntry, error) {
	key := cacheKey(opPlaylist, url.Values{
		"url":     {input.Link},
		"videoid": {strconv.FormatBool(input.VideoID)},
		"limit":   {strconv.Itoa(input.Limit)},
	})
	return cachedValue(ctx, s, key, s.ttl, func(ctx context.Context) ([]model.PlaylistEntry, error) {
		return s.delegate.Playlist(ctx, input)
	})
}

// resolvedStream is the cached form of a resolve result. Handles are not
// cached: every caller gets a handle with a full lifetime.
type resolvedStream struct {
	Response  normalize.Response `json:"response"`
	TargetURL string             `json:"target_url"`

	// handleID is set only on the value returned by the load that issued it.
	handleID string
}

func (s *cachedMediaService) cachedResolve(
	ctx context.Context,
	key string,
	load func(context.Context) (*ResolveOutput, error),
) (*ResolveOutput, error) {
	valid := func(_ context.Context, e resolvedStream) bool { return e.TargetURL != "" }
	entry, shared, err := cachedCall(ctx, s, key, s.resolveTTL, valid, func(ctx context.Context) (resolvedStream, error) {
		out, err := load(ctx)
		if err != nil {
			return resolvedStream{}, err
		}
		return resolvedStream{Response: out.Response, TargetURL: out.TargetURL, handleID: out.HandleID}, nil
	})
	if err != nil {
		return nil, err
	}

	if entry.handleID != "" && !shared {
		return &ResolveOutput{Response: entry.Response, HandleID: entry.handleID, TargetURL: entry.TargetURL}, nil
	}

	handleID, err := s.handles.Issue(ctx, entry.TargetURL, s.handleTTL)
	if err != nil {
		return nil, fmt.Errorf("issue stream handle: %w", err)
	}
	streamURL := s.publicBaseURL + StreamPathPrefix + handleID
	resp := entry.Response
	resp.StreamURL = &streamURL
	return &ResolveOutput{Response: resp, HandleID: handleID, TargetURL: entry.TargetURL}, nil
}

func cachedValue[T any](
	ctx context.Context,
	s *cachedMediaService,
	key string,
	ttl time.Duration,
	load func(context.Context) (T, error),
) (T, error) {
	v, _, err := cachedCall(ctx, s, key, ttl, nil, load)
	return v, err
}

// cachedCall implements cache-aside with singleflight coalescing per key.
// valid, when set, rejects cached values that can no longer be served.
// The shared load runs detached from any single caller's cancellation;
// each caller stops waiting when its own ctx is done.
func cachedCall[T any](
	ctx context.Context,
	s *cachedMediaService,
	key string,
	ttl time.Duration,
	valid func(context.Context, T) bool,
	load func(context.Context) (T, error),
) (T, bool, error) {
	var zero T

	ch := s.sfGroup.DoChan(key, func() (any, error) {
		loadCtx := context.WithoutCancel(ctx)
		if s.loadTimeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, s.loadTimeout)
			defer cancel()
		}
		return getWithCache(loadCtx, s, key, ttl, valid, load)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}

	if res.Shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if res.Err != nil {
		return zero, res.Shared, res.Err
	}
	return res.Val.(T), res.Shared, nil
}

func getWithCache[T any](
	ctx context.Context,
	s *cachedMediaService,
	key string,
	ttl time.Duration,
	valid func(context.Context, T) bool,
	load func(context.Context) (T, error),
) (T, error) {
	raw, found, err := s.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, s.cacheType).Inc()
		slog.Warn("result cache get failed, falling back to upstream", "key", key, "error", err)
	case found:
		var cached T
		if err := json.Unmarshal(raw, &cached); err != nil {
			slog.Warn("discarding undecodable cached result", "key", key, "error", err)
		} else if valid == nil || valid(ctx, cached) {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, s.cacheType).Inc()
			return cached, nil
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, s.cacheType).Inc()
	default:
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, s.cacheType).Inc()
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		slog.Warn("failed to encode result for cache", "key", key, "error", err)
		return value, nil
	}
	if err := s.store.Set(ctx, key, encoded, ttl); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, s.cacheType).Inc()
		slog.Warn("failed to cache result", "key", key, "error", err)
		return value, nil
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, s.cacheType).Inc()

	return value, nil
}

// cacheKey canonicalizes every parameter that affects a result.
// url.Values.Encode sorts by key, so parameter order does not matter.
func cacheKey(op string, params url.Values) string {
	sum := sha256.Sum256([]byte(op + "?" + params.Encode()))
	return op + ":" + hex.EncodeToString(sum[:])
}

func metadataParams(input MetadataInput) url.Values {
	return url.Values{
		"url":     {input.Link},
		"videoid": {strconv.FormatBool(input.VideoID)},
	}
}
