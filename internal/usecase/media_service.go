package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/infrastructure/tracing"
	"github.com/hszk-dev/mediagate/internal/normalize"
)

// StreamPathPrefix is the route prefix under which handles are relayed.
const StreamPathPrefix = "/v1/stream/"

// SearchInput contains the parameters of a catalog search.
type SearchInput struct {
	Query     string
	Limit     int
	VideoOnly bool
}

// SliderInput selects one hit of a search.
type SliderInput struct {
	Query string
	Index int
}

// MetadataInput identifies a media item by link or bare video ID.
type MetadataInput struct {
	Link    string
	VideoID bool
}

// ResolveInput requests a playable stream for a media item.
type ResolveInput struct {
	Link    string
	VideoID bool
	Video   bool
}

// StreamQueryInput resolves either a link or free text.
type StreamQueryInput struct {
	Query string
	Video bool
}

// PlaylistInput lists a playlist.
type PlaylistInput struct {
	Link    string
	VideoID bool
	Limit   int
}

// ResolveOutput is a normalized response whose stream_url points at a handle.
type ResolveOutput struct {
	Response normalize.Response
	HandleID string
	// TargetURL is the upstream URL the handle relays.
	TargetURL string
}

// MediaService defines the media gateway operations.
type MediaService interface {
	// Search returns candidates in upstream order.
	Search(ctx context.Context, input SearchInput) ([]model.CandidateRecord, error)

	// Slider returns the normalized Index-th hit of a search.
	Slider(ctx context.Context, input SliderInput) (*normalize.Response, error)

	// Details returns normalized metadata with the requested link.
	Details(ctx context.Context, input MetadataInput) (*normalize.Response, error)

	// Track returns normalized metadata with the upstream canonical link.
	Track(ctx context.Context, input MetadataInput) (*normalize.Response, error)

	// Resolve picks a playable format and issues a stream handle for it.
	Resolve(ctx context.Context, input ResolveInput) (*ResolveOutput, error)

	// StreamQuery resolves a link, or the first video hit for free text.
	StreamQuery(ctx context.Context, input StreamQueryInput) (*ResolveOutput, error)

	// Formats lists the non-DASH formats of a media item.
	Formats(ctx context.Context, input MetadataInput) ([]model.FormatDescriptor, error)

	// Playlist lists at most Limit entries of a playlist.
	Playlist(ctx context.Context, input PlaylistInput) ([]model.PlaylistEntry, error)
}

// HandleIssuer issues and looks up stream handles.
// *handle.Manager satisfies this interface.
type HandleIssuer interface {
	Issue(ctx context.Context, targetURL string, ttl time.Duration) (string, error)
	Lookup(ctx context.Context, handleID string) (*model.StreamHandle, error)
}

// MediaServiceConfig holds configuration for MediaService.
type MediaServiceConfig struct {
	// PublicBaseURL prefixes issued stream URLs, e.g. "https://api.example.com".
	PublicBaseURL string
	HandleTTL     time.Duration

	SearchDefaultLimit   int
	SearchMaxLimit       int
	SliderWindow         int
	PlaylistDefaultLimit int
	PlaylistMaxLimit     int
}

// DefaultMediaServiceConfig returns the default configuration.
func DefaultMediaServiceConfig() MediaServiceConfig {
	return MediaServiceConfig{
		PublicBaseURL:        "http://localhost:8080",
		HandleTTL:            30 * time.Minute,
		SearchDefaultLimit:   10,
		SearchMaxLimit:       50,
		SliderWindow:         10,
		PlaylistDefaultLimit: 100,
		PlaylistMaxLimit:     500,
	}
}

type mediaService struct {
	resolver repository.MediaResolver
	search   repository.SearchProvider
	handles  HandleIssuer
	tracer   trace.Tracer

	cfg MediaServiceConfig
}

// NewMediaService creates a new MediaService instance.
func NewMediaService(
	resolver repository.MediaResolver,
	search repository.SearchProvider,
	handles HandleIssuer,
	cfg MediaServiceConfig,
) MediaService {
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &mediaService{
		resolver: resolver,
		search:   search,
		handles:  handles,
		tracer:   tracing.Tracer("github.com/hszk-dev/mediagate/internal/usecase"),
		cfg:      cfg,
	}
}

func (s *mediaService) Search(ctx context.Context, input SearchInput) ([]model.CandidateRecord, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", repository.ErrInvalidInput)
	}
	limit := clampLimit(input.Limit, s.cfg.SearchDefaultLimit, s.cfg.SearchMaxLimit)

	ctx, span := s.tracer.Start(ctx, "media.search", trace.WithAttributes(
		attribute.Int("search.limit", limit),
		attribute.Bool("search.video_only", input.VideoOnly),
	))
	defer span.End()

	results, err := s.search.Search(ctx, query, limit)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	if !input.VideoOnly {
		return results, nil
	}
	videos := make([]model.CandidateRecord, 0, len(results))
	for _, r := range results {
		if r.IsVideo() {
			videos = append(videos, r)
		}
	}
	return videos, nil
}

func (s *mediaService) Slider(ctx context.Context, input SliderInput) (*normalize.Response, error) {
	results, err := s.Search(ctx, SearchInput{Query: input.Query, Limit: s.cfg.SliderWindow})
	if err != nil {
		return nil, err
	}
	if input.Index < 0 || input.Index >= len(results) {
		return nil, fmt.Errorf("%w: %d of %d results", repository.ErrInvalidIndex, input.Index, len(results))
	}

	resp := normalize.Normalize(normalize.FromCandidate(results[input.Index]))
	return &resp, nil
}

func (s *mediaService) Details(ctx context.Context, input MetadataInput) (*normalize.Response, error) {
	link, rec, err := s.resolveRecord(ctx, input.Link, input.VideoID)
	if err != nil {
		return nil, err
	}

	f := normalize.FromMedia(rec)
	f.Link = &link
	resp := normalize.Normalize(f)
	return &resp, nil
}

func (s *mediaService) Track(ctx context.Context, input MetadataInput) (*normalize.Response, error) {
	_, rec, err := s.resolveRecord(ctx, input.Link, input.VideoID)
	if err != nil {
		return nil, err
	}

	f := normalize.FromMedia(rec)
	if f.Link == nil {
		canonical := model.WatchURL(rec.ID)
		f.Link = &canonical
	}
	resp := normalize.Normalize(f)
	return &resp, nil
}

func (s *mediaService) Resolve(ctx context.Context, input ResolveInput) (*ResolveOutput, error) {
	kind := model.StreamKindAudio
	if input.Video {
		kind = model.StreamKindVideo
	}

	ctx, span := s.tracer.Start(ctx, "media.resolve", trace.WithAttributes(
		attribute.String("media.stream_type", kind.String()),
	))
	defer span.End()

	_, rec, err := s.resolveRecord(ctx, input.Link, input.VideoID)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	target, ok := rec.StreamURLFor(kind)
	if !ok {
		err := fmt.Errorf("%w: no %s stream for %s", repository.ErrNoPlayableFormat, kind, rec.ID)
		recordSpanError(span, err)
		return nil, err
	}

	handleID, err := s.handles.Issue(ctx, target, s.cfg.HandleTTL)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("issue stream handle: %w", err)
	}
	span.SetAttributes(attribute.String("media.id", rec.ID))

	f := normalize.FromMedia(rec).WithStream(s.StreamURL(handleID), kind)
	return &ResolveOutput{
		Response:  normalize.Normalize(f),
		HandleID:  handleID,
		TargetURL: target,
	}, nil
}

func (s *mediaService) StreamQuery(ctx context.Context, input StreamQueryInput) (*ResolveOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", repository.ErrInvalidInput)
	}

	link := query
	if !isLink(query) {
		results, err := s.Search(ctx, SearchInput{Query: query, Limit: s.cfg.SliderWindow, VideoOnly: true})
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("%w: no results for %q", repository.ErrNotFound, query)
		}
		link = results[0].Link
		if link == "" {
			link = model.WatchURL(results[0].ID)
		}
	}

	return s.Resolve(ctx, ResolveInput{Link: link, Video: input.Video})
}

func (s *mediaService) Formats(ctx context.Context, input MetadataInput) ([]model.FormatDescriptor, error) {
	link, err := canonicalize(input.Link, input.VideoID)
	if err != nil {
		return nil, err
	}

	formats, err := s.resolver.ListFormats(ctx, link)
	if err != nil {
		return nil, err
	}

	out := make([]model.FormatDescriptor, 0, len(formats))
	for _, f := range formats {
		if isDASH(f) {
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", repository.ErrNoPlayableFormat, link)
	}
	return out, nil
}

func (s *mediaService) Playlist(ctx context.Context, input PlaylistInput) ([]model.PlaylistEntry, error) {
	link := strings.TrimSpace(input.Link)
	if link == "" {
		return nil, fmt.Errorf("%w: url is required", repository.ErrInvalidInput)
	}
	if input.VideoID {
		link = model.PlaylistURL(link)
	}
	limit := clampLimit(input.Limit, s.cfg.PlaylistDefaultLimit, s.cfg.PlaylistMaxLimit)

	entries, err := s.resolver.Playlist(ctx, link, limit)
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// StreamURL returns the public URL relaying handleID.
func (s *mediaService) StreamURL(handleID string) string {
	return s.cfg.PublicBaseURL + StreamPathPrefix + handleID
}

func (s *mediaService) resolveRecord(ctx context.Context, input string, isID bool) (string, *model.MediaRecord, error) {
	link, err := canonicalize(input, isID)
	if err != nil {
		return "", nil, err
	}

	rec, err := s.resolver.Resolve(ctx, link)
	if err != nil {
		if isContractDrift(err) {
			slog.Error("extractor returned malformed record", "link", link, "error", err)
		}
		return "", nil, err
	}
	return link, rec, nil
}

func canonicalize(input string, isID bool) (string, error) {
	link := model.CanonicalLink(input, isID)
	if link == "" || (isID && strings.TrimSpace(input) == "") {
		return "", fmt.Errorf("%w: url is required", repository.ErrInvalidInput)
	}
	return link, nil
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		limit = def
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

func isLink(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// isDASH reports formats delivered as DASH manifests or segments, judged
// by protocol or format note regardless of codecs.
func isDASH(f model.FormatDescriptor) bool {
	return strings.Contains(strings.ToLower(f.Protocol), "dash") ||
		strings.Contains(strings.ToLower(f.FormatNote), "dash")
}

func isContractDrift(err error) bool {
	return errors.Is(err, repository.ErrMalformedUpstreamResponse)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
