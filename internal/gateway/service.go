package gateway

import (
	"context"
	"log/slog"

	"github.com/ipvlabs/vendord/internal/traces"
)

// Service fronts the provider clients with the transcript cache.
type Service struct {
	transcription *Client
	description   *Client
	cache         *Cache
	logger        *slog.Logger
}

// NewService creates a new gateway service.
func NewService(transcription, description *Client, cache *Cache, logger *slog.Logger) *Service {
	return &Service{
		transcription: transcription,
		description:   description,
		cache:         cache,
		logger:        logger,
	}
}

// Transcript returns the transcript for a URL, serving from cache when
// fresh. Cached responses are marked and never hit the provider.
func (s *Service) Transcript(ctx context.Context, req TranscriptRequest) (*TranscriptResult, error) {
	ctx, span := traces.StartSpan(ctx, "gateway.transcript", traces.Provider(s.transcription.name))
	defer span.End()

	if cached, ok := s.cache.Get(req.URL); ok {
		s.logger.Debug("transcript cache hit", "url", req.URL)
		return cached, nil
	}

	result, err := s.transcription.Transcript(ctx, req)
	if err != nil {
		return nil, err
	}

	s.cache.Put(req.URL, *result)
	return result, nil
}

// Describe generates a description via the AI provider. Descriptions are
// prompt-dependent and never cached.
func (s *Service) Describe(ctx context.Context, req DescribeRequest) (*DescribeResult, error) {
	ctx, span := traces.StartSpan(ctx, "gateway.describe", traces.Provider(s.description.name))
	defer span.End()

	return s.description.Describe(ctx, req)
}
