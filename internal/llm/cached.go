package llm

import (
	"context"
	"errors"
	"time"

	"github.com/spherical/image-ocr/internal/cache"
	"github.com/spherical/image-ocr/internal/domain"
	"github.com/spherical/image-ocr/internal/observability"
)

// CachedRecognizer serves repeated requests from a cache. Only successful
// recognitions are stored, and cache faults fall through to the service.
// A hit never reaches the service, so no raw response is saved for it even
// when debug.save_api_responses is on.
type CachedRecognizer struct {
	next     domain.Recognizer
	cache    cache.Client
	provider string
	ttl      time.Duration
	logger   *observability.Logger
}

// NewCachedRecognizer wraps next with c. Entries are scoped to provider.
func NewCachedRecognizer(next domain.Recognizer, c cache.Client, provider string, ttl time.Duration, logger *observability.Logger) *CachedRecognizer {
	if logger == nil {
		logger = observability.Nop()
	}
	return &CachedRecognizer{
		next:     next,
		cache:    c,
		provider: provider,
		ttl:      ttl,
		logger:   logger.WithOperation("cache"),
	}
}

// Recognize returns a cached result for identical provider, model, prompt
// and image, or calls the wrapped recognizer.
func (r *CachedRecognizer) Recognize(ctx context.Context, req domain.RecognitionRequest) (string, error) {
	key := cache.Key([]byte(r.provider), []byte(req.Model), []byte(req.Prompt), req.Image)

	cached, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		r.logger.Debug().Str("source", req.SourceName).Msg("Cache hit")
		return string(cached), nil
	case !errors.Is(err, cache.ErrCacheMiss):
		r.logger.Warn().Err(err).Msg("Cache lookup failed")
	}

	text, err := r.next.Recognize(ctx, req)
	if err != nil {
		return "", err
	}

	if err := r.cache.Set(ctx, key, []byte(text), r.ttl); err != nil {
		r.logger.Warn().Err(err).Msg("Cache store failed")
	}
	return text, nil
}
