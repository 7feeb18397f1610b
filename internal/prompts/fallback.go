package prompts

import (
	"context"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
)

// FallbackSource tries primary and falls back to secondary on any error,
// typically the embedded defaults.
type FallbackSource struct {
	primary   Source
	secondary Source
	logger    logging.Logger
}

// WithFallback returns primary guarded by secondary. A nil primary yields
// secondary unchanged.
func WithFallback(primary, secondary Source, logger logging.Logger) Source {
	if primary == nil {
		return secondary
	}
	return &FallbackSource{primary: primary, secondary: secondary, logger: logging.OrNop(logger)}
}

func (s *FallbackSource) GetTemplate(ctx context.Context, name, label string) (*Template, error) {
	tmpl, err := s.primary.GetTemplate(ctx, name, label)
	if err == nil {
		return tmpl, nil
	}
	s.logger.Warn("prompt %s@%s unavailable, using fallback: %v", name, normalizeLabel(label), err)
	return s.secondary.GetTemplate(ctx, name, label)
}
