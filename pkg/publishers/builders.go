package publishers

import (
	"context"
	"fmt"
)

// Builder creates a Publisher from a validated config entry.
type Builder func(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error)

// Builders maps publisher types to their constructors.
type Builders map[string]Builder

// DefaultBuilders knows every type a publishers file may name.
func DefaultBuilders() Builders {
	return Builders{
		TypeHTTP:   newHTTPPublisher,
		TypeSQS:    newSQSPublisher,
		TypeSNS:    newSNSPublisher,
		TypePubSub: newPubSubPublisher,
	}
}

// Build validates cfg and instantiates its publisher.
func (b Builders) Build(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	build, ok := b[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for type %q", cfg.Type)
	}
	pub, err := build(ctx, cfg, orNop(log))
	if err != nil {
		return nil, fmt.Errorf("build %s publisher %q: %w", cfg.Type, cfg.ID, err)
	}
	return pub, nil
}

// BuildFanout builds every config into one Fanout. On error, publishers
// already built are closed.
func (b Builders) BuildFanout(ctx context.Context, cfgs []PublisherConfig, log Logger) (*Fanout, error) {
	pubs := make([]Publisher, 0, len(cfgs))
	for _, cfg := range cfgs {
		pub, err := b.Build(ctx, cfg, log)
		if err != nil {
			_ = NewFanout(pubs).Close()
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return NewFanout(pubs), nil
}
