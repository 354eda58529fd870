package pitwall

import "github.com/pitwall-ai/pitwall/internal/eventbus"

// WithEventBus sets the event bus component.
func WithEventBus(bus eventbus.Bus) Option {
	return func(p *Pitwall) {
		p.bus = bus
	}
}
