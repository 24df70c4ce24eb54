package bus

import (
	"github.com/rs/zerolog/log"

	"github.com/normanking/switchboard/internal/dispatch"
)

// DispatchBridge publishes dispatcher activity on a bus.
type DispatchBridge struct {
	bus *Bus
}

var _ dispatch.Observer = (*DispatchBridge)(nil)

// NewDispatchBridge returns a dispatch.Observer that forwards to b.
func NewDispatchBridge(b *Bus) *DispatchBridge {
	return &DispatchBridge{bus: b}
}

func (d *DispatchBridge) ObserveDispatch(res dispatch.Result) {
	d.publish(ResultEvent(res))
}

func (d *DispatchBridge) ObserveCacheClear(cleared int) {
	e := NewEvent(EventCacheCleared)
	e.Cleared = cleared
	d.publish(e)
}

func (d *DispatchBridge) ObserveBreaker(handler string, from, to dispatch.CircuitState) {
	e := NewEvent(EventBreakerChanged)
	e.Handler = handler
	e.From = from.String()
	e.To = to.String()
	d.publish(e)
}

func (d *DispatchBridge) publish(e Event) {
	if err := d.bus.Publish(e); err != nil {
		log.Debug().Err(err).Str("event", string(e.Type)).Msg("event not published")
	}
}
