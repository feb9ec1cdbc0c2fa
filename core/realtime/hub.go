package realtime

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/quizera/backend/core"
)

// EventFunc is invoked once per change event delivered on the channel the
// consumer attached to.
type EventFunc func(Event)

type (
	// Hub multiplexes a company's modules feed across any number of consumers.
	// It keeps at most one underlying Bus subscription per channel key: the
	// subscription is opened when the first consumer attaches and closed when
	// the last one detaches. One Hub is constructed per process and shared.
	Hub struct {
		bus    Bus
		logger core.Logger

		mu       sync.Mutex
		channels map[string]*channel
	}

	channel struct {
		cancel context.CancelFunc
		stop   func() error

		refs      int
		nextCB    uint64
		callbacks map[uint64]EventFunc
	}
)

func NewHub(bus Bus, logger core.Logger) *Hub {
	return &Hub{
		bus:      bus,
		logger:   logger,
		channels: make(map[string]*channel),
	}
}

// Attach registers fn to receive every change event on the company's modules
// feed. It never fails: if the underlying subscription cannot be opened the
// error is logged and fn simply receives no events. The returned detach func
// releases this attach's share of the channel; calling it more than once is
// a no-op.
func (h *Hub) Attach(companyID string, fn EventFunc) (detach func()) {
	key := ModulesKey(companyID)

	h.mu.Lock()
	ch, ok := h.channels[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		ch = &channel{
			cancel:    cancel,
			callbacks: make(map[uint64]EventFunc),
		}
		h.channels[key] = ch

		events, stop, err := h.bus.Subscribe(ctx, key)
		if err != nil {
			h.logger.Error("realtime: subscribe failed", errors.Wrap(err, key))
		} else {
			ch.stop = stop
			go h.pump(ch, events)
		}
		ChannelGauge.Inc()
		h.logger.Debug("realtime: channel created: " + key)
	} else {
		h.logger.Debug("realtime: channel reused: " + key)
	}

	ch.refs++
	id := ch.nextCB
	ch.nextCB++
	ch.callbacks[id] = fn
	AttachCounter.Inc()
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.detach(key, id) })
	}
}

// Watchers reports how many consumers are currently attached to the
// company's modules feed.
func (h *Hub) Watchers(companyID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.channels[ModulesKey(companyID)]; ok {
		return ch.refs
	}
	return 0
}

func (h *Hub) detach(key string, id uint64) {
	h.mu.Lock()
	ch, ok := h.channels[key]
	if !ok {
		h.mu.Unlock()
		return
	}

	delete(ch.callbacks, id)
	if ch.refs > 0 { // never go negative on unbalanced detach
		ch.refs--
	}
	if ch.refs > 0 {
		h.mu.Unlock()
		return
	}

	// last consumer gone: free the registry entry, then tear down the
	// underlying subscription (fire-and-forget).
	delete(h.channels, key)
	h.mu.Unlock()

	ch.cancel()
	if ch.stop != nil {
		if err := ch.stop(); err != nil {
			h.logger.Error("realtime: unsubscribe failed", errors.Wrap(err, key))
		}
	}
	ChannelGauge.Dec()
	h.logger.Debug("realtime: channel removed: " + key)
}

// pump fans each event out to the channel's attached callbacks, in delivery
// order. The callbacks snapshot is taken outside the callback invocations so
// a callback may safely attach or detach.
func (h *Hub) pump(ch *channel, events <-chan Event) {
	for evt := range events {
		h.mu.Lock()
		fns := make([]EventFunc, 0, len(ch.callbacks))
		for _, fn := range ch.callbacks {
			fns = append(fns, fn)
		}
		h.mu.Unlock()

		for _, fn := range fns {
			fn(evt)
		}
		DeliveryCounter.Add(float64(len(fns)))
	}
}
