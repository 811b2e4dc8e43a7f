package sqlite

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const (
	topicReports     = "reports"
	topicUserReports = "reports/"
	topicUsers       = "users"
	topicUser        = "users/"
)

// hub fans change signals out to watchers. A signal only says "reload";
// pending signals coalesce.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func newHub() *hub {
	return &hub{subs: map[string]map[chan struct{}]struct{}{}}
}

func (h *hub) subscribe(topic string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = map[chan struct{}]struct{}{}
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[topic], ch)
		if len(h.subs[topic]) == 0 {
			delete(h.subs, topic)
		}
		h.mu.Unlock()
	}
}

func (h *hub) publish(topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		for ch := range h.subs[t] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// watch sends the current value of load, then reloads and resends on every
// signal for topic until ctx ends.
func watch[T any](ctx context.Context, s *Store, topic string, load func(context.Context) (T, error)) (<-chan T, error) {
	sig, unsubscribe := s.hub.subscribe(topic)
	v, err := load(ctx)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	out := make(chan T, 1)
	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
			for {
				select {
				case <-ctx.Done():
					return
				case <-sig:
				}
				next, err := load(ctx)
				if err == nil {
					v = next
					break
				}
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("Reload failed", zap.String("topic", topic), zap.Error(err))
			}
		}
	}()
	return out, nil
}
