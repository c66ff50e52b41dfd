package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"akashwatch/models"
)

// EventCallback receives decoded domain events matching a subscription.
type EventCallback func(models.Event)

type subscription struct {
	id       string
	query    string
	callback EventCallback
	filter   *models.EventFilter
}

// registry is the in-memory table of active subscriptions. It is independent
// of the connection lifecycle: entries survive reconnects and are only
// removed by Unsubscribe or a full Disconnect.
type registry struct {
	mu    sync.Mutex
	order []string
	subs  map[string]*subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]*subscription)}
}

func (r *registry) add(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.id] = sub
	r.order = append(r.order, sub.id)
}

func (r *registry) remove(id string) (*subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, false
	}
	delete(r.subs, id)
	for i, sid := range r.order {
		if sid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return sub, true
}

// list returns the live subscriptions in registration order.
func (r *registry) list() []*subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*subscription, 0, len(r.order))
	for _, id := range r.order {
		if sub, ok := r.subs[id]; ok {
			out = append(out, sub)
		}
	}
	return out
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string]*subscription)
	r.order = nil
}

// newSubscriptionID builds a process-unique, collision-resistant id from the
// current time and a random suffix.
func newSubscriptionID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
