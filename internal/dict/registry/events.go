package registry

import (
	"slices"
	"sync"
)

// ChangeEvent is delivered after every Reload. Loaded lists the ids opened,
// Failed the installed ids that could not be opened.
type ChangeEvent struct {
	Loaded []string
	Failed map[string]error
}

// Observer is notified when the set of open dictionaries changes.
type Observer interface {
	DictionariesChanged(ChangeEvent)
}

type ObserverFunc func(ChangeEvent)

func (f ObserverFunc) DictionariesChanged(ev ChangeEvent) {
	f(ev)
}

// Subscription cancels an observer registration.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe stops further notifications. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

func (r *Registry) Subscribe(o Observer) *Subscription {
	r.obsMu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = o
	r.obsMu.Unlock()
	return &Subscription{cancel: func() {
		r.obsMu.Lock()
		delete(r.observers, id)
		r.obsMu.Unlock()
	}}
}

// notify calls observers outside the registry lock, in subscription order.
func (r *Registry) notify(ev ChangeEvent) {
	r.obsMu.Lock()
	ids := make([]uint64, 0, len(r.observers))
	for id := range r.observers {
		ids = append(ids, id)
	}
	obs := make([]Observer, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		obs = append(obs, r.observers[id])
	}
	r.obsMu.Unlock()
	for _, o := range obs {
		o.DictionariesChanged(ev)
	}
}
