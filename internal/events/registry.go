// Package events tracks event subscriptions made against the external
// client. Subscriptions are identified by opaque ids so the module that
// created one can release exactly that one later.
package events

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

// ErrEventNotFound is returned when unregistering an unknown subscription id.
var ErrEventNotFound = errors.New("event subscription not found")

// Listener receives the arguments of one event occurrence.
type Listener func(args ...any)

// Handler is a subscriber callback.
type Handler = Listener

// Source is anything that raises named events: the network client in
// production, a local emitter in tests.
type Source interface {
	On(event string, l Listener)
	Once(event string, l Listener)
	Off(event string, l Listener)
}

// Subscription is one registered handler.
type Subscription struct {
	ID      string
	Type    string
	Once    bool
	handler Handler
	fired   bool
	dropped bool
}

// Poster schedules fn to run. The runtime passes its loop so that every
// handler runs on one goroutine.
type Poster func(fn func()) bool

// Registry owns every subscription and keeps exactly one dispatch listener
// per event type attached to the source. Handlers of a type fire in the
// order they were registered.
type Registry struct {
	mu        sync.Mutex
	source    Source
	post      Poster
	subs      map[string]*Subscription
	byType    map[string][]*Subscription
	listeners map[string]Listener
	logger    *log.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithPoster routes dispatch through post instead of running handlers on the
// source's goroutine.
func WithPoster(post Poster) Option {
	return func(r *Registry) {
		r.post = post
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Registry) {
		r.logger = shared.Tagged(logger, "Events")
	}
}

// NewRegistry returns an empty registry. source may be nil and bound later.
func NewRegistry(source Source, opts ...Option) *Registry {
	r := &Registry{
		subs:      make(map[string]*Subscription),
		byType:    make(map[string][]*Subscription),
		listeners: make(map[string]Listener),
		logger:    shared.Tagged(nil, "Events"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Bind(source)
	return r
}

// Bind moves every dispatch listener to source. Passing nil detaches from
// the current source while keeping the subscriptions.
func (r *Registry) Bind(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.source != nil {
		for typ, l := range r.listeners {
			r.source.Off(typ, l)
		}
	}
	r.listeners = make(map[string]Listener)
	r.source = source
	if source == nil {
		return
	}
	for typ, subs := range r.byType {
		if len(subs) > 0 {
			r.attachLocked(typ)
		}
	}
}

// Detach releases every listener held on the current source.
func (r *Registry) Detach() {
	r.Bind(nil)
}

// Register subscribes handler to events of type typ and returns the new
// subscription id. The handler can fire for the very next occurrence.
// A once subscription fires at most one time; it stays registered until
// Unregister so its owner can release it like any other.
func (r *Registry) Register(typ string, handler Handler, once bool) (string, error) {
	if typ == "" {
		return "", fmt.Errorf("event type cannot be empty")
	}
	if handler == nil {
		return "", fmt.Errorf("nil handler for event %q", typ)
	}

	sub := &Subscription{
		ID:      uuid.NewString(),
		Type:    typ,
		Once:    once,
		handler: handler,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs[sub.ID] = sub
	r.byType[typ] = append(r.byType[typ], sub)
	if _, attached := r.listeners[typ]; !attached {
		r.attachLocked(typ)
	}

	r.logger.Debug("registered event", "type", typ, "id", sub.ID, "once", once)
	return sub.ID, nil
}

// Unregister removes the subscription with the given id. Calling it twice
// with the same id fails the second time.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	delete(r.subs, id)
	r.dropLocked(sub)

	r.logger.Debug("unregistered event", "type", sub.Type, "id", id)
	return nil
}

// Get returns a copy of the subscription with the given id.
func (r *Registry) Get(id string) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return Subscription{}, false
	}
	return Subscription{ID: sub.ID, Type: sub.Type, Once: sub.Once, fired: sub.fired}, true
}

// Fired reports whether a once subscription has already fired.
func (s Subscription) Fired() bool {
	return s.fired
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Types returns the number of live handlers per event type.
func (r *Registry) Types() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int, len(r.byType))
	for typ, subs := range r.byType {
		out[typ] = len(subs)
	}
	return out
}

// TypeNames returns the subscribed event types, sorted.
func (r *Registry) TypeNames() []string {
	types := r.Types()
	names := make([]string, 0, len(types))
	for typ := range types {
		names = append(names, typ)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) attachLocked(typ string) {
	if r.source == nil {
		return
	}
	l := func(args ...any) {
		r.occur(typ, args)
	}
	r.listeners[typ] = l
	r.source.On(typ, l)
}

func (r *Registry) detachLocked(typ string) {
	l, ok := r.listeners[typ]
	if !ok {
		return
	}
	delete(r.listeners, typ)
	if r.source != nil {
		r.source.Off(typ, l)
	}
}

// dropLocked takes sub out of dispatch and detaches the type listener when
// no live handler is left for it.
func (r *Registry) dropLocked(sub *Subscription) {
	sub.dropped = true
	subs := r.byType[sub.Type]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(r.byType, sub.Type)
		r.detachLocked(sub.Type)
		return
	}
	r.byType[sub.Type] = subs
}

// occur snapshots the handlers live when the event happens; handlers
// registered while the dispatch waits on the loop miss it.
func (r *Registry) occur(typ string, args []any) {
	r.mu.Lock()
	live := slices.Clone(r.byType[typ])
	r.mu.Unlock()

	if r.post == nil {
		r.dispatch(typ, args, live)
		return
	}
	if !r.post(func() { r.dispatch(typ, args, live) }) {
		r.logger.Warn("dropped event, loop is not running", "type", typ)
	}
}

// dispatch runs the snapshot handlers that are still registered.
func (r *Registry) dispatch(typ string, args []any, live []*Subscription) {
	r.mu.Lock()
	batch := make([]*Subscription, 0, len(live))
	for _, sub := range live {
		if sub.dropped {
			continue
		}
		if sub.Once {
			if sub.fired {
				continue
			}
			sub.fired = true
		}
		batch = append(batch, sub)
	}
	for _, sub := range batch {
		if sub.Once {
			r.dropLocked(sub)
		}
	}
	r.mu.Unlock()

	for _, sub := range batch {
		shared.SafeCall(r.logger, "event "+typ, func() {
			sub.handler(args...)
		})
	}
}
