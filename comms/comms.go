// Package comms implements the typed endpoint fabric every service sends
// and receives through: endpoints identified by EndpointID register a
// delegate, and Send fans a payload out synchronously to every delegate
// registered against the destination ID. Delivery never suspends and
// never fails at the fabric layer — a delegate's own errors are its
// concern to log, not the fabric's to report.
package comms

import (
	"sync"

	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/registry"
)

// Scope distinguishes internal (on-EC) endpoints from external (host or
// debug-facing) ones.
type Scope uint8

const (
	ScopeInternal Scope = iota
	ScopeExternal
)

func (s Scope) String() string {
	if s == ScopeExternal {
		return "external"
	}
	return "internal"
}

// Kind enumerates endpoint roles. Not every Kind is valid in every Scope
// — see Internal/External below.
type Kind uint8

const (
	KindPlatformInfo Kind = iota
	KindKeyboard
	KindHID
	KindHostBoot
	KindPower
	KindUSBC
	KindThermal
	KindTrackpad
	KindBattery
	KindNonvol
	KindDebug
	KindSecurity
	KindTimeAlarm
	KindOem
	KindHost // external only
)

// EndpointID is a comparable tagged identity: Scope + Kind, with an Oem
// field meaningful only when Kind == KindOem.
type EndpointID struct {
	Scope Scope
	Kind  Kind
	Oem   int
}

func Internal(kind Kind) EndpointID       { return EndpointID{Scope: ScopeInternal, Kind: kind} }
func External(kind Kind) EndpointID       { return EndpointID{Scope: ScopeExternal, Kind: kind} }
func InternalOem(key int) EndpointID      { return EndpointID{Scope: ScopeInternal, Kind: KindOem, Oem: key} }
func ExternalOem(key int) EndpointID      { return EndpointID{Scope: ScopeExternal, Kind: KindOem, Oem: key} }

// Message is the unit one synchronous delivery carries. Data is opaque to
// the fabric; endpoints discriminate on their own runtime type switch
// (see As).
type Message struct {
	From EndpointID
	To   EndpointID
	Data any
}

// Delegate receives messages addressed to the endpoint it was registered
// against. Deliver must not suspend and must not panic on an unexpected
// payload shape — log and ignore instead.
type Delegate interface {
	Deliver(msg Message)
}

// Endpoint is a registration record: an owning Kind, its intrusive node,
// and the single delegate bound at registration.
type Endpoint struct {
	node     registry.Node[*Endpoint]
	id       EndpointID
	delegate Delegate
}

func (e *Endpoint) ID() EndpointID { return e.id }

// Fabric owns one per-destination registry.List[*Endpoint] per
// EndpointID encountered, built lazily and never shrunk.
type Fabric struct {
	mu    sync.Mutex
	lists map[EndpointID]*registry.List[*Endpoint]
}

func NewFabric() *Fabric {
	return &Fabric{lists: make(map[EndpointID]*registry.List[*Endpoint])}
}

func (f *Fabric) listFor(id EndpointID) *registry.List[*Endpoint] {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[id]
	if !ok {
		l = &registry.List[*Endpoint]{}
		f.lists[id] = l
	}
	return l
}

// RegisterEndpoint binds delegate into a new Endpoint for id and pushes
// it onto id's destination list. Re-registering the same *Endpoint value
// is a programmer error and panics, matching §7's "programmer-contract
// violations must panic loudly" — a fresh Endpoint is cheap to allocate,
// so there is never a legitimate reason to register one twice.
func (f *Fabric) RegisterEndpoint(id EndpointID, delegate Delegate) *Endpoint {
	ep := &Endpoint{id: id, delegate: delegate}
	l := f.listFor(id)
	if err := l.Register(&ep.node, ep); err != nil {
		ecerr.Fatalf("comms", "register endpoint %d/%d: %v", id.Scope, id.Kind, err)
	}
	return ep
}

// Send walks to's destination list and synchronously invokes every
// registered delegate's Deliver. It never fails at the fabric layer: a
// destination with zero registered delegates is a silent no-op, exactly
// as best-effort fan-out requires.
func (f *Fabric) Send(from, to EndpointID, data any) {
	l := f.listFor(to)
	msg := Message{From: from, To: to, Data: data}
	l.Each(func(_ uint64, ep *Endpoint) bool {
		if ep.delegate != nil {
			ep.delegate.Deliver(msg)
		}
		return true
	})
}

// As asserts payload to the concrete type T. Accepts either a value T or
// a pointer *T; a nil payload yields the zero value of T and false.
func As[T any](payload any) (T, bool) {
	var zero T
	if payload == nil {
		return zero, false
	}
	if v, ok := payload.(T); ok {
		return v, true
	}
	if p, ok := payload.(*T); ok && p != nil {
		return *p, true
	}
	return zero, false
}

// DelegateFunc adapts a plain function to Delegate.
type DelegateFunc func(msg Message)

func (f DelegateFunc) Deliver(msg Message) { f(msg) }
