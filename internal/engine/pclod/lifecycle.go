package pclod

import "fmt"

// ResourceState tracks where a texture resource is in its teardown protocol.
type ResourceState int

// Resource states. Removed and Destroyed are only reached by colormaps and
// lightmaps, materials go back to Unloaded and stay registered.
const (
	StateLoaded ResourceState = iota
	StateUnusedPending
	StateRemoved
	StateDestroyed
	StateUnloaded
)

func (s ResourceState) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateUnusedPending:
		return "unused-pending"
	case StateRemoved:
		return "removed"
	case StateDestroyed:
		return "destroyed"
	case StateUnloaded:
		return "unloaded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ResourceKind names the texture resources owned by the texture manager.
type ResourceKind int

const (
	KindMaterial ResourceKind = iota
	KindColormap
	KindLightmap
)

func (k ResourceKind) String() string {
	switch k {
	case KindMaterial:
		return "material"
	case KindColormap:
		return "colormap"
	case KindLightmap:
		return "lightmap"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SignalKind is one step of the deferred destruction chain.
type SignalKind int

const (
	SignalUnused SignalKind = iota
	SignalDeletion
)

func (k SignalKind) String() string {
	if k == SignalUnused {
		return "unused"
	}
	return "deletion"
}

// Signal is reported to the texture manager observer for every step of the
// destruction chain. Instance distinguishes two resources that shared an id.
type Signal struct {
	Kind     SignalKind
	Resource ResourceKind
	ID       uint32
	Instance uint64
}

// lifecycle is the reference count and state shared by every texture resource.
// It is only touched with the owning manager lock held.
type lifecycle struct {
	kind     ResourceKind
	id       uint32
	instance uint64
	refs     int
	state    ResourceState
}

// use takes a reference, reviving a resource whose unused signal is still in flight.
func (l *lifecycle) use() {
	switch l.state {
	case StateRemoved, StateDestroyed:
		panic(fmt.Sprintf("pclod: use of %s %d in state %s", l.kind, l.id, l.state))
	case StateUnusedPending, StateUnloaded:
		l.state = StateLoaded
	}
	l.refs++
}

// release drops a reference and reports whether it was the last one.
func (l *lifecycle) release() bool {
	if l.refs <= 0 {
		panic(fmt.Sprintf("pclod: negative reference count on %s %d", l.kind, l.id))
	}
	l.refs--
	if l.refs == 0 {
		l.state = StateUnusedPending
		return true
	}
	return false
}

// unusedStill reports whether the unused signal is still valid when handled.
func (l *lifecycle) unusedStill() bool {
	return l.state == StateUnusedPending && l.refs == 0
}

func (l *lifecycle) signal(kind SignalKind) Signal {
	return Signal{Kind: kind, Resource: l.kind, ID: l.id, Instance: l.instance}
}
