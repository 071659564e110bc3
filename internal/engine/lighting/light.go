// Package lighting provides the engine light objects shared with the terrain.
package lighting

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Kind is the type of a light source.
type Kind int

const (
	Point Kind = iota
	Spot
	Directional
)

func (k Kind) String() string {
	switch k {
	case Point:
		return "point"
	case Spot:
		return "spot"
	case Directional:
		return "directional"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is a copy of every light parameter.
type State struct {
	Kind     Kind
	Position mgl32.Vec3
	// Direction is the unit vector the light travels along.
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Radius    float32 // point and spot falloff distance, 0 for none
	InnerCos  float32 // spot cone
	OuterCos  float32
}

// Light is a light source owned by the application. It may be moved from
// any goroutine while the terrain reads it.
type Light struct {
	mu    sync.RWMutex
	state State
}

// NewPoint creates an omnidirectional light.
func NewPoint(position, color mgl32.Vec3, radius float32) *Light {
	return &Light{state: State{Kind: Point, Position: position, Color: color, Radius: radius}}
}

// NewSpot creates a cone light.
func NewSpot(position, direction, color mgl32.Vec3, radius, innerCos, outerCos float32) *Light {
	return &Light{state: State{
		Kind:      Spot,
		Position:  position,
		Direction: direction.Normalize(),
		Color:     color,
		Radius:    radius,
		InnerCos:  innerCos,
		OuterCos:  outerCos,
	}}
}

// NewDirectional creates a light at infinity travelling along direction.
func NewDirectional(direction, color mgl32.Vec3) *Light {
	return &Light{state: State{Kind: Directional, Direction: direction.Normalize(), Color: color}}
}

// State returns a snapshot of the light.
func (l *Light) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Light) SetPosition(p mgl32.Vec3) {
	l.mu.Lock()
	l.state.Position = p
	l.mu.Unlock()
}

func (l *Light) SetDirection(d mgl32.Vec3) {
	l.mu.Lock()
	l.state.Direction = d.Normalize()
	l.mu.Unlock()
}

func (l *Light) SetColor(c mgl32.Vec3) {
	l.mu.Lock()
	l.state.Color = c
	l.mu.Unlock()
}
