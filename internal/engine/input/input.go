// Package input handles SDL2 input events.
package input

import (
	"github.com/veandco/go-sdl2/sdl"
)

// EventType classifies a processed input event.
type EventType int

const (
	EventNone EventType = iota
	EventQuit
	EventWindowResize
	EventKeyDown
	EventKeyUp
	EventMouseDrag
	EventMouseWheel
)

// Event represents a processed input event.
type Event struct {
	Type   EventType
	Key    sdl.Scancode
	Width  int
	Height int
	DeltaX float32
	DeltaY float32
}

// Input handles all input processing.
type Input struct {
	events   []Event
	dragging bool
	poll     func() sdl.Event
	keys     func() []uint8
}

// New creates a new input handler reading from SDL.
func New() *Input {
	return &Input{
		events: make([]Event, 0, 16),
		poll:   sdl.PollEvent,
		keys:   sdl.GetKeyboardState,
	}
}

// Update polls pending events. Returns true when the viewer should quit.
func (i *Input) Update() bool {
	i.events = i.events[:0]

	quit := false
	for event := i.poll(); event != nil; event = i.poll() {
		if i.handle(event) {
			quit = true
		}
	}
	return quit
}

func (i *Input) handle(event sdl.Event) bool {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		i.events = append(i.events, Event{Type: EventQuit})
		return true

	case *sdl.WindowEvent:
		if e.Event == sdl.WINDOWEVENT_RESIZED {
			i.events = append(i.events, Event{
				Type:   EventWindowResize,
				Width:  int(e.Data1),
				Height: int(e.Data2),
			})
		}

	case *sdl.KeyboardEvent:
		if e.Repeat != 0 {
			return false
		}
		switch e.Type {
		case sdl.KEYDOWN:
			i.events = append(i.events, Event{Type: EventKeyDown, Key: e.Keysym.Scancode})
			if e.Keysym.Scancode == sdl.SCANCODE_ESCAPE {
				return true
			}
		case sdl.KEYUP:
			i.events = append(i.events, Event{Type: EventKeyUp, Key: e.Keysym.Scancode})
		}

	case *sdl.MouseButtonEvent:
		if e.Button == sdl.BUTTON_LEFT {
			i.dragging = e.Type == sdl.MOUSEBUTTONDOWN
		}

	case *sdl.MouseMotionEvent:
		if i.dragging {
			i.events = append(i.events, Event{
				Type:   EventMouseDrag,
				DeltaX: float32(e.XRel),
				DeltaY: float32(e.YRel),
			})
		}

	case *sdl.MouseWheelEvent:
		i.events = append(i.events, Event{Type: EventMouseWheel, DeltaY: float32(e.Y)})
	}
	return false
}

// Events returns the events from the last Update.
func (i *Input) Events() []Event {
	return i.events
}

// IsKeyPressed checks if a specific key was pressed this frame.
func (i *Input) IsKeyPressed(scancode sdl.Scancode) bool {
	for _, e := range i.events {
		if e.Type == EventKeyDown && e.Key == scancode {
			return true
		}
	}
	return false
}

// Movement returns the held WASD/QE axes as forward, right and up.
func (i *Input) Movement() (forward, right, up float32) {
	state := i.keys()
	held := func(sc sdl.Scancode) float32 {
		if int(sc) < len(state) && state[sc] != 0 {
			return 1
		}
		return 0
	}
	forward = held(sdl.SCANCODE_W) - held(sdl.SCANCODE_S)
	right = held(sdl.SCANCODE_D) - held(sdl.SCANCODE_A)
	up = held(sdl.SCANCODE_E) - held(sdl.SCANCODE_Q)
	return forward, right, up
}
