package pclod

// visibleWindow is the square of zone ids around the camera cell. Each
// non-empty slot holds one visibility use on its zone. It is only touched by
// the goroutine running the refresh pass.
type visibleWindow struct {
	radius int
	size   int

	placed           bool
	centerX, centerY int

	slots   []uint32
	scratch []uint32
}

func newVisibleWindow(radius int) *visibleWindow {
	size := 2*radius + 1
	return &visibleWindow{
		radius:  radius,
		size:    size,
		slots:   make([]uint32, size*size),
		scratch: make([]uint32, size*size),
	}
}

// moveTo centres the window on a cell. Slots shared by the old and new
// placement keep their use, new slots acquire and dropped slots release.
// Acquires run before releases so that a zone straddling the border never
// loses visibility in between.
func (w *visibleWindow) moveTo(cx, cy int, lookup func(x, y int) uint32, acquire, release func(id uint32)) bool {
	if w.placed && cx == w.centerX && cy == w.centerY {
		return false
	}

	for i := range w.scratch {
		w.scratch[i] = 0
	}
	for j := range w.size {
		for i := range w.size {
			x := cx - w.radius + i
			y := cy - w.radius + j
			if old, ok := w.slotOf(x, y); ok {
				w.scratch[j*w.size+i] = w.slots[old]
				w.slots[old] = 0
				continue
			}
			if id := lookup(x, y); id != 0 {
				acquire(id)
				w.scratch[j*w.size+i] = id
			}
		}
	}
	for i, id := range w.slots {
		if id != 0 {
			release(id)
			w.slots[i] = 0
		}
	}

	w.slots, w.scratch = w.scratch, w.slots
	w.centerX, w.centerY = cx, cy
	w.placed = true
	return true
}

// slotOf returns the index of a cell in the current placement.
func (w *visibleWindow) slotOf(x, y int) (int, bool) {
	if !w.placed {
		return 0, false
	}
	i := x - (w.centerX - w.radius)
	j := y - (w.centerY - w.radius)
	if i < 0 || j < 0 || i >= w.size || j >= w.size {
		return 0, false
	}
	return j*w.size + i, true
}

// clear releases every slot.
func (w *visibleWindow) clear(release func(id uint32)) {
	for i, id := range w.slots {
		if id != 0 {
			release(id)
			w.slots[i] = 0
		}
	}
	w.placed = false
}

// zoneIDs returns the distinct zone ids in the window.
func (w *visibleWindow) zoneIDs() []uint32 {
	seen := make(map[uint32]struct{})
	var ids []uint32
	for _, id := range w.slots {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
