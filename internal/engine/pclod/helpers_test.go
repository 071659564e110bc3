package pclod

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Faultbox/pclod/internal/engine/gpu"
	"github.com/Faultbox/pclod/pkg/formats"
)

const testZoneSize = 8

// syncConfigs returns defaults with the refresh pass run from Update.
func syncConfigs() Configs {
	cfg := DefaultConfigs()
	cfg.Asynchronous = false
	cfg.BlockSize = 4
	return cfg
}

// writeTerrain serializes zones into an in-memory header.
func writeTerrain(t *testing.T, zones ...formats.ZoneBuild) *bytes.Reader {
	t.Helper()
	buf := new(bytes.Buffer)
	err := formats.WriteHCLM(buf, &formats.HCLMBuild{
		Name:      "test",
		ZoneSizeX: testZoneSize,
		ZoneSizeY: testZoneSize,
		Zones:     zones,
	})
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

// newTestManager loads zones into a synchronous manager over a NullDevice.
func newTestManager(t *testing.T, cfg Configs, opts LoadOptions, zones ...formats.ZoneBuild) (*ZoneManager, *gpu.NullDevice) {
	t.Helper()
	dev := gpu.NewNullDevice()
	zm, err := NewZoneManager(cfg, zaptest.NewLogger(t), dev)
	require.NoError(t, err)
	require.NoError(t, zm.Load(writeTerrain(t, zones...), opts))
	return zm, dev
}

// memoryReader serves payloads from memory and counts reads.
type memoryReader struct {
	mu       sync.Mutex
	payloads map[uint32]*formats.ZonePayload
	reads    map[uint32]int
}

func newMemoryReader(zones ...formats.ZoneBuild) *memoryReader {
	r := &memoryReader{
		payloads: make(map[uint32]*formats.ZonePayload),
		reads:    make(map[uint32]int),
	}
	for _, z := range zones {
		p := z.Payload
		r.payloads[z.ID] = &p
	}
	return r
}

func (r *memoryReader) ReadPayload(h formats.ZoneHeader) (*formats.ZonePayload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payloads[h.ID]
	if !ok {
		return nil, fmt.Errorf("no payload for zone %d", h.ID)
	}
	r.reads[h.ID]++
	return p, nil
}

func (r *memoryReader) Reads(id uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[id]
}

// loadedZone builds a loaded top zone outside of any manager.
func loadedZone(t *testing.T, cfg *Configs, z formats.ZoneBuild) *TopZone {
	t.Helper()
	h := formats.ZoneHeader{
		ID:       z.ID,
		OriginX:  z.OriginX,
		OriginY:  z.OriginY,
		SizeX:    z.Size,
		SizeY:    z.Size,
		LodCount: z.LodCount,
	}
	tz := newTopZone(zoneEntry{
		header:    h,
		gridX:     h.GridX(testZoneSize),
		gridY:     h.GridY(testZoneSize),
		extension: h.ExtensionX(testZoneSize),
	}, cfg)
	require.NoError(t, tz.Load(newMemoryReader(z)))
	return tz
}

// fakeHost records renderer traffic without an event bus.
type fakeHost struct {
	rendering renderEnv
	live      map[*ZoneRenderer]bool
	attached  int
	detached  int
}

func newFakeHost(cfg *Configs) *fakeHost {
	return &fakeHost{
		rendering: renderEnv{cfg: cfg, log: zap.NewNop(), device: gpu.NewNullDevice()},
		live:      make(map[*ZoneRenderer]bool),
	}
}

func (h *fakeHost) env() *renderEnv { return &h.rendering }

func (h *fakeHost) attach(r *ZoneRenderer) {
	h.live[r] = true
	h.attached++
}

func (h *fakeHost) detach(r *ZoneRenderer) {
	if !h.live[r] {
		panic("detach of a renderer that was never attached")
	}
	delete(h.live, r)
	h.detached++
}

// pathOwners counts the nodes owning a renderer on the path from idx to the root.
func pathOwners(z *TopZone, idx ZoneIndex) int {
	n := 0
	for i := idx; i != NoZone; i = z.nodes[i].parent {
		if z.nodes[i].renderer != nil {
			n++
		}
	}
	return n
}

// leaves returns the arena indices of the quadtree leaves.
func leaves(z *TopZone) []ZoneIndex {
	var out []ZoneIndex
	for i := range z.nodes {
		if z.nodes[i].leaf() {
			out = append(out, ZoneIndex(i))
		}
	}
	return out
}

// movableCamera is a camera the test moves around.
type movableCamera struct {
	mu  sync.Mutex
	pos mgl32.Vec3
}

func (c *movableCamera) setPos(p mgl32.Vec3) {
	c.mu.Lock()
	c.pos = p
	c.mu.Unlock()
}

func (c *movableCamera) AbsoluteMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return mgl32.Translate3D(c.pos.X(), c.pos.Y(), c.pos.Z())
}
