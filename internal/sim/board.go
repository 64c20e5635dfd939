// Package sim implements a small tile-board controller simulator so the
// client can be exercised without hardware: a board of reconfigurable tiles
// with a spare pool, a thermal/heartbeat tick, fault injection by severity,
// and scenario presets, served over the same websocket protocol the real
// controller speaks.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Tile statuses reported in snapshots.
const (
	tileOK       = "ok"
	tileDegraded = "degraded"
	tileFailed   = "failed"
	tileSpare    = "spare"
)

// Severity to fault duration. Critical faults never expire on their own.
var severityDuration = map[string]time.Duration{
	"critical": 0,
	"major":    60 * time.Second,
	"minor":    10 * time.Second,
}

// tile is one reconfigurable region on the board.
type tile struct {
	id         string
	status     string
	spare      bool
	heartbeat  float64 // beats per second reported in telemetry
	tempC      float64
	load       float64
	faultType  string
	faultUntil time.Time // zero means no expiry
}

// Board is the simulated hardware state. Safe for concurrent use.
type Board struct {
	mu    sync.Mutex
	tiles map[string]*tile
	order []string
	rng   *rand.Rand
}

// NewBoard creates a board with tileCount tiles, the last spareCount of which
// form the spare pool.
func NewBoard(tileCount, spareCount int) *Board {
	b := &Board{
		tiles: make(map[string]*tile),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for i := 0; i < tileCount; i++ {
		id := fmt.Sprintf("tile_%d", i)
		t := &tile{
			id:        id,
			status:    tileOK,
			heartbeat: 80,
			tempC:     40,
		}
		if i >= tileCount-spareCount {
			t.spare = true
			t.status = tileSpare
			t.heartbeat = 0
		}
		b.tiles[id] = t
		b.order = append(b.order, id)
	}
	sort.Strings(b.order)

	return b
}

// Tick advances the physical model one step: fault expiry, thermal drift,
// heartbeat jitter.
func (b *Board) Tick() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for _, t := range b.tiles {
		if t.faultType != "" && !t.faultUntil.IsZero() && now.After(t.faultUntil) {
			b.clearFaultLocked(t)
		}

		// Thermal model: heat from load, cooling toward ambient.
		t.tempC += t.load * 0.01
		t.tempC += (40 - t.tempC) * 0.01

		switch t.status {
		case tileOK:
			t.heartbeat = 75 + b.rng.Float64()*10
		case tileDegraded:
			t.heartbeat = 30 + b.rng.Float64()*20
		default:
			t.heartbeat = 0
		}
	}
}

// Snapshot returns a status_snapshot message body. A non-zero seq echoes the
// requesting client's sequence stamp.
func (b *Board) Snapshot(seq int64) map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	nodes := make(map[string]interface{}, len(b.order))
	for _, id := range b.order {
		t := b.tiles[id]
		nodes[id] = map[string]interface{}{
			"status": t.status,
			"metrics": map[string]interface{}{
				"hb":     round1(t.heartbeat),
				"temp_c": round1(t.tempC),
			},
		}
	}

	msg := map[string]interface{}{
		"type":      "status_snapshot",
		"timestamp": time.Now().UnixMilli(),
		"nodes":     nodes,
	}
	if seq != 0 {
		msg["seq"] = seq
	}
	return msg
}

// InjectFault applies a fault to the named tile. Unknown tiles are reported
// as an error; unknown fault types degrade the tile like the generic case.
func (b *Board) InjectFault(id, faultType, severity string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tiles[id]
	if !ok {
		return fmt.Errorf("no such tile %q", id)
	}

	t.faultType = faultType
	if d, ok := severityDuration[severity]; ok && d > 0 {
		t.faultUntil = time.Now().Add(d)
	} else {
		t.faultUntil = time.Time{}
	}

	switch faultType {
	case "missing_heartbeat":
		t.status = tileFailed
	case "overheat":
		t.tempC += 15
		t.status = tileDegraded
	default:
		t.status = tileDegraded
	}
	return nil
}

// ClearFault clears any forced fault on the tile and lets it recover.
func (b *Board) ClearFault(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tiles[id]
	if !ok {
		return fmt.Errorf("no such tile %q", id)
	}
	b.clearFaultLocked(t)
	return nil
}

// FastSwap moves the failed tile's role onto a spare: the spare goes active,
// the target is isolated out of service.
func (b *Board) FastSwap(target, spare string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, ok := b.tiles[target]
	if !ok {
		return fmt.Errorf("no such tile %q", target)
	}
	dst, ok := b.tiles[spare]
	if !ok || !dst.spare {
		return fmt.Errorf("%q is not a spare", spare)
	}

	dst.status = tileOK
	dst.load = src.load
	src.status = tileFailed
	src.load = 0
	return nil
}

// Status reports the current status of a tile, for tests.
func (b *Board) Status(id string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tiles[id]
	if !ok {
		return "", false
	}
	return t.status, true
}

// Scenario presets.
const (
	ScenarioLightLoad = "light_load"
	ScenarioStress    = "stress"
	ScenarioOneFault  = "one_fault"
)

// ApplyScenario applies a named preset to the board.
func (b *Board) ApplyScenario(name string) error {
	switch name {
	case ScenarioLightLoad:
		b.setLoads(func() float64 { return 0.05 })
	case ScenarioStress:
		b.setLoads(func() float64 { return 0.2 + b.rng.Float64()*0.7 })
	case ScenarioOneFault:
		return b.InjectFault("tile_3", "missing_heartbeat", "major")
	default:
		return fmt.Errorf("unknown scenario %q", name)
	}
	return nil
}

func (b *Board) setLoads(next func() float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.tiles {
		if t.spare {
			t.load = 0
			continue
		}
		t.load = next()
	}
}

// clearFaultLocked must be called with b.mu held.
func (b *Board) clearFaultLocked(t *tile) {
	t.faultType = ""
	t.faultUntil = time.Time{}
	if t.spare {
		t.status = tileSpare
	} else {
		t.status = tileOK
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
