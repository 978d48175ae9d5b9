// Package dv implements distance-vector route computation in the style of
// RIP (RFC 2453): each router advertises its believed cost to every
// destination, relaxes incoming neighbour vectors with Bellman-Ford, and
// poisons reverse routes to keep neighbours from routing back through it.
package dv

import (
	"log/slog"
	"maps"
	"time"

	"github.com/weftnet/weft/state"
)

// Engine reacts to host events and maintains this router's distance vector
// and forwarding table. The host must deliver events one at a time.
type Engine struct {
	addr      state.Addr
	heartbeat time.Duration
	lastSent  time.Duration

	links     state.LinkTable
	vector    map[state.Addr]state.Cost
	neighbors map[state.Addr]map[state.Addr]state.Cost
	table     state.ForwardingTable

	send state.Sender
	log  *slog.Logger
}

func New(addr state.Addr, heartbeat time.Duration, send state.Sender, log *slog.Logger) *Engine {
	return &Engine{
		addr:      addr,
		heartbeat: heartbeat,
		links:     make(state.LinkTable),
		vector:    map[state.Addr]state.Cost{addr: 0},
		neighbors: make(map[state.Addr]map[state.Addr]state.Cost),
		table:     make(state.ForwardingTable),
		send:      send,
		log:       log.With("router", addr, "proto", "dv"),
	}
}

func (e *Engine) Addr() state.Addr { return e.addr }

// Table returns the live forwarding table. Callers must not mutate it.
func (e *Engine) Table() state.ForwardingTable { return e.table }

// Vector returns the current distance vector. It always contains the
// router's own address at cost zero.
func (e *Engine) Vector() map[state.Addr]state.Cost { return e.vector }

func (e *Engine) HandlePacket(port state.Port, pkt *state.Packet) {
	switch pkt.Kind {
	case state.Data:
		e.forward(pkt)
	case state.Routing:
		vec, err := state.DecodeVector(pkt.Content)
		if err != nil {
			e.log.Warn("discarding malformed vector", "from", pkt.Src, "err", err)
			return
		}
		e.neighbors[pkt.Src] = vec
		if e.recompute() {
			e.broadcast()
		}
	}
}

func (e *Engine) forward(pkt *state.Packet) {
	route, ok := e.table[pkt.Dst]
	if !ok {
		e.log.Debug("no route, dropping", "dst", pkt.Dst)
		return
	}
	e.send.Send(route.Port, pkt)
}

func (e *Engine) HandleLinkUp(port state.Port, neighbor state.Addr, cost state.Cost) {
	e.links[port] = state.Link{Neighbor: neighbor, Cost: cost}
	if _, ok := e.neighbors[neighbor]; !ok {
		e.neighbors[neighbor] = make(map[state.Addr]state.Cost)
	}
	if e.recompute() {
		e.broadcast()
	}
}

func (e *Engine) HandleLinkDown(port state.Port) {
	l, ok := e.links[port]
	if !ok {
		return
	}
	delete(e.links, port)
	delete(e.neighbors, l.Neighbor)
	if e.recompute() {
		e.broadcast()
	}
}

// HandleTime re-broadcasts the vector once per heartbeat interval, whether
// or not anything changed. Change-triggered broadcasts do not re-arm the
// timer, so the steady-state refresh rate stays fixed.
func (e *Engine) HandleTime(now time.Duration) {
	if now-e.lastSent >= e.heartbeat {
		e.lastSent = now
		e.broadcast()
	}
}

// recompute runs one full Bellman-Ford relaxation over the neighbour
// vectors and replaces the vector and forwarding table wholesale. It
// reports whether either differs from the previous value.
func (e *Engine) recompute() bool {
	vector := map[state.Addr]state.Cost{e.addr: 0}
	table := make(state.ForwardingTable)

	dests := make(map[state.Addr]struct{})
	for _, vec := range e.neighbors {
		for dst := range vec {
			dests[dst] = struct{}{}
		}
	}
	for _, l := range e.links {
		dests[l.Neighbor] = struct{}{}
	}

	for dst := range dests {
		if dst == e.addr {
			continue
		}
		best := state.Infinity
		var bestPort state.Port
		found := false
		for port, l := range e.links {
			total := l.Cost
			if dst != l.Neighbor {
				via, ok := e.neighbors[l.Neighbor][dst]
				if !ok {
					via = state.Infinity
				}
				total = state.AddCost(l.Cost, via)
			}
			// lowest port wins ties so the result is independent of
			// map iteration order
			if total < best || (total == best && found && port < bestPort) {
				best = total
				bestPort = port
				found = true
			}
		}
		if found && best < state.Infinity {
			vector[dst] = best
			table[dst] = state.Route{Cost: best, Port: bestPort}
		}
	}

	if maps.Equal(vector, e.vector) && maps.Equal(table, e.table) {
		return false
	}
	e.vector = vector
	e.table = table
	return true
}

// broadcast sends the vector to every neighbour, reporting Infinity for any
// destination whose best route exits on the link being advertised over
// (split horizon with poisoned reverse, RFC 2453 3.4.3). The neighbour
// itself is never poisoned.
func (e *Engine) broadcast() {
	for port, l := range e.links {
		poisoned := make(map[state.Addr]state.Cost, len(e.vector))
		for dst, cost := range e.vector {
			if route, ok := e.table[dst]; ok && route.Port == port && dst != l.Neighbor {
				poisoned[dst] = state.Infinity
				continue
			}
			poisoned[dst] = cost
		}
		content, err := state.EncodeVector(poisoned)
		if err != nil {
			e.log.Error("encode vector", "err", err)
			return
		}
		e.send.Send(port, &state.Packet{
			Kind:    state.Routing,
			Src:     e.addr,
			Dst:     l.Neighbor,
			Content: content,
		})
	}
}
