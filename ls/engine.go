// Package ls implements link-state route computation: every router floods
// its direct link costs network-wide, sequence numbers bound the flood to a
// single pass, and each router independently runs shortest paths over the
// assembled topology.
package ls

import (
	"log/slog"
	"maps"
	"time"

	"github.com/weftnet/weft/state"
)

// Engine reacts to host events and maintains this router's link-state
// database and forwarding table. The host must deliver events one at a
// time.
type Engine struct {
	addr      state.Addr
	heartbeat time.Duration
	lastSent  time.Duration

	links  state.LinkTable
	lsdb   map[state.Addr]map[state.Addr]state.Cost
	seqnos map[state.Addr]uint64
	graph  graph
	table  state.ForwardingTable

	send state.Sender
	log  *slog.Logger
}

func New(addr state.Addr, heartbeat time.Duration, send state.Sender, log *slog.Logger) *Engine {
	return &Engine{
		addr:      addr,
		heartbeat: heartbeat,
		links:     make(state.LinkTable),
		lsdb:      map[state.Addr]map[state.Addr]state.Cost{addr: {}},
		seqnos:    map[state.Addr]uint64{addr: 0},
		graph:     make(graph),
		table:     make(state.ForwardingTable),
		send:      send,
		log:       log.With("router", addr, "proto", "ls"),
	}
}

func (e *Engine) Addr() state.Addr { return e.addr }

// Table returns the live forwarding table. Callers must not mutate it.
func (e *Engine) Table() state.ForwardingTable { return e.table }

// Database returns the link-state database, keyed by originating router.
// Callers must not mutate it.
func (e *Engine) Database() map[state.Addr]map[state.Addr]state.Cost { return e.lsdb }

// SeqNum returns the highest sequence number accepted for a router.
func (e *Engine) SeqNum(router state.Addr) uint64 { return e.seqnos[router] }

func (e *Engine) HandlePacket(port state.Port, pkt *state.Packet) {
	switch pkt.Kind {
	case state.Data:
		e.forward(pkt)
	case state.Routing:
		adv, err := state.DecodeAdvert(pkt.Content)
		if err != nil {
			e.log.Warn("discarding malformed advertisement", "from", pkt.Src, "err", err)
			return
		}
		e.observe(adv, pkt.Content, port)
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

// observe applies a flooded advertisement. Anything not strictly newer than
// what the database already holds is inert: no state change and no
// re-flood. That is what bounds a flood to one acceptance per (origin,
// seq_num) pair network-wide.
func (e *Engine) observe(adv *state.LinkStateAdvert, raw []byte, from state.Port) {
	if last, ok := e.seqnos[adv.Src]; ok && adv.SeqNum <= last {
		e.log.Debug("stale advertisement", "src", adv.Src, "seq", adv.SeqNum, "have", last)
		return
	}
	e.seqnos[adv.Src] = adv.SeqNum
	e.lsdb[adv.Src] = maps.Clone(adv.Neighbors)
	// the advertisement is authoritative for its origin's edges in both
	// directions: drop reverse entries the origin no longer claims, or a
	// partitioned router's last advertisement keeps dead edges alive
	for router, neighbors := range e.lsdb {
		if router == adv.Src || router == e.addr {
			continue
		}
		if _, claims := adv.Neighbors[router]; !claims {
			delete(neighbors, adv.Src)
		}
	}
	e.refresh()
	e.flood(raw, from)
}

// flood forwards an accepted advertisement, bytes unchanged, to every
// neighbour except the one it arrived from.
func (e *Engine) flood(raw []byte, from state.Port) {
	for port, l := range e.links {
		if port == from {
			continue
		}
		e.send.Send(port, &state.Packet{
			Kind:    state.Routing,
			Src:     e.addr,
			Dst:     l.Neighbor,
			Content: raw,
		})
	}
}

func (e *Engine) HandleLinkUp(port state.Port, neighbor state.Addr, cost state.Cost) {
	e.links[port] = state.Link{Neighbor: neighbor, Cost: cost}
	e.lsdb[e.addr][neighbor] = cost
	if e.lsdb[neighbor] == nil {
		e.lsdb[neighbor] = make(map[state.Addr]state.Cost)
	}
	e.lsdb[neighbor][e.addr] = cost
	e.seqnos[e.addr]++
	e.refresh()
	e.originate()
}

func (e *Engine) HandleLinkDown(port state.Port) {
	if _, ok := e.links[port]; !ok {
		return
	}
	delete(e.links, port)
	// drop every own edge whose neighbour no longer resolves to a port,
	// along with the reverse direction the neighbour advertised
	for neighbor := range e.lsdb[e.addr] {
		if _, ok := e.links.PortFor(neighbor); !ok {
			delete(e.lsdb[e.addr], neighbor)
			if m, ok := e.lsdb[neighbor]; ok {
				delete(m, e.addr)
			}
		}
	}
	e.seqnos[e.addr]++
	e.refresh()
	e.originate()
}

// HandleTime re-originates once per heartbeat interval under a fresh
// sequence number, so databases recover from lost floods without any
// retransmission machinery. Change-triggered originations do not re-arm
// the timer.
func (e *Engine) HandleTime(now time.Duration) {
	if now-e.lastSent >= e.heartbeat {
		e.lastSent = now
		e.seqnos[e.addr]++
		e.originate()
	}
}

// originate broadcasts this router's own advertisement on every link. This
// is a fresh origination, not a flood: it goes to all neighbours.
func (e *Engine) originate() {
	content, err := state.EncodeAdvert(&state.LinkStateAdvert{
		Src:       e.addr,
		SeqNum:    e.seqnos[e.addr],
		Neighbors: e.lsdb[e.addr],
	})
	if err != nil {
		e.log.Error("encode advertisement", "err", err)
		return
	}
	for port, l := range e.links {
		e.send.Send(port, &state.Packet{
			Kind:    state.Routing,
			Src:     e.addr,
			Dst:     l.Neighbor,
			Content: content,
		})
	}
}

// refresh rebuilds the graph from the database and replaces the forwarding
// table with a fresh single-source shortest-path computation.
func (e *Engine) refresh() {
	e.graph = buildGraph(e.lsdb)
	table := make(state.ForwardingTable)
	dist, first := e.graph.shortestPaths(e.addr)
	for dst, hop := range first {
		port, ok := e.links.PortFor(hop)
		if !ok {
			// the database can briefly know paths through a link that
			// is already gone locally; those destinations stay absent
			continue
		}
		table[dst] = state.Route{Cost: dist[dst], Port: port}
	}
	e.table = table
}
