// Package sim hosts routing engines in a deterministic discrete-event
// network. It owns ports and links, serializes event delivery per router,
// and drives the engines' clocks; the engines never see anything but the
// four-event contract.
package sim

import (
	"container/heap"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"time"

	"github.com/weftnet/weft/state"
)

// NewEngineFunc constructs an engine for one router. Both dv.New and ls.New
// satisfy it.
type NewEngineFunc func(addr state.Addr, heartbeat time.Duration, send state.Sender, log *slog.Logger) state.Engine

type Options struct {
	Heartbeat time.Duration // engine re-advertisement interval
	Tick      time.Duration // clock granularity delivered via HandleTime
	Seed      uint64        // loss RNG seed; runs with equal seeds are identical
	Log       *slog.Logger
}

type Network struct {
	log       *slog.Logger
	heartbeat time.Duration
	tick      time.Duration
	rng       *rand.Rand

	now      time.Duration
	nextTick time.Duration
	seq      uint64
	queue    eventQueue

	routers map[state.Addr]*router
	order   []state.Addr // routers in address order, for stable tick delivery
	links   map[[2]state.Addr]*link

	probes    map[uint64]*Probe
	nextProbe uint64
}

func NewNetwork(opts Options) *Network {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = state.DefaultHeartbeat
	}
	if opts.Tick <= 0 {
		opts.Tick = min(state.DefaultTick, opts.Heartbeat)
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	return &Network{
		log:       opts.Log,
		heartbeat: opts.Heartbeat,
		tick:      opts.Tick,
		rng:       rand.New(rand.NewPCG(opts.Seed, 0x9e3779b97f4a7c15)),
		nextTick:  opts.Tick,
		routers:   make(map[state.Addr]*router),
		links:     make(map[[2]state.Addr]*link),
		probes:    make(map[uint64]*Probe),
	}
}

// router is one hosted engine plus its port table. It is the engine's
// Sender: transmits resolve the port to the far end and become delivery
// events.
type router struct {
	net    *Network
	engine state.Engine
	ports  map[state.Port]*wire
	next   state.Port
}

// wire is one direction of a link as seen from a port.
type wire struct {
	peer     *router
	peerPort state.Port
	latency  time.Duration
	loss     float64
}

type link struct {
	cfg   state.LinkCfg
	aPort state.Port
	bPort state.Port
}

func (r *router) Send(port state.Port, pkt *state.Packet) {
	w, ok := r.ports[port]
	if !ok {
		// the engine can race a link-down it has not seen yet
		r.net.log.Debug("send on dead port", "router", r.engine.Addr(), "port", port)
		return
	}
	if w.loss > 0 && r.net.rng.Float64() < w.loss {
		return
	}
	peer, peerPort := w.peer, w.peerPort
	r.net.schedule(r.net.now+w.latency, func() {
		r.net.deliver(peer, peerPort, pkt)
	})
}

func (n *Network) deliver(r *router, port state.Port, pkt *state.Packet) {
	if _, ok := r.ports[port]; !ok {
		return // link went down while the packet was in flight
	}
	if pkt.Kind == state.Data && pkt.Dst == r.engine.Addr() {
		n.completeProbe(pkt)
		return
	}
	r.engine.HandlePacket(port, pkt)
}

func (n *Network) AddRouter(addr state.Addr, newEngine NewEngineFunc) error {
	if _, ok := n.routers[addr]; ok {
		return fmt.Errorf("router %s already exists", addr)
	}
	r := &router{net: n, ports: make(map[state.Port]*wire)}
	r.engine = newEngine(addr, n.heartbeat, r, n.log)
	n.routers[addr] = r
	i, _ := slices.BinarySearch(n.order, addr)
	n.order = slices.Insert(n.order, i, addr)
	return nil
}

// Connect brings up a bidirectional link. Both endpoints get a fresh port
// and see a link-up event immediately.
func (n *Network) Connect(cfg state.LinkCfg) error {
	ra, rb, err := n.pair(cfg.A, cfg.B)
	if err != nil {
		return err
	}
	key := linkKey(cfg.A, cfg.B)
	if _, ok := n.links[key]; ok {
		return fmt.Errorf("link %s-%s already exists", cfg.A, cfg.B)
	}
	pa, pb := ra.next, rb.next
	ra.next++
	rb.next++
	ra.ports[pa] = &wire{peer: rb, peerPort: pb, latency: cfg.Latency(), loss: cfg.Loss}
	rb.ports[pb] = &wire{peer: ra, peerPort: pa, latency: cfg.Latency(), loss: cfg.Loss}
	n.links[key] = &link{cfg: cfg, aPort: pa, bPort: pb}

	ra.engine.HandleLinkUp(pa, cfg.B, cfg.Cost)
	rb.engine.HandleLinkUp(pb, cfg.A, cfg.Cost)
	return nil
}

// Disconnect tears down the link between two routers. In-flight packets on
// it are dropped at delivery time.
func (n *Network) Disconnect(a, b state.Addr) error {
	ra, rb, err := n.pair(a, b)
	if err != nil {
		return err
	}
	key := linkKey(a, b)
	l, ok := n.links[key]
	if !ok {
		return fmt.Errorf("no link %s-%s", a, b)
	}
	if l.cfg.A != a {
		ra, rb = rb, ra
	}
	delete(n.links, key)
	delete(ra.ports, l.aPort)
	delete(rb.ports, l.bPort)
	ra.engine.HandleLinkDown(l.aPort)
	rb.engine.HandleLinkDown(l.bPort)
	return nil
}

func (n *Network) pair(a, b state.Addr) (*router, *router, error) {
	ra, ok := n.routers[a]
	if !ok {
		return nil, nil, fmt.Errorf("no router %s", a)
	}
	rb, ok := n.routers[b]
	if !ok {
		return nil, nil, fmt.Errorf("no router %s", b)
	}
	return ra, rb, nil
}

func linkKey(a, b state.Addr) [2]state.Addr {
	if b < a {
		a, b = b, a
	}
	return [2]state.Addr{a, b}
}

// At schedules f on the event queue. Scheduling in the past runs f at the
// current time, after already-queued work.
func (n *Network) At(t time.Duration, f func()) {
	n.schedule(max(t, n.now), f)
}

// Run advances the clock to until, delivering queued packets and periodic
// HandleTime ticks in timestamp order. Events still in flight at the end of
// the window stay queued for the next call.
func (n *Network) Run(until time.Duration) {
	for t := n.nextTick; t <= until; t += n.tick {
		tick := t
		n.schedule(tick, func() {
			for _, addr := range n.order {
				n.routers[addr].engine.HandleTime(tick)
			}
		})
		n.nextTick = t + n.tick
	}
	for n.queue.Len() > 0 && n.queue[0].at <= until {
		ev := heap.Pop(&n.queue).(*event)
		n.now = ev.at
		ev.run()
	}
	n.now = until
}

func (n *Network) Now() time.Duration { return n.now }

// Routers returns all router addresses in address order.
func (n *Network) Routers() []state.Addr {
	return slices.Clone(n.order)
}

// Table returns a snapshot of one router's forwarding table.
func (n *Network) Table(addr state.Addr) state.ForwardingTable {
	r, ok := n.routers[addr]
	if !ok {
		return nil
	}
	table := make(state.ForwardingTable, len(r.engine.Table()))
	for dst, route := range r.engine.Table() {
		table[dst] = route
	}
	return table
}

func (n *Network) schedule(at time.Duration, run func()) {
	n.seq++
	heap.Push(&n.queue, &event{at: at, seq: n.seq, run: run})
}

// event ordering is (time, insertion order): simultaneous events run in the
// order they were scheduled, which keeps runs reproducible.
type event struct {
	at  time.Duration
	seq uint64
	run func()
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any) { *q = append(*q, x.(*event)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	*q = old[:n-1]
	return ev
}

// Probe is one tracked data packet: injected at Src, counted delivered when
// forwarding brings it to Dst.
type Probe struct {
	ID          uint64
	Src, Dst    state.Addr
	SentAt      time.Duration
	DeliveredAt time.Duration
	Delivered   bool
}

// SendProbe injects a data packet at src, addressed to dst, and tracks its
// fate. Probes still undelivered when the run ends count as lost.
func (n *Network) SendProbe(src, dst state.Addr) error {
	r, ok := n.routers[src]
	if !ok {
		return fmt.Errorf("no router %s", src)
	}
	n.nextProbe++
	id := n.nextProbe
	n.probes[id] = &Probe{ID: id, Src: src, Dst: dst, SentAt: n.now}
	pkt := &state.Packet{
		Kind:    state.Data,
		Src:     src,
		Dst:     dst,
		Content: []byte(strconv.FormatUint(id, 10)),
	}
	// injected through the same path as any other packet: the engine
	// forwards it or drops it
	r.engine.HandlePacket(state.Port(-1), pkt)
	return nil
}

func (n *Network) completeProbe(pkt *state.Packet) {
	id, err := strconv.ParseUint(string(pkt.Content), 10, 64)
	if err != nil {
		n.log.Warn("data packet with unknown content", "src", pkt.Src, "dst", pkt.Dst)
		return
	}
	p, ok := n.probes[id]
	if !ok || p.Delivered {
		return
	}
	p.Delivered = true
	p.DeliveredAt = n.now
	n.log.Debug("probe delivered", "id", id, "src", p.Src, "dst", p.Dst, "rtt", n.now-p.SentAt)
}

// ProbeStats reports how many probes were injected and how many reached
// their destination so far.
func (n *Network) ProbeStats() (sent, delivered int) {
	sent = len(n.probes)
	for _, p := range n.probes {
		if p.Delivered {
			delivered++
		}
	}
	return sent, delivered
}
