package sim

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/weftnet/weft/ls"
	"github.com/weftnet/weft/state"
)

func dvEngine(addr state.Addr, hb time.Duration, send state.Sender, log *slog.Logger) state.Engine {
	f, _ := engineFactory(state.ProtocolDV)
	return f(addr, hb, send, log)
}

func lsEngine(addr state.Addr, hb time.Duration, send state.Sender, log *slog.Logger) state.Engine {
	f, _ := engineFactory(state.ProtocolLS)
	return f(addr, hb, send, log)
}

func protocols() map[state.Protocol]NewEngineFunc {
	return map[state.Protocol]NewEngineFunc{
		state.ProtocolDV: dvEngine,
		state.ProtocolLS: lsEngine,
	}
}

func buildNet(t *testing.T, newEngine NewEngineFunc, nodes []state.Addr, links []state.LinkCfg) *Network {
	t.Helper()
	n := NewNetwork(Options{Heartbeat: 100 * time.Millisecond})
	for _, node := range nodes {
		assert.NoError(t, n.AddRouter(node, newEngine))
	}
	for _, l := range links {
		assert.NoError(t, n.Connect(l))
	}
	return n
}

// assertConverged checks every router's forwarding costs against the
// all-pairs reference over the live topology.
func assertConverged(t *testing.T, n *Network) {
	t.Helper()
	optimal := n.OptimalCosts()
	for _, addr := range n.Routers() {
		table := n.Table(addr)
		got := make(map[state.Addr]state.Cost, len(table))
		for dst, route := range table {
			got[dst] = route.Cost
		}
		want := make(map[state.Addr]state.Cost)
		for dst, cost := range optimal[addr] {
			if dst != addr && cost < state.Infinity {
				want[dst] = cost
			}
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("router %s not converged:\n%s", addr, diff)
		}
	}
}

func lineTopology() ([]state.Addr, []state.LinkCfg) {
	return []state.Addr{"a", "b", "c"},
		[]state.LinkCfg{
			{A: "a", B: "b", Cost: 1},
			{A: "b", B: "c", Cost: 1},
		}
}

func TestLineConvergence(t *testing.T) {
	for proto, newEngine := range protocols() {
		t.Run(string(proto), func(t *testing.T) {
			nodes, links := lineTopology()
			n := buildNet(t, newEngine, nodes, links)
			n.Run(2 * time.Second)
			assertConverged(t, n)

			// b reaches c directly at cost 1, a goes through b at cost 2
			assert.Equal(t, state.Cost(1), n.Table("b")["c"].Cost)
			assert.Equal(t, state.Cost(2), n.Table("a")["c"].Cost)
		})
	}
}

func TestWeightedMeshConvergence(t *testing.T) {
	nodes := []state.Addr{"bob", "jeb", "kat", "eve", "ada"}
	links := []state.LinkCfg{
		{A: "bob", B: "jeb", Cost: 2},
		{A: "bob", B: "kat", Cost: 3},
		{A: "bob", B: "eve", Cost: 12},
		{A: "jeb", B: "kat", Cost: 1},
		{A: "kat", B: "ada", Cost: 4},
		{A: "kat", B: "eve", Cost: 2},
		{A: "eve", B: "ada", Cost: 3},
	}
	for proto, newEngine := range protocols() {
		t.Run(string(proto), func(t *testing.T) {
			n := buildNet(t, newEngine, nodes, links)
			n.Run(3 * time.Second)
			assertConverged(t, n)

			// the expensive direct link loses to the path through kat
			assert.Equal(t, state.Cost(5), n.Table("bob")["eve"].Cost)
		})
	}
}

func TestLatencyStillConverges(t *testing.T) {
	for proto, newEngine := range protocols() {
		t.Run(string(proto), func(t *testing.T) {
			nodes, _ := lineTopology()
			links := []state.LinkCfg{
				{A: "a", B: "b", Cost: 1, LatencyMs: 20},
				{A: "b", B: "c", Cost: 1, LatencyMs: 35},
			}
			n := buildNet(t, newEngine, nodes, links)
			n.Run(3 * time.Second)
			assertConverged(t, n)
		})
	}
}

func TestLossyLinksSelfHeal(t *testing.T) {
	for proto, newEngine := range protocols() {
		t.Run(string(proto), func(t *testing.T) {
			nodes, _ := lineTopology()
			links := []state.LinkCfg{
				{A: "a", B: "b", Cost: 1, Loss: 0.2},
				{A: "b", B: "c", Cost: 1, Loss: 0.2},
			}
			n := NewNetwork(Options{Heartbeat: 100 * time.Millisecond, Seed: 7})
			for _, node := range nodes {
				assert.NoError(t, n.AddRouter(node, newEngine))
			}
			for _, l := range links {
				assert.NoError(t, n.Connect(l))
			}
			// heartbeats re-advertise every interval; dozens of tries make
			// it through even with every fifth packet lost
			n.Run(10 * time.Second)
			assertConverged(t, n)
		})
	}
}

func TestLinkRemovalCleanup(t *testing.T) {
	for proto, newEngine := range protocols() {
		t.Run(string(proto), func(t *testing.T) {
			nodes, links := lineTopology()
			n := buildNet(t, newEngine, nodes, links)
			n.Run(2 * time.Second)
			assert.Contains(t, n.Table("a"), state.Addr("c"))

			assert.NoError(t, n.Disconnect("b", "c"))
			// within one heartbeat interval the loss has propagated
			n.Run(n.Now() + 300*time.Millisecond)

			assert.NotContains(t, n.Table("a"), state.Addr("c"))
			assert.NotContains(t, n.Table("b"), state.Addr("c"))
			assertConverged(t, n)
		})
	}
}

func TestLinkAdditionShortens(t *testing.T) {
	for proto, newEngine := range protocols() {
		t.Run(string(proto), func(t *testing.T) {
			nodes, links := lineTopology()
			n := buildNet(t, newEngine, nodes, links)
			n.Run(2 * time.Second)
			assert.Equal(t, state.Cost(2), n.Table("a")["c"].Cost)

			assert.NoError(t, n.Connect(state.LinkCfg{A: "a", B: "c", Cost: 1}))
			n.Run(n.Now() + time.Second)
			assert.Equal(t, state.Cost(1), n.Table("a")["c"].Cost)
			assertConverged(t, n)
		})
	}
}

func TestProbeDelivery(t *testing.T) {
	for proto, newEngine := range protocols() {
		t.Run(string(proto), func(t *testing.T) {
			nodes, links := lineTopology()
			n := buildNet(t, newEngine, nodes, links)
			n.Run(2 * time.Second)

			assert.NoError(t, n.SendProbe("a", "c"))
			n.Run(n.Now() + 500*time.Millisecond)

			sent, delivered := n.ProbeStats()
			assert.Equal(t, 1, sent)
			assert.Equal(t, 1, delivered)
		})
	}
}

func TestProbeToUnreachableIsLost(t *testing.T) {
	nodes, links := lineTopology()
	n := buildNet(t, dvEngine, nodes, links)
	n.Run(2 * time.Second)
	assert.NoError(t, n.Disconnect("b", "c"))
	n.Run(n.Now() + 500*time.Millisecond)

	assert.NoError(t, n.SendProbe("a", "c"))
	n.Run(n.Now() + 500*time.Millisecond)
	sent, delivered := n.ProbeStats()
	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, delivered)
}

// floodCounter wraps a link-state engine and counts how many times each
// (origin, seq_num) pair is accepted into the database.
type floodCounter struct {
	*ls.Engine
	accepted map[string]int
}

func (f *floodCounter) HandlePacket(port state.Port, pkt *state.Packet) {
	if pkt.Kind != state.Routing {
		f.Engine.HandlePacket(port, pkt)
		return
	}
	adv, err := state.DecodeAdvert(pkt.Content)
	if err != nil {
		f.Engine.HandlePacket(port, pkt)
		return
	}
	before := f.SeqNum(adv.Src)
	f.Engine.HandlePacket(port, pkt)
	if f.SeqNum(adv.Src) != before {
		f.accepted[fmt.Sprintf("%s/%d", adv.Src, adv.SeqNum)]++
	}
}

func TestFloodTermination(t *testing.T) {
	counters := make(map[state.Addr]*floodCounter)
	newEngine := func(addr state.Addr, hb time.Duration, send state.Sender, log *slog.Logger) state.Engine {
		c := &floodCounter{
			Engine:   ls.New(addr, hb, send, log),
			accepted: make(map[string]int),
		}
		counters[addr] = c
		return c
	}

	// a cycle, so every advertisement has two ways around
	nodes := []state.Addr{"a", "b", "c", "d"}
	links := []state.LinkCfg{
		{A: "a", B: "b", Cost: 1},
		{A: "b", B: "c", Cost: 1},
		{A: "c", B: "d", Cost: 1},
		{A: "d", B: "a", Cost: 1},
	}
	n := buildNet(t, newEngine, nodes, links)
	n.Run(2 * time.Second)
	assertConverged(t, n)

	for addr, c := range counters {
		for key, count := range c.accepted {
			assert.LessOrEqual(t, count, 1, "router %s accepted %s more than once", addr, key)
		}
	}
}
