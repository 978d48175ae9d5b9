package state

import "time"

// Protocol selects the route-computation engine for a scenario.
type Protocol string

const (
	ProtocolDV Protocol = "dv"
	ProtocolLS Protocol = "ls"
)

// Scenario event actions.
const (
	EventLinkUp   = "link_up"
	EventLinkDown = "link_down"
	EventProbe    = "probe"
)

// LinkCfg is one weighted, bidirectional link. Latency and loss shape
// delivery in the host network; Cost is what the protocols see.
type LinkCfg struct {
	A         Addr
	B         Addr
	Cost      Cost
	LatencyMs int64   `yaml:"latency_ms,omitempty"`
	Loss      float64 `yaml:",omitempty"`
}

func (l LinkCfg) Latency() time.Duration {
	return time.Duration(l.LatencyMs) * time.Millisecond
}

// EventCfg is a timed topology or traffic change applied while a scenario
// runs.
type EventCfg struct {
	AtMs   int64  `yaml:"at_ms"`
	Action string // link_up | link_down | probe
	A      Addr
	B      Addr
	Cost   Cost `yaml:",omitempty"`
}

func (e EventCfg) At() time.Duration {
	return time.Duration(e.AtMs) * time.Millisecond
}

// ScenarioCfg describes a simulated network: the routers, the weighted
// links between them, and what happens while the clock runs.
type ScenarioCfg struct {
	Name        string
	Protocols   []Protocol
	HeartbeatMs int64  `yaml:"heartbeat_ms,omitempty"`
	DurationMs  int64  `yaml:"duration_ms"`
	Seed        uint64 `yaml:",omitempty"`
	Nodes       []Addr
	Links       []LinkCfg
	Events      []EventCfg `yaml:",omitempty"`
}

func (c *ScenarioCfg) Heartbeat() time.Duration {
	if c.HeartbeatMs <= 0 {
		return DefaultHeartbeat
	}
	return time.Duration(c.HeartbeatMs) * time.Millisecond
}

func (c *ScenarioCfg) Duration() time.Duration {
	return time.Duration(c.DurationMs) * time.Millisecond
}

func (c *ScenarioCfg) HasNode(addr Addr) bool {
	for _, n := range c.Nodes {
		if n == addr {
			return true
		}
	}
	return false
}
