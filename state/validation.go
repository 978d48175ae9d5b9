package state

import (
	"fmt"
	"regexp"
)

var namePattern = regexp.MustCompile("^[0-9a-zA-Z._-]+$")

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%q is not a valid router name, must match %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(%q) = %d > 100 is too long", s, len(s))
	}
	return nil
}

func linkCostValidator(c Cost) error {
	if c == 0 {
		return fmt.Errorf("link cost must be positive")
	}
	if c >= Infinity {
		return fmt.Errorf("link cost %d must be below %d", c, Infinity)
	}
	return nil
}

// ScenarioValidator checks a scenario before the host builds a network
// from it.
func ScenarioValidator(cfg *ScenarioCfg) error {
	if len(cfg.Protocols) == 0 {
		return fmt.Errorf("scenario must name at least one protocol")
	}
	for _, p := range cfg.Protocols {
		if p != ProtocolDV && p != ProtocolLS {
			return fmt.Errorf("unknown protocol %q", p)
		}
	}
	if cfg.DurationMs <= 0 {
		return fmt.Errorf("duration_ms must be positive")
	}
	if len(cfg.Nodes) == 0 {
		return fmt.Errorf("scenario must define at least one node")
	}
	seen := make(map[Addr]bool)
	for _, n := range cfg.Nodes {
		if err := NameValidator(string(n)); err != nil {
			return err
		}
		if seen[n] {
			return fmt.Errorf("duplicate node %s", n)
		}
		seen[n] = true
	}
	edges := make(map[[2]Addr]bool)
	for _, l := range cfg.Links {
		if err := validateEdge(cfg, l.A, l.B); err != nil {
			return err
		}
		if err := linkCostValidator(l.Cost); err != nil {
			return fmt.Errorf("link %s-%s: %w", l.A, l.B, err)
		}
		if l.LatencyMs < 0 {
			return fmt.Errorf("link %s-%s: latency_ms must not be negative", l.A, l.B)
		}
		if l.Loss < 0 || l.Loss >= 1 {
			return fmt.Errorf("link %s-%s: loss must be in [0, 1)", l.A, l.B)
		}
		key := edgeKey(l.A, l.B)
		if edges[key] {
			return fmt.Errorf("duplicate link %s-%s", l.A, l.B)
		}
		edges[key] = true
	}
	for i, e := range cfg.Events {
		if e.AtMs < 0 || e.AtMs > cfg.DurationMs {
			return fmt.Errorf("event %d: at_ms %d outside scenario duration", i, e.AtMs)
		}
		switch e.Action {
		case EventLinkUp:
			if err := validateEdge(cfg, e.A, e.B); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
			if err := linkCostValidator(e.Cost); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
		case EventLinkDown, EventProbe:
			if err := validateEdge(cfg, e.A, e.B); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
		default:
			return fmt.Errorf("event %d: unknown action %q", i, e.Action)
		}
	}
	return nil
}

func validateEdge(cfg *ScenarioCfg, a, b Addr) error {
	if !cfg.HasNode(a) {
		return fmt.Errorf("node %s not defined", a)
	}
	if !cfg.HasNode(b) {
		return fmt.Errorf("node %s not defined", b)
	}
	if a == b {
		return fmt.Errorf("node %s cannot link to itself", a)
	}
	return nil
}

func edgeKey(a, b Addr) [2]Addr {
	if b < a {
		a, b = b, a
	}
	return [2]Addr{a, b}
}
