package sim

import "github.com/weftnet/weft/state"

// OptimalCosts computes all-pairs shortest-path costs over the live
// topology with Floyd-Warshall, independent of any engine's state. It is
// the reference a converged network is measured against. Unreachable pairs
// are absent; a router always reaches itself at cost zero.
func (n *Network) OptimalCosts() map[state.Addr]map[state.Addr]state.Cost {
	const unreachable = ^uint32(0)

	dist := make(map[state.Addr]map[state.Addr]uint32, len(n.order))
	for _, a := range n.order {
		dist[a] = make(map[state.Addr]uint32, len(n.order))
		for _, b := range n.order {
			if a == b {
				dist[a][b] = 0
			} else {
				dist[a][b] = unreachable
			}
		}
	}
	for _, l := range n.links {
		c := uint32(l.cfg.Cost)
		if c < dist[l.cfg.A][l.cfg.B] {
			dist[l.cfg.A][l.cfg.B] = c
			dist[l.cfg.B][l.cfg.A] = c
		}
	}
	for _, k := range n.order {
		for _, i := range n.order {
			if dist[i][k] == unreachable {
				continue
			}
			for _, j := range n.order {
				if dist[k][j] == unreachable {
					continue
				}
				if alt := dist[i][k] + dist[k][j]; alt < dist[i][j] {
					dist[i][j] = alt
				}
			}
		}
	}

	costs := make(map[state.Addr]map[state.Addr]state.Cost, len(n.order))
	for a, row := range dist {
		costs[a] = make(map[state.Addr]state.Cost)
		for b, d := range row {
			if d != unreachable {
				costs[a][b] = state.Cost(d)
			}
		}
	}
	return costs
}
