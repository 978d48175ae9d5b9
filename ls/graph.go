package ls

import (
	"container/heap"

	"github.com/weftnet/weft/state"
)

// graph is an undirected, edge-weighted adjacency map derived from the
// LSDB. It is rebuilt from scratch on every database change; topologies are
// small enough that a full rebuild beats incremental bookkeeping.
type graph map[state.Addr]map[state.Addr]state.Cost

func buildGraph(lsdb map[state.Addr]map[state.Addr]state.Cost) graph {
	g := make(graph)
	for router, neighbors := range lsdb {
		for neighbor, cost := range neighbors {
			g.addEdge(router, neighbor, cost)
		}
	}
	return g
}

func (g graph) addEdge(a, b state.Addr, cost state.Cost) {
	// the two directions of an edge can disagree while an update is in
	// flight; keep the cheaper one so rebuilds are deterministic
	if old, ok := g[a][b]; ok && old <= cost {
		return
	}
	g.set(a, b, cost)
	g.set(b, a, cost)
}

func (g graph) set(a, b state.Addr, cost state.Cost) {
	if g[a] == nil {
		g[a] = make(map[state.Addr]state.Cost)
	}
	g[a][b] = cost
}

type distItem struct {
	addr state.Addr
	dist state.Cost
}

type distHeap []distItem

func (h distHeap) Len() int { return len(h) }
func (h distHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].addr < h[j].addr
}
func (h distHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x any) { *h = append(*h, x.(distItem)) }
func (h *distHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// shortestPaths is Dijkstra from src over the adjacency map. It returns the
// distance to every reachable node and, for every node at least one hop
// away, the first hop on its shortest path. Equal-cost paths resolve to the
// lexicographically smallest first hop so results are stable between runs.
func (g graph) shortestPaths(src state.Addr) (map[state.Addr]state.Cost, map[state.Addr]state.Addr) {
	dist := map[state.Addr]state.Cost{src: 0}
	first := make(map[state.Addr]state.Addr)
	done := make(map[state.Addr]bool)

	pq := &distHeap{{addr: src, dist: 0}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(distItem)
		if done[cur.addr] || cur.dist > dist[cur.addr] {
			continue
		}
		done[cur.addr] = true
		for neighbor, cost := range g[cur.addr] {
			if done[neighbor] {
				continue
			}
			alt := cur.dist + cost
			hop := first[cur.addr]
			if cur.addr == src {
				hop = neighbor
			}
			old, seen := dist[neighbor]
			if !seen || alt < old || (alt == old && hop < first[neighbor]) {
				dist[neighbor] = alt
				first[neighbor] = hop
				heap.Push(pq, distItem{addr: neighbor, dist: alt})
			}
		}
	}
	return dist, first
}
