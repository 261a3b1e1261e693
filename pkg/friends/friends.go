// Package friends maintains the directed follow/block graph derived from
// "contact"-typed feed content (pkg/typedcontent.Contact) and answers the
// friends.blocks / friends.hops / friends.isFollowing / friends.isBlocking
// queries of spec §4.7. It has no persistence of its own: callers replay a
// feed's contact messages through Apply to rebuild the graph, the same way
// the original implementation's friends graph is a derived view, not a
// stored one.
package friends

import (
	"sync"

	"github.com/WebFirstLanguage/ssbnet/pkg/typedcontent"
)

// Graph is an in-memory directed adjacency list of follow and block edges,
// adapted from the bucketed node map in internal/dht/routing_table.go —
// generalized from Kademlia XOR-distance buckets to two plain
// source->dest->bool edge maps, since the friends graph has no notion of
// distance, only reachability.
type Graph struct {
	mu        sync.RWMutex
	following map[string]map[string]bool
	blocking  map[string]map[string]bool
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		following: make(map[string]map[string]bool),
		blocking:  make(map[string]map[string]bool),
	}
}

// Apply folds one author's "contact" message into the graph. Messages with
// no "contact" target are ignored; a following/blocking value of false
// removes the corresponding edge rather than recording a negative one, since
// spec §4.7's isFollowing/isBlocking are plain reachability checks.
func (g *Graph) Apply(author string, c typedcontent.Contact) {
	if c.Contact == nil {
		return
	}
	dest := *c.Contact

	g.mu.Lock()
	defer g.mu.Unlock()

	if c.Following != nil {
		setEdge(g.following, author, dest, *c.Following)
	}
	if c.Blocking != nil {
		setEdge(g.blocking, author, dest, *c.Blocking)
	}
}

func setEdge(edges map[string]map[string]bool, source, dest string, value bool) {
	if !value {
		if m, ok := edges[source]; ok {
			delete(m, dest)
		}
		return
	}
	m, ok := edges[source]
	if !ok {
		m = make(map[string]bool)
		edges[source] = m
	}
	m[dest] = true
}

// IsFollowing reports whether source has a live "following" edge to dest.
func (g *Graph) IsFollowing(source, dest string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.following[source][dest]
}

// IsBlocking reports whether source has a live "blocking" edge to dest.
func (g *Graph) IsBlocking(source, dest string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.blocking[source][dest]
}

// Blocks returns every id source has blocked.
func (g *Graph) Blocks(source string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for dest := range g.blocking[source] {
		out = append(out, dest)
	}
	return out
}

// Hops returns the shortest follow-distance from start to every id
// reachable within max hops (max <= 0 means unbounded), by breadth-first
// search over the "following" edges. start itself is distance 0. Ids
// start has blocked are omitted even if also reachable by following,
// matching the usual "blocks override follows" rule for hop distance.
func (g *Graph) Hops(start string, max int) map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dist := map[string]int{start: 0}
	blocked := g.blocking[start]
	type item struct {
		id   string
		hops int
	}
	queue := []item{{id: start, hops: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if max > 0 && cur.hops >= max {
			continue
		}
		for dest := range g.following[cur.id] {
			if blocked[dest] {
				continue
			}
			if _, seen := dist[dest]; seen {
				continue
			}
			dist[dest] = cur.hops + 1
			queue = append(queue, item{id: dest, hops: cur.hops + 1})
		}
	}
	return dist
}
