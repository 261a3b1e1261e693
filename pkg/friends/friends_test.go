package friends

import (
	"testing"

	"github.com/WebFirstLanguage/ssbnet/pkg/typedcontent"
)

func follow(dest string) typedcontent.Contact {
	d := dest
	yes := true
	return typedcontent.Contact{Contact: &d, Following: &yes}
}

func block(dest string) typedcontent.Contact {
	d := dest
	yes := true
	return typedcontent.Contact{Contact: &d, Blocking: &yes}
}

func TestApplyAndIsFollowing(t *testing.T) {
	g := NewGraph()
	g.Apply("alice", follow("bob"))
	if !g.IsFollowing("alice", "bob") {
		t.Fatal("expected alice to follow bob")
	}
	if g.IsFollowing("bob", "alice") {
		t.Fatal("bob should not follow alice")
	}
}

func TestUnfollowRemovesEdge(t *testing.T) {
	g := NewGraph()
	g.Apply("alice", follow("bob"))
	no := false
	dest := "bob"
	g.Apply("alice", typedcontent.Contact{Contact: &dest, Following: &no})
	if g.IsFollowing("alice", "bob") {
		t.Fatal("expected edge to be removed")
	}
}

func TestIsBlocking(t *testing.T) {
	g := NewGraph()
	g.Apply("alice", block("mallory"))
	if !g.IsBlocking("alice", "mallory") {
		t.Fatal("expected alice to block mallory")
	}
	blocks := g.Blocks("alice")
	if len(blocks) != 1 || blocks[0] != "mallory" {
		t.Fatalf("Blocks() = %v, want [mallory]", blocks)
	}
}

func TestHopsBFS(t *testing.T) {
	g := NewGraph()
	g.Apply("alice", follow("bob"))
	g.Apply("bob", follow("carol"))
	g.Apply("carol", follow("dave"))

	hops := g.Hops("alice", 0)
	if hops["alice"] != 0 {
		t.Fatalf("alice hops = %d, want 0", hops["alice"])
	}
	if hops["bob"] != 1 {
		t.Fatalf("bob hops = %d, want 1", hops["bob"])
	}
	if hops["carol"] != 2 {
		t.Fatalf("carol hops = %d, want 2", hops["carol"])
	}
	if hops["dave"] != 3 {
		t.Fatalf("dave hops = %d, want 3", hops["dave"])
	}
}

func TestHopsRespectsMaxDepth(t *testing.T) {
	g := NewGraph()
	g.Apply("alice", follow("bob"))
	g.Apply("bob", follow("carol"))

	hops := g.Hops("alice", 1)
	if _, ok := hops["carol"]; ok {
		t.Fatal("carol should not be reachable within 1 hop")
	}
	if hops["bob"] != 1 {
		t.Fatalf("bob hops = %d, want 1", hops["bob"])
	}
}

func TestHopsExcludesBlockedIds(t *testing.T) {
	g := NewGraph()
	g.Apply("alice", follow("mallory"))
	g.Apply("alice", block("mallory"))

	hops := g.Hops("alice", 0)
	if _, ok := hops["mallory"]; ok {
		t.Fatal("mallory should be excluded once blocked")
	}
}
