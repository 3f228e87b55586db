package cluster_test

import (
	"fmt"
	"testing"

	"arena-service/internal/service/cluster"
)

func TestLocateDeterministic(t *testing.T) {
	r := cluster.NewRing(0)
	r.Add("n1")
	r.Add("n2")
	r.Add("n3")

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("player-%d", i)
		first, ok := r.Locate(key)
		if !ok {
			t.Fatalf("no node for %s", key)
		}
		for j := 0; j < 5; j++ {
			again, _ := r.Locate(key)
			if again != first {
				t.Fatalf("lookup for %s not stable: %s then %s", key, first, again)
			}
		}
	}
}

func TestLocateEmptyRing(t *testing.T) {
	r := cluster.NewRing(0)
	if _, ok := r.Locate("p1"); ok {
		t.Fatal("empty ring must not resolve")
	}
	if _, ok := r.LocateBackup("p1"); ok {
		t.Fatal("empty ring must not resolve a backup")
	}
}

func TestLocateBackupDistinct(t *testing.T) {
	r := cluster.NewRing(0)
	r.Add("n1")
	r.Add("n2")
	r.Add("n3")

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("player-%d", i)
		primary, _ := r.Locate(key)
		backup, ok := r.LocateBackup(key)
		if !ok {
			t.Fatalf("no backup for %s", key)
		}
		if backup == primary {
			t.Fatalf("backup must differ from primary for %s", key)
		}
	}
}

func TestLocateBackupSingleNode(t *testing.T) {
	r := cluster.NewRing(0)
	r.Add("n1")
	if _, ok := r.LocateBackup("p1"); ok {
		t.Fatal("single-node ring has no distinct backup")
	}
}

func TestMinimalChurnOnRemoval(t *testing.T) {
	r := cluster.NewRing(0)
	r.Add("n1")
	r.Add("n2")
	r.Add("n3")

	before := make(map[string]string)
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("player-%d", i)
		before[key], _ = r.Locate(key)
	}

	r.Remove("n2")

	moved := 0
	for key, owner := range before {
		after, _ := r.Locate(key)
		if owner == "n2" {
			if after == "n2" {
				t.Fatalf("%s still mapped to removed node", key)
			}
			continue
		}
		if after != owner {
			moved++
		}
	}
	// Consistent hashing: keys not owned by the removed node stay put.
	if moved != 0 {
		t.Fatalf("%d keys moved off surviving nodes", moved)
	}
}

func TestRemoveAbsentNodeNoop(t *testing.T) {
	r := cluster.NewRing(0)
	r.Add("n1")
	r.Remove("ghost")
	r.Remove("n1")
	r.Remove("n1") // second removal is a no-op

	if got := r.Nodes(); len(got) != 0 {
		t.Fatalf("expected empty ring, got %v", got)
	}
}
