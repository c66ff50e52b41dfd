package stream

import (
	"testing"

	"akashwatch/models"
)

func noopCallback(models.Event) {}

func TestRegistryAddRemove(t *testing.T) {
	r := newRegistry()
	if r.count() != 0 {
		t.Fatalf("fresh registry count = %d", r.count())
	}

	sub := &subscription{id: newSubscriptionID(), query: "q1", callback: noopCallback}
	r.add(sub)
	if r.count() != 1 {
		t.Fatalf("count after add = %d", r.count())
	}

	got, ok := r.remove(sub.id)
	if !ok || got.query != "q1" {
		t.Fatalf("remove returned %v, %v", got, ok)
	}
	if r.count() != 0 {
		t.Fatalf("count after remove = %d", r.count())
	}
}

func TestRegistryRemoveUnknownIsNoop(t *testing.T) {
	r := newRegistry()
	r.add(&subscription{id: "a", query: "q", callback: noopCallback})

	if _, ok := r.remove("unknown"); ok {
		t.Fatal("unknown id must not remove anything")
	}
	if r.count() != 1 {
		t.Fatalf("count changed on unknown remove: %d", r.count())
	}
}

func TestRegistryListPreservesOrder(t *testing.T) {
	r := newRegistry()
	ids := []string{"first", "second", "third"}
	for _, id := range ids {
		r.add(&subscription{id: id, query: "q-" + id, callback: noopCallback})
	}

	list := r.list()
	if len(list) != 3 {
		t.Fatalf("list length = %d", len(list))
	}
	for i, sub := range list {
		if sub.id != ids[i] {
			t.Errorf("list[%d].id = %q, want %q", i, sub.id, ids[i])
		}
	}

	// Removal keeps the relative order of the remaining entries.
	r.remove("second")
	list = r.list()
	if len(list) != 2 || list[0].id != "first" || list[1].id != "third" {
		t.Fatalf("unexpected order after remove: %v", []string{list[0].id, list[1].id})
	}
}

func TestRegistryClear(t *testing.T) {
	r := newRegistry()
	r.add(&subscription{id: "a", query: "q", callback: noopCallback})
	r.add(&subscription{id: "b", query: "q", callback: noopCallback})

	r.clear()
	if r.count() != 0 {
		t.Fatalf("count after clear = %d", r.count())
	}
	if len(r.list()) != 0 {
		t.Fatal("list after clear must be empty")
	}
}

func TestNewSubscriptionIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := newSubscriptionID()
		if seen[id] {
			t.Fatalf("duplicate subscription id %q", id)
		}
		seen[id] = true
	}
}
