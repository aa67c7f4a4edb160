package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/mosarlab/graphrag/internal/core/domain"
)

func TestMemoryAnswerRoundTrip(t *testing.T) {
	m := NewMemory(Options{})

	if _, ok := m.GetAnswer("q1"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	answer := &domain.Answer{Text: "FuncR_S110 is a launch requirement."}
	m.SetAnswer("q1", answer)

	got, ok := m.GetAnswer("q1")
	if !ok {
		t.Fatal("expected hit after set")
	}
	if got.Text != answer.Text {
		t.Errorf("answer = %q", got.Text)
	}

	stats := m.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", stats)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewMemory(Options{TTL: time.Minute, now: clock})

	m.SetRows("query-key", []domain.GraphRow{{"requirement_id": "FuncR_S110"}})
	if _, ok := m.GetRows("query-key"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := m.GetRows("query-key"); ok {
		t.Fatal("expected miss after TTL")
	}
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	m := NewMemory(Options{PassageSize: 2})

	m.SetPassages("a", []domain.Passage{{Title: "a"}})
	m.SetPassages("b", []domain.Passage{{Title: "b"}})

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := m.GetPassages("a"); !ok {
		t.Fatal("expected hit for a")
	}

	m.SetPassages("c", []domain.Passage{{Title: "c"}})

	if _, ok := m.GetPassages("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := m.GetPassages("a"); !ok {
		t.Error("a should have survived")
	}
	if _, ok := m.GetPassages("c"); !ok {
		t.Error("c should be present")
	}

	if got := m.Stats().Evictions; got != 1 {
		t.Errorf("evictions = %d, want 1", got)
	}
}

func TestMemorySetUpdatesExisting(t *testing.T) {
	m := NewMemory(Options{AnswerSize: 1})

	m.SetAnswer("q", &domain.Answer{Text: "first"})
	m.SetAnswer("q", &domain.Answer{Text: "second"})

	got, ok := m.GetAnswer("q")
	if !ok || got.Text != "second" {
		t.Fatalf("got %+v, want updated answer", got)
	}
	if evictions := m.Stats().Evictions; evictions != 0 {
		t.Errorf("evictions = %d, update must not evict", evictions)
	}
}

func TestMemorySegmentsAreIndependent(t *testing.T) {
	m := NewMemory(Options{})

	m.SetAnswer("same-key", &domain.Answer{Text: "answer"})
	if _, ok := m.GetPassages("same-key"); ok {
		t.Error("passage segment must not see answer entries")
	}
	if _, ok := m.GetRows("same-key"); ok {
		t.Error("row segment must not see answer entries")
	}
}

func TestMemoryEntriesCount(t *testing.T) {
	m := NewMemory(Options{})
	for i := 0; i < 4; i++ {
		m.SetRows(fmt.Sprintf("k%d", i), []domain.GraphRow{})
	}
	if got := m.Stats().Entries; got != 4 {
		t.Errorf("entries = %d, want 4", got)
	}
}
