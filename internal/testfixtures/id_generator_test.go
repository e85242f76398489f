package testfixtures

import (
	"sync"
	"testing"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("res")

	first := gen.Next()
	second := gen.Next()

	if first != "res-1" || second != "res-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if gen.Issued() != 2 {
		t.Fatalf("expected 2 issued, got %d", gen.Issued())
	}
}

func TestIDGeneratorIsUniqueUnderConcurrency(t *testing.T) {
	gen := NewIDGenerator("")
	seen := sync.Map{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Next()
			if _, dup := seen.LoadOrStore(id, true); dup {
				t.Errorf("duplicate id %q", id)
			}
		}()
	}
	wg.Wait()

	if gen.Issued() != 50 {
		t.Fatalf("expected 50 issued, got %d", gen.Issued())
	}
}
