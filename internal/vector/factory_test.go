package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewStore_Memory(t *testing.T) {
	s, err := NewStore(Options{Backend: "memory", SnapshotPath: filepath.Join(t.TempDir(), "v.bin")})
	if err != nil {
		t.Fatalf("NewStore(memory): %v", err)
	}
	defer s.Close()
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("got %T, want *MemoryStore", s)
	}
}

func TestNewStore_EmptyDefaultsToMemory(t *testing.T) {
	s, err := NewStore(Options{})
	if err != nil {
		t.Fatalf("NewStore(''): %v", err)
	}
	defer s.Close()
	c, err := s.GetOrCreateCollection(context.Background(), "x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Count(context.Background()); n != 0 {
		t.Errorf("Count=%d, want 0", n)
	}
}

func TestNewStore_Unknown(t *testing.T) {
	if _, err := NewStore(Options{Backend: "faiss"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
