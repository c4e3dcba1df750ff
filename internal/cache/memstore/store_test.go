package memstore

import (
	"context"
	"testing"
)

func TestStore_GetSet(t *testing.T) {
	s, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("unexpected hit on empty store")
	}
	if err := s.Set(ctx, "k", []byte("doc")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(v) != "doc" {
		t.Fatalf("Get got=%q ok=%v err=%v", v, ok, err)
	}
}

func TestStore_EvictsBeyondSize(t *testing.T) {
	s, _ := New(2)
	ctx := context.Background()
	_ = s.Set(ctx, "a", []byte("1"))
	_ = s.Set(ctx, "b", []byte("2"))
	_ = s.Set(ctx, "c", []byte("3"))
	if s.Len() != 2 {
		t.Fatalf("len=%d want 2", s.Len())
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
}
