// Package memstore is the in-process capability cache tier.
package memstore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/cache"
)

const DefaultSize = 1024

type Store struct {
	lru *lru.Cache[string, []byte]
}

var _ cache.Store = (*Store)(nil)

// New returns a bounded store. Entries have no time expiry; they live until
// the process exits or the size bound evicts them.
func New(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("memstore: %w", err)
	}
	return &Store{lru: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.lru.Get(key)
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, key string, val []byte) error {
	s.lru.Add(key, val)
	return nil
}

func (s *Store) Len() int { return s.lru.Len() }
