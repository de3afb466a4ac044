// Package inmemory implements cache.Cache entirely in memory, grounded on
// the teacher's evaluation/evalresult/inmemory/inmemory.go sync.Map-backed
// fake. It is used by engine and session tests that don't want filesystem
// side effects.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/qaorchestrator/haio/cache"
	"github.com/qaorchestrator/haio/fingerprint"
	"github.com/qaorchestrator/haio/question"
)

type bucket struct {
	dataList question.Data
	records  map[string]cache.Record // id -> record
	order    []string                // insertion order of records, for first-unused lookup
}

// firstUnused scans b.records in insertion order and returns the first
// record whose worker matches and whose id is not yet reserved. Go map
// iteration order is randomized, so order is tracked explicitly to match
// spec.md §4.3's "the first CacheRecord" requirement deterministically.
func (b *bucket) firstUnused(worker string, reservations *cache.Reservations) (cache.Record, bool) {
	for _, id := range b.order {
		rec, ok := b.records[id]
		if !ok {
			continue
		}
		if rec.Worker == worker && !reservations.Contains(id) {
			return rec, true
		}
	}
	return cache.Record{}, false
}

// Cache is an in-memory cache.Cache implementation, one instance per
// template fingerprint bucket map.
type Cache struct {
	mu         sync.Mutex
	byTemplate map[string]map[string]*bucket // template fp -> data fp -> bucket
}

var _ cache.Cache = (*Cache)(nil)

// New builds an empty in-memory Cache.
func New() *Cache {
	return &Cache{byTemplate: make(map[string]map[string]*bucket)}
}

func (c *Cache) bucketFor(t question.Template, d question.Data) (*bucket, error) {
	tfp, err := fingerprint.FP(t)
	if err != nil {
		return nil, fmt.Errorf("fingerprint template: %w", err)
	}
	dfp, err := fingerprint.FP(d)
	if err != nil {
		return nil, fmt.Errorf("fingerprint data list: %w", err)
	}
	byData, ok := c.byTemplate[tfp]
	if !ok {
		byData = make(map[string]*bucket)
		c.byTemplate[tfp] = byData
	}
	b, ok := byData[dfp]
	if !ok {
		b = &bucket{dataList: d, records: make(map[string]cache.Record)}
		byData[dfp] = b
	}
	return b, nil
}

// Reserve implements cache.Cache.
func (c *Cache) Reserve(_ context.Context, t question.Template, d question.Data, worker string, reservations *cache.Reservations) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.bucketFor(t, d)
	if err != nil {
		return "", false, err
	}
	if rec, found := b.firstUnused(worker, reservations); found {
		reservations.Add(rec.ID)
		return rec.ID, true, nil
	}
	id := fingerprint.UID()
	reservations.Add(id)
	return id, false, nil
}

// FindUnused implements cache.Cache.
func (c *Cache) FindUnused(t question.Template, d question.Data, worker string, reservations *cache.Reservations) (cache.Record, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.bucketFor(t, d)
	if err != nil {
		return cache.Record{}, false, err
	}
	if rec, found := b.firstUnused(worker, reservations); found {
		return rec, true, nil
	}
	return cache.Record{}, false, nil
}

// Store implements cache.Cache.
func (c *Cache) Store(_ context.Context, t question.Template, d question.Data, worker, id, answer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.bucketFor(t, d)
	if err != nil {
		return err
	}
	if _, exists := b.records[id]; !exists {
		b.order = append(b.order, id)
	}
	b.records[id] = cache.Record{ID: id, Worker: worker, Answer: answer}
	return nil
}
