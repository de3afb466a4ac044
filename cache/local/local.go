// Package local implements cache.Cache as one JSON file per template
// fingerprint under a haio_cache directory, written atomically (temp file
// + rename) exactly as the teacher's
// evaluation/evalresult/local/local.go writes its result files, and
// serialized by an in-process mutex per cache instance. Store always
// re-reads the file before writing, per spec.md §5's "Cache concurrency"
// note, so external concurrent sessions tolerate last-write-wins.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/qaorchestrator/haio/cache"
	"github.com/qaorchestrator/haio/fingerprint"
	"github.com/qaorchestrator/haio/question"
)

// DefaultDir is the cache directory name used when no WithDir option is
// supplied, matching spec.md §6's "haio_cache beside the invoking program".
const DefaultDir = "haio_cache"

type options struct {
	dir string
}

// Option configures a Cache.
type Option func(*options)

// WithDir overrides DefaultDir.
func WithDir(dir string) Option { return func(o *options) { o.dir = dir } }

// fileRecord is the on-disk shape of a single cache record, matching
// spec.md §6's `{ "client": K, "answer": A }`.
type fileRecord struct {
	Client string `json:"client"`
	Answer string `json:"answer"`
}

// dataListEntry is the on-disk shape for one fp(D) bucket. Order records
// answer_list insertion order explicitly (Go map iteration order is
// randomized, unlike the Python original's insertion-ordered dict) so
// Reserve/FindUnused can return "the first CacheRecord" per spec.md §4.3
// deterministically.
type dataListEntry struct {
	DataList   question.Data         `json:"data_list"`
	AnswerList map[string]fileRecord `json:"answer_list"`
	Order      []string              `json:"order"`
}

// firstUnused scans entry's answer_list in insertion order and returns the
// first record whose worker matches and whose id is not yet reserved.
func (entry dataListEntry) firstUnused(worker string, reservations *cache.Reservations) (string, fileRecord, bool) {
	for _, id := range entry.Order {
		rec, ok := entry.AnswerList[id]
		if !ok {
			continue
		}
		if rec.Client == worker && !reservations.Contains(id) {
			return id, rec, true
		}
	}
	return "", fileRecord{}, false
}

// fileContents is the on-disk shape of one template's cache file, matching
// spec.md §6's layout plus the "order" list each data-list entry carries.
type fileContents struct {
	QuestionTemplate question.Template        `json:"question_template"`
	DataLists        map[string]dataListEntry `json:"data_lists"`
}

// Cache is a file-backed cache.Cache implementation.
type Cache struct {
	dir string
	mu  sync.Mutex
}

var _ cache.Cache = (*Cache)(nil)

// New builds a Cache rooted at DefaultDir unless overridden.
func New(opts ...Option) *Cache {
	cfg := options{dir: DefaultDir}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache{dir: cfg.dir}
}

func (c *Cache) pathFor(t question.Template) (string, error) {
	fp, err := fingerprint.FP(t)
	if err != nil {
		return "", fmt.Errorf("fingerprint template: %w", err)
	}
	return filepath.Join(c.dir, fp), nil
}

func (c *Cache) read(path string) (fileContents, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fileContents{DataLists: make(map[string]dataListEntry)}, nil
	}
	if err != nil {
		return fileContents{}, fmt.Errorf("read cache file: %w", err)
	}
	var fc fileContents
	if err := json.Unmarshal(raw, &fc); err != nil {
		return fileContents{}, fmt.Errorf("decode cache file: %w", err)
	}
	if fc.DataLists == nil {
		fc.DataLists = make(map[string]dataListEntry)
	}
	return fc, nil
}

func (c *Cache) write(path string, fc fileContents) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	raw, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp cache file: %w", err)
	}
	return nil
}

// Reserve implements cache.Cache.
func (c *Cache) Reserve(_ context.Context, t question.Template, d question.Data, worker string, reservations *cache.Reservations) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path, err := c.pathFor(t)
	if err != nil {
		return "", false, err
	}
	fc, err := c.read(path)
	if err != nil {
		return "", false, err
	}

	dfp, err := fingerprint.FP(d)
	if err != nil {
		return "", false, fmt.Errorf("fingerprint data list: %w", err)
	}

	entry, ok := fc.DataLists[dfp]
	if !ok {
		entry = dataListEntry{DataList: d, AnswerList: make(map[string]fileRecord)}
	}

	if id, _, found := entry.firstUnused(worker, reservations); found {
		reservations.Add(id)
		return id, true, nil
	}

	id := fingerprint.UID()
	reservations.Add(id)
	return id, false, nil
}

// FindUnused implements cache.Cache.
func (c *Cache) FindUnused(t question.Template, d question.Data, worker string, reservations *cache.Reservations) (cache.Record, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path, err := c.pathFor(t)
	if err != nil {
		return cache.Record{}, false, err
	}
	fc, err := c.read(path)
	if err != nil {
		return cache.Record{}, false, err
	}

	dfp, err := fingerprint.FP(d)
	if err != nil {
		return cache.Record{}, false, fmt.Errorf("fingerprint data list: %w", err)
	}

	entry, ok := fc.DataLists[dfp]
	if !ok {
		return cache.Record{}, false, nil
	}
	if id, rec, found := entry.firstUnused(worker, reservations); found {
		return cache.Record{ID: id, Worker: rec.Client, Answer: rec.Answer}, true, nil
	}
	return cache.Record{}, false, nil
}

// Store implements cache.Cache, re-reading the file before writing so a
// crash or concurrent external writer between read and write only risks an
// orphaned entry, never data loss of a previously stored record.
func (c *Cache) Store(_ context.Context, t question.Template, d question.Data, worker, id, answer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path, err := c.pathFor(t)
	if err != nil {
		return err
	}
	fc, err := c.read(path)
	if err != nil {
		return err
	}
	fc.QuestionTemplate = t

	dfp, err := fingerprint.FP(d)
	if err != nil {
		return fmt.Errorf("fingerprint data list: %w", err)
	}
	entry, ok := fc.DataLists[dfp]
	if !ok {
		entry = dataListEntry{DataList: d, AnswerList: make(map[string]fileRecord)}
	}
	if _, exists := entry.AnswerList[id]; !exists {
		entry.Order = append(entry.Order, id)
	}
	entry.AnswerList[id] = fileRecord{Client: worker, Answer: answer}
	fc.DataLists[dfp] = entry

	return c.write(path, fc)
}
