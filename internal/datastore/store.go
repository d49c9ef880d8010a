// Package datastore holds the in-memory collections a server exposes.
//
// A Store is not safe for concurrent use and its methods are not reentrant:
// callers must guarantee a single writer at a time and must not read while a
// write is in progress. The HTTP layer enforces this with a read/write lock
// around GraphQL execution.
package datastore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/eurisko-info-lab/json-graphql-server/internal/jsonvalue"
)

// Record is a single entry of a collection. It is an alias so records flow
// through GraphQL default resolvers as plain maps.
type Record = map[string]any

// ErrIndexOutOfRange is returned by positional operations given a bad index.
var ErrIndexOutOfRange = errors.New("index out of range")

// Collection is an ordered, indexable sequence of records.
type Collection struct {
	key     string
	records []Record
}

// Key returns the collection key, e.g. "posts".
func (c *Collection) Key() string {
	return c.key
}

// Len returns the number of records.
func (c *Collection) Len() int {
	return len(c.records)
}

// At returns the record at index i.
func (c *Collection) At(i int) (Record, error) {
	if i < 0 || i >= len(c.records) {
		return nil, fmt.Errorf("%s[%d]: %w", c.key, i, ErrIndexOutOfRange)
	}
	return c.records[i], nil
}

// Records returns the records in order. The slice is a copy; the records
// themselves are shared with the collection.
func (c *Collection) Records() []Record {
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Last returns the final record.
func (c *Collection) Last() (Record, bool) {
	if len(c.records) == 0 {
		return nil, false
	}
	return c.records[len(c.records)-1], true
}

// IndexOf returns the index of the first record whose id matches, or -1.
func (c *Collection) IndexOf(id any) int {
	for i, record := range c.records {
		if jsonvalue.IDsEqual(record["id"], id) {
			return i
		}
	}
	return -1
}

// Find returns the first record whose id matches.
func (c *Collection) Find(id any) (Record, bool) {
	if i := c.IndexOf(id); i >= 0 {
		return c.records[i], true
	}
	return nil, false
}

// InsertAt places record at index i, shifting later records.
func (c *Collection) InsertAt(i int, record Record) error {
	if i < 0 || i > len(c.records) {
		return fmt.Errorf("%s insert at %d: %w", c.key, i, ErrIndexOutOfRange)
	}
	c.records = append(c.records, nil)
	copy(c.records[i+1:], c.records[i:])
	c.records[i] = record
	return nil
}

// Append adds record at the end of the collection.
func (c *Collection) Append(record Record) {
	c.records = append(c.records, record)
}

// ReplaceAt swaps the record at index i for record.
func (c *Collection) ReplaceAt(i int, record Record) error {
	if i < 0 || i >= len(c.records) {
		return fmt.Errorf("%s replace at %d: %w", c.key, i, ErrIndexOutOfRange)
	}
	c.records[i] = record
	return nil
}

// RemoveAt deletes and returns the record at index i.
func (c *Collection) RemoveAt(i int) (Record, error) {
	if i < 0 || i >= len(c.records) {
		return nil, fmt.Errorf("%s remove at %d: %w", c.key, i, ErrIndexOutOfRange)
	}
	removed := c.records[i]
	copy(c.records[i:], c.records[i+1:])
	c.records[len(c.records)-1] = nil
	c.records = c.records[:len(c.records)-1]
	return removed, nil
}

// Store maps collection keys to collections. Keys are fixed at construction.
type Store struct {
	collections map[string]*Collection
	keys        []string
}

// New builds a store that owns data. Callers must not keep using the
// slices they passed in.
func New(data map[string][]Record) *Store {
	s := &Store{
		collections: make(map[string]*Collection, len(data)),
		keys:        make([]string, 0, len(data)),
	}
	for key, records := range data {
		if records == nil {
			records = []Record{}
		}
		s.collections[key] = &Collection{key: key, records: records}
		s.keys = append(s.keys, key)
	}
	sort.Strings(s.keys)
	return s
}

// Keys returns the collection keys in lexical order.
func (s *Store) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Collection returns the collection for key.
func (s *Store) Collection(key string) (*Collection, bool) {
	c, ok := s.collections[key]
	return c, ok
}

// Counts returns the record count of every collection.
func (s *Store) Counts() map[string]int {
	out := make(map[string]int, len(s.collections))
	for key, c := range s.collections {
		out[key] = c.Len()
	}
	return out
}
