// Package query evaluates list arguments (filter, sort and pagination)
// against in-memory records. It has no knowledge of the GraphQL schema.
package query

import (
	"strings"
	"time"

	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/jsonvalue"
)

// Filter keys with special meaning.
const (
	SearchKey = "q"
	IDsKey    = "ids"
)

// comparator reports whether a stored value passes a filter value.
type comparator func(stored, want any) bool

// suffixes are tested in order, so _lte is matched before _lt.
var suffixes = []struct {
	suffix  string
	compare comparator
}{
	{"_neq", func(stored, want any) bool { return !jsonvalue.LooseEqual(stored, want) }},
	{"_lte", ordered(func(c int) bool { return c <= 0 })},
	{"_gte", ordered(func(c int) bool { return c >= 0 })},
	{"_lt", ordered(func(c int) bool { return c < 0 })},
	{"_gt", ordered(func(c int) bool { return c > 0 })},
}

func ordered(accept func(int) bool) comparator {
	return func(stored, want any) bool {
		c, ok := jsonvalue.Compare(stored, want)
		return ok && accept(c)
	}
}

// ApplyFilter returns the records matching filter, in their original order.
//
// When filter has an "ids" key, only id membership is tested, by string
// form as get-by-id does, and every other key, q included, is ignored. Otherwise each remaining key narrows
// the result:
//   - <field>_neq, _lte, _gte, _lt and _gt compare record[field]
//   - a list value against a list field requires every listed value to be
//     present in the record
//   - a list value against a scalar field requires any listed value to match
//   - anything else is an equality test
//
// Finally q keeps records where some non-empty field contains q,
// case-insensitively.
func ApplyFilter(records []datastore.Record, filter map[string]any) []datastore.Record {
	items := append([]datastore.Record(nil), records...)
	if len(filter) == 0 {
		return items
	}

	if ids, ok := filter[IDsKey]; ok && ids != nil {
		wanted := asList(ids)
		return keep(items, func(r datastore.Record) bool {
			for _, id := range wanted {
				if jsonvalue.IDsEqual(r["id"], id) {
					return true
				}
			}
			return false
		})
	}

	for _, key := range jsonvalue.SortedKeys(filter) {
		if key == SearchKey {
			continue
		}
		items = keep(items, predicate(key, filter[key]))
	}

	if q, ok := filter[SearchKey].(string); ok && q != "" {
		items = keep(items, searchPredicate(q))
	}
	return items
}

func predicate(key string, want any) func(datastore.Record) bool {
	for _, s := range suffixes {
		if field, ok := strings.CutSuffix(key, s.suffix); ok {
			compare := s.compare
			return func(r datastore.Record) bool {
				stored := r[field]
				return compare(stored, dateAware(stored, want))
			}
		}
	}

	if wants, ok := want.([]any); ok {
		return func(r datastore.Record) bool {
			if values, ok := r[key].([]any); ok {
				return containsAll(values, wants)
			}
			return containsAny(r[key], wants)
		}
	}
	return func(r datastore.Record) bool {
		return matches(r[key], want)
	}
}

func searchPredicate(q string) func(datastore.Record) bool {
	needle := strings.ToLower(q)
	return func(r datastore.Record) bool {
		for _, value := range r {
			if !jsonvalue.Truthy(value) {
				continue
			}
			if strings.Contains(strings.ToLower(jsonvalue.String(value)), needle) {
				return true
			}
		}
		return false
	}
}

// containsAll reports whether every wanted value matches some stored value.
func containsAll(values, wants []any) bool {
	for _, want := range wants {
		found := false
		for _, v := range values {
			if matches(v, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsAny(stored any, wants []any) bool {
	for _, want := range wants {
		if matches(stored, want) {
			return true
		}
	}
	return false
}

func matches(stored, want any) bool {
	return jsonvalue.LooseEqual(stored, dateAware(stored, want))
}

// dateAware renders a date filter value in its wire form when the stored
// value is a string, so ISO strings compare against dates.
func dateAware(stored, want any) any {
	t, ok := want.(time.Time)
	if !ok {
		return want
	}
	if _, isString := stored.(string); isString {
		return jsonvalue.FormatDate(t)
	}
	return want
}

func asList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

func keep(items []datastore.Record, pred func(datastore.Record) bool) []datastore.Record {
	out := items[:0]
	for _, item := range items {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}
