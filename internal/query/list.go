package query

import (
	"sort"
	"strings"

	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/jsonvalue"
)

// DefaultPerPage is the page size used when a page is requested without one.
const DefaultPerPage = 25

// Sort orders for list queries.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListArgs are the arguments of a list query.
type ListArgs struct {
	// Page is nil when no pagination was requested.
	Page      *int
	PerPage   int
	SortField string
	SortOrder string
	Filter    map[string]any
}

// List sorts, then filters, then paginates records.
func List(records []datastore.Record, args ListArgs) []datastore.Record {
	items := Sort(records, args.SortField, args.SortOrder)
	items = ApplyFilter(items, args.Filter)
	return Paginate(items, args.Page, args.PerPage)
}

// Count returns how many records match filter.
func Count(records []datastore.Record, filter map[string]any) int {
	return len(ApplyFilter(records, filter))
}

// Sort returns a stably sorted copy of records ordered by field. The order is
// ascending unless order is "desc", in any case. Values that are missing or
// have no defined order against each other keep their relative position.
// An empty field leaves the order untouched.
func Sort(records []datastore.Record, field, order string) []datastore.Record {
	items := append([]datastore.Record(nil), records...)
	if field == "" {
		return items
	}

	desc := strings.EqualFold(order, SortDesc)
	sort.SliceStable(items, func(i, j int) bool {
		c, ok := jsonvalue.Compare(items[i][field], items[j][field])
		if !ok {
			return false
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
	return items
}

// Paginate returns the page-th slice of perPage records. A nil page or a
// zero perPage returns every record. Negative values and pages past the end
// return no records.
func Paginate(records []datastore.Record, page *int, perPage int) []datastore.Record {
	if page == nil || perPage == 0 {
		return records
	}
	if *page < 0 || perPage < 0 {
		return []datastore.Record{}
	}

	start := *page * perPage
	if start >= len(records) {
		return []datastore.Record{}
	}
	end := start + perPage
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}
