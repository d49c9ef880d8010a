package introspection

import (
	"strings"

	"github.com/eurisko-info-lab/json-graphql-server/internal/naming"
)

// FilterOp is the comparison a filter field applies.
type FilterOp string

const (
	OpEq  FilterOp = ""
	OpNeq FilterOp = "_neq"
	OpLt  FilterOp = "_lt"
	OpLte FilterOp = "_lte"
	OpGt  FilterOp = "_gt"
	OpGte FilterOp = "_gte"
)

// Filter keys that are not tied to a record field.
const (
	FilterSearch = "q"
	FilterIDs    = "ids"
)

// rangeOps lists the range comparisons in declaration order.
var rangeOps = []FilterOp{OpLt, OpLte, OpGt, OpGte}

// FilterField is one input field of a collection filter.
type FilterField struct {
	// Name is the input field name, e.g. "views_gte".
	Name string
	// Field is the record field compared, empty for q and ids.
	Field string
	Op    FilterOp
	Type  FieldType
}

// FiltersFromFields builds the filter shape for a collection: q, ids, an
// equality filter per field, range filters for ordered types and _neq for
// every type except Boolean and lists. Fields must be inferred without the
// required flag. Record fields named q or ids are shadowed by the built-in
// keys and get no filters. When a generated name repeats, the first
// declaration wins, so equality filters shadow suffixed variants.
func FiltersFromFields(fields []Field) []FilterField {
	seen := map[string]struct{}{FilterSearch: {}, FilterIDs: {}}
	filters := []FilterField{
		{Name: FilterSearch, Type: FieldType{Base: TypeString}},
		{Name: FilterIDs, Type: FieldType{Base: TypeID, List: true}},
	}
	add := func(f FilterField) {
		if _, dup := seen[f.Name]; dup {
			return
		}
		seen[f.Name] = struct{}{}
		filters = append(filters, f)
	}

	fields = filterableFields(fields)
	for _, f := range fields {
		add(FilterField{Name: f.Name, Field: f.Name, Op: OpEq, Type: f.Type})
	}
	for _, f := range fields {
		if f.Name == FilterSearch || f.Name == FilterIDs {
			continue
		}
		if f.Type.Ordered() {
			for _, op := range rangeOps {
				add(FilterField{Name: f.Name + string(op), Field: f.Name, Op: op, Type: f.Type})
			}
		}
		if f.Type.Equatable() {
			add(FilterField{Name: f.Name + string(OpNeq), Field: f.Name, Op: OpNeq, Type: f.Type})
		}
	}
	return filters
}

// filterableFields drops fields whose names are not valid GraphQL names,
// since neither they nor their suffixed variants can appear in a filter.
func filterableFields(fields []Field) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if naming.IsValidName(f.Name) && !strings.HasPrefix(f.Name, "__") {
			out = append(out, f)
		}
	}
	return out
}
