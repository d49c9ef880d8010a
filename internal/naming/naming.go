package naming

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ForeignKeySuffix marks a record field as a reference to another collection.
const ForeignKeySuffix = "_id"

// Namer provides all name transformation functions for converting data
// collection keys and record fields to GraphQL names. It handles
// pluralization, reserved words, and collisions.
//
// Vocabulary, for data {posts: [{id: 1, user_id: 123}], users: [{id: 123}]}:
//   - key: a collection key in the data map, e.g. "posts"
//   - type: the GraphQL type for a key, e.g. "posts" -> "Post"
//   - relationship field: a record field ending in "_id", e.g. "user_id"
//   - related key: the collection a relationship field points at, e.g. "users"
type Namer struct {
	config Config
	logger *slog.Logger
	names  *nameRegistry
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config: cfg,
		logger: logger,
		names:  newNameRegistry(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Config returns the naming configuration used by this namer.
func (n *Namer) Config() Config {
	return n.config
}

// Reset forgets every registered name so the namer can serve a new schema
// build.
func (n *Namer) Reset() {
	n.names = newNameRegistry(n.logger)
}

// TypeName converts a collection key to its GraphQL type name.
// Example: "posts" -> "Post", "blog_posts" -> "BlogPost"
func (n *Namer) TypeName(key string) string {
	return camelize(n.Singularize(key))
}

// ListQueryName returns the root query field listing every record of a type.
// Example: "Post" -> "allPosts", "Category" -> "allCategories"
func (n *Namer) ListQueryName(typeName string) string {
	return "all" + camelize(n.Pluralize(typeName))
}

// MetaQueryName returns the root query field counting records of a type.
// Example: "Post" -> "_allPostsMeta"
func (n *Namer) MetaQueryName(typeName string) string {
	return "_all" + camelize(n.Pluralize(typeName)) + "Meta"
}

// CreateMutationName returns "create<Type>".
func (n *Namer) CreateMutationName(typeName string) string {
	return "create" + typeName
}

// CreateManyMutationName returns "createMany<Type>".
func (n *Namer) CreateManyMutationName(typeName string) string {
	return "createMany" + typeName
}

// UpdateMutationName returns "update<Type>".
func (n *Namer) UpdateMutationName(typeName string) string {
	return "update" + typeName
}

// RemoveMutationName returns "remove<Type>".
func (n *Namer) RemoveMutationName(typeName string) string {
	return "remove" + typeName
}

// FilterTypeName returns the filter input type name for a type.
func (n *Namer) FilterTypeName(typeName string) string {
	return typeName + "Filter"
}

// InputTypeName returns the createMany input type name for a type.
func (n *Namer) InputTypeName(typeName string) string {
	return typeName + "Input"
}

// IsRelationshipField reports whether a record field follows the foreign key
// naming convention.
func IsRelationshipField(field string) bool {
	return len(field) > len(ForeignKeySuffix) && strings.HasSuffix(field, ForeignKeySuffix)
}

// IsIDField reports whether a field is always typed as an identifier.
func IsIDField(field string) bool {
	return field == "id" || strings.HasSuffix(field, ForeignKeySuffix)
}

// RelatedKey returns the collection key a relationship field points at.
// Example: "user_id" -> "users"
func (n *Namer) RelatedKey(field string) string {
	return n.Pluralize(strings.TrimSuffix(field, ForeignKeySuffix))
}

// RelatedType returns the type name a relationship field points at. It is
// also the name of the forward relationship field.
// Example: "user_id" -> "User"
func (n *Namer) RelatedType(field string) string {
	return n.TypeName(strings.TrimSuffix(field, ForeignKeySuffix))
}

// ReverseFieldName returns the name of the one-to-many field added to a
// related type for an owning type.
// Example: "Post" -> "Posts"
func (n *Namer) ReverseFieldName(ownerType string) string {
	return camelize(n.Pluralize(ownerType))
}

// RegisterType registers a collection key and returns the resolved GraphQL
// type name. Reserved names are suffixed and duplicates get a numeric suffix.
func (n *Namer) RegisterType(key string) string {
	return n.names.claimType(n.validateTypeAndSuffix(sanitizeName(n.TypeName(key))), key)
}

// RegisterTypeName registers a derived type name, such as a filter or input
// type, for the collection key. Register every collection type first so
// derived names never displace them.
func (n *Namer) RegisterTypeName(name, key string) string {
	return n.names.claimType(n.validateTypeAndSuffix(name), key)
}

// RegisterDataField registers a record field on a type. Data fields always
// win in precedence, so this establishes the field name. It returns false
// when the name is not a valid GraphQL name.
func (n *Namer) RegisterDataField(typeName, field string) (string, bool) {
	if !IsValidName(field) || isReservedFieldName(field) {
		n.logger.Warn("record field is not a valid GraphQL name, skipped",
			slog.String("type", typeName),
			slog.String("field", field),
		)
		return "", false
	}
	return n.names.claimField(typeName, field, "field:"+field), true
}

// RegisterRelationshipField registers a relationship field on a type. It
// returns false, and logs a warning, when the name is already taken by a
// data field or an earlier relationship.
func (n *Namer) RegisterRelationshipField(typeName, fieldName, source string) (string, bool) {
	if n.names.fieldTaken(typeName, fieldName) {
		n.logger.Warn("relationship field collides with an existing field, skipped",
			slog.String("type", typeName),
			slog.String("field", fieldName),
			slog.String("source", source),
		)
		return "", false
	}
	return n.names.claimField(typeName, fieldName, "relationship:"+source), true
}

// RegisterQueryField registers a Query root field for the collection key
// and returns the resolved name.
func (n *Namer) RegisterQueryField(fieldName, key string) string {
	return n.names.claimQuery(fieldName, key)
}

// RegisterMutationField registers a Mutation root field for the collection
// key and returns the resolved name. Mutation names share no namespace with
// Query names.
func (n *Namer) RegisterMutationField(fieldName, key string) string {
	return n.names.claimMutation(fieldName, key)
}

func (n *Namer) validateTypeAndSuffix(name string) string {
	if isReservedTypeName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// camelize converts snake_case or slash separated words to PascalCase,
// leaving the rest of each word untouched.
func camelize(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '/'
	})
	for i, part := range parts {
		r, size := utf8.DecodeRuneInString(part)
		parts[i] = string(unicode.ToUpper(r)) + part[size:]
	}
	return strings.Join(parts, "")
}

// sanitizeName replaces characters outside the GraphQL name grammar with
// underscores.
func sanitizeName(s string) string {
	if IsValidName(s) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "_" + out
	}
	return out
}
