package naming

import (
	"fmt"
	"log/slog"
)

// nameScope is one namespace of the generated schema. Each name in it is
// owned by the collection, field or relationship that claimed it first.
type nameScope struct {
	kind   string
	owners map[string]string
}

func newNameScope(kind string) *nameScope {
	return &nameScope{kind: kind, owners: make(map[string]string)}
}

func (s *nameScope) has(name string) bool {
	_, ok := s.owners[name]
	return ok
}

// claim gives name to owner. A taken name is suffixed with the first free
// number from 2 up, so the collection that sorts first keeps the plain name.
func (s *nameScope) claim(name, owner string, logger *slog.Logger) string {
	holder, taken := s.owners[name]
	if !taken {
		s.owners[name] = owner
		return name
	}

	resolved := name
	for i := 2; s.has(resolved); i++ {
		resolved = fmt.Sprintf("%s%d", name, i)
	}
	s.owners[resolved] = owner

	logger.Warn("generated name already taken, suffixed",
		slog.String("scope", s.kind),
		slog.String("name", name),
		slog.String("resolved", resolved),
		slog.String("held_by", holder),
		slog.String("claimed_by", owner),
	)
	return resolved
}

// nameRegistry holds every namespace of one schema build: the type names,
// the Query and Mutation root fields, and the fields of each object type.
type nameRegistry struct {
	types     *nameScope
	queries   *nameScope
	mutations *nameScope
	fields    map[string]*nameScope
	logger    *slog.Logger
}

func newNameRegistry(logger *slog.Logger) *nameRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &nameRegistry{
		types:     newNameScope("type"),
		queries:   newNameScope("query"),
		mutations: newNameScope("mutation"),
		fields:    make(map[string]*nameScope),
		logger:    logger,
	}
}

func (r *nameRegistry) typeFields(typeName string) *nameScope {
	scope, ok := r.fields[typeName]
	if !ok {
		scope = newNameScope("field:" + typeName)
		r.fields[typeName] = scope
	}
	return scope
}

func (r *nameRegistry) claimType(name, key string) string {
	return r.types.claim(name, "collection:"+key, r.logger)
}

func (r *nameRegistry) claimQuery(name, key string) string {
	return r.queries.claim(name, "collection:"+key, r.logger)
}

func (r *nameRegistry) claimMutation(name, key string) string {
	return r.mutations.claim(name, "collection:"+key, r.logger)
}

func (r *nameRegistry) claimField(typeName, field, owner string) string {
	return r.typeFields(typeName).claim(field, owner, r.logger)
}

func (r *nameRegistry) fieldTaken(typeName, field string) bool {
	scope, ok := r.fields[typeName]
	return ok && scope.has(field)
}
