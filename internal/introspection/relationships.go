package introspection

import (
	"context"
	"log/slog"

	"github.com/eurisko-info-lab/json-graphql-server/internal/naming"

	"go.opentelemetry.io/otel/attribute"
)

// Relationship is an implicit foreign key edge. A field X_id in collection
// A links each A record to one record of plural(X) (forward), and each
// plural(X) record to every A record pointing at it (reverse).
type Relationship struct {
	OwnerKey    string // e.g. "posts"
	OwnerType   string // e.g. "Post"
	ForeignKey  string // e.g. "user_id"
	RelatedKey  string // e.g. "users"
	RelatedType string // e.g. "User"
	// ForwardField is the field added to the owner type, e.g. "User".
	// Empty when the name was taken.
	ForwardField string
	// ReverseField is the field added to the related type, e.g. "Posts".
	// Empty when the name was taken.
	ReverseField string
}

// buildRelationships scans every collection for foreign key fields and
// registers the forward and reverse edges they imply. Edges whose related
// collection does not exist are ignored. Field names already taken by data
// fields or earlier edges are skipped with a warning, so the outcome only
// depends on the collection and field order.
func buildRelationships(ctx context.Context, model *Model, namer *naming.Namer) {
	_, span := startSpan(ctx, "introspection.build_relationships")
	defer span.End()

	for _, owner := range model.Collections {
		for _, field := range owner.Fields {
			if !naming.IsRelationshipField(field.Name) {
				continue
			}
			relatedKey := namer.RelatedKey(field.Name)
			related := model.Collection(relatedKey)
			if related == nil {
				slog.Default().Debug("foreign key field has no matching collection",
					slog.String("collection", owner.Key),
					slog.String("field", field.Name),
					slog.String("related_key", relatedKey),
				)
				continue
			}

			rel := Relationship{
				OwnerKey:    owner.Key,
				OwnerType:   owner.TypeName,
				ForeignKey:  field.Name,
				RelatedKey:  related.Key,
				RelatedType: related.TypeName,
			}
			source := owner.Key + "." + field.Name

			if name := namer.RelatedType(field.Name); naming.IsValidName(name) {
				if resolved, ok := namer.RegisterRelationshipField(owner.TypeName, name, source); ok {
					rel.ForwardField = resolved
				}
			}
			if name := namer.ReverseFieldName(owner.TypeName); naming.IsValidName(name) {
				if resolved, ok := namer.RegisterRelationshipField(related.TypeName, name, source); ok {
					rel.ReverseField = resolved
				}
			}
			if rel.ForwardField == "" && rel.ReverseField == "" {
				continue
			}

			model.Relationships = append(model.Relationships, rel)
			if rel.ForwardField != "" {
				owner.Forward = append(owner.Forward, rel)
			}
			if rel.ReverseField != "" {
				related.Reverse = append(related.Reverse, rel)
			}
		}
	}

	span.SetAttributes(attribute.Int("relationships.count", len(model.Relationships)))
}
