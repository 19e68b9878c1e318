package dynamock

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/nisimpson/dynalink"
)

// EntityOption is a functional option for configuring entity rows during building.
type EntityOption func(*EntityBuilder)

// EntityBuilder builds the wire item of an entity row, for seeding a [MemoryClient] or
// returning from a [MockClient] expectation.
type EntityBuilder struct {
	table *dynalink.Table
	row   *dynalink.Entity
}

// NewEntity creates a builder for an entity row with the given options applied.
func NewEntity(table *dynalink.Table, entityType, id string, opts ...EntityOption) *EntityBuilder {
	now := dynalink.DefaultClock()
	b := &EntityBuilder{
		table: table,
		row: &dynalink.Entity{
			ID:         id,
			Type:       entityType,
			CreatedAt:  now,
			UpdatedAt:  now,
			Attributes: make(dynalink.Item),
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithAttribute sets an attribute by wire name. value is marshaled with attributevalue.
func WithAttribute(name string, value any) EntityOption {
	return func(b *EntityBuilder) {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			av = &types.AttributeValueMemberNULL{Value: true}
		}
		b.row.Attributes[name] = av
	}
}

// WithTimestamps sets CreatedAt and UpdatedAt.
func WithTimestamps(created, updated time.Time) EntityOption {
	return func(b *EntityBuilder) {
		b.row.CreatedAt = created
		b.row.UpdatedAt = updated
	}
}

// Build returns the wire item.
func (b *EntityBuilder) Build() dynalink.Item {
	attrs := make([]dynalink.Attribute, 0, len(b.row.Attributes))
	for name := range b.row.Attributes {
		attrs = append(attrs, dynalink.Attribute{Name: name, Alias: name})
	}
	return dynalink.EncodeEntity(b.table, attrs, b.row)
}

// NewLink builds the wire item of a link row in the partition of the owner, pointing at
// the related entity. When single is true the sort key is the bare related type, as
// for HasOne links.
func NewLink(table *dynalink.Table, ownerType, ownerID, relatedType, relatedID string, single bool) dynalink.Item {
	now := dynalink.DefaultClock()
	key := table.LinkKey(ownerType, ownerID, relatedType, relatedID, single)
	pk, _ := key[table.PartitionKey].(*types.AttributeValueMemberS)
	sk, _ := key[table.SortKey].(*types.AttributeValueMemberS)
	return dynalink.EncodeLink(table, &dynalink.BelongsToLink{
		ID:                uuid.NewString(),
		ForeignKey:        relatedID,
		ForeignEntityType: relatedType,
		CreatedAt:         now,
		UpdatedAt:         now,
		PartitionKey:      pk.Value,
		SortKey:           sk.Value,
	})
}
