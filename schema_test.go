package dynalink

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	table := NewTable("app")

	registry, err := NewRegistry(table,
		EntityType{
			Name:       "Customer",
			Attributes: []Attribute{{Name: "name", Alias: "customer_name"}},
			Relationships: []Relationship{
				HasMany{Name: "orders", Target: "Order", ForeignKey: "customerId"},
			},
		},
		EntityType{
			Name:       "Order",
			Attributes: []Attribute{{Name: "customerId"}},
			Relationships: []Relationship{
				BelongsTo{Name: "customer", Target: "Customer", ForeignKey: "customerId"},
			},
		},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"Customer", "Order"}, registry.EntityTypes())
	assert.True(t, registry.Has("Order"))
	assert.Same(t, table, registry.Table())

	attrs, err := registry.AttributesOf("Order")
	require.NoError(t, err)
	assert.Equal(t, []Attribute{{Name: "customerId", Alias: "customerId", ForeignKeyTarget: "Customer"}}, attrs)

	alias, err := registry.Alias("Customer", "name")
	require.NoError(t, err)
	assert.Equal(t, "customer_name", alias)

	alias, err = registry.Alias("Customer", AttributeNameCreatedAt)
	require.NoError(t, err)
	assert.Equal(t, "CreatedAt", alias)

	_, err = registry.Alias("Customer", "missing")
	assert.Error(t, err)

	_, err = registry.TableOf("Invoice")
	assert.ErrorIs(t, err, ErrUnknownEntityType)

	rel, ok := registry.Reciprocal("Order", BelongsTo{Name: "customer", Target: "Customer", ForeignKey: "customerId"})
	require.True(t, ok)
	assert.Equal(t, HasMany{Name: "orders", Target: "Order", ForeignKey: "customerId"}, rel)

	_, ok = registry.Reciprocal("Order", BelongsTo{Name: "buyer", Target: "Customer", ForeignKey: "buyerId"})
	assert.False(t, ok)
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		entityTypes []EntityType
	}{
		{
			name:        "empty type name",
			entityTypes: []EntityType{{}},
		},
		{
			name:        "reserved type name",
			entityTypes: []EntityType{{Name: LinkType}},
		},
		{
			name:        "duplicate type",
			entityTypes: []EntityType{{Name: "A"}, {Name: "A"}},
		},
		{
			name:        "attribute shadows a default attribute",
			entityTypes: []EntityType{{Name: "A", Attributes: []Attribute{{Name: "id"}}}},
		},
		{
			name:        "alias collides with the partition key",
			entityTypes: []EntityType{{Name: "A", Attributes: []Attribute{{Name: "key", Alias: "PK"}}}},
		},
		{
			name:        "duplicate alias",
			entityTypes: []EntityType{{Name: "A", Attributes: []Attribute{{Name: "a", Alias: "x"}, {Name: "b", Alias: "x"}}}},
		},
		{
			name: "unknown target",
			entityTypes: []EntityType{{
				Name:          "A",
				Attributes:    []Attribute{{Name: "bId"}},
				Relationships: []Relationship{BelongsTo{Name: "b", Target: "B", ForeignKey: "bId"}},
			}},
		},
		{
			name: "belongs to without foreign key attribute",
			entityTypes: []EntityType{
				{Name: "A", Relationships: []Relationship{BelongsTo{Name: "b", Target: "B", ForeignKey: "bId"}}},
				{Name: "B"},
			},
		},
		{
			name: "has many with foreign key missing on target",
			entityTypes: []EntityType{
				{Name: "A", Relationships: []Relationship{HasMany{Name: "bs", Target: "B", ForeignKey: "aId"}}},
				{Name: "B"},
			},
		},
		{
			name: "relationship shadows an attribute",
			entityTypes: []EntityType{
				{Name: "A", Attributes: []Attribute{{Name: "b"}, {Name: "bId"}}, Relationships: []Relationship{BelongsTo{Name: "b", Target: "B", ForeignKey: "bId"}}},
				{Name: "B"},
			},
		},
		{
			name: "many to many without reciprocal",
			entityTypes: []EntityType{
				{Name: "A", Relationships: []Relationship{HasAndBelongsToMany{Name: "bs", Target: "B", JoinTable: "AB"}}},
				{Name: "B"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(NewTable("app"), tt.entityTypes...)
			assert.Error(t, err)
		})
	}

	_, err := NewRegistry(nil)
	assert.Error(t, err)
}

const schemaYAML = `
table:
  name: shop
  keyDelimiter: "|"
  getBatchSize: 25
  aliases:
    type: _type
entities:
  - name: Product
    attributes:
      - name: title
    relationships:
      - kind: hasAndBelongsToMany
        name: categories
        target: Category
        joinTable: ProductCategory
  - name: Category
    attributes:
      - name: label
        nullable: true
    relationships:
      - kind: hasAndBelongsToMany
        name: products
        target: Product
        joinTable: ProductCategory
`

func TestLoadRegistry(t *testing.T) {
	registry, err := LoadRegistry(strings.NewReader(schemaYAML))
	require.NoError(t, err)

	table := registry.Table()
	assert.Equal(t, "shop", table.TableName)
	assert.Equal(t, "PK", table.PartitionKey)
	assert.Equal(t, "|", table.KeyDelimiter)
	assert.Equal(t, 25, table.GetBatchSize)
	assert.Equal(t, MaxTransactWriteItems, table.MaxWriteItems)
	assert.Equal(t, "_type", table.Aliases.Type)
	assert.Equal(t, "Id", table.Aliases.ID)

	rels, err := registry.RelationshipsOf("Product")
	require.NoError(t, err)
	assert.Equal(t, []Relationship{HasAndBelongsToMany{Name: "categories", Target: "Category", JoinTable: "ProductCategory"}}, rels)

	attrs, err := registry.AttributesOf("Category")
	require.NoError(t, err)
	assert.True(t, attrs[0].Nullable)
}

func TestLoadRegistry_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing table name": "entities: []",
		"unknown field":      "table:\n  name: app\n  color: blue\n",
		"unknown kind":       "table:\n  name: app\nentities:\n  - name: A\n    relationships:\n      - kind: owns\n        name: b\n        target: A\n",
		"invalid schema":     "table:\n  name: app\nentities:\n  - name: A\n  - name: A\n",
		"not yaml":           "table: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRegistry(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}
