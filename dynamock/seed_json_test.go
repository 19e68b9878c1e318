package dynamock

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/dynalink"
)

func storeTypes() []dynalink.EntityType {
	return []dynalink.EntityType{
		{
			Name:       "User",
			Attributes: []dynalink.Attribute{{Name: "email"}},
			Relationships: []dynalink.Relationship{
				dynalink.HasMany{Name: "orders", Target: "Order", ForeignKey: "userId"},
			},
		},
		{
			Name: "Order",
			Attributes: []dynalink.Attribute{
				{Name: "userId", Nullable: true},
				{Name: "total", Nullable: true},
			},
			Relationships: []dynalink.Relationship{
				dynalink.BelongsTo{Name: "user", Target: "User", ForeignKey: "userId"},
				dynalink.HasAndBelongsToMany{Name: "products", Target: "Product", JoinTable: "OrderProduct"},
			},
		},
		{
			Name:       "Product",
			Attributes: []dynalink.Attribute{{Name: "name"}},
			Relationships: []dynalink.Relationship{
				dynalink.HasAndBelongsToMany{Name: "orders", Target: "Order", JoinTable: "OrderProduct"},
			},
		},
	}
}

func newTestSeeder(t *testing.T) (*SeedTestData, *MemoryClient, *dynalink.Mapper, *dynalink.Table) {
	t.Helper()
	table := dynalink.NewTable("seed-table")
	registry, err := dynalink.NewRegistry(table, storeTypes()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	memory := NewMemoryClient(table)
	mapper := dynalink.New(memory, registry)
	return NewSeedTestData(mapper, registry), memory, mapper, table
}

func TestSeedEntity(t *testing.T) {
	seeder, memory, _, table := newTestSeeder(t)
	ctx := context.Background()

	e, err := seeder.SeedEntity(ctx, "User", "U1", map[string]any{"email": "u1@example.com"})
	if err != nil {
		t.Fatalf("SeedEntity: %v", err)
	}
	if e.ID != "U1" {
		t.Errorf("expected id U1, got %s", e.ID)
	}
	if memory.Item(table.TableName, table.EntityKey("User", "U1")) == nil {
		t.Error("expected user to be stored")
	}

	if _, err := seeder.SeedEntity(ctx, "User", "U1", map[string]any{"email": "again"}); err == nil {
		t.Error("expected duplicate seed to fail")
	}
}

const storeDocument = `[
	{
		"type": "Order",
		"id": "O1",
		"attributes": {"total": 42},
		"relationships": {
			"user": {"data": {"type": "User", "id": "U1"}},
			"products": {"data": [{"type": "Product", "id": "P1"}, {"type": "Product", "id": "P2"}]}
		}
	},
	{
		"type": "Product",
		"id": "P1",
		"attributes": {"name": "Lamp"},
		"relationships": {
			"orders": {"data": [{"type": "Order", "id": "O1"}]}
		}
	},
	{"type": "Product", "id": "P2", "attributes": {"name": "Desk"}},
	{"type": "Order", "id": "O2", "relationships": {"user": {"data": null}}},
	{
		"type": "User",
		"id": "U1",
		"attributes": {"email": "u1@example.com"},
		"relationships": {
			"orders": {"data": [{"type": "Order", "id": "O2"}]}
		}
	}
]`

func TestSeedFromJSON(t *testing.T) {
	seeder, memory, mapper, table := newTestSeeder(t)
	ctx := context.Background()

	count, err := seeder.SeedFromJSON(ctx, strings.NewReader(storeDocument))
	if err != nil {
		t.Fatalf("SeedFromJSON: %v", err)
	}
	if count != 5 {
		t.Errorf("expected 5 entities, got %d", count)
	}

	user, err := mapper.FindByID(ctx, "User", "U1", dynalink.Include("orders"))
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if n := len(user.Many["orders"]); n != 2 {
		t.Errorf("expected user to have 2 orders, got %d", n)
	}

	order, err := mapper.FindByID(ctx, "Order", "O1", dynalink.Include("products", "user"))
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if n := len(order.Many["products"]); n != 2 {
		t.Errorf("expected order to have 2 products, got %d", n)
	}
	if order.One["user"] == nil || order.One["user"].ID != "U1" {
		t.Error("expected order to belong to U1")
	}
	if total, ok := order.Attributes["total"].(*types.AttributeValueMemberN); !ok || total.Value != "42" {
		t.Errorf("expected total 42, got %#v", order.Attributes["total"])
	}

	// 5 entities, 2 order links under U1, 2 join pairs
	if n := len(memory.Items(table.TableName)); n != 11 {
		t.Errorf("expected 11 items, got %d", n)
	}
}

func TestSeedFromJSON_Errors(t *testing.T) {
	tests := map[string]string{
		"invalid json":         `{`,
		"missing type":         `[{"id": "U1"}]`,
		"missing id":           `[{"type": "User"}]`,
		"duplicate resource":   `[{"type": "User", "id": "U1", "attributes": {"email": "a"}}, {"type": "User", "id": "U1"}]`,
		"unknown relationship": `[{"type": "User", "id": "U1", "relationships": {"friends": {"data": []}}}]`,
		"child not in document": `[{"type": "User", "id": "U1", "attributes": {"email": "a"},
			"relationships": {"orders": {"data": [{"type": "Order", "id": "O9"}]}}}]`,
		"belongs to many": `[{"type": "Order", "id": "O1",
			"relationships": {"user": {"data": [{"type": "User", "id": "U1"}, {"type": "User", "id": "U2"}]}}}]`,
		"missing required attribute": `[{"type": "User", "id": "U1"}]`,
		"missing target":             `[{"type": "Order", "id": "O1", "relationships": {"user": {"data": {"type": "User", "id": "U9"}}}}]`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			seeder, _, _, _ := newTestSeeder(t)
			if _, err := seeder.SeedFromJSON(context.Background(), strings.NewReader(doc)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDependencyOrder(t *testing.T) {
	a, b, c := resourceKey{"A", "1"}, resourceKey{"B", "1"}, resourceKey{"C", "1"}

	sorted, err := dependencyOrder([]resourceKey{a, b, c}, map[resourceKey][]resourceKey{
		a: {b},
		b: {c},
	})
	if err != nil {
		t.Fatalf("dependencyOrder: %v", err)
	}
	want := []resourceKey{c, b, a}
	for i := range want {
		if sorted[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, sorted)
		}
	}

	if _, err := dependencyOrder([]resourceKey{a, b}, map[resourceKey][]resourceKey{
		a: {b},
		b: {a},
	}); err == nil {
		t.Error("expected a cycle to fail")
	}
}
