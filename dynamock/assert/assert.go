// Package assert provides fluent assertion utilities for testing DynamoDB operations
// and dynalink entities.
//
// # Usage
//
//	import "github.com/nisimpson/dynalink/dynamock/assert"
//
//	// Assert on stored items
//	assert.Items(t, table, memory.Items(table.TableName)).
//		HasCount(3).
//		ContainsEntity("Customer", "C1").
//		ContainsLink("Customer", "C1", "Order", "O1")
//
//	// Assert on a transaction sent to DynamoDB
//	assert.Transaction(t, input.TransactItems).
//		HasOperations("Put", "ConditionCheck", "Put")
//
//	// Assert on a decoded entity
//	assert.Entity(t, customer).
//		HasType("Customer").
//		HasMany("orders", 2)
package assert

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/dynalink"
)

// ItemsAssertion provides fluent assertions for wire items of one table.
type ItemsAssertion struct {
	t     testing.TB
	table *dynalink.Table
	items []dynalink.Item
}

// Items creates a new ItemsAssertion for the given items.
func Items(t testing.TB, table *dynalink.Table, items []dynalink.Item) *ItemsAssertion {
	return &ItemsAssertion{t: t, table: table, items: items}
}

// HasCount asserts that the items collection has the expected count.
func (a *ItemsAssertion) HasCount(expected int) *ItemsAssertion {
	a.t.Helper()
	if len(a.items) != expected {
		a.t.Errorf("expected %d items, got %d", expected, len(a.items))
	}
	return a
}

// IsEmpty asserts that the items collection is empty.
func (a *ItemsAssertion) IsEmpty() *ItemsAssertion {
	a.t.Helper()
	return a.HasCount(0)
}

// IsNotEmpty asserts that the items collection is not empty.
func (a *ItemsAssertion) IsNotEmpty() *ItemsAssertion {
	a.t.Helper()
	if len(a.items) == 0 {
		a.t.Error("expected items to not be empty")
	}
	return a
}

// ContainsEntity asserts that the items contain the row of the given entity.
func (a *ItemsAssertion) ContainsEntity(entityType, id string) *ItemsAssertion {
	a.t.Helper()
	if !a.contains(a.table.EntityKey(entityType, id)) {
		a.t.Errorf("expected to find entity %s in items", a.table.Key(entityType, id))
	}
	return a
}

// NotContainsEntity asserts that the items do not contain the row of the given entity.
func (a *ItemsAssertion) NotContainsEntity(entityType, id string) *ItemsAssertion {
	a.t.Helper()
	if a.contains(a.table.EntityKey(entityType, id)) {
		a.t.Errorf("expected entity %s to be absent from items", a.table.Key(entityType, id))
	}
	return a
}

// ContainsLink asserts that the owner's partition holds a link to the related entity.
// HasOne links, stored under the bare related type, are matched too.
func (a *ItemsAssertion) ContainsLink(ownerType, ownerID, relatedType, relatedID string) *ItemsAssertion {
	a.t.Helper()
	if a.link(ownerType, ownerID, relatedType, relatedID) == nil {
		a.t.Errorf("expected to find link from %s to %s in items",
			a.table.Key(ownerType, ownerID), a.table.Key(relatedType, relatedID))
	}
	return a
}

// NotContainsLink asserts that no link from the owner to the related entity exists.
func (a *ItemsAssertion) NotContainsLink(ownerType, ownerID, relatedType, relatedID string) *ItemsAssertion {
	a.t.Helper()
	if a.link(ownerType, ownerID, relatedType, relatedID) != nil {
		a.t.Errorf("expected no link from %s to %s in items",
			a.table.Key(ownerType, ownerID), a.table.Key(relatedType, relatedID))
	}
	return a
}

// HasAttribute asserts that at least one item has the string attribute with the expected value.
func (a *ItemsAssertion) HasAttribute(attributeName, expectedValue string) *ItemsAssertion {
	a.t.Helper()
	for _, item := range a.items {
		if stringValue(item, attributeName) == expectedValue {
			return a
		}
	}
	a.t.Errorf("expected to find attribute %s with value %s in items", attributeName, expectedValue)
	return a
}

func (a *ItemsAssertion) contains(key dynalink.Item) bool {
	pk := stringValue(key, a.table.PartitionKey)
	sk := stringValue(key, a.table.SortKey)
	for _, item := range a.items {
		if stringValue(item, a.table.PartitionKey) == pk && stringValue(item, a.table.SortKey) == sk {
			return true
		}
	}
	return false
}

func (a *ItemsAssertion) link(ownerType, ownerID, relatedType, relatedID string) dynalink.Item {
	pk := a.table.Key(ownerType, ownerID)
	for _, item := range a.items {
		if stringValue(item, a.table.PartitionKey) != pk ||
			stringValue(item, a.table.Aliases.Type) != dynalink.LinkType {
			continue
		}
		if stringValue(item, a.table.Aliases.ForeignEntityType) == relatedType &&
			stringValue(item, a.table.Aliases.ForeignKey) == relatedID {
			return item
		}
	}
	return nil
}

// TransactionAssertion provides fluent assertions for the items of a write transaction.
type TransactionAssertion struct {
	t     testing.TB
	items []types.TransactWriteItem
}

// Transaction creates a new TransactionAssertion.
func Transaction(t testing.TB, items []types.TransactWriteItem) *TransactionAssertion {
	return &TransactionAssertion{t: t, items: items}
}

// HasCount asserts the number of operations in the transaction.
func (a *TransactionAssertion) HasCount(expected int) *TransactionAssertion {
	a.t.Helper()
	if len(a.items) != expected {
		a.t.Errorf("expected %d transaction items, got %d", expected, len(a.items))
	}
	return a
}

// HasOperations asserts the kind of each operation, in order. Kinds are Put, Update,
// Delete and ConditionCheck.
func (a *TransactionAssertion) HasOperations(kinds ...string) *TransactionAssertion {
	a.t.Helper()
	if len(a.items) != len(kinds) {
		a.t.Errorf("expected %d transaction items, got %d", len(kinds), len(a.items))
		return a
	}
	for i, kind := range kinds {
		if got := Operation(a.items[i]); got != kind {
			a.t.Errorf("transaction item %d: expected %s, got %s", i, kind, got)
		}
	}
	return a
}

// HasConditionAt asserts that the operation at index carries a condition expression.
func (a *TransactionAssertion) HasConditionAt(index int) *TransactionAssertion {
	a.t.Helper()
	if index >= len(a.items) {
		a.t.Errorf("transaction has no item %d", index)
		return a
	}
	if conditionOf(a.items[index]) == "" {
		a.t.Errorf("transaction item %d has no condition expression", index)
	}
	return a
}

// Operation returns the kind of a transaction item.
func Operation(item types.TransactWriteItem) string {
	switch {
	case item.Put != nil:
		return "Put"
	case item.Update != nil:
		return "Update"
	case item.Delete != nil:
		return "Delete"
	case item.ConditionCheck != nil:
		return "ConditionCheck"
	}
	return ""
}

func conditionOf(item types.TransactWriteItem) string {
	var cond *string
	switch {
	case item.Put != nil:
		cond = item.Put.ConditionExpression
	case item.Update != nil:
		cond = item.Update.ConditionExpression
	case item.Delete != nil:
		cond = item.Delete.ConditionExpression
	case item.ConditionCheck != nil:
		cond = item.ConditionCheck.ConditionExpression
	}
	if cond == nil {
		return ""
	}
	return *cond
}

// EntityAssertion provides fluent assertions for decoded entities.
type EntityAssertion struct {
	t      testing.TB
	entity *dynalink.Entity
}

// Entity creates a new EntityAssertion for the given entity.
func Entity(t testing.TB, entity *dynalink.Entity) *EntityAssertion {
	t.Helper()
	if entity == nil {
		t.Fatal("expected an entity, got nil")
	}
	return &EntityAssertion{t: t, entity: entity}
}

// HasID asserts the entity id.
func (a *EntityAssertion) HasID(expected string) *EntityAssertion {
	a.t.Helper()
	if a.entity.ID != expected {
		a.t.Errorf("expected id %s, got %s", expected, a.entity.ID)
	}
	return a
}

// HasType asserts the entity type.
func (a *EntityAssertion) HasType(expected string) *EntityAssertion {
	a.t.Helper()
	if a.entity.Type != expected {
		a.t.Errorf("expected type %s, got %s", expected, a.entity.Type)
	}
	return a
}

// HasAttribute asserts a string attribute by entity-side name.
func (a *EntityAssertion) HasAttribute(name, expected string) *EntityAssertion {
	a.t.Helper()
	got, ok := a.entity.String(name)
	if !ok {
		a.t.Errorf("entity %s has no string attribute %s", a.entity.ID, name)
	} else if got != expected {
		a.t.Errorf("attribute %s expected %s, got %s", name, expected, got)
	}
	return a
}

// HasOne asserts that the included relationship prop resolved to the entity with id.
func (a *EntityAssertion) HasOne(prop, id string) *EntityAssertion {
	a.t.Helper()
	related, ok := a.entity.One[prop]
	switch {
	case !ok || related == nil:
		a.t.Errorf("expected %s to be included", prop)
	case related.ID != id:
		a.t.Errorf("expected %s to be %s, got %s", prop, id, related.ID)
	}
	return a
}

// HasMany asserts the number of entities included under prop.
func (a *EntityAssertion) HasMany(prop string, expected int) *EntityAssertion {
	a.t.Helper()
	related, ok := a.entity.Many[prop]
	if !ok {
		a.t.Errorf("expected %s to be included", prop)
	} else if len(related) != expected {
		a.t.Errorf("expected %d %s, got %d", expected, prop, len(related))
	}
	return a
}

// DynamoDBItemAssertion provides fluent assertions for individual wire items.
type DynamoDBItemAssertion struct {
	t     testing.TB
	table *dynalink.Table
	item  dynalink.Item
}

// DynamoDBItem creates a new DynamoDBItemAssertion for the given item.
func DynamoDBItem(t testing.TB, table *dynalink.Table, item dynalink.Item) *DynamoDBItemAssertion {
	return &DynamoDBItemAssertion{t: t, table: table, item: item}
}

// HasAttribute asserts that the item has the string attribute with the expected value.
func (a *DynamoDBItemAssertion) HasAttribute(name, expectedValue string) *DynamoDBItemAssertion {
	a.t.Helper()
	attr, exists := a.item[name]
	if !exists {
		a.t.Errorf("item missing attribute %s", name)
	} else if s, ok := attr.(*types.AttributeValueMemberS); !ok {
		a.t.Errorf("attribute %s is not a string", name)
	} else if s.Value != expectedValue {
		a.t.Errorf("attribute %s expected %s, got %s", name, expectedValue, s.Value)
	}
	return a
}

// LacksAttribute asserts that the item does not carry the attribute.
func (a *DynamoDBItemAssertion) LacksAttribute(name string) *DynamoDBItemAssertion {
	a.t.Helper()
	if _, exists := a.item[name]; exists {
		a.t.Errorf("expected item to lack attribute %s", name)
	}
	return a
}

// IsEntity asserts that the item is an entity row.
func (a *DynamoDBItemAssertion) IsEntity(entityType, id string) *DynamoDBItemAssertion {
	a.t.Helper()
	a.HasAttribute(a.table.PartitionKey, a.table.Key(entityType, id))
	a.HasAttribute(a.table.SortKey, entityType)
	return a.HasAttribute(a.table.Aliases.Type, entityType)
}

// IsLink asserts that the item is a link row pointing at the related entity.
func (a *DynamoDBItemAssertion) IsLink(relatedType, relatedID string) *DynamoDBItemAssertion {
	a.t.Helper()
	a.HasAttribute(a.table.Aliases.Type, dynalink.LinkType)
	a.HasAttribute(a.table.Aliases.ForeignEntityType, relatedType)
	return a.HasAttribute(a.table.Aliases.ForeignKey, relatedID)
}

func stringValue(item dynalink.Item, name string) string {
	if s, ok := item[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}
