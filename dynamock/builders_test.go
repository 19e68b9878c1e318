package dynamock

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/dynalink"
)

func TestNewEntity(t *testing.T) {
	table := dynalink.NewTable("test-table")
	created := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	item := NewEntity(table, "Product", "P001",
		WithAttribute("title", "Widget"),
		WithAttribute("price", 99.99),
		WithAttribute("tags", []string{"a", "b"}),
		WithTimestamps(created, created.Add(time.Minute)),
	).Build()

	tests := map[string]string{
		"PK":        "Product#P001",
		"SK":        "Product",
		"Id":        "P001",
		"Type":      "Product",
		"title":     "Widget",
		"CreatedAt": "2026-05-01T09:30:00.000Z",
		"UpdatedAt": "2026-05-01T09:31:00.000Z",
	}
	for name, want := range tests {
		s, ok := item[name].(*types.AttributeValueMemberS)
		if !ok {
			t.Errorf("expected string attribute %s", name)
			continue
		}
		if s.Value != want {
			t.Errorf("%s: expected %s, got %s", name, want, s.Value)
		}
	}

	if n, ok := item["price"].(*types.AttributeValueMemberN); !ok || n.Value != "99.99" {
		t.Errorf("expected price 99.99, got %#v", item["price"])
	}
	if _, ok := item["tags"].(*types.AttributeValueMemberL); !ok {
		t.Errorf("expected tags to be a list, got %#v", item["tags"])
	}

	record, err := dynalink.DecodeEntity(table, []dynalink.Attribute{{Name: "title", Alias: "title"}}, item)
	if err != nil {
		t.Fatalf("DecodeEntity: %v", err)
	}
	if !record.CreatedAt.Equal(created) {
		t.Errorf("expected CreatedAt %v, got %v", created, record.CreatedAt)
	}
}

func TestNewLink(t *testing.T) {
	table := dynalink.NewTable("test-table")

	many := NewLink(table, "Customer", "C1", "Order", "O1", false)
	link, err := dynalink.DecodeLink(table, many)
	if err != nil {
		t.Fatalf("DecodeLink: %v", err)
	}
	if link.PartitionKey != "Customer#C1" || link.SortKey != "Order#O1" {
		t.Errorf("unexpected key %s / %s", link.PartitionKey, link.SortKey)
	}
	if link.ForeignKey != "O1" || link.ForeignEntityType != "Order" {
		t.Errorf("unexpected target %s %s", link.ForeignEntityType, link.ForeignKey)
	}
	if link.ID == "" {
		t.Error("expected a generated link id")
	}

	one := NewLink(table, "Customer", "C1", "Profile", "P1", true)
	if sk := one["SK"].(*types.AttributeValueMemberS).Value; sk != "Profile" {
		t.Errorf("expected bare sort key for a single link, got %s", sk)
	}
}
