package assert

import (
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/dynalink"
	"github.com/nisimpson/dynalink/dynamock"
)

// recorder captures assertion failures instead of failing the test.
type recorder struct {
	testing.TB
	failures []string
}

func (r *recorder) Helper() {}

func (r *recorder) Error(args ...any) { r.failures = append(r.failures, fmt.Sprint(args...)) }

func (r *recorder) Errorf(format string, args ...any) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func (r *recorder) Fatal(args ...any) { r.Error(args...) }

func testItems() (*dynalink.Table, []dynalink.Item) {
	table := dynalink.NewTable("test-table")
	return table, []dynalink.Item{
		dynamock.NewEntity(table, "Customer", "C1", dynamock.WithAttribute("name", "Ada")).Build(),
		dynamock.NewEntity(table, "Order", "O1").Build(),
		dynamock.NewLink(table, "Customer", "C1", "Order", "O1", false),
		dynamock.NewLink(table, "Customer", "C1", "Profile", "P1", true),
	}
}

func TestItems(t *testing.T) {
	table, items := testItems()

	Items(t, table, items).
		HasCount(4).
		IsNotEmpty().
		ContainsEntity("Customer", "C1").
		NotContainsEntity("Customer", "C2").
		ContainsLink("Customer", "C1", "Order", "O1").
		ContainsLink("Customer", "C1", "Profile", "P1").
		NotContainsLink("Order", "O1", "Customer", "C1").
		HasAttribute("name", "Ada")

	Items(t, table, nil).IsEmpty()
}

func TestItems_Failures(t *testing.T) {
	table, items := testItems()
	r := &recorder{}

	Items(r, table, items).
		HasCount(1).
		ContainsEntity("Customer", "C9").
		NotContainsEntity("Order", "O1").
		ContainsLink("Customer", "C1", "Order", "O9").
		NotContainsLink("Customer", "C1", "Order", "O1").
		HasAttribute("name", "Bob")
	Items(r, table, nil).IsNotEmpty()

	if len(r.failures) != 7 {
		t.Errorf("expected 7 failures, got %d: %v", len(r.failures), r.failures)
	}
}

func TestTransaction(t *testing.T) {
	table := dynalink.NewTable("test-table")
	items := []types.TransactWriteItem{
		{Put: &types.Put{Item: table.EntityKey("Order", "O1"), ConditionExpression: aws.String("attribute_not_exists (#0)")}},
		{ConditionCheck: &types.ConditionCheck{Key: table.EntityKey("Customer", "C1"), ConditionExpression: aws.String("attribute_exists (#0)")}},
		{Update: &types.Update{Key: table.EntityKey("Order", "O1")}},
		{Delete: &types.Delete{Key: table.EntityKey("Order", "O2")}},
	}

	Transaction(t, items).
		HasCount(4).
		HasOperations("Put", "ConditionCheck", "Update", "Delete").
		HasConditionAt(0).
		HasConditionAt(1)

	r := &recorder{}
	Transaction(r, items).
		HasOperations("Put", "Put", "Update", "Delete").
		HasConditionAt(3).
		HasConditionAt(9)
	if len(r.failures) != 3 {
		t.Errorf("expected 3 failures, got %d: %v", len(r.failures), r.failures)
	}

	if Operation(types.TransactWriteItem{}) != "" {
		t.Error("expected empty operation for an empty item")
	}
}

func TestEntity(t *testing.T) {
	customer := &dynalink.Entity{
		ID:         "C1",
		Type:       "Customer",
		Attributes: dynalink.Item{"name": &types.AttributeValueMemberS{Value: "Ada"}},
		One:        map[string]*dynalink.Entity{"profile": {ID: "P1", Type: "Profile"}},
		Many:       map[string][]*dynalink.Entity{"orders": {{ID: "O1"}, {ID: "O2"}}},
	}

	Entity(t, customer).
		HasID("C1").
		HasType("Customer").
		HasAttribute("name", "Ada").
		HasOne("profile", "P1").
		HasMany("orders", 2)

	r := &recorder{}
	Entity(r, customer).
		HasID("C2").
		HasType("Order").
		HasAttribute("name", "Bob").
		HasAttribute("missing", "x").
		HasOne("profile", "P2").
		HasOne("author", "A1").
		HasMany("orders", 1).
		HasMany("reviews", 0)
	if len(r.failures) != 8 {
		t.Errorf("expected 8 failures, got %d: %v", len(r.failures), r.failures)
	}
}

func TestDynamoDBItem(t *testing.T) {
	table, items := testItems()

	DynamoDBItem(t, table, items[0]).
		IsEntity("Customer", "C1").
		HasAttribute("name", "Ada").
		LacksAttribute("ForeignKey")

	DynamoDBItem(t, table, items[2]).
		IsLink("Order", "O1").
		HasAttribute("PK", "Customer#C1")

	r := &recorder{}
	DynamoDBItem(r, table, items[0]).
		IsLink("Order", "O1").
		LacksAttribute("name").
		HasAttribute("missing", "x")
	if len(r.failures) != 5 {
		t.Errorf("expected 5 failures, got %d: %v", len(r.failures), r.failures)
	}
}
