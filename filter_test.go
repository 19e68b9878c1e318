package dynalink

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileQuery(t *testing.T) {
	t.Run("key condition only", func(t *testing.T) {
		q, err := CompileQuery(nil, KeyConditions{"PK": "Customer#C1"}, nil)
		require.NoError(t, err)

		assert.Equal(t, "#PK1 = :PK1", q.KeyCondition)
		assert.Empty(t, q.Filter)
		assert.Equal(t, map[string]string{"#PK1": "PK"}, q.Names)
		assert.Equal(t, &types.AttributeValueMemberS{Value: "Customer#C1"}, q.Values[":PK1"])
	})

	t.Run("begins with on the sort key", func(t *testing.T) {
		q, err := CompileQuery(nil, KeyConditions{
			"PK": "Customer#C1",
			"SK": BeginsWith("Order#"),
		}, nil)
		require.NoError(t, err)

		assert.Equal(t, "#PK1 = :PK1 AND begins_with(#SK2, :SK2)", q.KeyCondition)
		assert.Equal(t, &types.AttributeValueMemberS{Value: "Order#"}, q.Values[":SK2"])
	})

	t.Run("or branches combined with and", func(t *testing.T) {
		q, err := CompileQuery(nil, KeyConditions{"PK": "A#1"}, &Filter{
			And: AndConditions{"status": []string{"open", "held"}},
			Or: []AndConditions{
				{"x": 1},
				{"y": 2, "z": "q"},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "#PK1 = :PK1", q.KeyCondition)
		assert.Equal(t,
			"(#x2 = :x2 OR (#y3 = :y3 AND #z4 = :z4)) AND (#status5 IN (:status5,:status6))",
			q.Filter)
		assert.Equal(t, &types.AttributeValueMemberN{Value: "1"}, q.Values[":x2"])
		assert.Equal(t, &types.AttributeValueMemberS{Value: "open"}, q.Values[":status5"])
		assert.Equal(t, &types.AttributeValueMemberS{Value: "held"}, q.Values[":status6"])
		assert.Len(t, q.Values, 6)
	})

	t.Run("only or", func(t *testing.T) {
		q, err := CompileQuery(nil, KeyConditions{"PK": "A#1"}, &Filter{
			Or: []AndConditions{{"a": "x"}, {"b": "y"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "#a2 = :a2 OR #b3 = :b3", q.Filter)
	})

	t.Run("same attribute in several clauses", func(t *testing.T) {
		q, err := CompileQuery(nil, KeyConditions{"PK": "A#1"}, &Filter{
			And: AndConditions{"type": "Order"},
			Or:  []AndConditions{{"type": "Customer"}},
		})
		require.NoError(t, err)

		assert.Equal(t, "(#type2 = :type2) AND (#type3 = :type3)", q.Filter)
		assert.Equal(t, map[string]string{"#PK1": "PK", "#type2": "type", "#type3": "type"}, q.Names)
		assert.Len(t, q.Values, 3)
	})

	t.Run("names resolved to wire names", func(t *testing.T) {
		table := NewTable("app")
		info := &entityInfo{
			name:   "Order",
			table:  table,
			byName: map[string]Attribute{"customerId": {Name: "customerId", Alias: "customer_id"}},
		}

		q, err := CompileQuery(info.resolve,
			KeyConditions{AttributeNamePartitionKey: "Order#O1"},
			&Filter{And: AndConditions{"customerId": "C1", AttributeNameType: "Order"}})
		require.NoError(t, err)

		assert.Equal(t, "#PK1 = :PK1", q.KeyCondition)
		assert.Equal(t, "#customer_id2 = :customer_id2 AND #Type3 = :Type3", q.Filter)
		assert.Equal(t, "customer_id", q.Names["#customer_id2"])
		assert.Equal(t, "Type", q.Names["#Type3"])
	})

	t.Run("sanitized names do not collide", func(t *testing.T) {
		q, err := CompileQuery(nil, KeyConditions{"a-b": "1", "a_b": "2"}, nil)
		require.NoError(t, err)

		assert.Equal(t, "#a_b1 = :a_b1 AND #a_b2 = :a_b2", q.KeyCondition)
		assert.Equal(t, "a-b", q.Names["#a_b1"])
		assert.Equal(t, "a_b", q.Names["#a_b2"])
	})

	t.Run("suffixed names do not collide with later counters", func(t *testing.T) {
		q, err := CompileQuery(nil, KeyConditions{"pk": "P"}, &Filter{
			Or:  []AndConditions{{"x1": "first"}, {"y": "z"}},
			And: AndConditions{"x": []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		})
		require.NoError(t, err)

		assert.Equal(t,
			"(#x12 = :x12 OR #y3 = :y3) AND (#x4 IN (:x4,:x5,:x6,:x7,:x8,:x9,:x10,:x11,:x13,:x14))",
			q.Filter)
		assert.Len(t, q.Values, 13)
		assert.Equal(t, &types.AttributeValueMemberS{Value: "first"}, q.Values[":x12"])
		assert.Equal(t, &types.AttributeValueMemberN{Value: "8"}, q.Values[":x13"])
		assert.Equal(t, &types.AttributeValueMemberN{Value: "9"}, q.Values[":x14"])
		assert.Equal(t, "x1", q.Names["#x12"])
		assert.Equal(t, "x", q.Names["#x4"])
	})

	t.Run("attribute values pass through", func(t *testing.T) {
		av := &types.AttributeValueMemberBOOL{Value: true}
		q, err := CompileQuery(nil, KeyConditions{"PK": "A#1"}, &Filter{And: AndConditions{"flag": av}})
		require.NoError(t, err)
		assert.Same(t, av, q.Values[":flag2"])
	})
}

func TestCompileQueryErrors(t *testing.T) {
	tests := []struct {
		name   string
		key    KeyConditions
		filter *Filter
	}{
		{name: "missing key condition"},
		{name: "empty or branch", key: KeyConditions{"PK": "A#1"}, filter: &Filter{Or: []AndConditions{{}}}},
		{name: "empty value list", key: KeyConditions{"PK": "A#1"}, filter: &Filter{And: AndConditions{"s": []string{}}}},
		{name: "nil value", key: KeyConditions{"PK": nil}},
		{name: "empty attribute name", key: KeyConditions{"": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileQuery(nil, tt.key, tt.filter)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestFilterIsSet(t *testing.T) {
	var f *Filter
	assert.False(t, f.IsSet())
	assert.False(t, (&Filter{}).IsSet())
	assert.True(t, (&Filter{And: AndConditions{"a": 1}}).IsSet())
	assert.True(t, (&Filter{Or: []AndConditions{{"a": 1}}}).IsSet())
}

func TestQueryExpressionInput(t *testing.T) {
	table := NewTable("app")
	q, err := CompileQuery(nil, KeyConditions{"PK": "A#1"}, &Filter{And: AndConditions{"a": 1}})
	require.NoError(t, err)
	q.IndexName = "by-status"

	input := q.Input(table, true)
	assert.Equal(t, "app", *input.TableName)
	assert.Equal(t, "#PK1 = :PK1", *input.KeyConditionExpression)
	assert.Equal(t, "#a2 = :a2", *input.FilterExpression)
	assert.Equal(t, "by-status", *input.IndexName)
	assert.True(t, *input.ConsistentRead)
}
