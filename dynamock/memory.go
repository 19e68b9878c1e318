package dynamock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/nisimpson/dynalink"
)

// MemoryClient is an in-memory DynamoDB table that evaluates the key condition,
// filter, condition and update expressions it receives. Transactions are applied
// atomically and report positional cancellation reasons like DynamoDB does.
//
// Every table addressed through the client shares the key schema of the table it was
// created for. MemoryClient is safe for concurrent use.
type MemoryClient struct {
	partitionKey string
	sortKey      string

	mu     sync.Mutex
	tables map[string]map[string]dynalink.Item
	calls  map[string]int
	gets   int
}

var _ dynalink.DynamoDBClient = (*MemoryClient)(nil)

// NewMemoryClient creates an empty in-memory store with the key schema of table.
func NewMemoryClient(table *dynalink.Table) *MemoryClient {
	return &MemoryClient{
		partitionKey: table.PartitionKey,
		sortKey:      table.SortKey,
		tables:       make(map[string]map[string]dynalink.Item),
		calls:        make(map[string]int),
	}
}

// Calls returns the number of requests received per operation name, for example
// "Query" or "TransactGetItems".
func (m *MemoryClient) Calls(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[operation]
}

// GetCount returns the total number of point reads requested through TransactGetItems.
func (m *MemoryClient) GetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

// ResetCalls clears the request counters.
func (m *MemoryClient) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
	m.gets = 0
}

// Put stores item unconditionally.
func (m *MemoryClient) Put(tableName string, item dynalink.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, err := m.itemKey(item)
	if err != nil {
		return err
	}
	m.table(tableName)[key] = copyItem(item)
	return nil
}

// Items returns a copy of every stored item of tableName, ordered by key.
func (m *MemoryClient) Items(tableName string) []dynalink.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(m.table(tableName), false)
}

// Item returns a copy of the item stored under key, or nil.
func (m *MemoryClient) Item(tableName string, key dynalink.Item) dynalink.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := m.itemKey(key)
	if err != nil {
		return nil
	}
	if item, ok := m.table(tableName)[k]; ok {
		return copyItem(item)
	}
	return nil
}

// GetItem implements dynalink.DynamoDBClient.
func (m *MemoryClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetItem"]++

	key, err := m.itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	out := &dynamodb.GetItemOutput{}
	if item, ok := m.table(aws.ToString(params.TableName))[key]; ok {
		out.Item = copyItem(item)
	}
	return out, nil
}

// Query implements dynalink.DynamoDBClient. The key condition is evaluated against
// every item of the table, so index names are accepted but not modeled. Limit bounds
// the number of items evaluated, and LastEvaluatedKey is returned when it is reached.
func (m *MemoryClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Query"]++

	exprCtx := expressionContext{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	keyCond, err := parseCondition(aws.ToString(params.KeyConditionExpression), exprCtx)
	if err != nil {
		return nil, validationError(err)
	}
	filter, err := parseCondition(aws.ToString(params.FilterExpression), exprCtx)
	if err != nil {
		return nil, validationError(err)
	}

	descending := params.ScanIndexForward != nil && !*params.ScanIndexForward
	candidates := m.sorted(m.table(aws.ToString(params.TableName)), descending)

	if len(params.ExclusiveStartKey) > 0 {
		start, err := m.itemKey(params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		for i, item := range candidates {
			if k, _ := m.itemKey(item); k == start {
				candidates = candidates[i+1:]
				break
			}
		}
	}

	out := &dynamodb.QueryOutput{}
	evaluated := 0
	for _, item := range candidates {
		ok, err := keyCond.eval(item)
		if err != nil {
			return nil, validationError(err)
		}
		if !ok {
			continue
		}

		evaluated++
		match, err := filter.eval(item)
		if err != nil {
			return nil, validationError(err)
		}
		if match {
			out.Items = append(out.Items, item)
		}

		if limit := aws.ToInt32(params.Limit); limit > 0 && evaluated == int(limit) {
			out.LastEvaluatedKey = dynalink.Item{
				m.partitionKey: item[m.partitionKey],
				m.sortKey:      item[m.sortKey],
			}
			break
		}
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = int32(evaluated)
	return out, nil
}

// TransactGetItems implements dynalink.DynamoDBClient.
func (m *MemoryClient) TransactGetItems(ctx context.Context, params *dynamodb.TransactGetItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["TransactGetItems"]++

	if n := len(params.TransactItems); n > dynalink.MaxTransactGetItems {
		return nil, validationError(fmt.Errorf("%d items exceeds the transaction limit of %d", n, dynalink.MaxTransactGetItems))
	}
	m.gets += len(params.TransactItems)

	out := &dynamodb.TransactGetItemsOutput{
		Responses: make([]types.ItemResponse, len(params.TransactItems)),
	}
	for i, get := range params.TransactItems {
		if get.Get == nil {
			return nil, validationError(fmt.Errorf("transact item %d has no Get", i))
		}
		key, err := m.itemKey(get.Get.Key)
		if err != nil {
			return nil, err
		}
		if item, ok := m.table(aws.ToString(get.Get.TableName))[key]; ok {
			out.Responses[i].Item = copyItem(item)
		}
	}
	return out, nil
}

// TransactWriteItems implements dynalink.DynamoDBClient. Every condition is evaluated
// against the state before the transaction; if any fails, nothing is written and a
// TransactionCanceledException carries one reason per item.
func (m *MemoryClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["TransactWriteItems"]++

	if n := len(params.TransactItems); n > dynalink.MaxTransactWriteItems {
		return nil, validationError(fmt.Errorf("%d items exceeds the transaction limit of %d", n, dynalink.MaxTransactWriteItems))
	}

	type write struct {
		table string
		key   string
		apply func(current dynalink.Item, exists bool) (dynalink.Item, error)
	}

	var (
		writes  = make([]write, 0, len(params.TransactItems))
		reasons = make([]types.CancellationReason, len(params.TransactItems))
		failed  bool
		seen    = make(map[string]bool)
	)

	for i, op := range params.TransactItems {
		tableName, keyItem, cond, exprCtx, apply, err := m.describeWrite(op)
		if err != nil {
			return nil, validationError(fmt.Errorf("transact item %d: %w", i, err))
		}
		key, err := m.itemKey(keyItem)
		if err != nil {
			return nil, validationError(fmt.Errorf("transact item %d: %w", i, err))
		}
		if seen[tableName+"\x00"+key] {
			return nil, validationError(errors.New("transaction cannot include multiple operations on one item"))
		}
		seen[tableName+"\x00"+key] = true

		current, exists := m.table(tableName)[key]
		check, err := parseCondition(cond, exprCtx)
		if err != nil {
			return nil, validationError(err)
		}
		evalItem := current
		if !exists {
			evalItem = dynalink.Item{}
		}
		ok, err := check.eval(evalItem)
		if err != nil {
			return nil, validationError(err)
		}

		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if !ok {
			failed = true
			reasons[i] = types.CancellationReason{
				Code:    aws.String("ConditionalCheckFailed"),
				Message: aws.String("The conditional request failed"),
			}
		}
		writes = append(writes, write{table: tableName, key: key, apply: apply})
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	// Stage every write before applying any, so an invalid update leaves no trace.
	staged := make([]dynalink.Item, len(writes))
	for i, w := range writes {
		current, exists := m.table(w.table)[w.key]
		next, err := w.apply(copyItem(current), exists)
		if err != nil {
			return nil, validationError(err)
		}
		staged[i] = next
	}
	for i, w := range writes {
		if staged[i] == nil {
			delete(m.table(w.table), w.key)
			continue
		}
		m.table(w.table)[w.key] = staged[i]
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// describeWrite returns the target, condition and effect of one transaction item. The
// effect returns the new item, or nil to delete it.
func (m *MemoryClient) describeWrite(op types.TransactWriteItem) (
	tableName string,
	key dynalink.Item,
	cond string,
	exprCtx expressionContext,
	apply func(dynalink.Item, bool) (dynalink.Item, error),
	err error,
) {
	switch {
	case op.Put != nil:
		put := op.Put
		exprCtx = expressionContext{names: put.ExpressionAttributeNames, values: put.ExpressionAttributeValues}
		apply = func(dynalink.Item, bool) (dynalink.Item, error) { return copyItem(put.Item), nil }
		return aws.ToString(put.TableName), put.Item, aws.ToString(put.ConditionExpression), exprCtx, apply, nil
	case op.Update != nil:
		update := op.Update
		exprCtx = expressionContext{names: update.ExpressionAttributeNames, values: update.ExpressionAttributeValues}
		apply = func(current dynalink.Item, exists bool) (dynalink.Item, error) {
			if !exists {
				current = copyItem(update.Key)
			}
			if err := applyUpdate(current, aws.ToString(update.UpdateExpression), exprCtx); err != nil {
				return nil, err
			}
			return current, nil
		}
		return aws.ToString(update.TableName), update.Key, aws.ToString(update.ConditionExpression), exprCtx, apply, nil
	case op.Delete != nil:
		del := op.Delete
		exprCtx = expressionContext{names: del.ExpressionAttributeNames, values: del.ExpressionAttributeValues}
		apply = func(dynalink.Item, bool) (dynalink.Item, error) { return nil, nil }
		return aws.ToString(del.TableName), del.Key, aws.ToString(del.ConditionExpression), exprCtx, apply, nil
	case op.ConditionCheck != nil:
		check := op.ConditionCheck
		exprCtx = expressionContext{names: check.ExpressionAttributeNames, values: check.ExpressionAttributeValues}
		apply = func(current dynalink.Item, exists bool) (dynalink.Item, error) {
			if !exists {
				return nil, nil
			}
			return current, nil
		}
		return aws.ToString(check.TableName), check.Key, aws.ToString(check.ConditionExpression), exprCtx, apply, nil
	}
	return "", nil, "", exprCtx, nil, errors.New("empty transact write item")
}

func (m *MemoryClient) table(name string) map[string]dynalink.Item {
	t, ok := m.tables[name]
	if !ok {
		t = make(map[string]dynalink.Item)
		m.tables[name] = t
	}
	return t
}

func (m *MemoryClient) itemKey(item dynalink.Item) (string, error) {
	pk, ok := item[m.partitionKey].(*types.AttributeValueMemberS)
	if !ok {
		return "", validationError(fmt.Errorf("missing partition key %s", m.partitionKey))
	}
	sk, ok := item[m.sortKey].(*types.AttributeValueMemberS)
	if !ok {
		return "", validationError(fmt.Errorf("missing sort key %s", m.sortKey))
	}
	return pk.Value + "\x00" + sk.Value, nil
}

// sorted returns copies of the items ordered by partition key, then sort key.
func (m *MemoryClient) sorted(table map[string]dynalink.Item, descending bool) []dynalink.Item {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if descending {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	}

	items := make([]dynalink.Item, len(keys))
	for i, k := range keys {
		items[i] = copyItem(table[k])
	}
	return items
}

func copyItem(item dynalink.Item) dynalink.Item {
	if item == nil {
		return nil
	}
	out := make(dynalink.Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// validationError reports a malformed request the way the service does: an API error
// with the ValidationException code and a client fault.
func validationError(err error) error {
	return &smithy.GenericAPIError{
		Code:    "ValidationException",
		Message: err.Error(),
		Fault:   smithy.FaultClient,
	}
}
