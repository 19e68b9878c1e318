package dynalink

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// QueryOptions configures [Mapper.Query] and [Mapper.QueryByID].
type QueryOptions struct {
	Filter         *Filter // Optional filter applied to the key matches
	IndexName      string  // Secondary index to query
	ConsistentRead bool    // Use strongly consistent reads
	Limit          int     // Maximum number of items evaluated, capped at math.MaxInt32
	SortDescending bool    // If true, scans backward
	SortKey        any     // QueryByID only: condition on the sort key
}

// Query runs a single-page query and decodes each row. Rows of registered entity types
// are returned as [*Entity] and link rows as [*BelongsToLink]; links are not resolved.
// Attribute names in key and the filter may be entity-side names of entityType, default
// attribute names (id, type, pk, sk, ...) or wire names.
func (m *Mapper) Query(ctx context.Context, entityType string, key KeyConditions, opts ...func(*QueryOptions)) ([]Record, error) {
	var options QueryOptions
	for _, opt := range opts {
		opt(&options)
	}

	info, err := m.describe(entityType)
	if err != nil {
		return nil, err
	}

	expr, err := CompileQuery(info.resolve, key, options.Filter)
	if err != nil {
		return nil, err
	}
	expr.IndexName = options.IndexName

	input := expr.Input(info.table, options.ConsistentRead)
	if options.Limit > 0 {
		input.Limit = aws.Int32(int32(min(options.Limit, math.MaxInt32)))
	}
	if options.SortDescending {
		input.ScanIndexForward = aws.Bool(false)
	}

	out, err := m.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", entityType, err)
	}

	m.opts.Logger.Debug("query complete",
		zap.String("table", info.table.TableName),
		zap.String("index", options.IndexName),
		zap.Int("item_count", len(out.Items)))

	records := make([]Record, 0, len(out.Items))
	for _, item := range out.Items {
		record, err := DecodeRecord(info.table, m.meta, item)
		if errors.Is(err, ErrUnknownEntityType) {
			m.opts.Logger.Warn("skipping item of unregistered type",
				zap.String("table", info.table.TableName),
				zap.Error(err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode query result: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// QueryByID queries the partition of one entity: its own row and its link rows. Set
// [QueryOptions.SortKey] to narrow the rows, for example with [BeginsWith].
func (m *Mapper) QueryByID(ctx context.Context, entityType, id string, opts ...func(*QueryOptions)) ([]Record, error) {
	info, err := m.describe(entityType)
	if err != nil {
		return nil, err
	}

	var options QueryOptions
	for _, opt := range opts {
		opt(&options)
	}

	key := KeyConditions{AttributeNamePartitionKey: info.table.Key(entityType, id)}
	if options.SortKey != nil {
		key[AttributeNameSortKey] = options.SortKey
	}
	return m.Query(ctx, entityType, key, opts...)
}

// queryPartition reads every row of the partition addressed by entityType and id with
// strongly consistent reads, following pagination.
func (m *Mapper) queryPartition(ctx context.Context, info *entityInfo, id string, filter *Filter) ([]Item, error) {
	key := KeyConditions{AttributeNamePartitionKey: info.table.Key(info.name, id)}
	expr, err := CompileQuery(info.resolve, key, filter)
	if err != nil {
		return nil, err
	}

	var items []Item
	paginator := dynamodb.NewQueryPaginator(m.client, expr.Input(info.table, true))
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s partition: %w", info.table.Key(info.name, id), err)
		}
		items = append(items, page.Items...)
	}

	m.opts.Logger.Debug("partition query complete",
		zap.String("table", info.table.TableName),
		zap.String("type", info.name),
		zap.Int("item_count", len(items)))
	return items, nil
}
