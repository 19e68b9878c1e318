package dynalink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TransactWriteAPI is the client primitive used by [TransactWriteBuilder].
type TransactWriteAPI interface {
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// TransactGetAPI is the client primitive used by [TransactGetBuilder].
type TransactGetAPI interface {
	TransactGetItems(ctx context.Context, params *dynamodb.TransactGetItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error)
}

// TransactOptions configures the transaction builders.
type TransactOptions struct {
	Logger  *zap.Logger
	Metrics *Metrics
}

func newTransactOptions(opts []func(*TransactOptions)) TransactOptions {
	options := TransactOptions{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	return options
}

// TransactWriteBuilder accumulates the write operations of one logical operation and
// commits them as a single DynamoDB transaction. Each operation may carry a message,
// reported when its condition fails. A builder can be committed once.
type TransactWriteBuilder struct {
	client    TransactWriteAPI
	table     *Table
	opts      TransactOptions
	items     []types.TransactWriteItem
	messages  map[int]string
	committed bool
}

// NewTransactWriteBuilder creates a write builder for table.
func NewTransactWriteBuilder(client TransactWriteAPI, table *Table, opts ...func(*TransactOptions)) *TransactWriteBuilder {
	return &TransactWriteBuilder{
		client:   client,
		table:    table,
		opts:     newTransactOptions(opts),
		messages: make(map[int]string),
	}
}

// AddPut adds a put operation and returns its position in the transaction.
func (b *TransactWriteBuilder) AddPut(put *types.Put, errMsg string) int {
	if put.TableName == nil {
		put.TableName = aws.String(b.table.TableName)
	}
	return b.add(types.TransactWriteItem{Put: put}, errMsg)
}

// AddUpdate adds an update operation and returns its position in the transaction.
func (b *TransactWriteBuilder) AddUpdate(update *types.Update, errMsg string) int {
	if update.TableName == nil {
		update.TableName = aws.String(b.table.TableName)
	}
	return b.add(types.TransactWriteItem{Update: update}, errMsg)
}

// AddDelete adds a delete operation and returns its position in the transaction.
func (b *TransactWriteBuilder) AddDelete(del *types.Delete, errMsg string) int {
	if del.TableName == nil {
		del.TableName = aws.String(b.table.TableName)
	}
	return b.add(types.TransactWriteItem{Delete: del}, errMsg)
}

// AddConditionCheck adds a condition check and returns its position in the transaction.
func (b *TransactWriteBuilder) AddConditionCheck(check *types.ConditionCheck, errMsg string) int {
	if check.TableName == nil {
		check.TableName = aws.String(b.table.TableName)
	}
	return b.add(types.TransactWriteItem{ConditionCheck: check}, errMsg)
}

func (b *TransactWriteBuilder) add(item types.TransactWriteItem, errMsg string) int {
	index := len(b.items)
	b.items = append(b.items, item)
	if errMsg != "" {
		b.messages[index] = errMsg
	}
	return index
}

// Len returns the number of operations added so far.
func (b *TransactWriteBuilder) Len() int {
	return len(b.items)
}

// Items returns the operations added so far.
func (b *TransactWriteBuilder) Items() []types.TransactWriteItem {
	return b.items
}

// Commit dispatches the accumulated operations in one TransactWriteItems call. An empty
// builder commits without a request. When DynamoDB cancels the transaction, every item
// canceled by a failed condition is reported as a [*ConditionalCheckFailedError] inside
// a [*TransactionCanceledError]. Any other failure is returned unchanged.
func (b *TransactWriteBuilder) Commit(ctx context.Context) error {
	if b.committed {
		return ErrBuilderCommitted
	}
	b.committed = true

	if len(b.items) == 0 {
		return nil
	}

	limit := b.table.MaxWriteItems
	if limit <= 0 || limit > MaxTransactWriteItems {
		limit = MaxTransactWriteItems
	}
	if len(b.items) > limit {
		b.opts.Metrics.observe(kindWrite, outcomeRejected, 0, 0)
		return fmt.Errorf("%w: %d operations, limit is %d", ErrTransactionTooLarge, len(b.items), limit)
	}

	b.opts.Logger.Debug("committing write transaction",
		zap.String("table", b.table.TableName),
		zap.Int("item_count", len(b.items)))

	start := time.Now()
	_, err := b.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: b.items,
	})
	elapsed := time.Since(start)

	if err == nil {
		b.opts.Metrics.observe(kindWrite, outcomeCommitted, len(b.items), elapsed)
		return nil
	}

	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		b.opts.Metrics.observe(kindWrite, outcomeError, len(b.items), elapsed)
		return err
	}

	b.opts.Metrics.observe(kindWrite, outcomeCanceled, len(b.items), elapsed)
	failures := b.conditionFailures(canceled)
	if len(failures) == 0 {
		return err
	}
	b.opts.Metrics.conditionFailed(len(failures))
	b.opts.Logger.Debug("write transaction canceled",
		zap.String("table", b.table.TableName),
		zap.Int("condition_failures", len(failures)))
	return &TransactionCanceledError{Errors: failures, Cause: canceled}
}

// conditionFailures walks the cancellation reasons, which are positionally aligned with
// the transaction items.
func (b *TransactWriteBuilder) conditionFailures(canceled *types.TransactionCanceledException) []error {
	var failures []error
	for i, reason := range canceled.CancellationReasons {
		code := aws.ToString(reason.Code)
		if code != cancellationCodeConditionalCheckFailed {
			continue
		}
		msg, ok := b.messages[i]
		if !ok {
			msg = aws.ToString(reason.Message)
		}
		if msg == "" {
			msg = "conditional check failed"
		}
		failures = append(failures, &ConditionalCheckFailedError{Index: i, Code: code, Message: msg})
	}
	return failures
}

// TransactGetBuilder accumulates point reads and dispatches them in chunks of at most
// the table's get batch size. Chunks run concurrently.
type TransactGetBuilder struct {
	client    TransactGetAPI
	table     *Table
	opts      TransactOptions
	gets      []types.TransactGetItem
	committed bool
}

// NewTransactGetBuilder creates a get builder for table.
func NewTransactGetBuilder(client TransactGetAPI, table *Table, opts ...func(*TransactOptions)) *TransactGetBuilder {
	return &TransactGetBuilder{
		client: client,
		table:  table,
		opts:   newTransactOptions(opts),
	}
}

// AddGet adds a point read and returns its position in the result.
func (b *TransactGetBuilder) AddGet(get *types.Get) int {
	if get.TableName == nil {
		get.TableName = aws.String(b.table.TableName)
	}
	b.gets = append(b.gets, types.TransactGetItem{Get: get})
	return len(b.gets) - 1
}

// Len returns the number of gets added so far.
func (b *TransactGetBuilder) Len() int {
	return len(b.gets)
}

// Commit dispatches the gets and returns one item per get, in the order they were
// added. A missing item is a nil entry.
func (b *TransactGetBuilder) Commit(ctx context.Context) ([]Item, error) {
	if b.committed {
		return nil, ErrBuilderCommitted
	}
	b.committed = true

	if len(b.gets) == 0 {
		return nil, nil
	}

	size := b.table.GetBatchSize
	if size <= 0 || size > MaxTransactGetItems {
		size = MaxTransactGetItems
	}

	results := make([]Item, len(b.gets))
	g, ctx := errgroup.WithContext(ctx)

	for start := 0; start < len(b.gets); start += size {
		end := start + size
		if end > len(b.gets) {
			end = len(b.gets)
		}

		g.Go(func() error {
			chunk := b.gets[start:end]
			b.opts.Logger.Debug("committing get transaction",
				zap.String("table", b.table.TableName),
				zap.Int("offset", start),
				zap.Int("item_count", len(chunk)))

			began := time.Now()
			out, err := b.client.TransactGetItems(ctx, &dynamodb.TransactGetItemsInput{
				TransactItems: chunk,
			})
			if err != nil {
				b.opts.Metrics.observe(kindGet, outcomeError, len(chunk), time.Since(began))
				return fmt.Errorf("failed to get items %d-%d: %w", start, end-1, err)
			}
			b.opts.Metrics.observe(kindGet, outcomeCommitted, len(chunk), time.Since(began))

			if len(out.Responses) != len(chunk) {
				return fmt.Errorf("expected %d responses for items %d-%d, got %d", len(chunk), start, end-1, len(out.Responses))
			}
			for i, resp := range out.Responses {
				if len(resp.Item) > 0 {
					results[start+i] = resp.Item
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
