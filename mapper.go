package dynalink

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DynamoDBClient is the subset of the DynamoDB API used by [Mapper].
type DynamoDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactGetItems(ctx context.Context, params *dynamodb.TransactGetItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Options configures a [Mapper].
type Options struct {
	Logger  *zap.Logger   // Defaults to a no-op logger
	Metrics *Metrics      // Optional transaction metrics
	NewID   func() string // Generates entity and link ids. Defaults to random UUIDs.
	Tick    Clock         // Overrides the table clock when set
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) func(*Options) {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics sets the collectors updated on every transaction.
func WithMetrics(metrics *Metrics) func(*Options) {
	return func(o *Options) { o.Metrics = metrics }
}

// WithIDGenerator sets the function used to generate entity and link ids.
func WithIDGenerator(fn func() string) func(*Options) {
	return func(o *Options) { o.NewID = fn }
}

// WithClock sets the clock used for CreatedAt and UpdatedAt timestamps.
func WithClock(tick Clock) func(*Options) {
	return func(o *Options) { o.Tick = tick }
}

// Mapper persists entities and their relationships. All writes of one operation are
// committed in a single transaction. A Mapper holds no mutable state and is safe for
// concurrent use.
type Mapper struct {
	client DynamoDBClient
	meta   Metadata
	opts   Options
}

// New creates a Mapper over client for the entity types described by meta.
func New(client DynamoDBClient, meta Metadata, opts ...func(*Options)) *Mapper {
	options := Options{
		Logger: zap.NewNop(),
		NewID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	if options.NewID == nil {
		options.NewID = uuid.NewString
	}
	return &Mapper{client: client, meta: meta, opts: options}
}

// entityInfo is the registry view of one entity type, resolved once per operation.
type entityInfo struct {
	name   string
	table  *Table
	attrs  []Attribute
	byName map[string]Attribute
	rels   []Relationship
}

func (m *Mapper) describe(entityType string) (*entityInfo, error) {
	table, err := m.meta.TableOf(entityType)
	if err != nil {
		return nil, err
	}
	attrs, err := m.meta.AttributesOf(entityType)
	if err != nil {
		return nil, err
	}
	rels, err := m.meta.RelationshipsOf(entityType)
	if err != nil {
		return nil, err
	}

	info := &entityInfo{
		name:   entityType,
		table:  table,
		attrs:  attrs,
		byName: make(map[string]Attribute, len(attrs)),
		rels:   rels,
	}
	for _, attr := range attrs {
		info.byName[attr.Name] = attr
	}
	return info, nil
}

// relationship returns the relationship declared under prop.
func (info *entityInfo) relationship(prop string) (Relationship, bool) {
	for _, rel := range info.rels {
		if rel.Property() == prop {
			return rel, true
		}
	}
	return nil, false
}

func (info *entityInfo) isRelationship(name string) bool {
	_, ok := info.relationship(name)
	return ok
}

// resolve maps an entity-side name to its wire name. Unknown names are used as given.
func (info *entityInfo) resolve(name string) string {
	if alias, ok := defaultAlias(info.table, name); ok {
		return alias
	}
	if attr, ok := info.byName[name]; ok {
		return attr.Alias
	}
	return name
}

func (m *Mapper) now(table *Table) time.Time {
	if m.opts.Tick != nil {
		return m.opts.Tick()
	}
	return table.now()
}

func (m *Mapper) transactOptions(o *TransactOptions) {
	o.Logger = m.opts.Logger
	o.Metrics = m.opts.Metrics
}

func (m *Mapper) newWriteBuilder(table *Table) *TransactWriteBuilder {
	return NewTransactWriteBuilder(m.client, table, m.transactOptions)
}

func (m *Mapper) newGetBuilder(table *Table) *TransactGetBuilder {
	return NewTransactGetBuilder(m.client, table, m.transactOptions)
}

// getEntity reads one entity row. It returns ErrItemNotFound when the row is absent.
func (m *Mapper) getEntity(ctx context.Context, info *entityInfo, id string, consistent bool) (*Entity, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(info.table.TableName),
		Key:       info.table.EntityKey(info.name, id),
	}
	if consistent {
		input.ConsistentRead = aws.Bool(true)
	}

	out, err := m.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", info.name, id, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%s with id: %s: %w", info.name, id, ErrItemNotFound)
	}

	e, err := DecodeEntity(info.table, info.attrs, out.Item)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", info.name, id, err)
	}
	return e, nil
}

// keyExists builds the condition that the row addressed by the operation's key exists,
// or when exists is false, that it does not.
func keyExists(table *Table, exists bool) (expression.Expression, error) {
	expr, err := expression.NewBuilder().WithCondition(keyCondition(table, exists)).Build()
	if err != nil {
		return expression.Expression{}, fmt.Errorf("failed to build condition: %w", err)
	}
	return expr, nil
}

func keyCondition(table *Table, exists bool) expression.ConditionBuilder {
	if exists {
		return expression.AttributeExists(expression.Name(table.PartitionKey))
	}
	return expression.AttributeNotExists(expression.Name(table.PartitionKey))
}

// keyedUpdate builds an update of the row at key guarded by the row's existence.
func keyedUpdate(table *Table, key Item, update expression.UpdateBuilder) (*types.Update, error) {
	expr, err := expression.NewBuilder().
		WithCondition(keyCondition(table, true)).
		WithUpdate(update).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}
	return &types.Update{
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}
