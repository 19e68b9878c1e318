package dynalink

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// CreateOptions configures [Mapper.Create].
type CreateOptions struct {
	ID string // Explicit id. A new id is generated when empty.
}

// WithID creates the entity with the given id instead of a generated one.
func WithID(id string) func(*CreateOptions) {
	return func(o *CreateOptions) { o.ID = id }
}

// Create stores a new entity of entityType. in is an [Item] or a value accepted by
// attributevalue.MarshalMap, keyed by entity-side attribute names.
//
// For every BelongsTo relationship whose foreign key is set, the transaction checks
// that the target exists and, when the target declares a reciprocal HasMany or HasOne,
// adds a link row to the target's partition. The entity and its links are written
// atomically.
func (m *Mapper) Create(ctx context.Context, entityType string, in any, opts ...func(*CreateOptions)) (*Entity, error) {
	var options CreateOptions
	for _, opt := range opts {
		opt(&options)
	}

	info, err := m.describe(entityType)
	if err != nil {
		return nil, err
	}

	attrs, err := MarshalAttributes(in)
	if err != nil {
		return nil, err
	}
	values, _, err := info.prepareAttributes(attrs, true)
	if err != nil {
		return nil, err
	}

	id := options.ID
	if id == "" {
		id = m.opts.NewID()
	}

	now := m.now(info.table)
	entity := &Entity{
		ID:         id,
		Type:       entityType,
		CreatedAt:  now,
		UpdatedAt:  now,
		Attributes: values,
	}

	cond, err := keyExists(info.table, false)
	if err != nil {
		return nil, err
	}

	tx := m.newWriteBuilder(info.table)
	tx.AddPut(&types.Put{
		Item:                     EncodeEntity(info.table, info.attrs, entity),
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	}, fmt.Sprintf("%s with id: %s already exists", entityType, id))

	links := m.newLinker(info, id, now, tx)
	for _, rel := range info.belongsTo() {
		fk, ok := entity.String(rel.ForeignKey)
		if !ok {
			continue
		}
		if err := links.link(rel, fk); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", entityType, err)
	}

	m.opts.Logger.Debug("created entity",
		zap.String("type", entityType),
		zap.String("id", id),
		zap.Int("link_count", links.links))
	return entity, nil
}
