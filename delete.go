package dynalink

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Delete removes an entity, every link row in its partition and the link rows that
// represent its BelongsTo relationships in related partitions. For each HasMany or
// HasOne link, the foreign key on the linked row is removed; when that foreign key is
// not nullable the delete is rejected with one [*NullConstraintViolationError] per
// offending row and nothing is written.
func (m *Mapper) Delete(ctx context.Context, entityType, id string) error {
	info, err := m.describe(entityType)
	if err != nil {
		return err
	}

	items, err := m.queryPartition(ctx, info, id, nil)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%s with id: %s: %w", entityType, id, ErrItemNotFound)
	}

	var (
		tx         = m.newWriteBuilder(info.table)
		violations []error
	)

	for _, item := range items {
		record, err := DecodeRecord(info.table, m.meta, item)
		if err != nil {
			return fmt.Errorf("failed to decode %s partition: %w", info.table.Key(entityType, id), err)
		}

		switch record := record.(type) {
		case *Entity:
			if record.Type != entityType {
				m.opts.Logger.Warn("skipping foreign entity row in partition",
					zap.String("partition", info.table.Key(entityType, id)),
					zap.String("type", record.Type))
				continue
			}
			if err := m.deleteEntityRow(tx, info, record); err != nil {
				return err
			}
		case *BelongsToLink:
			violation, err := m.deleteLinkRow(tx, info, id, record)
			if err != nil {
				return err
			}
			if violation != nil {
				violations = append(violations, violation)
			}
		}
	}

	if len(violations) > 0 {
		return errors.Join(violations...)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to delete %s: %w", entityType, err)
	}

	m.opts.Logger.Debug("deleted entity",
		zap.String("type", entityType),
		zap.String("id", id),
		zap.Int("operation_count", tx.Len()))
	return nil
}

// deleteEntityRow deletes the entity's own row and the links its BelongsTo foreign keys
// created in related partitions.
func (m *Mapper) deleteEntityRow(tx *TransactWriteBuilder, info *entityInfo, e *Entity) error {
	cond, err := keyExists(info.table, true)
	if err != nil {
		return err
	}
	tx.AddDelete(&types.Delete{
		Key:                      info.table.EntityKey(info.name, e.ID),
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	}, fmt.Sprintf("%s with id: %s does not exist", info.name, e.ID))

	links := m.newLinker(info, e.ID, e.UpdatedAt, tx)
	for _, rel := range info.belongsTo() {
		if fk, ok := e.String(rel.ForeignKey); ok {
			links.unlink(rel, fk)
		}
	}
	return nil
}

// deleteLinkRow deletes a link row found in the partition of the entity being deleted,
// along with its counterpart: the reciprocal link of a HasAndBelongsToMany edge, or the
// foreign key on the row of a HasMany or HasOne edge.
func (m *Mapper) deleteLinkRow(tx *TransactWriteBuilder, info *entityInfo, id string, link *BelongsToLink) (*NullConstraintViolationError, error) {
	table := info.table
	tx.AddDelete(&types.Delete{
		Key: Item{
			table.PartitionKey: &types.AttributeValueMemberS{Value: link.PartitionKey},
			table.SortKey:      &types.AttributeValueMemberS{Value: link.SortKey},
		},
	}, "")

	rel, ok := info.linkRelationship(link)
	if !ok {
		m.opts.Logger.Warn("no relationship matches link",
			zap.String("type", info.name),
			zap.String("foreign_entity_type", link.ForeignEntityType))
		return nil, nil
	}

	switch rel := rel.(type) {
	case HasAndBelongsToMany:
		tx.AddDelete(&types.Delete{
			Key: table.LinkKey(link.ForeignEntityType, link.ForeignKey, info.name, id, false),
		}, "")
		return nil, nil
	case HasMany:
		return m.clearForeignKey(tx, table, link, rel.ForeignKey)
	case HasOne:
		return m.clearForeignKey(tx, table, link, rel.ForeignKey)
	}
	return nil, nil
}

// clearForeignKey removes the foreign key attribute from the linked row. It returns a
// violation instead when the attribute is not nullable.
func (m *Mapper) clearForeignKey(tx *TransactWriteBuilder, table *Table, link *BelongsToLink, foreignKey string) (*NullConstraintViolationError, error) {
	attrs, err := m.meta.AttributesOf(link.ForeignEntityType)
	if err != nil {
		return nil, err
	}

	var attr Attribute
	for _, a := range attrs {
		if a.Name == foreignKey {
			attr = a
		}
	}
	if attr.Name == "" {
		return nil, fmt.Errorf("%s has no attribute %q", link.ForeignEntityType, foreignKey)
	}
	if !attr.Nullable {
		return &NullConstraintViolationError{
			EntityType: link.ForeignEntityType,
			EntityID:   link.ForeignKey,
			Attribute:  foreignKey,
		}, nil
	}

	update, err := keyedUpdate(table,
		table.EntityKey(link.ForeignEntityType, link.ForeignKey),
		expression.Remove(expression.Name(attr.Alias)))
	if err != nil {
		return nil, err
	}
	tx.AddUpdate(update, fmt.Sprintf("%s with id: %s does not exist", link.ForeignEntityType, link.ForeignKey))
	return nil, nil
}

// linkRelationship finds the relationship a link row in the entity's partition belongs
// to. A bare sort key marks a HasOne edge.
func (info *entityInfo) linkRelationship(link *BelongsToLink) (Relationship, bool) {
	_, relatedID := info.table.SplitKey(link.SortKey)
	single := relatedID == ""

	var found Relationship
	for _, rel := range info.rels {
		if rel.TargetType() != link.ForeignEntityType {
			continue
		}
		switch rel.(type) {
		case HasOne:
			if single {
				return rel, true
			}
		case HasMany:
			if !single {
				return rel, true
			}
		case HasAndBelongsToMany:
			if !single && found == nil {
				found = rel
			}
		}
	}
	return found, found != nil
}
