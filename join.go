package dynalink

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// joinRelationship finds the HasAndBelongsToMany relationship from owner to target and
// checks that target declares its reciprocal through the same join table.
func (m *Mapper) joinRelationship(owner *entityInfo, target string) (HasAndBelongsToMany, error) {
	for _, rel := range owner.rels {
		habtm, ok := rel.(HasAndBelongsToMany)
		if !ok || habtm.Target != target {
			continue
		}
		rels, err := m.meta.RelationshipsOf(target)
		if err != nil {
			return HasAndBelongsToMany{}, err
		}
		for _, back := range rels {
			if r, ok := back.(HasAndBelongsToMany); ok && r.Target == owner.name && r.JoinTable == habtm.JoinTable {
				return habtm, nil
			}
		}
	}
	return HasAndBelongsToMany{}, fmt.Errorf("%s has no many-to-many relationship with %s", owner.name, target)
}

// Link joins two entities related by HasAndBelongsToMany. Both entities must exist;
// a link row is added to each partition. Linking an already joined pair fails with a
// [*ConditionalCheckFailedError].
func (m *Mapper) Link(ctx context.Context, entityType, id, targetType, targetID string) error {
	info, err := m.describe(entityType)
	if err != nil {
		return err
	}
	if _, err := m.joinRelationship(info, targetType); err != nil {
		return err
	}

	table := info.table
	exists, err := keyExists(table, true)
	if err != nil {
		return err
	}
	notExists, err := keyExists(table, false)
	if err != nil {
		return err
	}

	now := m.now(table)
	tx := m.newWriteBuilder(table)

	for _, side := range [][2]string{{entityType, id}, {targetType, targetID}} {
		tx.AddConditionCheck(&types.ConditionCheck{
			Key:                      table.EntityKey(side[0], side[1]),
			ConditionExpression:      exists.Condition(),
			ExpressionAttributeNames: exists.Names(),
		}, fmt.Sprintf("%s with ID '%s' does not exist", side[0], side[1]))
	}

	for _, edge := range []struct{ owner, ownerID, related, relatedID string }{
		{entityType, id, targetType, targetID},
		{targetType, targetID, entityType, id},
	} {
		link := &BelongsToLink{
			ID:                m.opts.NewID(),
			ForeignKey:        edge.relatedID,
			ForeignEntityType: edge.related,
			CreatedAt:         now,
			UpdatedAt:         now,
			PartitionKey:      table.Key(edge.owner, edge.ownerID),
			SortKey:           table.Key(edge.related, edge.relatedID),
		}
		tx.AddPut(&types.Put{
			Item:                     EncodeLink(table, link),
			ConditionExpression:      notExists.Condition(),
			ExpressionAttributeNames: notExists.Names(),
		}, fmt.Sprintf("%s with id: %s is already linked to %s with id: %s", edge.owner, edge.ownerID, edge.related, edge.relatedID))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to link %s to %s: %w", entityType, targetType, err)
	}

	m.opts.Logger.Debug("linked entities",
		zap.String("type", entityType),
		zap.String("id", id),
		zap.String("target_type", targetType),
		zap.String("target_id", targetID))
	return nil
}

// Unlink removes the pair of link rows joining two entities. It fails with a
// [*ConditionalCheckFailedError] when either link row does not exist.
func (m *Mapper) Unlink(ctx context.Context, entityType, id, targetType, targetID string) error {
	info, err := m.describe(entityType)
	if err != nil {
		return err
	}
	if _, err := m.joinRelationship(info, targetType); err != nil {
		return err
	}

	table := info.table
	exists, err := keyExists(table, true)
	if err != nil {
		return err
	}

	tx := m.newWriteBuilder(table)
	tx.AddDelete(&types.Delete{
		Key:                      table.LinkKey(entityType, id, targetType, targetID, false),
		ConditionExpression:      exists.Condition(),
		ExpressionAttributeNames: exists.Names(),
	}, fmt.Sprintf("%s with id: %s is not linked to %s with id: %s", entityType, id, targetType, targetID))
	tx.AddDelete(&types.Delete{
		Key:                      table.LinkKey(targetType, targetID, entityType, id, false),
		ConditionExpression:      exists.Condition(),
		ExpressionAttributeNames: exists.Names(),
	}, fmt.Sprintf("%s with id: %s is not linked to %s with id: %s", targetType, targetID, entityType, id))

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to unlink %s from %s: %w", entityType, targetType, err)
	}
	return nil
}
