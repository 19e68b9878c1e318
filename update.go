package dynalink

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Update modifies the attributes of an existing entity. Supplied attributes are set,
// nullable attributes supplied as null are removed, and UpdatedAt is refreshed.
//
// When a BelongsTo foreign key changes, the link row for the previous value is deleted
// and a new one is added, in the same transaction as the update. A foreign key supplied
// as null also deletes the link row for its previous value, where stores that clear the
// attribute alone would leave that row behind.
//
// The current entity is read at most once per call, and only when a foreign key is
// supplied.
func (m *Mapper) Update(ctx context.Context, entityType, id string, in any) error {
	info, err := m.describe(entityType)
	if err != nil {
		return err
	}

	attrs, err := MarshalAttributes(in)
	if err != nil {
		return err
	}
	values, nulls, err := info.prepareAttributes(attrs, false)
	if err != nil {
		return err
	}

	now := m.now(info.table)
	update, err := info.updateExpression(id, values, nulls, now)
	if err != nil {
		return err
	}

	tx := m.newWriteBuilder(info.table)
	tx.AddUpdate(update, fmt.Sprintf("%s with id: %s does not exist", entityType, id))

	current := m.currentEntity(info, id)
	links := m.newLinker(info, id, now, tx)

	for _, rel := range info.belongsTo() {
		fkValue, set := values[rel.ForeignKey]
		cleared := !set && slices.Contains(nulls, rel.ForeignKey)
		if !set && !cleared {
			continue
		}

		prev, err := current(ctx)
		if err != nil {
			return err
		}
		prevFK, hadFK := prev.String(rel.ForeignKey)

		if cleared {
			if hadFK {
				links.unlink(rel, prevFK)
			}
			continue
		}

		fk := fkValue.(*types.AttributeValueMemberS).Value
		switch {
		case hadFK && prevFK == fk:
			if err := links.check(rel, fk); err != nil {
				return err
			}
		default:
			if hadFK {
				links.unlink(rel, prevFK)
			}
			if err := links.link(rel, fk); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to update %s: %w", entityType, err)
	}

	m.opts.Logger.Debug("updated entity",
		zap.String("type", entityType),
		zap.String("id", id),
		zap.Int("operation_count", tx.Len()))
	return nil
}

// currentEntity returns a loader that reads the stored entity on first use and returns
// the same result on every later call.
func (m *Mapper) currentEntity(info *entityInfo, id string) func(context.Context) (*Entity, error) {
	var (
		loaded bool
		entity *Entity
		err    error
	)
	return func(ctx context.Context) (*Entity, error) {
		if !loaded {
			entity, err = m.getEntity(ctx, info, id, true)
			loaded = true
		}
		return entity, err
	}
}

// updateExpression builds the keyed update of the entity row.
func (info *entityInfo) updateExpression(id string, values Item, nulls []string, now time.Time) (*types.Update, error) {
	table := info.table
	update := expression.Set(
		expression.Name(table.Aliases.UpdatedAt),
		expression.Value(&types.AttributeValueMemberS{Value: FormatTime(now)}),
	)
	for _, attr := range info.attrs {
		if av, ok := values[attr.Name]; ok {
			update = update.Set(expression.Name(attr.Alias), expression.Value(av))
		}
		if slices.Contains(nulls, attr.Name) {
			update = update.Remove(expression.Name(attr.Alias))
		}
	}
	return keyedUpdate(table, table.EntityKey(info.name, id), update)
}
