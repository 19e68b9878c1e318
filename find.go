package dynalink

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// FindOptions configures [Mapper.FindByID].
type FindOptions struct {
	Include        []string // Relationship properties to resolve
	ConsistentRead bool     // Use a strongly consistent point read when nothing is included
}

// Include resolves the named relationship properties.
func Include(props ...string) func(*FindOptions) {
	return func(o *FindOptions) { o.Include = append(o.Include, props...) }
}

// FindByID reads one entity. Without includes it is a single point read. With includes,
// the entity's partition is queried once with strongly consistent reads for the entity
// row and the link rows of the included relationships; the related entities, and the
// targets of included BelongsTo relationships, are then fetched with transactional gets
// and attached to [Entity.One] and [Entity.Many].
//
// It returns ErrItemNotFound when the entity does not exist.
func (m *Mapper) FindByID(ctx context.Context, entityType, id string, opts ...func(*FindOptions)) (*Entity, error) {
	var options FindOptions
	for _, opt := range opts {
		opt(&options)
	}

	info, err := m.describe(entityType)
	if err != nil {
		return nil, err
	}

	if len(options.Include) == 0 {
		return m.getEntity(ctx, info, id, options.ConsistentRead)
	}

	includes, err := info.includes(options.Include)
	if err != nil {
		return nil, err
	}

	items, err := m.queryPartition(ctx, info, id, includeFilter(entityType, includes))
	if err != nil {
		return nil, err
	}

	var (
		entity *Entity
		links  []*BelongsToLink
	)
	for _, item := range items {
		record, err := DecodeRecord(info.table, m.meta, item)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s partition: %w", info.table.Key(entityType, id), err)
		}
		switch record := record.(type) {
		case *Entity:
			if record.Type == entityType {
				entity = record
			}
		case *BelongsToLink:
			links = append(links, record)
		}
	}
	if entity == nil {
		return nil, fmt.Errorf("%s with id: %s: %w", entityType, id, ErrItemNotFound)
	}

	if err := m.resolveIncludes(ctx, info, entity, includes, links); err != nil {
		return nil, err
	}
	return entity, nil
}

// includes returns the relationships named by props.
func (info *entityInfo) includes(props []string) ([]Relationship, error) {
	rels := make([]Relationship, 0, len(props))
	seen := make(map[string]bool, len(props))
	for _, prop := range props {
		if seen[prop] {
			continue
		}
		rel, ok := info.relationship(prop)
		if !ok {
			return nil, fmt.Errorf("%s has no relationship %q", info.name, prop)
		}
		seen[prop] = true
		rels = append(rels, rel)
	}
	return rels, nil
}

// includeFilter matches the entity's own row, or any link row whose related type is
// the target of an included relationship stored as links.
func includeFilter(entityType string, includes []Relationship) *Filter {
	filter := &Filter{Or: []AndConditions{{AttributeNameType: entityType}}}

	var targets []string
	seen := make(map[string]bool)
	for _, rel := range includes {
		if _, ok := rel.(BelongsTo); ok || seen[rel.TargetType()] {
			continue
		}
		seen[rel.TargetType()] = true
		targets = append(targets, rel.TargetType())
	}
	if len(targets) > 0 {
		filter.Or = append(filter.Or, AndConditions{
			AttributeNameType:              LinkType,
			AttributeNameForeignEntityType: targets,
		})
	}
	return filter
}

// resolveIncludes fetches the related entities of the included relationships and
// attaches them to entity.
func (m *Mapper) resolveIncludes(ctx context.Context, info *entityInfo, entity *Entity, includes []Relationship, links []*BelongsToLink) error {
	var (
		gets    = m.newGetBuilder(info.table)
		pending []Relationship
	)

	entity.One = make(map[string]*Entity)
	entity.Many = make(map[string][]*Entity)

	for _, rel := range includes {
		switch rel := rel.(type) {
		case HasMany, HasAndBelongsToMany:
			entity.Many[rel.Property()] = []*Entity{}
		case BelongsTo:
			fk, ok := entity.String(rel.ForeignKey)
			if !ok {
				continue
			}
			gets.AddGet(&types.Get{Key: info.table.EntityKey(rel.Target, fk)})
			pending = append(pending, rel)
		}
	}

	for _, link := range links {
		rel, ok := info.linkRelationship(link)
		if !ok || !included(includes, rel) {
			m.opts.Logger.Warn("no included relationship matches link",
				zap.String("type", info.name),
				zap.String("id", entity.ID),
				zap.String("foreign_entity_type", link.ForeignEntityType))
			continue
		}
		gets.AddGet(&types.Get{Key: info.table.EntityKey(link.ForeignEntityType, link.ForeignKey)})
		pending = append(pending, rel)
	}

	items, err := gets.Commit(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve %s includes: %w", info.name, err)
	}

	for i, item := range items {
		rel := pending[i]
		if item == nil {
			m.opts.Logger.Warn("related entity does not exist",
				zap.String("type", info.name),
				zap.String("id", entity.ID),
				zap.String("relationship", rel.Property()))
			continue
		}

		attrs, err := m.meta.AttributesOf(rel.TargetType())
		if err != nil {
			return err
		}
		related, err := DecodeEntity(info.table, attrs, item)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", rel.TargetType(), err)
		}
		if related.Type != rel.TargetType() {
			m.opts.Logger.Warn("related entity has unexpected type",
				zap.String("relationship", rel.Property()),
				zap.String("expected", rel.TargetType()),
				zap.String("actual", related.Type))
			continue
		}

		switch rel.(type) {
		case HasMany, HasAndBelongsToMany:
			entity.Many[rel.Property()] = append(entity.Many[rel.Property()], related)
		case HasOne, BelongsTo:
			entity.One[rel.Property()] = related
		}
	}

	m.opts.Logger.Debug("resolved includes",
		zap.String("type", info.name),
		zap.String("id", entity.ID),
		zap.Int("get_count", len(pending)))
	return nil
}

func included(includes []Relationship, rel Relationship) bool {
	for _, inc := range includes {
		if inc.Property() == rel.Property() {
			return true
		}
	}
	return false
}
