package dynalink

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// prepareAttributes validates the attributes supplied to Create or Update. Default
// attributes and relationship properties are dropped; they are owned by the mapper.
// It returns the non-null values and the names of nullable attributes set to null.
func (info *entityInfo) prepareAttributes(in Item, create bool) (values Item, nulls []string, err error) {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	values = make(Item, len(in))
	for _, name := range names {
		av := in[name]
		if isDefaultAttribute(name) || info.isRelationship(name) {
			continue
		}
		attr, ok := info.byName[name]
		if !ok {
			errs = append(errs, &ValidationError{EntityType: info.name, Attribute: name, Reason: "unknown attribute"})
			continue
		}
		if isNull(av) {
			if !attr.Nullable {
				errs = append(errs, &ValidationError{EntityType: info.name, Attribute: name, Reason: "cannot be null"})
			} else if !create {
				nulls = append(nulls, name)
			}
			continue
		}
		if attr.ForeignKeyTarget != "" {
			if _, ok := av.(*types.AttributeValueMemberS); !ok {
				errs = append(errs, &ValidationError{EntityType: info.name, Attribute: name, Reason: "foreign key must be a string"})
				continue
			}
		}
		values[name] = av
	}

	if create {
		for _, attr := range info.attrs {
			if _, ok := values[attr.Name]; !ok && !attr.Nullable {
				errs = append(errs, &ValidationError{EntityType: info.name, Attribute: attr.Name, Reason: "is required"})
			}
		}
	}

	if len(errs) > 0 {
		return nil, nil, errors.Join(errs...)
	}
	return values, nulls, nil
}

// linker emits the link maintenance operations for the BelongsTo relationships of one
// entity into a write builder.
type linker struct {
	m     *Mapper
	info  *entityInfo
	id    string
	now   time.Time
	tx    *TransactWriteBuilder
	links int
}

func (m *Mapper) newLinker(info *entityInfo, id string, now time.Time, tx *TransactWriteBuilder) *linker {
	return &linker{m: m, info: info, id: id, now: now, tx: tx}
}

// check asserts that the target of rel with id fk exists.
func (l *linker) check(rel BelongsTo, fk string) error {
	table := l.info.table
	cond, err := keyExists(table, true)
	if err != nil {
		return err
	}
	l.tx.AddConditionCheck(&types.ConditionCheck{
		Key:                      table.EntityKey(rel.Target, fk),
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	}, fmt.Sprintf("%s with ID '%s' does not exist", rel.Target, fk))
	return nil
}

// link asserts that the target exists and, when the target declares a reciprocal
// relationship, puts a link row in the target's partition.
func (l *linker) link(rel BelongsTo, fk string) error {
	if err := l.check(rel, fk); err != nil {
		return err
	}

	reciprocal, ok := ReciprocalOf(l.m.meta, l.info.name, rel)
	if !ok {
		return nil
	}
	_, single := reciprocal.(HasOne)

	table := l.info.table
	key := table.LinkKey(rel.Target, fk, l.info.name, l.id, single)
	link := &BelongsToLink{
		ID:                l.m.opts.NewID(),
		ForeignKey:        l.id,
		ForeignEntityType: l.info.name,
		CreatedAt:         l.now,
		UpdatedAt:         l.now,
		PartitionKey:      key[table.PartitionKey].(*types.AttributeValueMemberS).Value,
		SortKey:           key[table.SortKey].(*types.AttributeValueMemberS).Value,
	}

	cond, err := keyExists(table, false)
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("%s with id: %s is already linked to %s with id: %s", l.info.name, l.id, rel.Target, fk)
	if single {
		msg = fmt.Sprintf("%s with id: %s already has an associated %s", rel.Target, fk, l.info.name)
	}
	l.tx.AddPut(&types.Put{
		Item:                     EncodeLink(table, link),
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	}, msg)
	l.links++
	return nil
}

// unlink deletes the link row created for the previous foreign key value, if the
// target declares a reciprocal relationship.
func (l *linker) unlink(rel BelongsTo, oldFK string) {
	reciprocal, ok := ReciprocalOf(l.m.meta, l.info.name, rel)
	if !ok {
		return
	}
	_, single := reciprocal.(HasOne)
	l.tx.AddDelete(&types.Delete{
		Key: l.info.table.LinkKey(rel.Target, oldFK, l.info.name, l.id, single),
	}, "")
}

// belongsTo returns the BelongsTo relationships of the entity type.
func (info *entityInfo) belongsTo() []BelongsTo {
	var out []BelongsTo
	for _, rel := range info.rels {
		if bt, ok := rel.(BelongsTo); ok {
			out = append(out, bt)
		}
	}
	return out
}
