package dynalink

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is an alias for the dynamodb attribute value map.
type Item = map[string]types.AttributeValue

// Record is a decoded row: either an [*Entity] or a [*BelongsToLink].
type Record interface {
	// RecordType returns the entity type name, or LinkType for links.
	RecordType() string
	// RecordID returns the row identifier.
	RecordID() string

	record()
}

// Entity is a decoded entity row. Attributes are keyed by entity-side attribute name.
// One and Many hold included relationships keyed by relationship property, and are
// only populated by [Mapper.FindByID].
type Entity struct {
	ID         string
	Type       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Attributes Item
	One        map[string]*Entity   // HasOne and BelongsTo includes
	Many       map[string][]*Entity // HasMany and HasAndBelongsToMany includes
}

// BelongsToLink is a synthetic row representing one half of a relationship edge. It
// lives in the owner's partition and points at the related row.
type BelongsToLink struct {
	ID                string
	ForeignKey        string // id of the related row
	ForeignEntityType string // type of the related row
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PartitionKey      string
	SortKey           string
}

func (e *Entity) RecordType() string        { return e.Type }
func (e *Entity) RecordID() string          { return e.ID }
func (l *BelongsToLink) RecordType() string { return LinkType }
func (l *BelongsToLink) RecordID() string   { return l.ID }

func (*Entity) record()        {}
func (*BelongsToLink) record() {}

// String returns the attribute as a string, and false if it is absent or not a string.
func (e *Entity) String(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	s, ok := e.Attributes[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

// AttributeMap returns the entity as an attribute map keyed by entity-side names,
// including the default attributes and any included relationships nested under
// their property names.
func (e *Entity) AttributeMap() Item {
	m := make(Item, len(e.Attributes)+4+len(e.One)+len(e.Many))
	for k, v := range e.Attributes {
		m[k] = v
	}
	m[AttributeNameID] = &types.AttributeValueMemberS{Value: e.ID}
	m[AttributeNameType] = &types.AttributeValueMemberS{Value: e.Type}
	m[AttributeNameCreatedAt] = &types.AttributeValueMemberS{Value: FormatTime(e.CreatedAt)}
	m[AttributeNameUpdatedAt] = &types.AttributeValueMemberS{Value: FormatTime(e.UpdatedAt)}

	for prop, related := range e.One {
		if related != nil {
			m[prop] = &types.AttributeValueMemberM{Value: related.AttributeMap()}
		}
	}
	for prop, related := range e.Many {
		list := make([]types.AttributeValue, 0, len(related))
		for _, r := range related {
			list = append(list, &types.AttributeValueMemberM{Value: r.AttributeMap()})
		}
		m[prop] = &types.AttributeValueMemberL{Value: list}
	}
	return m
}

// Unmarshal decodes the entity into out, which is usually a pointer to a struct whose
// dynamodbav tags use entity-side attribute and relationship names.
func (e *Entity) Unmarshal(out any) error {
	if err := attributevalue.UnmarshalMap(e.AttributeMap(), out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", e.Type, err)
	}
	return nil
}

// UnmarshalEntities calls [Entity.Unmarshal] on each entity and appends the result to out.
func UnmarshalEntities[T any](entities []*Entity, out *[]T) error {
	for i, e := range entities {
		var value T
		if err := e.Unmarshal(&value); err != nil {
			return fmt.Errorf("failed to unmarshal entity %d: %w", i, err)
		}
		*out = append(*out, value)
	}
	return nil
}

// Entities filters records down to the entities they contain.
func Entities(records []Record) []*Entity {
	var out []*Entity
	for _, r := range records {
		if e, ok := r.(*Entity); ok {
			out = append(out, e)
		}
	}
	return out
}

// Links filters records down to the links they contain.
func Links(records []Record) []*BelongsToLink {
	var out []*BelongsToLink
	for _, r := range records {
		if l, ok := r.(*BelongsToLink); ok {
			out = append(out, l)
		}
	}
	return out
}

// MarshalAttributes converts in into an attribute map keyed by entity-side names. in
// may be an Item, or any value accepted by attributevalue.MarshalMap.
func MarshalAttributes(in any) (Item, error) {
	switch v := in.(type) {
	case nil:
		return Item{}, nil
	case Item:
		out := make(Item, len(v))
		for k, av := range v {
			out[k] = av
		}
		return out, nil
	}

	out, err := attributevalue.MarshalMap(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attributes: %w", err)
	}
	return out, nil
}

func isNull(av types.AttributeValue) bool {
	if av == nil {
		return true
	}
	null, ok := av.(*types.AttributeValueMemberNULL)
	return ok && null.Value
}

// EncodeEntity converts an entity into its wire item.
func EncodeEntity(table *Table, attrs []Attribute, e *Entity) Item {
	item := table.EntityKey(e.Type, e.ID)
	item[table.Aliases.ID] = &types.AttributeValueMemberS{Value: e.ID}
	item[table.Aliases.Type] = &types.AttributeValueMemberS{Value: e.Type}
	item[table.Aliases.CreatedAt] = &types.AttributeValueMemberS{Value: FormatTime(e.CreatedAt)}
	item[table.Aliases.UpdatedAt] = &types.AttributeValueMemberS{Value: FormatTime(e.UpdatedAt)}

	for _, attr := range attrs {
		if av, ok := e.Attributes[attr.Name]; ok && !isNull(av) {
			item[attr.Alias] = av
		}
	}
	return item
}

// EncodeLink converts a link into its wire item.
func EncodeLink(table *Table, link *BelongsToLink) Item {
	return Item{
		table.PartitionKey:              &types.AttributeValueMemberS{Value: link.PartitionKey},
		table.SortKey:                   &types.AttributeValueMemberS{Value: link.SortKey},
		table.Aliases.ID:                &types.AttributeValueMemberS{Value: link.ID},
		table.Aliases.Type:              &types.AttributeValueMemberS{Value: LinkType},
		table.Aliases.ForeignKey:        &types.AttributeValueMemberS{Value: link.ForeignKey},
		table.Aliases.ForeignEntityType: &types.AttributeValueMemberS{Value: link.ForeignEntityType},
		table.Aliases.CreatedAt:         &types.AttributeValueMemberS{Value: FormatTime(link.CreatedAt)},
		table.Aliases.UpdatedAt:         &types.AttributeValueMemberS{Value: FormatTime(link.UpdatedAt)},
	}
}

// DecodeRecord converts a wire item into an [*Entity] or a [*BelongsToLink], based on
// its type attribute.
func DecodeRecord(table *Table, meta Metadata, item Item) (Record, error) {
	typ, ok := stringAttr(item, table.Aliases.Type)
	if !ok {
		return nil, fmt.Errorf("item has no %s attribute", table.Aliases.Type)
	}
	if typ == LinkType {
		return DecodeLink(table, item)
	}
	attrs, err := meta.AttributesOf(typ)
	if err != nil {
		return nil, err
	}
	return DecodeEntity(table, attrs, item)
}

// DecodeEntity converts a wire item into an entity of the type named by the item.
func DecodeEntity(table *Table, attrs []Attribute, item Item) (*Entity, error) {
	e := &Entity{Attributes: make(Item, len(attrs))}
	e.ID, _ = stringAttr(item, table.Aliases.ID)
	e.Type, _ = stringAttr(item, table.Aliases.Type)
	if e.ID == "" || e.Type == "" {
		return nil, fmt.Errorf("item is missing %s or %s", table.Aliases.ID, table.Aliases.Type)
	}

	var err error
	if e.CreatedAt, err = timeAttr(item, table.Aliases.CreatedAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = timeAttr(item, table.Aliases.UpdatedAt); err != nil {
		return nil, err
	}

	for _, attr := range attrs {
		if av, ok := item[attr.Alias]; ok {
			e.Attributes[attr.Name] = av
		}
	}
	return e, nil
}

// DecodeLink converts a wire item into a link.
func DecodeLink(table *Table, item Item) (*BelongsToLink, error) {
	link := &BelongsToLink{}
	link.ID, _ = stringAttr(item, table.Aliases.ID)
	link.ForeignKey, _ = stringAttr(item, table.Aliases.ForeignKey)
	link.ForeignEntityType, _ = stringAttr(item, table.Aliases.ForeignEntityType)
	link.PartitionKey, _ = stringAttr(item, table.PartitionKey)
	link.SortKey, _ = stringAttr(item, table.SortKey)
	if link.ForeignKey == "" || link.ForeignEntityType == "" {
		return nil, fmt.Errorf("link %s is missing %s or %s", link.ID, table.Aliases.ForeignKey, table.Aliases.ForeignEntityType)
	}

	var err error
	if link.CreatedAt, err = timeAttr(item, table.Aliases.CreatedAt); err != nil {
		return nil, err
	}
	if link.UpdatedAt, err = timeAttr(item, table.Aliases.UpdatedAt); err != nil {
		return nil, err
	}
	return link, nil
}

func stringAttr(item Item, name string) (string, bool) {
	s, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func timeAttr(item Item, name string) (time.Time, error) {
	s, ok := stringAttr(item, name)
	if !ok {
		return time.Time{}, nil
	}
	tm, err := ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s timestamp %q: %w", name, s, err)
	}
	return tm, nil
}
