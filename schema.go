package dynalink

import (
	"errors"
	"fmt"
	"sort"
)

// Entity-side names of the attributes every row carries. Filters and key conditions
// may reference these names; they resolve to the table's configured aliases.
const (
	AttributeNameID                = "id"
	AttributeNameType              = "type"
	AttributeNameCreatedAt         = "createdAt"
	AttributeNameUpdatedAt         = "updatedAt"
	AttributeNameForeignKey        = "foreignKey"
	AttributeNameForeignEntityType = "foreignEntityType"
	AttributeNamePartitionKey      = "pk"
	AttributeNameSortKey           = "sk"
)

// ErrUnknownEntityType is returned when an operation names a type the registry does not know.
var ErrUnknownEntityType = errors.New("unknown entity type")

// Attribute describes one application attribute of an entity type.
type Attribute struct {
	Name             string // Entity-side name
	Alias            string // Wire name. Defaults to Name.
	Nullable         bool   // If false, the attribute is required and can never be removed.
	ForeignKeyTarget string // Entity type the attribute references, if it is a foreign key
}

// Relationship is one of [BelongsTo], [HasOne], [HasMany] or [HasAndBelongsToMany].
type Relationship interface {
	// Property is the name under which related entities are included.
	Property() string
	// TargetType is the related entity type.
	TargetType() string

	relationship()
}

// BelongsTo declares that the owning entity holds ForeignKey, pointing at one Target.
type BelongsTo struct {
	Name       string
	Target     string
	ForeignKey string
}

// HasOne declares that Target holds ForeignKey pointing back at the owner, with at
// most one Target per owner. The edge is a link row with a bare sort key.
type HasOne struct {
	Name       string
	Target     string
	ForeignKey string
}

// HasMany declares that any number of Target entities hold ForeignKey pointing back at
// the owner. Each edge is a link row in the owner's partition.
type HasMany struct {
	Name       string
	Target     string
	ForeignKey string
}

// HasAndBelongsToMany declares a many-to-many edge. The join is represented by a pair
// of link rows, one in each partition, created with [Mapper.Link].
type HasAndBelongsToMany struct {
	Name      string
	Target    string
	JoinTable string
}

func (r BelongsTo) Property() string             { return r.Name }
func (r BelongsTo) TargetType() string           { return r.Target }
func (r HasOne) Property() string                { return r.Name }
func (r HasOne) TargetType() string              { return r.Target }
func (r HasMany) Property() string               { return r.Name }
func (r HasMany) TargetType() string             { return r.Target }
func (r HasAndBelongsToMany) Property() string   { return r.Name }
func (r HasAndBelongsToMany) TargetType() string { return r.Target }

func (BelongsTo) relationship()           {}
func (HasOne) relationship()              {}
func (HasMany) relationship()             {}
func (HasAndBelongsToMany) relationship() {}

// EntityType is a statically constructed schema descriptor.
type EntityType struct {
	Name          string
	Attributes    []Attribute
	Relationships []Relationship
}

// Metadata is the read-only view of the schema consumed by [Mapper].
type Metadata interface {
	// TableOf returns the table entityType is stored in.
	TableOf(entityType string) (*Table, error)
	// AttributesOf returns the application attributes of entityType in declaration order.
	AttributesOf(entityType string) ([]Attribute, error)
	// RelationshipsOf returns the relationships declared on entityType.
	RelationshipsOf(entityType string) ([]Relationship, error)
}

type entityMetadata struct {
	EntityType
	byName  map[string]Attribute
	byAlias map[string]Attribute
}

// Registry maps entity type names to their table, attributes and relationships.
// A Registry is immutable once NewRegistry returns and safe for concurrent use.
type Registry struct {
	table    *Table
	entities map[string]*entityMetadata
}

var _ Metadata = (*Registry)(nil)

// NewRegistry validates the entity types and builds a Registry for table.
func NewRegistry(table *Table, entityTypes ...EntityType) (*Registry, error) {
	if table == nil {
		return nil, errors.New("table is required")
	}

	r := &Registry{
		table:    table,
		entities: make(map[string]*entityMetadata, len(entityTypes)),
	}

	reserved := table.reservedAliases()
	for _, et := range entityTypes {
		if et.Name == "" {
			return nil, errors.New("entity type name is required")
		}
		if et.Name == LinkType {
			return nil, fmt.Errorf("entity type name %q is reserved", LinkType)
		}
		if _, exists := r.entities[et.Name]; exists {
			return nil, fmt.Errorf("entity type %s registered twice", et.Name)
		}

		meta := &entityMetadata{
			EntityType: EntityType{
				Name:          et.Name,
				Attributes:    make([]Attribute, 0, len(et.Attributes)),
				Relationships: append([]Relationship(nil), et.Relationships...),
			},
			byName:  make(map[string]Attribute, len(et.Attributes)),
			byAlias: make(map[string]Attribute, len(et.Attributes)),
		}
		for _, attr := range et.Attributes {
			if attr.Alias == "" {
				attr.Alias = attr.Name
			}
			if attr.Name == "" {
				return nil, fmt.Errorf("%s: attribute name is required", et.Name)
			}
			if isDefaultAttribute(attr.Name) || reserved[attr.Alias] {
				return nil, fmt.Errorf("%s.%s: name or alias collides with a default attribute", et.Name, attr.Name)
			}
			if _, exists := meta.byName[attr.Name]; exists {
				return nil, fmt.Errorf("%s.%s: attribute declared twice", et.Name, attr.Name)
			}
			if _, exists := meta.byAlias[attr.Alias]; exists {
				return nil, fmt.Errorf("%s.%s: alias %q already in use", et.Name, attr.Name, attr.Alias)
			}
			meta.byName[attr.Name] = attr
			meta.byAlias[attr.Alias] = attr
			meta.Attributes = append(meta.Attributes, attr)
		}
		r.entities[et.Name] = meta
	}

	if err := r.validateRelationships(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) validateRelationships() error {
	for _, name := range r.EntityTypes() {
		meta := r.entities[name]
		seen := make(map[string]bool, len(meta.Relationships))
		for _, rel := range meta.Relationships {
			if rel.Property() == "" {
				return fmt.Errorf("%s: relationship property name is required", name)
			}
			if seen[rel.Property()] {
				return fmt.Errorf("%s.%s: relationship declared twice", name, rel.Property())
			}
			if _, ok := meta.byName[rel.Property()]; ok {
				return fmt.Errorf("%s.%s: relationship collides with an attribute", name, rel.Property())
			}
			seen[rel.Property()] = true

			target, ok := r.entities[rel.TargetType()]
			if !ok {
				return fmt.Errorf("%s.%s: target %q: %w", name, rel.Property(), rel.TargetType(), ErrUnknownEntityType)
			}

			switch rel := rel.(type) {
			case BelongsTo:
				attr, ok := meta.byName[rel.ForeignKey]
				if !ok {
					return fmt.Errorf("%s.%s: foreign key %q is not an attribute of %s", name, rel.Name, rel.ForeignKey, name)
				}
				if attr.ForeignKeyTarget != "" && attr.ForeignKeyTarget != rel.Target {
					return fmt.Errorf("%s.%s: foreign key %q references %s, not %s", name, rel.Name, rel.ForeignKey, attr.ForeignKeyTarget, rel.Target)
				}
				attr.ForeignKeyTarget = rel.Target
				meta.byName[attr.Name] = attr
				meta.byAlias[attr.Alias] = attr
				for i := range meta.Attributes {
					if meta.Attributes[i].Name == attr.Name {
						meta.Attributes[i] = attr
					}
				}
			case HasOne:
				if _, ok := target.byName[rel.ForeignKey]; !ok {
					return fmt.Errorf("%s.%s: foreign key %q is not an attribute of %s", name, rel.Name, rel.ForeignKey, rel.Target)
				}
			case HasMany:
				if _, ok := target.byName[rel.ForeignKey]; !ok {
					return fmt.Errorf("%s.%s: foreign key %q is not an attribute of %s", name, rel.Name, rel.ForeignKey, rel.Target)
				}
			case HasAndBelongsToMany:
				if rel.JoinTable == "" {
					return fmt.Errorf("%s.%s: join table is required", name, rel.Name)
				}
				if _, ok := r.joinOf(rel.Target, name, rel.JoinTable); !ok {
					return fmt.Errorf("%s.%s: %s declares no reciprocal relationship through %s", name, rel.Name, rel.Target, rel.JoinTable)
				}
			default:
				return fmt.Errorf("%s.%s: unsupported relationship %T", name, rel.Property(), rel)
			}
		}
	}
	return nil
}

// TableOf implements Metadata.
func (r *Registry) TableOf(entityType string) (*Table, error) {
	if _, err := r.entity(entityType); err != nil {
		return nil, err
	}
	return r.table, nil
}

// AttributesOf implements Metadata.
func (r *Registry) AttributesOf(entityType string) ([]Attribute, error) {
	meta, err := r.entity(entityType)
	if err != nil {
		return nil, err
	}
	return append([]Attribute(nil), meta.Attributes...), nil
}

// RelationshipsOf implements Metadata.
func (r *Registry) RelationshipsOf(entityType string) ([]Relationship, error) {
	meta, err := r.entity(entityType)
	if err != nil {
		return nil, err
	}
	return append([]Relationship(nil), meta.Relationships...), nil
}

// Table returns the table shared by every registered entity type.
func (r *Registry) Table() *Table {
	return r.table
}

// Has reports whether entityType is registered.
func (r *Registry) Has(entityType string) bool {
	_, ok := r.entities[entityType]
	return ok
}

// EntityTypes returns the registered type names in sorted order.
func (r *Registry) EntityTypes() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) entity(entityType string) (*entityMetadata, error) {
	meta, ok := r.entities[entityType]
	if !ok {
		return nil, fmt.Errorf("%q: %w", entityType, ErrUnknownEntityType)
	}
	return meta, nil
}

func (r *Registry) joinOf(owner, target, joinTable string) (HasAndBelongsToMany, bool) {
	meta, ok := r.entities[owner]
	if !ok {
		return HasAndBelongsToMany{}, false
	}
	for _, rel := range meta.Relationships {
		if habtm, ok := rel.(HasAndBelongsToMany); ok && habtm.Target == target && habtm.JoinTable == joinTable {
			return habtm, true
		}
	}
	return HasAndBelongsToMany{}, false
}

func isDefaultAttribute(name string) bool {
	switch name {
	case AttributeNameID, AttributeNameType, AttributeNameCreatedAt, AttributeNameUpdatedAt,
		AttributeNameForeignKey, AttributeNameForeignEntityType,
		AttributeNamePartitionKey, AttributeNameSortKey:
		return true
	}
	return false
}

// Alias returns the wire name of an attribute of entityType. Default attribute names
// resolve to the table's aliases.
func (r *Registry) Alias(entityType, name string) (string, error) {
	meta, err := r.entity(entityType)
	if err != nil {
		return "", err
	}
	if alias, ok := defaultAlias(r.table, name); ok {
		return alias, nil
	}
	attr, ok := meta.byName[name]
	if !ok {
		return "", fmt.Errorf("%s has no attribute %q", entityType, name)
	}
	return attr.Alias, nil
}

// Reciprocal returns the HasOne or HasMany relationship declared on the target of rel
// that points back at owner through the same foreign key.
func (r *Registry) Reciprocal(owner string, rel BelongsTo) (Relationship, bool) {
	return ReciprocalOf(r, owner, rel)
}

// ReciprocalOf looks up the HasOne or HasMany counterpart of a BelongsTo relationship
// declared on owner. Only a reciprocal relationship is materialised as link rows.
func ReciprocalOf(meta Metadata, owner string, rel BelongsTo) (Relationship, bool) {
	rels, err := meta.RelationshipsOf(rel.Target)
	if err != nil {
		return nil, false
	}
	for _, candidate := range rels {
		switch c := candidate.(type) {
		case HasMany:
			if c.Target == owner && c.ForeignKey == rel.ForeignKey {
				return c, true
			}
		case HasOne:
			if c.Target == owner && c.ForeignKey == rel.ForeignKey {
				return c, true
			}
		}
	}
	return nil, false
}

func defaultAlias(table *Table, name string) (string, bool) {
	switch name {
	case AttributeNameID:
		return table.Aliases.ID, true
	case AttributeNameType:
		return table.Aliases.Type, true
	case AttributeNameCreatedAt:
		return table.Aliases.CreatedAt, true
	case AttributeNameUpdatedAt:
		return table.Aliases.UpdatedAt, true
	case AttributeNameForeignKey:
		return table.Aliases.ForeignKey, true
	case AttributeNameForeignEntityType:
		return table.Aliases.ForeignEntityType, true
	case AttributeNamePartitionKey:
		return table.PartitionKey, true
	case AttributeNameSortKey:
		return table.SortKey, true
	}
	return "", false
}
