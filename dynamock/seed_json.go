package dynamock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nisimpson/dynalink"
)

// SeedTestData seeds entities through a mapper, so that every seeded row and link
// satisfies the same constraints as application writes.
type SeedTestData struct {
	mapper *dynalink.Mapper
	meta   dynalink.Metadata
}

// NewSeedTestData creates a new test data seeder.
func NewSeedTestData(mapper *dynalink.Mapper, meta dynalink.Metadata) *SeedTestData {
	return &SeedTestData{mapper: mapper, meta: meta}
}

// SeedEntity creates one entity with a fixed id.
func (s *SeedTestData) SeedEntity(ctx context.Context, entityType, id string, attributes any) (*dynalink.Entity, error) {
	e, err := s.mapper.Create(ctx, entityType, attributes, dynalink.WithID(id))
	if err != nil {
		return nil, fmt.Errorf("failed to seed %s %s: %w", entityType, id, err)
	}
	return e, nil
}

// JSONAPIDocument is an array of JSON:API primary resources.
type JSONAPIDocument []JSONAPIResource

// JSONAPIResource represents a single resource in JSON:API format.
type JSONAPIResource struct {
	Type          string                         `json:"type"`
	ID            string                         `json:"id"`
	Attributes    map[string]any                 `json:"attributes,omitempty"`
	Relationships map[string]JSONAPIRelationship `json:"relationships,omitempty"`
}

// JSONAPIRelationship represents a relationship in JSON:API format. Data holds a
// single identifier, an array of identifiers, or null.
type JSONAPIRelationship struct {
	Data json.RawMessage `json:"data"`
}

// JSONAPIResourceIdentifier represents a resource identifier in JSON:API format.
type JSONAPIResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r JSONAPIRelationship) identifiers() ([]JSONAPIResourceIdentifier, error) {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil, nil
	}
	var many []JSONAPIResourceIdentifier
	if err := json.Unmarshal(r.Data, &many); err == nil {
		return many, nil
	}
	var one JSONAPIResourceIdentifier
	if err := json.Unmarshal(r.Data, &one); err != nil {
		return nil, fmt.Errorf("relationship data must be an object or array of objects")
	}
	return []JSONAPIResourceIdentifier{one}, nil
}

type resourceKey struct{ typ, id string }

type joinPair struct {
	owner, target resourceKey
}

// SeedFromJSON reads an array of JSON:API resources and creates them through the
// mapper. Relationships are interpreted with the registered schema:
//   - belongsTo: the identifier sets the foreign key attribute
//   - hasOne and hasMany: each identified resource in the document gets the foreign key
//   - hasAndBelongsToMany: the pair is joined with [dynalink.Mapper.Link]
//
// Resources are created after the resources they reference. It returns the number of
// entities created.
func (s *SeedTestData) SeedFromJSON(ctx context.Context, r io.Reader) (int, error) {
	var document JSONAPIDocument
	if err := json.NewDecoder(r).Decode(&document); err != nil {
		return 0, fmt.Errorf("failed to parse JSON document: %w", err)
	}

	resources := make(map[resourceKey]*JSONAPIResource, len(document))
	order := make([]resourceKey, 0, len(document))
	for i := range document {
		res := &document[i]
		if res.Type == "" {
			return 0, fmt.Errorf("resource at index %d missing required 'type' field", i)
		}
		if res.ID == "" {
			return 0, fmt.Errorf("resource at index %d missing required 'id' field", i)
		}
		key := resourceKey{res.Type, res.ID}
		if _, dup := resources[key]; dup {
			return 0, fmt.Errorf("resource %s %s declared twice", res.Type, res.ID)
		}
		if res.Attributes == nil {
			res.Attributes = make(map[string]any)
		}
		resources[key] = res
		order = append(order, key)
	}

	deps := make(map[resourceKey][]resourceKey)
	var joins []joinPair
	for _, key := range order {
		res := resources[key]
		for name, rel := range res.Relationships {
			ids, err := rel.identifiers()
			if err != nil {
				return 0, fmt.Errorf("%s %s relationship %q: %w", res.Type, res.ID, name, err)
			}
			found, err := s.relationship(res.Type, name)
			if err != nil {
				return 0, err
			}

			switch found := found.(type) {
			case dynalink.BelongsTo:
				if len(ids) > 1 {
					return 0, fmt.Errorf("%s %s relationship %q accepts one identifier", res.Type, res.ID, name)
				}
				for _, ident := range ids {
					res.Attributes[found.ForeignKey] = ident.ID
					deps[key] = append(deps[key], resourceKey{found.Target, ident.ID})
				}
			case dynalink.HasOne, dynalink.HasMany:
				fk := foreignKeyOf(found)
				for _, ident := range ids {
					child, ok := resources[resourceKey{found.TargetType(), ident.ID}]
					if !ok {
						return 0, fmt.Errorf("%s %s relationship %q: %s %s is not in the document", res.Type, res.ID, name, found.TargetType(), ident.ID)
					}
					child.Attributes[fk] = res.ID
					childKey := resourceKey{child.Type, child.ID}
					deps[childKey] = append(deps[childKey], key)
				}
			case dynalink.HasAndBelongsToMany:
				for _, ident := range ids {
					joins = append(joins, joinPair{key, resourceKey{found.Target, ident.ID}})
				}
			}
		}
	}

	sorted, err := dependencyOrder(order, deps)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, key := range sorted {
		res := resources[key]
		if _, err := s.SeedEntity(ctx, res.Type, res.ID, res.Attributes); err != nil {
			return count, err
		}
		count++
	}

	linked := make(map[joinPair]bool, len(joins))
	for _, j := range joins {
		if linked[j] || linked[joinPair{j.target, j.owner}] {
			continue
		}
		if err := s.mapper.Link(ctx, j.owner.typ, j.owner.id, j.target.typ, j.target.id); err != nil {
			return count, err
		}
		linked[j] = true
	}
	return count, nil
}

func (s *SeedTestData) relationship(entityType, name string) (dynalink.Relationship, error) {
	rels, err := s.meta.RelationshipsOf(entityType)
	if err != nil {
		return nil, err
	}
	for _, rel := range rels {
		if rel.Property() == name {
			return rel, nil
		}
	}
	return nil, fmt.Errorf("%s has no relationship %q", entityType, name)
}

func foreignKeyOf(rel dynalink.Relationship) string {
	switch rel := rel.(type) {
	case dynalink.HasOne:
		return rel.ForeignKey
	case dynalink.HasMany:
		return rel.ForeignKey
	}
	return ""
}

// dependencyOrder sorts keys so every resource follows the resources it depends on.
// Dependencies outside the document are assumed to exist already.
func dependencyOrder(keys []resourceKey, deps map[resourceKey][]resourceKey) ([]resourceKey, error) {
	const (
		visiting = 1
		done     = 2
	)
	inDocument := make(map[resourceKey]bool, len(keys))
	for _, k := range keys {
		inDocument[k] = true
	}

	state := make(map[resourceKey]int, len(keys))
	sorted := make([]resourceKey, 0, len(keys))

	var visit func(k resourceKey) error
	visit = func(k resourceKey) error {
		switch state[k] {
		case visiting:
			return fmt.Errorf("circular relationship through %s %s", k.typ, k.id)
		case done:
			return nil
		}
		state[k] = visiting
		for _, dep := range deps[k] {
			if !inDocument[dep] {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[k] = done
		sorted = append(sorted, k)
		return nil
	}

	for _, k := range keys {
		if err := visit(k); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}
