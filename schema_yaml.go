package dynalink

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// schemaDocument is the YAML form of a table and its entity types:
//
//	table:
//	  name: app
//	  partitionKey: PK
//	  sortKey: SK
//	entities:
//	  - name: Customer
//	    attributes:
//	      - name: name
//	    relationships:
//	      - kind: hasMany
//	        name: orders
//	        target: Order
//	        foreignKey: customerId
//	  - name: Order
//	    attributes:
//	      - name: customerId
//	        nullable: true
//	    relationships:
//	      - kind: belongsTo
//	        name: customer
//	        target: Customer
//	        foreignKey: customerId
type schemaDocument struct {
	Table    tableDocument    `yaml:"table"`
	Entities []entityDocument `yaml:"entities"`
}

type tableDocument struct {
	Name          string `yaml:"name"`
	PartitionKey  string `yaml:"partitionKey"`
	SortKey       string `yaml:"sortKey"`
	KeyDelimiter  string `yaml:"keyDelimiter"`
	GetBatchSize  int    `yaml:"getBatchSize"`
	MaxWriteItems int    `yaml:"maxWriteItems"`
	Aliases       struct {
		ID                string `yaml:"id"`
		Type              string `yaml:"type"`
		CreatedAt         string `yaml:"createdAt"`
		UpdatedAt         string `yaml:"updatedAt"`
		ForeignKey        string `yaml:"foreignKey"`
		ForeignEntityType string `yaml:"foreignEntityType"`
	} `yaml:"aliases"`
}

type entityDocument struct {
	Name          string                 `yaml:"name"`
	Attributes    []attributeDocument    `yaml:"attributes"`
	Relationships []relationshipDocument `yaml:"relationships"`
}

type attributeDocument struct {
	Name     string `yaml:"name"`
	Alias    string `yaml:"alias"`
	Nullable bool   `yaml:"nullable"`
}

type relationshipDocument struct {
	Kind       string `yaml:"kind"`
	Name       string `yaml:"name"`
	Target     string `yaml:"target"`
	ForeignKey string `yaml:"foreignKey"`
	JoinTable  string `yaml:"joinTable"`
}

// LoadRegistry reads a YAML schema document and builds a [Registry]. Unset table
// settings take the [NewTable] defaults. Relationship kinds are belongsTo, hasOne,
// hasMany and hasAndBelongsToMany.
func LoadRegistry(r io.Reader) (*Registry, error) {
	var doc schemaDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	if doc.Table.Name == "" {
		return nil, fmt.Errorf("schema: table name is required")
	}
	table := NewTable(doc.Table.Name)
	setIfPresent(&table.PartitionKey, doc.Table.PartitionKey)
	setIfPresent(&table.SortKey, doc.Table.SortKey)
	setIfPresent(&table.KeyDelimiter, doc.Table.KeyDelimiter)
	setIfPresent(&table.Aliases.ID, doc.Table.Aliases.ID)
	setIfPresent(&table.Aliases.Type, doc.Table.Aliases.Type)
	setIfPresent(&table.Aliases.CreatedAt, doc.Table.Aliases.CreatedAt)
	setIfPresent(&table.Aliases.UpdatedAt, doc.Table.Aliases.UpdatedAt)
	setIfPresent(&table.Aliases.ForeignKey, doc.Table.Aliases.ForeignKey)
	setIfPresent(&table.Aliases.ForeignEntityType, doc.Table.Aliases.ForeignEntityType)
	if doc.Table.GetBatchSize > 0 {
		table.GetBatchSize = doc.Table.GetBatchSize
	}
	if doc.Table.MaxWriteItems > 0 {
		table.MaxWriteItems = doc.Table.MaxWriteItems
	}

	entityTypes := make([]EntityType, 0, len(doc.Entities))
	for _, ed := range doc.Entities {
		et := EntityType{Name: ed.Name}
		for _, ad := range ed.Attributes {
			et.Attributes = append(et.Attributes, Attribute{
				Name:     ad.Name,
				Alias:    ad.Alias,
				Nullable: ad.Nullable,
			})
		}
		for _, rd := range ed.Relationships {
			rel, err := rd.relationship()
			if err != nil {
				return nil, fmt.Errorf("schema: %s: %w", ed.Name, err)
			}
			et.Relationships = append(et.Relationships, rel)
		}
		entityTypes = append(entityTypes, et)
	}

	return NewRegistry(table, entityTypes...)
}

func (rd relationshipDocument) relationship() (Relationship, error) {
	switch rd.Kind {
	case "belongsTo":
		return BelongsTo{Name: rd.Name, Target: rd.Target, ForeignKey: rd.ForeignKey}, nil
	case "hasOne":
		return HasOne{Name: rd.Name, Target: rd.Target, ForeignKey: rd.ForeignKey}, nil
	case "hasMany":
		return HasMany{Name: rd.Name, Target: rd.Target, ForeignKey: rd.ForeignKey}, nil
	case "hasAndBelongsToMany":
		return HasAndBelongsToMany{Name: rd.Name, Target: rd.Target, JoinTable: rd.JoinTable}, nil
	}
	return nil, fmt.Errorf("relationship %s: unknown kind %q", rd.Name, rd.Kind)
}

func setIfPresent(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
