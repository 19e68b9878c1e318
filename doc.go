// Package dynalink maps related entities onto a single DynamoDB table and keeps their
// relationships consistent with conditional transactions.
//
// # Key Concepts
//
// Entity types are described by a [Registry]: each type has attributes and
// relationships (BelongsTo, HasOne, HasMany and HasAndBelongsToMany). Every entity is
// stored in its own partition:
//   - PK (partition key): <Type>#<id>
//   - SK (sort key): <Type>
//
// DynamoDB has no foreign keys, so every relationship edge is represented by a
// BelongsToLink row stored in the owner's partition:
//
//	| PK          | SK            | Type          | ForeignKey | ForeignEntityType |
//	| =========== | ============= | ============= | ========== | ================= |
//	| Customer#C1 | Customer      | Customer      |            |                   |
//	| Customer#C1 | Order#O1      | BelongsToLink | O1         | Order             |
//	| Customer#C1 | Order#O2      | BelongsToLink | O2         | Order             |
//	| Customer#C1 | PaymentMethod | BelongsToLink | P1         | PaymentMethod     |
//	| Order#O1    | Order         | Order         |            |                   |
//
// A HasOne edge uses the bare related type as sort key, which admits one link per
// owner.
//
// # Basic Usage
//
//	table := dynalink.NewTable("app")
//	registry, err := dynalink.NewRegistry(table,
//	    dynalink.EntityType{
//	        Name:          "Customer",
//	        Attributes:    []dynalink.Attribute{{Name: "name"}},
//	        Relationships: []dynalink.Relationship{
//	            dynalink.HasMany{Name: "orders", Target: "Order", ForeignKey: "customerId"},
//	        },
//	    },
//	    dynalink.EntityType{
//	        Name:          "Order",
//	        Attributes:    []dynalink.Attribute{{Name: "customerId", Nullable: true}},
//	        Relationships: []dynalink.Relationship{
//	            dynalink.BelongsTo{Name: "customer", Target: "Customer", ForeignKey: "customerId"},
//	        },
//	    },
//	)
//
//	mapper := dynalink.New(ddb, registry)
//	customer, err := mapper.Create(ctx, "Customer", map[string]any{"name": "Ada"})
//	order, err := mapper.Create(ctx, "Order", map[string]any{"customerId": customer.ID})
//
// # Reading
//
// [Mapper.FindByID] reads one entity and, with [Include], resolves related entities
// with one partition query and a batch of transactional gets. [Mapper.Query] runs a
// single query and returns link rows unresolved.
//
// # Errors
//
// Failed transaction conditions are reported as a [*TransactionCanceledError] holding
// one [*ConditionalCheckFailedError] per failed item. Deleting an entity whose children
// hold a non-nullable foreign key fails with [*NullConstraintViolationError] values.
package dynalink
