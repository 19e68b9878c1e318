package dynalink

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// MaxTransactGetItems is the maximum number of gets in a single TransactGetItems call.
	MaxTransactGetItems = 100
	// MaxTransactWriteItems is the maximum number of operations in a single TransactWriteItems call.
	MaxTransactWriteItems = 100

	// LinkType is the type attribute value of every BelongsToLink row.
	LinkType = "BelongsToLink"

	// TimeFormat is the ISO-8601 layout used for the CreatedAt and UpdatedAt attributes.
	TimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

// Clock is a function type that returns the current time for dependency injection.
type Clock func() time.Time

// DefaultClock returns the current UTC time.
func DefaultClock() time.Time {
	return time.Now().UTC()
}

// DefaultAliases holds the wire names of the attributes every row carries.
type DefaultAliases struct {
	ID                string // entity or link identifier
	Type              string // entity type name, or LinkType
	CreatedAt         string // creation timestamp
	UpdatedAt         string // modification timestamp
	ForeignKey        string // link rows only: id of the related row
	ForeignEntityType string // link rows only: type of the related row
}

// Table contains the physical table configuration shared by every entity type.
type Table struct {
	TableName     string         // Physical table name
	PartitionKey  string         // Wire name of the partition key
	SortKey       string         // Wire name of the sort key
	KeyDelimiter  string         // Delimiter for composite keys. Default is '#'.
	Aliases       DefaultAliases // Wire names of the default attributes
	GetBatchSize  int            // Max gets per TransactGetItems call. Default is 100.
	MaxWriteItems int            // Max operations per TransactWriteItems call. Default is 100.
	Tick          Clock          // Function to get current time for timestamps
}

// NewTable creates a new Table with default configuration.
func NewTable(tableName string) *Table {
	return &Table{
		TableName:    tableName,
		PartitionKey: "PK",
		SortKey:      "SK",
		KeyDelimiter: "#",
		Aliases: DefaultAliases{
			ID:                "Id",
			Type:              "Type",
			CreatedAt:         "CreatedAt",
			UpdatedAt:         "UpdatedAt",
			ForeignKey:        "ForeignKey",
			ForeignEntityType: "ForeignEntityType",
		},
		GetBatchSize:  MaxTransactGetItems,
		MaxWriteItems: MaxTransactWriteItems,
		Tick:          DefaultClock,
	}
}

func (t *Table) now() time.Time {
	if t.Tick == nil {
		return DefaultClock()
	}
	return t.Tick()
}

// Key composes an entity type and id into a composite key: <type><delimiter><id>.
func (t *Table) Key(entityType, id string) string {
	return entityType + t.KeyDelimiter + id
}

// SplitKey returns the entity type prefix of a composite key, and the remainder if present.
func (t *Table) SplitKey(key string) (entityType, id string) {
	entityType, id, _ = strings.Cut(key, t.KeyDelimiter)
	return entityType, id
}

// EntityKey returns the primary key of an entity's own row.
func (t *Table) EntityKey(entityType, id string) Item {
	return Item{
		t.PartitionKey: &types.AttributeValueMemberS{Value: t.Key(entityType, id)},
		t.SortKey:      &types.AttributeValueMemberS{Value: entityType},
	}
}

// LinkKey returns the primary key of a BelongsToLink stored in the owner's partition.
// When single is true the sort key is the bare related type, which admits at most
// one link per owner and related type.
func (t *Table) LinkKey(ownerType, ownerID, relatedType, relatedID string, single bool) Item {
	sk := relatedType
	if !single {
		sk = t.Key(relatedType, relatedID)
	}
	return Item{
		t.PartitionKey: &types.AttributeValueMemberS{Value: t.Key(ownerType, ownerID)},
		t.SortKey:      &types.AttributeValueMemberS{Value: sk},
	}
}

// FormatTime encodes a timestamp in the wire format.
func FormatTime(tm time.Time) string {
	return tm.UTC().Format(TimeFormat)
}

// ParseTime decodes a wire timestamp. Any RFC 3339 precision is accepted.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func (t *Table) reservedAliases() map[string]bool {
	return map[string]bool{
		t.PartitionKey:              true,
		t.SortKey:                   true,
		t.Aliases.ID:                true,
		t.Aliases.Type:              true,
		t.Aliases.CreatedAt:         true,
		t.Aliases.UpdatedAt:         true,
		t.Aliases.ForeignKey:        true,
		t.Aliases.ForeignEntityType: true,
	}
}
