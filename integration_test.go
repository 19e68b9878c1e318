package dynalink_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nisimpson/dynalink"
	"github.com/nisimpson/dynalink/dynamock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// TestIntegration_Library runs the mapper against DynamoDB Local. It is skipped when
// no instance listens on the default port.
func TestIntegration_Library(t *testing.T) {
	cfg := dynamock.DefaultIntegrationTestConfig()
	cfg.TablePrefix = "library"
	cfg.Logger = zaptest.NewLogger(t)

	dynamock.RunIntegrationTest(t, cfg, libraryTypes(), func(mapper *dynalink.Mapper, local *dynamock.LocalDynamoDB, table *dynalink.Table) {
		ctx := context.Background()
		dynamock.AssertTableExists(t, local.Client, table.TableName)

		_, err := mapper.Create(ctx, "Author", map[string]any{"name": "Octavia"}, dynalink.WithID("A1"))
		require.NoError(t, err)
		for _, id := range []string{"kindred", "dawn", "fledgling"} {
			_, err := mapper.Create(ctx, "Book", Book{Title: id, AuthorID: "A1"}, dynalink.WithID(id))
			require.NoError(t, err)
		}

		t.Run("find with includes", func(t *testing.T) {
			author, err := mapper.FindByID(ctx, "Author", "A1", dynalink.Include("books"))
			require.NoError(t, err)
			assert.Len(t, author.Many["books"], 3)

			book, err := mapper.FindByID(ctx, "Book", "dawn", dynalink.Include("author"))
			require.NoError(t, err)
			require.NotNil(t, book.One["author"])
			assert.Equal(t, "A1", book.One["author"].ID)
		})

		t.Run("query partition", func(t *testing.T) {
			records, err := mapper.QueryByID(ctx, "Author", "A1", func(o *dynalink.QueryOptions) {
				o.SortKey = dynalink.BeginsWith("Book" + table.KeyDelimiter)
				o.ConsistentRead = true
			})
			require.NoError(t, err)
			assert.Len(t, dynalink.Links(records), 3)
		})

		t.Run("condition failure", func(t *testing.T) {
			_, err := mapper.Create(ctx, "Book", Book{Title: "lost", AuthorID: "A404"})
			var ccf *dynalink.ConditionalCheckFailedError
			require.ErrorAs(t, err, &ccf)
			assert.Equal(t, "Author with ID 'A404' does not exist", ccf.Message)
		})

		t.Run("delete clears foreign keys", func(t *testing.T) {
			require.NoError(t, mapper.Delete(ctx, "Author", "A1"))

			book, err := mapper.FindByID(ctx, "Book", "kindred", func(o *dynalink.FindOptions) {
				o.ConsistentRead = true
			})
			require.NoError(t, err)
			_, ok := book.String("authorId")
			assert.False(t, ok)

			_, err = mapper.FindByID(ctx, "Author", "A1")
			assert.True(t, errors.Is(err, dynalink.ErrItemNotFound))
		})
	})
}

// TestIntegration_Metrics checks that transactions against DynamoDB Local are counted.
func TestIntegration_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := dynalink.NewMetrics(reg)
	require.NoError(t, err)

	dynamock.RunIntegrationTest(t, nil, libraryTypes(), func(_ *dynalink.Mapper, local *dynamock.LocalDynamoDB, table *dynalink.Table) {
		ctx := context.Background()
		registry, err := dynalink.NewRegistry(table, libraryTypes()...)
		require.NoError(t, err)
		mapper := dynalink.New(local.Client, registry, dynalink.WithMetrics(metrics))

		_, err = mapper.Create(ctx, "Author", map[string]any{"name": "Ted"}, dynalink.WithID("A1"))
		require.NoError(t, err)
		_, err = mapper.Create(ctx, "Author", map[string]any{"name": "Ted"}, dynalink.WithID("A1"))
		require.Error(t, err)

		families, err := reg.Gather()
		require.NoError(t, err)
		assert.NotEmpty(t, families)
	})
}
