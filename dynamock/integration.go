package dynamock

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nisimpson/dynalink"
	"go.uber.org/zap"
)

// TableManager manages DynamoDB tables for testing, providing automatic cleanup.
type TableManager struct {
	local  *LocalDynamoDB
	tables []string
}

// NewTableManager creates a new table manager for local.
func NewTableManager(local *LocalDynamoDB) *TableManager {
	return &TableManager{local: local}
}

// CreateTestTable creates a table with the key schema of table and tracks it for cleanup.
func (tm *TableManager) CreateTestTable(ctx context.Context, table *dynalink.Table) error {
	if err := tm.local.CreateTable(ctx, table); err != nil {
		return err
	}
	tm.tables = append(tm.tables, table.TableName)
	return nil
}

// Cleanup deletes all tables created by this manager.
func (tm *TableManager) Cleanup(ctx context.Context) error {
	for _, tableName := range tm.tables {
		if err := tm.local.DeleteTable(ctx, tableName); err != nil {
			return fmt.Errorf("failed to delete table %s: %w", tableName, err)
		}
	}
	tm.tables = tm.tables[:0]
	return nil
}

// GetTableNames returns the names of all tables managed by this manager.
func (tm *TableManager) GetTableNames() []string {
	return append([]string(nil), tm.tables...)
}

var invalidTableChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// NewTestTable returns a copy of template with a unique table name starting with prefix.
func NewTestTable(template *dynalink.Table, prefix string) *dynalink.Table {
	table := *template
	name := fmt.Sprintf("%s-%d", invalidTableChars.ReplaceAllString(prefix, "-"), time.Now().UnixNano())
	if len(name) > 255 {
		name = name[len(name)-255:]
	}
	table.TableName = name
	return &table
}

// WithIsolatedTable runs fn with a copy of template backed by a new table that is
// deleted when fn returns.
func WithIsolatedTable(t *testing.T, local *LocalDynamoDB, template *dynalink.Table, fn func(table *dynalink.Table)) {
	t.Helper()
	ctx := context.Background()
	table := NewTestTable(template, "test-"+t.Name())

	tm := NewTableManager(local)
	defer func() {
		if err := tm.Cleanup(ctx); err != nil {
			t.Errorf("Failed to cleanup table %s: %v", table.TableName, err)
		}
	}()

	if err := tm.CreateTestTable(ctx, table); err != nil {
		t.Fatalf("Failed to create test table %s: %v", table.TableName, err)
	}
	fn(table)
}

// WithLocalDynamoDB runs fn with a local DynamoDB instance, skipping the test when
// none is listening on port.
func WithLocalDynamoDB(t *testing.T, port int, fn func(local *LocalDynamoDB)) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	local, err := NewLocalDynamoDB(ctx, port)
	if err != nil {
		t.Fatalf("Failed to configure DynamoDB Local client: %v", err)
	}
	if !local.IsAvailable(ctx) {
		t.Skipf("DynamoDB Local not available on port %d", port)
	}
	fn(local)
}

// WithDefaultLocalDynamoDB runs fn with the DynamoDB Local instance on DefaultLocalPort.
func WithDefaultLocalDynamoDB(t *testing.T, fn func(local *LocalDynamoDB)) {
	t.Helper()
	WithLocalDynamoDB(t, DefaultLocalPort, fn)
}

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	Port             int
	SkipIfNotRunning bool
	TablePrefix      string
	CleanupTimeout   time.Duration
	Logger           *zap.Logger
}

// DefaultIntegrationTestConfig returns a default configuration for integration tests.
func DefaultIntegrationTestConfig() *IntegrationTestConfig {
	return &IntegrationTestConfig{
		Port:             DefaultLocalPort,
		SkipIfNotRunning: true,
		TablePrefix:      "integration-test",
		CleanupTimeout:   30 * time.Second,
	}
}

// RunIntegrationTest creates a uniquely named table on DynamoDB Local, registers
// entityTypes on it, and runs fn with a mapper bound to that table. The table is
// deleted afterwards.
func RunIntegrationTest(t *testing.T, cfg *IntegrationTestConfig, entityTypes []dynalink.EntityType, fn func(mapper *dynalink.Mapper, local *LocalDynamoDB, table *dynalink.Table)) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if cfg == nil {
		cfg = DefaultIntegrationTestConfig()
	}

	ctx := context.Background()
	local, err := NewLocalDynamoDB(ctx, cfg.Port)
	if err != nil {
		t.Fatalf("Failed to configure DynamoDB Local client: %v", err)
	}
	if !local.IsAvailable(ctx) {
		if cfg.SkipIfNotRunning {
			t.Skipf("DynamoDB Local not available on port %d", cfg.Port)
		}
		t.Fatalf("DynamoDB Local not available on port %d", cfg.Port)
	}

	table := NewTestTable(dynalink.NewTable(cfg.TablePrefix), cfg.TablePrefix)
	registry, err := dynalink.NewRegistry(table, entityTypes...)
	if err != nil {
		t.Fatalf("Invalid schema: %v", err)
	}

	if err := local.CreateTable(ctx, table); err != nil {
		t.Fatalf("Failed to create test table %s: %v", table.TableName, err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), cfg.CleanupTimeout)
		defer cancel()
		if err := local.DeleteTable(cleanupCtx, table.TableName); err != nil {
			t.Errorf("Failed to cleanup table %s: %v", table.TableName, err)
		}
	}()

	var opts []func(*dynalink.Options)
	if cfg.Logger != nil {
		opts = append(opts, dynalink.WithLogger(cfg.Logger))
	}
	fn(dynalink.New(local.Client, registry, opts...), local, table)
}

// AssertTableExists verifies that a table exists.
func AssertTableExists(t *testing.T, client *dynamodb.Client, tableName string) {
	t.Helper()
	_, err := client.DescribeTable(context.Background(), &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		t.Errorf("Table %s does not exist: %v", tableName, err)
	}
}

// AssertTableNotExists verifies that a table does not exist.
func AssertTableNotExists(t *testing.T, client *dynamodb.Client, tableName string) {
	t.Helper()
	_, err := client.DescribeTable(context.Background(), &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err == nil {
		t.Errorf("Table %s should not exist but it does", tableName)
	}
}
