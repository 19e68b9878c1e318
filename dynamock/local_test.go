package dynamock

import (
	"context"
	"strings"
	"testing"

	"github.com/nisimpson/dynalink"
)

func TestNewLocalDynamoDB(t *testing.T) {
	local, err := NewLocalDynamoDB(context.Background(), 8123)
	if err != nil {
		t.Fatalf("NewLocalDynamoDB: %v", err)
	}
	if local.Endpoint != "http://localhost:8123" {
		t.Errorf("unexpected endpoint %s", local.Endpoint)
	}
	if local.Port != 8123 || local.Client == nil {
		t.Error("expected port and client to be set")
	}
}

func TestNewDefaultLocalDynamoDB(t *testing.T) {
	local, err := NewDefaultLocalDynamoDB(context.Background())
	if err != nil {
		t.Fatalf("NewDefaultLocalDynamoDB: %v", err)
	}
	if local.Port != DefaultLocalPort {
		t.Errorf("expected port %d, got %d", DefaultLocalPort, local.Port)
	}
}

func TestNewTestTable(t *testing.T) {
	template := dynalink.NewTable("ignored")
	template.KeyDelimiter = "|"

	table := NewTestTable(template, "test-TestThing/sub case")
	if !strings.HasPrefix(table.TableName, "test-TestThing-sub-case-") {
		t.Errorf("unexpected table name %s", table.TableName)
	}
	if table.KeyDelimiter != "|" || table.PartitionKey != template.PartitionKey {
		t.Error("expected the template settings to be copied")
	}
	if template.TableName != "ignored" {
		t.Error("expected the template to be left unchanged")
	}
}

func TestLocalDynamoDB_Tables(t *testing.T) {
	WithDefaultLocalDynamoDB(t, func(local *LocalDynamoDB) {
		ctx := context.Background()
		template := dynalink.NewTable("local")

		var name string
		WithIsolatedTable(t, local, template, func(table *dynalink.Table) {
			name = table.TableName
			AssertTableExists(t, local.Client, name)

			tables, err := local.ListTables(ctx)
			if err != nil {
				t.Fatalf("ListTables: %v", err)
			}
			found := false
			for _, n := range tables {
				found = found || n == name
			}
			if !found {
				t.Errorf("expected %s in %v", name, tables)
			}
		})
		AssertTableNotExists(t, local.Client, name)
	})
}

func TestTableManager(t *testing.T) {
	WithDefaultLocalDynamoDB(t, func(local *LocalDynamoDB) {
		ctx := context.Background()
		tm := NewTableManager(local)

		for _, prefix := range []string{"manager-a", "manager-b"} {
			if err := tm.CreateTestTable(ctx, NewTestTable(dynalink.NewTable(prefix), prefix)); err != nil {
				t.Fatalf("CreateTestTable: %v", err)
			}
		}
		names := tm.GetTableNames()
		if len(names) != 2 {
			t.Fatalf("expected 2 tables, got %d", len(names))
		}

		if err := tm.Cleanup(ctx); err != nil {
			t.Fatalf("Cleanup: %v", err)
		}
		for _, name := range names {
			AssertTableNotExists(t, local.Client, name)
		}
		if len(tm.GetTableNames()) != 0 {
			t.Error("expected no tracked tables after cleanup")
		}
	})
}
