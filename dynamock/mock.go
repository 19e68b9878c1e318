package dynamock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nisimpson/dynalink"
)

type DynamoDBAPICall[T, U any] = func(context.Context, *T, ...func(*dynamodb.Options)) (*U, error)

// MockClient is a simple expectation-based mock for the DynamoDB operations used by
// dynalink. Unset expectations fail the test when called.
type MockClient struct {
	GetItemFunc            DynamoDBAPICall[dynamodb.GetItemInput, dynamodb.GetItemOutput]
	QueryFunc              DynamoDBAPICall[dynamodb.QueryInput, dynamodb.QueryOutput]
	TransactGetItemsFunc   DynamoDBAPICall[dynamodb.TransactGetItemsInput, dynamodb.TransactGetItemsOutput]
	TransactWriteItemsFunc DynamoDBAPICall[dynamodb.TransactWriteItemsInput, dynamodb.TransactWriteItemsOutput]
}

var _ dynalink.DynamoDBClient = (*MockClient)(nil)

// NewMockClient creates a mock whose every operation fails t when called.
func NewMockClient(t testing.TB) *MockClient {
	return &MockClient{
		GetItemFunc:            defaultFunc[dynamodb.GetItemInput, dynamodb.GetItemOutput](t, "GetItem"),
		QueryFunc:              defaultFunc[dynamodb.QueryInput, dynamodb.QueryOutput](t, "Query"),
		TransactGetItemsFunc:   defaultFunc[dynamodb.TransactGetItemsInput, dynamodb.TransactGetItemsOutput](t, "TransactGetItems"),
		TransactWriteItemsFunc: defaultFunc[dynamodb.TransactWriteItemsInput, dynamodb.TransactWriteItemsOutput](t, "TransactWriteItems"),
	}
}

func defaultFunc[T, U any](t testing.TB, operation string) DynamoDBAPICall[T, U] {
	return func(ctx context.Context, params *T, optFns ...func(*dynamodb.Options)) (*U, error) {
		t.Fatalf("unexpected call to %s", operation)
		return nil, nil
	}
}

// GetItem calls GetItemFunc.
func (m *MockClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return m.GetItemFunc(ctx, params, optFns...)
}

// Query calls QueryFunc.
func (m *MockClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return m.QueryFunc(ctx, params, optFns...)
}

// TransactGetItems calls TransactGetItemsFunc.
func (m *MockClient) TransactGetItems(ctx context.Context, params *dynamodb.TransactGetItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error) {
	return m.TransactGetItemsFunc(ctx, params, optFns...)
}

// TransactWriteItems calls TransactWriteItemsFunc.
func (m *MockClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	return m.TransactWriteItemsFunc(ctx, params, optFns...)
}
