// Package dynamock provides testing utilities for the dynalink library.
//
// This package includes:
//   - An in-memory DynamoDB table that evaluates conditions and transactions
//   - An expectation-based mock DynamoDB client for unit testing
//   - Wire item builders for entity and link rows
//   - Local DynamoDB integration utilities
//   - JSON:API test data seeding
//
// # Memory Client
//
// MemoryClient stores items in memory and evaluates the key condition, filter,
// condition and update expressions produced by dynalink. A transaction whose condition
// fails is canceled with positional reasons, as DynamoDB does:
//
//	table := dynalink.NewTable("app")
//	memory := dynamock.NewMemoryClient(table)
//	mapper := dynalink.New(memory, registry)
//
//	_, err := mapper.Create(ctx, "Order", map[string]any{"customerId": "missing"})
//	// err wraps a *dynalink.ConditionalCheckFailedError
//
// Request counters make read patterns observable:
//
//	memory.ResetCalls()
//	_, _ = mapper.FindByID(ctx, "Customer", "C1", dynalink.Include("orders"))
//	memory.Calls("Query")  // 1
//	memory.GetCount()      // number of related entities fetched
//
// # Mock Client
//
// The MockClient provides an expectation-based mock implementation where you set
// expectations for specific operations:
//
//	mock := dynamock.NewMockClient(t)
//	mock.TransactWriteItemsFunc = func(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
//		return &dynamodb.TransactWriteItemsOutput{}, nil
//	}
//
// # Local DynamoDB
//
// For integration testing against DynamoDB Local:
//
//	dynamock.RunIntegrationTest(t, nil, entityTypes, func(mapper *dynalink.Mapper, local *dynamock.LocalDynamoDB, table *dynalink.Table) {
//		// The table is created before and deleted after this function
//	})
//
// # Seeding
//
// SeedTestData creates entities through a mapper from a JSON:API document, so
// relationships are linked exactly as application writes would link them:
//
//	seeder := dynamock.NewSeedTestData(mapper, registry)
//	count, err := seeder.SeedFromJSON(ctx, strings.NewReader(`[
//		{"type": "Customer", "id": "C1", "attributes": {"name": "Ada"}},
//		{"type": "Order", "id": "O1", "relationships": {
//			"customer": {"data": {"type": "Customer", "id": "C1"}}
//		}}
//	]`))
package dynamock
