package dynalink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrItemNotFound is returned when an item is not found in DynamoDB operations.
	ErrItemNotFound = errors.New("item does not exist")

	// ErrTransactionTooLarge is returned when a write transaction exceeds the per-call item limit.
	ErrTransactionTooLarge = errors.New("transaction exceeds the item limit")

	// ErrBuilderCommitted is returned when a transaction builder is committed twice.
	ErrBuilderCommitted = errors.New("transaction builder already committed")

	// ErrInvalidFilter is returned when a key condition or filter cannot be compiled.
	ErrInvalidFilter = errors.New("invalid filter")
)

// cancellationCodeConditionalCheckFailed is the cancellation reason code of a failed condition.
const cancellationCodeConditionalCheckFailed = "ConditionalCheckFailed"

// ConditionalCheckFailedError reports that the condition of one transaction item failed.
type ConditionalCheckFailedError struct {
	Index   int    // Position of the item in the transaction
	Code    string // Cancellation reason code
	Message string // Message tracked for the item, or the reason reported by DynamoDB
}

func (e *ConditionalCheckFailedError) Error() string {
	return e.Message
}

// TransactionCanceledError aggregates one typed error per failed transaction item.
type TransactionCanceledError struct {
	Errors []error
	Cause  *types.TransactionCanceledException
}

func (e *TransactionCanceledError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "transaction canceled: " + strings.Join(msgs, "; ")
}

// Unwrap returns the per-item errors followed by the DynamoDB exception.
func (e *TransactionCanceledError) Unwrap() []error {
	errs := append([]error(nil), e.Errors...)
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// NullConstraintViolationError reports that a delete would clear a non-nullable foreign key.
type NullConstraintViolationError struct {
	EntityType string // Type of the row holding the foreign key
	EntityID   string // Id of the row holding the foreign key
	Attribute  string // Foreign key attribute
}

func (e *NullConstraintViolationError) Error() string {
	return fmt.Sprintf("cannot set %s with id %s attribute %s to null", e.EntityType, e.EntityID, e.Attribute)
}

// ValidationError reports an attribute value rejected before any request is made.
type ValidationError struct {
	EntityType string
	Attribute  string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.EntityType, e.Attribute, e.Reason)
}
