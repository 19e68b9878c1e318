package dynalink

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AndConditions maps attribute names to the value they must match. A value may be a
// scalar (equality), a slice (membership) or a [BeginsWithCondition]. Conditions are
// joined with AND.
type AndConditions map[string]any

// KeyConditions are the conditions on the partition and sort key of a query.
type KeyConditions = AndConditions

// BeginsWithCondition matches string attributes that start with Prefix.
type BeginsWithCondition struct {
	Prefix string
}

// BeginsWith returns a condition matching values that start with prefix.
func BeginsWith(prefix string) BeginsWithCondition {
	return BeginsWithCondition{Prefix: prefix}
}

// Filter is a query filter: the And conditions must all hold, and when Or is present
// at least one of its branches must hold.
type Filter struct {
	And AndConditions
	Or  []AndConditions
}

// IsSet reports whether the filter holds any condition.
func (f *Filter) IsSet() bool {
	return f != nil && (len(f.And) > 0 || len(f.Or) > 0)
}

// QueryExpression is a compiled key condition and filter, ready to be sent to DynamoDB.
type QueryExpression struct {
	KeyCondition string
	Filter       string
	Names        map[string]string
	Values       map[string]types.AttributeValue
	IndexName    string
}

// Input builds a query request against table.
func (q *QueryExpression) Input(table *Table, consistentRead bool) *dynamodb.QueryInput {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(table.TableName),
		KeyConditionExpression:    aws.String(q.KeyCondition),
		ExpressionAttributeNames:  q.Names,
		ExpressionAttributeValues: q.Values,
	}
	if q.Filter != "" {
		input.FilterExpression = aws.String(q.Filter)
	}
	if q.IndexName != "" {
		input.IndexName = aws.String(q.IndexName)
	}
	if consistentRead {
		input.ConsistentRead = aws.Bool(true)
	}
	return input
}

// CompileQuery compiles a key condition and an optional filter. resolve maps attribute
// names to wire names; a nil resolve uses the names as given.
//
// Name and value placeholders share one counter across the whole compilation, so the
// same attribute can appear in any number of clauses without collision.
func CompileQuery(resolve func(string) string, key KeyConditions, filter *Filter) (*QueryExpression, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: key condition is required", ErrInvalidFilter)
	}

	c := newCompiler(resolve)
	keyClauses, err := c.and(key)
	if err != nil {
		return nil, fmt.Errorf("key condition: %w", err)
	}

	q := &QueryExpression{
		KeyCondition: strings.Join(keyClauses, " AND "),
	}
	if filter.IsSet() {
		if q.Filter, err = c.filter(filter); err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
	}
	q.Names = c.names
	q.Values = c.values
	return q, nil
}

type compiler struct {
	resolve func(string) string
	counter int
	names   map[string]string // #token -> wire name
	values  map[string]types.AttributeValue
}

func newCompiler(resolve func(string) string) *compiler {
	if resolve == nil {
		resolve = func(name string) string { return name }
	}
	return &compiler{
		resolve: resolve,
		names:   make(map[string]string),
		values:  make(map[string]types.AttributeValue),
	}
}

func (c *compiler) filter(f *Filter) (string, error) {
	var orExpr string
	if len(f.Or) > 0 {
		branches := make([]string, 0, len(f.Or))
		for i, conds := range f.Or {
			if len(conds) == 0 {
				return "", fmt.Errorf("%w: $or entry %d is empty", ErrInvalidFilter, i)
			}
			clauses, err := c.and(conds)
			if err != nil {
				return "", err
			}
			branch := strings.Join(clauses, " AND ")
			if len(clauses) > 1 {
				branch = "(" + branch + ")"
			}
			branches = append(branches, branch)
		}
		orExpr = strings.Join(branches, " OR ")
	}

	var andExpr string
	if len(f.And) > 0 {
		clauses, err := c.and(f.And)
		if err != nil {
			return "", err
		}
		andExpr = strings.Join(clauses, " AND ")
	}

	switch {
	case orExpr != "" && andExpr != "":
		return "(" + orExpr + ") AND (" + andExpr + ")", nil
	case orExpr != "":
		return orExpr, nil
	default:
		return andExpr, nil
	}
}

// and compiles each condition in attribute name order.
func (c *compiler) and(conds AndConditions) ([]string, error) {
	attrs := make([]string, 0, len(conds))
	for attr := range conds {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	clauses := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		clause, err := c.condition(attr, conds[attr])
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func (c *compiler) condition(attr string, value any) (string, error) {
	wire := c.resolve(attr)
	if wire == "" {
		return "", fmt.Errorf("%w: empty attribute name", ErrInvalidFilter)
	}

	switch v := value.(type) {
	case BeginsWithCondition:
		av, err := c.attributeValue(wire, v.Prefix)
		if err != nil {
			return "", err
		}
		name, placeholder := c.placeholders(wire, av)
		return fmt.Sprintf("begins_with(%s, %s)", name, placeholder), nil
	case *BeginsWithCondition:
		return c.condition(attr, *v)
	}

	if items, ok := sliceValues(value); ok {
		if len(items) == 0 {
			return "", fmt.Errorf("%w: %s: empty value list", ErrInvalidFilter, attr)
		}
		avs := make([]types.AttributeValue, len(items))
		for i, item := range items {
			av, err := c.attributeValue(wire, item)
			if err != nil {
				return "", err
			}
			avs[i] = av
		}
		name, first := c.placeholders(wire, avs[0])
		placeholders := []string{first}
		for _, av := range avs[1:] {
			placeholders = append(placeholders, c.value(wire, av))
		}
		return fmt.Sprintf("%s IN (%s)", name, strings.Join(placeholders, ",")), nil
	}

	av, err := c.attributeValue(wire, value)
	if err != nil {
		return "", err
	}
	name, placeholder := c.placeholders(wire, av)
	return fmt.Sprintf("%s = %s", name, placeholder), nil
}

// placeholders binds wire and av to a #<alias><n> / :<alias><n> pair. The counter
// skips suffixes already spelled by another attribute ("x1" at 2 and "x" at 12).
func (c *compiler) placeholders(wire string, av types.AttributeValue) (string, string) {
	base := placeholderSafe(wire)
	for {
		c.counter++
		n := strconv.Itoa(c.counter)
		name, value := "#"+base+n, ":"+base+n
		_, nameTaken := c.names[name]
		_, valueTaken := c.values[value]
		if nameTaken || valueTaken {
			continue
		}
		c.names[name] = wire
		c.values[value] = av
		return name, value
	}
}

// value binds av to the next free :<alias><n> placeholder.
func (c *compiler) value(wire string, av types.AttributeValue) string {
	base := placeholderSafe(wire)
	for {
		c.counter++
		placeholder := ":" + base + strconv.Itoa(c.counter)
		if _, taken := c.values[placeholder]; taken {
			continue
		}
		c.values[placeholder] = av
		return placeholder
	}
}

func (c *compiler) attributeValue(wire string, value any) (types.AttributeValue, error) {
	av, err := toAttributeValue(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, wire, err)
	}
	return av, nil
}

func toAttributeValue(value any) (types.AttributeValue, error) {
	if av, ok := value.(types.AttributeValue); ok {
		return av, nil
	}
	if value == nil {
		return nil, fmt.Errorf("nil value")
	}
	return attributevalue.Marshal(value)
}

// sliceValues returns the elements of value if it is a list of values. Byte slices
// are scalar binary values.
func sliceValues(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []byte:
		return nil, false
	case types.AttributeValue:
		return nil, false
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func placeholderSafe(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
