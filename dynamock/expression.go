package dynamock

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/dynalink"
)

// condition is a parsed condition, filter or key condition expression.
type condition interface {
	eval(item dynalink.Item) (bool, error)
}

// expressionContext resolves placeholders of one request.
type expressionContext struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

func (c expressionContext) name(token string) (string, error) {
	if strings.HasPrefix(token, "#") {
		name, ok := c.names[token]
		if !ok {
			return "", fmt.Errorf("undefined attribute name placeholder %s", token)
		}
		return name, nil
	}
	return token, nil
}

func (c expressionContext) value(token string) (types.AttributeValue, error) {
	value, ok := c.values[token]
	if !ok {
		return nil, fmt.Errorf("undefined attribute value placeholder %s", token)
	}
	return value, nil
}

// operand is an attribute path or a value placeholder.
type operand struct {
	path  string
	value types.AttributeValue
}

func (o operand) resolve(item dynalink.Item) (types.AttributeValue, bool) {
	if o.value != nil {
		return o.value, true
	}
	av, ok := item[o.path]
	return av, ok
}

type (
	andCondition struct{ left, right condition }
	orCondition  struct{ left, right condition }
	notCondition struct{ inner condition }

	existsCondition struct {
		path   string
		exists bool
	}

	beginsWithCondition struct {
		path   string
		prefix operand
	}

	compareCondition struct {
		op          string
		left, right operand
	}

	inCondition struct {
		left    operand
		choices []operand
	}
)

func (c andCondition) eval(item dynalink.Item) (bool, error) {
	ok, err := c.left.eval(item)
	if err != nil || !ok {
		return false, err
	}
	return c.right.eval(item)
}

func (c orCondition) eval(item dynalink.Item) (bool, error) {
	ok, err := c.left.eval(item)
	if err != nil || ok {
		return ok, err
	}
	return c.right.eval(item)
}

func (c notCondition) eval(item dynalink.Item) (bool, error) {
	ok, err := c.inner.eval(item)
	return !ok, err
}

func (c existsCondition) eval(item dynalink.Item) (bool, error) {
	_, ok := item[c.path]
	return ok == c.exists, nil
}

func (c beginsWithCondition) eval(item dynalink.Item) (bool, error) {
	av, ok := item[c.path].(*types.AttributeValueMemberS)
	if !ok {
		return false, nil
	}
	prefix, ok := c.prefix.value.(*types.AttributeValueMemberS)
	if !ok {
		return false, fmt.Errorf("begins_with requires a string operand")
	}
	return strings.HasPrefix(av.Value, prefix.Value), nil
}

func (c compareCondition) eval(item dynalink.Item) (bool, error) {
	left, ok := c.left.resolve(item)
	if !ok {
		return false, nil
	}
	right, ok := c.right.resolve(item)
	if !ok {
		return false, nil
	}

	switch c.op {
	case "=":
		return equal(left, right), nil
	case "<>":
		return !equal(left, right), nil
	}

	cmp, ok := compare(left, right)
	if !ok {
		return false, nil
	}
	switch c.op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("unsupported comparator %s", c.op)
}

func (c inCondition) eval(item dynalink.Item) (bool, error) {
	left, ok := c.left.resolve(item)
	if !ok {
		return false, nil
	}
	for _, choice := range c.choices {
		if right, ok := choice.resolve(item); ok && equal(left, right) {
			return true, nil
		}
	}
	return false, nil
}

func equal(a, b types.AttributeValue) bool {
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two strings or two numbers.
func compare(a, b types.AttributeValue) (int, bool) {
	switch a := a.(type) {
	case *types.AttributeValueMemberS:
		b, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(a.Value, b.Value), true
	case *types.AttributeValueMemberN:
		b, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, errA := strconv.ParseFloat(a.Value, 64)
		y, errB := strconv.ParseFloat(b.Value, 64)
		if errA != nil || errB != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

var expressionLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "whitespace", Pattern: `\s+`},
	{Name: "Name", Pattern: `#[A-Za-z0-9_]+`},
	{Name: "Value", Pattern: `:[A-Za-z0-9_]+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `<>|<=|>=|[=<>(),]`},
})

// conditionGrammar covers condition, key condition and filter expressions:
// comparisons, IN lists, attribute_exists, attribute_not_exists and begins_with,
// combined with AND, OR, NOT and parentheses.
type conditionGrammar struct {
	Or []*andGrammar `parser:"@@ ( 'OR' @@ )*"`
}

type andGrammar struct {
	And []*notGrammar `parser:"@@ ( 'AND' @@ )*"`
}

type notGrammar struct {
	Not  *notGrammar  `parser:"  'NOT' @@"`
	Term *termGrammar `parser:"| @@"`
}

type termGrammar struct {
	Group      *conditionGrammar  `parser:"  '(' @@ ')'"`
	Function   *functionGrammar   `parser:"| @@"`
	Comparison *comparisonGrammar `parser:"| @@"`
}

type functionGrammar struct {
	Name     string          `parser:"@('attribute_exists' | 'attribute_not_exists' | 'begins_with')"`
	Path     string          `parser:"'(' @(Name | Ident)"`
	Argument *operandGrammar `parser:"( ',' @@ )? ')'"`
}

type comparisonGrammar struct {
	Left  *operandGrammar   `parser:"@@"`
	In    []*operandGrammar `parser:"(  'IN' '(' @@ ( ',' @@ )* ')'"`
	Op    string            `parser:"| @('<>' | '<=' | '>=' | '=' | '<' | '>')"`
	Right *operandGrammar   `parser:"  @@ )"`
}

type operandGrammar struct {
	Value string `parser:"  @Value"`
	Path  string `parser:"| @(Name | Ident)"`
}

// updateGrammar covers SET path = operand and REMOVE path clauses, in any order.
type updateGrammar struct {
	Clauses []*updateClauseGrammar `parser:"@@+"`
}

type updateClauseGrammar struct {
	Set    []*setGrammar `parser:"  'SET' @@ ( ',' @@ )*"`
	Remove []string      `parser:"| 'REMOVE' @(Name | Ident) ( ',' @(Name | Ident) )*"`
}

type setGrammar struct {
	Path  string          `parser:"@(Name | Ident) '='"`
	Value *operandGrammar `parser:"@@"`
}

var (
	conditionParser = participle.MustBuild[conditionGrammar](
		participle.Lexer(expressionLexer),
		participle.CaseInsensitive("Ident"),
	)
	updateParser = participle.MustBuild[updateGrammar](
		participle.Lexer(expressionLexer),
		participle.CaseInsensitive("Ident"),
	)
)

// parseCondition parses a condition expression and resolves its placeholders. An empty
// expression matches every item.
func parseCondition(expr string, ctx expressionContext) (condition, error) {
	if strings.TrimSpace(expr) == "" {
		return matchAll{}, nil
	}
	ast, err := conditionParser.ParseString("", expr)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expr, err)
	}
	cond, err := ast.resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expr, err)
	}
	return cond, nil
}

type matchAll struct{}

func (matchAll) eval(dynalink.Item) (bool, error) { return true, nil }

func (g *conditionGrammar) resolve(ctx expressionContext) (condition, error) {
	var out condition
	for _, branch := range g.Or {
		cond, err := branch.resolve(ctx)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = cond
		} else {
			out = orCondition{out, cond}
		}
	}
	return out, nil
}

func (g *andGrammar) resolve(ctx expressionContext) (condition, error) {
	var out condition
	for _, term := range g.And {
		cond, err := term.resolve(ctx)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = cond
		} else {
			out = andCondition{out, cond}
		}
	}
	return out, nil
}

func (g *notGrammar) resolve(ctx expressionContext) (condition, error) {
	if g.Not != nil {
		inner, err := g.Not.resolve(ctx)
		if err != nil {
			return nil, err
		}
		return notCondition{inner}, nil
	}
	return g.Term.resolve(ctx)
}

func (g *termGrammar) resolve(ctx expressionContext) (condition, error) {
	switch {
	case g.Group != nil:
		return g.Group.resolve(ctx)
	case g.Function != nil:
		return g.Function.resolve(ctx)
	default:
		return g.Comparison.resolve(ctx)
	}
}

func (g *functionGrammar) resolve(ctx expressionContext) (condition, error) {
	path, err := ctx.name(g.Path)
	if err != nil {
		return nil, err
	}

	name := strings.ToLower(g.Name)
	if name == "begins_with" {
		if g.Argument == nil {
			return nil, fmt.Errorf("begins_with requires two arguments")
		}
		prefix, err := g.Argument.resolve(ctx)
		if err != nil {
			return nil, err
		}
		return beginsWithCondition{path: path, prefix: prefix}, nil
	}

	if g.Argument != nil {
		return nil, fmt.Errorf("%s takes one argument", name)
	}
	return existsCondition{path: path, exists: name == "attribute_exists"}, nil
}

func (g *comparisonGrammar) resolve(ctx expressionContext) (condition, error) {
	left, err := g.Left.resolve(ctx)
	if err != nil {
		return nil, err
	}

	if g.Right == nil {
		choices := make([]operand, len(g.In))
		for i, choice := range g.In {
			if choices[i], err = choice.resolve(ctx); err != nil {
				return nil, err
			}
		}
		return inCondition{left: left, choices: choices}, nil
	}

	right, err := g.Right.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return compareCondition{op: g.Op, left: left, right: right}, nil
}

func (g *operandGrammar) resolve(ctx expressionContext) (operand, error) {
	if g.Value != "" {
		value, err := ctx.value(g.Value)
		return operand{value: value}, err
	}
	path, err := ctx.name(g.Path)
	return operand{path: path}, err
}

// applyUpdate applies an update expression made of SET and REMOVE clauses to item.
func applyUpdate(item dynalink.Item, expr string, ctx expressionContext) error {
	ast, err := updateParser.ParseString("", expr)
	if err != nil {
		return fmt.Errorf("unsupported update expression %q: %w", expr, err)
	}

	for _, clause := range ast.Clauses {
		for _, set := range clause.Set {
			name, err := ctx.name(set.Path)
			if err != nil {
				return err
			}
			value, err := set.Value.resolve(ctx)
			if err != nil {
				return err
			}
			av, ok := value.resolve(item)
			if !ok {
				return fmt.Errorf("SET %s: operand is undefined", name)
			}
			item[name] = av
		}
		for _, path := range clause.Remove {
			name, err := ctx.name(path)
			if err != nil {
				return err
			}
			delete(item, name)
		}
	}
	return nil
}
