package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/martinemde/chatagent/agentloop"
)

var forbiddenExpressionParts = []string{"__", "import", "exec", "eval", "open", "file"}

// calcNames lists the functions and constants in the order they are reported.
var calcNames = []string{
	"abs", "round", "min", "max", "sum", "pow",
	"sqrt", "sin", "cos", "tan", "log", "log10", "exp", "floor", "ceil",
	"pi", "e",
}

var (
	errDivisionByZero = errors.New("division by zero")
	errMathDomain     = errors.New("math domain error")
	errMathRange      = errors.New("math range error")
)

type calcSyntaxError struct {
	msg string
	pos int
}

func (e *calcSyntaxError) Error() string {
	return fmt.Sprintf("%s at position %d", e.msg, e.pos)
}

type calcNameError struct {
	name string
}

func (e *calcNameError) Error() string {
	return fmt.Sprintf("name '%s' is not defined", e.name)
}

func registerCalculator(reg *agentloop.ToolRegistry) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name: "calculate",
			Description: "Perform mathematical calculations. Supports basic arithmetic (+, -, *, /, **), " +
				"and math functions like sqrt, sin, cos, tan, log, exp, etc. " +
				"Available constants: pi, e. " +
				"Examples: '2 + 2', '15 * 3.5', 'sqrt(144)', 'sin(pi/2)', 'log10(1000)'",
			Parameters: objectSchema(map[string]interface{}{
				"expression": stringProp("Mathematical expression to evaluate. Use Python syntax."),
			}, "expression"),
		},
		Executor: func(_ context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			expr, err := requiredString(args, "expression")
			if err != nil {
				return "", err
			}
			return Calculate(expr), nil
		},
	})
}

// Calculate evaluates a restricted arithmetic expression and renders the
// result or a diagnostic.
func Calculate(expression string) string {
	lower := strings.ToLower(expression)
	for _, bad := range forbiddenExpressionParts {
		if strings.Contains(lower, bad) {
			return fmt.Sprintf("Error: Expression contains forbidden operation: %s", bad)
		}
	}

	v, err := evaluate(expression)
	if err != nil {
		var synErr *calcSyntaxError
		var nameErr *calcNameError
		switch {
		case errors.Is(err, errDivisionByZero):
			return "Error: Division by zero"
		case errors.As(err, &nameErr):
			return "Error: Unknown function or variable. Available functions: " + strings.Join(calcNames, ", ")
		case errors.As(err, &synErr):
			return "Error: Invalid expression syntax. " + synErr.Error()
		default:
			return fmt.Sprintf("Error calculating: %v", err)
		}
	}
	if v.isList {
		return "Result: " + formatList(v.list)
	}
	return "Result: " + formatNumber(v.num)
}

func evaluate(expression string) (calcValue, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return calcValue{}, err
	}
	p := &calcParser{tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return calcValue{}, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return calcValue{}, &calcSyntaxError{msg: fmt.Sprintf("unexpected %q", tok.text), pos: tok.pos}
	}
	return root.eval()
}

// formatNumber prints integral values without a fractional part and rounds
// everything else to ten decimal places.
func formatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case v == 0:
		return "0"
	case v == math.Trunc(v):
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	rounded := math.Round(v*1e10) / 1e10
	if math.IsInf(v*1e10, 0) {
		rounded = v
	}
	if rounded == math.Trunc(rounded) {
		return formatNumber(rounded)
	}
	if abs := math.Abs(rounded); abs < 1e-4 {
		return strconv.FormatFloat(rounded, 'e', -1, 64)
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

func formatList(list []float64) string {
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = formatNumber(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// --- lexer ---

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokName
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func tokenize(s string) ([]token, error) {
	var tokens []token
	runes := []rune(s)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
				j := i + 1
				if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
					j++
				}
				if j < len(runes) && unicode.IsDigit(runes[j]) {
					i = j
					for i < len(runes) && unicode.IsDigit(runes[i]) {
						i++
					}
				}
			}
			text := string(runes[start:i])
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, &calcSyntaxError{msg: fmt.Sprintf("invalid number %q", text), pos: start}
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: n, pos: start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{kind: tokName, text: string(runes[start:i]), pos: start})
		case r == '*' || r == '/':
			if i+1 < len(runes) && runes[i+1] == r {
				tokens = append(tokens, token{kind: tokOp, text: string([]rune{r, r}), pos: i})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokOp, text: string(r), pos: i})
				i++
			}
		case r == '+' || r == '-' || r == '%':
			tokens = append(tokens, token{kind: tokOp, text: string(r), pos: i})
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == '[':
			tokens = append(tokens, token{kind: tokLBracket, text: "[", pos: i})
			i++
		case r == ']':
			tokens = append(tokens, token{kind: tokRBracket, text: "]", pos: i})
			i++
		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i})
			i++
		default:
			return nil, &calcSyntaxError{msg: fmt.Sprintf("invalid character %q", r), pos: i}
		}
	}
	tokens = append(tokens, token{kind: tokEOF, text: "end of input", pos: len(runes)})
	return tokens, nil
}

// --- parser ---

// calcParser is a recursive-descent parser with Python operator precedence:
//
//	expr    := term (("+" | "-") term)*
//	term    := unary (("*" | "/" | "//" | "%") unary)*
//	unary   := ("+" | "-") unary | power
//	power   := primary ("**" unary)?
//	primary := number | name | name "(" args ")" | "(" expr ")" | "[" args "]"
type calcParser struct {
	tokens []token
	pos    int
}

func (p *calcParser) peek() token {
	return p.tokens[p.pos]
}

func (p *calcParser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *calcParser) expect(kind tokenKind, text string) error {
	tok := p.next()
	if tok.kind != kind {
		return &calcSyntaxError{msg: fmt.Sprintf("expected %q, found %q", text, tok.text), pos: tok.pos}
	}
	return nil
}

func (p *calcParser) isOp(ops ...string) bool {
	tok := p.peek()
	if tok.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if tok.text == op {
			return true
		}
	}
	return false
}

func (p *calcParser) parseExpr() (calcNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := p.next().text
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *calcParser) parseTerm() (calcNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/", "//", "%") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *calcParser) parseUnary() (calcNode, error) {
	if p.isOp("+", "-") {
		op := p.next().text
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePower()
}

func (p *calcParser) parsePower() (calcNode, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: "**", left: base, right: exp}, nil
	}
	return base, nil
}

func (p *calcParser) parsePrimary() (calcNode, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return &numberNode{value: tok.num}, nil
	case tokName:
		if p.peek().kind == tokLParen {
			p.next()
			args, err := p.parseArgs(tokRParen, ")")
			if err != nil {
				return nil, err
			}
			return &callNode{name: tok.text, args: args}, nil
		}
		return &nameNode{name: tok.text}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokLBracket:
		items, err := p.parseArgs(tokRBracket, "]")
		if err != nil {
			return nil, err
		}
		return &listNode{items: items}, nil
	default:
		return nil, &calcSyntaxError{msg: fmt.Sprintf("unexpected %q", tok.text), pos: tok.pos}
	}
}

// parseArgs parses a comma-separated list up to the closing token, allowing a
// trailing comma.
func (p *calcParser) parseArgs(closing tokenKind, text string) ([]calcNode, error) {
	var args []calcNode
	for p.peek().kind != closing {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}
	if err := p.expect(closing, text); err != nil {
		return nil, err
	}
	return args, nil
}

// --- evaluation ---

type calcValue struct {
	num    float64
	list   []float64
	isList bool
}

func number(v float64) calcValue { return calcValue{num: v} }

type calcNode interface {
	eval() (calcValue, error)
}

type numberNode struct{ value float64 }

func (n *numberNode) eval() (calcValue, error) { return number(n.value), nil }

type nameNode struct{ name string }

func (n *nameNode) eval() (calcValue, error) {
	switch n.name {
	case "pi":
		return number(math.Pi), nil
	case "e":
		return number(math.E), nil
	}
	if _, ok := calcFunctions[n.name]; ok {
		return calcValue{}, fmt.Errorf("'%s' is a function and must be called", n.name)
	}
	return calcValue{}, &calcNameError{name: n.name}
}

type listNode struct{ items []calcNode }

func (n *listNode) eval() (calcValue, error) {
	out := make([]float64, 0, len(n.items))
	for _, item := range n.items {
		v, err := item.eval()
		if err != nil {
			return calcValue{}, err
		}
		if v.isList {
			return calcValue{}, errors.New("nested lists are not supported")
		}
		out = append(out, v.num)
	}
	return calcValue{list: out, isList: true}, nil
}

type unaryNode struct {
	op      string
	operand calcNode
}

func (n *unaryNode) eval() (calcValue, error) {
	v, err := n.operand.eval()
	if err != nil {
		return calcValue{}, err
	}
	if v.isList {
		return calcValue{}, fmt.Errorf("bad operand type for unary %s: 'list'", n.op)
	}
	if n.op == "-" {
		return number(-v.num), nil
	}
	return v, nil
}

type binaryNode struct {
	op          string
	left, right calcNode
}

func (n *binaryNode) eval() (calcValue, error) {
	l, err := n.left.eval()
	if err != nil {
		return calcValue{}, err
	}
	r, err := n.right.eval()
	if err != nil {
		return calcValue{}, err
	}
	if l.isList || r.isList {
		return calcValue{}, fmt.Errorf("unsupported operand type(s) for %s: lists", n.op)
	}
	a, b := l.num, r.num
	switch n.op {
	case "+":
		return number(a + b), nil
	case "-":
		return number(a - b), nil
	case "*":
		return number(a * b), nil
	case "/":
		if b == 0 {
			return calcValue{}, errDivisionByZero
		}
		return number(a / b), nil
	case "//":
		if b == 0 {
			return calcValue{}, errDivisionByZero
		}
		return number(math.Floor(a / b)), nil
	case "%":
		if b == 0 {
			return calcValue{}, errDivisionByZero
		}
		return number(pyMod(a, b)), nil
	case "**":
		v, err := power(a, b)
		return number(v), err
	}
	return calcValue{}, fmt.Errorf("unknown operator %s", n.op)
}

// pyMod returns a modulo whose sign follows the divisor.
func pyMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func power(a, b float64) (float64, error) {
	if a == 0 && b < 0 {
		return 0, errDivisionByZero
	}
	if a < 0 && b != math.Trunc(b) {
		return 0, errors.New("negative number cannot be raised to a fractional power")
	}
	v := math.Pow(a, b)
	if math.IsInf(v, 0) && !math.IsInf(a, 0) {
		return 0, errMathRange
	}
	return v, nil
}

type callNode struct {
	name string
	args []calcNode
}

type calcFunc func(args []calcValue) (float64, error)

var calcFunctions map[string]calcFunc

func init() {
	calcFunctions = map[string]calcFunc{
		"abs":   unary(math.Abs),
		"round": calcRound,
		"min":   aggregate("min", math.Min),
		"max":   aggregate("max", math.Max),
		"sum":   calcSum,
		"pow": func(args []calcValue) (float64, error) {
			if err := wantNumbers("pow", args, 2, 2); err != nil {
				return 0, err
			}
			return power(args[0].num, args[1].num)
		},
		"sqrt": func(args []calcValue) (float64, error) {
			if err := wantNumbers("sqrt", args, 1, 1); err != nil {
				return 0, err
			}
			if args[0].num < 0 {
				return 0, errMathDomain
			}
			return math.Sqrt(args[0].num), nil
		},
		"sin": unary(math.Sin),
		"cos": unary(math.Cos),
		"tan": unary(math.Tan),
		"log": func(args []calcValue) (float64, error) {
			if err := wantNumbers("log", args, 1, 2); err != nil {
				return 0, err
			}
			x := args[0].num
			if x <= 0 {
				return 0, errMathDomain
			}
			if len(args) == 2 {
				base := args[1].num
				if base <= 0 {
					return 0, errMathDomain
				}
				if base == 1 {
					return 0, errDivisionByZero
				}
				return math.Log(x) / math.Log(base), nil
			}
			return math.Log(x), nil
		},
		"log10": func(args []calcValue) (float64, error) {
			if err := wantNumbers("log10", args, 1, 1); err != nil {
				return 0, err
			}
			if args[0].num <= 0 {
				return 0, errMathDomain
			}
			return math.Log10(args[0].num), nil
		},
		"exp": func(args []calcValue) (float64, error) {
			if err := wantNumbers("exp", args, 1, 1); err != nil {
				return 0, err
			}
			v := math.Exp(args[0].num)
			if math.IsInf(v, 1) {
				return 0, errMathRange
			}
			return v, nil
		},
		"floor": unary(math.Floor),
		"ceil":  unary(math.Ceil),
	}
}

func (n *callNode) eval() (calcValue, error) {
	fn, ok := calcFunctions[n.name]
	if !ok {
		if n.name == "pi" || n.name == "e" {
			return calcValue{}, errors.New("'float' object is not callable")
		}
		return calcValue{}, &calcNameError{name: n.name}
	}
	args := make([]calcValue, len(n.args))
	for i, a := range n.args {
		v, err := a.eval()
		if err != nil {
			return calcValue{}, err
		}
		args[i] = v
	}
	v, err := fn(args)
	if err != nil {
		return calcValue{}, err
	}
	return number(v), nil
}

func wantNumbers(name string, args []calcValue, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return fmt.Errorf("%s() takes exactly %d argument(s) (%d given)", name, lo, len(args))
		}
		return fmt.Errorf("%s() takes %d to %d arguments (%d given)", name, lo, hi, len(args))
	}
	for _, a := range args {
		if a.isList {
			return fmt.Errorf("%s() argument must be a number, not 'list'", name)
		}
	}
	return nil
}

func unary(f func(float64) float64) calcFunc {
	return func(args []calcValue) (float64, error) {
		if err := wantNumbers("function", args, 1, 1); err != nil {
			return 0, err
		}
		return f(args[0].num), nil
	}
}

// flatten accepts either several numbers or a single list.
func flatten(name string, args []calcValue) ([]float64, error) {
	if len(args) == 1 && args[0].isList {
		return args[0].list, nil
	}
	out := make([]float64, 0, len(args))
	for _, a := range args {
		if a.isList {
			return nil, fmt.Errorf("%s() arguments must be numbers", name)
		}
		out = append(out, a.num)
	}
	return out, nil
}

func aggregate(name string, pick func(a, b float64) float64) calcFunc {
	return func(args []calcValue) (float64, error) {
		values, err := flatten(name, args)
		if err != nil {
			return 0, err
		}
		if len(values) == 0 {
			return 0, fmt.Errorf("%s() arg is an empty sequence", name)
		}
		result := values[0]
		for _, v := range values[1:] {
			result = pick(result, v)
		}
		return result, nil
	}
}

func calcSum(args []calcValue) (float64, error) {
	if len(args) == 0 || len(args) > 2 || !args[0].isList {
		return 0, errors.New("sum() takes a list and an optional start value")
	}
	total := 0.0
	if len(args) == 2 {
		if args[1].isList {
			return 0, errors.New("sum() start value must be a number")
		}
		total = args[1].num
	}
	for _, v := range args[0].list {
		total += v
	}
	return total, nil
}

func calcRound(args []calcValue) (float64, error) {
	if err := wantNumbers("round", args, 1, 2); err != nil {
		return 0, err
	}
	x := args[0].num
	if len(args) == 1 {
		return math.RoundToEven(x), nil
	}
	scale := math.Pow(10, math.Trunc(args[1].num))
	return math.RoundToEven(x*scale) / scale, nil
}
