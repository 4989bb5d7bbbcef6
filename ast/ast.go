// Package ast defines the validated syntax tree consumed by the
// bytecode compiler. The parser lives outside this module; it hands
// over trees that are structurally well-formed, so these types carry
// no grammar-level validation.
package ast

// Program is the root of a parsed source file: the ordered top-level
// statements, including function definitions.
type Program struct {
	Stmts []Stmt
}

// Node is implemented by every syntax tree node.
type Node interface {
	node()
}

// Expr is a node that produces a value.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a node executed for effect.
type Stmt interface {
	Node
	stmtNode()
}

// ============================================================================
// Expressions
// ============================================================================

// NumberLit is a numeric literal. All numbers are floating point.
type NumberLit struct {
	Value float64
}

// StringLit is a string literal.
type StringLit struct {
	Value string
}

// BoolLit is a boolean literal.
type BoolLit struct {
	Value bool
}

// NilLit is the literal "nothing".
type NilLit struct{}

// Ident references a variable by name. Resolution to a local slot or
// global binding happens at compile time.
type Ident struct {
	Name string
}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

var binaryOpNames = [...]string{
	"plus", "minus", "times", "divided by", "modulo",
	"is equal to", "is not equal to", "is less than",
	"is at most", "is greater than", "is at least",
	"and", "or",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return "unknown"
}

// Binary applies a binary operator. And/Or short-circuit.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
)

// Unary applies a unary operator.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

// Call invokes a user-defined function by name.
type Call struct {
	Name string
	Args []Expr
}

// ListLit builds a list from element expressions.
type ListLit struct {
	Elems []Expr
}

// DictEntry is one key/value pair of a dictionary literal.
type DictEntry struct {
	Key   Expr
	Value Expr
}

// DictLit builds a dictionary from entries.
type DictLit struct {
	Entries []DictEntry
}

// Index reads an element of a list or dictionary.
type Index struct {
	Target Expr
	Key    Expr
}

// ReadFile reads a file's contents as a string.
type ReadFile struct {
	Path Expr
}

func (*NumberLit) node() {}
func (*StringLit) node() {}
func (*BoolLit) node()   {}
func (*NilLit) node()    {}
func (*Ident) node()     {}
func (*Binary) node()    {}
func (*Unary) node()     {}
func (*Call) node()      {}
func (*ListLit) node()   {}
func (*DictLit) node()   {}
func (*Index) node()     {}
func (*ReadFile) node()  {}

func (*NumberLit) exprNode() {}
func (*StringLit) exprNode() {}
func (*BoolLit) exprNode()   {}
func (*NilLit) exprNode()    {}
func (*Ident) exprNode()     {}
func (*Binary) exprNode()    {}
func (*Unary) exprNode()     {}
func (*Call) exprNode()      {}
func (*ListLit) exprNode()   {}
func (*DictLit) exprNode()   {}
func (*Index) exprNode()     {}
func (*ReadFile) exprNode()  {}

// ============================================================================
// Statements
// ============================================================================

// ExprStmt evaluates an expression and discards its value.
type ExprStmt struct {
	Expr Expr
}

// Write prints a value ("Write 1 plus 2").
type Write struct {
	Expr Expr
}

// Set assigns to a variable ("Set x to 5"). Inside a function the
// first assignment introduces a local; at top level it binds a global.
type Set struct {
	Name  string
	Value Expr
}

// SetIndex assigns to a list or dictionary element.
type SetIndex struct {
	Target Expr
	Key    Expr
	Value  Expr
}

// WriteFile writes string contents to a path.
type WriteFile struct {
	Path    Expr
	Content Expr
}

// If branches on a condition. Else may be empty.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// While loops while the condition holds.
type While struct {
	Cond Expr
	Body []Stmt
}

// Repeat executes the body a fixed number of times
// ("Repeat 5 times ... end repeat").
type Repeat struct {
	Count Expr
	Body  []Stmt
}

// Param is a declared function parameter. Default may be nil, in which
// case the parameter is required and must be a literal when present.
type Param struct {
	Name    string
	Default Expr
}

// FuncDef defines a named function ("Make greet with name: ...").
type FuncDef struct {
	Name   string
	Params []Param
	Body   []Stmt
}

// Return exits the enclosing function. Value may be nil ("return
// nothing").
type Return struct {
	Value Expr
}

// Handler is one typed catch arm of a try-construct. An empty
// TypeName is the untyped catch-all. Var names the variable the
// caught error is bound to; it may be empty when unused.
type Handler struct {
	TypeName string
	Var      string
	Body     []Stmt
}

// Try is the try/catch/finally construct ("try this: ... if error of
// type MathError as e ... finally ... end try"). Finally may be empty.
type Try struct {
	Body     []Stmt
	Handlers []Handler
	Finally  []Stmt
}

// Throw raises an error of the named type with a message
// ("throw error of type ValidationError with message ..."). When
// Value is non-nil instead, the expression's error value is re-raised.
type Throw struct {
	TypeName string
	Message  Expr
	Value    Expr
}

func (*ExprStmt) node()  {}
func (*Write) node()     {}
func (*Set) node()       {}
func (*SetIndex) node()  {}
func (*WriteFile) node() {}
func (*If) node()        {}
func (*While) node()     {}
func (*Repeat) node()    {}
func (*FuncDef) node()   {}
func (*Return) node()    {}
func (*Try) node()       {}
func (*Throw) node()     {}

func (*ExprStmt) stmtNode()  {}
func (*Write) stmtNode()     {}
func (*Set) stmtNode()       {}
func (*SetIndex) stmtNode()  {}
func (*WriteFile) stmtNode() {}
func (*If) stmtNode()        {}
func (*While) stmtNode()     {}
func (*Repeat) stmtNode()    {}
func (*FuncDef) stmtNode()   {}
func (*Return) stmtNode()    {}
func (*Try) stmtNode()       {}
func (*Throw) stmtNode()     {}
