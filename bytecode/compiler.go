package bytecode

import (
	"github.com/AlhaqGH/PohLang-sub001/ast"
)

// Compiler lowers a validated syntax tree to a Program. It resolves
// local names to slots, global and function references to indices, and
// patches every forward jump before the program is returned; no
// placeholder target survives compilation.
type Compiler struct {
	prog *Program

	// Constant pool management (deduplication)
	constantMap map[string]int

	// Function name -> table index, pre-registered so definition order
	// does not matter for call resolution.
	funcIndexes map[string]int

	// Names assigned at top level; everything else an Ident can
	// reference must be a local slot.
	globals map[string]bool

	// Current function scope
	scope *funcScope
}

// funcScope tracks slot allocation for one function body (or the
// top-level main body).
type funcScope struct {
	funcIndex  int
	localSlots map[string]int
	nextSlot   int
	// topLevel marks the main body, where assignments bind globals
	// instead of local slots.
	topLevel bool
	// tryDepth counts enclosing try-constructs, for diagnostics.
	tryDepth int
	// inFinally rejects returns inside finally blocks, whose
	// interaction with the pending exit they interrupt is ambiguous.
	inFinally bool
}

// Compile lowers the tree to an executable Program or fails with a
// *CompileError. The top-level body compiles first (ending in HALT),
// followed by each function body in definition order.
func Compile(tree *ast.Program) (*Program, error) {
	c := &Compiler{
		prog:        NewProgram(),
		constantMap: make(map[string]int),
		funcIndexes: make(map[string]int),
		globals:     make(map[string]bool),
	}

	var funcs []*ast.FuncDef
	var mainBody []ast.Stmt
	for _, stmt := range tree.Stmts {
		if fn, ok := stmt.(*ast.FuncDef); ok {
			funcs = append(funcs, fn)
			continue
		}
		mainBody = append(mainBody, stmt)
	}

	// Register functions and top-level names before emitting anything,
	// so references resolve regardless of order.
	for _, fn := range funcs {
		if _, exists := c.funcIndexes[fn.Name]; exists {
			return nil, compileErrorf("function %q defined twice", fn.Name)
		}
		if len(c.prog.Functions) >= MaxFunctions {
			return nil, compileErrorf("too many functions (max %d)", MaxFunctions)
		}
		params, err := c.resolveParams(fn)
		if err != nil {
			return nil, err
		}
		c.funcIndexes[fn.Name] = len(c.prog.Functions)
		c.prog.Functions = append(c.prog.Functions, FunctionInfo{
			Name:   fn.Name,
			Params: params,
		})
	}
	collectGlobals(mainBody, c.globals)

	// Main body.
	c.scope = &funcScope{funcIndex: 0, localSlots: make(map[string]int), topLevel: true}
	for _, stmt := range mainBody {
		if err := c.compileStmt(stmt); err != nil {
			return nil, err
		}
	}
	c.emit(OpHalt)
	c.prog.Functions[0].End = len(c.prog.Instructions)
	c.prog.Functions[0].LocalCount = c.scope.nextSlot

	// Function bodies.
	for _, fn := range funcs {
		if err := c.compileFunction(fn); err != nil {
			return nil, err
		}
	}

	if err := Verify(c.prog); err != nil {
		return nil, &CompileError{Message: err.Error()}
	}
	return c.prog, nil
}

// resolveParams validates parameter defaults (literals only) and
// interns them into the constant pool.
func (c *Compiler) resolveParams(fn *ast.FuncDef) ([]Param, error) {
	if len(fn.Params) >= MaxArgs {
		return nil, compileErrorf("function %q has too many parameters (max %d)", fn.Name, MaxArgs-1)
	}
	params := make([]Param, 0, len(fn.Params))
	seenDefault := false
	for _, p := range fn.Params {
		param := Param{Name: p.Name, DefaultConst: -1}
		if p.Default != nil {
			seenDefault = true
			konst, ok := literalConstant(p.Default)
			if !ok {
				return nil, compileErrorf("default value for parameter %q of %q must be a literal", p.Name, fn.Name)
			}
			idx, err := c.addConstant(konst)
			if err != nil {
				return nil, err
			}
			param.DefaultConst = int32(idx)
		} else if seenDefault {
			return nil, compileErrorf("required parameter %q of %q follows a defaulted one", p.Name, fn.Name)
		}
		params = append(params, param)
	}
	return params, nil
}

// literalConstant converts a literal expression to a pool constant.
func literalConstant(e ast.Expr) (Constant, bool) {
	switch lit := e.(type) {
	case *ast.NumberLit:
		return NumberConstant(lit.Value), true
	case *ast.StringLit:
		return StringConstant(lit.Value), true
	case *ast.BoolLit:
		return BooleanConstant(lit.Value), true
	case *ast.NilLit:
		return NilConstant(), true
	default:
		return Constant{}, false
	}
}

// collectGlobals records every name assigned anywhere in the top-level
// body, including inside nested blocks.
func collectGlobals(stmts []ast.Stmt, out map[string]bool) {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.Set:
			out[s.Name] = true
		case *ast.If:
			collectGlobals(s.Then, out)
			collectGlobals(s.Else, out)
		case *ast.While:
			collectGlobals(s.Body, out)
		case *ast.Repeat:
			collectGlobals(s.Body, out)
		case *ast.Try:
			collectGlobals(s.Body, out)
			for _, h := range s.Handlers {
				collectGlobals(h.Body, out)
			}
			collectGlobals(s.Finally, out)
		}
	}
}

func (c *Compiler) compileFunction(fn *ast.FuncDef) error {
	idx := c.funcIndexes[fn.Name]
	info := &c.prog.Functions[idx]
	info.Entry = len(c.prog.Instructions)

	c.scope = &funcScope{funcIndex: idx, localSlots: make(map[string]int)}
	for _, p := range info.Params {
		c.scope.localSlots[p.Name] = c.scope.nextSlot
		c.scope.nextSlot++
	}

	for _, stmt := range fn.Body {
		if _, nested := stmt.(*ast.FuncDef); nested {
			return compileErrorf("function %q defined inside function %q; functions must be top-level", stmt.(*ast.FuncDef).Name, fn.Name)
		}
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}

	// Implicit "return nothing" when control falls off the end.
	c.emit(OpNil)
	c.emit(OpReturn)

	info.End = len(c.prog.Instructions)
	info.LocalCount = c.scope.nextSlot
	return nil
}

// ============================================================================
// Statements
// ============================================================================

func (c *Compiler) compileStmt(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		if err := c.compileExpr(s.Expr); err != nil {
			return err
		}
		c.emit(OpPop)
		return nil

	case *ast.Write:
		if err := c.compileExpr(s.Expr); err != nil {
			return err
		}
		c.emit(OpPrint)
		return nil

	case *ast.Set:
		return c.compileSet(s)

	case *ast.SetIndex:
		if err := c.compileExpr(s.Target); err != nil {
			return err
		}
		if err := c.compileExpr(s.Key); err != nil {
			return err
		}
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emit(OpIndexSet)
		return nil

	case *ast.WriteFile:
		if err := c.compileExpr(s.Path); err != nil {
			return err
		}
		if err := c.compileExpr(s.Content); err != nil {
			return err
		}
		c.emit(OpWriteFile)
		return nil

	case *ast.If:
		return c.compileIf(s)

	case *ast.While:
		return c.compileWhile(s)

	case *ast.Repeat:
		return c.compileRepeat(s)

	case *ast.Return:
		if c.scope.topLevel {
			return compileErrorf("return outside of a function")
		}
		if c.scope.inFinally {
			return compileErrorf("return inside a finally block")
		}
		if s.Value != nil {
			if err := c.compileExpr(s.Value); err != nil {
				return err
			}
		} else {
			c.emit(OpNil)
		}
		c.emit(OpReturn)
		return nil

	case *ast.Try:
		return c.compileTry(s)

	case *ast.Throw:
		return c.compileThrow(s)

	case *ast.FuncDef:
		return compileErrorf("function %q must be defined at top level", s.Name)

	default:
		return compileErrorf("unsupported statement %T", stmt)
	}
}

func (c *Compiler) compileSet(s *ast.Set) error {
	if err := c.compileExpr(s.Value); err != nil {
		return err
	}
	// Handler-bound variables shadow globals even at top level.
	if slot, ok := c.scope.localSlots[s.Name]; ok {
		c.emit1(OpStoreLocal, int32(slot))
		return nil
	}
	if c.scope.topLevel {
		idx, err := c.addConstant(StringConstant(s.Name))
		if err != nil {
			return err
		}
		c.emit1(OpStoreGlobal, int32(idx))
		return nil
	}
	slot, err := c.defineLocal(s.Name)
	if err != nil {
		return err
	}
	c.emit1(OpStoreLocal, int32(slot))
	return nil
}

func (c *Compiler) compileIf(s *ast.If) error {
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	elseJump := c.emitJump(OpJumpFalse)
	for _, stmt := range s.Then {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	if len(s.Else) == 0 {
		c.patchJump(elseJump)
		return nil
	}
	endJump := c.emitJump(OpJump)
	c.patchJump(elseJump)
	for _, stmt := range s.Else {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	c.patchJump(endJump)
	return nil
}

func (c *Compiler) compileWhile(s *ast.While) error {
	start := len(c.prog.Instructions)
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	exitJump := c.emitJump(OpJumpFalse)
	for _, stmt := range s.Body {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	c.emit1(OpJump, int32(start))
	c.patchJump(exitJump)
	return nil
}

// compileRepeat lowers "Repeat n times" to a counted loop over an
// anonymous local slot.
func (c *Compiler) compileRepeat(s *ast.Repeat) error {
	counter, err := c.defineTempLocal()
	if err != nil {
		return err
	}
	if err := c.compileExpr(s.Count); err != nil {
		return err
	}
	c.emit1(OpStoreLocal, int32(counter))

	start := len(c.prog.Instructions)
	c.emit1(OpLoadLocal, int32(counter))
	zero, err := c.addConstant(NumberConstant(0))
	if err != nil {
		return err
	}
	c.emit1(OpConst, int32(zero))
	c.emit(OpGt)
	exitJump := c.emitJump(OpJumpFalse)

	for _, stmt := range s.Body {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}

	c.emit1(OpLoadLocal, int32(counter))
	one, err := c.addConstant(NumberConstant(1))
	if err != nil {
		return err
	}
	c.emit1(OpConst, int32(one))
	c.emit(OpSub)
	c.emit1(OpStoreLocal, int32(counter))
	c.emit1(OpJump, int32(start))
	c.patchJump(exitJump)
	return nil
}

// compileTry lays out a try-construct as:
//
//	PUSH_TRY t
//	<body> POP_TRY JUMP end
//	<handler bodies, each ending POP_TRY JUMP end>
//	<finally body> END_FINALLY
//	end:
//
// The VM routes every exit through the finally body (when present)
// before control reaches end; see the try table semantics in vm.go.
func (c *Compiler) compileTry(s *ast.Try) error {
	if len(c.prog.Tries) >= MaxTries {
		return compileErrorf("too many try constructs (max %d)", MaxTries)
	}
	tryIndex := len(c.prog.Tries)
	c.prog.Tries = append(c.prog.Tries, TryInfo{FinallyEntry: -1})

	c.emit1(OpPushTry, int32(tryIndex))
	c.scope.tryDepth++

	var endJumps []int
	for _, stmt := range s.Body {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	c.emit(OpPopTry)
	endJumps = append(endJumps, c.emitJump(OpJump))

	handlers := make([]Handler, 0, len(s.Handlers))
	for _, h := range s.Handlers {
		entry := len(c.prog.Instructions)
		slot, err := c.handlerSlot(h.Var)
		if err != nil {
			return err
		}
		handlers = append(handlers, Handler{Filter: h.TypeName, Entry: entry, Slot: slot})
		for _, stmt := range h.Body {
			if err := c.compileStmt(stmt); err != nil {
				return err
			}
		}
		c.emit(OpPopTry)
		endJumps = append(endJumps, c.emitJump(OpJump))
	}

	finallyEntry := -1
	if len(s.Finally) > 0 {
		finallyEntry = len(c.prog.Instructions)
		wasInFinally := c.scope.inFinally
		c.scope.inFinally = true
		for _, stmt := range s.Finally {
			if err := c.compileStmt(stmt); err != nil {
				return err
			}
		}
		c.scope.inFinally = wasInFinally
		c.emit(OpEndFinally)
	}

	for _, j := range endJumps {
		c.patchJump(j)
	}

	c.scope.tryDepth--
	c.prog.Tries[tryIndex] = TryInfo{Handlers: handlers, FinallyEntry: finallyEntry}
	return nil
}

// handlerSlot allocates the local slot a caught error binds to. An
// unnamed handler still gets a slot so dispatch is uniform.
func (c *Compiler) handlerSlot(name string) (int, error) {
	if name == "" {
		return c.defineTempLocal()
	}
	if slot, ok := c.scope.localSlots[name]; ok {
		return slot, nil
	}
	return c.defineLocal(name)
}

func (c *Compiler) compileThrow(s *ast.Throw) error {
	if s.Value != nil {
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emit1(OpThrow, -1)
		return nil
	}
	if s.Message != nil {
		if err := c.compileExpr(s.Message); err != nil {
			return err
		}
	} else {
		idx, err := c.addConstant(StringConstant(""))
		if err != nil {
			return err
		}
		c.emit1(OpConst, int32(idx))
	}
	idx, err := c.addConstant(StringConstant(s.TypeName))
	if err != nil {
		return err
	}
	c.emit1(OpThrow, int32(idx))
	return nil
}

// ============================================================================
// Expressions
// ============================================================================

func (c *Compiler) compileExpr(expr ast.Expr) error {
	switch e := expr.(type) {
	case *ast.NumberLit:
		idx, err := c.addConstant(NumberConstant(e.Value))
		if err != nil {
			return err
		}
		c.emit1(OpConst, int32(idx))
		return nil

	case *ast.StringLit:
		idx, err := c.addConstant(StringConstant(e.Value))
		if err != nil {
			return err
		}
		c.emit1(OpConst, int32(idx))
		return nil

	case *ast.BoolLit:
		if e.Value {
			c.emit(OpTrue)
		} else {
			c.emit(OpFalse)
		}
		return nil

	case *ast.NilLit:
		c.emit(OpNil)
		return nil

	case *ast.Ident:
		return c.compileIdent(e)

	case *ast.Binary:
		return c.compileBinary(e)

	case *ast.Unary:
		if err := c.compileExpr(e.Operand); err != nil {
			return err
		}
		if e.Op == ast.OpNeg {
			c.emit(OpNeg)
		} else {
			c.emit(OpNot)
		}
		return nil

	case *ast.Call:
		return c.compileCall(e)

	case *ast.ListLit:
		if len(e.Elems) >= MaxConstants {
			return compileErrorf("list literal too large")
		}
		for _, el := range e.Elems {
			if err := c.compileExpr(el); err != nil {
				return err
			}
		}
		c.emit1(OpMakeList, int32(len(e.Elems)))
		return nil

	case *ast.DictLit:
		for _, entry := range e.Entries {
			if err := c.compileExpr(entry.Key); err != nil {
				return err
			}
			if err := c.compileExpr(entry.Value); err != nil {
				return err
			}
		}
		c.emit1(OpMakeDict, int32(len(e.Entries)))
		return nil

	case *ast.Index:
		if err := c.compileExpr(e.Target); err != nil {
			return err
		}
		if err := c.compileExpr(e.Key); err != nil {
			return err
		}
		c.emit(OpIndexGet)
		return nil

	case *ast.ReadFile:
		if err := c.compileExpr(e.Path); err != nil {
			return err
		}
		c.emit(OpReadFile)
		return nil

	default:
		return compileErrorf("unsupported expression %T", expr)
	}
}

func (c *Compiler) compileIdent(e *ast.Ident) error {
	if slot, ok := c.scope.localSlots[e.Name]; ok {
		c.emit1(OpLoadLocal, int32(slot))
		return nil
	}
	if c.globals[e.Name] {
		idx, err := c.addConstant(StringConstant(e.Name))
		if err != nil {
			return err
		}
		c.emit1(OpLoadGlobal, int32(idx))
		return nil
	}
	return compileErrorf("undefined variable %q", e.Name)
}

var binaryOpcodes = map[ast.BinaryOp]Opcode{
	ast.OpAdd: OpAdd,
	ast.OpSub: OpSub,
	ast.OpMul: OpMul,
	ast.OpDiv: OpDiv,
	ast.OpMod: OpMod,
	ast.OpEq:  OpEq,
	ast.OpNe:  OpNe,
	ast.OpLt:  OpLt,
	ast.OpLe:  OpLe,
	ast.OpGt:  OpGt,
	ast.OpGe:  OpGe,
}

func (c *Compiler) compileBinary(e *ast.Binary) error {
	switch e.Op {
	case ast.OpAnd:
		return c.compileShortCircuit(e, OpJumpFalse)
	case ast.OpOr:
		return c.compileShortCircuit(e, OpJumpTrue)
	}
	if err := c.compileExpr(e.Left); err != nil {
		return err
	}
	if err := c.compileExpr(e.Right); err != nil {
		return err
	}
	op, ok := binaryOpcodes[e.Op]
	if !ok {
		return compileErrorf("unsupported binary operator %v", e.Op)
	}
	c.emit(op)
	return nil
}

// compileShortCircuit lowers and/or to jump sequences that always
// leave a boolean on the stack. shortOp is the jump taken as soon as
// the result is decided (JUMP_FALSE for and, JUMP_TRUE for or).
func (c *Compiler) compileShortCircuit(e *ast.Binary, shortOp Opcode) error {
	if err := c.compileExpr(e.Left); err != nil {
		return err
	}
	short1 := c.emitJump(shortOp)
	if err := c.compileExpr(e.Right); err != nil {
		return err
	}
	short2 := c.emitJump(shortOp)
	if shortOp == OpJumpFalse {
		c.emit(OpTrue)
	} else {
		c.emit(OpFalse)
	}
	end := c.emitJump(OpJump)
	c.patchJump(short1)
	c.patchJump(short2)
	if shortOp == OpJumpFalse {
		c.emit(OpFalse)
	} else {
		c.emit(OpTrue)
	}
	c.patchJump(end)
	return nil
}

func (c *Compiler) compileCall(e *ast.Call) error {
	idx, ok := c.funcIndexes[e.Name]
	if !ok {
		return compileErrorf("call to undefined function %q", e.Name)
	}
	info := &c.prog.Functions[idx]
	if len(e.Args) > info.Arity() {
		return compileErrorf("function %q takes at most %d arguments, got %d", e.Name, info.Arity(), len(e.Args))
	}
	if len(e.Args) < info.RequiredArity() {
		return compileErrorf("function %q requires at least %d arguments, got %d", e.Name, info.RequiredArity(), len(e.Args))
	}
	for _, arg := range e.Args {
		if err := c.compileExpr(arg); err != nil {
			return err
		}
	}
	c.emit2(OpCall, int32(idx), int32(len(e.Args)))
	return nil
}

// ============================================================================
// Emit helpers
// ============================================================================

func (c *Compiler) emit(op Opcode) int {
	c.prog.Instructions = append(c.prog.Instructions, Instruction{Op: op})
	return len(c.prog.Instructions) - 1
}

func (c *Compiler) emit1(op Opcode, a int32) int {
	c.prog.Instructions = append(c.prog.Instructions, Instruction{Op: op, A: a})
	return len(c.prog.Instructions) - 1
}

func (c *Compiler) emit2(op Opcode, a, b int32) int {
	c.prog.Instructions = append(c.prog.Instructions, Instruction{Op: op, A: a, B: b})
	return len(c.prog.Instructions) - 1
}

// emitJump emits a jump with a placeholder target and returns its
// instruction index for patchJump.
func (c *Compiler) emitJump(op Opcode) int {
	return c.emit1(op, -1)
}

// patchJump resolves a previously emitted jump to the next instruction
// to be emitted.
func (c *Compiler) patchJump(index int) {
	c.prog.Instructions[index].A = int32(len(c.prog.Instructions))
}

func (c *Compiler) addConstant(konst Constant) (int, error) {
	key := konst.key()
	if idx, ok := c.constantMap[key]; ok {
		return idx, nil
	}
	idx, err := c.prog.AddConstant(konst)
	if err != nil {
		return 0, &CompileError{Message: err.Error()}
	}
	c.constantMap[key] = idx
	return idx, nil
}

func (c *Compiler) defineLocal(name string) (int, error) {
	if c.scope.nextSlot >= MaxLocals {
		return 0, compileErrorf("too many local variables (max %d)", MaxLocals)
	}
	slot := c.scope.nextSlot
	c.scope.localSlots[name] = slot
	c.scope.nextSlot++
	return slot, nil
}

// defineTempLocal allocates an unnamed slot for compiler temporaries
// (loop counters, unnamed handler bindings).
func (c *Compiler) defineTempLocal() (int, error) {
	if c.scope.nextSlot >= MaxLocals {
		return 0, compileErrorf("too many local variables (max %d)", MaxLocals)
	}
	slot := c.scope.nextSlot
	c.scope.nextSlot++
	return slot, nil
}
