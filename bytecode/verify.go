package bytecode

import "fmt"

// Verify statically checks a program before it is allowed to run:
// every opcode is defined, every operand index is in range, every jump
// lands inside its owning function, and the operand stack depth along
// every reachable path from each function entry is consistent and
// never negative. The compiler runs this before returning a program
// and the deserializer before accepting one.
func Verify(p *Program) error {
	if len(p.Functions) == 0 {
		return fmt.Errorf("program has no function table")
	}
	for i := range p.Functions {
		f := &p.Functions[i]
		if f.Entry < 0 || f.End > len(p.Instructions) || f.Entry > f.End {
			return fmt.Errorf("function %q has invalid instruction range [%d, %d)", f.Name, f.Entry, f.End)
		}
		if f.LocalCount < 0 || f.LocalCount > MaxLocals {
			return fmt.Errorf("function %q has invalid local count %d", f.Name, f.LocalCount)
		}
		if i > 0 && len(f.Params) > f.LocalCount {
			return fmt.Errorf("function %q declares %d parameters but only %d local slots", f.Name, len(f.Params), f.LocalCount)
		}
		for _, param := range f.Params {
			if param.DefaultConst >= 0 && int(param.DefaultConst) >= len(p.Constants) {
				return fmt.Errorf("function %q parameter %q default references constant %d of %d", f.Name, param.Name, param.DefaultConst, len(p.Constants))
			}
		}
		if err := verifyFunction(p, f); err != nil {
			return fmt.Errorf("function %q: %w", f.Name, err)
		}
	}
	for t := range p.Tries {
		try := &p.Tries[t]
		for _, h := range try.Handlers {
			if h.Entry < 0 || h.Entry >= len(p.Instructions) {
				return fmt.Errorf("try %d handler entry %d out of range", t, h.Entry)
			}
		}
		if try.FinallyEntry >= len(p.Instructions) {
			return fmt.Errorf("try %d finally entry %d out of range", t, try.FinallyEntry)
		}
	}
	return nil
}

// verifyFunction walks every reachable path from the function's entry,
// tracking the simulated operand depth. Each instruction must be seen
// at one depth only; branches seed the worklist.
func verifyFunction(p *Program, f *FunctionInfo) error {
	if f.Entry == f.End {
		// An empty range is only legal for a main body with no code;
		// it still needs its HALT, so reject it.
		return fmt.Errorf("empty instruction range")
	}

	depths := make(map[int]int)
	type workItem struct {
		ip    int
		depth int
	}
	work := []workItem{{f.Entry, 0}}

	push := func(ip, depth int) error {
		if ip < f.Entry || ip >= f.End {
			return fmt.Errorf("jump target %d outside range [%d, %d)", ip, f.Entry, f.End)
		}
		if seen, ok := depths[ip]; ok {
			if seen != depth {
				return fmt.Errorf("inconsistent stack depth at instruction %d (%d vs %d)", ip, seen, depth)
			}
			return nil
		}
		depths[ip] = depth
		work = append(work, workItem{ip, depth})
		return nil
	}
	depths[f.Entry] = 0

	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]
		ip, depth := item.ip, item.depth

		for {
			in := p.Instructions[ip]
			if !in.Op.IsValid() {
				return fmt.Errorf("invalid opcode 0x%02X at instruction %d", byte(in.Op), ip)
			}
			if err := verifyOperands(p, f, ip, in); err != nil {
				return err
			}

			pop, pushN := stackEffect(p, in)
			if depth < pop {
				return fmt.Errorf("stack underflow at instruction %d (%s needs %d values, depth is %d)", ip, in.Op, pop, depth)
			}
			next := depth - pop + pushN

			switch in.Op {
			case OpJump:
				if err := push(int(in.A), next); err != nil {
					return err
				}
			case OpJumpFalse, OpJumpTrue:
				if err := push(int(in.A), next); err != nil {
					return err
				}
				if err := push(ip+1, next); err != nil {
					return err
				}
			case OpPushTry:
				// Handler and finally entries start at the depth the
				// construct was entered with.
				try := &p.Tries[in.A]
				for _, h := range try.Handlers {
					if err := push(h.Entry, next); err != nil {
						return err
					}
					if h.Slot < 0 || h.Slot >= f.LocalCount {
						return fmt.Errorf("try handler at %d binds to invalid local slot %d", h.Entry, h.Slot)
					}
				}
				if try.FinallyEntry >= 0 {
					if err := push(try.FinallyEntry, next); err != nil {
						return err
					}
				}
				if err := push(ip+1, next); err != nil {
					return err
				}
			case OpReturn, OpThrow, OpHalt, OpEndFinally:
				// Path terminates here (END_FINALLY resumes dynamically).
			default:
				if ip+1 >= f.End {
					return fmt.Errorf("control falls off the end after instruction %d (%s)", ip, in.Op)
				}
				if seen, ok := depths[ip+1]; ok {
					if seen != next {
						return fmt.Errorf("inconsistent stack depth at instruction %d (%d vs %d)", ip+1, seen, next)
					}
				} else {
					depths[ip+1] = next
					ip, depth = ip+1, next
					continue
				}
			}
			break
		}
	}
	return nil
}

// stackEffect returns the pop and push counts of an instruction,
// resolving operand-dependent effects.
func stackEffect(p *Program, in Instruction) (pop, push int) {
	info := GetOpcodeInfo(in.Op)
	pop, push = info.StackPop, info.StackPush
	if pop != VariableEffect {
		return pop, push
	}
	switch in.Op {
	case OpCall:
		return int(in.B), 1
	case OpMakeList:
		return int(in.A), 1
	case OpMakeDict:
		return 2 * int(in.A), 1
	default:
		return 0, push
	}
}

// verifyOperands range-checks an instruction's operands.
func verifyOperands(p *Program, f *FunctionInfo, ip int, in Instruction) error {
	switch in.Op {
	case OpConst:
		if in.A < 0 || int(in.A) >= len(p.Constants) {
			return fmt.Errorf("instruction %d references constant %d of %d", ip, in.A, len(p.Constants))
		}
	case OpLoadLocal, OpStoreLocal:
		if in.A < 0 || int(in.A) >= f.LocalCount {
			return fmt.Errorf("instruction %d references local slot %d of %d", ip, in.A, f.LocalCount)
		}
	case OpLoadGlobal, OpStoreGlobal:
		if in.A < 0 || int(in.A) >= len(p.Constants) {
			return fmt.Errorf("instruction %d references constant %d of %d", ip, in.A, len(p.Constants))
		}
		if p.Constants[in.A].Tag != TagString {
			return fmt.Errorf("instruction %d global name constant %d is not a string", ip, in.A)
		}
	case OpJump, OpJumpFalse, OpJumpTrue:
		if in.A < 0 {
			return fmt.Errorf("instruction %d has unresolved jump target", ip)
		}
	case OpCall:
		if in.A <= 0 || int(in.A) >= len(p.Functions) {
			return fmt.Errorf("instruction %d calls invalid function index %d", ip, in.A)
		}
		if in.B < 0 || in.B >= MaxArgs {
			return fmt.Errorf("instruction %d has invalid argument count %d", ip, in.B)
		}
	case OpMakeList:
		if in.A < 0 {
			return fmt.Errorf("instruction %d builds list with negative length %d", ip, in.A)
		}
	case OpMakeDict:
		if in.A < 0 {
			return fmt.Errorf("instruction %d builds dictionary with negative length %d", ip, in.A)
		}
	case OpPushTry:
		if in.A < 0 || int(in.A) >= len(p.Tries) {
			return fmt.Errorf("instruction %d references try context %d of %d", ip, in.A, len(p.Tries))
		}
	case OpThrow:
		if in.A < -1 || int(in.A) >= len(p.Constants) {
			return fmt.Errorf("instruction %d throw kind constant %d out of range", ip, in.A)
		}
		if in.A >= 0 && p.Constants[in.A].Tag != TagString {
			return fmt.Errorf("instruction %d throw kind constant %d is not a string", ip, in.A)
		}
	}
	return nil
}
