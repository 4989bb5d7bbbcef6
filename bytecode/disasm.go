package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a deterministic, human-readable listing of the
// program: a constant pool table, the function and try tables, then
// one line per instruction with resolved operands. It never mutates
// the program, so the output doubles as a golden-file check on the
// compiler and serializer.
func Disassemble(p *Program) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "; PohLang Bytecode v%d\n\n", p.Version)

	if len(p.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range p.Constants {
			display := c.String()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			display = strings.ReplaceAll(display, "\n", "\\n")
			display = strings.ReplaceAll(display, "\t", "\\t")
			fmt.Fprintf(&sb, ";   [%3d] %s\n", i, display)
		}
		sb.WriteByte('\n')
	}

	if len(p.Tries) > 0 {
		sb.WriteString("; Try contexts:\n")
		for i, t := range p.Tries {
			fmt.Fprintf(&sb, ";   [%3d]", i)
			for _, h := range t.Handlers {
				filter := h.Filter
				if filter == "" {
					filter = "*"
				}
				fmt.Fprintf(&sb, " %s->%04d", filter, h.Entry)
			}
			if t.FinallyEntry >= 0 {
				fmt.Fprintf(&sb, " finally->%04d", t.FinallyEntry)
			}
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}

	for fi := range p.Functions {
		f := &p.Functions[fi]
		if fi == 0 {
			fmt.Fprintf(&sb, "; === %s ===\n", f.Name)
		} else {
			params := make([]string, len(f.Params))
			for i, param := range f.Params {
				params[i] = param.Name
				if param.DefaultConst >= 0 {
					params[i] += "=" + p.Constants[param.DefaultConst].String()
				}
			}
			fmt.Fprintf(&sb, "; === %s(%s) ===\n", f.Name, strings.Join(params, ", "))
		}
		if f.LocalCount > 0 {
			fmt.Fprintf(&sb, "; Locals: %d slots\n", f.LocalCount)
		}
		for ip := f.Entry; ip < f.End; ip++ {
			fmt.Fprintf(&sb, "%04d  %s\n", ip, disassembleInstruction(p, ip))
		}
		sb.WriteByte('\n')
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// DisassembleToLines returns one formatted line per instruction,
// without the header tables.
func DisassembleToLines(p *Program) []string {
	lines := make([]string, 0, len(p.Instructions))
	for ip := range p.Instructions {
		lines = append(lines, fmt.Sprintf("%04d  %s", ip, disassembleInstruction(p, ip)))
	}
	return lines
}

// disassembleInstruction formats a single instruction, inlining the
// referenced constant or naming the jump/call target.
func disassembleInstruction(p *Program, ip int) string {
	in := p.Instructions[ip]
	info := GetOpcodeInfo(in.Op)

	switch in.Op {
	case OpConst:
		return fmt.Sprintf("%s %d ; %s", info.Name, in.A, constantComment(p, in.A))

	case OpLoadGlobal, OpStoreGlobal:
		return fmt.Sprintf("%s %d ; %s", info.Name, in.A, constantComment(p, in.A))

	case OpJump, OpJumpFalse, OpJumpTrue:
		return fmt.Sprintf("%s %d (-> %04d)", info.Name, in.A, in.A)

	case OpCall:
		name := "?"
		if in.A > 0 && int(in.A) < len(p.Functions) {
			name = p.Functions[in.A].Name
		}
		return fmt.Sprintf("%s %d argc=%d ; %s", info.Name, in.A, in.B, name)

	case OpThrow:
		if in.A < 0 {
			return fmt.Sprintf("%s -1 ; re-raise", info.Name)
		}
		return fmt.Sprintf("%s %d ; %s", info.Name, in.A, constantComment(p, in.A))

	default:
		switch info.OperandCount {
		case 0:
			return info.Name
		case 1:
			return fmt.Sprintf("%s %d", info.Name, in.A)
		default:
			return fmt.Sprintf("%s %d %d", info.Name, in.A, in.B)
		}
	}
}

func constantComment(p *Program, index int32) string {
	if index < 0 || int(index) >= len(p.Constants) {
		return "<bad constant>"
	}
	s := p.Constants[index].String()
	if len(s) > 20 {
		s = s[:17] + "..."
	}
	return s
}
