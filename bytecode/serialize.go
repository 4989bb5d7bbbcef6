package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Serialize encodes the program into the portable binary form:
//
//	magic "POHC" | version u16
//	constant count u32 | tagged constants
//	function count u16 | function records
//	try count u16     | try records
//	instruction count u32 | instructions (opcode u8 + operands i32)
//
// All integers are big-endian. Strings are length-prefixed UTF-8.
func Serialize(p *Program) ([]byte, error) {
	if len(p.Constants) > MaxConstants {
		return nil, fmt.Errorf("constant pool too large to serialize (%d entries)", len(p.Constants))
	}
	if len(p.Functions) > MaxFunctions || len(p.Tries) > MaxTries {
		return nil, fmt.Errorf("program tables too large to serialize")
	}

	var buf bytes.Buffer
	buf.Write(Magic[:])
	writeU16(&buf, p.Version)

	writeU32(&buf, uint32(len(p.Constants)))
	for _, c := range p.Constants {
		buf.WriteByte(byte(c.Tag))
		switch c.Tag {
		case TagNumber:
			writeU64(&buf, math.Float64bits(c.Num))
		case TagString:
			writeString(&buf, c.Str)
		case TagBoolean:
			if c.Bool {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case TagNil:
			// tag only
		default:
			return nil, fmt.Errorf("constant has unknown tag %d", c.Tag)
		}
	}

	writeU16(&buf, uint16(len(p.Functions)))
	for _, f := range p.Functions {
		writeString(&buf, f.Name)
		writeU32(&buf, uint32(f.Entry))
		writeU32(&buf, uint32(f.End))
		writeU16(&buf, uint16(f.LocalCount))
		writeU16(&buf, uint16(len(f.Params)))
		for _, param := range f.Params {
			writeString(&buf, param.Name)
			writeI32(&buf, param.DefaultConst)
		}
	}

	writeU16(&buf, uint16(len(p.Tries)))
	for _, t := range p.Tries {
		writeU16(&buf, uint16(len(t.Handlers)))
		for _, h := range t.Handlers {
			writeString(&buf, h.Filter)
			writeU32(&buf, uint32(h.Entry))
			writeU16(&buf, uint16(h.Slot))
		}
		writeI32(&buf, int32(t.FinallyEntry))
	}

	writeU32(&buf, uint32(len(p.Instructions)))
	for _, in := range p.Instructions {
		buf.WriteByte(byte(in.Op))
		switch in.Op.OperandCount() {
		case 1:
			writeI32(&buf, in.A)
		case 2:
			writeI32(&buf, in.A)
			writeI32(&buf, in.B)
		}
	}

	return buf.Bytes(), nil
}

// Deserialize decodes and fully validates a serialized program. Any
// version mismatch, truncation, unknown tag or out-of-range index is a
// *LoadError; a partially decoded program is never returned. The
// static verifier runs before the program is handed back, so the
// round-trip law holds: a deserialized program behaves exactly like
// the freshly compiled one it came from.
func Deserialize(data []byte) (*Program, error) {
	r := &reader{data: data}

	var magic [4]byte
	if err := r.bytes(magic[:], "magic"); err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, loadErrorf("bad magic %q, not a compiled program", magic[:])
	}
	version, err := r.u16("version")
	if err != nil {
		return nil, err
	}
	if version != BytecodeVersion {
		return nil, loadErrorf("bytecode version %d is not supported (expected %d)", version, BytecodeVersion)
	}

	p := &Program{Version: version}

	constCount, err := r.u32("constant count")
	if err != nil {
		return nil, err
	}
	if constCount > MaxConstants {
		return nil, loadErrorf("constant count %d exceeds limit %d", constCount, MaxConstants)
	}
	p.Constants = make([]Constant, 0, constCount)
	for i := uint32(0); i < constCount; i++ {
		tag, err := r.u8(fmt.Sprintf("constant %d tag", i))
		if err != nil {
			return nil, err
		}
		switch ConstantTag(tag) {
		case TagNumber:
			bits, err := r.u64(fmt.Sprintf("constant %d number", i))
			if err != nil {
				return nil, err
			}
			p.Constants = append(p.Constants, NumberConstant(math.Float64frombits(bits)))
		case TagString:
			s, err := r.str(fmt.Sprintf("constant %d string", i))
			if err != nil {
				return nil, err
			}
			p.Constants = append(p.Constants, StringConstant(s))
		case TagBoolean:
			b, err := r.u8(fmt.Sprintf("constant %d boolean", i))
			if err != nil {
				return nil, err
			}
			p.Constants = append(p.Constants, BooleanConstant(b != 0))
		case TagNil:
			p.Constants = append(p.Constants, NilConstant())
		default:
			return nil, loadErrorf("constant %d has unknown tag %d", i, tag)
		}
	}

	funcCount, err := r.u16("function count")
	if err != nil {
		return nil, err
	}
	if funcCount == 0 {
		return nil, loadErrorf("program has no function table")
	}
	p.Functions = make([]FunctionInfo, 0, funcCount)
	for i := uint16(0); i < funcCount; i++ {
		name, err := r.str(fmt.Sprintf("function %d name", i))
		if err != nil {
			return nil, err
		}
		entry, err := r.u32(fmt.Sprintf("function %d entry", i))
		if err != nil {
			return nil, err
		}
		end, err := r.u32(fmt.Sprintf("function %d end", i))
		if err != nil {
			return nil, err
		}
		localCount, err := r.u16(fmt.Sprintf("function %d local count", i))
		if err != nil {
			return nil, err
		}
		paramCount, err := r.u16(fmt.Sprintf("function %d parameter count", i))
		if err != nil {
			return nil, err
		}
		if paramCount > MaxArgs {
			return nil, loadErrorf("function %d declares %d parameters, limit is %d", i, paramCount, MaxArgs)
		}
		params := make([]Param, 0, paramCount)
		for j := uint16(0); j < paramCount; j++ {
			pname, err := r.str(fmt.Sprintf("function %d parameter %d name", i, j))
			if err != nil {
				return nil, err
			}
			def, err := r.i32(fmt.Sprintf("function %d parameter %d default", i, j))
			if err != nil {
				return nil, err
			}
			params = append(params, Param{Name: pname, DefaultConst: def})
		}
		p.Functions = append(p.Functions, FunctionInfo{
			Name:       name,
			Entry:      int(entry),
			End:        int(end),
			LocalCount: int(localCount),
			Params:     params,
		})
	}

	tryCount, err := r.u16("try count")
	if err != nil {
		return nil, err
	}
	p.Tries = make([]TryInfo, 0, tryCount)
	for i := uint16(0); i < tryCount; i++ {
		handlerCount, err := r.u16(fmt.Sprintf("try %d handler count", i))
		if err != nil {
			return nil, err
		}
		handlers := make([]Handler, 0, handlerCount)
		for j := uint16(0); j < handlerCount; j++ {
			filter, err := r.str(fmt.Sprintf("try %d handler %d filter", i, j))
			if err != nil {
				return nil, err
			}
			entry, err := r.u32(fmt.Sprintf("try %d handler %d entry", i, j))
			if err != nil {
				return nil, err
			}
			slot, err := r.u16(fmt.Sprintf("try %d handler %d slot", i, j))
			if err != nil {
				return nil, err
			}
			handlers = append(handlers, Handler{Filter: filter, Entry: int(entry), Slot: int(slot)})
		}
		finally, err := r.i32(fmt.Sprintf("try %d finally entry", i))
		if err != nil {
			return nil, err
		}
		p.Tries = append(p.Tries, TryInfo{Handlers: handlers, FinallyEntry: int(finally)})
	}

	instrCount, err := r.u32("instruction count")
	if err != nil {
		return nil, err
	}
	p.Instructions = make([]Instruction, 0, instrCount)
	for i := uint32(0); i < instrCount; i++ {
		op, err := r.u8(fmt.Sprintf("instruction %d opcode", i))
		if err != nil {
			return nil, err
		}
		in := Instruction{Op: Opcode(op)}
		if !in.Op.IsValid() {
			return nil, loadErrorf("instruction %d has unknown opcode 0x%02X", i, op)
		}
		switch in.Op.OperandCount() {
		case 1:
			if in.A, err = r.i32(fmt.Sprintf("instruction %d operand", i)); err != nil {
				return nil, err
			}
		case 2:
			if in.A, err = r.i32(fmt.Sprintf("instruction %d operand 1", i)); err != nil {
				return nil, err
			}
			if in.B, err = r.i32(fmt.Sprintf("instruction %d operand 2", i)); err != nil {
				return nil, err
			}
		}
		p.Instructions = append(p.Instructions, in)
	}

	if r.pos != len(r.data) {
		return nil, loadErrorf("%d trailing bytes after program", len(r.data)-r.pos)
	}
	if err := Verify(p); err != nil {
		return nil, &LoadError{Message: err.Error()}
	}
	return p, nil
}

// ============================================================================
// Encoding helpers
// ============================================================================

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeI32(buf *bytes.Buffer, v int32) {
	writeU32(buf, uint32(v))
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

// reader tracks a decode position and produces LoadErrors naming the
// field that ran off the end of the stream.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) need(n int, what string) error {
	if r.pos+n > len(r.data) {
		return loadErrorf("unexpected end of bytecode reading %s", what)
	}
	return nil
}

func (r *reader) bytes(dst []byte, what string) error {
	if err := r.need(len(dst), what); err != nil {
		return err
	}
	copy(dst, r.data[r.pos:])
	r.pos += len(dst)
	return nil
}

func (r *reader) u8(what string) (byte, error) {
	if err := r.need(1, what); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16(what string) (uint16, error) {
	if err := r.need(2, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32(what string) (uint32, error) {
	if err := r.need(4, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64(what string) (uint64, error) {
	if err := r.need(8, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) i32(what string) (int32, error) {
	v, err := r.u32(what)
	return int32(v), err
}

func (r *reader) str(what string) (string, error) {
	n, err := r.u32(what + " length")
	if err != nil {
		return "", err
	}
	if err := r.need(int(n), what); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}
