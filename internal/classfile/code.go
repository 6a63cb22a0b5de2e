package classfile

import (
	"encoding/binary"
	"fmt"
)

// Code is a decoded Code attribute.
type Code struct {
	MaxStack        uint16
	MaxLocals       uint16
	Instructions    []Instruction
	Handlers        []ExceptionHandler
	LocalVariables  []LocalVariable
	TypeAnnotations []TypeAnnotation
}

// ExceptionHandler is one exception table entry. CatchType is empty for finally blocks.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType string
}

// LocalVariable merges LocalVariableTable and LocalVariableTypeTable entries.
type LocalVariable struct {
	StartPC    uint16
	Length     uint16
	Index      uint16
	Name       string
	Descriptor string
	Signature  string
}

// InsnKind classifies an instruction by the operand it carries.
type InsnKind uint8

const (
	KindPlain InsnKind = iota
	KindVar
	KindIinc
	KindType
	KindField
	KindMethod
	KindInvokeDynamic
	KindLdc
	KindMultiANewArray
	KindJump
	KindSwitch
	KindInt
)

// Instruction is one decoded bytecode instruction. Only the fields relevant to its kind
// are set.
type Instruction struct {
	Offset  int
	Opcode  Opcode
	Var     int
	Operand int
	// TypeName is the internal name or array descriptor of a type instruction, or the
	// array descriptor of multianewarray.
	TypeName string
	Member   MemberRef
	Dynamic  *ConstantDynamic
	Constant Constant
	Dims     int
}

// Kind classifies the instruction.
func (in *Instruction) Kind() InsnKind {
	op := in.Opcode
	switch {
	case op.IsLoad() || op.IsStore() || op == RET:
		return KindVar
	case op == IINC:
		return KindIinc
	case op == NEW || op == ANEWARRAY || op == CHECKCAST || op == INSTANCEOF:
		return KindType
	case op >= GETSTATIC && op <= PUTFIELD:
		return KindField
	case op >= INVOKEVIRTUAL && op <= INVOKEINTERFACE:
		return KindMethod
	case op == INVOKEDYNAMIC:
		return KindInvokeDynamic
	case op == LDC || op == LDC_W || op == LDC2_W:
		return KindLdc
	case op == MULTIANEWARRAY:
		return KindMultiANewArray
	case (op >= 0x99 && op <= 0xa8) || op == 0xc6 || op == 0xc7 || op == GOTO_W || op == JSR_W:
		return KindJump
	case op == TABLESWITCH || op == LOOKUPSWITCH:
		return KindSwitch
	case op == 0x10 || op == 0x11 || op == NEWARRAY:
		return KindInt
	default:
		return KindPlain
	}
}

func (p *parser) readCode(body []byte) (*Code, error) {
	r := newReader(body)
	code := &Code{MaxStack: r.u2(), MaxLocals: r.u2()}
	length := int(r.u4())
	bytecode := r.bytes(length)
	if r.err != nil {
		return nil, r.err
	}
	insns, err := p.decodeInstructions(bytecode)
	if err != nil {
		return nil, err
	}
	code.Instructions = insns

	n := int(r.u2())
	for i := 0; i < n; i++ {
		h := ExceptionHandler{StartPC: r.u2(), EndPC: r.u2(), HandlerPC: r.u2()}
		catchIdx := r.u2()
		if r.err != nil {
			return nil, r.err
		}
		if h.CatchType, err = p.cp.optClassName(catchIdx); err != nil {
			return nil, fmt.Errorf("exception table: %w", err)
		}
		code.Handlers = append(code.Handlers, h)
	}

	attrs, err := p.readAttributes(r)
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		switch a.name {
		case "LocalVariableTable":
			if err := p.readLocalVariables(code, a.body, false); err != nil {
				return nil, fmt.Errorf("%s: %w", a.name, err)
			}
		case "LocalVariableTypeTable":
			if err := p.readLocalVariables(code, a.body, true); err != nil {
				return nil, fmt.Errorf("%s: %w", a.name, err)
			}
		case "RuntimeVisibleTypeAnnotations", "RuntimeInvisibleTypeAnnotations":
			anns, err := p.readTypeAnnotations(a.body)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", a.name, err)
			}
			code.TypeAnnotations = append(code.TypeAnnotations, anns...)
		}
	}
	return code, nil
}

func (p *parser) readLocalVariables(code *Code, r *reader, typeTable bool) error {
	n := int(r.u2())
	for i := 0; i < n; i++ {
		lv := LocalVariable{StartPC: r.u2(), Length: r.u2()}
		nameIdx, descIdx := r.u2(), r.u2()
		lv.Index = r.u2()
		if r.err != nil {
			return r.err
		}
		var err error
		if lv.Name, err = p.cp.utf8(nameIdx); err != nil {
			return err
		}
		desc, err := p.cp.utf8(descIdx)
		if err != nil {
			return err
		}
		if typeTable {
			lv.Signature = desc
		} else {
			lv.Descriptor = desc
		}
		code.mergeLocal(lv)
	}
	return nil
}

func (c *Code) mergeLocal(lv LocalVariable) {
	for i := range c.LocalVariables {
		e := &c.LocalVariables[i]
		if e.StartPC == lv.StartPC && e.Index == lv.Index && e.Name == lv.Name {
			if lv.Descriptor != "" {
				e.Descriptor = lv.Descriptor
			}
			if lv.Signature != "" {
				e.Signature = lv.Signature
			}
			return
		}
	}
	c.LocalVariables = append(c.LocalVariables, lv)
}

func (p *parser) decodeInstructions(code []byte) ([]Instruction, error) {
	insns := make([]Instruction, 0, len(code)/2)
	for pc := 0; pc < len(code); {
		in, next, err := p.decodeInstruction(code, pc)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", pc, err)
		}
		insns = append(insns, in)
		pc = next
	}
	return insns, nil
}

func (p *parser) decodeInstruction(code []byte, pc int) (Instruction, int, error) {
	op := Opcode(code[pc])
	in := Instruction{Offset: pc, Opcode: op}
	u1 := func(at int) int { return int(code[at]) }
	u2 := func(at int) uint16 { return binary.BigEndian.Uint16(code[at:]) }
	s4 := func(at int) int { return int(int32(binary.BigEndian.Uint32(code[at:]))) }
	fits := func(n int) bool { return pc+1+n <= len(code) }

	switch {
	case op >= iload0 && op <= 0x2d:
		in.Opcode = ILOAD + (op-iload0)/4
		in.Var = int(op-iload0) % 4
		return in, pc + 1, nil
	case op >= istore0 && op <= astore3:
		in.Opcode = ISTORE + (op-istore0)/4
		in.Var = int(op-istore0) % 4
		return in, pc + 1, nil
	case op == WIDE:
		if !fits(3) {
			return in, 0, ErrTruncated
		}
		in.Opcode = Opcode(code[pc+1])
		in.Var = int(u2(pc + 2))
		if in.Opcode == IINC {
			if !fits(5) {
				return in, 0, ErrTruncated
			}
			in.Operand = int(int16(u2(pc + 4)))
			return in, pc + 6, nil
		}
		if !in.Opcode.IsLoad() && !in.Opcode.IsStore() && in.Opcode != RET {
			return in, 0, fmt.Errorf("wide 0x%02x: %w", uint8(in.Opcode), ErrBadOpcode)
		}
		return in, pc + 4, nil
	case op == TABLESWITCH:
		base := pc + 1 + (3-pc%4)%4
		if base+12 > len(code) {
			return in, 0, ErrTruncated
		}
		low, high := s4(base+4), s4(base+8)
		if high < low {
			return in, 0, fmt.Errorf("tableswitch bounds: %w", ErrBadOpcode)
		}
		end := base + 12 + (high-low+1)*4
		if end > len(code) || end < base {
			return in, 0, ErrTruncated
		}
		return in, end, nil
	case op == LOOKUPSWITCH:
		base := pc + 1 + (3-pc%4)%4
		if base+8 > len(code) {
			return in, 0, ErrTruncated
		}
		npairs := s4(base + 4)
		if npairs < 0 {
			return in, 0, fmt.Errorf("lookupswitch pairs: %w", ErrBadOpcode)
		}
		end := base + 8 + npairs*8
		if end > len(code) || end < base {
			return in, 0, ErrTruncated
		}
		return in, end, nil
	}

	size := int(operandSize[op])
	if size < 0 {
		return in, 0, fmt.Errorf("0x%02x: %w", uint8(op), ErrBadOpcode)
	}
	if !fits(size) {
		return in, 0, ErrTruncated
	}
	next := pc + 1 + size

	var err error
	switch in.Kind() {
	case KindVar:
		in.Var = u1(pc + 1)
	case KindIinc:
		in.Var = u1(pc + 1)
		in.Operand = int(int8(code[pc+2]))
	case KindInt:
		if op == 0x11 {
			in.Operand = int(int16(u2(pc + 1)))
		} else if op == 0x10 {
			in.Operand = int(int8(code[pc+1]))
		} else {
			in.Operand = u1(pc + 1)
		}
	case KindType:
		in.TypeName, err = p.cp.className(u2(pc + 1))
	case KindField, KindMethod:
		in.Member, err = p.cp.member(u2(pc + 1))
	case KindInvokeDynamic:
		var d ConstantDynamic
		d, err = p.cp.dynamic(u2(pc+1), tagInvokeDynamic, 0)
		in.Dynamic = &d
	case KindLdc:
		idx := uint16(u1(pc + 1))
		if op != LDC {
			idx = u2(pc + 1)
		}
		in.Constant, err = p.cp.loadable(idx, 0)
	case KindMultiANewArray:
		in.TypeName, err = p.cp.className(u2(pc + 1))
		in.Dims = u1(pc + 3)
	}
	if err != nil {
		return in, 0, err
	}
	return in, next, nil
}
