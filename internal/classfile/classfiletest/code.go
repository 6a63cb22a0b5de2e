package classfiletest

import (
	"github.com/dshills/classindex-mcp/internal/classfile"
)

// CodeBuilder appends bytecode to a method body.
type CodeBuilder struct {
	pool     *pool
	code     []byte
	catches  []string
	locals   []local
	typeAnns []classfile.Annotation
}

type local struct {
	name, desc, sig string
	index           uint16
}

// Raw appends raw bytecode.
func (c *CodeBuilder) Raw(b ...byte) *CodeBuilder {
	c.code = append(c.code, b...)
	return c
}

// Insn appends an instruction without operands.
func (c *CodeBuilder) Insn(op classfile.Opcode) *CodeBuilder {
	return c.Raw(byte(op))
}

// Var appends a load, store or ret of local n, using the wide form when needed.
func (c *CodeBuilder) Var(op classfile.Opcode, n int) *CodeBuilder {
	if n > 0xff {
		c.code = append(c.code, byte(classfile.WIDE), byte(op))
		c.code = u2(c.code, uint16(n))
		return c
	}
	return c.Raw(byte(op), byte(n))
}

// Int appends bipush, sipush or newarray.
func (c *CodeBuilder) Int(op classfile.Opcode, v int) *CodeBuilder {
	if op == 0x11 {
		c.code = append(c.code, byte(op))
		c.code = u2(c.code, uint16(int16(v)))
		return c
	}
	return c.Raw(byte(op), byte(v))
}

// Iinc appends an iinc of local n.
func (c *CodeBuilder) Iinc(n, inc int) *CodeBuilder {
	return c.Raw(byte(classfile.IINC), byte(n), byte(int8(inc)))
}

// Jump appends a branch with a relative 16-bit offset.
func (c *CodeBuilder) Jump(op classfile.Opcode, offset int16) *CodeBuilder {
	c.code = append(c.code, byte(op))
	c.code = u2(c.code, uint16(offset))
	return c
}

// Type appends new, anewarray, checkcast or instanceof.
func (c *CodeBuilder) Type(op classfile.Opcode, name string) *CodeBuilder {
	c.code = append(c.code, byte(op))
	c.code = u2(c.code, c.pool.class(name))
	return c
}

// Field appends a field instruction.
func (c *CodeBuilder) Field(op classfile.Opcode, owner, name, desc string) *CodeBuilder {
	c.code = append(c.code, byte(op))
	c.code = u2(c.code, c.pool.field(owner, name, desc))
	return c
}

// Method appends an invoke instruction other than invokedynamic.
func (c *CodeBuilder) Method(op classfile.Opcode, owner, name, desc string, itf bool) *CodeBuilder {
	c.code = append(c.code, byte(op))
	c.code = u2(c.code, c.pool.method(owner, name, desc, itf || op == classfile.INVOKEINTERFACE))
	if op == classfile.INVOKEINTERFACE {
		c.code = append(c.code, 1, 0)
	}
	return c
}

// InvokeDynamic appends an invokedynamic call site.
func (c *CodeBuilder) InvokeDynamic(name, desc string, bsm classfile.Handle, args ...classfile.Constant) *CodeBuilder {
	idx := c.pool.dynamic(18, classfile.ConstantDynamic{Name: name, Desc: desc, Bootstrap: bsm, Args: args})
	c.code = append(c.code, byte(classfile.INVOKEDYNAMIC))
	c.code = u2(c.code, idx)
	c.code = append(c.code, 0, 0)
	return c
}

// Ldc appends ldc, ldc_w or ldc2_w as required by the constant.
func (c *CodeBuilder) Ldc(v classfile.Constant) *CodeBuilder {
	idx := c.pool.constant(v)
	switch v.(type) {
	case int64, float64:
		c.code = append(c.code, byte(classfile.LDC2_W))
		c.code = u2(c.code, idx)
	default:
		if idx > 0xff {
			c.code = append(c.code, byte(classfile.LDC_W))
			c.code = u2(c.code, idx)
		} else {
			c.code = append(c.code, byte(classfile.LDC), byte(idx))
		}
	}
	return c
}

// MultiANewArray appends multianewarray.
func (c *CodeBuilder) MultiANewArray(desc string, dims int) *CodeBuilder {
	c.code = append(c.code, byte(classfile.MULTIANEWARRAY))
	c.code = u2(c.code, c.pool.class(desc))
	c.code = append(c.code, byte(dims))
	return c
}

// TryCatch adds an exception handler covering the whole body. An empty type is a finally block.
func (c *CodeBuilder) TryCatch(catchType string) *CodeBuilder {
	c.catches = append(c.catches, catchType)
	return c
}

// LocalVariable adds a local variable table entry, plus a type table entry when sig is set.
func (c *CodeBuilder) LocalVariable(name, desc, sig string, index int) *CodeBuilder {
	c.locals = append(c.locals, local{name: name, desc: desc, sig: sig, index: uint16(index)})
	return c
}

// TypeAnnotation adds an instruction type annotation at offset 0.
func (c *CodeBuilder) TypeAnnotation(a classfile.Annotation) *CodeBuilder {
	c.typeAnns = append(c.typeAnns, a)
	return c
}

func (c *CodeBuilder) bytes() []byte {
	p := c.pool
	b := u2(nil, 32)
	b = u2(b, 0xff)
	b = u4(b, uint32(len(c.code)))
	b = append(b, c.code...)

	b = u2(b, uint16(len(c.catches)))
	for _, ct := range c.catches {
		var idx uint16
		if ct != "" {
			idx = p.class(ct)
		}
		b = u2(b, 0)
		b = u2(b, uint16(len(c.code)))
		b = u2(b, 0)
		b = u2(b, idx)
	}

	var attrs [][]byte
	if len(c.locals) > 0 {
		lvt := u2(nil, uint16(len(c.locals)))
		var lvtt []byte
		var typed uint16
		for _, l := range c.locals {
			lvt = u2(u2(lvt, 0), uint16(len(c.code)))
			lvt = u2(u2(lvt, p.utf8(l.name)), p.utf8(l.desc))
			lvt = u2(lvt, l.index)
			if l.sig != "" {
				typed++
				lvtt = u2(u2(lvtt, 0), uint16(len(c.code)))
				lvtt = u2(u2(lvtt, p.utf8(l.name)), p.utf8(l.sig))
				lvtt = u2(lvtt, l.index)
			}
		}
		attrs = append(attrs, p.attribute("LocalVariableTable", lvt))
		if typed > 0 {
			attrs = append(attrs, p.attribute("LocalVariableTypeTable", append(u2(nil, typed), lvtt...)))
		}
	}
	if len(c.typeAnns) > 0 {
		ta := u2(nil, uint16(len(c.typeAnns)))
		for _, a := range c.typeAnns {
			ta = append(ta, 0x43, 0, 0, 0) // instanceof/new offset 0, empty path
			ta = p.annotation(ta, a)
		}
		attrs = append(attrs, p.attribute("RuntimeVisibleTypeAnnotations", ta))
	}
	return appendAttributes(b, attrs)
}
