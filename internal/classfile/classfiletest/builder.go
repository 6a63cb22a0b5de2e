// Package classfiletest assembles class files for tests.
//
//	cb := classfiletest.NewClass("a/Foo", "java/lang/Object")
//	code := cb.Method(0, "run", "()V").Code()
//	code.Field(classfile.GETSTATIC, "a/Bar", "x", "I")
//	code.Insn(classfile.RETURN)
//	data := cb.Bytes()
package classfiletest

import (
	"github.com/dshills/classindex-mcp/internal/classfile"
)

// ClassBuilder builds a single class file.
type ClassBuilder struct {
	pool       *pool
	access     uint16
	name       string
	super      string
	interfaces []string
	signature  string
	anns       []classfile.Annotation
	typeAnns   []classfile.Annotation
	fields     []*FieldBuilder
	methods    []*MethodBuilder
	records    []*RecordBuilder
	major      uint16
}

// NewClass starts a public class. An empty super omits the superclass.
func NewClass(name, super string) *ClassBuilder {
	return &ClassBuilder{pool: newPool(), access: 0x0021, name: name, super: super, major: 61}
}

// Access sets the class access flags.
func (c *ClassBuilder) Access(access uint16) *ClassBuilder { c.access = access; return c }

// Interfaces sets the implemented interfaces.
func (c *ClassBuilder) Interfaces(names ...string) *ClassBuilder { c.interfaces = names; return c }

// Signature sets the generic class signature.
func (c *ClassBuilder) Signature(sig string) *ClassBuilder { c.signature = sig; return c }

// Annotation adds a runtime-visible annotation.
func (c *ClassBuilder) Annotation(a classfile.Annotation) *ClassBuilder {
	c.anns = append(c.anns, a)
	return c
}

// TypeAnnotation adds a runtime-visible type annotation on the superclass.
func (c *ClassBuilder) TypeAnnotation(a classfile.Annotation) *ClassBuilder {
	c.typeAnns = append(c.typeAnns, a)
	return c
}

// Field adds a field.
func (c *ClassBuilder) Field(access uint16, name, desc string) *FieldBuilder {
	f := &FieldBuilder{access: access, name: name, desc: desc}
	c.fields = append(c.fields, f)
	return f
}

// Method adds a method.
func (c *ClassBuilder) Method(access uint16, name, desc string) *MethodBuilder {
	m := &MethodBuilder{pool: c.pool, access: access, name: name, desc: desc}
	c.methods = append(c.methods, m)
	return m
}

// Record adds a record component.
func (c *ClassBuilder) Record(name, desc, sig string) *RecordBuilder {
	r := &RecordBuilder{name: name, desc: desc, signature: sig}
	c.records = append(c.records, r)
	return r
}

// FieldBuilder builds a field.
type FieldBuilder struct {
	access    uint16
	name      string
	desc      string
	signature string
	value     classfile.Constant
	anns      []classfile.Annotation
}

// Signature sets the generic field signature.
func (f *FieldBuilder) Signature(sig string) *FieldBuilder { f.signature = sig; return f }

// ConstantValue sets the ConstantValue attribute.
func (f *FieldBuilder) ConstantValue(v classfile.Constant) *FieldBuilder { f.value = v; return f }

// Annotation adds a runtime-visible annotation.
func (f *FieldBuilder) Annotation(a classfile.Annotation) *FieldBuilder {
	f.anns = append(f.anns, a)
	return f
}

// RecordBuilder builds a record component.
type RecordBuilder struct {
	name      string
	desc      string
	signature string
	anns      []classfile.Annotation
}

// Annotation adds a runtime-visible annotation.
func (r *RecordBuilder) Annotation(a classfile.Annotation) *RecordBuilder {
	r.anns = append(r.anns, a)
	return r
}

// MethodBuilder builds a method.
type MethodBuilder struct {
	pool       *pool
	access     uint16
	name       string
	desc       string
	signature  string
	exceptions []string
	anns       []classfile.Annotation
	paramAnns  [][]classfile.Annotation
	annDefault *classfile.ElementValue
	code       *CodeBuilder
}

// Signature sets the generic method signature.
func (m *MethodBuilder) Signature(sig string) *MethodBuilder { m.signature = sig; return m }

// Exceptions sets the declared thrown types.
func (m *MethodBuilder) Exceptions(names ...string) *MethodBuilder { m.exceptions = names; return m }

// Annotation adds a runtime-visible annotation.
func (m *MethodBuilder) Annotation(a classfile.Annotation) *MethodBuilder {
	m.anns = append(m.anns, a)
	return m
}

// ParameterAnnotation adds a runtime-visible annotation on parameter i.
func (m *MethodBuilder) ParameterAnnotation(i int, a classfile.Annotation) *MethodBuilder {
	for len(m.paramAnns) <= i {
		m.paramAnns = append(m.paramAnns, nil)
	}
	m.paramAnns[i] = append(m.paramAnns[i], a)
	return m
}

// AnnotationDefault sets the default value of an annotation interface element.
func (m *MethodBuilder) AnnotationDefault(v classfile.ElementValue) *MethodBuilder {
	m.annDefault = &v
	return m
}

// Code returns the method's code builder, creating it on first use.
func (m *MethodBuilder) Code() *CodeBuilder {
	if m.code == nil {
		m.code = &CodeBuilder{pool: m.pool}
	}
	return m.code
}

// Bytes serialises the class.
func (c *ClassBuilder) Bytes() []byte {
	p := c.pool
	thisIdx := p.class(c.name)
	var superIdx uint16
	if c.super != "" {
		superIdx = p.class(c.super)
	}

	body := u2(nil, c.access)
	body = u2(body, thisIdx)
	body = u2(body, superIdx)
	body = u2(body, uint16(len(c.interfaces)))
	for _, itf := range c.interfaces {
		body = u2(body, p.class(itf))
	}

	body = u2(body, uint16(len(c.fields)))
	for _, f := range c.fields {
		body = u2(body, f.access)
		body = u2(body, p.utf8(f.name))
		body = u2(body, p.utf8(f.desc))
		var attrs [][]byte
		if f.value != nil {
			attrs = append(attrs, p.attribute("ConstantValue", u2(nil, p.constant(f.value))))
		}
		attrs = p.commonAttributes(attrs, f.signature, f.anns)
		body = appendAttributes(body, attrs)
	}

	body = u2(body, uint16(len(c.methods)))
	for _, m := range c.methods {
		body = append(body, m.bytes()...)
	}

	var attrs [][]byte
	attrs = p.commonAttributes(attrs, c.signature, c.anns)
	if len(c.typeAnns) > 0 {
		b := u2(nil, uint16(len(c.typeAnns)))
		for _, a := range c.typeAnns {
			b = append(b, 0x10, 0xff, 0xff, 0) // supertype target: superclass, empty path
			b = p.annotation(b, a)
		}
		attrs = append(attrs, p.attribute("RuntimeVisibleTypeAnnotations", b))
	}
	if len(c.records) > 0 {
		b := u2(nil, uint16(len(c.records)))
		for _, r := range c.records {
			b = u2(b, p.utf8(r.name))
			b = u2(b, p.utf8(r.desc))
			b = appendAttributes(b, p.commonAttributes(nil, r.signature, r.anns))
		}
		attrs = append(attrs, p.attribute("Record", b))
	}
	if len(p.bootstrap) > 0 {
		b := u2(nil, uint16(len(p.bootstrap)))
		for _, bsm := range p.bootstrap {
			b = u2(b, bsm[0])
			b = u2(b, uint16(len(bsm)-1))
			for _, a := range bsm[1:] {
				b = u2(b, a)
			}
		}
		attrs = append(attrs, p.attribute("BootstrapMethods", b))
	}
	body = appendAttributes(body, attrs)

	out := u4(nil, 0xCAFEBABE)
	out = u2(out, 0)
	out = u2(out, c.major)
	out = u2(out, p.next)
	out = append(out, p.buf...)
	return append(out, body...)
}

func (m *MethodBuilder) bytes() []byte {
	p := m.pool
	b := u2(nil, m.access)
	b = u2(b, p.utf8(m.name))
	b = u2(b, p.utf8(m.desc))
	var attrs [][]byte
	if m.code != nil {
		attrs = append(attrs, p.attribute("Code", m.code.bytes()))
	}
	if len(m.exceptions) > 0 {
		e := u2(nil, uint16(len(m.exceptions)))
		for _, ex := range m.exceptions {
			e = u2(e, p.class(ex))
		}
		attrs = append(attrs, p.attribute("Exceptions", e))
	}
	attrs = p.commonAttributes(attrs, m.signature, m.anns)
	if len(m.paramAnns) > 0 {
		e := []byte{byte(len(m.paramAnns))}
		for _, anns := range m.paramAnns {
			e = u2(e, uint16(len(anns)))
			for _, a := range anns {
				e = p.annotation(e, a)
			}
		}
		attrs = append(attrs, p.attribute("RuntimeVisibleParameterAnnotations", e))
	}
	if m.annDefault != nil {
		attrs = append(attrs, p.attribute("AnnotationDefault", p.elementValue(nil, *m.annDefault)))
	}
	return appendAttributes(b, attrs)
}

func (p *pool) attribute(name string, body []byte) []byte {
	b := u2(nil, p.utf8(name))
	b = u4(b, uint32(len(body)))
	return append(b, body...)
}

func (p *pool) commonAttributes(attrs [][]byte, signature string, anns []classfile.Annotation) [][]byte {
	if signature != "" {
		attrs = append(attrs, p.attribute("Signature", u2(nil, p.utf8(signature))))
	}
	if len(anns) > 0 {
		b := u2(nil, uint16(len(anns)))
		for _, a := range anns {
			b = p.annotation(b, a)
		}
		attrs = append(attrs, p.attribute("RuntimeVisibleAnnotations", b))
	}
	return attrs
}

func appendAttributes(b []byte, attrs [][]byte) []byte {
	b = u2(b, uint16(len(attrs)))
	for _, a := range attrs {
		b = append(b, a...)
	}
	return b
}

func (p *pool) annotation(b []byte, a classfile.Annotation) []byte {
	b = u2(b, p.utf8(a.Descriptor))
	b = u2(b, uint16(len(a.Elements)))
	for _, e := range a.Elements {
		b = u2(b, p.utf8(e.Name))
		b = p.elementValue(b, e.Value)
	}
	return b
}

func (p *pool) elementValue(b []byte, v classfile.ElementValue) []byte {
	b = append(b, v.Tag)
	switch v.Tag {
	case 's':
		return u2(b, p.utf8(v.Const.(string)))
	case 'e':
		b = u2(b, p.utf8(v.EnumType))
		return u2(b, p.utf8(v.EnumName))
	case 'c':
		return u2(b, p.utf8(v.Class))
	case '@':
		return p.annotation(b, *v.Annotation)
	case '[':
		b = u2(b, uint16(len(v.Array)))
		for _, e := range v.Array {
			b = p.elementValue(b, e)
		}
		return b
	default:
		return u2(b, p.constant(v.Const))
	}
}
