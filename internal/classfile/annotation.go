package classfile

import "fmt"

// maxElementDepth bounds nesting of annotation element values.
const maxElementDepth = 64

// Annotation is a declaration or type annotation instance.
type Annotation struct {
	Descriptor string
	Elements   []Element
}

// Element is a named annotation element.
type Element struct {
	Name  string
	Value ElementValue
}

// ElementValue is one annotation element value. Tag follows the class-file encoding:
// a primitive descriptor character or 's' for constants, 'e' enum, 'c' class,
// '@' nested annotation, '[' array.
type ElementValue struct {
	Tag        byte
	Const      Constant
	EnumType   string
	EnumName   string
	Class      string
	Annotation *Annotation
	Array      []ElementValue
}

// TypeAnnotation is an annotation on a type use. Target and path information is
// consumed but not retained.
type TypeAnnotation struct {
	TargetType uint8
	Annotation
}

func (p *parser) readAnnotations(r *reader) ([]Annotation, error) {
	n := int(r.u2())
	anns := make([]Annotation, 0, n)
	for i := 0; i < n; i++ {
		a, err := p.readAnnotation(r, 0)
		if err != nil {
			return nil, err
		}
		anns = append(anns, a)
	}
	return anns, r.err
}

func (p *parser) readAnnotation(r *reader, depth int) (Annotation, error) {
	typeIdx := r.u2()
	n := int(r.u2())
	if r.err != nil {
		return Annotation{}, r.err
	}
	desc, err := p.cp.utf8(typeIdx)
	if err != nil {
		return Annotation{}, err
	}
	a := Annotation{Descriptor: desc, Elements: make([]Element, 0, n)}
	for i := 0; i < n; i++ {
		nameIdx := r.u2()
		if r.err != nil {
			return Annotation{}, r.err
		}
		name, err := p.cp.utf8(nameIdx)
		if err != nil {
			return Annotation{}, err
		}
		v, err := p.readElementValue(r, depth+1)
		if err != nil {
			return Annotation{}, err
		}
		a.Elements = append(a.Elements, Element{Name: name, Value: v})
	}
	return a, nil
}

func (p *parser) readElementValue(r *reader, depth int) (ElementValue, error) {
	if depth > maxElementDepth {
		return ElementValue{}, fmt.Errorf("element values nested too deeply: %w", ErrBadAttribute)
	}
	v := ElementValue{Tag: r.u1()}
	if r.err != nil {
		return v, r.err
	}
	var err error
	switch v.Tag {
	case 'B', 'C', 'I', 'S', 'Z':
		c, err := p.cp.loadable(r.u2(), 0)
		if err != nil {
			return v, err
		}
		if _, ok := c.(int32); !ok {
			return v, fmt.Errorf("element tag %c: %w", v.Tag, ErrBadConstant)
		}
		v.Const = c
	case 'D', 'F', 'J':
		if v.Const, err = p.cp.loadable(r.u2(), 0); err != nil {
			return v, err
		}
	case 's':
		if v.Const, err = p.cp.utf8(r.u2()); err != nil {
			return v, err
		}
	case 'e':
		if v.EnumType, err = p.cp.utf8(r.u2()); err != nil {
			return v, err
		}
		if v.EnumName, err = p.cp.utf8(r.u2()); err != nil {
			return v, err
		}
	case 'c':
		if v.Class, err = p.cp.utf8(r.u2()); err != nil {
			return v, err
		}
	case '@':
		a, err := p.readAnnotation(r, depth+1)
		if err != nil {
			return v, err
		}
		v.Annotation = &a
	case '[':
		n := int(r.u2())
		for i := 0; i < n; i++ {
			ev, err := p.readElementValue(r, depth+1)
			if err != nil {
				return v, err
			}
			v.Array = append(v.Array, ev)
		}
	default:
		return v, fmt.Errorf("element tag %q: %w", v.Tag, ErrBadAttribute)
	}
	return v, r.err
}

func (p *parser) readTypeAnnotations(r *reader) ([]TypeAnnotation, error) {
	n := int(r.u2())
	anns := make([]TypeAnnotation, 0, n)
	for i := 0; i < n; i++ {
		target := r.u1()
		if err := skipTargetInfo(r, target); err != nil {
			return nil, err
		}
		pathLen := int(r.u1())
		r.skip(pathLen * 2)
		if r.err != nil {
			return nil, r.err
		}
		a, err := p.readAnnotation(r, 0)
		if err != nil {
			return nil, err
		}
		anns = append(anns, TypeAnnotation{TargetType: target, Annotation: a})
	}
	return anns, r.err
}

func skipTargetInfo(r *reader, target uint8) error {
	switch {
	case target == 0x00 || target == 0x01: // type parameter
		r.skip(1)
	case target == 0x10: // supertype
		r.skip(2)
	case target == 0x11 || target == 0x12: // type parameter bound
		r.skip(2)
	case target >= 0x13 && target <= 0x15: // empty
	case target == 0x16: // formal parameter
		r.skip(1)
	case target == 0x17: // throws
		r.skip(2)
	case target == 0x40 || target == 0x41: // local variable
		n := int(r.u2())
		r.skip(n * 6)
	case target == 0x42: // catch
		r.skip(2)
	case target >= 0x43 && target <= 0x46: // offset
		r.skip(2)
	case target >= 0x47 && target <= 0x4b: // type argument
		r.skip(3)
	default:
		return fmt.Errorf("type annotation target 0x%02x: %w", target, ErrBadAttribute)
	}
	return r.err
}
