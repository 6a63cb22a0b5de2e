package classfile

import (
	"fmt"
)

const magic = 0xCAFEBABE

// ClassFile is the parsed form of a .class file, restricted to what reference
// indexing needs. Names are in internal form ("java/lang/String").
type ClassFile struct {
	MinorVersion     uint16
	MajorVersion     uint16
	Access           uint16
	Name             string
	SuperName        string
	Interfaces       []string
	Signature        string
	Annotations      []Annotation
	TypeAnnotations  []TypeAnnotation
	Fields           []Field
	Methods          []Method
	RecordComponents []RecordComponent
}

// Field is a declared field.
type Field struct {
	Access          uint16
	Name            string
	Descriptor      string
	Signature       string
	Value           Constant
	Annotations     []Annotation
	TypeAnnotations []TypeAnnotation
}

// Method is a declared method. Code is nil for abstract and native methods.
type Method struct {
	Access               uint16
	Name                 string
	Descriptor           string
	Signature            string
	Exceptions           []string
	Annotations          []Annotation
	TypeAnnotations      []TypeAnnotation
	ParameterAnnotations [][]Annotation
	AnnotationDefault    *ElementValue
	Code                 *Code
}

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool { return m.Access&AccStatic != 0 }

// IsSynthetic reports whether the method was generated by the compiler.
func (m *Method) IsSynthetic() bool { return m.Access&AccSynthetic != 0 }

// RecordComponent is a component of a record class.
type RecordComponent struct {
	Name            string
	Descriptor      string
	Signature       string
	Annotations     []Annotation
	TypeAnnotations []TypeAnnotation
}

// Parse decodes a complete class file.
func Parse(data []byte) (*ClassFile, error) {
	p := &parser{r: newReader(data)}
	cf, err := p.parse()
	if err != nil {
		return nil, err
	}
	return cf, nil
}

type parser struct {
	r  *reader
	cp *constantPool

	// Code bodies are decoded once the BootstrapMethods attribute is known.
	pendingCode []pendingCode
}

type pendingCode struct {
	method *Method
	body   []byte
}

type attribute struct {
	name string
	body *reader
}

func (p *parser) parse() (*ClassFile, error) {
	r := p.r
	if r.u4() != magic {
		if r.err != nil {
			return nil, r.err
		}
		return nil, ErrBadMagic
	}
	cf := &ClassFile{}
	cf.MinorVersion = r.u2()
	cf.MajorVersion = r.u2()
	if r.err != nil {
		return nil, r.err
	}

	cp, err := readConstantPool(r)
	if err != nil {
		return nil, fmt.Errorf("constant pool: %w", err)
	}
	p.cp = cp

	cf.Access = r.u2()
	thisIdx := r.u2()
	superIdx := r.u2()
	if r.err != nil {
		return nil, r.err
	}
	if cf.Name, err = cp.className(thisIdx); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	if cf.SuperName, err = cp.optClassName(superIdx); err != nil {
		return nil, fmt.Errorf("super_class: %w", err)
	}

	n := int(r.u2())
	for i := 0; i < n; i++ {
		name, err := cp.className(r.u2())
		if r.err != nil {
			return nil, r.err
		}
		if err != nil {
			return nil, fmt.Errorf("interface %d: %w", i, err)
		}
		cf.Interfaces = append(cf.Interfaces, name)
	}

	n = int(r.u2())
	cf.Fields = make([]Field, 0, n)
	for i := 0; i < n; i++ {
		f, err := p.readField()
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		cf.Fields = append(cf.Fields, f)
	}

	n = int(r.u2())
	cf.Methods = make([]Method, n)
	for i := 0; i < n; i++ {
		if err := p.readMethod(&cf.Methods[i]); err != nil {
			return nil, fmt.Errorf("method %d: %w", i, err)
		}
	}

	attrs, err := p.readAttributes(r)
	if err != nil {
		return nil, fmt.Errorf("class attributes: %w", err)
	}
	for _, a := range attrs {
		if err := p.classAttribute(cf, a); err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.name, err)
		}
	}

	for _, pc := range p.pendingCode {
		code, err := p.readCode(pc.body)
		if err != nil {
			return nil, fmt.Errorf("method %s%s: code: %w", pc.method.Name, pc.method.Descriptor, err)
		}
		pc.method.Code = code
	}
	return cf, nil
}

func (p *parser) readAttributes(r *reader) ([]attribute, error) {
	n := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	attrs := make([]attribute, 0, n)
	for i := 0; i < n; i++ {
		nameIdx := r.u2()
		length := r.u4()
		if r.err != nil {
			return nil, r.err
		}
		body := r.bytes(int(length))
		if r.err != nil {
			return nil, r.err
		}
		name, err := p.cp.utf8(nameIdx)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attribute{name: name, body: newReader(body)})
	}
	return attrs, nil
}

func (p *parser) classAttribute(cf *ClassFile, a attribute) error {
	switch a.name {
	case "Signature":
		s, err := p.signature(a.body)
		cf.Signature = s
		return err
	case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
		anns, err := p.readAnnotations(a.body)
		cf.Annotations = append(cf.Annotations, anns...)
		return err
	case "RuntimeVisibleTypeAnnotations", "RuntimeInvisibleTypeAnnotations":
		anns, err := p.readTypeAnnotations(a.body)
		cf.TypeAnnotations = append(cf.TypeAnnotations, anns...)
		return err
	case "BootstrapMethods":
		return p.readBootstrapMethods(a.body)
	case "Record":
		return p.readRecord(cf, a.body)
	}
	return nil
}

func (p *parser) signature(r *reader) (string, error) {
	idx := r.u2()
	if r.err != nil {
		return "", r.err
	}
	return p.cp.utf8(idx)
}

func (p *parser) readBootstrapMethods(r *reader) error {
	n := int(r.u2())
	p.cp.bootstrap = make([]bootstrapMethod, 0, n)
	for i := 0; i < n; i++ {
		bsm := bootstrapMethod{handle: r.u2()}
		argc := int(r.u2())
		for j := 0; j < argc; j++ {
			bsm.args = append(bsm.args, r.u2())
		}
		if r.err != nil {
			return r.err
		}
		p.cp.bootstrap = append(p.cp.bootstrap, bsm)
	}
	return r.err
}

func (p *parser) readField() (Field, error) {
	r := p.r
	f := Field{Access: r.u2()}
	nameIdx, descIdx := r.u2(), r.u2()
	if r.err != nil {
		return f, r.err
	}
	var err error
	if f.Name, err = p.cp.utf8(nameIdx); err != nil {
		return f, err
	}
	if f.Descriptor, err = p.cp.utf8(descIdx); err != nil {
		return f, err
	}
	attrs, err := p.readAttributes(r)
	if err != nil {
		return f, err
	}
	for _, a := range attrs {
		switch a.name {
		case "ConstantValue":
			idx := a.body.u2()
			if a.body.err != nil {
				return f, a.body.err
			}
			if f.Value, err = p.cp.loadable(idx, 0); err != nil {
				return f, err
			}
		case "Signature":
			if f.Signature, err = p.signature(a.body); err != nil {
				return f, err
			}
		case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
			anns, err := p.readAnnotations(a.body)
			if err != nil {
				return f, err
			}
			f.Annotations = append(f.Annotations, anns...)
		case "RuntimeVisibleTypeAnnotations", "RuntimeInvisibleTypeAnnotations":
			anns, err := p.readTypeAnnotations(a.body)
			if err != nil {
				return f, err
			}
			f.TypeAnnotations = append(f.TypeAnnotations, anns...)
		}
	}
	return f, nil
}

func (p *parser) readMethod(m *Method) error {
	r := p.r
	m.Access = r.u2()
	nameIdx, descIdx := r.u2(), r.u2()
	if r.err != nil {
		return r.err
	}
	var err error
	if m.Name, err = p.cp.utf8(nameIdx); err != nil {
		return err
	}
	if m.Descriptor, err = p.cp.utf8(descIdx); err != nil {
		return err
	}
	attrs, err := p.readAttributes(r)
	if err != nil {
		return err
	}
	for _, a := range attrs {
		if err := p.methodAttribute(m, a); err != nil {
			return fmt.Errorf("attribute %s: %w", a.name, err)
		}
	}
	return nil
}

func (p *parser) methodAttribute(m *Method, a attribute) error {
	r := a.body
	switch a.name {
	case "Code":
		p.pendingCode = append(p.pendingCode, pendingCode{method: m, body: r.data})
	case "Exceptions":
		n := int(r.u2())
		for i := 0; i < n; i++ {
			name, err := p.cp.className(r.u2())
			if r.err != nil {
				return r.err
			}
			if err != nil {
				return err
			}
			m.Exceptions = append(m.Exceptions, name)
		}
	case "Signature":
		s, err := p.signature(r)
		if err != nil {
			return err
		}
		m.Signature = s
	case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
		anns, err := p.readAnnotations(r)
		if err != nil {
			return err
		}
		m.Annotations = append(m.Annotations, anns...)
	case "RuntimeVisibleTypeAnnotations", "RuntimeInvisibleTypeAnnotations":
		anns, err := p.readTypeAnnotations(r)
		if err != nil {
			return err
		}
		m.TypeAnnotations = append(m.TypeAnnotations, anns...)
	case "RuntimeVisibleParameterAnnotations", "RuntimeInvisibleParameterAnnotations":
		n := int(r.u1())
		for i := 0; i < n; i++ {
			anns, err := p.readAnnotations(r)
			if err != nil {
				return err
			}
			if i < len(m.ParameterAnnotations) {
				m.ParameterAnnotations[i] = append(m.ParameterAnnotations[i], anns...)
			} else {
				m.ParameterAnnotations = append(m.ParameterAnnotations, anns)
			}
		}
	case "AnnotationDefault":
		v, err := p.readElementValue(r, 0)
		if err != nil {
			return err
		}
		m.AnnotationDefault = &v
	}
	return r.err
}

func (p *parser) readRecord(cf *ClassFile, r *reader) error {
	n := int(r.u2())
	for i := 0; i < n; i++ {
		nameIdx, descIdx := r.u2(), r.u2()
		if r.err != nil {
			return r.err
		}
		var rc RecordComponent
		var err error
		if rc.Name, err = p.cp.utf8(nameIdx); err != nil {
			return err
		}
		if rc.Descriptor, err = p.cp.utf8(descIdx); err != nil {
			return err
		}
		attrs, err := p.readAttributes(r)
		if err != nil {
			return err
		}
		for _, a := range attrs {
			switch a.name {
			case "Signature":
				if rc.Signature, err = p.signature(a.body); err != nil {
					return err
				}
			case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
				anns, err := p.readAnnotations(a.body)
				if err != nil {
					return err
				}
				rc.Annotations = append(rc.Annotations, anns...)
			case "RuntimeVisibleTypeAnnotations", "RuntimeInvisibleTypeAnnotations":
				anns, err := p.readTypeAnnotations(a.body)
				if err != nil {
					return err
				}
				rc.TypeAnnotations = append(rc.TypeAnnotations, anns...)
			}
		}
		cf.RecordComponents = append(cf.RecordComponents, rc)
	}
	return r.err
}
