package extractor

import (
	"github.com/dshills/classindex-mcp/internal/classfile"
	"github.com/dshills/classindex-mcp/internal/descriptor"
	"github.com/dshills/classindex-mcp/pkg/types"
)

func (v *classVisitor) visitMethod(m *classfile.Method) {
	v.push(types.FormatLocation(m.Name, m.Descriptor))
	defer v.pop()

	// malformed descriptors still index the rest of the method
	_ = descriptor.ScanMethod(m.Descriptor, v.addClassRef)
	if m.Signature != "" {
		v.signatures().MethodSignature(m.Signature)
	}
	for _, ex := range m.Exceptions {
		v.addClassRef(ex)
	}

	if m.AnnotationDefault != nil {
		v.visitElementValue(m.AnnotationDefault)
	}
	v.visitAnnotations(m.Annotations)
	v.visitTypeAnnotations(m.TypeAnnotations)
	for _, anns := range m.ParameterAnnotations {
		v.visitAnnotations(anns)
	}

	if m.Code == nil {
		return
	}
	v.visitCode(m.Code)
	if m.IsSynthetic() {
		v.inlineAccessor(m)
	}
}

func (v *classVisitor) visitCode(code *classfile.Code) {
	for _, h := range code.Handlers {
		v.addClassRef(h.CatchType)
	}
	for i := range code.Instructions {
		v.visitInstruction(&code.Instructions[i])
	}
	v.stats.Instructions += len(code.Instructions)
	for _, lv := range code.LocalVariables {
		if lv.Signature != "" {
			v.signatures().FieldSignature(lv.Signature, true)
		}
	}
	v.visitTypeAnnotations(code.TypeAnnotations)
}

func (v *classVisitor) visitInstruction(in *classfile.Instruction) {
	switch in.Kind() {
	case classfile.KindType:
		v.addTypeDescriptor(classfile.ObjectType(in.TypeName).Descriptor)
	case classfile.KindField:
		v.addFieldRef(in.Member.Owner, in.Member.Name, in.Opcode.IsFieldWrite())
	case classfile.KindMethod:
		v.addMethodRef(in.Member.Owner, in.Member.Name, in.Member.Desc)
	case classfile.KindInvokeDynamic:
		if d := in.Dynamic; d != nil {
			v.visitInvokeDynamic(d.Name, d.Desc, d.Bootstrap, d.Args)
		}
	case classfile.KindLdc:
		v.addConstant(in.Constant)
	case classfile.KindMultiANewArray:
		v.addTypeDescriptor(in.TypeName)
	}
}

// inlineAccessor recognises compiler-generated accessors of the exact shape
//
//	[aload_0] (load param_i)* one field or method access, return
//
// with at most one checkcast before each parameter load, the access and the return.
// A match rewrites the access recorded at the accessor's location into a DelegateKey.
func (v *classVisitor) inlineAccessor(m *classfile.Method) {
	args, _, err := descriptor.ParseMethod(m.Descriptor)
	if err != nil {
		return
	}
	insns := m.Code.Instructions
	i := 0
	next := func(skipCast bool) *classfile.Instruction {
		if i < len(insns) && skipCast && insns[i].Opcode == classfile.CHECKCAST {
			i++
		}
		if i >= len(insns) {
			return nil
		}
		return &insns[i]
	}

	slot := 0
	if !m.IsStatic() {
		in := next(false)
		if in == nil || !in.Opcode.IsLoad() || in.Var != 0 {
			return
		}
		i++
		slot = 1
	}
	for _, arg := range args {
		in := next(true)
		if in == nil || !in.Opcode.IsLoad() || in.Var != slot {
			return
		}
		i++
		slot += descriptor.SlotSize(arg)
	}

	access := next(true)
	if access == nil {
		return
	}
	kind := access.Kind()
	if kind != classfile.KindField && kind != classfile.KindMethod {
		return
	}
	i++

	ret := next(true)
	if ret == nil || !ret.Opcode.IsReturn() {
		return
	}
	i++
	if i != len(insns) {
		return
	}

	ref := access.Member
	var key types.Key
	if kind == classfile.KindField {
		key = types.FieldKey{Owner: intern(ref.Owner), IsWrite: access.Opcode.IsFieldWrite()}
	} else {
		key = types.MethodKey{Owner: intern(ref.Owner), Desc: intern(ref.Desc)}
	}
	v.addDelegateRef(ref.Name, key)
	v.stats.AccessorsInlined++
}
