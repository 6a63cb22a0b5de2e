package extractor

import (
	"strings"
	"unique"

	"github.com/dshills/classindex-mcp/internal/classfile"
	"github.com/dshills/classindex-mcp/internal/descriptor"
	"github.com/dshills/classindex-mcp/pkg/types"
)

const (
	lambdaMetafactory   = "java/lang/invoke/LambdaMetafactory"
	stringConcatFactory = "java/lang/invoke/StringConcatFactory"
)

// classVisitor accumulates the index of a single class. It is not shared between files.
type classVisitor struct {
	opts      Options
	className string
	index     types.Index
	locations []string

	// lambda location -> enclosing location -> number of call sites
	lambdas map[string]map[string]int

	stats Stats
}

func newClassVisitor(opts Options) *classVisitor {
	return &classVisitor{
		opts:    opts,
		index:   make(types.Index),
		lambdas: make(map[string]map[string]int),
	}
}

func intern(s string) string {
	return unique.Make(s).Value()
}

func (v *classVisitor) location() string {
	if len(v.locations) == 0 {
		return types.ClassLocation
	}
	return v.locations[len(v.locations)-1]
}

func (v *classVisitor) push(loc string) { v.locations = append(v.locations, loc) }

func (v *classVisitor) pop() { v.locations = v.locations[:len(v.locations)-1] }

func (v *classVisitor) addRef(name string, key types.Key) {
	v.index.Add(intern(name), key, v.location(), 1)
}

func (v *classVisitor) addClassRef(name string) {
	if name == "" {
		return
	}
	v.addRef(name, types.ClassKey{})
}

func (v *classVisitor) addFieldRef(owner, name string, isWrite bool) {
	v.addRef(name, types.FieldKey{Owner: intern(owner), IsWrite: isWrite})
}

func (v *classVisitor) addMethodRef(owner, name, desc string) {
	v.addRef(name, types.MethodKey{Owner: intern(owner), Desc: intern(desc)})
}

// addDelegateRef replaces the plain entry at the current location with a delegate.
func (v *classVisitor) addDelegateRef(name string, key types.Key) {
	v.index.Remove(name, key, v.location())
	v.addRef(name, types.DelegateKey{Inner: key})
}

func (v *classVisitor) addStringConstant(s string) {
	if v.opts.IndexStringConstants {
		v.addRef(s, types.StringConstantKey{})
	}
}

func (v *classVisitor) addTypeDescriptor(desc string) {
	descriptor.ScanType(desc, v.addClassRef)
}

func (v *classVisitor) addLambdaMapping(lambdaLoc string) {
	targets, ok := v.lambdas[lambdaLoc]
	if !ok {
		targets = make(map[string]int)
		v.lambdas[lambdaLoc] = targets
	}
	targets[v.location()]++
}

func (v *classVisitor) signatures() descriptor.Scanner {
	return descriptor.Scanner{Emit: v.addClassRef}
}

func (v *classVisitor) visitClass(cf *classfile.ClassFile) {
	v.className = cf.Name
	v.push(types.ClassLocation)
	if cf.Signature != "" {
		v.signatures().ClassSignature(cf.Signature)
	}
	v.addClassRef(cf.SuperName)
	for _, itf := range cf.Interfaces {
		v.addClassRef(itf)
	}
	v.visitAnnotations(cf.Annotations)
	v.visitTypeAnnotations(cf.TypeAnnotations)

	for i := range cf.RecordComponents {
		v.visitRecordComponent(&cf.RecordComponents[i])
	}
	for i := range cf.Fields {
		v.visitField(&cf.Fields[i])
	}
	for i := range cf.Methods {
		v.visitMethod(&cf.Methods[i])
	}
	v.pop()
	v.propagateLambdaLocations()
}

func (v *classVisitor) visitRecordComponent(rc *classfile.RecordComponent) {
	v.push(types.FormatLocation(rc.Name, rc.Descriptor))
	defer v.pop()
	v.addTypeDescriptor(rc.Descriptor)
	if rc.Signature != "" {
		v.signatures().FieldSignature(rc.Signature, true)
	}
	v.visitAnnotations(rc.Annotations)
	v.visitTypeAnnotations(rc.TypeAnnotations)
}

func (v *classVisitor) visitField(f *classfile.Field) {
	v.push(types.FormatLocation(f.Name, f.Descriptor))
	defer v.pop()
	v.addTypeDescriptor(f.Descriptor)
	if f.Signature != "" {
		v.signatures().FieldSignature(f.Signature, true)
	}
	v.addConstant(f.Value)
	v.visitAnnotations(f.Annotations)
	v.visitTypeAnnotations(f.TypeAnnotations)
}

func (v *classVisitor) visitAnnotations(anns []classfile.Annotation) {
	for i := range anns {
		v.visitAnnotation(&anns[i])
	}
}

func (v *classVisitor) visitTypeAnnotations(anns []classfile.TypeAnnotation) {
	for i := range anns {
		v.visitAnnotation(&anns[i].Annotation)
	}
}

func (v *classVisitor) visitAnnotation(a *classfile.Annotation) {
	v.addTypeDescriptor(a.Descriptor)
	for i := range a.Elements {
		v.visitElementValue(&a.Elements[i].Value)
	}
}

func (v *classVisitor) visitElementValue(ev *classfile.ElementValue) {
	switch ev.Tag {
	case 'e':
		if owner := descriptor.InternalName(ev.EnumType); owner != "" {
			v.addFieldRef(owner, ev.EnumName, false)
		}
	case 'c':
		v.addTypeDescriptor(ev.Class)
	case '@':
		if ev.Annotation != nil {
			v.visitAnnotation(ev.Annotation)
		}
	case '[':
		for i := range ev.Array {
			v.visitElementValue(&ev.Array[i])
		}
	default:
		v.addConstant(ev.Const)
	}
}

// addConstant records the references carried by a loadable constant.
func (v *classVisitor) addConstant(c classfile.Constant) {
	switch c := c.(type) {
	case nil:
	case string:
		v.addStringConstant(c)
	case classfile.Type:
		if !c.IsMethod() {
			v.addTypeDescriptor(c.Descriptor)
		}
	case classfile.Handle:
		v.addHandle(c)
	case classfile.ConstantDynamic:
		v.visitInvokeDynamic(c.Name, c.Desc, c.Bootstrap, c.Args)
	case []classfile.Constant:
		for _, e := range c {
			v.addConstant(e)
		}
	}
}

func (v *classVisitor) addHandle(h classfile.Handle) {
	if h.IsField() {
		v.addFieldRef(h.Owner, h.Name, h.IsFieldWrite())
		return
	}
	v.addMethodRef(h.Owner, h.Name, h.Desc)
}

func (v *classVisitor) visitInvokeDynamic(name, desc string, bsm classfile.Handle, args []classfile.Constant) {
	switch bsm.Owner {
	case lambdaMetafactory:
		impl, ok := lambdaImplementation(bsm.Name, args)
		if !ok {
			return
		}
		if impl.Owner == v.className {
			v.addLambdaMapping(types.FormatLocation(impl.Name, impl.Desc))
		}
		v.addMethodRef(impl.Owner, impl.Name, impl.Desc)
	case stringConcatFactory:
		if bsm.Name != "makeConcat" && bsm.Name != "makeConcatWithConstants" {
			return
		}
		if argTypes, _, err := descriptor.ParseMethod(desc); err == nil {
			for _, t := range argTypes {
				if owner := descriptor.InternalName(t); owner != "" {
					v.addRef(owner, types.ImplicitToStringKey{})
				}
			}
		}
		if bsm.Name != "makeConcatWithConstants" || len(args) == 0 {
			return
		}
		if recipe, ok := args[0].(string); ok {
			for _, part := range strings.FieldsFunc(recipe, isRecipeTag) {
				v.addStringConstant(part)
			}
		}
		for _, c := range args[1:] {
			v.addConstant(c)
		}
	}
}

func isRecipeTag(r rune) bool { return r == '\u0001' || r == '\u0002' }

// lambdaImplementation finds the implementation handle of a LambdaMetafactory call site.
// Class files pass bootstrap arguments flat, so altMetafactory's handle is also args[1].
func lambdaImplementation(bootstrap string, args []classfile.Constant) (classfile.Handle, bool) {
	switch bootstrap {
	case "metafactory":
		if len(args) < 3 {
			return classfile.Handle{}, false
		}
		h, ok := args[1].(classfile.Handle)
		return h, ok
	case "altMetafactory":
		if len(args) < 2 {
			return classfile.Handle{}, false
		}
		h, ok := args[1].(classfile.Handle)
		return h, ok
	}
	return classfile.Handle{}, false
}
