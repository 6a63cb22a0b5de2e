package classfile

import "strings"

// Constant is a loadable constant: int32, int64, float32, float64, string, Type, Handle,
// ConstantDynamic, or []Constant for nested bootstrap argument lists.
type Constant any

// Type is a class or method type constant, stored as a descriptor.
type Type struct {
	Descriptor string
}

// IsMethod reports whether t is a method type.
func (t Type) IsMethod() bool {
	return strings.HasPrefix(t.Descriptor, "(")
}

// ObjectType returns the Type for an internal class name or array descriptor.
func ObjectType(internalName string) Type {
	if strings.HasPrefix(internalName, "[") {
		return Type{Descriptor: internalName}
	}
	return Type{Descriptor: "L" + internalName + ";"}
}

// Handle is a method handle constant.
type Handle struct {
	Kind        uint8
	Owner       string
	Name        string
	Desc        string
	IsInterface bool
}

// IsField reports whether the handle reads or writes a field.
func (h Handle) IsField() bool {
	return h.Kind >= HGetField && h.Kind <= HPutStatic
}

// IsFieldWrite reports whether the handle writes a field.
func (h Handle) IsFieldWrite() bool {
	return h.Kind == HPutField || h.Kind == HPutStatic
}

// ConstantDynamic is a dynamically computed constant or call site: a name and descriptor
// resolved through a bootstrap method with static arguments.
type ConstantDynamic struct {
	Name      string
	Desc      string
	Bootstrap Handle
	Args      []Constant
}

// MemberRef names a field or method accessed by an instruction.
type MemberRef struct {
	Owner       string
	Name        string
	Desc        string
	IsInterface bool
}
