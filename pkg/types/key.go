package types

import "fmt"

// KeyTag identifies a key variant on disk. Values are persisted and must never be reassigned.
type KeyTag uint8

const (
	TagClass            KeyTag = 0
	TagField            KeyTag = 1
	TagMethod           KeyTag = 2
	TagStringConstant   KeyTag = 3
	TagImplicitToString KeyTag = 4
	TagDelegate         KeyTag = 5
)

func (t KeyTag) String() string {
	switch t {
	case TagClass:
		return "class"
	case TagField:
		return "field"
	case TagMethod:
		return "method"
	case TagStringConstant:
		return "string"
	case TagImplicitToString:
		return "toString"
	case TagDelegate:
		return "delegate"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Key describes how a name is used at a location.
//
// All implementations are comparable value types, so two keys are equal exactly when
// their tags and payloads are equal and a Key can be used directly as a map key.
type Key interface {
	Tag() KeyTag
	String() string
}

// ClassKey marks a reference to a class by its internal name.
type ClassKey struct{}

// FieldKey marks an access to a field declared (or accessed through) Owner.
type FieldKey struct {
	Owner   string
	IsWrite bool
}

// MethodKey marks a call to a method of Owner with descriptor Desc.
type MethodKey struct {
	Owner string
	Desc  string
}

// StringConstantKey marks a literal string constant.
type StringConstantKey struct{}

// ImplicitToStringKey marks a value of the named type used in string concatenation.
type ImplicitToStringKey struct{}

// DelegateKey marks a synthetic accessor whose body performs Inner.
type DelegateKey struct {
	Inner Key
}

func (ClassKey) Tag() KeyTag            { return TagClass }
func (FieldKey) Tag() KeyTag            { return TagField }
func (MethodKey) Tag() KeyTag           { return TagMethod }
func (StringConstantKey) Tag() KeyTag   { return TagStringConstant }
func (ImplicitToStringKey) Tag() KeyTag { return TagImplicitToString }
func (DelegateKey) Tag() KeyTag         { return TagDelegate }

func (ClassKey) String() string { return "class" }

func (k FieldKey) String() string {
	if k.IsWrite {
		return "field(" + k.Owner + ", write)"
	}
	return "field(" + k.Owner + ", read)"
}

func (k MethodKey) String() string { return "method(" + k.Owner + ", " + k.Desc + ")" }

func (StringConstantKey) String() string { return "string" }

func (ImplicitToStringKey) String() string { return "toString" }

func (k DelegateKey) String() string {
	if k.Inner == nil {
		return "delegate(<nil>)"
	}
	return "delegate(" + k.Inner.String() + ")"
}

// Unwrap returns the key a delegate stands for, or k itself.
func Unwrap(k Key) Key {
	if d, ok := k.(DelegateKey); ok {
		return d.Inner
	}
	return k
}
