package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned for descriptors that do not follow the JVM grammar.
var ErrMalformed = errors.New("descriptor: malformed")

const baseTypes = "BCDFIJSZ"

// ElementType strips array dimensions from a field descriptor.
func ElementType(desc string) string {
	return strings.TrimLeft(desc, "[")
}

// IsObject reports whether desc is an object (non-array) field descriptor.
func IsObject(desc string) bool {
	return len(desc) >= 3 && desc[0] == 'L' && desc[len(desc)-1] == ';'
}

// InternalName returns the internal name of an object descriptor, or "" for any other type.
func InternalName(desc string) string {
	if !IsObject(desc) {
		return ""
	}
	return desc[1 : len(desc)-1]
}

// SlotSize returns the number of local variable slots a value of type desc occupies.
func SlotSize(desc string) int {
	if desc == "J" || desc == "D" {
		return 2
	}
	return 1
}

// ScanType calls emit with the internal name of desc's element type when it is an object.
// Primitive and void descriptors produce nothing.
func ScanType(desc string, emit func(string)) {
	if name := InternalName(ElementType(desc)); name != "" {
		emit(name)
	}
}

// ParseMethod splits a method descriptor into its argument and return descriptors.
func ParseMethod(desc string) (args []string, ret string, err error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, "", fmt.Errorf("%w: method %q", ErrMalformed, desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		end, err := fieldEnd(desc, i)
		if err != nil {
			return nil, "", fmt.Errorf("%w: method %q", ErrMalformed, desc)
		}
		args = append(args, desc[i:end])
		i = end
	}
	if i >= len(desc) {
		return nil, "", fmt.Errorf("%w: method %q", ErrMalformed, desc)
	}
	ret = desc[i+1:]
	if ret != "V" {
		end, err := fieldEnd(ret, 0)
		if err != nil || end != len(ret) {
			return nil, "", fmt.Errorf("%w: method %q", ErrMalformed, desc)
		}
	}
	return args, ret, nil
}

// ScanMethod emits the object types referenced by a method descriptor's arguments and return type.
func ScanMethod(desc string, emit func(string)) error {
	args, ret, err := ParseMethod(desc)
	if err != nil {
		return err
	}
	for _, arg := range args {
		ScanType(arg, emit)
	}
	ScanType(ret, emit)
	return nil
}

// ValidField reports whether desc is exactly one field descriptor.
func ValidField(desc string) bool {
	end, err := fieldEnd(desc, 0)
	return err == nil && end == len(desc)
}

func fieldEnd(desc string, i int) (int, error) {
	for i < len(desc) && desc[i] == '[' {
		i++
	}
	if i >= len(desc) {
		return 0, ErrMalformed
	}
	switch c := desc[i]; {
	case strings.IndexByte(baseTypes, c) >= 0:
		return i + 1, nil
	case c == 'L':
		semi := strings.IndexByte(desc[i:], ';')
		if semi <= 1 {
			return 0, ErrMalformed
		}
		return i + semi + 1, nil
	default:
		return 0, ErrMalformed
	}
}
