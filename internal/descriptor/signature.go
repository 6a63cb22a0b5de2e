package descriptor

import "strings"

const illegalSignatureChars = ".;[/<>:"

// Scanner walks generic signatures and emits every class name they reference.
//
// Scanning never fails: on input it cannot make progress on, it stops and keeps what was
// emitted so far.
type Scanner struct {
	Emit func(internalName string)
}

// ClassSignature scans a class signature: formal type parameters, then the superclass and
// interface signatures. Superclass and interface names themselves are skipped; their type
// arguments are not.
func (s Scanner) ClassSignature(sig string) {
	i := s.formalTypeParameters(sig)
	for i < len(sig) {
		next := s.classTypeSignature(sig, i, true)
		if next == i {
			return
		}
		i = next
	}
}

// FieldSignature scans a field type signature. With skipOuterName the top-level class name
// is not emitted.
func (s Scanner) FieldSignature(sig string, skipOuterName bool) {
	s.fieldTypeSignature(sig, 0, skipOuterName)
}

// MethodSignature scans formal type parameters, parameters, return type and thrown types.
func (s Scanner) MethodSignature(sig string) {
	i := s.formalTypeParameters(sig)
	if i >= len(sig) || sig[i] != '(' {
		return
	}
	i++
	for i < len(sig) && sig[i] != ')' {
		next := s.typeSignature(sig, i, false)
		if next == i {
			return
		}
		i = next
	}
	if i < len(sig) {
		i++
	}
	if i >= len(sig) {
		return
	}
	if sig[i] == 'V' {
		i++
	} else {
		i = s.typeSignature(sig, i, false)
	}
	for i < len(sig) && sig[i] == '^' {
		i = s.fieldTypeSignature(sig, i+1, false)
	}
}

func (s Scanner) formalTypeParameters(sig string) int {
	if len(sig) == 0 || sig[0] != '<' {
		return 0
	}
	i := 1
	for i < len(sig) && sig[i] != '>' {
		next := s.formalTypeParameter(sig, i)
		if next == i {
			return i
		}
		i = next
	}
	if i < len(sig) {
		i++
	}
	return i
}

func (s Scanner) formalTypeParameter(sig string, i int) int {
	_, i = readIdentifier(sig, i)
	if i >= len(sig) || sig[i] != ':' {
		return i
	}
	// class bound, possibly empty, then interface bounds
	i = s.fieldTypeSignature(sig, i+1, false)
	for i < len(sig) && sig[i] == ':' {
		i = s.fieldTypeSignature(sig, i+1, false)
	}
	return i
}

func (s Scanner) fieldTypeSignature(sig string, i int, skipOuterName bool) int {
	if i >= len(sig) {
		return i
	}
	switch sig[i] {
	case 'L':
		return s.classTypeSignature(sig, i, skipOuterName)
	case '[':
		for i < len(sig) && sig[i] == '[' {
			i++
		}
		return s.typeSignature(sig, i, skipOuterName)
	case 'T':
		_, i = readIdentifier(sig, i+1)
		if i < len(sig) && sig[i] == ';' {
			i++
		}
		return i
	default:
		return i
	}
}

func (s Scanner) classTypeSignature(sig string, i int, skipOuterName bool) int {
	if i >= len(sig) || sig[i] != 'L' {
		return i
	}
	var name strings.Builder
	id, i := readIdentifier(sig, i+1)
	name.WriteString(id)
	for i < len(sig) && sig[i] == '/' {
		id, i = readIdentifier(sig, i+1)
		name.WriteByte('/')
		name.WriteString(id)
	}
	if i < len(sig) && sig[i] == '<' {
		i = s.typeArguments(sig, i)
	}
	for i < len(sig) && sig[i] == '.' {
		id, i = readIdentifier(sig, i+1)
		name.WriteByte('$')
		name.WriteString(id)
		if i < len(sig) && sig[i] == '<' {
			i = s.typeArguments(sig, i)
		}
	}
	if i < len(sig) && sig[i] == ';' {
		i++
	}
	if !skipOuterName {
		s.Emit(name.String())
	}
	return i
}

func (s Scanner) typeArguments(sig string, i int) int {
	i++
	for i < len(sig) && sig[i] != '>' {
		next := s.typeArgument(sig, i)
		if next == i {
			return i
		}
		i = next
	}
	if i < len(sig) {
		i++
	}
	return i
}

func (s Scanner) typeArgument(sig string, i int) int {
	if sig[i] == '*' {
		return i + 1
	}
	if sig[i] == '+' || sig[i] == '-' {
		i++
	}
	return s.fieldTypeSignature(sig, i, false)
}

func (s Scanner) typeSignature(sig string, i int, skipOuterName bool) int {
	if i >= len(sig) {
		return i
	}
	if strings.IndexByte(baseTypes, sig[i]) >= 0 {
		return i + 1
	}
	return s.fieldTypeSignature(sig, i, skipOuterName)
}

func readIdentifier(sig string, i int) (string, int) {
	end := i
	for end < len(sig) && strings.IndexByte(illegalSignatureChars, sig[end]) < 0 {
		end++
	}
	return sig[i:end], end
}
