package classfile

import (
	"fmt"
	"math"
)

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// maxDynamicDepth bounds nesting of dynamic constants used as bootstrap arguments.
const maxDynamicDepth = 32

type cpEntry struct {
	tag  uint8
	a, b uint16
	num  uint64
	raw  []byte
	str  string
	done bool
}

type bootstrapMethod struct {
	handle uint16
	args   []uint16
}

type constantPool struct {
	entries   []cpEntry
	bootstrap []bootstrapMethod
}

func readConstantPool(r *reader) (*constantPool, error) {
	count := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	cp := &constantPool{entries: make([]cpEntry, count)}
	for i := 1; i < count; i++ {
		e := &cp.entries[i]
		e.tag = r.u1()
		switch e.tag {
		case tagUtf8:
			n := int(r.u2())
			e.raw = r.bytes(n)
		case tagInteger, tagFloat:
			e.num = uint64(r.u4())
		case tagLong, tagDouble:
			e.num = r.u8()
			i++
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			e.a = r.u2()
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			e.a = r.u2()
			e.b = r.u2()
		case tagMethodHandle:
			e.a = uint16(r.u1())
			e.b = r.u2()
		default:
			if r.err != nil {
				return nil, r.err
			}
			return nil, fmt.Errorf("constant %d: unknown tag %d: %w", i, e.tag, ErrBadConstant)
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	return cp, nil
}

func (cp *constantPool) entry(i uint16, tag uint8) (*cpEntry, error) {
	if int(i) == 0 || int(i) >= len(cp.entries) || cp.entries[i].tag != tag {
		return nil, fmt.Errorf("constant %d: want tag %d: %w", i, tag, ErrBadConstant)
	}
	return &cp.entries[i], nil
}

func (cp *constantPool) utf8(i uint16) (string, error) {
	e, err := cp.entry(i, tagUtf8)
	if err != nil {
		return "", err
	}
	if !e.done {
		s, err := decodeModifiedUTF8(e.raw)
		if err != nil {
			return "", fmt.Errorf("constant %d: %w", i, err)
		}
		e.str = s
		e.done = true
	}
	return e.str, nil
}

// optUTF8 resolves i, treating index 0 as absent.
func (cp *constantPool) optUTF8(i uint16) (string, error) {
	if i == 0 {
		return "", nil
	}
	return cp.utf8(i)
}

func (cp *constantPool) className(i uint16) (string, error) {
	e, err := cp.entry(i, tagClass)
	if err != nil {
		return "", err
	}
	return cp.utf8(e.a)
}

// optClassName resolves i, treating index 0 as absent.
func (cp *constantPool) optClassName(i uint16) (string, error) {
	if i == 0 {
		return "", nil
	}
	return cp.className(i)
}

func (cp *constantPool) nameAndType(i uint16) (name, desc string, err error) {
	e, err := cp.entry(i, tagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = cp.utf8(e.a); err != nil {
		return "", "", err
	}
	if desc, err = cp.utf8(e.b); err != nil {
		return "", "", err
	}
	return name, desc, nil
}

func (cp *constantPool) member(i uint16) (MemberRef, error) {
	if int(i) == 0 || int(i) >= len(cp.entries) {
		return MemberRef{}, fmt.Errorf("constant %d: %w", i, ErrBadConstant)
	}
	e := &cp.entries[i]
	switch e.tag {
	case tagFieldref, tagMethodref, tagInterfaceMethodref:
	default:
		return MemberRef{}, fmt.Errorf("constant %d: want member ref: %w", i, ErrBadConstant)
	}
	owner, err := cp.className(e.a)
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := cp.nameAndType(e.b)
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Owner: owner, Name: name, Desc: desc, IsInterface: e.tag == tagInterfaceMethodref}, nil
}

func (cp *constantPool) handle(i uint16) (Handle, error) {
	e, err := cp.entry(i, tagMethodHandle)
	if err != nil {
		return Handle{}, err
	}
	ref, err := cp.member(e.b)
	if err != nil {
		return Handle{}, err
	}
	return Handle{Kind: uint8(e.a), Owner: ref.Owner, Name: ref.Name, Desc: ref.Desc, IsInterface: ref.IsInterface}, nil
}

// dynamic resolves a Dynamic or InvokeDynamic entry against the bootstrap method table.
func (cp *constantPool) dynamic(i uint16, tag uint8, depth int) (ConstantDynamic, error) {
	if depth > maxDynamicDepth {
		return ConstantDynamic{}, fmt.Errorf("constant %d: dynamic constants nested too deeply: %w", i, ErrBadConstant)
	}
	e, err := cp.entry(i, tag)
	if err != nil {
		return ConstantDynamic{}, err
	}
	if int(e.a) >= len(cp.bootstrap) {
		return ConstantDynamic{}, fmt.Errorf("constant %d: bootstrap method %d out of range: %w", i, e.a, ErrBadConstant)
	}
	name, desc, err := cp.nameAndType(e.b)
	if err != nil {
		return ConstantDynamic{}, err
	}
	bsm := cp.bootstrap[e.a]
	h, err := cp.handle(bsm.handle)
	if err != nil {
		return ConstantDynamic{}, err
	}
	args := make([]Constant, 0, len(bsm.args))
	for _, a := range bsm.args {
		c, err := cp.loadable(a, depth+1)
		if err != nil {
			return ConstantDynamic{}, err
		}
		args = append(args, c)
	}
	return ConstantDynamic{Name: name, Desc: desc, Bootstrap: h, Args: args}, nil
}

// loadable resolves an entry usable by ldc, ConstantValue or a bootstrap argument.
func (cp *constantPool) loadable(i uint16, depth int) (Constant, error) {
	if int(i) == 0 || int(i) >= len(cp.entries) {
		return nil, fmt.Errorf("constant %d: %w", i, ErrBadConstant)
	}
	e := &cp.entries[i]
	switch e.tag {
	case tagInteger:
		return int32(uint32(e.num)), nil
	case tagFloat:
		return math.Float32frombits(uint32(e.num)), nil
	case tagLong:
		return int64(e.num), nil
	case tagDouble:
		return math.Float64frombits(e.num), nil
	case tagString:
		return cp.utf8(e.a)
	case tagClass:
		name, err := cp.utf8(e.a)
		if err != nil {
			return nil, err
		}
		return ObjectType(name), nil
	case tagMethodType:
		desc, err := cp.utf8(e.a)
		if err != nil {
			return nil, err
		}
		return Type{Descriptor: desc}, nil
	case tagMethodHandle:
		return cp.handle(i)
	case tagDynamic:
		return cp.dynamic(i, tagDynamic, depth)
	default:
		return nil, fmt.Errorf("constant %d: tag %d is not loadable: %w", i, e.tag, ErrBadConstant)
	}
}
