package classfile

import "errors"

var (
	// ErrBadMagic indicates the input does not start with 0xCAFEBABE.
	ErrBadMagic = errors.New("classfile: bad magic")
	// ErrTruncated indicates a structure extends past the end of its buffer.
	ErrTruncated = errors.New("classfile: truncated buffer")
	// ErrBadConstant indicates a constant pool index of the wrong kind or out of range.
	ErrBadConstant = errors.New("classfile: bad constant pool reference")
	// ErrBadUTF8 indicates a malformed modified UTF-8 string.
	ErrBadUTF8 = errors.New("classfile: malformed modified UTF-8")
	// ErrBadOpcode indicates an unknown or reserved instruction opcode.
	ErrBadOpcode = errors.New("classfile: bad opcode")
	// ErrBadAttribute indicates an attribute whose contents do not match its declared layout.
	ErrBadAttribute = errors.New("classfile: malformed attribute")
)
