package classfiletest

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dshills/classindex-mcp/internal/classfile"
)

type pool struct {
	buf   []byte
	next  uint16
	index map[string]uint16

	bootstrap [][]uint16
}

func newPool() *pool {
	return &pool{next: 1, index: make(map[string]uint16)}
}

func (p *pool) add(key string, slots uint16, entry []byte) uint16 {
	if i, ok := p.index[key]; ok {
		return i
	}
	i := p.next
	p.next += slots
	p.index[key] = i
	p.buf = append(p.buf, entry...)
	return i
}

func u2(b []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(b, v) }
func u4(b []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(b, v) }

func (p *pool) utf8(s string) uint16 {
	enc := classfile.EncodeModifiedUTF8(s)
	e := u2([]byte{1}, uint16(len(enc)))
	return p.add("U"+s, 1, append(e, enc...))
}

func (p *pool) class(name string) uint16 {
	n := p.utf8(name)
	return p.add("C"+name, 1, u2([]byte{7}, n))
}

func (p *pool) str(s string) uint16 {
	n := p.utf8(s)
	return p.add("S"+s, 1, u2([]byte{8}, n))
}

func (p *pool) integer(v int32) uint16 {
	return p.add(fmt.Sprintf("I%d", v), 1, u4([]byte{3}, uint32(v)))
}

func (p *pool) float(v float32) uint16 {
	bits := math.Float32bits(v)
	return p.add(fmt.Sprintf("F%x", bits), 1, u4([]byte{4}, bits))
}

func (p *pool) long(v int64) uint16 {
	return p.add(fmt.Sprintf("J%d", v), 2, binary.BigEndian.AppendUint64([]byte{5}, uint64(v)))
}

func (p *pool) double(v float64) uint16 {
	bits := math.Float64bits(v)
	return p.add(fmt.Sprintf("D%x", bits), 2, binary.BigEndian.AppendUint64([]byte{6}, bits))
}

func (p *pool) nameAndType(name, desc string) uint16 {
	n, d := p.utf8(name), p.utf8(desc)
	return p.add("N"+name+":"+desc, 1, u2(u2([]byte{12}, n), d))
}

func (p *pool) member(tag byte, owner, name, desc string) uint16 {
	c, nt := p.class(owner), p.nameAndType(name, desc)
	return p.add(fmt.Sprintf("M%d%s.%s:%s", tag, owner, name, desc), 1, u2(u2([]byte{tag}, c), nt))
}

func (p *pool) field(owner, name, desc string) uint16 { return p.member(9, owner, name, desc) }

func (p *pool) method(owner, name, desc string, itf bool) uint16 {
	if itf {
		return p.member(11, owner, name, desc)
	}
	return p.member(10, owner, name, desc)
}

func (p *pool) handle(h classfile.Handle) uint16 {
	var ref uint16
	if h.IsField() {
		ref = p.field(h.Owner, h.Name, h.Desc)
	} else {
		ref = p.method(h.Owner, h.Name, h.Desc, h.IsInterface)
	}
	return p.add(fmt.Sprintf("H%d.%d", h.Kind, ref), 1, u2([]byte{15, h.Kind}, ref))
}

func (p *pool) methodType(desc string) uint16 {
	d := p.utf8(desc)
	return p.add("T"+desc, 1, u2([]byte{16}, d))
}

func (p *pool) addBootstrap(h classfile.Handle, args []classfile.Constant) uint16 {
	entry := []uint16{p.handle(h)}
	for _, a := range args {
		entry = append(entry, p.constant(a))
	}
	p.bootstrap = append(p.bootstrap, entry)
	return uint16(len(p.bootstrap) - 1)
}

func (p *pool) dynamic(tag byte, d classfile.ConstantDynamic) uint16 {
	bsm := p.addBootstrap(d.Bootstrap, d.Args)
	nt := p.nameAndType(d.Name, d.Desc)
	return p.add(fmt.Sprintf("Y%d.%d.%d", tag, bsm, nt), 1, u2(u2([]byte{tag}, bsm), nt))
}

// constant adds a loadable constant and returns its index.
func (p *pool) constant(c classfile.Constant) uint16 {
	switch v := c.(type) {
	case int32:
		return p.integer(v)
	case int:
		return p.integer(int32(v))
	case int64:
		return p.long(v)
	case float32:
		return p.float(v)
	case float64:
		return p.double(v)
	case string:
		return p.str(v)
	case classfile.Type:
		if v.IsMethod() {
			return p.methodType(v.Descriptor)
		}
		if len(v.Descriptor) > 0 && v.Descriptor[0] == 'L' {
			return p.class(v.Descriptor[1 : len(v.Descriptor)-1])
		}
		return p.class(v.Descriptor)
	case classfile.Handle:
		return p.handle(v)
	case classfile.ConstantDynamic:
		return p.dynamic(17, v)
	default:
		panic(fmt.Sprintf("classfiletest: unsupported constant %T", c))
	}
}
