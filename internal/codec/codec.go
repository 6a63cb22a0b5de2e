package codec

import (
	"fmt"
	"math"
	"sort"

	"github.com/dshills/classindex-mcp/pkg/types"
)

// FormatVersion identifies the persisted layout of keys and values. Stored data written
// with another version is discarded and rebuilt.
const FormatVersion = 3

// maxDelegateDepth bounds DelegateKey nesting on decode.
const maxDelegateDepth = 8

// Codec converts keys and index values to and from bytes.
type Codec struct {
	strings StringCodec
}

// New creates a Codec. A nil StringCodec stores strings inline.
func New(sc StringCodec) *Codec {
	if sc == nil {
		sc = RawStrings{}
	}
	return &Codec{strings: sc}
}

// WriteKey writes the key tag followed by the variant's payload.
func (c *Codec) WriteKey(w *Writer, k types.Key) error {
	if k == nil {
		return types.ErrNilKey
	}
	w.Uvarint(uint64(k.Tag()))
	switch k := k.(type) {
	case types.ClassKey, types.StringConstantKey, types.ImplicitToStringKey:
		return nil
	case types.FieldKey:
		if err := c.strings.WriteString(w, k.Owner); err != nil {
			return err
		}
		w.Bool(k.IsWrite)
		return nil
	case types.MethodKey:
		if err := c.strings.WriteString(w, k.Owner); err != nil {
			return err
		}
		return c.strings.WriteString(w, k.Desc)
	case types.DelegateKey:
		return c.WriteKey(w, k.Inner)
	default:
		return fmt.Errorf("codec: unsupported key type %T", k)
	}
}

// ReadKey reads a key written by WriteKey.
func (c *Codec) ReadKey(r *Reader) (types.Key, error) {
	return c.readKey(r, 0)
}

func (c *Codec) readKey(r *Reader, depth int) (types.Key, error) {
	tag, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	switch types.KeyTag(tag) {
	case types.TagClass:
		return types.ClassKey{}, nil
	case types.TagStringConstant:
		return types.StringConstantKey{}, nil
	case types.TagImplicitToString:
		return types.ImplicitToStringKey{}, nil
	case types.TagField:
		owner, err := c.strings.ReadString(r)
		if err != nil {
			return nil, err
		}
		isWrite, err := r.Bool()
		if err != nil {
			return nil, err
		}
		return types.FieldKey{Owner: owner, IsWrite: isWrite}, nil
	case types.TagMethod:
		owner, err := c.strings.ReadString(r)
		if err != nil {
			return nil, err
		}
		desc, err := c.strings.ReadString(r)
		if err != nil {
			return nil, err
		}
		return types.MethodKey{Owner: owner, Desc: desc}, nil
	case types.TagDelegate:
		if depth >= maxDelegateDepth {
			return nil, fmt.Errorf("%w: delegate keys nested too deeply", ErrCorrupt)
		}
		inner, err := c.readKey(r, depth+1)
		if err != nil {
			return nil, err
		}
		return types.DelegateKey{Inner: inner}, nil
	default:
		return nil, &UnknownKeyTagError{Tag: tag}
	}
}

// EncodeValue serialises a value as
//
//	keyCount { key locationCount { location count } }
//
// with keys and locations in a deterministic order.
func (c *Codec) EncodeValue(v types.Value) ([]byte, error) {
	var w Writer
	err := c.strings.Session(func() error {
		keys := sortedKeys(v)
		w.Uvarint(uint64(len(keys)))
		for _, k := range keys {
			if err := c.WriteKey(&w, k); err != nil {
				return err
			}
			locs := v[k]
			sorted := locs.Sorted()
			w.Uvarint(uint64(len(sorted)))
			for _, loc := range sorted {
				if err := c.strings.WriteString(&w, loc); err != nil {
					return err
				}
				w.Uvarint(uint64(locs[loc]))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeValue parses bytes produced by EncodeValue.
func (c *Codec) DecodeValue(data []byte) (types.Value, error) {
	r := NewReader(data)
	v := make(types.Value)
	err := c.strings.Session(func() error {
		nkeys, err := r.Uvarint()
		if err != nil {
			return err
		}
		if nkeys > uint64(len(data)) {
			return fmt.Errorf("%w: %d keys in %d bytes", ErrCorrupt, nkeys, len(data))
		}
		for i := uint64(0); i < nkeys; i++ {
			k, err := c.ReadKey(r)
			if err != nil {
				return err
			}
			nlocs, err := r.Uvarint()
			if err != nil {
				return err
			}
			if nlocs > uint64(len(data)) {
				return fmt.Errorf("%w: %d locations in %d bytes", ErrCorrupt, nlocs, len(data))
			}
			for j := uint64(0); j < nlocs; j++ {
				loc, err := c.strings.ReadString(r)
				if err != nil {
					return err
				}
				if err := types.ValidateLocation(loc); err != nil {
					return fmt.Errorf("%w: %q: %v", ErrCorrupt, loc, err)
				}
				n, err := r.Uvarint()
				if err != nil {
					return err
				}
				if n == 0 || n > math.MaxInt32 {
					return fmt.Errorf("%w: count %d at %q", ErrCorrupt, n, loc)
				}
				v.Add(k, loc, int(n))
			}
		}
		if !r.Done() {
			return fmt.Errorf("%w: trailing bytes", ErrCorrupt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func sortedKeys(v types.Value) []types.Key {
	keys := make([]types.Key, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Tag() != keys[j].Tag() {
			return keys[i].Tag() < keys[j].Tag()
		}
		return keys[i].String() < keys[j].String()
	})
	return keys
}
