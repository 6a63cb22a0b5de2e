package codec

import "fmt"

// StringCodec writes and reads the strings embedded in keys and locations.
type StringCodec interface {
	WriteString(w *Writer, s string) error
	ReadString(r *Reader) (string, error)

	// Session runs fn while the codec's backing state cannot be rebuilt underneath it.
	// A whole value is encoded or decoded inside one session.
	Session(fn func() error) error
}

// RawStrings stores strings inline.
type RawStrings struct{}

func (RawStrings) WriteString(w *Writer, s string) error {
	w.RawString(s)
	return nil
}

func (RawStrings) ReadString(r *Reader) (string, error) { return r.RawString() }

func (RawStrings) Session(fn func() error) error { return fn() }

// Enumerator maps strings to stable ids.
type Enumerator interface {
	Enumerate(s string) (uint32, error)
	ValueOf(id uint32) (string, error)
	View(fn func() error) error
}

// EnumeratedStrings stores strings as ids from a shared Enumerator.
//
// When the enumerator fails, OnFailure is called with the error so the owner can
// schedule a full rebuild; the failing write or read returns an *EnumerationError.
type EnumeratedStrings struct {
	Table     Enumerator
	OnFailure func(error)
}

func (e *EnumeratedStrings) WriteString(w *Writer, s string) error {
	id, err := e.Table.Enumerate(s)
	if err != nil {
		return e.fail("enumerate", err)
	}
	w.Uvarint(uint64(id))
	return nil
}

func (e *EnumeratedStrings) ReadString(r *Reader) (string, error) {
	id, err := r.Uvarint()
	if err != nil {
		return "", err
	}
	if id > uint64(^uint32(0)) {
		return "", fmt.Errorf("%w: string id %d", ErrCorrupt, id)
	}
	s, err := e.Table.ValueOf(uint32(id))
	if err != nil {
		return "", e.fail("resolve", err)
	}
	return s, nil
}

func (e *EnumeratedStrings) Session(fn func() error) error {
	return e.Table.View(fn)
}

func (e *EnumeratedStrings) fail(op string, err error) error {
	if e.OnFailure != nil {
		e.OnFailure(err)
	}
	return &EnumerationError{Op: op, Err: err}
}
