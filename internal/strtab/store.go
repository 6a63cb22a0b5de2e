package strtab

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// maxRecordLen bounds a single stored string.
const maxRecordLen = 1 << 20

// FileStore keeps strings in an append-only file of length-prefixed records.
type FileStore struct {
	path string
	file *os.File
}

// OpenFileStore opens or creates the store at path.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open string table %s: %w", path, err)
	}
	return &FileStore{path: path, file: f}, nil
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Load reads every record. A partial trailing record is reported as ErrCorrupt.
func (s *FileStore) Load() ([]string, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r := bufio.NewReader(s.file)
	var out []string
	for {
		n, err := binary.ReadUvarint(r)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorrupt, len(out), err)
		}
		if n > maxRecordLen {
			return nil, fmt.Errorf("%w: record %d has length %d", ErrCorrupt, len(out), n)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorrupt, len(out), err)
		}
		out = append(out, string(buf))
	}
}

// Append writes one record.
func (s *FileStore) Append(str string) error {
	if len(str) > maxRecordLen {
		return fmt.Errorf("string of %d bytes exceeds record limit", len(str))
	}
	rec := binary.AppendUvarint(make([]byte, 0, len(str)+binary.MaxVarintLen32), uint64(len(str)))
	rec = append(rec, str...)
	_, err := s.file.Write(rec)
	return err
}

// Reset truncates the file.
func (s *FileStore) Reset() error {
	return s.file.Truncate(0)
}

// Close syncs and closes the file.
func (s *FileStore) Close() error {
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

// MemoryStore keeps strings in memory. Fail, when set, makes Append return it.
type MemoryStore struct {
	mu     sync.Mutex
	values []string
	Fail   error
}

func (m *MemoryStore) Load() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.values...), nil
}

func (m *MemoryStore) Append(s string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.values = append(m.values, s)
	return nil
}

func (m *MemoryStore) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = nil
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// SetFail sets the error returned by later appends.
func (m *MemoryStore) SetFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail = err
}
