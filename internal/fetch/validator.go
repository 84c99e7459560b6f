package fetch

import (
	"io"
	"os"

	"github.com/h2non/filetype"
)

// Validator performs the decode-based validity check after a
// successful fetch: is the file actually the kind of content it
// claims to be.
type Validator interface {
	IsValid(path string) bool
}

// ImageValidator reads the leading bytes of the file and sniffs for a
// real image container, replacing the original's PIL.Image.open
// check. Any I/O error or unrecognised header counts as invalid.
type ImageValidator struct{}

// IsValid implements Validator.
func (ImageValidator) IsValid(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 261) // filetype needs at most the first 261 bytes
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false
	}
	return filetype.IsImage(head[:n])
}

// StubValidator alternates true/false across calls, starting with
// true, matching the original's DummyValidator (self._count % 2).
type StubValidator struct {
	count int
}

// IsValid implements Validator.
func (s *StubValidator) IsValid(string) bool {
	s.count++
	return s.count%2 == 1
}

// AlwaysValidValidator accepts every file, for tests that only care
// about fetch success/failure.
type AlwaysValidValidator struct{}

// IsValid implements Validator.
func (AlwaysValidValidator) IsValid(string) bool { return true }
