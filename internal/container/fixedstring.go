package container

import "github.com/firmcore/runtime/internal/corerr"

// FixedString is a fixed-capacity byte buffer presented as a string,
// the generic analog of the teacher's fixed char arrays used for task
// and topic names (registry.Module.Name, foundation task names) where
// spec.md bounds identifier length rather than allowing arbitrary Go
// strings to flow into fixed-layout wire structures.
type FixedString struct {
	buf []byte
	n   int
}

// NewFixedString constructs an empty FixedString with the given fixed
// capacity in bytes.
func NewFixedString(capacity uint32) *FixedString {
	return &FixedString{buf: make([]byte, capacity)}
}

// Set overwrites the contents with s. Input longer than the capacity
// is not truncated, per spec.md's no-silent-truncation stance: it
// returns corerr.InvalidParameter and leaves the contents unchanged.
func (f *FixedString) Set(s string) error {
	if len(s) > len(f.buf) {
		return corerr.New("container.FixedString.Set", corerr.InvalidParameter)
	}
	n := copy(f.buf, s)
	for i := n; i < len(f.buf); i++ {
		f.buf[i] = 0
	}
	f.n = n
	return nil
}

func (f *FixedString) String() string { return string(f.buf[:f.n]) }
func (f *FixedString) Len() int       { return f.n }
func (f *FixedString) Cap() int       { return len(f.buf) }
