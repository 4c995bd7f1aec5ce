package adc

// Buffer is an immutable, shareable line ready to be written to one or
// many sockets. A broadcast builds exactly one Buffer and enqueues it on
// every recipient's write queue; since the byte slice is never mutated
// after NewBuffer returns, the allocation is safely shared without a copy
// per recipient (spec.md §3 "Buffer", §4.3, §9).
type Buffer struct {
	data []byte
}

// NewBuffer seals a line (already including its trailing newline) into a
// shareable Buffer.
func NewBuffer(line string) *Buffer {
	return &Buffer{data: []byte(line)}
}

// Bytes returns the sealed line. Callers must not modify the result.
func (b *Buffer) Bytes() []byte { return b.data }

// Line1 encodes tokens as a single wire line ending in \n and seals it
// into a Buffer.
func Line1(tokens ...string) *Buffer {
	return NewBuffer(EncodeLine(tokens) + "\n")
}
