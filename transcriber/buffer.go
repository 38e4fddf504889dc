package transcriber

import "time"

// BufferCap bounds the finalized-segment history per session.
const BufferCap = 50

// Buffer is a bounded FIFO of finalized segments: pushing past capacity
// evicts the oldest entry.
type Buffer struct {
	cap   int
	lines []Line
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = BufferCap
	}
	return &Buffer{cap: capacity}
}

func (b *Buffer) Push(text string, at time.Time) {
	b.lines = append(b.lines, Line{Text: text, At: at})
	if len(b.lines) > b.cap {
		b.lines = b.lines[1:]
	}
}

func (b *Buffer) Len() int {
	return len(b.lines)
}

// Recent returns up to n of the newest lines, oldest first.
func (b *Buffer) Recent(n int) []Line {
	if n > len(b.lines) {
		n = len(b.lines)
	}
	out := make([]Line, n)
	copy(out, b.lines[len(b.lines)-n:])
	return out
}

func (b *Buffer) Clear() {
	b.lines = nil
}
