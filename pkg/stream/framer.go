package stream

import "bytes"

// Frame is one line of the body without its '\n', exactly as received.
type Frame = string

// LineFramer splits an arbitrarily chunked byte stream into frames
// delimited by '\n'. Frames are returned verbatim, without the delimiter
// and without trimming. The zero value is ready to use.
type LineFramer struct {
	buf []byte
}

// Push appends fragment to the pending buffer and returns every frame it
// completes, in arrival order. The incomplete tail stays buffered; once
// Push returns, the buffer holds no '\n'.
func (f *LineFramer) Push(fragment []byte) []Frame {
	f.buf = append(f.buf, fragment...)

	last := bytes.LastIndexByte(f.buf, '\n')
	if last < 0 {
		return nil
	}

	complete := f.buf[:last]
	frames := make([]Frame, 0, bytes.Count(complete, []byte{'\n'})+1)
	for {
		i := bytes.IndexByte(complete, '\n')
		if i < 0 {
			frames = append(frames, string(complete))
			break
		}
		frames = append(frames, string(complete[:i]))
		complete = complete[i+1:]
	}

	n := copy(f.buf, f.buf[last+1:])
	f.buf = f.buf[:n]
	return frames
}

// Buffered returns the number of bytes waiting for a delimiter.
func (f *LineFramer) Buffered() int {
	return len(f.buf)
}

// Finish ends the stream. The buffered tail is never emitted as a frame:
// it is returned with ok set when non-empty, then discarded.
func (f *LineFramer) Finish() (residual string, ok bool) {
	if len(f.buf) == 0 {
		return "", false
	}
	residual = string(f.buf)
	f.buf = f.buf[:0]
	return residual, true
}
