package content

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// teeBody copies what the caller reads into a buffer and calls done with
// the complete body once EOF is reached. Bodies larger than max, bodies
// closed early and failed reads are not delivered.
type teeBody struct {
	io.ReadCloser
	max  int
	done func([]byte)

	buf      bytes.Buffer
	overflow bool
	once     sync.Once
}

func (t *teeBody) Read(p []byte) (int, error) {
	n, err := t.ReadCloser.Read(p)
	if n > 0 && !t.overflow {
		if t.buf.Len()+n > t.max {
			t.overflow = true
			t.buf = bytes.Buffer{}
		} else {
			t.buf.Write(p[:n])
		}
	}
	if errors.Is(err, io.EOF) && !t.overflow {
		t.once.Do(func() { t.done(t.buf.Bytes()) })
	}
	return n, err
}
