package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameSize bounds a single wire line. Payloads are small (descriptions
// are capped upstream) so 1MB is generous.
const maxFrameSize = 1 << 20

// Encode writes one frame as a single JSON line.
func Encode(w io.Writer, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", env.Type, err)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write %s frame: %w", env.Type, err)
	}
	return nil
}

// Decoder reads newline-delimited frames from a stream.
type Decoder struct {
	sc *bufio.Scanner
}

// NewDecoder wraps r for frame-by-frame reading.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxFrameSize)
	return &Decoder{sc: sc}
}

// Next returns the next frame, or io.EOF when the stream ends cleanly.
func (d *Decoder) Next() (Envelope, error) {
	for d.sc.Scan() {
		line := d.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return Envelope{}, fmt.Errorf("decode frame: %w", err)
		}
		return env, nil
	}
	if err := d.sc.Err(); err != nil {
		return Envelope{}, err
	}
	return Envelope{}, io.EOF
}
