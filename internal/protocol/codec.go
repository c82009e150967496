package protocol

import (
	"encoding/json"
	"io"
)

// Codec reads and writes frames as newline-delimited JSON on a stream.
// Not safe for concurrent writers; the connection owner serializes sends.
type Codec struct {
	enc *json.Encoder
	dec *json.Decoder
}

func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{
		enc: json.NewEncoder(rw),
		dec: json.NewDecoder(rw),
	}
}

func (c *Codec) Write(f *Frame) error {
	return c.enc.Encode(f)
}

func (c *Codec) Read() (*Frame, error) {
	var f Frame
	if err := c.dec.Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}
