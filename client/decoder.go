package client

import (
	"unicode/utf8"
)

// textDecoder turns a chunked byte stream into UTF-8 text. A rune split
// across two chunks is held back until its remaining bytes arrive.
type textDecoder struct {
	pending []byte
}

func (d *textDecoder) decode(chunk []byte) (string, error) {
	buf := append(d.pending, chunk...)

	cut := len(buf)
	for i := len(buf) - 1; i >= 0 && i >= len(buf)-utf8.UTFMax; i-- {
		if utf8.RuneStart(buf[i]) {
			if !utf8.FullRune(buf[i:]) {
				cut = i
			}
			break
		}
	}

	head := buf[:cut]
	if !utf8.Valid(head) {
		return "", ErrClientDecode
	}
	text := string(head)
	d.pending = append([]byte(nil), buf[cut:]...)
	return text, nil
}

// finish reports a rune left incomplete at the end of the stream.
func (d *textDecoder) finish() error {
	if len(d.pending) > 0 {
		return ErrClientDecode
	}
	return nil
}
