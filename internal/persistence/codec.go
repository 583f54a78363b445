// Package persistence stores shard units on disk, one file per shard,
// with the bytes passed through a reversible codec pipeline before they
// hit the filesystem.
package persistence

import (
	"fmt"

	"github.com/golang/snappy"
)

// Codec is a reversible byte transform applied to unit bytes on their
// way to and from disk. Encode never fails; Decode fails on input that
// was not produced by Encode.
type Codec interface {
	Encode(data []byte) []byte
	Decode(data []byte) ([]byte, error)
}

// scrambleKey seeds the rolling XOR. Obfuscation only — it discourages
// casual tampering with the shard files and is not a security boundary.
const scrambleKey = 0x5A

type scrambleCodec struct{}

// NewScrambleCodec returns the obfuscation transform: a rolling XOR over
// every byte. XOR is its own inverse, so Encode and Decode share the
// implementation.
func NewScrambleCodec() Codec {
	return scrambleCodec{}
}

func (scrambleCodec) Encode(data []byte) []byte {
	return scramble(data)
}

func (scrambleCodec) Decode(data []byte) ([]byte, error) {
	return scramble(data), nil
}

func scramble(data []byte) []byte {
	out := make([]byte, len(data))
	k := byte(scrambleKey)
	for i, b := range data {
		out[i] = b ^ k
		k = k*31 + 17
	}
	return out
}

type snappyCodec struct{}

// NewSnappyCodec returns a compression layer. Units are mostly repeated
// context strings, so they compress well.
func NewSnappyCodec() Codec {
	return snappyCodec{}
}

func (snappyCodec) Encode(data []byte) []byte {
	return snappy.Encode(nil, data)
}

func (snappyCodec) Decode(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return out, nil
}

type chainCodec []Codec

// Chain composes codecs: Encode applies them left to right, Decode
// undoes them right to left.
func Chain(codecs ...Codec) Codec {
	return chainCodec(codecs)
}

func (c chainCodec) Encode(data []byte) []byte {
	for _, codec := range c {
		data = codec.Encode(data)
	}
	return data
}

func (c chainCodec) Decode(data []byte) ([]byte, error) {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		data, err = c[i].Decode(data)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// DefaultCodec compresses then scrambles, matching what the file store
// writes unless configured otherwise.
func DefaultCodec() Codec {
	return Chain(NewSnappyCodec(), NewScrambleCodec())
}
