// Package codec abstracts the wire encodings the remote-engine client and
// its test server can speak. A Codec pairs symmetric marshal and unmarshal
// halves under a name selectable from configuration.
package codec

import (
	"fmt"
	"io"
	"strings"
)

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// Codec is a named, symmetric wire encoding.
type Codec interface {
	Marshaler
	Unmarshaler
	Name() string
}

const (
	NameJSON = "json"
	NameCBOR = "cbor"
)

// ByName resolves a codec from its configuration name. The empty string
// means JSON.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", NameJSON:
		return JSON(), nil
	case NameCBOR:
		return CBOR(), nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}
