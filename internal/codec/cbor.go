package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

type cborCodec struct {
	em cbor.EncMode
	dm cbor.DecMode
}

// CBOR returns the binary codec. Untyped maps decode with any-typed keys;
// the value layer normalizes those.
func CBOR() Codec {
	em, err := cbor.EncOptions{}.EncMode()
	if err != nil {
		panic(err)
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return &cborCodec{em: em, dm: dm}
}

func (c *cborCodec) Name() string { return NameCBOR }

func (c *cborCodec) Marshal(v any) ([]byte, error) { return c.em.Marshal(v) }

func (c *cborCodec) Unmarshal(data []byte, dst any) error { return c.dm.Unmarshal(data, dst) }

func (c *cborCodec) NewEncoder(w io.Writer) Encoder { return c.em.NewEncoder(w) }

func (c *cborCodec) NewDecoder(r io.Reader) Decoder { return c.dm.NewDecoder(r) }
