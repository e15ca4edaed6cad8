package patchbus

import (
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/totomo/luvtree/jsonpatch"
)

// Batch is the unit of replication: the patches a source tree emitted between two
// flushes, in emission order.
type Batch struct {
	// ID identifies the batch for deduplication.
	ID string `json:"id"`
	// Source identifies the publishing tree.
	Source string `json:"source"`
	// Sequence numbers the batches of one source from 1.
	Sequence uint64 `json:"seq"`
	// Patches are absolute patches relative to the source root.
	Patches []jsonpatch.Patch `json:"patches"`
}

// Codec converts batches to and from message payloads.
type Codec interface {
	Encode(b *Batch) ([]byte, error)
	Decode(data []byte) (*Batch, error)
}

// JSONCodec encodes batches as JSON.
type JSONCodec struct{}

// Encode encodes b as JSON.
func (JSONCodec) Encode(b *Batch) ([]byte, error) {
	return json.Marshal(b)
}

// Decode decodes a JSON batch and validates its patches.
func (JSONCodec) Decode(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.Wrap(err, "failed to decode batch")
	}
	for _, p := range b.Patches {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

// Base64Codec wraps another codec in standard base64.
type Base64Codec struct {
	underlying Codec
}

// NewBase64Codec creates a Base64Codec. A nil underlying codec uses JSON.
func NewBase64Codec(underlying Codec) *Base64Codec {
	if underlying == nil {
		underlying = JSONCodec{}
	}
	return &Base64Codec{underlying: underlying}
}

// Encode encodes b with the underlying codec, then in base64.
func (c *Base64Codec) Encode(b *Batch) ([]byte, error) {
	data, err := c.underlying.Encode(b)
	if err != nil {
		return nil, err
	}
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(encoded, data)
	return encoded, nil
}

// Decode reverses Encode.
func (c *Base64Codec) Decode(data []byte) (*Batch, error) {
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(decoded, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode base64 payload")
	}
	return c.underlying.Decode(decoded[:n])
}

// CodecFor returns the codec of format.
func CodecFor(format EncodingFormat) (Codec, error) {
	switch format {
	case EncodingFormatJSON:
		return JSONCodec{}, nil
	case EncodingFormatBase64:
		return NewBase64Codec(JSONCodec{}), nil
	default:
		return nil, errors.Errorf("unsupported encoding format: %s", format)
	}
}
