package gossip

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// encode marshals the value to JSON and compresses it with lz4.
func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	w := lz4.NewWriter(&b)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// maxDecodedSize bounds how large a message may grow once uncompressed.
const maxDecodedSize = maxMessageSize * 4

// decode uncompresses the payload and unmarshals the JSON into v.
func decode(data []byte, v any) error {
	return decodeLimit(data, v, maxDecodedSize)
}

// decodeLimit is decode with the uncompressed size capped at limit bytes.
func decodeLimit(data []byte, v any, limit int64) error {
	r := io.LimitReader(lz4.NewReader(bytes.NewReader(data)), limit+1)

	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("uncompress: %w", err)
	}

	if int64(len(raw)) > limit {
		return fmt.Errorf("uncompress: payload exceeds %d bytes", limit)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	return nil
}
