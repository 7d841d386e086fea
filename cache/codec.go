package cache

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

func encodeEntry[T any](e *Entry[T]) ([]byte, error) {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "cache: failed to marshal entry")
	}
	return data, nil
}

// decodeEntry decodes a stored payload. Numbers nested in interface values
// decode as int64, uint64 or float64 rather than the narrowest wire type, so
// cached and freshly computed values look the same to callers.
func decodeEntry[T any](data []byte) (*Entry[T], error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var e Entry[T]
	if err := dec.Decode(&e); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "cache: failed to unmarshal entry"), ErrCorruptEntry)
	}
	return &e, nil
}
