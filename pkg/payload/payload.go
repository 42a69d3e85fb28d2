// Package payload encodes structured values into versioned msgpack blobs.
//
// Every blob is an envelope holding a schema version and the msgpack encoded
// value, so stored rows can be told apart from rows written by a future or
// incompatible schema instead of being silently misread.
package payload

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Version is the envelope version written by Marshal.
const Version = 1

// ErrUnsupportedVersion is returned when a blob carries an unknown envelope version.
var ErrUnsupportedVersion = errors.New("unsupported payload version")

type envelope struct {
	Version int                `msgpack:"v"`
	Data    msgpack.RawMessage `msgpack:"d"`
}

// Marshal encodes v into a versioned blob.
func Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(envelope{Version: Version, Data: data})
}

// Unmarshal decodes a blob written by Marshal into v.
func Unmarshal(b []byte, v any) error {
	var env envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if err := msgpack.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
