// Package connect provides the Connect RPC admin services and their clients.
package connect

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec marshals plain Go messages as JSON. It replaces the default
// "json" codec, which only accepts protobuf messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// WithJSON is the codec option shared by handlers and clients.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
