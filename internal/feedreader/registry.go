package feedreader

import (
	"encoding/json"

	"github.com/bryan-buckman/turfcollector/internal/model"
)

// Decoder materializes a typed record from a raw node.
type Decoder func(raw json.RawMessage) (model.Record, error)

// Registry maps discriminants to decoders.
type Registry map[string]Decoder

// DecodeAs returns a decoder unmarshalling nodes into T.
func DecodeAs[T model.Record]() Decoder {
	return func(raw json.RawMessage) (model.Record, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// DefaultRegistry decodes every record kind the feeds are known to carry.
func DefaultRegistry() Registry {
	return Registry{
		model.TypeTakeover: DecodeAs[model.Takeover](),
		model.TypeMedal:    DecodeAs[model.Medal](),
		model.TypeChat:     DecodeAs[model.Chat](),
		model.TypeZone:     DecodeAs[model.Zone](),
	}
}

// Only returns a registry restricted to the given types.
func (r Registry) Only(types ...string) Registry {
	out := make(Registry, len(types))
	for _, t := range types {
		if d, ok := r[t]; ok {
			out[t] = d
		}
	}
	return out
}
