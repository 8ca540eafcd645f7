package feed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/sceneview/internal/scene"
)

// EncodeUpdate converts an update to its wire form: the update's JSON
// document carried as a protobuf Struct.
func EncodeUpdate(u scene.Update) (*structpb.Struct, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	return s, nil
}

// DecodeUpdate converts a wire message back to an update. Unknown fields
// are rejected.
func DecodeUpdate(s *structpb.Struct) (scene.Update, error) {
	if s == nil {
		return scene.Update{}, fmt.Errorf("decode update: empty message")
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return scene.Update{}, fmt.Errorf("decode update: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var u scene.Update
	if err := dec.Decode(&u); err != nil {
		return scene.Update{}, fmt.Errorf("decode update: %w", err)
	}
	return u, nil
}
