package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Commands understood by the bridge. Anything else is a silent no-op.
const (
	CommandUpsert = "upsert"
	CommandSearch = "search"
)

// DefaultTopK is used when a search omits top_k.
const DefaultTopK = 5

// Request is one decoded bridge request. Data stays raw until the command
// is known.
type Request struct {
	Command string
	Data    json.RawMessage
}

// UpsertData is the payload of an upsert request.
type UpsertData struct {
	ID      any
	Vector  []float32
	Payload any
}

// SearchData is the payload of a search request.
type SearchData struct {
	Vector []float32
	TopK   int
}

// ParseRequest decodes a request document, which must be a JSON object. A
// missing or non-string command decodes to "" and is later treated as
// unrecognised.
func ParseRequest(b []byte) (Request, error) {
	var raw *struct {
		Command any             `json:"command"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Request{}, fmt.Errorf("parse request: %w", err)
	}
	if raw == nil {
		return Request{}, fmt.Errorf("parse request: request must be a JSON object, got null")
	}
	cmd, _ := raw.Command.(string)
	return Request{Command: cmd, Data: raw.Data}, nil
}

// fields splits data into its top-level members.
func (r Request) fields() (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(r.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%s: missing required field \"data\"", r.Command)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, fmt.Errorf("%s: data must be an object: %w", r.Command, err)
	}
	return m, nil
}

func require(command string, m map[string]json.RawMessage, name string) (json.RawMessage, error) {
	v, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s: missing required field \"data.%s\"", command, name)
	}
	return v, nil
}

// decodeValue decodes an arbitrary JSON value, keeping numbers exact.
func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Upsert validates and decodes the data of an upsert request.
func (r Request) Upsert() (UpsertData, error) {
	m, err := r.fields()
	if err != nil {
		return UpsertData{}, err
	}
	var out UpsertData

	rawID, err := require(r.Command, m, "id")
	if err != nil {
		return UpsertData{}, err
	}
	if out.ID, err = decodeValue(rawID); err != nil {
		return UpsertData{}, fmt.Errorf("upsert: invalid \"data.id\": %w", err)
	}

	rawVector, err := require(r.Command, m, "vector")
	if err != nil {
		return UpsertData{}, err
	}
	if err := json.Unmarshal(rawVector, &out.Vector); err != nil {
		return UpsertData{}, fmt.Errorf("upsert: invalid \"data.vector\": %w", err)
	}

	rawPayload, err := require(r.Command, m, "payload")
	if err != nil {
		return UpsertData{}, err
	}
	if out.Payload, err = decodeValue(rawPayload); err != nil {
		return UpsertData{}, fmt.Errorf("upsert: invalid \"data.payload\": %w", err)
	}
	return out, nil
}

// Search validates and decodes the data of a search request. A missing or
// null top_k means DefaultTopK.
func (r Request) Search() (SearchData, error) {
	m, err := r.fields()
	if err != nil {
		return SearchData{}, err
	}
	out := SearchData{TopK: DefaultTopK}

	rawVector, err := require(r.Command, m, "vector")
	if err != nil {
		return SearchData{}, err
	}
	if err := json.Unmarshal(rawVector, &out.Vector); err != nil {
		return SearchData{}, fmt.Errorf("search: invalid \"data.vector\": %w", err)
	}

	if rawTopK, ok := m["top_k"]; ok {
		var k *int
		if err := json.Unmarshal(rawTopK, &k); err != nil {
			return SearchData{}, fmt.Errorf("search: invalid \"data.top_k\": %w", err)
		}
		if k != nil {
			out.TopK = *k
		}
	}
	return out, nil
}
