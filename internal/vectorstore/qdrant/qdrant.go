// Package qdrant talks to a Qdrant-compatible vector store over its REST API.
// Importing it registers the "qdrant" backend.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/RM-RAMASAMY/GreenLoop/internal/vectorstore"
)

// BackendName is the registry name of this backend.
const BackendName = "qdrant"

// envelopeKey is the only top-level payload key the bridge writes. The
// caller's payload, whatever its JSON type, lives under it.
const envelopeKey = "_bridge"

// envelope is the stored form of a bridge point's payload. ID holds the JSON
// text of an identifier that had to be remapped to a UUID.
type envelope struct {
	ID      string `json:"id,omitempty"`
	Payload any    `json:"payload"`
}

// pointNamespace seeds the UUIDv5 derived from free-form identifiers.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("greenloop/vector-bridge"))

func init() {
	vectorstore.Register(BackendName, vectorstore.DriverFunc(func(ctx context.Context, addr string) (vectorstore.Client, error) {
		return NewClient(addr, nil)
	}))
}

// Client is a vectorstore.Client backed by Qdrant's HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a client for addr. A bare host:port gets an http://
// scheme. A nil httpClient uses a fresh http.Client.
func NewClient(addr string, httpClient *http.Client) (*Client, error) {
	base, err := baseURL(addr)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: base, client: httpClient}, nil
}

func baseURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("qdrant: empty address")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("qdrant: invalid address %q: %w", addr, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("qdrant: invalid address %q: missing host", addr)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func (c *Client) collectionURL(name string, suffix string) string {
	return c.baseURL + "/collections/" + url.PathEscape(name) + suffix
}

// HasCollection reports whether the collection exists.
func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, c.collectionURL(name, ""), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, statusError("qdrant has_collection", resp)
	}
}

// CreateCollection creates a cosine-distance collection. A conflict from a
// concurrent creator is treated as success.
func (c *Client) CreateCollection(ctx context.Context, name string, dimension int) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	resp, err := c.do(ctx, http.MethodPut, c.collectionURL(name, ""), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return statusError("qdrant create_collection", resp)
	}
	return nil
}

// Upsert stores one point and waits for it to be applied.
func (c *Client) Upsert(ctx context.Context, collection string, id any, vector []float32, payload any) error {
	pid, remapped, err := pointID(id)
	if err != nil {
		return err
	}
	env := envelope{Payload: payload}
	if remapped {
		raw, err := json.Marshal(id)
		if err != nil {
			return fmt.Errorf("qdrant: encode point id: %w", err)
		}
		env.ID = string(raw)
	}

	body := map[string]interface{}{
		"points": []map[string]interface{}{
			{
				"id":      pid,
				"vector":  vector,
				"payload": map[string]interface{}{envelopeKey: env},
			},
		},
	}
	resp, err := c.do(ctx, http.MethodPut, c.collectionURL(collection, "/points?wait=true"), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("qdrant upsert", resp)
	}
	return nil
}

// Search runs a nearest-neighbour query and returns hits in Qdrant's order.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, topK int) ([]vectorstore.Result, error) {
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	resp, err := c.do(ctx, http.MethodPost, c.collectionURL(collection, "/points/search"), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("qdrant search", resp)
	}

	var response struct {
		Result []struct {
			ID      json.RawMessage        `json:"id"`
			Score   float32                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&response); err != nil {
		return nil, fmt.Errorf("qdrant search: decode response: %w", err)
	}

	results := make([]vectorstore.Result, len(response.Result))
	for i, r := range response.Result {
		id, payload := decodePoint(r.ID, r.Payload)
		results[i] = vectorstore.Result{
			ID:      id,
			Score:   r.Score,
			Payload: payload,
		}
	}
	return results, nil
}

// Close releases idle keep-alive connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, target string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("qdrant: encode request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &vectorstore.StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

// pointID maps a caller identifier onto a Qdrant point id. Qdrant accepts only
// unsigned integers and UUIDs; anything else is hashed to a UUIDv5 and
// remapped is true.
func pointID(id any) (pid interface{}, remapped bool, err error) {
	switch v := id.(type) {
	case nil:
		return nil, false, fmt.Errorf("qdrant: point id is null")
	case json.Number:
		// Only the canonical spelling passes through; 042 would come back
		// from Qdrant as 42.
		if n, err := strconv.ParseUint(v.String(), 10, 64); err == nil && strconv.FormatUint(n, 10) == v.String() {
			return n, false, nil
		}
	case string:
		// Qdrant echoes UUIDs in lower-case hyphenated form.
		if u, err := uuid.Parse(v); err == nil && u.String() == v {
			return v, false, nil
		}
	case float64:
		if v >= 0 && v == float64(uint64(v)) {
			return uint64(v), false, nil
		}
	case int:
		if v >= 0 {
			return uint64(v), false, nil
		}
	case uint64:
		return v, false, nil
	}
	// Hash the JSON form so the string "1" and the number 1.0 stay distinct.
	raw, err := json.Marshal(id)
	if err != nil {
		return nil, false, fmt.Errorf("qdrant: unsupported point id %v: %w", id, err)
	}
	return remappedID(raw), true, nil
}

// remappedID derives the point id for an identifier's JSON text.
func remappedID(raw []byte) string {
	return uuid.NewSHA1(pointNamespace, raw).String()
}

// decodePoint undoes the envelope written by Upsert. Points stored by other
// writers are returned with their payload as-is. A remapped identifier is
// restored only when it hashes to the point id Qdrant returned.
func decodePoint(rawID json.RawMessage, payload map[string]interface{}) (any, any) {
	id, err := decodeJSON(rawID)
	if err != nil {
		id = string(rawID)
	}
	if payload == nil {
		return id, nil
	}
	env, ok := payload[envelopeKey].(map[string]interface{})
	if !ok || len(payload) != 1 {
		return id, payload
	}
	value, ok := env["payload"]
	if !ok {
		return id, payload
	}
	if text, ok := env["id"].(string); ok {
		if pid, isString := id.(string); isString && pid == remappedID([]byte(text)) {
			if orig, err := decodeJSON(json.RawMessage(text)); err == nil {
				id = orig
			}
		}
	}
	return id, value
}

func decodeJSON(raw json.RawMessage) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

var _ vectorstore.Client = (*Client)(nil)
