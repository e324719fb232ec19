package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/RM-RAMASAMY/GreenLoop/internal/vectorstore"
)

type fakePoint struct {
	ID      json.RawMessage
	Vector  []float32
	Payload map[string]interface{}
}

// fakeQdrant implements the handful of REST endpoints the client uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]int
	points      map[string][]fakePoint
	creates     int
	failSearch  bool
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{collections: map[string]int{}, points: map[string][]fakePoint{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "collections" {
		http.NotFound(w, r)
		return
	}
	name := parts[1]

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if _, ok := f.collections[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection doesn't exist"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{"status":"green"},"status":"ok"}`))

	case len(parts) == 2 && r.Method == http.MethodPut:
		f.creates++
		if _, ok := f.collections[name]; ok {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"status":{"error":"already exists"}}`))
			return
		}
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Vectors.Distance != "Cosine" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.collections[name] = body.Vectors.Size
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))

	case len(parts) == 3 && parts[2] == "points" && r.Method == http.MethodPut:
		if r.URL.Query().Get("wait") != "true" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body struct {
			Points []struct {
				ID      json.RawMessage        `json:"id"`
				Vector  []float32              `json:"vector"`
				Payload map[string]interface{} `json:"payload"`
			} `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, p := range body.Points {
			if len(p.Vector) != f.collections[name] {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"status":{"error":"Wrong input: Vector dimension error"}}`))
				return
			}
			var kept []fakePoint
			for _, existing := range f.points[name] {
				if string(existing.ID) != string(p.ID) {
					kept = append(kept, existing)
				}
			}
			f.points[name] = append(kept, fakePoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))

	case len(parts) == 4 && parts[2] == "points" && parts[3] == "search" && r.Method == http.MethodPost:
		if f.failSearch {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":{"error":"boom"}}`))
			return
		}
		var body struct {
			Vector      []float32 `json:"vector"`
			Limit       int       `json:"limit"`
			WithPayload bool      `json:"with_payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.WithPayload {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		type hit struct {
			ID      json.RawMessage        `json:"id"`
			Score   float32                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		}
		var hits []hit
		for _, p := range f.points[name] {
			var dot float32
			for i := range p.Vector {
				dot += p.Vector[i] * body.Vector[i]
			}
			hits = append(hits, hit{ID: p.ID, Score: dot, Payload: p.Payload})
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > body.Limit {
			hits = hits[:body.Limit]
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": hits, "status": "ok"})

	default:
		http.NotFound(w, r)
	}
}

// with runs fn while holding the fake's lock.
func (f *fakeQdrant) with(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func TestClient_EnsureCollectionFlow(t *testing.T) {
	f, srv := newFakeQdrant(t)
	c, err := NewClient(srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	ok, err := c.HasCollection(ctx, "greenloop_user_context")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected collection to be absent")
	}
	if err := c.CreateCollection(ctx, "greenloop_user_context", 768); err != nil {
		t.Fatal(err)
	}
	var dim int
	f.with(func() { dim = f.collections["greenloop_user_context"] })
	if dim != 768 {
		t.Fatalf("expected dimension 768, got %d", dim)
	}
	ok, err = c.HasCollection(ctx, "greenloop_user_context")
	if err != nil || !ok {
		t.Fatalf("expected collection to exist, ok=%v err=%v", ok, err)
	}

	// A concurrent creator won the race: conflict is not an error.
	if err := c.CreateCollection(ctx, "greenloop_user_context", 768); err != nil {
		t.Fatalf("expected conflict to be ignored, got %v", err)
	}
	var creates int
	f.with(func() { creates = f.creates })
	if creates != 2 {
		t.Fatalf("expected 2 create calls, got %d", creates)
	}
}

func TestClient_UpsertAndSearchRestoresStringIDs(t *testing.T) {
	f, srv := newFakeQdrant(t)
	c, err := NewClient(srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := c.CreateCollection(ctx, "c", 3); err != nil {
		t.Fatal(err)
	}

	if err := c.Upsert(ctx, "c", "msg-a", []float32{1, 0, 0}, map[string]interface{}{"k": "v"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert(ctx, "c", json.Number("42"), []float32{0, 1, 0}, "plain"); err != nil {
		t.Fatal(err)
	}

	var stored []fakePoint
	f.with(func() { stored = append(stored, f.points["c"]...) })
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored points, got %d", len(stored))
	}
	var firstID string
	if err := json.Unmarshal(stored[0].ID, &firstID); err != nil {
		t.Fatalf("expected remapped string id to be a UUID string: %v", err)
	}
	if _, err := uuid.Parse(firstID); err != nil {
		t.Fatalf("expected UUID point id, got %q", firstID)
	}
	if string(stored[1].ID) != "42" {
		t.Fatalf("expected numeric point id 42, got %s", stored[1].ID)
	}

	results, err := c.Search(ctx, "c", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "msg-a" {
		t.Fatalf("expected original id restored, got %#v", results[0].ID)
	}
	payload, ok := results[0].Payload.(map[string]interface{})
	if !ok || payload["k"] != "v" {
		t.Fatalf("unexpected payload %#v", results[0].Payload)
	}
	if len(payload) != 1 {
		t.Fatalf("internal keys leaked into payload %#v", payload)
	}
	if len(stored[0].Payload) != 1 || stored[0].Payload[envelopeKey] == nil {
		t.Fatalf("expected payload stored under %q, got %#v", envelopeKey, stored[0].Payload)
	}
	if results[1].ID != json.Number("42") {
		t.Fatalf("expected numeric id 42, got %#v", results[1].ID)
	}
	if results[1].Payload != "plain" {
		t.Fatalf("expected unwrapped scalar payload, got %#v", results[1].Payload)
	}
}

func TestClient_PayloadShapesRoundTrip(t *testing.T) {
	_, srv := newFakeQdrant(t)
	c, _ := NewClient(srv.URL, nil)
	ctx := context.Background()
	if err := c.CreateCollection(ctx, "c", 2); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		id      any
		payload string
	}{
		{"object using the envelope key", json.Number("1"), `{"_bridge":"x"}`},
		{"object shaped like an envelope", json.Number("2"), `{"_bridge":{"id":"\"spoof\"","payload":1}}`},
		{"keys with the bridge prefix", json.Number("3"), `{"_bridge_id":"spoof","_bridge_value":"x"}`},
		{"null", json.Number("4"), `null`},
		{"scalar", "msg-5", `"plain"`},
		{"empty object", "msg-6", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := decodeJSON(json.RawMessage(tc.payload))
			if err != nil {
				t.Fatal(err)
			}
			if err := c.Upsert(ctx, "c", tc.id, []float32{1, 0}, payload); err != nil {
				t.Fatal(err)
			}
			results, err := c.Search(ctx, "c", []float32{1, 0}, 10)
			if err != nil {
				t.Fatal(err)
			}
			var found bool
			for _, r := range results {
				if r.ID != tc.id {
					continue
				}
				found = true
				got, _ := json.Marshal(r.Payload)
				want, _ := json.Marshal(payload)
				if string(got) != string(want) {
					t.Fatalf("payload changed: got %s, want %s", got, want)
				}
			}
			if !found {
				t.Fatalf("id %#v not returned, got %#v", tc.id, results)
			}
		})
	}
}

func TestDecodePointIgnoresUnverifiedIdentifiers(t *testing.T) {
	pid := uuid.NewString()
	raw, _ := json.Marshal(pid)
	id, payload := decodePoint(raw, map[string]interface{}{
		envelopeKey: map[string]interface{}{"id": `"spoof"`, "payload": "v"},
	})
	if id != pid {
		t.Fatalf("expected stored point id %q, got %#v", pid, id)
	}
	if payload != "v" {
		t.Fatalf("unexpected payload %#v", payload)
	}

	foreign := map[string]interface{}{"title": "written elsewhere"}
	id, payload = decodePoint(json.RawMessage("9"), foreign)
	if id != json.Number("9") {
		t.Fatalf("unexpected id %#v", id)
	}
	if m, ok := payload.(map[string]interface{}); !ok || m["title"] != "written elsewhere" {
		t.Fatalf("expected foreign payload untouched, got %#v", payload)
	}
}

func TestClient_UpsertSameIDReplaces(t *testing.T) {
	f, srv := newFakeQdrant(t)
	c, _ := NewClient(srv.URL, nil)
	ctx := context.Background()
	if err := c.CreateCollection(ctx, "c", 2); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Upsert(ctx, "c", "same", []float32{1, 0}, nil); err != nil {
			t.Fatal(err)
		}
	}
	var n int
	f.with(func() { n = len(f.points["c"]) })
	if n != 1 {
		t.Fatalf("expected deterministic point id to replace, got %d points", n)
	}
}

func TestClient_ErrorsCarryStatus(t *testing.T) {
	f, srv := newFakeQdrant(t)
	c, _ := NewClient(srv.URL, nil)
	ctx := context.Background()
	if err := c.CreateCollection(ctx, "c", 3); err != nil {
		t.Fatal(err)
	}

	err := c.Upsert(ctx, "c", "a", []float32{1}, nil)
	var se *vectorstore.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
	if !strings.Contains(se.Error(), "dimension") {
		t.Fatalf("expected server body in error, got %q", se.Error())
	}

	f.with(func() { f.failSearch = true })
	_, err = c.Search(ctx, "c", []float32{1, 0, 0}, 5)
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 StatusError, got %v", err)
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := NewClient(addr, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.HasCollection(context.Background(), "c"); err == nil {
		t.Fatal("expected error from closed server")
	}
}

func TestBaseURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"localhost:50051", "http://localhost:50051"},
		{"http://qdrant:6333/", "http://qdrant:6333"},
		{"https://example.com/prefix", "https://example.com/prefix"},
	}
	for _, tc := range cases {
		got, err := baseURL(tc.in)
		if err != nil {
			t.Fatalf("baseURL(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("baseURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := baseURL("  "); err == nil {
		t.Error("expected error for empty address")
	}
}

func TestPointID(t *testing.T) {
	u := uuid.NewString()
	if pid, remapped, err := pointID(u); err != nil || remapped || pid != u {
		t.Fatalf("UUID should pass through, got %v %v %v", pid, remapped, err)
	}
	if pid, remapped, err := pointID(json.Number("7")); err != nil || remapped || pid != uint64(7) {
		t.Fatalf("unsigned number should pass through, got %v %v %v", pid, remapped, err)
	}
	a, remapped, err := pointID("1")
	if err != nil || !remapped {
		t.Fatalf("free-form string should be remapped, got %v %v", remapped, err)
	}
	b, _, _ := pointID(json.Number("1.5"))
	c, _, _ := pointID("1.5")
	if b == c {
		t.Fatal("number and string forms must map to different points")
	}
	upper := strings.ToUpper(u)
	if pid, remapped, _ := pointID(upper); !remapped || pid == upper {
		t.Fatalf("non-canonical UUID must be remapped, got %v %v", pid, remapped)
	}
	if _, remapped, _ := pointID(json.Number("042")); !remapped {
		t.Fatal("non-canonical number must be remapped")
	}
	again, _, _ := pointID("1")
	if a != again {
		t.Fatal("remapping must be deterministic")
	}
	if _, _, err := pointID(nil); err == nil {
		t.Fatal("expected error for null id")
	}
}

func TestBackendRegistered(t *testing.T) {
	if a := vectorstore.Probe(BackendName); !a.Available {
		t.Fatalf("expected %s backend to be registered", BackendName)
	}
}
