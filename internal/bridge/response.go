package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Status tags a response.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Hit is one search result as reported to the host.
type Hit struct {
	ID      any     `json:"id"`
	Score   float32 `json:"score"`
	Payload any     `json:"payload"`
}

// Response is the single document written to stdout. The zero Response is
// the empty object emitted for unrecognised commands.
type Response struct {
	Status  Status
	Message string
	Trace   string
	// Hits is non-nil only for search responses.
	Hits []Hit
}

// Skipped reports that the store client is not available.
func Skipped(reason string) Response {
	return Response{Status: StatusSkipped, Message: reason}
}

// Success reports a completed upsert.
func Success() Response {
	return Response{Status: StatusSuccess}
}

// SearchSuccess reports a completed search. hits keeps the store's order.
func SearchSuccess(hits []Hit) Response {
	if hits == nil {
		hits = []Hit{}
	}
	return Response{Status: StatusSuccess, Hits: hits}
}

// Failure converts a fault into the error shape. stack is appended to the
// trace after the error chain.
func Failure(err error, stack []byte) Response {
	return Response{Status: StatusError, Message: err.Error(), Trace: trace(err, stack)}
}

// MarshalJSON emits exactly the fields each status carries.
func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Status {
	case "":
		return []byte("{}"), nil
	case StatusSuccess:
		if r.Hits != nil {
			return json.Marshal(struct {
				Status Status `json:"status"`
				Hits   []Hit  `json:"hits"`
			}{r.Status, r.Hits})
		}
		return json.Marshal(struct {
			Status Status `json:"status"`
		}{r.Status})
	case StatusError:
		return json.Marshal(struct {
			Status  Status `json:"status"`
			Message string `json:"message"`
			Trace   string `json:"trace"`
		}{r.Status, r.Message, r.Trace})
	default:
		return json.Marshal(struct {
			Status  Status `json:"status"`
			Message string `json:"message"`
		}{r.Status, r.Message})
	}
}

// WriteResponse writes r as one JSON line.
func WriteResponse(w io.Writer, r Response) error {
	b, err := json.Marshal(r)
	if err != nil {
		// Hits carry caller payloads; fall back to an error line rather than
		// writing nothing.
		b, _ = json.Marshal(Failure(fmt.Errorf("encode response: %w", err), nil))
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// trace renders the wrapped error chain, one cause per line, followed by
// the goroutine stack captured where the fault was caught.
func trace(err error, stack []byte) string {
	var b strings.Builder
	b.WriteString("error chain (most recent first):\n")
	for depth, e := 0, err; e != nil; depth, e = depth+1, errors.Unwrap(e) {
		fmt.Fprintf(&b, "  %d. %T: %v\n", depth, e, e)
	}
	if len(stack) > 0 {
		b.WriteString("\n")
		b.Write(stack)
	}
	return strings.TrimRight(b.String(), "\n")
}
