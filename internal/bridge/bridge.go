// Package bridge implements the one-shot request handler: probe the store
// backend, read one JSON request, ensure the collection, run one store
// operation and write at most one JSON line.
package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RM-RAMASAMY/GreenLoop/internal/vectorstore"
)

// Options selects the store and collection a bridge talks to.
type Options struct {
	Backend    string
	Addr       string
	Collection string
	Dimension  int
	// Timeout bounds the store calls. Zero means no bound.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Bridge handles a single request. It holds no state between runs.
type Bridge struct {
	opts   Options
	logger *slog.Logger
}

// New returns a Bridge for opts.
func New(opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{opts: opts, logger: logger}
}

// Run serves one request from in and writes the response to out. The only
// error it returns is a failure to write to out; every other fault is
// reported in-band as an error response.
func (b *Bridge) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	reqID := uuid.NewString()
	log := b.logger.With("request_id", reqID, "backend", b.opts.Backend)

	// The probe runs before stdin is touched so a host without the store can
	// carry on without feeding us input.
	if avail := vectorstore.Probe(b.opts.Backend); !avail.Available {
		log.Debug("Vector store unavailable, skipping", "reason", avail.Reason)
		return WriteResponse(out, Skipped(avail.Reason))
	}

	resp, emit := b.serve(ctx, in, log)
	if !emit {
		log.Debug("Empty input, nothing to do")
		return nil
	}
	if resp.Status == StatusError {
		log.Warn("Bridge request failed", "error", resp.Message)
	}
	return WriteResponse(out, resp)
}

// serve is the single fault boundary. Everything after the availability
// probe runs inside it, including panics from store clients.
func (b *Bridge) serve(ctx context.Context, in io.Reader, log *slog.Logger) (resp Response, emit bool) {
	defer func() {
		if r := recover(); r != nil {
			resp, emit = Failure(fmt.Errorf("panic: %v", r), debug.Stack()), true
		}
	}()

	input, err := io.ReadAll(in)
	if err != nil {
		return Failure(fmt.Errorf("read request: %w", err), debug.Stack()), true
	}
	if strings.TrimSpace(string(input)) == "" {
		return Response{}, false
	}

	req, err := ParseRequest(input)
	if err != nil {
		return Failure(err, debug.Stack()), true
	}
	log.Debug("Bridge request", "command", req.Command)

	resp, err = b.dispatch(ctx, req, log)
	if err != nil {
		return Failure(err, debug.Stack()), true
	}
	return resp, true
}

// dispatch opens the scoped store connection, ensures the collection and
// runs the command. The connection is closed on every path.
func (b *Bridge) dispatch(ctx context.Context, req Request, log *slog.Logger) (Response, error) {
	var (
		upsert UpsertData
		search SearchData
		err    error
	)
	switch req.Command {
	case CommandUpsert:
		upsert, err = req.Upsert()
	case CommandSearch:
		search, err = req.Search()
	}
	if err != nil {
		return Response{}, err
	}

	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	client, err := vectorstore.Open(ctx, b.opts.Backend, b.opts.Addr)
	if err != nil {
		return Response{}, err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			log.Warn("Failed to close vector store client", "error", cerr)
		}
	}()

	if err := b.ensureCollection(ctx, client, log); err != nil {
		return Response{}, err
	}

	switch req.Command {
	case CommandUpsert:
		if err := client.Upsert(ctx, b.opts.Collection, upsert.ID, upsert.Vector, upsert.Payload); err != nil {
			return Response{}, fmt.Errorf("upsert: %w", err)
		}
		return Success(), nil

	case CommandSearch:
		results, err := client.Search(ctx, b.opts.Collection, search.Vector, search.TopK)
		if err != nil {
			return Response{}, fmt.Errorf("search: %w", err)
		}
		hits := make([]Hit, len(results))
		for i, r := range results {
			hits[i] = Hit{ID: r.ID, Score: r.Score, Payload: r.Payload}
		}
		return SearchSuccess(hits), nil

	default:
		return Response{}, nil
	}
}

// ensureCollection checks, then creates. Concurrent bridges may both create;
// the store decides the outcome and our backends treat it as success.
func (b *Bridge) ensureCollection(ctx context.Context, client vectorstore.Client, log *slog.Logger) error {
	ok, err := client.HasCollection(ctx, b.opts.Collection)
	if err != nil {
		return fmt.Errorf("has_collection %q: %w", b.opts.Collection, err)
	}
	if ok {
		return nil
	}
	if err := client.CreateCollection(ctx, b.opts.Collection, b.opts.Dimension); err != nil {
		return fmt.Errorf("create_collection %q: %w", b.opts.Collection, err)
	}
	log.Info("Created vector collection", "collection", b.opts.Collection, "dimension", b.opts.Dimension)
	return nil
}
