// Package lsprpc implements the wire layer: a Content-Length-framed
// JSON-RPC 2.0 connection over a reader/writer pair (ordinarily stdio),
// and the dispatch table binding LSP method names to handlers.
package lsprpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const jsonrpcVersion = "2.0"

// methodCancelRequest is the protocol-level cancellation notification; it
// is handled by the connection itself rather than a registered handler.
const methodCancelRequest = "$/cancelRequest"

// Message is any of the three JSON-RPC message shapes this connection can
// write: a request, a notification, or a response.
type Message interface {
	isMessage()
}

// incoming is the envelope shape of any message read from the client: it
// may be a request (has ID and Method), a notification (has Method, no
// ID), or a response to a server-initiated request (has ID, no Method).
type incoming struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (incoming) isMessage() {}

func (m incoming) isNotification() bool { return len(m.ID) == 0 }

// outgoingNotification is a server-to-client notification.
type outgoingNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func (outgoingNotification) isMessage() {}

// outgoingRequest is a server-to-client request.
type outgoingRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func (outgoingRequest) isMessage() {}

// outgoingResponse is the server's reply to a client request.
type outgoingResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

func (outgoingResponse) isMessage() {}

// ResponseError is a JSON-RPC error object.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string { return e.Message }

// Standard JSON-RPC / LSP error codes.
var (
	ErrParseError       = &ResponseError{Code: -32700, Message: "Parse error"}
	ErrInvalidRequest   = &ResponseError{Code: -32600, Message: "Invalid request"}
	ErrMethodNotFound   = &ResponseError{Code: -32601, Message: "Method not found"}
	ErrInternal         = &ResponseError{Code: -32603, Message: "Internal error"}
	ErrRequestCancelled = &ResponseError{Code: -32800, Message: "Request cancelled"}
)

// MethodHandler answers an LSP request and returns its result. ctx is
// cancelled if the client cancels the request via $/cancelRequest.
type MethodHandler func(ctx context.Context, params json.RawMessage) (any, error)

// NotificationHandler handles a fire-and-forget LSP notification.
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// Conn is a single Content-Length-framed JSON-RPC connection over a
// reader/writer pair (ordinarily stdin/stdout).
type Conn struct {
	reader  *bufio.Reader
	writer  *bufio.Writer
	writeMu sync.Mutex

	log *zap.Logger

	methods       map[string]MethodHandler
	notifications map[string]NotificationHandler

	nextRequestID atomic.Int64

	// inflight maps a request's raw id bytes to the cancel func of the
	// context its handler is running under, for $/cancelRequest.
	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc

	// concurrency bounds how many in-flight requests run at once
	// (notifications dispatch inline on the read loop): a single slow schema fetch must not stall every other request
	// queued behind it, but an unbounded goroutine per message invites
	// reordering storms under heavy edit traffic.
	concurrency int
}

// NewConn returns a Conn reading from r and writing to w.
func NewConn(r io.Reader, w io.Writer, log *zap.Logger, concurrency int) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Conn{
		reader:        bufio.NewReader(r),
		writer:        bufio.NewWriter(w),
		log:           log,
		methods:       make(map[string]MethodHandler),
		notifications: make(map[string]NotificationHandler),
		inflight:      make(map[string]context.CancelFunc),
		concurrency:   concurrency,
	}
}

// HandleMethod registers h to answer requests for method name.
func (c *Conn) HandleMethod(name string, h MethodHandler) {
	c.methods[name] = h
}

// HandleNotification registers h to handle notifications for method name.
func (c *Conn) HandleNotification(name string, h NotificationHandler) {
	c.notifications[name] = h
}

// Notify sends a fire-and-forget notification to the client.
func (c *Conn) Notify(method string, params any) error {
	return c.write(outgoingNotification{JSONRPC: jsonrpcVersion, Method: method, Params: params})
}

// Request sends a server-initiated request to the client. The response is
// not correlated back to a caller — this server only uses it for
// best-effort client requests whose result it doesn't need to await.
func (c *Conn) Request(method string, params any) error {
	id := c.nextRequestID.Add(1)
	return c.write(outgoingRequest{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params})
}

func (c *Conn) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	if _, err := c.writer.Write(body); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *Conn) readMessage() (incoming, error) {
	var msg incoming
	header, err := textproto.NewReader(c.reader).ReadMIMEHeader()
	if err != nil {
		return msg, err
	}
	length, err := strconv.ParseInt(header.Get("Content-Length"), 10, 64)
	if err != nil {
		return msg, errors.New("lsprpc: missing or invalid Content-Length header")
	}
	if err := json.NewDecoder(io.LimitReader(c.reader, length)).Decode(&msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// Serve runs the read loop until the connection errors or exits (an error
// return of nil means a clean "exit" notification was received). The
// initialize request is processed synchronously before any concurrent
// dispatch begins, since no other request may be serviced before
// initialize responds.
func (c *Conn) Serve() error {
	for {
		msg, err := c.readMessage()
		if err != nil {
			return err
		}
		if msg.Method == "initialize" {
			c.dispatch(msg)
			break
		}
		c.log.Warn("dropping message received before initialize", zap.String("method", msg.Method))
	}

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for {
		msg, err := c.readMessage()
		if err != nil {
			g.Wait() //nolint:errcheck // handlers report their own errors
			return err
		}
		if msg.Method == methodCancelRequest {
			// Cancellation must not queue behind the requests it is
			// trying to cancel.
			c.cancelRequest(msg.Params)
			continue
		}
		if msg.Method == "exit" {
			g.Wait() //nolint:errcheck // handlers report their own errors
			c.dispatch(msg)
			return nil
		}
		if msg.isNotification() {
			// Text-sync notifications must observe arrival order; they are
			// cheap (edits apply synchronously, validation is scheduled,
			// not run), so they dispatch inline.
			c.dispatch(msg)
			continue
		}
		g.Go(func() error {
			c.dispatch(msg)
			return nil
		})
	}
}

func (c *Conn) dispatch(msg incoming) {
	if msg.isNotification() {
		c.dispatchNotification(msg)
		return
	}
	c.dispatchRequest(msg)
}

func (c *Conn) dispatchNotification(msg incoming) {
	log := c.log.With(zap.String("method", msg.Method))
	h, ok := c.notifications[msg.Method]
	if !ok {
		log.Debug("no notification handler registered")
		return
	}
	if err := h(context.Background(), msg.Params); err != nil {
		log.Error("notification handler failed", zap.Error(err))
	}
}

func (c *Conn) dispatchRequest(msg incoming) {
	log := c.log.With(zap.String("method", msg.Method))
	h, ok := c.methods[msg.Method]
	if !ok {
		log.Warn("no method handler registered")
		c.reply(msg.ID, nil, ErrMethodNotFound)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	key := string(msg.ID)
	c.inflightMu.Lock()
	c.inflight[key] = cancel
	c.inflightMu.Unlock()
	defer func() {
		c.inflightMu.Lock()
		delete(c.inflight, key)
		c.inflightMu.Unlock()
		cancel()
	}()

	result, err := h(ctx, msg.Params)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.reply(msg.ID, nil, ErrRequestCancelled)
			return
		}
		// A handler that returns a *ResponseError has chosen its own
		// protocol error; pass it through instead of wrapping.
		var rerr *ResponseError
		if errors.As(err, &rerr) {
			c.reply(msg.ID, nil, rerr)
			return
		}
		log.Error("method handler failed", zap.Error(err))
		c.reply(msg.ID, nil, &ResponseError{Code: ErrInternal.Code, Message: err.Error()})
		return
	}
	c.reply(msg.ID, result, nil)
}

// cancelRequest aborts the in-flight request named by a $/cancelRequest
// notification. A cancel for an id that already completed (or never
// existed) is a no-op.
func (c *Conn) cancelRequest(params json.RawMessage) {
	var p struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(params, &p); err != nil || len(p.ID) == 0 {
		return
	}
	c.inflightMu.Lock()
	cancel, ok := c.inflight[string(p.ID)]
	c.inflightMu.Unlock()
	if ok {
		cancel()
	}
}

func (c *Conn) reply(id json.RawMessage, result any, rerr *ResponseError) {
	resp := outgoingResponse{JSONRPC: jsonrpcVersion, ID: id, Result: result, Error: rerr}
	if err := c.write(resp); err != nil {
		c.log.Error("failed to write response", zap.Error(err))
	}
}
