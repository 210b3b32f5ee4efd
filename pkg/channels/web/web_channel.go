package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"ebpro/pkg/api"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds a single request body or WebSocket frame.
const maxBodyBytes = 1 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Same permissive policy as the HTTP CORS headers
	},
}

type WebConfig struct {
	Host string `json:"host"` // Default: all interfaces
	Port int    `json:"port"` // Default: 8000
}

// RunRequest is the body of POST /run and of every /ws text frame.
type RunRequest struct {
	Text  string         `json:"text"`
	Args  map[string]any `json:"args"`
	Token string         `json:"token"`
}

// ActionRequest is the body of POST /actions/{action}.
type ActionRequest struct {
	Args  map[string]any `json:"args"`
	Token string         `json:"token"`
}

// RunResponse is the success body.
type RunResponse struct {
	OK     bool       `json:"ok"`
	Action api.Action `json:"action"`
	File   string     `json:"file,omitempty"`
	Notes  string     `json:"notes,omitempty"`
}

// ErrorResponse is the failure body.
type ErrorResponse struct {
	Detail api.ErrorInfo `json:"detail"`
}

// SocketFrame is a /ws reply. Result frames carry the RunResponse fields
// with the same omitempty rules, error frames carry Detail.
type SocketFrame struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	OK        bool           `json:"ok,omitempty"`
	Action    api.Action     `json:"action,omitempty"`
	File      string         `json:"file,omitempty"`
	Notes     string         `json:"notes,omitempty"`
	Detail    *api.ErrorInfo `json:"detail,omitempty"`
}

type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(websocket.TextMessage, data)
}

type WebChannel struct {
	config WebConfig
	server *http.Server
	mu     sync.Mutex
}

func NewWebChannel(cfg WebConfig) *WebChannel {
	return &WebChannel{config: cfg}
}

func (c *WebChannel) ID() string {
	return "web"
}

// Addr returns the address the server is listening on, or "" before Start.
func (c *WebChannel) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server == nil {
		return ""
	}
	return c.server.Addr
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	addr := net.JoinHostPort(c.config.Host, fmt.Sprint(c.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	c.mu.Lock()
	c.server = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           c.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	slog.Info("Web API listening", "addr", server.Addr)

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web API server error", "error", err)
		}
	}()

	return nil
}

func (c *WebChannel) Stop() error {
	c.mu.Lock()
	server := c.server
	c.mu.Unlock()
	if server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Handler returns the HTTP routes bound to ctx.
func (c *WebChannel) Handler(ctx api.ChannelContext) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    api.Version,
			"build_date": api.ResolvedBuildDate(),
			"commands":   ctx.Actions(),
		})
	})
	mux.HandleFunc("POST /run", func(w http.ResponseWriter, r *http.Request) {
		c.handleRun(w, r, ctx)
	})
	mux.HandleFunc("POST /actions/{action}", func(w http.ResponseWriter, r *http.Request) {
		c.handleAction(w, r, ctx)
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, ctx)
	})
	return withCORS(mux)
}

func (c *WebChannel) handleRun(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	var req RunRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "", err)
		return
	}

	in := &api.Instruction{
		Session: sessionFor(r),
		Text:    req.Text,
		Args:    stringifyArgs(req.Args),
		Token:   tokenFor(req.Token, r),
	}
	res, err := ctx.Handle(r.Context(), in)
	if err != nil {
		writeError(w, in.Session.RequestID, err)
		return
	}
	writeResult(w, in.Session.RequestID, res)
}

func (c *WebChannel) handleAction(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	var req ActionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "", err)
		return
	}

	call := &api.ActionCall{
		Session: sessionFor(r),
		Action:  api.Action(r.PathValue("action")),
		Args:    stringifyArgs(req.Args),
		Token:   tokenFor(req.Token, r),
	}
	res, err := ctx.Execute(r.Context(), call)
	if err != nil {
		writeError(w, call.Session.RequestID, err)
		return
	}
	writeResult(w, call.Session.RequestID, res)
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS Upgrade failed", "error", err)
		return
	}

	// Wrap connection
	conn := &SafeConn{Conn: rawConn}
	conn.SetReadLimit(maxBodyBytes)
	defer conn.Close()

	headerToken := r.Header.Get("X-API-Token")
	slog.Info("WebSocket client connected", "remote", r.RemoteAddr)

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("WebSocket closed unexpectedly", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		var req RunRequest
		if err := json.Unmarshal(msgBytes, &req); err != nil {
			req = RunRequest{Text: string(msgBytes)} // Plain text frames carry just the instruction
		}
		token := req.Token
		if token == "" {
			token = headerToken
		}

		in := &api.Instruction{
			Session: api.SessionContext{ChannelID: "web", UserID: r.RemoteAddr, Username: "WebSocket"},
			Text:    req.Text,
			Args:    stringifyArgs(req.Args),
			Token:   token,
		}
		res, err := ctx.Handle(r.Context(), in)

		frame := SocketFrame{Type: "result", RequestID: in.Session.RequestID}
		if err != nil {
			info := api.Describe(err)
			frame.Type, frame.Detail = "error", &info
		} else {
			frame.OK, frame.Action, frame.File, frame.Notes = true, res.Action, res.File, res.Notes
		}
		if err := conn.WriteJSON(frame); err != nil {
			slog.Error("Failed to write WebSocket reply", "error", err)
			return
		}
	}
}

// badBody is returned for a request whose body is not a JSON object.
func badBody(err error) error {
	return api.NewFailure(api.KindClassification,
		"Некоректне тіло запиту: очікується JSON-об'єкт.",
		"Надішліть JSON з полями text, args та token.").Wrap(err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return badBody(err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badBody(err)
	}
	return nil
}

func sessionFor(r *http.Request) api.SessionContext {
	return api.SessionContext{
		ChannelID: "web",
		UserID:    r.RemoteAddr,
		Username:  "WebUser",
		RequestID: r.Header.Get("X-Request-ID"),
	}
}

// tokenFor prefers the body token and falls back to the X-API-Token header.
func tokenFor(body string, r *http.Request) string {
	if body != "" {
		return body
	}
	return r.Header.Get("X-API-Token")
}

// stringifyArgs converts decoded JSON values to strings. Null values are dropped.
func stringifyArgs(args map[string]any) map[string]string {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]string, len(args))
	for k, v := range args {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code api.ErrorCode) int {
	switch code {
	case api.CodeUnauthorized:
		return http.StatusUnauthorized
	case api.CodeInvalidInstruction, api.CodeMissingArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, requestID string, res *api.Result) {
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	writeJSON(w, http.StatusOK, RunResponse{OK: true, Action: res.Action, File: res.File, Notes: res.Notes})
}

func writeError(w http.ResponseWriter, requestID string, err error) {
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	info := api.Describe(err)
	writeJSON(w, StatusFor(info.Code), ErrorResponse{Detail: info})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal response", "error", err)
		http.Error(w, `{"detail":{"code":"internal_error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// withCORS allows every origin, method and header, with credentials.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", r.Header.Get("Access-Control-Request-Method"))
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
