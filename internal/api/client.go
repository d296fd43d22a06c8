package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gwi.com/chatsync/internal/store"
)

const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultChatTimeout    = 60 * time.Second // generation can be slow
	DefaultUploadTimeout  = 60 * time.Second

	maxErrorBodyBytes = 64 << 10
)

const (
	opListSessions  = "list sessions"
	opCreateSession = "create session"
	opDeleteSession = "delete session"
	opFetchMessages = "fetch messages"
	opSendChat      = "send chat"
	opUploadFile    = "upload file"
	opHealth        = "health"
)

// ClientOpts holds parameters for creating a Client. Zero timeouts fall back
// to the package defaults.
type ClientOpts struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	ChatTimeout    time.Duration
	UploadTimeout  time.Duration
}

// Client talks to the chat backend. Every call applies its own timeout and
// returns a *NetworkError, *TimeoutError or *ServerError on failure. Nothing is
// retried.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	chatTimeout    time.Duration
	uploadTimeout  time.Duration
}

type Health struct {
	Status   string `json:"status" yaml:"status"`
	DB       string `json:"db" yaml:"db"`
	RAGReady bool   `json:"rag_ready" yaml:"rag_ready"`
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type uploadResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewClient(opts ClientOpts) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, errors.Wrap(err, "api: parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("api: base url %q must be http or https", opts.BaseURL)
	}
	if u.Host == "" {
		return nil, errors.Errorf("api: base url %q has no host", opts.BaseURL)
	}

	c := &Client{
		baseURL:        strings.TrimRight(u.String(), "/"),
		httpClient:     opts.HTTPClient,
		requestTimeout: opts.RequestTimeout,
		chatTimeout:    opts.ChatTimeout,
		uploadTimeout:  opts.UploadTimeout,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = DefaultRequestTimeout
	}
	if c.chatTimeout <= 0 {
		c.chatTimeout = DefaultChatTimeout
	}
	if c.uploadTimeout <= 0 {
		c.uploadTimeout = DefaultUploadTimeout
	}
	return c, nil
}

// BaseURL returns the normalized backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListSessions returns the sessions newest first, as ordered by the server.
func (c *Client) ListSessions(ctx context.Context) ([]store.Session, error) {
	var sessions []store.Session
	if err := c.doJSON(ctx, opListSessions, c.requestTimeout, http.MethodGet, nil, &sessions, "sessions"); err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	return sessions, nil
}

func (c *Client) CreateSession(ctx context.Context) (store.Session, error) {
	var session store.Session
	if err := c.doJSON(ctx, opCreateSession, c.requestTimeout, http.MethodPost, nil, &session, "sessions"); err != nil {
		return store.Session{}, err
	}
	if session.ID == "" {
		return store.Session{}, &ServerError{Op: opCreateSession, Status: http.StatusOK, Message: "malformed response: session has no id"}
	}
	return session, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, opDeleteSession, c.requestTimeout, http.MethodDelete, nil, nil, "sessions", sessionID)
}

func (c *Client) FetchMessages(ctx context.Context, sessionID string) ([]store.Message, error) {
	var messages []store.Message
	if err := c.doJSON(ctx, opFetchMessages, c.requestTimeout, http.MethodGet, nil, &messages, "sessions", sessionID, "messages"); err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []store.Message{}
	}
	return messages, nil
}

// SendChat posts a user message for sessionID and returns the assistant reply.
func (c *Client) SendChat(ctx context.Context, message, sessionID string) (string, error) {
	var resp chatResponse
	req := chatRequest{Message: message, SessionID: sessionID}
	if err := c.doJSON(ctx, opSendChat, c.chatTimeout, http.MethodPost, req, &resp, "chat"); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// UploadFile sends data as the multipart field "file" and returns the server's
// confirmation text, which may be empty.
func (c *Client) UploadFile(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	body, formType, err := multipartBody(filename, contentType, data)
	if err != nil {
		return "", errors.Wrapf(err, "api: %s: encode body", opUploadFile)
	}
	var resp uploadResponse
	if err := c.do(ctx, opUploadFile, c.uploadTimeout, http.MethodPost, body, formType, &resp, "upload"); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	if err := c.doJSON(ctx, opHealth, c.requestTimeout, http.MethodGet, nil, &h, "health"); err != nil {
		return Health{}, err
	}
	return h, nil
}

func (c *Client) doJSON(ctx context.Context, op string, timeout time.Duration, method string, in, out interface{}, segments ...string) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "api: %s: encode body", op)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, op, timeout, method, body, contentType, out, segments...)
}

func (c *Client) do(ctx context.Context, op string, timeout time.Duration, method string, body io.Reader, contentType string, out interface{}, segments ...string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.endpoint(segments...)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrapf(err, "api: %s: build request", op)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, op, timeout, err)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("op", op).
		Str("method", method).
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeServerError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return transportError(ctx, op, timeout, err)
		}
		return &ServerError{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

func transportError(ctx context.Context, op string, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Timeout: timeout, Err: err}
	}
	return &NetworkError{Op: op, Err: err}
}

func decodeServerError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	msg := statusMessage(resp.StatusCode)
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && strings.TrimSpace(body.Error) != "" {
		msg = body.Error
	}
	return &ServerError{Op: op, Status: resp.StatusCode, Message: msg}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func multipartBody(filename, contentType string, data []byte) (io.Reader, string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
