// Package client talks to the tutoring chat API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samsaffron/tutor/internal/chaterr"
	"github.com/samsaffron/tutor/internal/serve/chat"
	"github.com/samsaffron/tutor/internal/store"
)

// ErrNoActiveStream is returned by Resume when the chat has nothing to replay.
var ErrNoActiveStream = errors.New("no active stream")

// Client is an API client. Guest sessions keep their cookie in the client's
// jar, so reuse one Client per learner.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Jar: jar},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

// do sends req and returns the response for 2xx statuses. Other statuses
// become *chaterr.Error values.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return nil, chaterr.Decode(resp.StatusCode, body)
}

func (c *Client) getJSON(ctx context.Context, method, path string, out any) error {
	req, err := c.newRequest(ctx, method, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// SendMessage posts a learner message and returns the streamed reply.
func (c *Client) SendMessage(ctx context.Context, body chat.ChatRequest) (*EventStream, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return newEventStream(resp.Body), nil
}

// Resume replays the chat's latest stream after sequence number since.
func (c *Client) Resume(ctx context.Context, chatID string, since int64) (*EventStream, error) {
	path := "/api/chat/" + url.PathEscape(chatID) + "/stream?since=" + strconv.FormatInt(since, 10)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		return nil, ErrNoActiveStream
	}
	return newEventStream(resp.Body), nil
}

// Interrupt asks the server to stop generating the chat's current reply.
// Only the chat owner may interrupt; other callers are ignored.
func (c *Client) Interrupt(ctx context.Context, chatID string) error {
	wsURL, err := c.websocketURL("/api/chat/" + url.PathEscape(chatID) + "/ws")
	if err != nil {
		return err
	}
	headers := http.Header{}
	if c.Token != "" {
		headers.Set("Authorization", "Bearer "+c.Token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if c.HTTPClient != nil {
		dialer.Jar = c.HTTPClient.Jar
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusNoContent {
				return ErrNoActiveStream
			}
			if resp.StatusCode >= 400 {
				body, _ := io.ReadAll(resp.Body)
				return chaterr.Decode(resp.StatusCode, body)
			}
		}
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(chat.ClientEvent{Type: "interrupt"}); err != nil {
		return fmt.Errorf("send interrupt: %w", err)
	}
	return conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Client) websocketURL(path string) (string, error) {
	parsed, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	return parsed.String(), nil
}

// DeleteChat deletes a chat and returns it.
func (c *Client) DeleteChat(ctx context.Context, chatID string) (*store.Chat, error) {
	var out store.Chat
	if err := c.getJSON(ctx, http.MethodDelete, "/api/chat?id="+url.QueryEscape(chatID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists the caller's chats, newest first.
func (c *Client) History(ctx context.Context, limit, offset int) (*chat.HistoryResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out chat.HistoryResponse
	if err := c.getJSON(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Messages loads a chat and its messages.
func (c *Client) Messages(ctx context.Context, chatID string) (*chat.MessagesResponse, error) {
	var out chat.MessagesResponse
	if err := c.getJSON(ctx, http.MethodGet, "/api/chat/"+url.PathEscape(chatID)+"/messages", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EventStream reads stream parts from an SSE response body.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	lastSeq int64
}

func newEventStream(body io.ReadCloser) *EventStream {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return &EventStream{body: body, scanner: scanner}
}

// Recv returns the next part, or io.EOF once the server sends [DONE]. A
// body that ends without [DONE] yields io.ErrUnexpectedEOF so callers can
// Resume from LastSeq.
func (s *EventStream) Recv() (chat.StreamPart, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return chat.StreamPart{}, io.EOF
		}
		var p chat.StreamPart
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return chat.StreamPart{}, fmt.Errorf("decode stream part: %w", err)
		}
		if p.Seq > s.lastSeq {
			s.lastSeq = p.Seq
		}
		return p, nil
	}
	if err := s.scanner.Err(); err != nil {
		return chat.StreamPart{}, err
	}
	return chat.StreamPart{}, io.ErrUnexpectedEOF
}

// LastSeq is the sequence number of the last part received.
func (s *EventStream) LastSeq() int64 {
	return s.lastSeq
}

func (s *EventStream) Close() error {
	return s.body.Close()
}
