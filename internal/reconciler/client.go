package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/tablekeep/tablekeep/internal/model"
	appErr "github.com/tablekeep/tablekeep/internal/pkg/errors"
)

// Client talks to the tablekeep API on behalf of one holder. It
// implements Store for the toggle protocol and exposes the lock and
// subscription surface the reconciler needs.
type Client struct {
	baseURL string
	token   string
	holder  string
	httpc   *http.Client
}

func NewClient(baseURL, token, holder string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		holder:  holder,
		httpc:   httpc,
	}
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Name    string          `json:"name"`
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	} `json:"error"`
}

type conflictDetail struct {
	LockedBy   string     `json:"locked_by"`
	ExpiresAt  int64      `json:"expires_at"`
	CurrentRow *model.Row `json:"current_row"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		// transport failures mean local state can no longer be trusted;
		// callers surface this with a reload suggestion
		return fmt.Errorf("transport: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("transport: decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return c.asError(resp.StatusCode, &env)
	}
	if out != nil && env.Data != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *Client) asError(status int, env *apiEnvelope) error {
	name := ""
	var detail conflictDetail
	if env.Error != nil {
		name = env.Error.Name
		if env.Error.Detail != nil {
			_ = json.Unmarshal(env.Error.Detail, &detail)
		}
	}
	switch {
	case name == "version_conflict":
		return &appErr.VersionConflictError{Current: detail.CurrentRow}
	case name == "lock_held":
		return &appErr.LockHeldError{Holder: detail.LockedBy, ExpiresAt: detail.ExpiresAt}
	case status == http.StatusNotFound:
		return appErr.ErrNotFound
	case status == http.StatusUnauthorized:
		return appErr.ErrUnauthorized
	case status == http.StatusUnprocessableEntity, status == http.StatusBadRequest:
		return appErr.ErrInvalid
	case status == http.StatusConflict:
		return appErr.ErrConflict
	default:
		return appErr.ErrInternal
	}
}

func (c *Client) FetchRow(ctx context.Context, rowID string) (*model.Row, error) {
	var row model.Row
	if err := c.do(ctx, http.MethodGet, "/rows/"+url.PathEscape(rowID), nil, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (c *Client) FetchPage(ctx context.Context, pageID string) ([]model.Row, error) {
	var out struct {
		Rows []model.Row `json:"rows"`
	}
	if err := c.do(ctx, http.MethodGet, "/rows?page_id="+url.QueryEscape(pageID), nil, &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

func (c *Client) UpdateRow(ctx context.Context, rowID string, fields model.FieldMap, flags model.ReviewFlags, expectedVersion int64) (*model.Row, error) {
	body := map[string]interface{}{
		"fields":           fields,
		"review_flags":     flags,
		"expected_version": expectedVersion,
		"holder":           c.holder,
	}
	var out struct {
		Version int64 `json:"version"`
	}
	if err := c.do(ctx, http.MethodPut, "/rows/"+url.PathEscape(rowID), body, &out); err != nil {
		return nil, err
	}
	return &model.Row{ID: rowID, Fields: fields, ReviewFlags: flags, Version: out.Version}, nil
}

func (c *Client) AcquireLock(ctx context.Context, rowID string) error {
	return c.do(ctx, http.MethodPost, "/locks/"+url.PathEscape(rowID), map[string]string{"holder": c.holder}, nil)
}

func (c *Client) ReleaseLock(ctx context.Context, rowID string) error {
	return c.do(ctx, http.MethodDelete, "/locks/"+url.PathEscape(rowID), map[string]string{"holder": c.holder}, nil)
}

// ReleaseAllLocks is the disconnect/tab-close cleanup; best effort by
// contract, so callers may ignore the error.
func (c *Client) ReleaseAllLocks(ctx context.Context) (int, error) {
	var out struct {
		ReleasedCount int `json:"released_count"`
	}
	if err := c.do(ctx, http.MethodDelete, "/locks", map[string]string{"holder": c.holder}, &out); err != nil {
		return 0, err
	}
	return out.ReleasedCount, nil
}

// Subscribe opens the event stream for one page topic and decodes frames
// onto the returned channel. The channel closes when the stream drops for
// any reason; the consumer must then poll a fresh snapshot before
// trusting local state.
func (c *Client) Subscribe(ctx context.Context, documentID, pageID string) (<-chan model.Event, error) {
	wsURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/subscribe"
	q := wsURL.Query()
	q.Set("document_id", documentID)
	q.Set("page_id", pageID)
	q.Set("token", c.token)
	wsURL.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	events := make(chan model.Event)
	done := make(chan struct{})
	go func() {
		defer close(events)
		defer close(done)
		defer func() { _ = conn.Close() }()
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ev, err := model.DecodeEvent(payload)
			if err != nil {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		// unblocks the reader on cancellation; exits with the reader when
		// the stream drops server-side so neither goroutine outlives it
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	return events, nil
}
