package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Wire types shared with the secretd API.
type (
	CreateCollectionRequest struct {
		Label string `json:"label"`
		Alias string `json:"alias,omitempty"`
	}

	LockRequest struct {
		Locked bool `json:"locked"`
	}

	CreateItemRequest struct {
		Item    ItemRecord `json:"item"`
		Replace bool       `json:"replace"`
	}

	LogsResponse struct {
		Lines []string `json:"lines"`
	}

	ErrorResponse struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeNotFound = "not_found"
	CodeLocked   = "locked"
	CodeInvalid  = "invalid"
	CodeInternal = "internal"
)

// ErrorCode classifies err for the wire.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrLocked):
		return CodeLocked
	default:
		return CodeInternal
	}
}

// ErrUnavailable is returned when the daemon cannot be reached.
var ErrUnavailable = errors.New("secret daemon unavailable")

// RemoteStore talks to a secretd daemon over its unix-socket API.
type RemoteStore struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// RemoteOption configures a RemoteStore.
type RemoteOption func(*RemoteStore)

// WithHTTPClient replaces the unix-socket transport, e.g. for httptest.
func WithHTTPClient(client *http.Client, baseURL string) RemoteOption {
	return func(s *RemoteStore) {
		s.client = client
		s.baseURL = baseURL
	}
}

// WithRateLimit bounds the request rate sent to the daemon.
func WithRateLimit(perSecond float64, burst int) RemoteOption {
	return func(s *RemoteStore) {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewRemoteStore creates a store backed by the daemon listening on socketPath.
func NewRemoteStore(socketPath string, opts ...RemoteOption) *RemoteStore {
	s := &RemoteStore{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
		baseURL: "http://secretd",
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RemoteStore) do(ctx context.Context, method, path string, body, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v (is secretd running?)", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			return fmt.Errorf("API error %d: %s", resp.StatusCode, data)
		}
		switch e.Code {
		case CodeNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, e.Error)
		case CodeLocked:
			return fmt.Errorf("%w: %s", ErrLocked, e.Error)
		}
		return fmt.Errorf("API error %d: %s", resp.StatusCode, e.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Logs fetches up to n of the daemon's most recent log lines.
func (s *RemoteStore) Logs(ctx context.Context, n int) ([]string, error) {
	var resp LogsResponse
	if err := s.do(ctx, http.MethodGet, "/v1/logs?n="+strconv.Itoa(n), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Lines, nil
}

func (s *RemoteStore) Collections(ctx context.Context) ([]CollectionRecord, error) {
	var result []CollectionRecord
	err := s.do(ctx, http.MethodGet, "/v1/collections", nil, &result)
	return result, err
}

func (s *RemoteStore) CreateCollection(ctx context.Context, label, alias string) (CollectionRecord, error) {
	var c CollectionRecord
	err := s.do(ctx, http.MethodPost, "/v1/collections", CreateCollectionRequest{Label: label, Alias: alias}, &c)
	return c, err
}

func (s *RemoteStore) DeleteCollection(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, "/v1/collections/"+url.PathEscape(id), nil, nil)
}

func (s *RemoteStore) ResolveAlias(ctx context.Context, alias string) (CollectionRecord, error) {
	var c CollectionRecord
	err := s.do(ctx, http.MethodGet, "/v1/aliases/"+url.PathEscape(alias), nil, &c)
	return c, err
}

func (s *RemoteStore) SetLocked(ctx context.Context, id string, locked bool) error {
	return s.do(ctx, http.MethodPut, "/v1/collections/"+url.PathEscape(id)+"/lock", LockRequest{Locked: locked}, nil)
}

func (s *RemoteStore) CreateItem(ctx context.Context, item ItemRecord, replace bool) (ItemRecord, error) {
	var created ItemRecord
	err := s.do(ctx, http.MethodPost, "/v1/items", CreateItemRequest{Item: item, Replace: replace}, &created)
	return created, err
}

func (s *RemoteStore) DeleteItem(ctx context.Context, collection, id string) error {
	return s.do(ctx, http.MethodDelete,
		"/v1/collections/"+url.PathEscape(collection)+"/items/"+url.PathEscape(id), nil, nil)
}

func (s *RemoteStore) Search(ctx context.Context, q Query) ([]ItemRecord, error) {
	var result []ItemRecord
	err := s.do(ctx, http.MethodPost, "/v1/search", q, &result)
	return result, err
}

func (s *RemoteStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
