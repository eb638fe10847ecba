// Package secret stores and retrieves secrets through an asynchronous secret
// service.
//
// Applications declare a Schema describing the attributes of a family of
// secrets, then store, look up, search and clear secrets by those
// attributes. Every operation returns immediately; its continuation runs
// later on the service's dispatch loop, exactly once, with either a result
// or an error. Argument errors are returned synchronously and the
// continuation is not called.
//
// The dispatch loop must keep running while operations are in flight, and
// must not be torn down until Pending reports zero.
package secret

import (
	"log/slog"

	"github.com/benaskins/secretkit/internal/bridge"
	"github.com/benaskins/secretkit/native"
	"github.com/prometheus/client_golang/prometheus"
)

// Client issues operations against a native secret service.
type Client struct {
	lib    *native.Library
	bridge *bridge.Bridge
	logger *slog.Logger
}

type clientOptions struct {
	logger *slog.Logger
	reg    prometheus.Registerer
}

// Option configures a Client.
type Option func(*clientOptions)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithRegisterer registers operation metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *clientOptions) {
		o.reg = reg
	}
}

// NewClient wraps lib. The client takes ownership of lib and closes it on
// Close.
func NewClient(lib *native.Library, opts ...Option) *Client {
	o := clientOptions{logger: slog.With("component", "secret")}
	for _, opt := range opts {
		opt(&o)
	}

	bopts := []bridge.Option{
		bridge.WithLogger(o.logger.With("layer", "bridge")),
		bridge.WithErrorMapper(serviceError),
	}
	if o.reg != nil {
		bopts = append(bopts, bridge.WithRegisterer(o.reg))
	}
	return &Client{
		lib:    lib,
		bridge: bridge.New(bopts...),
		logger: o.logger,
	}
}

// Pending returns the number of operations awaiting completion.
func (c *Client) Pending() int { return c.bridge.Pending() }

// Close closes the underlying library. It refuses while operations are in
// flight, since their continuations would never be released.
func (c *Client) Close() error {
	if n := c.bridge.Pending(); n > 0 {
		c.logger.Warn("close refused", "pending", n)
		return ErrOperationsInFlight
	}
	c.lib.Close()
	return nil
}

// boolResult is the decode step of store, clear and delete completions.
func boolResult(ok bool) (bool, error) { return ok, nil }

// itemList copies a native item list into handles and frees the list.
// Native order is preserved. An empty list yields an empty slice.
func (c *Client) itemList(list *native.List) ([]*Item, error) {
	defer c.lib.Allocator().ListFree(list)
	items := make([]*Item, 0, list.Length())
	for l := list; l != nil; l = l.Next {
		ni, ok := l.Data.(*native.Item)
		if !ok {
			return nil, ErrDecode
		}
		items = append(items, &Item{client: c, native: ni})
	}
	return items, nil
}

// collectionList is itemList for collections.
func (c *Client) collectionList(list *native.List) ([]*Collection, error) {
	defer c.lib.Allocator().ListFree(list)
	collections := make([]*Collection, 0, list.Length())
	for l := list; l != nil; l = l.Next {
		nc, ok := l.Data.(*native.Collection)
		if !ok {
			return nil, ErrDecode
		}
		collections = append(collections, &Collection{client: c, native: nc})
	}
	return collections, nil
}
