package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benaskins/secretkit/internal/backend"
	"github.com/benaskins/secretkit/native"
	"github.com/benaskins/secretkit/secret"
)

// session is one CLI invocation's connection to the service.
type session struct {
	backend *backend.Backend
	loop    *native.Loop
	client  *secret.Client
}

func openSession() (*session, error) {
	b, err := backend.Open(cfg, "cli")
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", cfg.Backend, err)
	}
	loop := native.NewLoop()
	lib := native.New(loop, b.Store, native.WithLogger(slog.With("component", "native")))
	return &session{
		backend: b,
		loop:    loop,
		client:  secret.NewClient(lib, secret.WithLogger(slog.Default())),
	}, nil
}

func (s *session) Close() {
	if err := s.client.Close(); err != nil {
		slog.Warn("closing client", "error", err)
	}
	if err := s.backend.Close(); err != nil {
		slog.Warn("closing backend", "error", err)
	}
}

// await issues one operation and runs the loop until its continuation
// has been called.
func await[T any](s *session, issue func(cont func(T, error)) error) (T, error) {
	var (
		value  T
		result error
	)
	if err := issue(func(v T, err error) {
		value, result = v, err
		s.loop.Quit()
	}); err != nil {
		return value, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.loop.Run(ctx); err != nil {
		return value, fmt.Errorf("waiting for service: %w", err)
	}
	return value, result
}

// issued adapts an operation that reports every error through its
// continuation.
func issued[T any](start func(cont func(T, error))) func(cont func(T, error)) error {
	return func(cont func(T, error)) error {
		start(cont)
		return nil
	}
}

func (s *session) service() (*secret.Service, error) {
	return await(s, issued(func(cont func(*secret.Service, error)) {
		s.client.GetService(secret.ServiceFlags{OpenSession: true, LoadCollections: true}, cont)
	}))
}

func (s *session) collection(alias string) (*secret.Collection, error) {
	return await(s, issued(func(cont func(*secret.Collection, error)) {
		s.client.CollectionForAlias(alias, cont)
	}))
}
