package vault

import (
	"context"
	"fmt"

	"github.com/benaskins/secretkit/internal/audit"
)

// AuditedStore wraps a Store and records every access to an audit log.
type AuditedStore struct {
	inner Store
	audit *audit.Logger
	actor string // "cli" or "daemon"
}

// NewAuditedStore wraps an existing store with audit logging.
func NewAuditedStore(inner Store, auditLog *audit.Logger, actor string) *AuditedStore {
	return &AuditedStore{
		inner: inner,
		audit: auditLog,
		actor: actor,
	}
}

// log is best-effort: a failure to log never blocks the operation.
func (s *AuditedStore) log(e audit.Entry, err error) {
	e.Actor = s.actor
	if err != nil {
		e.Error = err.Error()
	}
	s.audit.Log(e)
}

func (s *AuditedStore) Collections(ctx context.Context) ([]CollectionRecord, error) {
	return s.inner.Collections(ctx)
}

func (s *AuditedStore) CreateCollection(ctx context.Context, label, alias string) (CollectionRecord, error) {
	c, err := s.inner.CreateCollection(ctx, label, alias)
	s.log(audit.Entry{Action: audit.ActionCollectionCreate, Collection: c.ID, Label: label}, err)
	if err != nil {
		return CollectionRecord{}, fmt.Errorf("audited store create collection: %w", err)
	}
	return c, nil
}

func (s *AuditedStore) DeleteCollection(ctx context.Context, id string) error {
	err := s.inner.DeleteCollection(ctx, id)
	s.log(audit.Entry{Action: audit.ActionCollectionDelete, Collection: id}, err)
	if err != nil {
		return fmt.Errorf("audited store delete collection: %w", err)
	}
	return nil
}

func (s *AuditedStore) ResolveAlias(ctx context.Context, alias string) (CollectionRecord, error) {
	return s.inner.ResolveAlias(ctx, alias)
}

func (s *AuditedStore) SetLocked(ctx context.Context, id string, locked bool) error {
	action := audit.ActionCollectionUnlock
	if locked {
		action = audit.ActionCollectionLock
	}
	err := s.inner.SetLocked(ctx, id, locked)
	s.log(audit.Entry{Action: action, Collection: id}, err)
	if err != nil {
		return fmt.Errorf("audited store set locked: %w", err)
	}
	return nil
}

func (s *AuditedStore) CreateItem(ctx context.Context, item ItemRecord, replace bool) (ItemRecord, error) {
	created, err := s.inner.CreateItem(ctx, item, replace)
	s.log(audit.Entry{
		Action:     audit.ActionItemWrite,
		Collection: item.Collection,
		Item:       created.ID,
		Label:      item.Label,
		Schema:     item.Schema,
	}, err)
	if err != nil {
		return ItemRecord{}, fmt.Errorf("audited store create item: %w", err)
	}
	return created, nil
}

func (s *AuditedStore) DeleteItem(ctx context.Context, collection, id string) error {
	err := s.inner.DeleteItem(ctx, collection, id)
	s.log(audit.Entry{Action: audit.ActionItemDelete, Collection: collection, Item: id}, err)
	if err != nil {
		return fmt.Errorf("audited store delete item: %w", err)
	}
	return nil
}

// Search logs one read entry per returned item, since every result may
// carry its secret back to the caller.
func (s *AuditedStore) Search(ctx context.Context, q Query) ([]ItemRecord, error) {
	items, err := s.inner.Search(ctx, q)
	if err != nil {
		s.log(audit.Entry{Action: audit.ActionItemRead, Collection: q.Collection, Schema: q.Schema}, err)
		return nil, fmt.Errorf("audited store search: %w", err)
	}
	for _, item := range items {
		s.log(audit.Entry{
			Action:     audit.ActionItemRead,
			Collection: item.Collection,
			Item:       item.ID,
			Label:      item.Label,
			Schema:     item.Schema,
		}, nil)
	}
	return items, nil
}

func (s *AuditedStore) Close() error {
	return s.inner.Close()
}
