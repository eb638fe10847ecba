package native

import (
	"context"
	"fmt"
)

const (
	tagServiceGet             = "service_get"
	tagServiceLoadCollections = "service_load_collections"
	tagServiceLock            = "service_lock"
	tagServiceUnlock          = "service_unlock"
)

// ServiceGet opens a session with the service.
func (l *Library) ServiceGet(flags ServiceFlags, cb AsyncReadyCallback, userData uintptr) {
	l.submit(nil, tagServiceGet, cb, userData, func(ctx context.Context) (any, error) {
		svc := &Service{lib: l, flags: flags}
		if flags&ServiceLoadCollections != 0 {
			if err := l.loadCollections(ctx, svc); err != nil {
				return nil, err
			}
		}
		return svc, nil
	})
}

// ServiceGetFinish completes ServiceGet.
func (l *Library) ServiceGetFinish(res *AsyncResult) (*Service, error) {
	v, err := res.propagate(nil, tagServiceGet)
	if err != nil {
		return nil, err
	}
	return v.(*Service), nil
}

func (l *Library) loadCollections(ctx context.Context, svc *Service) error {
	records, err := l.store.Collections(ctx)
	if err != nil {
		return err
	}
	collections := make([]*Collection, 0, len(records))
	for _, r := range records {
		collections = append(collections, l.wrapCollection(r))
	}
	svc.mu.Lock()
	svc.collections = collections
	svc.loaded = true
	svc.mu.Unlock()
	return nil
}

// ServiceLoadCollections refreshes the collections held by svc.
func (l *Library) ServiceLoadCollections(svc *Service, cb AsyncReadyCallback, userData uintptr) {
	l.submit(svc, tagServiceLoadCollections, cb, userData, func(ctx context.Context) (any, error) {
		if err := l.loadCollections(ctx, svc); err != nil {
			return nil, err
		}
		return true, nil
	})
}

// ServiceLoadCollectionsFinish completes ServiceLoadCollections.
func (l *Library) ServiceLoadCollectionsFinish(svc *Service, res *AsyncResult) (bool, error) {
	v, err := res.propagate(svc, tagServiceLoadCollections)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// ServiceLock locks the given collections.
func (l *Library) ServiceLock(svc *Service, objects []*Collection, cb AsyncReadyCallback, userData uintptr) {
	l.submit(svc, tagServiceLock, cb, userData, func(ctx context.Context) (any, error) {
		return l.setLocked(ctx, objects, true)
	})
}

// ServiceLockFinish completes ServiceLock with the number of collections
// that are now locked.
func (l *Library) ServiceLockFinish(svc *Service, res *AsyncResult) (int, error) {
	v, err := res.propagate(svc, tagServiceLock)
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// ServiceUnlock unlocks the given collections.
func (l *Library) ServiceUnlock(svc *Service, objects []*Collection, cb AsyncReadyCallback, userData uintptr) {
	l.submit(svc, tagServiceUnlock, cb, userData, func(ctx context.Context) (any, error) {
		return l.setLocked(ctx, objects, false)
	})
}

// ServiceUnlockFinish completes ServiceUnlock with the number of
// collections that are now unlocked.
func (l *Library) ServiceUnlockFinish(svc *Service, res *AsyncResult) (int, error) {
	v, err := res.propagate(svc, tagServiceUnlock)
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (l *Library) setLocked(ctx context.Context, objects []*Collection, locked bool) (any, error) {
	n := 0
	for _, c := range objects {
		if err := l.store.SetLocked(ctx, c.id, locked); err != nil {
			return nil, fmt.Errorf("collection %s: %w", c.label, err)
		}
		n++
	}
	return n, nil
}
