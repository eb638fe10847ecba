package secret

import (
	"github.com/benaskins/secretkit/internal/bridge"
	"github.com/benaskins/secretkit/native"
)

// Service is a session with the secret service.
type Service struct {
	client *Client
	native *native.Service
}

// GetService opens a session. Each call is an independent round trip.
func (c *Client) GetService(flags ServiceFlags, cont func(*Service, error)) {
	bridge.Dispatch(c.bridge, "service_get",
		func(cb native.AsyncReadyCallback, ud uintptr) {
			c.lib.ServiceGet(flags.bits(), cb, ud)
		},
		c.lib.ServiceGetFinish,
		func(ns *native.Service) (*Service, error) {
			if ns == nil {
				return nil, ErrDecode
			}
			return &Service{client: c, native: ns}, nil
		},
		cont,
	)
}

// LoadCollections refreshes the collections held by the session.
func (s *Service) LoadCollections(cont func(bool, error)) {
	lib := s.client.lib
	bridge.Dispatch(s.client.bridge, "service_load_collections",
		func(cb native.AsyncReadyCallback, ud uintptr) {
			lib.ServiceLoadCollections(s.native, cb, ud)
		},
		func(res *native.AsyncResult) (bool, error) {
			return lib.ServiceLoadCollectionsFinish(s.native, res)
		},
		boolResult,
		cont,
	)
}

// Collections returns the loaded collections, or nil if they have not been
// loaded.
func (s *Service) Collections() []*Collection {
	list := s.native.GetCollections()
	if list == nil {
		return nil
	}
	collections, err := s.client.collectionList(list)
	if err != nil {
		s.client.logger.Warn("collection list could not be decoded", "error", err)
		return nil
	}
	return collections
}

// Lock locks collections and reports how many were locked.
func (s *Service) Lock(collections []*Collection, cont func(int, error)) {
	s.setLocked("service_lock", collections, true, cont)
}

// Unlock unlocks collections and reports how many were unlocked.
func (s *Service) Unlock(collections []*Collection, cont func(int, error)) {
	s.setLocked("service_unlock", collections, false, cont)
}

func (s *Service) setLocked(name string, collections []*Collection, locked bool, cont func(int, error)) {
	lib := s.client.lib
	objects := make([]*native.Collection, 0, len(collections))
	for _, c := range collections {
		objects = append(objects, c.native)
	}
	bridge.Dispatch(s.client.bridge, name,
		func(cb native.AsyncReadyCallback, ud uintptr) {
			if locked {
				lib.ServiceLock(s.native, objects, cb, ud)
			} else {
				lib.ServiceUnlock(s.native, objects, cb, ud)
			}
		},
		func(res *native.AsyncResult) (int, error) {
			if locked {
				return lib.ServiceLockFinish(s.native, res)
			}
			return lib.ServiceUnlockFinish(s.native, res)
		},
		bridge.Identity[int],
		cont,
	)
}
