package secret

import "github.com/benaskins/secretkit/native"

// ServiceFlags control how a service session is opened.
type ServiceFlags struct {
	OpenSession     bool
	LoadCollections bool
}

func (f ServiceFlags) bits() native.ServiceFlags {
	n := native.ServiceNone
	if f.OpenSession {
		n |= native.ServiceOpenSession
	}
	if f.LoadCollections {
		n |= native.ServiceLoadCollections
	}
	return n
}

// SearchFlags control what a search returns.
type SearchFlags struct {
	// All returns every match rather than the first.
	All bool
	// Unlock unlocks collections holding a match.
	Unlock bool
	// LoadSecrets loads the secret of every unlocked match.
	LoadSecrets bool
}

func (f SearchFlags) bits() native.SearchFlags {
	n := native.SearchNone
	if f.All {
		n |= native.SearchAll
	}
	if f.Unlock {
		n |= native.SearchUnlock
	}
	if f.LoadSecrets {
		n |= native.SearchLoadSecrets
	}
	return n
}

// ItemCreateFlags control item creation.
type ItemCreateFlags struct {
	Replace bool
}

func (f ItemCreateFlags) bits() native.ItemCreateFlags {
	if f.Replace {
		return native.ItemCreateReplace
	}
	return native.ItemCreateNone
}

// DefaultSearchFlags returns the flags every search runs with.
func DefaultSearchFlags() SearchFlags {
	return SearchFlags{All: true, Unlock: true, LoadSecrets: true}
}

// DefaultItemCreateFlags returns the flags every item creation runs with.
func DefaultItemCreateFlags() ItemCreateFlags {
	return ItemCreateFlags{Replace: true}
}
