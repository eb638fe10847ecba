package native

import (
	"sync"
	"sync/atomic"
)

// Allocator accounts for every buffer the native layer hands out so a
// caller can verify that everything it received was released.
type Allocator struct {
	live        atomic.Int64
	total       atomic.Int64
	doubleFrees atomic.Int64
}

// Live returns the number of strings and list nodes not yet freed.
func (a *Allocator) Live() int64 { return a.live.Load() }

// Total returns the number of allocations ever made.
func (a *Allocator) Total() int64 { return a.total.Load() }

// DoubleFrees returns the number of Free calls on already-freed buffers.
func (a *Allocator) DoubleFrees() int64 { return a.doubleFrees.Load() }

func (a *Allocator) alloc() {
	a.live.Add(1)
	a.total.Add(1)
}

func (a *Allocator) release() {
	a.live.Add(-1)
}

// CString is a native string buffer. The native layer never copies a
// CString it is handed; it reads it whenever the request executes.
type CString struct {
	alloc *Allocator
	mu    sync.Mutex
	data  string
	freed bool
}

// Strdup allocates a native copy of s.
func (a *Allocator) Strdup(s string) *CString {
	a.alloc()
	return &CString{alloc: a, data: s}
}

// Get returns the contents, or false once the buffer has been freed.
func (c *CString) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freed {
		return "", false
	}
	return c.data, true
}

// Free releases the buffer.
func (c *CString) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freed {
		c.alloc.doubleFrees.Add(1)
		return
	}
	c.freed = true
	c.data = ""
	c.alloc.release()
}

// StringPool owns a set of CStrings for the duration of one native call.
type StringPool struct {
	alloc *Allocator
	mu    sync.Mutex
	strs  []*CString
}

// NewStringPool creates a pool allocating from a.
func (a *Allocator) NewStringPool() *StringPool {
	return &StringPool{alloc: a}
}

// Strdup allocates s and retains it until Release.
func (p *StringPool) Strdup(s string) *CString {
	c := p.alloc.Strdup(s)
	p.mu.Lock()
	p.strs = append(p.strs, c)
	p.mu.Unlock()
	return c
}

// Len returns the number of retained strings.
func (p *StringPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.strs)
}

// Release frees every retained string. Releasing twice is a no-op.
func (p *StringPool) Release() {
	p.mu.Lock()
	strs := p.strs
	p.strs = nil
	p.mu.Unlock()
	for _, c := range strs {
		c.Free()
	}
}
