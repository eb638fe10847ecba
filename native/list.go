package native

import "sort"

// List is a singly linked list node as returned by search and enumeration
// calls. The receiver owns the nodes and frees them with ListFree; the
// handles in Data stay valid after the list is freed.
type List struct {
	Data any
	Next *List
}

func newList[T any](a *Allocator, elems []T) *List {
	var head, tail *List
	for _, e := range elems {
		a.alloc()
		node := &List{Data: e}
		if head == nil {
			head = node
		} else {
			tail.Next = node
		}
		tail = node
	}
	return head
}

// ListFree releases every node of l.
func (a *Allocator) ListFree(l *List) {
	for l != nil {
		next := l.Next
		l.Data = nil
		l.Next = nil
		a.release()
		l = next
	}
}

// Length counts the nodes of l.
func (l *List) Length() int {
	n := 0
	for ; l != nil; l = l.Next {
		n++
	}
	return n
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
