package cache

import "time"

// nilIndex marks the absence of a neighbour or of the list head/tail.
const nilIndex int32 = -1

// entry is one slot of the recency list. Links are slot indices, not pointers,
// so the key map and the list never alias memory.
type entry struct {
	key    string
	value  string
	expiry time.Time // zero means no expiry
	prev   int32
	next   int32
}

// recencyList is a doubly linked list threaded through a slab of entries.
// The head is the most recently used entry, the tail the eviction candidate.
// Freed slots are recycled through a free list, so the slab never grows past
// the highest number of simultaneously resident entries.
type recencyList struct {
	slots []entry
	free  []int32
	head  int32
	tail  int32
	len   int
}

func newRecencyList(capacity int) recencyList {
	return recencyList{
		slots: make([]entry, 0, capacity+1),
		free:  make([]int32, 0, capacity+1),
		head:  nilIndex,
		tail:  nilIndex,
	}
}

// pushFront stores e in a free slot, links it at the head and returns its index.
func (l *recencyList) pushFront(e entry) int32 {
	var i int32
	if n := len(l.free); n > 0 {
		i = l.free[n-1]
		l.free = l.free[:n-1]
		l.slots[i] = e
	} else {
		i = int32(len(l.slots))
		l.slots = append(l.slots, e)
	}
	l.linkFront(i)
	l.len++
	return i
}

// moveToFront promotes slot i to most recently used.
func (l *recencyList) moveToFront(i int32) {
	if l.head == i {
		return
	}
	l.unlink(i)
	l.linkFront(i)
}

// remove unlinks slot i, returns its entry and recycles the slot.
func (l *recencyList) remove(i int32) entry {
	l.unlink(i)
	e := l.slots[i]
	l.slots[i] = entry{prev: nilIndex, next: nilIndex}
	l.free = append(l.free, i)
	l.len--
	return e
}

// back returns the least recently used slot, or nilIndex when empty.
func (l *recencyList) back() int32 { return l.tail }

// at returns the entry in slot i. The pointer is valid until the next pushFront.
func (l *recencyList) at(i int32) *entry { return &l.slots[i] }

func (l *recencyList) linkFront(i int32) {
	e := &l.slots[i]
	e.prev = nilIndex
	e.next = l.head
	if l.head != nilIndex {
		l.slots[l.head].prev = i
	}
	l.head = i
	if l.tail == nilIndex {
		l.tail = i
	}
}

func (l *recencyList) unlink(i int32) {
	e := &l.slots[i]
	if e.prev != nilIndex {
		l.slots[e.prev].next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nilIndex {
		l.slots[e.next].prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev, e.next = nilIndex, nilIndex
}

// keys returns the resident keys from most to least recently used.
func (l *recencyList) keys() []string {
	out := make([]string, 0, l.len)
	for i := l.head; i != nilIndex; i = l.slots[i].next {
		out = append(out, l.slots[i].key)
	}
	return out
}
