// Copyright 2013 Lars Buitinck
//
// Permission is hereby granted, free of charge, to any person obtaining a
// copy of this software and associated documentation files (the "Software"),
// to deal in the Software without restriction, including without limitation
// the rights to use, copy, modify, merge, publish, distribute, sublicense,
// and/or sell copies of the Software, and to permit persons to whom the
// Software is furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER
// DEALINGS IN THE SOFTWARE.

// Counter with eviction for least-recently used (LRU) items.
// orignal LRU code at https://gist.github.com/larsmans/4638795

package gomrstats

// a LRU counter that calls a function when an item is removed. Evicted and
// flushed counts are partial; consumers must sum them per key.
type LRUCounter[K comparable] struct {
	RemovalFunc func(K, int64)
	index       map[K]int // index of key in queue
	queue       list[K]
}

// Create a new LRU counter that hands evicted entries to removalFunc.
func NewLRUCounter[K comparable](removalFunc func(K, int64), capacity int) *LRUCounter[K] {
	if capacity < 1 {
		panic("capacity < 1")
	}
	c := &LRUCounter[K]{RemovalFunc: removalFunc, index: make(map[K]int)}
	c.queue.init(capacity)
	return c
}

// Number of items currently in the counter.
func (c *LRUCounter[K]) Len() int {
	return len(c.queue.links)
}

func (c *LRUCounter[K]) Capacity() int {
	return cap(c.queue.links)
}

// Flush hands every entry to RemovalFunc, least recently used first, and
// empties the counter.
func (c *LRUCounter[K]) Flush() {
	for i := c.queue.tail; i != -1; {
		n := c.queue.links[i]
		c.RemovalFunc(n.key, n.value)
		i = n.next
	}
	c.index = make(map[K]int)
	c.queue.init(cap(c.queue.links))
}

func (c *LRUCounter[K]) Incr(key K, value int64) {
	q := &c.queue
	i, stored := c.index[key]
	if stored {
		q.incrAt(i, value)
		q.moveToFront(i)
		return
	}
	if q.full() {
		// evict least recently used item
		var k K
		var v int64
		i, k, v = q.popTail()
		c.RemovalFunc(k, v)
		delete(c.index, k)
	} else {
		i = q.grow()
	}
	q.putFront(key, value, i)
	c.index[key] = i
}

// Doubly linked list containing key/value pairs. next points towards the
// front (most recent), prev towards the tail.
type list[K comparable] struct {
	front, tail int
	links       []link[K]
}

type link[K comparable] struct {
	key        K
	value      int64
	prev, next int
}

// Initialize l with capacity c.
func (l *list[K]) init(c int) {
	l.front = -1
	l.tail = -1
	l.links = make([]link[K], 0, c)
}

func (l *list[K]) full() bool {
	return len(l.links) == cap(l.links)
}

// Grow list by one element and return its index.
func (l *list[K]) grow() (i int) {
	i = len(l.links)
	l.links = l.links[:i+1]
	return
}

// detach the node at position i
func (l *list[K]) unlink(i int) {
	n := &l.links[i]
	if n.prev != -1 {
		l.links[n.prev].next = n.next
	} else {
		l.tail = n.next
	}
	if n.next != -1 {
		l.links[n.next].prev = n.prev
	} else {
		l.front = n.prev
	}
}

// Make the node at position i the front of the list.
func (l *list[K]) moveToFront(i int) {
	if l.front == i {
		return
	}
	l.unlink(i)
	n := l.links[i]
	l.putFront(n.key, n.value, i)
}

// Pop the tail off the list and return its index, key and value.
// Precondition: the list is full.
func (l *list[K]) popTail() (i int, key K, value int64) {
	i = l.tail
	t := l.links[i]
	l.unlink(i)
	return i, t.key, t.value
}

// Put (key, value) in position i and make it the front of the list.
func (l *list[K]) putFront(key K, value int64, i int) {
	f := &l.links[i]
	f.key = key
	f.value = value
	f.prev = l.front
	f.next = -1

	if l.front == -1 {
		l.tail = i
	} else {
		l.links[l.front].next = i
	}
	l.front = i
}

func (l *list[K]) incrAt(i int, d int64) {
	l.links[i].value += d
}
