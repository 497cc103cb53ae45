// Package trie provides the prefix tree behind console command completion.
package trie

import (
	"iter"
	"slices"
)

type node struct {
	children map[byte]*node
	terminal bool
	key      string
}

// Trie is a byte-keyed prefix tree, so keys need not be valid UTF-8. It is
// not safe for concurrent use; the command registry serializes access to it.
type Trie struct {
	root *node
	size int
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{root: &node{}}
}

// Insert adds key to the trie. Inserting a key that is already present is a no-op.
func (t *Trie) Insert(key string) {
	if key == "" {
		return
	}
	n := t.root
	for i := 0; i < len(key); i++ {
		b := key[i]
		child, ok := n.children[b]
		if !ok {
			if n.children == nil {
				n.children = make(map[byte]*node)
			}
			child = &node{}
			n.children[b] = child
		}
		n = child
	}
	if !n.terminal {
		n.terminal = true
		n.key = key
		t.size++
	}
}

// Remove deletes key and prunes every node left without a terminal descendant.
// It reports whether key was present.
func (t *Trie) Remove(key string) bool {
	if key == "" {
		return false
	}
	path := make([]*node, 0, len(key)+1)
	n := t.root
	path = append(path, n)
	for i := 0; i < len(key); i++ {
		child, ok := n.children[key[i]]
		if !ok {
			return false
		}
		n = child
		path = append(path, n)
	}
	if !n.terminal {
		return false
	}
	n.terminal = false
	n.key = ""
	t.size--

	for i := len(key) - 1; i >= 0; i-- {
		child := path[i+1]
		if child.terminal || len(child.children) > 0 {
			break
		}
		delete(path[i].children, key[i])
	}
	return true
}

// Contains reports whether key is stored.
func (t *Trie) Contains(key string) bool {
	n := t.find(key)
	return n != nil && n.terminal
}

// Len returns the number of stored keys.
func (t *Trie) Len() int {
	return t.size
}

// Complete returns every stored key that has prefix as a literal prefix, in
// lexicographic order. The sequence is computed lazily on each iteration and
// can be ranged over any number of times.
func (t *Trie) Complete(prefix string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := t.find(prefix)
		if start == nil {
			return
		}
		walk(start, yield)
	}
}

func (t *Trie) find(prefix string) *node {
	n := t.root
	for i := 0; i < len(prefix); i++ {
		child, ok := n.children[prefix[i]]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

// walk visits n depth first with children in byte order. A terminal node
// sorts before its descendants, so the visit order is lexicographic; for
// valid UTF-8 byte order matches code point order.
func walk(n *node, yield func(string) bool) bool {
	if n.terminal && !yield(n.key) {
		return false
	}
	if len(n.children) == 0 {
		return true
	}
	keys := make([]byte, 0, len(n.children))
	for b := range n.children {
		keys = append(keys, b)
	}
	slices.Sort(keys)
	for _, b := range keys {
		child, ok := n.children[b]
		if !ok {
			continue
		}
		if !walk(child, yield) {
			return false
		}
	}
	return true
}
