/*
File: trie.go
Version: 2.0.0
Description: A generic domain label trie.
             Entries are either exact names ("example.com") or suffixes ("*.example.com" or
             ".example.com"). A suffix matches strict subdomains only, which is the same
             answer strings.HasSuffix(name, ".example.com") gives, without scanning every
             suffix in the set.
*/

package main

import (
	"strings"
)

// TrieNode represents a node in the domain trie.
type TrieNode[T any] struct {
	Children  map[string]*TrieNode[T]
	Value     T // Exact match for this node
	Suffix    T // Match for anything below this node
	HasValue  bool
	HasSuffix bool
}

// DomainTrie is a generic trie keyed on domain labels, walked right to left.
type DomainTrie[T any] struct {
	Root *TrieNode[T]
	size int
}

func NewDomainTrie[T any]() *DomainTrie[T] {
	return &DomainTrie[T]{Root: &TrieNode[T]{}}
}

// Len returns the number of inserted entries.
func (t *DomainTrie[T]) Len() int {
	return t.size
}

// Insert adds an exact name, or a suffix when the name starts with "*." or ".".
func (t *DomainTrie[T]) Insert(domain string, value T) {
	isSuffix := false
	switch {
	case strings.HasPrefix(domain, "*."):
		isSuffix = true
		domain = domain[2:]
	case strings.HasPrefix(domain, "."):
		isSuffix = true
		domain = domain[1:]
	}
	if domain == "" {
		return
	}

	node := t.Root
	parts := strings.Split(domain, ".")
	// Iterate backwards (com -> example)
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		if node.Children == nil {
			node.Children = make(map[string]*TrieNode[T])
		}
		child, ok := node.Children[part]
		if !ok {
			child = &TrieNode[T]{}
			node.Children[part] = child
		}
		node = child
	}

	if isSuffix {
		node.Suffix = value
		node.HasSuffix = true
	} else {
		node.Value = value
		node.HasValue = true
	}
	t.size++
}

// Lookup returns the value stored for the exact name.
func (t *DomainTrie[T]) Lookup(name string) (T, bool) {
	node := t.Root
	end := len(name)
	for {
		start := strings.LastIndexByte(name[:end], '.')
		next, ok := node.Children[name[start+1:end]]
		if !ok {
			break
		}
		node = next
		if start == -1 {
			if node.HasValue {
				return node.Value, true
			}
			break
		}
		end = start
	}
	var zero T
	return zero, false
}

// MatchSuffix returns the deepest suffix entry that name is a strict subdomain of.
// A name equal to the suffix itself ("edu" for ".edu") does not match.
func (t *DomainTrie[T]) MatchSuffix(name string) (T, bool) {
	node := t.Root
	var best T
	found := false

	// Iterate backwards using string indices to avoid splitting/allocation
	end := len(name)
	for {
		start := strings.LastIndexByte(name[:end], '.')
		next, ok := node.Children[name[start+1:end]]
		if !ok {
			break
		}
		node = next

		// Nothing left to the left of this label: only an exact match would apply here.
		if start == -1 {
			break
		}
		if node.HasSuffix {
			best = node.Suffix
			found = true
		}
		end = start
	}
	return best, found
}
