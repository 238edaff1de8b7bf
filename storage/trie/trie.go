package trie

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/storage"
)

// Trie is a nibble-branching Merkle trie persisted through a storage.Database.
// Every node is stored under the keccak256 hash of its encoding, so the root
// hash commits to the full marketplace state and two tries with the same
// contents always share the same root.
//
// The keys passed into Get/Update are expected to be fully hashed (keccak256)
// before insertion, which keeps paths a uniform 64 nibbles deep.
//
// Trie is not safe for concurrent use.
type Trie struct {
	store storage.Database
	root  []byte
}

// NewTrie creates a trie backed by the provided storage and optional root. A
// nil or empty root denotes the empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	if store == nil {
		return nil, fmt.Errorf("trie: nil storage backend")
	}
	t := &Trie{store: store}
	if len(root) > 0 {
		// Fail fast when the advertised root is not resolvable.
		if _, err := t.loadNode(root); err != nil {
			return nil, fmt.Errorf("trie: cannot resolve root %x: %w", root, err)
		}
		t.root = append([]byte(nil), root...)
	}
	return t, nil
}

// Get retrieves a value from the trie for the provided key. A missing key
// yields a nil value and no error.
func (t *Trie) Get(key []byte) ([]byte, error) {
	hash := t.root
	for _, nibble := range nibbles(key) {
		if len(hash) == 0 {
			return nil, nil
		}
		node, err := t.loadNode(hash)
		if err != nil {
			return nil, err
		}
		hash = node.Children[nibble]
	}
	if len(hash) == 0 {
		return nil, nil
	}
	node, err := t.loadNode(hash)
	if err != nil {
		return nil, err
	}
	if len(node.Value) == 0 {
		return nil, nil
	}
	return append([]byte(nil), node.Value...), nil
}

// Update inserts, replaces, or (with an empty value) deletes the value stored
// under the provided key, rehashing the touched path back up to the root.
func (t *Trie) Update(key, value []byte) error {
	newRoot, err := t.insert(t.root, nibbles(key), value)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

// Delete removes the value stored under the provided key.
func (t *Trie) Delete(key []byte) error {
	return t.Update(key, nil)
}

// Hash returns the root hash of the trie reflecting all mutations so far. The
// empty trie hashes to the zero hash.
func (t *Trie) Hash() common.Hash {
	return common.BytesToHash(t.root)
}

// Root returns the current root hash bytes, nil for the empty trie.
func (t *Trie) Root() []byte {
	if len(t.root) == 0 {
		return nil
	}
	return append([]byte(nil), t.root...)
}

// Store exposes the backing storage in case callers need to access it directly.
func (t *Trie) Store() storage.Database {
	return t.store
}

func (t *Trie) insert(hash []byte, path []byte, value []byte) ([]byte, error) {
	var node *Node
	if len(hash) == 0 {
		node = NewNode()
	} else {
		loaded, err := t.loadNode(hash)
		if err != nil {
			return nil, err
		}
		node = loaded
	}
	if len(path) == 0 {
		if len(value) == 0 {
			node.Value = nil
		} else {
			node.Value = append([]byte(nil), value...)
		}
	} else {
		childHash, err := t.insert(node.Children[path[0]], path[1:], value)
		if err != nil {
			return nil, err
		}
		if len(childHash) == 0 {
			delete(node.Children, path[0])
		} else {
			node.Children[path[0]] = childHash
		}
	}
	if node.Empty() {
		return nil, nil
	}
	return t.storeNode(node)
}

func (t *Trie) storeNode(node *Node) ([]byte, error) {
	encoded, err := node.Encode()
	if err != nil {
		return nil, err
	}
	hash, err := node.Hash()
	if err != nil {
		return nil, err
	}
	if err := t.store.Put(hash, encoded); err != nil {
		return nil, err
	}
	return hash, nil
}

func (t *Trie) loadNode(hash []byte) (*Node, error) {
	data, err := t.store.Get(hash)
	if err != nil {
		return nil, fmt.Errorf("trie: missing node %x: %w", hash, err)
	}
	node, err := DecodeNode(data)
	if err != nil {
		return nil, err
	}
	// Guard against storage handing back a foreign payload.
	rehashed, err := node.Hash()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(rehashed, hash) {
		return nil, fmt.Errorf("trie: node %x failed integrity check", hash)
	}
	return node, nil
}

func nibbles(key []byte) []byte {
	out := make([]byte, 0, len(key)*2)
	for _, b := range key {
		out = append(out, b>>4, b&0x0f)
	}
	return out
}
