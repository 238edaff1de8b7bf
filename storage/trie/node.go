package trie

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Node represents a single node in the state trie. Branch nodes route on the
// next nibble of the key; a node carrying a Value terminates a key.
type Node struct {
	// Children maps the next hex nibble (0-f) to the hash of the child node.
	Children map[byte][]byte
	// Value holds the stored payload when the node terminates a key.
	Value []byte
}

// persistedNode is the canonical RLP form of a node. RLP has no map support,
// so children are laid out as a fixed 16-slot table.
type persistedNode struct {
	Children [16][]byte
	Value    []byte
}

// NewNode creates a new, empty trie node.
func NewNode() *Node {
	return &Node{
		Children: make(map[byte][]byte),
	}
}

// IsLeaf returns true if the node terminates a key and has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0 && n.Value != nil
}

// Empty reports whether the node carries neither a value nor children and can
// be pruned from its parent.
func (n *Node) Empty() bool {
	return len(n.Children) == 0 && len(n.Value) == 0
}

// Encode returns the canonical RLP encoding of the node.
func (n *Node) Encode() ([]byte, error) {
	var persisted persistedNode
	for nibble, child := range n.Children {
		if int(nibble) < len(persisted.Children) {
			persisted.Children[nibble] = child
		}
	}
	persisted.Value = n.Value
	return rlp.EncodeToBytes(&persisted)
}

// Hash calculates the keccak256 hash of the node's canonical encoding, which is
// used to link nodes together and as the commitment to the subtree below it.
func (n *Node) Hash() ([]byte, error) {
	encoded, err := n.Encode()
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

// DecodeNode reconstructs a node from its canonical encoding.
func DecodeNode(data []byte) (*Node, error) {
	var persisted persistedNode
	if err := rlp.DecodeBytes(data, &persisted); err != nil {
		return nil, err
	}
	node := NewNode()
	for nibble, child := range persisted.Children {
		if len(child) > 0 {
			node.Children[byte(nibble)] = child
		}
	}
	if len(persisted.Value) > 0 {
		node.Value = persisted.Value
	}
	return node, nil
}
