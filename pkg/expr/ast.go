package expr

import "strings"

// NodeID indexes a node inside a Tree.
type NodeID int

// NoNode is the null link.
const NoNode NodeID = -1

// Node is one entry of a Tree. An operator's first operand is its Child; a
// binary operator's second operand is the Child's Sibling.
type Node struct {
	Token   Token
	Child   NodeID
	Sibling NodeID
}

// Tree is an arena owning every node of one expression. Nodes are never
// shared between trees and the tree is released as a unit.
type Tree struct {
	nodes []Node
	root  NodeID
}

// NewTree returns an empty tree. The parser is the usual builder; the
// exported constructors exist for tools and tests that assemble trees
// directly.
func NewTree() *Tree {
	return &Tree{root: NoNode}
}

// Add appends a node with no links.
func (t *Tree) Add(tok Token) NodeID {
	t.nodes = append(t.nodes, Node{Token: tok, Child: NoNode, Sibling: NoNode})
	return NodeID(len(t.nodes) - 1)
}

// Binary creates an operator node over left and right.
func (t *Tree) Binary(op Token, left, right NodeID) NodeID {
	id := t.Add(op)
	t.nodes[id].Child = left
	t.nodes[left].Sibling = right
	return id
}

// Unary creates an operator node with a single operand.
func (t *Tree) Unary(op Token, operand NodeID) NodeID {
	id := t.Add(op)
	t.nodes[id].Child = operand
	return id
}

// Root returns the root node, or NoNode for an empty tree.
func (t *Tree) Root() NodeID { return t.root }

// SetRoot marks id as the root.
func (t *Tree) SetRoot(id NodeID) { t.root = id }

// Node returns the node with the given id.
func (t *Tree) Node(id NodeID) Node { return t.nodes[id] }

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// Walk visits the tree in post-order: the child subtree, then the node,
// then the sibling subtree. Walking stops at the first error fn returns.
func (t *Tree) Walk(fn func(id NodeID, n Node) error) error {
	return t.walk(t.root, fn)
}

func (t *Tree) walk(id NodeID, fn func(NodeID, Node) error) error {
	if id == NoNode {
		return nil
	}
	n := t.nodes[id]
	if err := t.walk(n.Child, fn); err != nil {
		return err
	}
	if err := fn(id, n); err != nil {
		return err
	}
	return t.walk(n.Sibling, fn)
}

// String returns the flat post-order form, e.g. "1, 2, +, ".
func (t *Tree) String() string {
	var sb strings.Builder
	_ = t.Walk(func(_ NodeID, n Node) error {
		sb.WriteString(n.Token.String())
		sb.WriteString(", ")
		return nil
	})
	return sb.String()
}

// Pretty returns one line per node, operands indented under their operator.
func (t *Tree) Pretty() string {
	var sb strings.Builder
	t.pretty(&sb, t.root, 0)
	return sb.String()
}

func (t *Tree) pretty(sb *strings.Builder, id NodeID, depth int) {
	for id != NoNode {
		n := t.nodes[id]
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(n.Token.String())
		sb.WriteByte('\n')
		t.pretty(sb, n.Child, depth+1)
		id = n.Sibling
	}
}
