// Package invocation models the authorization call tree.
//
// A tree mirrors a require_auth call graph: each node is one
// authorization-checked contract call, and its children are the calls made
// from that invocation context. Nodes exclusively own their children; there
// are no back-edges and no sharing, so the structure is strictly a tree.
package invocation

import (
	"errors"
	"fmt"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

// ErrLimitExceeded is returned when a tree violates a configured bound.
var ErrLimitExceeded = errors.New("invocation limit exceeded")

// Limits bounds tree shape during validation. Network-wide invocation
// limits are configuration, not constants this package guesses at; a zero
// field disables that bound, leaving only the codec's sequence bounds.
type Limits struct {
	// MaxNodes bounds the total node count of a tree.
	MaxNodes int

	// MaxDepth bounds tree depth; the root is depth 1.
	MaxDepth int

	// MaxArgs bounds the argument count of a single node.
	MaxArgs int

	// MaxSubInvocations bounds the direct children of a single node.
	MaxSubInvocations int
}

// Node is one invocation in the tree, built bottom-up by the caller and
// frozen once the enclosing authorization entry is signed.
type Node struct {
	ContractID   types.Hash
	FunctionName types.Symbol
	Args         []xdr.ScVal
	Sub          []*Node
}

// NewNode creates a tree node for one authorized call.
func NewNode(contractID types.Hash, fn types.Symbol, args ...xdr.ScVal) *Node {
	return &Node{ContractID: contractID, FunctionName: fn, Args: args}
}

// AddSub appends a child invocation and returns the parent for chaining.
func (n *Node) AddSub(child *Node) *Node {
	n.Sub = append(n.Sub, child)
	return n
}

// Count returns the number of nodes in the tree rooted at n.
func (n *Node) Count() int {
	total := 1
	for _, c := range n.Sub {
		total += c.Count()
	}
	return total
}

// Depth returns the depth of the tree rooted at n; a leaf has depth 1.
func (n *Node) Depth() int {
	max := 0
	for _, c := range n.Sub {
		if d := c.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// Validate checks the tree rooted at n against lim and the codec's
// per-level sequence bounds in codecLim.
func Validate(n *Node, lim Limits, codecLim xdr.Limits) error {
	if n == nil {
		return fmt.Errorf("%w: nil root", xdr.ErrMalformedInput)
	}
	if err := codecLim.Validate(); err != nil {
		return err
	}
	if lim.MaxNodes > 0 {
		if count := n.Count(); count > lim.MaxNodes {
			return fmt.Errorf("%w: %d nodes, limit %d", ErrLimitExceeded, count, lim.MaxNodes)
		}
	}
	return validateNode(n, 1, lim, codecLim)
}

func validateNode(n *Node, depth int, lim Limits, codecLim xdr.Limits) error {
	if lim.MaxDepth > 0 && depth > lim.MaxDepth {
		return fmt.Errorf("%w: depth %d, limit %d", ErrLimitExceeded, depth, lim.MaxDepth)
	}
	if err := types.ValidateSymbolLen(string(n.FunctionName), int(codecLim.MaxSymbolLen)); err != nil {
		return fmt.Errorf("%w: %v", xdr.ErrMalformedInput, err)
	}
	if lim.MaxArgs > 0 && len(n.Args) > lim.MaxArgs {
		return fmt.Errorf("%w: %d args, limit %d", ErrLimitExceeded, len(n.Args), lim.MaxArgs)
	}
	if uint32(len(n.Args)) > codecLim.MaxVecLen {
		return fmt.Errorf("%w: %d args, codec limit %d", ErrLimitExceeded, len(n.Args), codecLim.MaxVecLen)
	}
	if lim.MaxSubInvocations > 0 && len(n.Sub) > lim.MaxSubInvocations {
		return fmt.Errorf("%w: %d sub-invocations, limit %d", ErrLimitExceeded, len(n.Sub), lim.MaxSubInvocations)
	}
	if uint32(len(n.Sub)) > codecLim.MaxVecLen {
		return fmt.Errorf("%w: %d sub-invocations, codec limit %d", ErrLimitExceeded, len(n.Sub), codecLim.MaxVecLen)
	}
	for _, c := range n.Sub {
		if c == nil {
			return fmt.Errorf("%w: nil sub-invocation", xdr.ErrMalformedInput)
		}
		if err := validateNode(c, depth+1, lim, codecLim); err != nil {
			return err
		}
	}
	return nil
}

// ToXDR converts the tree rooted at n into its wire representation.
func (n *Node) ToXDR() xdr.AuthorizedInvocation {
	inv := xdr.AuthorizedInvocation{
		ContractID:   n.ContractID,
		FunctionName: n.FunctionName,
		Args:         n.Args,
	}
	if len(n.Sub) > 0 {
		inv.SubInvocations = make([]xdr.AuthorizedInvocation, len(n.Sub))
		for i, c := range n.Sub {
			inv.SubInvocations[i] = c.ToXDR()
		}
	}
	return inv
}

// FromXDR rebuilds a tree from its wire representation.
func FromXDR(inv xdr.AuthorizedInvocation) *Node {
	n := &Node{
		ContractID:   inv.ContractID,
		FunctionName: inv.FunctionName,
		Args:         inv.Args,
	}
	for i := range inv.SubInvocations {
		n.Sub = append(n.Sub, FromXDR(inv.SubInvocations[i]))
	}
	return n
}

// Walk visits every node of the tree rooted at inv in pre-order, calling
// fn with each node. It operates on the wire form so verifiers can walk
// decoded trees without rebuilding them.
func Walk(inv *xdr.AuthorizedInvocation, fn func(*xdr.AuthorizedInvocation) error) error {
	if err := fn(inv); err != nil {
		return err
	}
	for i := range inv.SubInvocations {
		if err := Walk(&inv.SubInvocations[i], fn); err != nil {
			return err
		}
	}
	return nil
}
