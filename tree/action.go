package tree

// RunInAction runs fn with writes enabled on the tree n belongs to.
// Actions nest; protection is restored when the outermost action returns.
func RunInAction(n *Node, fn func() error) error {
	root := n.Root()
	root.actionDepth++
	defer func() { root.actionDepth-- }()
	return fn()
}

// Protect forbids writes outside actions on the tree n belongs to.
func Protect(n *Node) {
	n.Root().protected = true
}

// Unprotect allows writes anywhere on the tree n belongs to.
func Unprotect(n *Node) {
	n.Root().protected = false
}

// IsProtected reports whether the tree n belongs to is protected.
func IsProtected(n *Node) bool {
	return n.Root().protected
}

// InAction reports whether an action is running on the tree n belongs to.
func InAction(n *Node) bool {
	return n.Root().actionDepth > 0
}
