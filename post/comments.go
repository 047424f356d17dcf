package post

import (
	"time"
)

// CommentTimeFormat is the layout of CommentNode.Timestamp.
const CommentTimeFormat = "2006-01-02T15:04:05"

// CommentTime converts a millisecond epoch into a CommentNode timestamp in
// KST. Zero yields an empty string.
func CommentTime(epochMillis int64) string {
	if epochMillis <= 0 {
		return ""
	}
	return time.UnixMilli(epochMillis).In(KST).Format(CommentTimeFormat)
}

// BuildCommentTree folds a flat, ordered comment list whose entries carry
// parent ids into a tree. Order within every level follows the input.
// Entries whose parent is missing, or that name themselves as parent, are
// promoted to the top level with ParentID cleared.
func BuildCommentTree(flat []CommentNode) []CommentNode {
	index := make(map[string]int, len(flat))
	for i, c := range flat {
		if _, dup := index[c.ID]; !dup {
			index[c.ID] = i
		}
	}

	children := make(map[string][]int)
	var roots []int
	for i, c := range flat {
		if index[c.ID] != i {
			continue
		}
		if _, ok := index[c.ParentID]; c.ParentID == "" || c.ParentID == c.ID || !ok {
			roots = append(roots, i)
			continue
		}
		children[c.ParentID] = append(children[c.ParentID], i)
	}

	visited := make(map[string]bool, len(flat))
	var build func(i int, parentID string) CommentNode
	build = func(i int, parentID string) CommentNode {
		node := flat[i]
		visited[node.ID] = true
		node.ParentID = parentID
		node.Replies = nil
		for _, child := range children[node.ID] {
			if visited[flat[child].ID] {
				continue
			}
			node.Replies = append(node.Replies, build(child, node.ID))
		}
		return node
	}

	tree := make([]CommentNode, 0, len(roots))
	for _, i := range roots {
		tree = append(tree, build(i, ""))
	}

	// Entries only reachable through a parent cycle are promoted too.
	for i, c := range flat {
		if index[c.ID] == i && !visited[c.ID] {
			tree = append(tree, build(i, ""))
		}
	}
	return tree
}

// FlattenComments lists every node of the forest depth-first with Replies
// cleared and ParentID kept, the inverse of BuildCommentTree.
func FlattenComments(nodes []CommentNode) []CommentNode {
	var flat []CommentNode
	var walk func([]CommentNode)
	walk = func(level []CommentNode) {
		for _, n := range level {
			replies := n.Replies
			n.Replies = nil
			flat = append(flat, n)
			walk(replies)
		}
	}
	walk(nodes)
	return flat
}
