package zkmem

import (
	"strings"
	"time"

	"github.com/google/btree"
)

// node is one element of the hierarchical namespace. Nodes are stored by
// value inside the tree and are never mutated in place: updates replace the
// whole entry, so copy-on-write snapshots stay intact.
type node struct {
	data []byte
	stat Stat

	// seqNum is the next sequence suffix handed to a child
	// created with FlagSequence.
	seqNum int64

	isEphemeral  bool
	isSequential bool
}

type nodeEntry struct {
	path string
	node node
}

const storeTreeDegree = 8

// dataStore is an ordered mapping from absolute path to node, owned
// exclusively by the processing loop. Ordering is lexicographic over the
// path string, which makes listing the children of a node a prefix scan.
type dataStore struct {
	tree    *btree.BTreeG[nodeEntry]
	nowFunc func() time.Time
}

func newDataStore(nowFunc func() time.Time) *dataStore {
	s := &dataStore{
		tree: btree.NewG[nodeEntry](storeTreeDegree, func(a, b nodeEntry) bool {
			return a.path < b.path
		}),
		nowFunc: nowFunc,
	}
	s.put("/", node{})
	return s
}

func (s *dataStore) nowMillis() int64 {
	return s.nowFunc().UnixMilli()
}

func (s *dataStore) get(path string) (node, bool) {
	e, ok := s.tree.Get(nodeEntry{path: path})
	if !ok {
		return node{}, false
	}
	return e.node, true
}

func (s *dataStore) put(path string, n node) {
	s.tree.ReplaceOrInsert(nodeEntry{path: path, node: n})
}

func (s *dataStore) delete(path string) {
	s.tree.Delete(nodeEntry{path: path})
}

// update fetches the node at path, applies fn to a copy and stores the copy
// back. It reports whether the node was found.
func (s *dataStore) update(path string, fn func(n *node)) bool {
	e, ok := s.tree.Get(nodeEntry{path: path})
	if !ok {
		return false
	}
	fn(&e.node)
	s.tree.ReplaceOrInsert(e)
	return true
}

// children returns the base names of the immediate children of path,
// in tree order.
func (s *dataStore) children(path string) []string {
	prefix := path
	if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}

	var names []string
	s.tree.AscendGreaterOrEqual(nodeEntry{path: prefix}, func(e nodeEntry) bool {
		if e.path == prefix {
			// the root node itself, not a child
			return true
		}
		if !strings.HasPrefix(e.path, prefix) {
			return false
		}
		if parentPath(e.path) == path {
			names = append(names, baseName(e.path))
		}
		return true
	})
	return names
}

func (s *dataStore) size() int {
	return s.tree.Len()
}

// snapshot returns a copy-on-write clone of the tree. Both the snapshot and
// the live tree stay valid; later writes to either do not affect the other.
func (s *dataStore) snapshot() *btree.BTreeG[nodeEntry] {
	return s.tree.Clone()
}

func (s *dataStore) restore(snapshot *btree.BTreeG[nodeEntry]) {
	s.tree = snapshot
}
