// Package concurrency provides coordination recipes built on the zkmem
// emulator, in the style of the ZooKeeper lock recipe: one sequential
// ephemeral node per contender, the lowest sequence holds the lock, and
// every other contender watches the node right before its own.
package concurrency

import (
	"errors"
	"slices"
	"strings"

	"github.com/QuangTung97/zkmem"
)

// Client is the part of the zkmem.TestKeeper API the lock recipe uses.
type Client interface {
	Create(
		path string, data []byte, flags int32, acl []zkmem.ACL,
		callback func(resp zkmem.CreateResponse, err error),
	) error

	Delete(
		path string, version int32,
		callback func(resp zkmem.DeleteResponse, err error),
	) error

	Children(
		path string,
		callback func(resp zkmem.ChildrenResponse, err error),
		options ...zkmem.ChildrenOption,
	) error

	Get(
		path string,
		callback func(resp zkmem.GetResponse, err error),
		options ...zkmem.GetOption,
	) error
}

type Lock struct {
	client Client

	parent    string
	nodeID    string
	onGranted func(l *Lock)

	lockNode string
}

// NewLock creates a lock contender identified by nodeID under the parent
// path. onGranted is called on the keeper's processing goroutine once the
// lock is held.
func NewLock(client Client, parent string, nodeID string, onGranted func(l *Lock)) *Lock {
	return &Lock{
		client: client,

		parent:    parent,
		nodeID:    nodeID,
		onGranted: onGranted,
	}
}

type lockStatus int

const (
	lockStatusBlocked lockStatus = iota + 1
	lockStatusNeedCreate
	lockStatusGranted
)

// Start begins acquiring the lock. The returned error only covers the first
// enqueue; later steps run from completion callbacks.
func (e *Lock) Start() error {
	return e.listChildren()
}

// Release deletes the contender's lock node, handing the lock to the next
// contender in sequence order.
func (e *Lock) Release() error {
	if e.lockNode == "" {
		return errors.New("concurrency: lock is not held")
	}
	node := e.lockNode
	e.lockNode = ""
	return e.client.Delete(node, -1, func(resp zkmem.DeleteResponse, err error) {
		if err != nil {
			panic(err)
		}
	})
}

func (e *Lock) listChildren() error {
	return e.client.Children(e.parent, func(resp zkmem.ChildrenResponse, err error) {
		if err != nil {
			panic(err)
		}

		var prevNode string
		status := e.computeLockStatus(resp, &prevNode)
		if status == lockStatusNeedCreate {
			e.createEphemeral()
			return
		}
		if status == lockStatusBlocked {
			e.watchPreviousNode(prevNode)
			return
		}
		e.onGranted(e)
	})
}

func (e *Lock) computeLockStatus(resp zkmem.ChildrenResponse, prevNode *string) lockStatus {
	type nodeName struct {
		raw    string
		nodeID string
		seq    string
	}

	nodes := make([]nodeName, 0, len(resp.Children))
	for _, child := range resp.Children {
		parts := strings.Split(child, "-")
		if len(parts) < 2 {
			continue
		}

		seq := parts[1]

		parts = strings.Split(parts[0], ":")
		if len(parts) < 2 {
			continue
		}

		nodes = append(nodes, nodeName{
			raw:    child,
			nodeID: parts[1],
			seq:    seq,
		})
	}
	slices.SortFunc(nodes, func(a, b nodeName) int {
		return strings.Compare(a.seq, b.seq)
	})

	if len(nodes) == 0 {
		return lockStatusNeedCreate
	}

	if nodes[0].nodeID == e.nodeID {
		e.lockNode = e.parent + "/" + nodes[0].raw
		return lockStatusGranted
	}

	for i, n := range nodes {
		if n.nodeID == e.nodeID {
			*prevNode = e.parent + "/" + nodes[i-1].raw
			return lockStatusBlocked
		}
	}

	return lockStatusNeedCreate
}

func (e *Lock) createEphemeral() {
	p := e.parent + "/node:" + e.nodeID + "-"
	err := e.client.Create(p, nil, zkmem.FlagEphemeral|zkmem.FlagSequence,
		zkmem.WorldACL(zkmem.PermAll),
		func(resp zkmem.CreateResponse, err error) {
			if err != nil {
				panic(err)
			}
			if err := e.listChildren(); err != nil {
				panic(err)
			}
		},
	)
	if err != nil {
		panic(err)
	}
}

func (e *Lock) watchPreviousNode(prevNode string) {
	err := e.client.Get(prevNode, func(resp zkmem.GetResponse, err error) {
		if err == nil {
			return
		}
		if errors.Is(err, zkmem.ErrNoNode) {
			if err := e.listChildren(); err != nil {
				panic(err)
			}
			return
		}
		panic(err)
	}, zkmem.WithGetWatch(func(ev zkmem.Event) {
		if ev.Type == zkmem.EventNodeDeleted {
			if err := e.listChildren(); err != nil {
				panic(err)
			}
			return
		}
	}))
	if err != nil {
		panic(err)
	}
}
