// Package zkmem is an in-process, in-memory emulator of the ZooKeeper
// coordination service. It implements the full request surface (create,
// delete, exists, get, set, children, check, multi) with watches, sequential
// nodes, versioned conditional updates and atomic multi-op semantics,
// backed by an ordered in-memory tree instead of a replicated log.
package zkmem

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrInvalidPath indicates that an operation was being attempted on
// an invalid path. (e.g. empty path).
var ErrInvalidPath = errors.New("zkmem: invalid path")

var (
	ErrNoNode                  = errors.New("zkmem: node does not exist")
	ErrNodeExists              = errors.New("zkmem: node already exists")
	ErrNoChildrenForEphemerals = errors.New("zkmem: ephemeral nodes may not have children")
	ErrBadVersion              = errors.New("zkmem: version conflict")
	ErrNotEmpty                = errors.New("zkmem: node has children")
	ErrBadArguments            = errors.New("zkmem: invalid arguments")
	ErrOperationTimeout        = errors.New("zkmem: operation timeout")
	ErrSessionExpired          = errors.New("zkmem: session has been expired")
	ErrAPIError                = errors.New("zkmem: api error")
)

// errCode follows the ZooKeeper server error code numbering.
type errCode int32

const (
	errOk errCode = 0

	errAPIError                errCode = -100
	errNoNode                  errCode = -101
	errBadVersion              errCode = -103
	errNoChildrenForEphemerals errCode = -108
	errNodeExists              errCode = -110
	errNotEmpty                errCode = -111
	errSessionExpired          errCode = -112

	errOperationTimeout errCode = -7
	errBadArguments     errCode = -8
)

func (e errCode) toError() error {
	switch e {
	case errOk:
		return nil
	case errNoNode:
		return ErrNoNode
	case errNodeExists:
		return ErrNodeExists
	case errNoChildrenForEphemerals:
		return ErrNoChildrenForEphemerals
	case errBadVersion:
		return ErrBadVersion
	case errNotEmpty:
		return ErrNotEmpty
	case errBadArguments:
		return ErrBadArguments
	case errOperationTimeout:
		return ErrOperationTimeout
	case errSessionExpired:
		return ErrSessionExpired
	default:
		return ErrAPIError
	}
}

// EventType is the type of a Znode event.
type EventType int32

const (
	EventNodeCreated         EventType = 1
	EventNodeDeleted         EventType = 2
	EventNodeDataChanged     EventType = 3
	EventNodeChildrenChanged EventType = 4

	// EventSession is delivered to pending watchers when the session expires.
	EventSession EventType = -1
)

// State of the emulated session.
type State int32

const (
	StateDisconnected State = 0
	StateConnected    State = 100
	StateHasSession   State = 101

	StateExpired State = -112
)

// Event is a Znode event delivered to watch callbacks.
// Refer to EventType for more details.
type Event struct {
	Type  EventType
	State State
	Path  string // For non-session events, the path of the watched node.
	Err   error
}

const (
	// FlagEphemeral marks the created node as ephemeral.
	FlagEphemeral = 1
	// FlagSequence appends a monotonic zero-padded suffix to the created path.
	FlagSequence = 2
)

const (
	PermRead = 1 << iota
	PermWrite
	PermCreate
	PermDelete
	PermAdmin

	PermAll = 0x1f
)

// ACL represents a ZooKeeper access control entry. The emulator accepts
// ACLs on create and ignores them.
type ACL struct {
	Perms  int32
	Scheme string
	ID     string
}

func WorldACL(perms int32) []ACL {
	return []ACL{{Perms: perms, Scheme: "world", ID: "anyone"}}
}

func DigestACL(perms int32, user, password string) []ACL {
	userPass := []byte(fmt.Sprintf("%s:%s", user, password))
	h := sha1.Sum(userPass)
	digest := base64.StdEncoding.EncodeToString(h[:])
	return []ACL{{Perms: perms, Scheme: "digest", ID: fmt.Sprintf("%s:%s", user, digest)}}
}

// Stat is the metadata record attached to every node.
type Stat struct {
	Czxid          int64 // The zxid of the change that caused this znode to be created.
	Mzxid          int64 // The zxid of the change that last modified this znode.
	Ctime          int64 // Milliseconds from epoch when this znode was created.
	Mtime          int64 // Milliseconds from epoch when this znode was last modified.
	Version        int32 // The number of changes to the data of this znode.
	Cversion       int32 // The number of changes to the children of this znode.
	Aversion       int32 // The number of changes to the ACL of this znode. Always zero here.
	EphemeralOwner int64 // Session id of the owner for ephemeral nodes. Always zero here.
	DataLength     int32 // The length of the data field of this znode.
	NumChildren    int32 // The number of children of this znode.
	Pzxid          int64 // Last modified children. Always zero here.
}

// CreateRequest is the create operation of a Multi call.
type CreateRequest struct {
	Path  string
	Data  []byte
	Acl   []ACL
	Flags int32
}

// DeleteRequest is the delete operation of a Multi call.
// Version -1 matches any node version.
type DeleteRequest struct {
	Path    string
	Version int32
}

// SetDataRequest is the set operation of a Multi call.
type SetDataRequest struct {
	Path    string
	Data    []byte
	Version int32
}

// CheckVersionRequest is the version check operation of a Multi call.
type CheckVersionRequest struct {
	Path    string
	Version int32
}

type CreateResponse struct {
	Zxid int64
	Path string
}

type DeleteResponse struct {
	Zxid int64
}

type ExistsResponse struct {
	Zxid int64
	Stat Stat
}

type GetResponse struct {
	Zxid int64
	Data []byte
	Stat Stat
}

type SetResponse struct {
	Zxid int64
	Stat Stat
}

type ChildrenResponse struct {
	Zxid     int64
	Children []string
	Stat     Stat
}

type CheckResponse struct {
	Zxid int64
}

// MultiOpResponse is the outcome of a single operation inside a Multi.
// Path is filled for create operations, Stat for set operations.
type MultiOpResponse struct {
	Path string
	Stat Stat
	Err  error
}

// MultiResponse holds the per-operation outcomes of a Multi call. When the
// multi failed, Ops holds the outcomes up to and including the first failed
// operation, and the last entry carries its error.
type MultiResponse struct {
	Zxid int64
	Ops  []MultiOpResponse
}
