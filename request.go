package zkmem

import (
	"fmt"
)

// testRequest is one of the eight concrete request kinds. process runs on
// the processing goroutine and is the only place the store is mutated.
type testRequest interface {
	getPath() string
	withRootPath(root string) testRequest

	// newResponse builds an empty response of the matching kind, used when
	// draining the queue after session expiry.
	newResponse() response

	process(s *dataStore, zxid int64) response
}

// watchTrigger is implemented by the mutating request kinds. It is invoked
// only when the request as a whole succeeded.
type watchTrigger interface {
	processWatches(w *watchManager)
}

type response interface {
	header() *responseHeader
	removeRootPath(root string)
}

type responseHeader struct {
	zxid int64
	err  errCode
}

func (h *responseHeader) header() *responseHeader { return h }

func (h *responseHeader) removeRootPath(string) {}

type createResponse struct {
	responseHeader
	pathCreated string
}

func (r *createResponse) removeRootPath(root string) {
	r.pathCreated = trimRootPath(root, r.pathCreated)
}

type deleteResponse struct {
	responseHeader
}

type existsResponse struct {
	responseHeader
	stat Stat
}

type getResponse struct {
	responseHeader
	data []byte
	stat Stat
}

type setResponse struct {
	responseHeader
	stat Stat
}

type childrenResponse struct {
	responseHeader
	children []string
	stat     Stat
}

type checkResponse struct {
	responseHeader
}

type multiResponse struct {
	responseHeader
	responses []response
}

func (r *multiResponse) removeRootPath(root string) {
	for _, sub := range r.responses {
		sub.removeRootPath(root)
	}
}

// ----------------------------------------------------------------------

type createRequest struct {
	path         string
	data         []byte
	isEphemeral  bool
	isSequential bool
}

func (r createRequest) getPath() string { return r.path }

func (r createRequest) withRootPath(root string) testRequest {
	r.path = prefixRootPath(root, r.path)
	return r
}

func (r createRequest) newResponse() response { return &createResponse{} }

func (r createRequest) process(s *dataStore, zxid int64) response {
	resp := &createResponse{}

	if _, ok := s.get(r.path); ok {
		resp.err = errNodeExists
		return resp
	}

	parent, ok := s.get(parentPath(r.path))
	if !ok {
		resp.err = errNoNode
		return resp
	}
	if parent.isEphemeral {
		resp.err = errNoChildrenForEphemerals
		return resp
	}

	nowMs := s.nowMillis()
	created := node{
		data:         r.data,
		isEphemeral:  r.isEphemeral,
		isSequential: r.isSequential,
		stat: Stat{
			Czxid:      zxid,
			Mzxid:      zxid,
			Ctime:      nowMs,
			Mtime:      nowMs,
			DataLength: int32(len(r.data)),
		},
	}

	pathCreated := r.path
	if r.isSequential {
		pathCreated += fmt.Sprintf("%010d", parent.seqNum)
	}

	s.put(pathCreated, created)
	s.update(parentPath(r.path), func(n *node) {
		if r.isSequential {
			n.seqNum++
		}
		n.stat.Cversion++
		n.stat.NumChildren++
	})

	resp.pathCreated = pathCreated
	return resp
}

func (r createRequest) processWatches(w *watchManager) {
	w.fireNodeWatches(r.path, EventNodeCreated)
	w.fireListWatches(parentPath(r.path))
}

// ----------------------------------------------------------------------

type deleteRequest struct {
	path    string
	version int32
}

func (r deleteRequest) getPath() string { return r.path }

func (r deleteRequest) withRootPath(root string) testRequest {
	r.path = prefixRootPath(root, r.path)
	return r
}

func (r deleteRequest) newResponse() response { return &deleteResponse{} }

func (r deleteRequest) process(s *dataStore, _ int64) response {
	resp := &deleteResponse{}

	if r.path == "/" {
		// the root of the namespace is never removable
		resp.err = errBadArguments
		return resp
	}

	n, ok := s.get(r.path)
	if !ok {
		resp.err = errNoNode
		return resp
	}
	if r.version != -1 && r.version != n.stat.Version {
		resp.err = errBadVersion
		return resp
	}
	if n.stat.NumChildren != 0 {
		resp.err = errNotEmpty
		return resp
	}

	s.delete(r.path)
	s.update(parentPath(r.path), func(parent *node) {
		parent.stat.NumChildren--
		parent.stat.Cversion++
	})
	return resp
}

func (r deleteRequest) processWatches(w *watchManager) {
	w.fireNodeWatches(r.path, EventNodeDeleted)
	w.fireListWatches(parentPath(r.path))
}

// ----------------------------------------------------------------------

type existsRequest struct {
	path string
}

func (r existsRequest) getPath() string { return r.path }

func (r existsRequest) withRootPath(root string) testRequest {
	r.path = prefixRootPath(root, r.path)
	return r
}

func (r existsRequest) newResponse() response { return &existsResponse{} }

func (r existsRequest) process(s *dataStore, _ int64) response {
	resp := &existsResponse{}

	n, ok := s.get(r.path)
	if !ok {
		resp.err = errNoNode
		return resp
	}
	resp.stat = n.stat
	return resp
}

// ----------------------------------------------------------------------

type getRequest struct {
	path string
}

func (r getRequest) getPath() string { return r.path }

func (r getRequest) withRootPath(root string) testRequest {
	r.path = prefixRootPath(root, r.path)
	return r
}

func (r getRequest) newResponse() response { return &getResponse{} }

func (r getRequest) process(s *dataStore, _ int64) response {
	resp := &getResponse{}

	n, ok := s.get(r.path)
	if !ok {
		resp.err = errNoNode
		return resp
	}
	resp.data = n.data
	resp.stat = n.stat
	return resp
}

// ----------------------------------------------------------------------

type setRequest struct {
	path    string
	data    []byte
	version int32
}

func (r setRequest) getPath() string { return r.path }

func (r setRequest) withRootPath(root string) testRequest {
	r.path = prefixRootPath(root, r.path)
	return r
}

func (r setRequest) newResponse() response { return &setResponse{} }

func (r setRequest) process(s *dataStore, zxid int64) response {
	resp := &setResponse{}

	n, ok := s.get(r.path)
	if !ok {
		resp.err = errNoNode
		return resp
	}
	if r.version != -1 && r.version != n.stat.Version {
		resp.err = errBadVersion
		return resp
	}

	s.update(r.path, func(n *node) {
		n.data = r.data
		n.stat.Version++
		n.stat.Mzxid = zxid
		n.stat.Mtime = s.nowMillis()
	})
	s.update(parentPath(r.path), func(parent *node) {
		parent.stat.Cversion++
	})

	updated, _ := s.get(r.path)
	resp.stat = updated.stat
	return resp
}

func (r setRequest) processWatches(w *watchManager) {
	w.fireNodeWatches(r.path, EventNodeDataChanged)
}

// ----------------------------------------------------------------------

type childrenRequest struct {
	path string
}

func (r childrenRequest) getPath() string { return r.path }

func (r childrenRequest) withRootPath(root string) testRequest {
	r.path = prefixRootPath(root, r.path)
	return r
}

func (r childrenRequest) newResponse() response { return &childrenResponse{} }

func (r childrenRequest) process(s *dataStore, _ int64) response {
	resp := &childrenResponse{}

	n, ok := s.get(r.path)
	if !ok {
		resp.err = errNoNode
		return resp
	}
	resp.children = s.children(r.path)
	resp.stat = n.stat
	return resp
}

// ----------------------------------------------------------------------

type checkRequest struct {
	path    string
	version int32
}

func (r checkRequest) getPath() string { return r.path }

func (r checkRequest) withRootPath(root string) testRequest {
	r.path = prefixRootPath(root, r.path)
	return r
}

func (r checkRequest) newResponse() response { return &checkResponse{} }

func (r checkRequest) process(s *dataStore, _ int64) response {
	resp := &checkResponse{}

	n, ok := s.get(r.path)
	if !ok {
		resp.err = errNoNode
		return resp
	}
	if r.version != -1 && r.version != n.stat.Version {
		resp.err = errBadVersion
		return resp
	}
	return resp
}

// ----------------------------------------------------------------------

type multiRequest struct {
	requests []testRequest
}

func (r multiRequest) getPath() string { return "" }

func (r multiRequest) withRootPath(root string) testRequest {
	subs := make([]testRequest, 0, len(r.requests))
	for _, sub := range r.requests {
		subs = append(subs, sub.withRootPath(root))
	}
	r.requests = subs
	return r
}

func (r multiRequest) newResponse() response { return &multiResponse{} }

// process executes the sub-requests in order with all-or-nothing semantics:
// the store is restored from a snapshot on the first failing sub-request,
// and also when a sub-request panics.
func (r multiRequest) process(s *dataStore, zxid int64) response {
	resp := &multiResponse{
		responses: make([]response, 0, len(r.requests)),
	}

	snapshot := s.snapshot()
	defer func() {
		if rec := recover(); rec != nil {
			s.restore(snapshot)
			panic(rec)
		}
	}()

	for _, sub := range r.requests {
		subResp := sub.process(s, zxid)
		resp.responses = append(resp.responses, subResp)

		if subErr := subResp.header().err; subErr != errOk {
			resp.err = subErr
			s.restore(snapshot)
			return resp
		}
	}
	return resp
}

func (r multiRequest) processWatches(w *watchManager) {
	for _, sub := range r.requests {
		if trigger, ok := sub.(watchTrigger); ok {
			trigger.processWatches(w)
		}
	}
}
