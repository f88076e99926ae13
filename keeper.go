package zkmem

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultQueueCapacity = 1024

// New creates a TestKeeper and starts its processing goroutine. All request
// paths are prefixed with rootPath before processing and response paths are
// stripped of it on the way out. operationTimeout bounds how long a request
// may wait for a slot in the request queue.
func New(rootPath string, operationTimeout time.Duration, options ...Option) (*TestKeeper, error) {
	if rootPath != "" && rootPath[0] != '/' {
		return nil, errors.New("zkmem: root path must start with /")
	}
	if operationTimeout <= 0 {
		return nil, errors.New("zkmem: operation timeout must be positive")
	}

	k := &TestKeeper{
		logger: &defaultLoggerImpl{},

		rootPath:         strings.TrimSuffix(rootPath, "/"),
		operationTimeout: operationTimeout,

		timeNow:       time.Now,
		queueCapacity: defaultQueueCapacity,
	}

	for _, option := range options {
		option(k)
	}

	k.store = newDataStore(k.timeNow)
	k.watches = newWatchManager(k.logger)
	k.requests = make(chan requestInfo, k.queueCapacity)

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		k.processingLoop()
	}()

	return k, nil
}

// TestKeeper is a single-session, in-memory stand-in for a ZooKeeper
// ensemble. One goroutine owns the node store and the watch registries and
// processes requests in enqueue order, assigning each one the next zxid.
type TestKeeper struct {
	logger Logger

	rootPath         string
	operationTimeout time.Duration

	timeNow       func() time.Time
	queueCapacity int

	// =================================
	// owned by the processing goroutine
	// =================================
	store   *dataStore
	watches *watchManager
	zxid    int64
	// =================================

	requests chan requestInfo

	// pushMut serializes pushRequest against the transition into expired:
	// once expired is set under the lock, no later push can enqueue, so the
	// finalize drain sees every pending request. The processing goroutine
	// reads the flag without the lock; a missed transition only costs one
	// extra timeout cycle.
	pushMut sync.Mutex
	expired atomic.Bool

	wg sync.WaitGroup
}

// Option ...
type Option func(k *TestKeeper)

func WithLogger(l Logger) Option {
	return func(k *TestKeeper) {
		k.logger = l
	}
}

// WithQueueCapacity overrides the capacity of the bounded request queue.
func WithQueueCapacity(capacity int) Option {
	return func(k *TestKeeper) {
		if capacity > 0 {
			k.queueCapacity = capacity
		}
	}
}

// WithTimeNow overrides the clock used for node ctime/mtime stamps.
func WithTimeNow(nowFunc func() time.Time) Option {
	return func(k *TestKeeper) {
		k.timeNow = nowFunc
	}
}

// requestInfo is one queued request envelope.
type requestInfo struct {
	request  testRequest
	callback func(resp response)
	watch    func(ev Event)
	time     time.Time
}

func (k *TestKeeper) isExpired() bool {
	return k.expired.Load()
}

func (k *TestKeeper) processingLoop() {
	defer func() {
		if r := recover(); r != nil {
			k.logger.Warnf("Processing loop failed: %v", r)
			go k.finalize()
		}
	}()

	timer := time.NewTimer(k.operationTimeout)
	defer timer.Stop()

	for {
		select {
		case info := <-k.requests:
			if k.isExpired() {
				k.respondSessionExpired(info)
				return
			}
			k.processRequest(info)

		case <-timer.C:
			if k.isExpired() {
				return
			}
			timer.Reset(k.operationTimeout)
		}
	}
}

func (k *TestKeeper) processRequest(info requestInfo) {
	// Watches are installed before the request is processed: an Exists on a
	// missing node still leaves a watch that fires on the eventual create.
	if info.watch != nil {
		path := info.request.getPath()
		if _, ok := info.request.(childrenRequest); ok {
			k.watches.addListWatch(path, info.watch)
		} else {
			k.watches.addNodeWatch(path, info.watch)
		}
	}

	// Every dequeued request consumes a zxid, failed ones included.
	k.zxid++

	resp := info.request.withRootPath(k.rootPath).process(k.store, k.zxid)

	if resp.header().err == errOk {
		if trigger, ok := info.request.(watchTrigger); ok {
			trigger.processWatches(k.watches)
		}
	}

	resp.header().zxid = k.zxid
	resp.removeRootPath(k.rootPath)

	if info.callback != nil {
		k.invokeCallback(info.callback, resp)
	}
}

func (k *TestKeeper) invokeCallback(callback func(resp response), resp response) {
	defer func() {
		if r := recover(); r != nil {
			k.logger.Warnf("Completion callback panicked: %v", r)
		}
	}()
	callback(resp)
}

func (k *TestKeeper) respondSessionExpired(info requestInfo) {
	if info.callback != nil {
		resp := info.request.newResponse()
		resp.header().err = errSessionExpired
		k.invokeCallback(info.callback, resp)
	}
	if info.watch != nil {
		k.watches.invoke(info.watch, Event{
			Type:  EventSession,
			State: StateExpired,
			Err:   ErrSessionExpired,
		})
	}
}

// finalize expires the session: it stops the processing goroutine, fires
// every pending watch with a session-expired event, and answers every queued
// request with ErrSessionExpired. Safe to call more than once.
func (k *TestKeeper) finalize() {
	k.pushMut.Lock()
	if k.expired.Load() {
		k.pushMut.Unlock()
		return
	}
	k.expired.Store(true)
	k.pushMut.Unlock()

	k.wg.Wait()

	k.watches.expireAll()

	for {
		select {
		case info := <-k.requests:
			k.respondSessionExpired(info)
		default:
			return
		}
	}
}

// Close expires the session and waits for the processing goroutine to stop.
func (k *TestKeeper) Close() {
	k.finalize()
	k.logger.Infof("Shutdown completed")
}

func (k *TestKeeper) pushRequest(info requestInfo) error {
	info.time = k.timeNow()

	err := k.tryPush(info)
	if err != nil {
		k.finalize()
		return err
	}
	return nil
}

func (k *TestKeeper) tryPush(info requestInfo) error {
	k.pushMut.Lock()
	defer k.pushMut.Unlock()

	if k.expired.Load() {
		return ErrSessionExpired
	}

	timer := time.NewTimer(k.operationTimeout)
	defer timer.Stop()

	select {
	case k.requests <- info:
		return nil
	case <-timer.C:
		return ErrOperationTimeout
	}
}

// Create ...
func (k *TestKeeper) Create(
	path string, data []byte, flags int32, _ []ACL,
	callback func(resp CreateResponse, err error),
) error {
	if err := ValidatePath(path, flags&FlagSequence != 0); err != nil {
		return err
	}

	return k.pushRequest(requestInfo{
		request: createRequest{
			path:         path,
			data:         data,
			isEphemeral:  flags&FlagEphemeral != 0,
			isSequential: flags&FlagSequence != 0,
		},
		callback: func(r response) {
			if callback == nil {
				return
			}
			resp := r.(*createResponse)
			if resp.err != errOk {
				callback(CreateResponse{}, resp.err.toError())
				return
			}
			callback(CreateResponse{Zxid: resp.zxid, Path: resp.pathCreated}, nil)
		},
	})
}

// Delete removes the node at path. Version -1 matches any node version.
func (k *TestKeeper) Delete(
	path string, version int32,
	callback func(resp DeleteResponse, err error),
) error {
	if err := ValidatePath(path, false); err != nil {
		return err
	}

	return k.pushRequest(requestInfo{
		request: deleteRequest{path: path, version: version},
		callback: func(r response) {
			if callback == nil {
				return
			}
			resp := r.(*deleteResponse)
			if resp.err != errOk {
				callback(DeleteResponse{}, resp.err.toError())
				return
			}
			callback(DeleteResponse{Zxid: resp.zxid}, nil)
		},
	})
}

type existsOpts struct {
	watchCallback func(ev Event)
}

type ExistsOption func(opts *existsOpts)

func WithExistsWatch(callback func(ev Event)) ExistsOption {
	return func(opts *existsOpts) {
		if callback == nil {
			return
		}
		opts.watchCallback = callback
	}
}

func (k *TestKeeper) Exists(
	path string,
	callback func(resp ExistsResponse, err error),
	options ...ExistsOption,
) error {
	if err := ValidatePath(path, false); err != nil {
		return err
	}

	opts := existsOpts{}
	for _, fn := range options {
		fn(&opts)
	}

	return k.pushRequest(requestInfo{
		request: existsRequest{path: path},
		callback: func(r response) {
			if callback == nil {
				return
			}
			resp := r.(*existsResponse)
			if resp.err != errOk {
				callback(ExistsResponse{}, resp.err.toError())
				return
			}
			callback(ExistsResponse{Zxid: resp.zxid, Stat: resp.stat}, nil)
		},
		watch: opts.watchCallback,
	})
}

type getOpts struct {
	watchCallback func(ev Event)
}

type GetOption func(opts *getOpts)

func WithGetWatch(callback func(ev Event)) GetOption {
	return func(opts *getOpts) {
		if callback == nil {
			return
		}
		opts.watchCallback = callback
	}
}

func (k *TestKeeper) Get(
	path string,
	callback func(resp GetResponse, err error),
	options ...GetOption,
) error {
	if err := ValidatePath(path, false); err != nil {
		return err
	}

	opts := getOpts{}
	for _, fn := range options {
		fn(&opts)
	}

	return k.pushRequest(requestInfo{
		request: getRequest{path: path},
		callback: func(r response) {
			if callback == nil {
				return
			}
			resp := r.(*getResponse)
			if resp.err != errOk {
				callback(GetResponse{}, resp.err.toError())
				return
			}
			callback(GetResponse{Zxid: resp.zxid, Data: resp.data, Stat: resp.stat}, nil)
		},
		watch: opts.watchCallback,
	})
}

// Set replaces the data of the node at path. Version -1 matches any node
// version.
func (k *TestKeeper) Set(
	path string, data []byte, version int32,
	callback func(resp SetResponse, err error),
) error {
	if err := ValidatePath(path, false); err != nil {
		return err
	}

	return k.pushRequest(requestInfo{
		request: setRequest{path: path, data: data, version: version},
		callback: func(r response) {
			if callback == nil {
				return
			}
			resp := r.(*setResponse)
			if resp.err != errOk {
				callback(SetResponse{}, resp.err.toError())
				return
			}
			callback(SetResponse{Zxid: resp.zxid, Stat: resp.stat}, nil)
		},
	})
}

type childrenOpts struct {
	watchCallback func(ev Event)
}

type ChildrenOption func(opts *childrenOpts)

func WithChildrenWatch(callback func(ev Event)) ChildrenOption {
	return func(opts *childrenOpts) {
		if callback == nil {
			return
		}
		opts.watchCallback = callback
	}
}

func (k *TestKeeper) Children(
	path string,
	callback func(resp ChildrenResponse, err error),
	options ...ChildrenOption,
) error {
	if err := ValidatePath(path, false); err != nil {
		return err
	}

	opts := childrenOpts{}
	for _, fn := range options {
		fn(&opts)
	}

	return k.pushRequest(requestInfo{
		request: childrenRequest{path: path},
		callback: func(r response) {
			if callback == nil {
				return
			}
			resp := r.(*childrenResponse)
			if resp.err != errOk {
				callback(ChildrenResponse{}, resp.err.toError())
				return
			}
			callback(ChildrenResponse{
				Zxid:     resp.zxid,
				Children: resp.children,
				Stat:     resp.stat,
			}, nil)
		},
		watch: opts.watchCallback,
	})
}

// Check verifies the version of the node at path without mutating anything.
func (k *TestKeeper) Check(
	path string, version int32,
	callback func(resp CheckResponse, err error),
) error {
	if err := ValidatePath(path, false); err != nil {
		return err
	}

	return k.pushRequest(requestInfo{
		request: checkRequest{path: path, version: version},
		callback: func(r response) {
			if callback == nil {
				return
			}
			resp := r.(*checkResponse)
			if resp.err != errOk {
				callback(CheckResponse{}, resp.err.toError())
				return
			}
			callback(CheckResponse{Zxid: resp.zxid}, nil)
		},
	})
}

// Multi executes a batch of CreateRequest, DeleteRequest, SetDataRequest and
// CheckVersionRequest operations with all-or-nothing semantics. Any other
// operation kind is rejected with ErrBadArguments before anything is
// enqueued.
func (k *TestKeeper) Multi(
	ops []any,
	callback func(resp MultiResponse, err error),
) error {
	subs := make([]testRequest, 0, len(ops))

	for _, op := range ops {
		sub, err := multiSubRequest(op)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}

	return k.pushRequest(requestInfo{
		request: multiRequest{requests: subs},
		callback: func(r response) {
			if callback == nil {
				return
			}
			resp := r.(*multiResponse)

			result := MultiResponse{
				Zxid: resp.zxid,
				Ops:  make([]MultiOpResponse, 0, len(resp.responses)),
			}
			for _, sub := range resp.responses {
				result.Ops = append(result.Ops, multiOpResponse(sub))
			}
			callback(result, resp.err.toError())
		},
	})
}

func multiSubRequest(op any) (testRequest, error) {
	switch r := op.(type) {
	case *CreateRequest:
		return createSubRequest(r)
	case CreateRequest:
		return createSubRequest(&r)

	case *DeleteRequest:
		return deleteSubRequest(r)
	case DeleteRequest:
		return deleteSubRequest(&r)

	case *SetDataRequest:
		return setSubRequest(r)
	case SetDataRequest:
		return setSubRequest(&r)

	case *CheckVersionRequest:
		return checkSubRequest(r)
	case CheckVersionRequest:
		return checkSubRequest(&r)

	default:
		return nil, ErrBadArguments
	}
}

func createSubRequest(r *CreateRequest) (testRequest, error) {
	if err := ValidatePath(r.Path, r.Flags&FlagSequence != 0); err != nil {
		return nil, err
	}
	return createRequest{
		path:         r.Path,
		data:         r.Data,
		isEphemeral:  r.Flags&FlagEphemeral != 0,
		isSequential: r.Flags&FlagSequence != 0,
	}, nil
}

func deleteSubRequest(r *DeleteRequest) (testRequest, error) {
	if err := ValidatePath(r.Path, false); err != nil {
		return nil, err
	}
	return deleteRequest{path: r.Path, version: r.Version}, nil
}

func setSubRequest(r *SetDataRequest) (testRequest, error) {
	if err := ValidatePath(r.Path, false); err != nil {
		return nil, err
	}
	return setRequest{path: r.Path, data: r.Data, version: r.Version}, nil
}

func checkSubRequest(r *CheckVersionRequest) (testRequest, error) {
	if err := ValidatePath(r.Path, false); err != nil {
		return nil, err
	}
	return checkRequest{path: r.Path, version: r.Version}, nil
}

func multiOpResponse(r response) MultiOpResponse {
	op := MultiOpResponse{Err: r.header().err.toError()}
	switch sub := r.(type) {
	case *createResponse:
		op.Path = sub.pathCreated
	case *setResponse:
		op.Stat = sub.stat
	}
	return op
}
