package zkmem

// watchManager holds the two registries of one-shot watch callbacks: node
// watches keyed by the exact path, and child-list watches keyed by the
// parent path. It is owned by the processing goroutine; finalize touches it
// only after the goroutine has stopped.
type watchManager struct {
	logger Logger

	nodeWatches map[string][]func(ev Event)
	listWatches map[string][]func(ev Event)
}

func newWatchManager(logger Logger) *watchManager {
	return &watchManager{
		logger: logger,

		nodeWatches: map[string][]func(ev Event){},
		listWatches: map[string][]func(ev Event){},
	}
}

func (w *watchManager) addNodeWatch(path string, callback func(ev Event)) {
	w.nodeWatches[path] = append(w.nodeWatches[path], callback)
}

func (w *watchManager) addListWatch(path string, callback func(ev Event)) {
	w.listWatches[path] = append(w.listWatches[path], callback)
}

func (w *watchManager) fireNodeWatches(path string, eventType EventType) {
	callbacks, ok := w.nodeWatches[path]
	if !ok {
		return
	}
	delete(w.nodeWatches, path)

	ev := Event{
		Type:  eventType,
		State: StateHasSession,
		Path:  path,
	}
	for _, callback := range callbacks {
		w.invoke(callback, ev)
	}
}

func (w *watchManager) fireListWatches(path string) {
	callbacks, ok := w.listWatches[path]
	if !ok {
		return
	}
	delete(w.listWatches, path)

	ev := Event{
		Type:  EventNodeChildrenChanged,
		State: StateHasSession,
		Path:  path,
	}
	for _, callback := range callbacks {
		w.invoke(callback, ev)
	}
}

// expireAll fires every pending watch with a session-expired event
// and clears both registries.
func (w *watchManager) expireAll() {
	ev := Event{
		Type:  EventSession,
		State: StateExpired,
		Err:   ErrSessionExpired,
	}

	for _, callbacks := range w.nodeWatches {
		for _, callback := range callbacks {
			w.invoke(callback, ev)
		}
	}
	w.nodeWatches = map[string][]func(ev Event){}

	for _, callbacks := range w.listWatches {
		for _, callback := range callbacks {
			w.invoke(callback, ev)
		}
	}
	w.listWatches = map[string][]func(ev Event){}
}

// invoke calls a user watch callback, recovering and logging a panic so the
// remaining callbacks still fire.
func (w *watchManager) invoke(callback func(ev Event), ev Event) {
	if callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warnf("Watch callback panicked: %v", r)
		}
	}()
	callback(ev)
}
