package repository

import "sync"

type watchKey struct {
	collection string
	id         string
}

// watchers fans document changes out to in-process subscribers. Callbacks
// run on the writer's goroutine after the write has committed.
type watchers struct {
	mu     sync.Mutex
	nextID int
	subs   map[watchKey]map[int]ChangeFunc
}

func newWatchers() *watchers {
	return &watchers{subs: make(map[watchKey]map[int]ChangeFunc)}
}

func (w *watchers) subscribe(collection, id string, fn ChangeFunc) func() {
	key := watchKey{collection: collection, id: id}

	w.mu.Lock()
	w.nextID++
	subID := w.nextID
	if w.subs[key] == nil {
		w.subs[key] = make(map[int]ChangeFunc)
	}
	w.subs[key][subID] = fn
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			delete(w.subs[key], subID)
			if len(w.subs[key]) == 0 {
				delete(w.subs, key)
			}
		})
	}
}

func (w *watchers) notify(collection string, doc Document, exists bool) {
	key := watchKey{collection: collection, id: doc.ID}

	w.mu.Lock()
	fns := make([]ChangeFunc, 0, len(w.subs[key]))
	for _, fn := range w.subs[key] {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(copyDocument(doc), exists)
	}
}

func copyDocument(doc Document) Document {
	out := doc
	out.Fields = mergeFields(doc.Fields, nil)
	return out
}
