package watch

import "github.com/fsnotify/fsnotify"

// osWatcher adapts *fsnotify.Watcher to the Watcher interface, translating
// fsnotify's bitmask Op into the normalized Event shape the pool dispatches
// on.
type osWatcher struct {
	inner    *fsnotify.Watcher
	events   chan Event
	errs     chan error
	stopOnce chan struct{}
}

// NewOSWatcher constructs a real fsnotify-backed Watcher.
func NewOSWatcher() (Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ow := &osWatcher{
		inner:    w,
		events:   make(chan Event),
		errs:     make(chan error),
		stopOnce: make(chan struct{}),
	}
	go ow.translate()
	return ow, nil
}

func (w *osWatcher) translate() {
	for {
		select {
		case ev, ok := <-w.inner.Events:
			if !ok {
				close(w.events)
				return
			}
			out := Event{Path: ev.Name}
			switch {
			case ev.Op&fsnotify.Create != 0:
				out.Create = true
			case ev.Op&fsnotify.Remove != 0:
				out.Remove = true
			case ev.Op&fsnotify.Rename != 0:
				out.Rename = true
			case ev.Op&fsnotify.Write != 0, ev.Op&fsnotify.Chmod != 0:
				out.Write = true
			default:
				continue
			}
			select {
			case w.events <- out:
			case <-w.stopOnce:
				return
			}
		case err, ok := <-w.inner.Errors:
			if !ok {
				close(w.errs)
				return
			}
			select {
			case w.errs <- err:
			case <-w.stopOnce:
				return
			}
		}
	}
}

func (w *osWatcher) Add(name string) error { return w.inner.Add(name) }
func (w *osWatcher) Remove(name string) error { return w.inner.Remove(name) }
func (w *osWatcher) Events() <-chan Event { return w.events }
func (w *osWatcher) Errors() <-chan error { return w.errs }
func (w *osWatcher) Close() error {
	close(w.stopOnce)
	return w.inner.Close()
}
