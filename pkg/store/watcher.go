package store

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ChangeOp classifies an external modification to a record.
type ChangeOp string

const (
	// ChangeUpdated means the record was written or created.
	ChangeUpdated ChangeOp = "updated"

	// ChangeRemoved means the record was deleted or renamed away.
	ChangeRemoved ChangeOp = "removed"
)

// Change reports that a record under the state root was modified
// outside this process. Holders of a loaded record should re-Load and
// pick up the new fingerprint before their next save.
type Change struct {
	Name string
	Op   ChangeOp
}

// Watcher watches a FileStore's root for record modifications made by
// other processes (or humans editing state by hand).
type Watcher struct {
	fsw     *fsnotify.Watcher
	changes chan Change
	done    chan struct{}
	logger  zerolog.Logger
}

// NewWatcher starts watching the store's root directory.
func NewWatcher(s *FileStore, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(s.Root()); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		changes: make(chan Change, 16),
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "state-watcher").Logger(),
	}
	go w.run()
	return w, nil
}

// Changes delivers record modifications. The channel is closed when the
// watcher stops.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.changes)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			name, relevant := recordName(ev.Name)
			if !relevant {
				continue
			}
			var op ChangeOp
			switch {
			case ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create):
				op = ChangeUpdated
			case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
				op = ChangeRemoved
			default:
				continue
			}
			w.logger.Debug().Str("instance", name).Str("op", string(op)).Msg("record changed on disk")
			select {
			case w.changes <- Change{Name: name, Op: op}:
			default:
				// A slow consumer drops notifications rather than
				// blocking the event loop; the fingerprint check still
				// catches the conflict on the next save.
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("state watcher error")
		}
	}
}

// recordName maps an event path to an instance name, filtering out
// temp files, locks and dotfiles.
func recordName(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, recordExt) {
		return "", false
	}
	return strings.TrimSuffix(base, recordExt), true
}
