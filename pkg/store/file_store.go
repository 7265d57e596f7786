package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vapordeck/vapordeck/pkg/state"
)

const (
	recordExt = ".yaml"
	lockExt   = ".lock"

	// staleLockAge is how old a lock file must be before a writer may
	// assume its holder died and break it.
	staleLockAge = 10 * time.Minute

	// lockRetryInterval and lockWait bound how long a writer polls for
	// a contended lock before giving up with LockedError.
	lockRetryInterval = 25 * time.Millisecond
	lockWait          = 5 * time.Second
)

// FileStore keeps one YAML document per instance under a root
// directory. Saves are atomic (temp file + rename), guarded by a
// per-name lock file and an on-disk fingerprint check.
type FileStore struct {
	root   string
	parser *state.Parser
	logger zerolog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the root directory if needed and returns a store
// over it.
func NewFileStore(root string, parser *state.Parser, logger zerolog.Logger) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("state root directory is required")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create state root %s: %w", root, err)
	}
	return &FileStore{
		root:   root,
		parser: parser,
		logger: logger.With().Str("component", "file-store").Logger(),
	}, nil
}

// Root returns the directory holding the records.
func (s *FileStore) Root() string {
	return s.root
}

// Load reads and validates the record for name.
func (s *FileStore) Load(ctx context.Context, name string) (*state.InstanceState, Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, NoPrior, err
	}
	if err := checkName(name); err != nil {
		return nil, NoPrior, err
	}

	raw, fp, err := s.read(name)
	if err != nil {
		return nil, NoPrior, err
	}

	st, err := s.parser.Parse(raw)
	if err != nil {
		return nil, NoPrior, fmt.Errorf("load instance %s: %w", name, err)
	}
	return st, fp, nil
}

// Save atomically replaces the record for st.Name. Either the full new
// record is visible on the next load or the prior record remains
// intact; a reader never observes a truncated document.
func (s *FileStore) Save(ctx context.Context, st *state.InstanceState, prior Fingerprint) (Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return NoPrior, err
	}
	if err := checkName(st.Name); err != nil {
		return NoPrior, err
	}

	raw, err := s.parser.Serialize(st)
	if err != nil {
		return NoPrior, err
	}

	unlock, err := s.lock(ctx, st.Name)
	if err != nil {
		return NoPrior, err
	}
	defer unlock()

	current, err := s.currentFingerprint(st.Name)
	if err != nil {
		return NoPrior, err
	}
	if current != prior {
		return NoPrior, &ConflictError{Name: st.Name, Expected: prior, Actual: current}
	}

	sealed, err := encryptRecord(raw)
	if err != nil {
		return NoPrior, fmt.Errorf("save instance %s: %w", st.Name, err)
	}
	if err := s.writeAtomic(s.recordPath(st.Name), sealed); err != nil {
		return NoPrior, fmt.Errorf("save instance %s: %w", st.Name, err)
	}

	s.logger.Debug().Str("instance", st.Name).Msg("state record saved")
	return FingerprintOf(raw), nil
}

// Delete removes the record for name, subject to the fingerprint check.
func (s *FileStore) Delete(ctx context.Context, name string, prior Fingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}

	unlock, err := s.lock(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.currentFingerprint(name)
	if err != nil {
		return err
	}
	if current == NoPrior {
		return &NotFoundError{Name: name}
	}
	if current != prior {
		return &ConflictError{Name: name, Expected: prior, Actual: current}
	}

	if err := os.Remove(s.recordPath(name)); err != nil {
		return fmt.Errorf("delete instance %s: %w", name, err)
	}
	s.logger.Debug().Str("instance", name).Msg("state record deleted")
	return nil
}

// List returns the names of all persisted instances.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list state root %s: %w", s.root, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), recordExt))
	}
	return names, nil
}

// read returns the plaintext record bytes and their fingerprint.
func (s *FileStore) read(name string) ([]byte, Fingerprint, error) {
	raw, err := os.ReadFile(s.recordPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NoPrior, &NotFoundError{Name: name}
		}
		return nil, NoPrior, fmt.Errorf("read instance %s: %w", name, err)
	}

	plain, err := decryptRecord(raw)
	if err != nil {
		return nil, NoPrior, fmt.Errorf("read instance %s: %w", name, err)
	}
	return plain, FingerprintOf(plain), nil
}

// currentFingerprint returns the on-disk fingerprint, or NoPrior when
// no record exists.
func (s *FileStore) currentFingerprint(name string) (Fingerprint, error) {
	_, fp, err := s.read(name)
	if err != nil {
		if IsNotFound(err) {
			return NoPrior, nil
		}
		return NoPrior, err
	}
	return fp, nil
}

// writeAtomic writes data next to path and renames it into place, so a
// crash mid-write leaves the prior record untouched.
func (s *FileStore) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.root, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// lock takes the per-name lock file. The lock serializes writers within
// and across processes on one host; the fingerprint check remains the
// authority on conflicts.
func (s *FileStore) lock(ctx context.Context, name string) (func(), error) {
	lockPath := s.recordPath(name) + lockExt

	acquire := func() (bool, error) {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			if os.IsExist(err) {
				return false, nil
			}
			return false, fmt.Errorf("create lock file %s: %w", lockPath, err)
		}
		fmt.Fprintf(f, "owner=%s\npid=%d\ntime=%s\n",
			uuid.NewString(), os.Getpid(), time.Now().UTC().Format(time.RFC3339))
		return true, f.Close()
	}

	deadline := time.Now().Add(lockWait)
	for {
		ok, err := acquire()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}

		// Break the lock only when its holder is clearly gone.
		info, statErr := os.Stat(lockPath)
		if statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			s.logger.Warn().Str("instance", name).Msg("breaking stale state lock")
			os.Remove(lockPath)
			continue
		}

		if time.Now().After(deadline) {
			return nil, &LockedError{Name: name, LockPath: lockPath}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	return func() {
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("instance", name).Msg("failed to release state lock")
		}
	}, nil
}

func (s *FileStore) recordPath(name string) string {
	return filepath.Join(s.root, name+recordExt)
}

// checkName guards the storage key against path traversal; full record
// validation is the parser's job.
func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name is required")
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid instance name %q", name)
	}
	return nil
}
