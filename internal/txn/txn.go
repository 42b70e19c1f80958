// Package txn implements the Transaction Manager (component G): it takes a
// validated MultiFileChangeset and commits it to disk as a single
// all-or-nothing unit, using a stage-then-atomic-rename protocol adapted
// from the same temp-file-then-os.Rename pattern used throughout this
// codebase for single-file writes.
package txn

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/identedit/identedit/internal/hashing"
	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/schema"
)

// maxMaterializedSize bounds the size of any single file this process will
// write in one transaction, guarding against a malformed changeset turning
// a handful of edits into a multi-gigabyte write.
const maxMaterializedSize = 16 * 1024 * 1024

// locks keeps concurrent transactions touching the same file within this
// process apart: a second transaction that finds a file's lock held fails
// with resource_busy instead of waiting. It is advisory and in-process
// only: two separate identedit invocations racing on the same file are not
// coordinated by this map, only concurrent apply calls inside one
// long-running process (e.g. a daemon) are. A write from another process
// is caught when the file's hash is revalidated (path_changed); an OS
// rename/write failure is reported as internal_error.
var locks = struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}{m: map[string]*sync.Mutex{}}

func lockFor(path string) *sync.Mutex {
	locks.mu.Lock()
	defer locks.mu.Unlock()
	l, ok := locks.m[path]
	if !ok {
		l = &sync.Mutex{}
		locks.m[path] = l
	}
	return l
}

// acquireAll tries to lock every path in order, releasing everything and
// failing fast the first time a lock is already held.
func acquireAll(paths []string) (func(), error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var held []*sync.Mutex
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}

	for _, p := range sorted {
		l := lockFor(p)
		if !l.TryLock() {
			release()
			return nil, ierrors.New(ierrors.ResourceBusy, "file is locked by a concurrent apply in this process: "+p).WithFile(p)
		}
		held = append(held, l)
	}
	return release, nil
}

// Options configures experimental, test-only behavior.
type Options struct {
	// InjectFailureAfterWrites forces a synthetic failure after this many
	// files have been renamed into place, to exercise rollback. Non-zero
	// values are honored only when IDENTEDIT_EXPERIMENTAL is set in the
	// environment, keeping this deterministic failure injection opt-in.
	InjectFailureAfterWrites int
}

func (o Options) injectionActive() bool {
	return o.InjectFailureAfterWrites > 0 && os.Getenv("IDENTEDIT_EXPERIMENTAL") != ""
}

// Result reports what actually got committed.
type Result struct {
	Committed     bool
	Files         []schema.CommittedFile
	InjectedAfter int
}

// stagedFile tracks one file through materialize/stage/commit/rollback.
type stagedFile struct {
	path       string
	tempPath   string
	backupPath string
	hasBackup  bool
	newContent []byte
	newHash    string
	committed  bool
}

// Apply revalidates every file's current hash against the changeset's
// recorded expectation, materializes each file's new content, stages it
// next to the original, then commits all files in ascending path order.
// Any failure before commit leaves the filesystem untouched; any failure
// during commit rolls already-committed files back from their backups.
func Apply(cs *schema.MultiFileChangeset, opts Options) (Result, error) {
	files := make([]string, len(cs.Files))
	for i, f := range cs.Files {
		files[i] = f.File
	}
	release, err := acquireAll(files)
	if err != nil {
		return Result{}, err
	}
	defer release()

	staged := make([]*stagedFile, 0, len(cs.Files))
	for _, fc := range cs.Files {
		sf, err := revalidateAndMaterialize(fc)
		if err != nil {
			return Result{}, err
		}
		staged = append(staged, sf)
	}

	for _, sf := range staged {
		if err := stage(sf); err != nil {
			cleanupStaged(staged)
			return Result{}, err
		}
	}

	sort.Slice(staged, func(i, j int) bool { return staged[i].path < staged[j].path })

	return commitAll(staged, opts)
}

func revalidateAndMaterialize(fc schema.FileChangeset) (*stagedFile, error) {
	original, err := os.ReadFile(fc.File)
	if err != nil {
		return nil, ierrors.Wrap(ierrors.TargetMissing, "reading "+fc.File, err).WithFile(fc.File)
	}
	if fc.ExpectedFileHash != "" && hashing.FileHash(original) != fc.ExpectedFileHash {
		return nil, ierrors.New(ierrors.PathChanged, "file changed since its changeset was built: "+fc.File).
			WithFile(fc.File).
			WithDetails(map[string]string{"expected": fc.ExpectedFileHash, "observed": hashing.FileHash(original)})
	}

	var content []byte
	if fc.WholeFileContent != nil {
		content = fc.WholeFileContent
	} else {
		content, err = Materialize(original, fc.Edits)
		if err != nil {
			return nil, ierrors.Wrap(ierrors.InvalidRequest, "materializing "+fc.File, err).WithFile(fc.File)
		}
	}
	if len(content) > maxMaterializedSize {
		return nil, ierrors.New(ierrors.InvalidRequest, fmt.Sprintf("materialized size of %s (%d bytes) exceeds the %d byte bound", fc.File, len(content), maxMaterializedSize)).WithFile(fc.File)
	}

	return &stagedFile{path: fc.File, newContent: content, newHash: hashing.FileHash(content)}, nil
}

// Materialize applies edits to original and returns the resulting bytes.
// edits must already be sorted and validated non-overlapping (changeset.
// OrderAndValidate); applying right-to-left in byte-offset terms and
// left-to-right in the forward scan below are equivalent because the
// edits never overlap — each is resolved against original's untouched
// offsets regardless of order.
func Materialize(original []byte, edits []schema.SpanEdit) ([]byte, error) {
	out := make([]byte, 0, len(original))
	cursor := 0
	for _, e := range edits {
		if e.Span.Start < cursor || e.Span.End > len(original) || e.Span.Start > e.Span.End {
			return nil, fmt.Errorf("edit span [%d,%d) is out of order or out of bounds for a %d byte file", e.Span.Start, e.Span.End, len(original))
		}
		out = append(out, original[cursor:e.Span.Start]...)
		out = append(out, e.Replacement...)
		cursor = e.Span.End
	}
	out = append(out, original[cursor:]...)
	return out, nil
}

func stage(sf *stagedFile) error {
	dir := filepath.Dir(sf.path)
	sf.tempPath = filepath.Join(dir, "."+filepath.Base(sf.path)+".identedit-"+uuid.NewString()+".tmp")

	if err := os.WriteFile(sf.tempPath, sf.newContent, 0644); err != nil {
		return ierrors.Wrap(ierrors.Internal, "staging "+sf.path, err).WithFile(sf.path)
	}
	if f, err := os.Open(sf.tempPath); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}

	sf.backupPath = filepath.Join(dir, "."+filepath.Base(sf.path)+".identedit-backup-"+uuid.NewString())
	if err := os.Link(sf.path, sf.backupPath); err != nil {
		if copyErr := copyFile(sf.path, sf.backupPath); copyErr != nil {
			_ = os.Remove(sf.tempPath)
			return ierrors.Wrap(ierrors.Internal, "backing up "+sf.path, copyErr).WithFile(sf.path)
		}
	}
	sf.hasBackup = true
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func commitAll(staged []*stagedFile, opts Options) (Result, error) {
	result := Result{}
	dirsTouched := map[string]bool{}

	for i, sf := range staged {
		if err := os.Rename(sf.tempPath, sf.path); err != nil {
			rollbackErr := rollback(staged[:i])
			cleanupAfterCommit(staged)
			if rollbackErr != nil {
				return Result{}, ierrors.Wrap(ierrors.RollbackFailed, "commit failed and rollback could not restore every file", rollbackErr)
			}
			return Result{}, ierrors.Wrap(ierrors.Internal, "committing "+sf.path, err).WithFile(sf.path)
		}
		sf.committed = true
		dirsTouched[filepath.Dir(sf.path)] = true
		result.Files = append(result.Files, schema.CommittedFile{File: sf.path, NewFileHash: sf.newHash})

		if opts.injectionActive() && i+1 == opts.InjectFailureAfterWrites {
			rollbackErr := rollback(staged[:i+1])
			cleanupAfterCommit(staged)
			result.InjectedAfter = i + 1
			if rollbackErr != nil {
				return Result{}, ierrors.Wrap(ierrors.RollbackFailed, "injected failure and rollback could not restore every file", rollbackErr)
			}
			return result, ierrors.New(ierrors.PreconditionFailed, fmt.Sprintf("injected failure after %d writes, transaction aborted and rolled back", i+1))
		}
	}

	for dir := range dirsTouched {
		if d, err := os.Open(dir); err == nil {
			_ = d.Sync()
			_ = d.Close()
		}
	}

	cleanupAfterCommit(staged)
	result.Committed = true
	return result, nil
}

// rollback restores every already-committed file in committed from its
// backup, in descending order, and returns an aggregate error naming any
// file it could not restore.
func rollback(committed []*stagedFile) error {
	var unrecovered []string
	for i := len(committed) - 1; i >= 0; i-- {
		sf := committed[i]
		if !sf.committed || !sf.hasBackup {
			continue
		}
		if err := os.Rename(sf.backupPath, sf.path); err != nil {
			unrecovered = append(unrecovered, sf.path)
		}
	}
	if len(unrecovered) > 0 {
		return fmt.Errorf("could not restore: %v", unrecovered)
	}
	return nil
}

func cleanupStaged(staged []*stagedFile) {
	for _, sf := range staged {
		if sf.tempPath != "" {
			_ = os.Remove(sf.tempPath)
		}
		if sf.hasBackup {
			_ = os.Remove(sf.backupPath)
		}
	}
}

func cleanupAfterCommit(staged []*stagedFile) {
	for _, sf := range staged {
		if sf.hasBackup {
			_ = os.Remove(sf.backupPath)
		}
		if !sf.committed && sf.tempPath != "" {
			_ = os.Remove(sf.tempPath)
		}
	}
}
