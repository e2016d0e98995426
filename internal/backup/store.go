// Package backup writes the artifacts okssh leaves behind before and after
// destructive edits: raw copies of files, dconf dumps, restore command files,
// and logs. Nothing in this package ever deletes an artifact.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/okssh/okssh/internal/errors"
)

// TimeLayout is the postfix format: _<day>_<month>_<year>_(<h>:<m>:<s>).
const TimeLayout = "02_01_06_(15:04:05)"

// Store is the save directory plus naming rules shared by every reconciler.
type Store struct {
	// Dir is where restore files, dumps, and command logs are written.
	Dir string
	// TimePostfix adds a timestamp before the extension of every saved file.
	TimePostfix bool
	// Now is the clock used for postfixes. Defaults to time.Now.
	Now func() time.Time
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, timePostfix bool) *Store {
	return &Store{Dir: dir, TimePostfix: timePostfix, Now: time.Now}
}

// Path joins name onto the save directory.
func (s *Store) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// WithTimePostfix inserts a timestamp before the last extension of path:
// 123.tar.gz becomes 123.tar_<stamp>.gz, and a name without a dot gets the
// stamp appended.
func WithTimePostfix(path string, t time.Time) string {
	dir := filepath.Dir(path)
	file := filepath.Base(path)
	postfix := "_" + t.Format(TimeLayout)

	if i := strings.LastIndex(file, "."); i == -1 {
		file += postfix
	} else {
		file = file[:i] + postfix + file[i:]
	}
	return filepath.Join(dir, file)
}

type saveOptions struct {
	mode      os.FileMode
	chmod     bool
	noPostfix bool
}

// SaveOption adjusts a single Save call.
type SaveOption func(*saveOptions)

// WithMode chmods the saved file to mode.
func WithMode(mode os.FileMode) SaveOption {
	return func(o *saveOptions) {
		o.mode = mode
		o.chmod = true
	}
}

// WithoutPostfix writes to path exactly, ignoring Store.TimePostfix.
func WithoutPostfix() SaveOption {
	return func(o *saveOptions) {
		o.noPostfix = true
	}
}

// Save writes data to path, creating parent directories. It returns the path
// actually written, which differs from path when a time postfix applies.
func (s *Store) Save(path string, data []byte, opts ...SaveOption) (string, error) {
	o := saveOptions{mode: 0o644}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrBackup,
			fmt.Sprintf("Can't create directory for %s", path),
			"Check permissions on the save directory.")
	}

	if s.TimePostfix && !o.noPostfix {
		path = WithTimePostfix(path, s.now())
	}

	if err := os.WriteFile(path, data, o.mode); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrBackup,
			fmt.Sprintf("Can't save the file %s", path),
			"Check permissions on the target directory.")
	}

	if o.chmod {
		if err := os.Chmod(path, o.mode); err != nil {
			return "", errors.WrapWithCode(err, errors.ErrBackup,
				fmt.Sprintf("Can't chmod %s", path),
				"")
		}
	}

	return path, nil
}

// SaveLines writes lines joined by newlines.
func (s *Store) SaveLines(path string, lines []string, opts ...SaveOption) (string, error) {
	return s.Save(path, []byte(strings.Join(lines, "\n")), opts...)
}

// CopyPreservingOwner copies path next to itself with a .bak suffix (after the
// optional time postfix), keeping mode, mtime, owner and group. A missing
// source is not an error; the returned path is then empty.
func (s *Store) CopyPreservingOwner(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.WrapWithCode(err, errors.ErrBackup,
			fmt.Sprintf("Can't stat %s", path), "")
	}
	if !info.Mode().IsRegular() {
		return "", nil
	}

	dest := path + ".bak"
	if s.TimePostfix {
		dest = WithTimePostfix(path, s.now()) + ".bak"
	}

	if err := copyFile(path, dest, info.Mode().Perm()); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrBackup,
			fmt.Sprintf("Can't back up %s", path),
			"Check free space and permissions, or run with --not-backup.")
	}

	_ = os.Chtimes(dest, info.ModTime(), info.ModTime())

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		if err := os.Chown(dest, int(st.Uid), int(st.Gid)); err != nil {
			return "", errors.WrapWithCode(err, errors.ErrBackup,
				fmt.Sprintf("Can't preserve ownership of %s", dest),
				"")
		}
	}

	return dest, nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, perm)
}

// ReadFile reads a file required for operation. Partial reads are not
// tolerated: either the full content comes back or a labeled error.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrBackup,
			fmt.Sprintf("Failed to load %s!", path),
			"")
	}
	return data, nil
}
