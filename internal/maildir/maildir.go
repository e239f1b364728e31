// Package maildir implements the on-disk mail store: Maildir-style
// mailbox directories, the per-session mail list snapshot used by POP3,
// and the per-user deleted-items side file.
//
// Only the new subdirectory is ever read; files under it are treated as
// immutable once named, and the base filename doubles as the POP3 UID.
package maildir

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Subdirectories of a Maildir mailbox.
var subdirs = []string{"new", "tmp", "cur"}

// MailEntry describes one message file under a mailbox's new directory.
type MailEntry struct {
	// UID is the base filename, unique within the Maildir.
	UID string

	// Size is the file size in bytes.
	Size int64

	// MTime orders entries within a session snapshot, newest first.
	MTime time.Time

	// Path is the full path of the message file.
	Path string

	// NID is the 1-based session-local ordinal assigned by MailList.
	NID int
}

// Ensure creates the mailbox directory and its new, tmp and cur
// subdirectories if missing. Mode 0755 throughout.
func Ensure(mboxPath string) error {
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(mboxPath, sub), 0755); err != nil {
			return fmt.Errorf("creating maildir %s: %w", mboxPath, err)
		}
	}
	return nil
}

// NewDir returns the path of the new subdirectory of a mailbox.
func NewDir(mboxPath string) string {
	return filepath.Join(mboxPath, "new")
}

// Scan lists the regular files directly under dir and stats each for
// size and modification time. It does not recurse and ignores
// subdirectories. A missing directory yields an empty list.
func Scan(dir string) ([]MailEntry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	entries := make([]MailEntry, 0, len(dirents))
	for _, de := range dirents {
		if !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Deleted between readdir and stat; not ours anymore.
			continue
		}
		entries = append(entries, MailEntry{
			UID:   de.Name(),
			Size:  info.Size(),
			MTime: info.ModTime(),
			Path:  filepath.Join(dir, de.Name()),
		})
	}
	return entries, nil
}

// LoadDeleted reads a deleted-items file into a set of UIDs. A missing
// file yields an empty set.
func LoadDeleted(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("reading deleted items: %w", err)
	}
	defer f.Close()

	deleted := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if uid := scanner.Text(); uid != "" {
			deleted[uid] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading deleted items: %w", err)
	}
	return deleted, nil
}

// SaveDeleted rewrites a deleted-items file with the given UID set, one
// per line. The rewrite is atomic: content goes to a temp file in the
// same directory which is then renamed over the target, so readers never
// observe a partial file.
func SaveDeleted(path string, uids map[string]struct{}) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("writing deleted items: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for uid := range uids {
		if _, err := fmt.Fprintf(w, "%s\n", uid); err != nil {
			tmp.Close()
			return fmt.Errorf("writing deleted items: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing deleted items: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing deleted items: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing deleted items: %w", err)
	}
	return nil
}

// Deliver copies the staged message file src into the mailbox as
// new/<name>. The copy lands in tmp first and is renamed into new, so it
// appears atomically to readers per the Maildir contract.
func Deliver(src, mboxPath, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("delivering to %s: %w", mboxPath, err)
	}
	defer in.Close()

	tmpPath := filepath.Join(mboxPath, "tmp", name)
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("delivering to %s: %w", mboxPath, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("delivering to %s: %w", mboxPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("delivering to %s: %w", mboxPath, err)
	}

	if err := os.Rename(tmpPath, filepath.Join(mboxPath, "new", name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("delivering to %s: %w", mboxPath, err)
	}
	return nil
}
