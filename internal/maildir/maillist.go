package maildir

import "sort"

// MailList is the transactional snapshot of a mailbox used by one POP3
// session. Message numbers are assigned once, at construction, by
// descending modification time with ties broken by ascending UID, so two
// sessions over the same set of files agree on the numbering. Deleting
// drops the number from the lookup map and remembers the UID; the
// original entry vector is kept so Reset can rebuild the snapshot.
type MailList struct {
	original []MailEntry
	entries  []MailEntry
	byNID    map[int]MailEntry
	deleted  map[string]struct{}
}

// NewMailList builds a snapshot from the scanned entries.
func NewMailList(entries []MailEntry) *MailList {
	l := &MailList{original: entries}
	l.Reset()
	return l
}

// Reset discards session deletions and rebuilds the snapshot from the
// owned entry vector. Numbering is unchanged because it is a pure
// function of the entry set.
func (l *MailList) Reset() {
	l.entries = make([]MailEntry, len(l.original))
	copy(l.entries, l.original)

	sort.SliceStable(l.entries, func(i, j int) bool {
		if !l.entries[i].MTime.Equal(l.entries[j].MTime) {
			return l.entries[i].MTime.After(l.entries[j].MTime)
		}
		return l.entries[i].UID < l.entries[j].UID
	})

	l.byNID = make(map[int]MailEntry, len(l.entries))
	for i := range l.entries {
		l.entries[i].NID = i + 1
		l.byNID[i+1] = l.entries[i]
	}
	l.deleted = make(map[string]struct{})
}

// Get returns the live entry with the given message number.
func (l *MailList) Get(nid int) (MailEntry, bool) {
	e, ok := l.byNID[nid]
	return e, ok
}

// Delete marks the entry with the given message number as deleted for
// this session and returns it. A number that was never assigned or was
// already deleted reports false.
func (l *MailList) Delete(nid int) (MailEntry, bool) {
	e, ok := l.byNID[nid]
	if !ok {
		return MailEntry{}, false
	}
	delete(l.byNID, nid)
	l.deleted[e.UID] = struct{}{}
	return e, true
}

// All returns the live entries in message number order.
func (l *MailList) All() []MailEntry {
	live := make([]MailEntry, 0, len(l.byNID))
	for _, e := range l.entries {
		if _, ok := l.byNID[e.NID]; ok {
			live = append(live, e)
		}
	}
	return live
}

// Stat returns the count and total size of the live entries.
func (l *MailList) Stat() (int, int64) {
	var size int64
	count := 0
	for _, e := range l.All() {
		count++
		size += e.Size
	}
	return count, size
}

// DeletedUIDs returns the UIDs deleted in this session.
func (l *MailList) DeletedUIDs() map[string]struct{} {
	return l.deleted
}
