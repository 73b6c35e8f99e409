package taskindex

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"lonetwatch/lib/timezone"
)

var ErrTaskNotFound = fmt.Errorf("task was never registered")

// Entry is one persisted observation of a task. A null registered
// timestamp marks a task that already existed before tracking began
// (first-run seeding), it never gets backfilled.
type Entry struct {
	Name    string `json:"name"`
	Subject string `json:"thema"`
	// RFC 3339, null for the pre-existing sentinel
	Registered *time.Time `json:"registered"`
}

type indexFile struct {
	Tasks []Entry `json:"tasks"`
}

// Index records every task ever seen, keyed by (subject, name).
// Registration is append-only: an entry is never removed and its
// timestamp never changes.
type Index struct {
	entries []Entry
	keys    map[indexKey]int
}

type indexKey struct {
	subject string
	name    string
}

func newIndex() *Index {
	return &Index{keys: map[indexKey]int{}}
}

// Open reads the persisted index, a missing file starts empty.
// Duplicate (subject, name) pairs are collapsed on load, the last
// occurrence wins.
func Open(path string) (*Index, error) {
	idx := newIndex()

	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, err
	}

	var file indexFile
	err = json.Unmarshal(contents, &file)
	if err != nil {
		return nil, fmt.Errorf("parse index %q: %w", path, err)
	}

	for _, entry := range file.Tasks {
		key := indexKey{subject: entry.Subject, name: entry.Name}
		if at, known := idx.keys[key]; known {
			idx.entries[at] = entry
			continue
		}
		idx.keys[key] = len(idx.entries)
		idx.entries = append(idx.entries, entry)
	}
	return idx, nil
}

func (idx *Index) Len() int {
	return len(idx.entries)
}

func (idx *Index) IsKnown(subject, name string) bool {
	_, known := idx.keys[indexKey{subject: subject, name: name}]
	return known
}

// FirstSeenAt reports when the task was first observed. The zero time
// with a nil error stands for the pre-existing sentinel. Asking about a
// task that was never registered is an API misuse and yields
// ErrTaskNotFound.
func (idx *Index) FirstSeenAt(subject, name string) (time.Time, error) {
	at, known := idx.keys[indexKey{subject: subject, name: name}]
	if !known {
		return time.Time{}, fmt.Errorf("%w: %s/%s", ErrTaskNotFound, subject, name)
	}
	registered := idx.entries[at].Registered
	if registered == nil {
		return time.Time{}, nil
	}
	return *registered, nil
}

// Register inserts a task unless it is already known. The no-op on a
// known task is the safety mechanism that prevents duplicate
// notifications across cycles.
func (idx *Index) Register(subject, name string, preexisting bool) {
	key := indexKey{subject: subject, name: name}
	if _, known := idx.keys[key]; known {
		return
	}

	var registered *time.Time
	if !preexisting {
		now := timezone.Now()
		registered = &now
	}
	idx.keys[key] = len(idx.entries)
	idx.entries = append(idx.entries, Entry{
		Name:       name,
		Subject:    subject,
		Registered: registered,
	})
}

// Save overwrites the index file with the full current record set.
func (idx *Index) Save(path string) error {
	contents, err := json.MarshalIndent(indexFile{Tasks: idx.entries}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, contents, 0600)
}
