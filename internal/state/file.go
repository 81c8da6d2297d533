package state

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"forum/crawler/internal/domain"

	log "github.com/sirupsen/logrus"
)

// JournalFileName is the journal kept inside the state directory.
const JournalFileName = "resume.jsonl"

// fileStore keeps an in-memory record map backed by an append-only JSON-lines
// journal. Each mutation is one line; the latest line per fingerprint wins.
type fileStore struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	records map[string]domain.ResumeRecord
	now     func() time.Time
}

// NewFileStore opens (creating if needed) the journal under dir.
func NewFileStore(dir string) (ResumeStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	s := &fileStore{
		path:    filepath.Join(dir, JournalFileName),
		records: make(map[string]domain.ResumeRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}

	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) IsDone(_ context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fingerprint]
	return ok && rec.Status == domain.StatusDone, nil
}

func (s *fileStore) MarkPending(_ context.Context, fingerprint string) error {
	return s.apply(fingerprint, domain.StatusPending, "")
}

func (s *fileStore) MarkDone(_ context.Context, fingerprint string) error {
	return s.apply(fingerprint, domain.StatusDone, "")
}

func (s *fileStore) MarkFailed(_ context.Context, fingerprint, reason string) error {
	return s.apply(fingerprint, domain.StatusFailed, reason)
}

func (s *fileStore) apply(fingerprint string, status domain.ResumeStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}

	current, ok := s.records[fingerprint]
	if !ok {
		current = domain.ResumeRecord{Fingerprint: fingerprint}
	}
	next, changed := current.Apply(status, reason, s.now())
	if !changed {
		return nil
	}

	line, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode resume record: %w", err)
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to resume journal: %w", err)
	}

	s.records[fingerprint] = next
	return nil
}

func (s *fileStore) Load(_ context.Context) (map[string]domain.ResumeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.ResumeRecord, len(s.records))
	for fp, rec := range s.records {
		out[fp] = rec
	}
	return out, nil
}

// load replays the journal, then rewrites it compacted and reopens it for appends.
func (s *fileStore) load() (map[string]domain.ResumeRecord, error) {
	records, err := readJournal(s.path)
	if err != nil {
		log.Warnf("⚠️ Resume journal %s is unreadable, starting with empty state: %v", s.path, err)
		records = make(map[string]domain.ResumeRecord)
	}

	if err := writeJournal(s.path, records); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open resume journal: %w", err)
	}

	s.file = file
	s.records = records
	log.Infof("📂 Loaded %d resume records from %s", len(records), s.path)
	return records, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// readJournal parses the journal. A missing file is an empty state and an
// unterminated final line is a write cut short by a crash, so it is dropped.
func readJournal(path string) (map[string]domain.ResumeRecord, error) {
	records := make(map[string]domain.ResumeRecord)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return records, nil
	}
	if err != nil {
		return nil, err
	}

	reader := bufio.NewReader(bytes.NewReader(data))
	for lineNo := 1; ; lineNo++ {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			if len(bytes.TrimSpace(line)) > 0 {
				log.Warnf("Ignoring truncated last line %d of resume journal", lineNo)
			}
			return records, nil
		}
		if err != nil {
			return nil, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var rec domain.ResumeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if rec.Fingerprint == "" || !rec.Status.Valid() {
			return nil, fmt.Errorf("line %d: invalid record", lineNo)
		}
		records[rec.Fingerprint] = rec
	}
}

func writeJournal(path string, records map[string]domain.ResumeRecord) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), JournalFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary journal: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to write compacted journal: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write compacted journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close compacted journal: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace resume journal: %w", err)
	}
	return nil
}
