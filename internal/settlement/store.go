package settlement

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/go-errors/errors"
)

var log = btclog.Disabled

// UseLogger sets the package-level logger.
func UseLogger(logger btclog.Logger) { log = logger }

// Store is a durable, crash-safe ledger of settlement Records, keyed by
// task_id (§4.9, grounded on settlement.py's SettlementStore).
type Store struct {
	mu      sync.Mutex
	path    string
	records map[string]*Record
}

type storeFile struct {
	Records []*Record `json:"records"`
}

// NewStore loads (or initializes) a Store backed by the JSON file at path.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, records: map[string]*Record{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Errorf("settlement store: reading %s: %v", s.path, err)
	}
	if len(raw) == 0 {
		return nil
	}

	records, err := decodeStoreFile(raw)
	if err != nil {
		return errors.Errorf("settlement store: decoding %s: %v", s.path, err)
	}
	for _, rec := range records {
		s.records[rec.TaskID] = rec
	}
	return nil
}

// decodeStoreFile accepts both the current `{"records": [...]}` shape and
// the older bare-array shape `[...]` (§4.9: readers tolerate either).
func decodeStoreFile(raw []byte) ([]*Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []*Record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var file storeFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	return file.Records, nil
}

// Upsert inserts or replaces the record for rec.TaskID and persists the
// store immediately (§9: durability after every settlement-state change).
func (s *Store) Upsert(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.TaskID] = rec
	return s.save()
}

// Get returns the record for taskID, or nil if none exists.
func (s *Store) Get(taskID string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[taskID]
}

// GetByInvoiceID scans for the record whose BtcpayInvoiceID matches
// invoiceID, or returns nil if none does.
func (s *Store) GetByInvoiceID(invoiceID string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.BtcpayInvoiceID == invoiceID {
			return rec
		}
	}
	return nil
}

// save rewrites the whole file via write-to-temp-then-rename, matching the
// replay cache's crash-safety strategy (§9). Callers must hold s.mu.
func (s *Store) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Errorf("settlement store: creating directory: %v", err)
		}
	}

	ordered := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		ordered = append(ordered, rec)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].TaskID < ordered[j].TaskID })

	raw, err := json.MarshalIndent(storeFile{Records: ordered}, "", "  ")
	if err != nil {
		return errors.Errorf("settlement store: encoding: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settlement-store-*.tmp")
	if err != nil {
		return errors.Errorf("settlement store: creating temp file: %v", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Errorf("settlement store: writing temp file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Errorf("settlement store: closing temp file: %v", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return errors.Errorf("settlement store: renaming into place: %v", err)
	}

	log.Debugf("settlement store: persisted %d record(s) to %s", len(ordered), s.path)
	return nil
}
