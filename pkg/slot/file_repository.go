package slot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileRepository implements Repository using file-based JSON storage
type FileRepository struct {
	dataDir string
	records map[uuid.UUID]*Record
	options RepositoryOptions
	mutex   sync.Mutex
}

// recordData represents the structure of data stored in the JSON file
type recordData struct {
	Records []*Record `json:"records"`
}

// NewFileRepository creates a new file-based slot repository
func NewFileRepository(dataDir string, options RepositoryOptions) (*FileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if options.MaxDevices <= 0 {
		options.MaxDevices = DefaultMaxDevices
	}

	repo := &FileRepository{
		dataDir: dataDir,
		records: make(map[uuid.UUID]*Record),
		options: options,
	}

	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

// MaxDevices returns the configured device cap
func (r *FileRepository) MaxDevices() int {
	return r.options.MaxDevices
}

// GetRecord retrieves a user's record, creating it with defaults on first use
func (r *FileRepository) GetRecord(ctx context.Context, userID uuid.UUID) (Record, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	record, exists := r.records[userID]
	if !exists {
		fresh := newRecord(userID, r.options.MaxDevices)
		r.records[userID] = &fresh

		if err := r.save(); err != nil {
			delete(r.records, userID)
			return Record{}, fmt.Errorf("failed to save: %w", err)
		}
		record = &fresh
	}

	return cloneRecord(*record), nil
}

// UpdateRecord writes the record back if its version still matches the
// stored one, then bumps the version
func (r *FileRepository) UpdateRecord(ctx context.Context, record Record) (Record, error) {
	if err := validateRecord(record, r.options.MaxDevices); err != nil {
		return Record{}, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, exists := r.records[record.UserID]
	if !exists || stored.Version != record.Version {
		return Record{}, ErrVersionConflict
	}

	record.Version++
	record.LastModifiedAt = time.Now().UTC()
	updated := cloneRecord(record)
	r.records[record.UserID] = &updated

	if err := r.save(); err != nil {
		r.records[record.UserID] = stored
		return Record{}, fmt.Errorf("failed to save: %w", err)
	}

	return cloneRecord(updated), nil
}

// load reads slot records from file
func (r *FileRepository) load() error {
	filePath := filepath.Join(r.dataDir, "slots.json")

	// If file doesn't exist, start with an empty map
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var stored recordData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	r.records = make(map[uuid.UUID]*Record)
	for _, record := range stored.Records {
		r.records[record.UserID] = record
	}

	return nil
}

// save writes slot records to file atomically
func (r *FileRepository) save() error {
	records := make([]*Record, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record)
	}

	jsonData, err := json.MarshalIndent(recordData{Records: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write to temp file first
	tempFile := filepath.Join(r.dataDir, "slots.json.tmp")
	if err := os.WriteFile(tempFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	finalFile := filepath.Join(r.dataDir, "slots.json")
	if err := os.Rename(tempFile, finalFile); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
