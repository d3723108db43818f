// Package memory implements the directory interfaces with in-memory maps.
// This implementation is for testing only - data is lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mollebakken/artconnect/internal/directory"
)

type storedProfile struct {
	directory.Profile
	CreatedAt time.Time
}

// Directory is an in-memory directory.Directory and directory.Provisioner.
type Directory struct {
	mu       sync.Mutex
	records  map[string]directory.ProvisioningRecord // keyed by subject id
	profiles map[string]storedProfile                // keyed by account id

	// failWith, when set, is returned by the next call. Used to script
	// partial-failure scenarios in tests.
	failWith error
}

// New creates an empty in-memory directory.
func New() *Directory {
	return &Directory{
		records:  make(map[string]directory.ProvisioningRecord),
		profiles: make(map[string]storedProfile),
	}
}

// FailWith arranges for the next directory call to fail with err.
func (d *Directory) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWith = err
}

func (d *Directory) takeFailure() error {
	err := d.failWith
	d.failWith = nil
	return err
}

func (d *Directory) ProvisioningRecord(ctx context.Context, subjectID string) (*directory.ProvisioningRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeFailure(); err != nil {
		return nil, err
	}

	rec, ok := d.records[subjectID]
	if !ok {
		return nil, directory.ErrUnknownSubject
	}

	clone := rec
	return &clone, nil
}

func (d *Directory) CreateProfile(ctx context.Context, accountID string, profile directory.Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeFailure(); err != nil {
		return err
	}

	if _, ok := d.profiles[accountID]; ok {
		return nil
	}

	d.profiles[accountID] = storedProfile{Profile: profile, CreatedAt: time.Now()}
	return nil
}

func (d *Directory) PutProvisioningRecord(ctx context.Context, rec directory.ProvisioningRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeFailure(); err != nil {
		return err
	}

	d.records[rec.SubjectID] = rec
	return nil
}

// Profile returns the stored profile for an account id.
func (d *Directory) Profile(accountID string) (directory.Profile, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored, ok := d.profiles[accountID]
	return stored.Profile, ok
}

// ProfileCount returns the number of stored profiles.
func (d *Directory) ProfileCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.profiles)
}
