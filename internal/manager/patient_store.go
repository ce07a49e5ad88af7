package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"wardwatch/internal/models"
)

// PatientStore serves the patient directory from a JSON fixture file.
// The directory is read once at startup and immutable while running;
// live admission/discharge sync is out of scope for now.
type PatientStore struct {
	path     string
	mu       sync.RWMutex
	patients []models.PatientInfo
	byRoom   map[string]models.PatientInfo
}

// NewPatientStore initializes a directory store at path.
func NewPatientStore(path string) *PatientStore {
	return &PatientStore{path: path, byRoom: make(map[string]models.PatientInfo)}
}

// Load reads the directory from disk. Records with an empty or duplicate
// room, or an unrecognized blood type, are rejected so a bad fixture is
// caught at boot rather than at correlation time.
func (s *PatientStore) Load() error {
	if s.path == "" {
		return errors.New("patient store path not set")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var list []models.PatientInfo
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}

	byRoom := make(map[string]models.PatientInfo, len(list))
	for _, p := range list {
		if p.Room == "" {
			return fmt.Errorf("patient %q %q has no room", p.FirstName, p.LastName)
		}
		if _, dup := byRoom[p.Room]; dup {
			return fmt.Errorf("duplicate room %q in patient directory", p.Room)
		}
		if !models.ValidBloodType(p.BloodType) {
			return fmt.Errorf("room %q: unknown blood type %q", p.Room, p.BloodType)
		}
		byRoom[p.Room] = p
	}

	s.mu.Lock()
	s.patients = list
	s.byRoom = byRoom
	s.mu.Unlock()
	return nil
}

// List returns all directory records in fixture order.
func (s *PatientStore) List() []models.PatientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PatientInfo, len(s.patients))
	copy(out, s.patients)
	return out
}

// ByRoom resolves one room to its patient.
func (s *PatientStore) ByRoom(room string) (models.PatientInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byRoom[room]
	return p, ok
}

// Count returns the number of directory records.
func (s *PatientStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patients)
}
