// Package memory keeps upload versions in process memory. Versions live for
// the lifetime of the process; a restart starts from a clean slate.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

// Store is the in-memory VersionStore. Reads return consistent snapshots:
// the version struct and its job records are copied under the lock, while
// the immutable sheets and reports are shared.
type Store struct {
	mu       sync.RWMutex
	versions map[string]*domain.UploadVersion
	order    []string
	limit    int
}

// NewStore creates a store retaining at most limit versions; the oldest is
// evicted first. limit <= 0 keeps everything.
func NewStore(limit int) *Store {
	return &Store{
		versions: make(map[string]*domain.UploadVersion),
		limit:    limit,
	}
}

func (s *Store) Commit(_ context.Context, version *domain.UploadVersion) error {
	if version == nil || version.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "commit version",
			fmt.Errorf("version id is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.versions[version.ID]; exists {
		return domain.WrapError(domain.ErrConflict, "commit version",
			fmt.Errorf("version %s already committed", version.ID))
	}
	if version.Jobs == nil {
		version.Jobs = make(map[domain.ModelFamily]*domain.TrainingJob)
	}
	s.versions[version.ID] = version
	s.order = append(s.order, version.ID)

	if s.limit > 0 {
		for len(s.order) > s.limit {
			evicted := s.order[0]
			s.order = s.order[1:]
			delete(s.versions, evicted)
		}
	}
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.UploadVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	version, ok := s.versions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get version",
			fmt.Errorf("version %s not found", id))
	}
	return snapshot(version), nil
}

func (s *Store) Current(_ context.Context) (*domain.UploadVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "current version",
			fmt.Errorf("no data uploaded yet"))
	}
	return snapshot(s.versions[s.order[len(s.order)-1]]), nil
}

func (s *Store) List(_ context.Context) ([]domain.VersionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.VersionSummary, 0, len(s.order))
	// Newest first.
	for i := len(s.order) - 1; i >= 0; i-- {
		v := s.versions[s.order[i]]
		out = append(out, domain.VersionSummary{
			ID:        v.ID,
			Filename:  v.Filename,
			CreatedAt: v.CreatedAt,
			Current:   i == len(s.order)-1,
		})
	}
	return out, nil
}

func (s *Store) SaveJob(_ context.Context, versionID string, job *domain.TrainingJob) error {
	if job == nil {
		return domain.WrapError(domain.ErrInvalidInput, "save job", fmt.Errorf("job is nil"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	version, ok := s.versions[versionID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "save job",
			fmt.Errorf("version %s not found", versionID))
	}
	stored := *job
	version.Jobs[job.Family] = &stored
	return nil
}

func (s *Store) SaveForecastModel(_ context.Context, versionID string, model domain.ForecastModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	version, ok := s.versions[versionID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "save forecast model",
			fmt.Errorf("version %s not found", versionID))
	}
	version.ForecastModel = model
	return nil
}

func (s *Store) SaveRecommendationModel(_ context.Context, versionID string, model domain.RecommendationModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	version, ok := s.versions[versionID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "save recommendation model",
			fmt.Errorf("version %s not found", versionID))
	}
	version.RecommendationModel = model
	return nil
}

// snapshot copies the mutable slots. Sheets, parse and quality reports are
// immutable after commit and shared by reference.
func snapshot(v *domain.UploadVersion) *domain.UploadVersion {
	out := *v
	out.Jobs = make(map[domain.ModelFamily]*domain.TrainingJob, len(v.Jobs))
	for family, job := range v.Jobs {
		copied := *job
		out.Jobs[family] = &copied
	}
	return &out
}
