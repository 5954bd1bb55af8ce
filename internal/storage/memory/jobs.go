package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/al3dwii/agenticBE/internal/domain/jobs"
)

// JobRepository is an in-memory implementation of jobs.Repository.
type JobRepository struct {
	mu   sync.RWMutex
	jobs map[string]jobs.Job
}

// NewJobRepository creates an in-memory job repo.
func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[string]jobs.Job)}
}

func (r *JobRepository) FindByID(_ context.Context, tenantID, id string) (jobs.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok || j.TenantID != tenantID {
		return jobs.Job{}, jobs.ErrNotFound
	}
	return j, nil
}

func (r *JobRepository) Save(_ context.Context, job jobs.Job) (jobs.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if job.ID == "" {
		job.ID = newID()
		job.CreatedAt = now
	} else {
		existing, ok := r.jobs[job.ID]
		if ok && existing.TenantID != job.TenantID {
			return jobs.Job{}, jobs.ErrNotFound
		}
		if ok && job.CreatedAt.IsZero() {
			job.CreatedAt = existing.CreatedAt
		}
		if job.CreatedAt.IsZero() {
			job.CreatedAt = now
		}
	}
	job.UpdatedAt = now

	r.jobs[job.ID] = job
	return job, nil
}

func (r *JobRepository) ListByTenant(_ context.Context, tenantID string, offset, limit int) ([]jobs.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []jobs.Job
	for _, j := range r.jobs {
		if j.TenantID == tenantID {
			list = append(list, j)
		}
	}

	// newest first, matching the postgres repository
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	if offset > len(list) {
		return []jobs.Job{}, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}
