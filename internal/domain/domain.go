package domain

import (
	"github.com/al3dwii/agenticBE/internal/domain/events"
	"github.com/al3dwii/agenticBE/internal/domain/jobs"
	"github.com/al3dwii/agenticBE/internal/domain/tenants"
	"github.com/al3dwii/agenticBE/internal/domain/webhooks"
)

// Container wires domain services together over a chosen storage backend.
type Container struct {
	Tenants tenants.Service
	Jobs    jobs.Service
	Events  events.Service

	// Deliveries is used directly by the webhook dispatcher; there is no
	// business logic on top of plain persistence.
	Deliveries webhooks.Repository
}

// Options configures the domain container.
type Options struct {
	TenantRepo   tenants.Repository
	JobRepo      jobs.Repository
	EventRepo    events.Repository
	DeliveryRepo webhooks.Repository
}

// New constructs a domain container with provided repositories.
func New(opts Options) Container {
	tenantRepo := opts.TenantRepo
	if tenantRepo == nil {
		tenantRepo = tenants.NullRepository{}
	}

	jobRepo := opts.JobRepo
	if jobRepo == nil {
		jobRepo = jobs.NullRepository{}
	}

	eventRepo := opts.EventRepo
	if eventRepo == nil {
		eventRepo = events.NullRepository{}
	}

	deliveryRepo := opts.DeliveryRepo
	if deliveryRepo == nil {
		deliveryRepo = webhooks.NullRepository{}
	}

	return Container{
		Tenants:    tenants.NewService(tenantRepo),
		Jobs:       jobs.NewService(jobRepo),
		Events:     events.NewService(eventRepo),
		Deliveries: deliveryRepo,
	}
}
