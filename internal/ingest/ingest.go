// Package ingest validates, authorizes and persists incoming event
// batches.
package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/touchheat/touchheat/internal/models"
)

var (
	// ErrUnauthorized means the batch names a project that does not exist.
	ErrUnauthorized = errors.New("unknown project")
	// ErrDomainRejected means the request's origin domain is not on the
	// project's allowlist, or no origin domain could be determined.
	ErrDomainRejected = errors.New("domain not allowed for this project")
	// ErrStorage wraps persistence failures from the storage collaborator.
	ErrStorage = errors.New("failed to store events")
)

// SchemaError reports every field-level violation found in a batch.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid batch: %s", strings.Join(e.Violations, "; "))
}

// ProjectStore is the external project-lookup collaborator.
type ProjectStore interface {
	LookupProject(projectID string) (*models.Project, error)
}

// EventStore is the external persistence collaborator. Implementations
// stamp the server-side capture timestamp and insert all-or-nothing.
type EventStore interface {
	InsertEvents(projectID string, events []models.TouchEvent) error
}

// Gatekeeper is the server-side ingestion pipeline: schema validation,
// project authorization, domain allowlisting, then atomic persistence.
type Gatekeeper struct {
	projects     ProjectStore
	events       EventStore
	maxBatchSize int
}

// NewGatekeeper wires the two collaborators. maxBatchSize 0 disables the
// batch size cap.
func NewGatekeeper(projects ProjectStore, events EventStore, maxBatchSize int) *Gatekeeper {
	return &Gatekeeper{projects: projects, events: events, maxBatchSize: maxBatchSize}
}

// Ingest processes one batch. origin is the transport-level origin signal
// (the Origin header), may be empty. The batch is accepted in full or
// rejected in full.
func (g *Gatekeeper) Ingest(origin string, batch models.Batch) error {
	if err := validateBatch(batch, g.maxBatchSize); err != nil {
		return err
	}

	project, err := g.projects.LookupProject(batch.ProjectID)
	if err != nil || project == nil {
		return ErrUnauthorized
	}

	if len(project.AllowedDomains) > 0 {
		domain := requestDomain(origin, batch.Events)
		if domain == "" || !domainAllowed(domain, project.AllowedDomains) {
			return ErrDomainRejected
		}
	}

	if err := g.events.InsertEvents(batch.ProjectID, batch.Events); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func validateBatch(batch models.Batch, maxBatchSize int) error {
	var violations []string
	if _, err := uuid.Parse(batch.ProjectID); err != nil {
		violations = append(violations, "project_id: must be a valid UUID")
	}
	if len(batch.Events) == 0 {
		violations = append(violations, "events: batch must contain at least one event")
	}
	if maxBatchSize > 0 && len(batch.Events) > maxBatchSize {
		violations = append(violations,
			fmt.Sprintf("events: batch size %d exceeds max %d", len(batch.Events), maxBatchSize))
	}
	for i, event := range batch.Events {
		violations = append(violations, event.Validate(fmt.Sprintf("events[%d]", i))...)
	}
	if len(violations) > 0 {
		return &SchemaError{Violations: violations}
	}
	return nil
}

// requestDomain prefers the transport-level origin signal and falls back
// to the first event's page URL. Returns "" when neither yields a host.
func requestDomain(origin string, events []models.TouchEvent) string {
	if origin != "" {
		if u, err := url.Parse(origin); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	if len(events) > 0 {
		if u, err := url.Parse(events[0].URL); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return ""
}

// domainAllowed matches exactly or as a subdomain. The dot in the suffix
// check keeps "notexample.com" from matching "example.com".
func domainAllowed(domain string, allowed []string) bool {
	for _, a := range allowed {
		if domain == a || strings.HasSuffix(domain, "."+a) {
			return true
		}
	}
	return false
}
