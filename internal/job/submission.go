package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonesrussell/crawlctl/internal/broker"
	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// Service implements Submission: validating and persisting new jobs, then
// publishing them to the Broker.
type Service struct {
	websites *store.WebsiteRepository
	jobs     *store.JobRepository
	br       *broker.Broker
}

// New wires a Submission Service over the Website/Job stores and the Broker.
func New(websites *store.WebsiteRepository, jobs *store.JobRepository, br *broker.Broker) *Service {
	return &Service{websites: websites, jobs: jobs, br: br}
}

// CreateTemplateJobParams are the inputs to a template-based submission.
type CreateTemplateJobParams struct {
	WebsiteRef  string
	SeedURL     string
	Variables   domain.JSONMap
	Priority    int
	ScheduledAt *time.Time
}

// CreateTemplateJob creates a job referencing a stored Website template.
// Fails with ErrWebsiteNotFound if the website doesn't exist, ErrWebsiteInactive
// if status=inactive. max_retries is pulled from
// config.global.retry.max_attempts when present, else domain.DefaultMaxRetries.
func (s *Service) CreateTemplateJob(ctx context.Context, p CreateTemplateJobParams) (*domain.Job, error) {
	site, err := s.websites.GetByID(ctx, p.WebsiteRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWebsiteNotFound, p.WebsiteRef)
		}
		return nil, err
	}
	if !site.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrWebsiteInactive, site.Name)
	}
	if err := validateSeedURL(p.SeedURL); err != nil {
		return nil, err
	}

	maxRetries, _ := site.MaxRetriesOverride()
	priority := p.Priority
	if priority == 0 {
		priority = domain.DefaultPriority
	}

	websiteRef := site.ID
	j := &domain.Job{
		SeedURL:    p.SeedURL,
		WebsiteRef: &websiteRef,
		Variables:  p.Variables,
		Priority:   priority,
		JobType:    domain.JobTypeOneTime,
		Status:     domain.JobStatusPending,
		MaxRetries: maxRetries,
	}
	if p.ScheduledAt != nil {
		j.ScheduledAt = p.ScheduledAt
	}

	return j, s.createAndPublish(ctx, j)
}

// CreateInlineJobParams are the inputs to an inline submission.
type CreateInlineJobParams struct {
	SeedURL      string
	Steps        []domain.InlineStep
	GlobalConfig domain.JSONMap
	Variables    domain.JSONMap
	Priority     int
}

// CreateInlineJob creates a job carrying its own steps. Fails with
// ErrValidation if step names collide, a browser-method step omits
// browser_type, or SeedURL isn't http/https.
func (s *Service) CreateInlineJob(ctx context.Context, p CreateInlineJobParams) (*domain.Job, error) {
	if err := validateSeedURL(p.SeedURL); err != nil {
		return nil, err
	}
	if err := validateSteps(p.Steps); err != nil {
		return nil, err
	}

	payload := domain.InlineConfigPayload{Steps: p.Steps, GlobalConfig: p.GlobalConfig}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("job: encode inline config: %w", err)
	}
	var inlineConfig domain.JSONMap
	if err := json.Unmarshal(raw, &inlineConfig); err != nil {
		return nil, fmt.Errorf("job: decode inline config: %w", err)
	}

	priority := p.Priority
	if priority == 0 {
		priority = domain.DefaultPriority
	}

	j := &domain.Job{
		SeedURL:      p.SeedURL,
		InlineConfig: inlineConfig,
		Variables:    p.Variables,
		Priority:     priority,
		JobType:      domain.JobTypeOneTime,
		Status:       domain.JobStatusPending,
		MaxRetries:   domain.DefaultMaxRetries,
	}
	return j, s.createAndPublish(ctx, j)
}

// CreateScheduledJob materializes a one-shot template-based Job for a due
// ScheduledJob tick: seed_url comes from the website's
// base_url, and jobConfig overrides become the job's variables.
func (s *Service) CreateScheduledJob(ctx context.Context, websiteRef string, jobConfig domain.JSONMap, scheduledAt time.Time) (*domain.Job, error) {
	site, err := s.websites.GetByID(ctx, websiteRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWebsiteNotFound, websiteRef)
		}
		return nil, err
	}
	if !site.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrWebsiteInactive, site.Name)
	}

	maxRetries, _ := site.MaxRetriesOverride()
	websiteRefCopy := site.ID
	j := &domain.Job{
		SeedURL:     site.BaseURL,
		WebsiteRef:  &websiteRefCopy,
		Variables:   jobConfig,
		Priority:    domain.DefaultPriority,
		JobType:     domain.JobTypeScheduled,
		Status:      domain.JobStatusPending,
		MaxRetries:  maxRetries,
		ScheduledAt: &scheduledAt,
	}
	return j, s.createAndPublish(ctx, j)
}

// createAndPublish persists j (the Store enforces the XOR and status-enum
// invariants at the schema level too) then publishes it to the Broker
// keyed by its own id for dedup.
func (s *Service) createAndPublish(ctx context.Context, j *domain.Job) error {
	if err := s.jobs.Create(ctx, j); err != nil {
		return err
	}

	payload, err := json.Marshal(WirePayload{
		JobID:           j.ID,
		SeedURL:         j.SeedURL,
		JobType:         j.JobType,
		Priority:        j.Priority,
		HasInlineConfig: j.InlineConfig != nil,
	})
	if err != nil {
		return fmt.Errorf("job: encode broker payload: %w", err)
	}
	if err := s.br.Publish(ctx, j.ID, payload); err != nil {
		return fmt.Errorf("job: publish to broker: %w", err)
	}
	return nil
}

// WirePayload is the broker wire format: a JSON object carrying the job
// id plus enough of its shape for a worker to start without a Store read.
type WirePayload struct {
	JobID           string `json:"job_id"`
	SeedURL         string `json:"seed_url"`
	JobType         string `json:"job_type"`
	Priority        int    `json:"priority"`
	HasInlineConfig bool   `json:"has_inline_config"`
}

func validateSeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: seed_url %q is not a valid URL", ErrValidation, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: seed_url scheme must be http or https, got %q", ErrValidation, u.Scheme)
	}
	return nil
}

func validateSteps(steps []domain.InlineStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: inline job must declare at least one step", ErrValidation)
	}
	seen := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		name := strings.TrimSpace(step.Name)
		if name == "" {
			return fmt.Errorf("%w: step name must not be empty", ErrValidation)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate step name %q", ErrValidation, name)
		}
		seen[name] = struct{}{}

		if step.Method == "browser" && (step.BrowserType == nil || strings.TrimSpace(*step.BrowserType) == "") {
			return fmt.Errorf("%w: step %q uses method=browser without a browser_type", ErrValidation, name)
		}
	}
	return nil
}
