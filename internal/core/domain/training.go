package domain

import "time"

type ModelFamily string

const (
	FamilyForecast  ModelFamily = "forecast"
	FamilyRecommend ModelFamily = "recommend"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobSkipped   JobStatus = "skipped"
)

// Terminal reports whether a status permits re-arming the job to pending.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobSkipped
}

// TrainingJob is the only mutable slot of a committed version. All writes go
// through the orchestrator's transition function; the record doubles as the
// poll-fallback source of truth for progress.
type TrainingJob struct {
	Family     ModelFamily        `json:"model"`
	VersionID  string             `json:"version"`
	Status     JobStatus          `json:"status"`
	Progress   int                `json:"progress"`
	Stage      string             `json:"stage,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
	Error      string             `json:"error,omitempty"`
	ErrorTrace string             `json:"error_trace,omitempty"`
	StartedAt  time.Time          `json:"started_at,omitzero"`
	FinishedAt time.Time          `json:"finished_at,omitzero"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// TrainingEvent is the push-channel payload emitted on every job transition.
// It is a projection of the TrainingJob record, never an independent state.
type TrainingEvent struct {
	Type      string             `json:"type"`
	Model     ModelFamily        `json:"model"`
	VersionID string             `json:"version"`
	Status    JobStatus          `json:"status"`
	Progress  int                `json:"progress"`
	Stage     string             `json:"stage"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Error     string             `json:"error,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

const EventTypeTrainingUpdate = "training_update"

// EventFromJob projects a job record into its broadcast form.
func EventFromJob(job *TrainingJob) TrainingEvent {
	return TrainingEvent{
		Type:      EventTypeTrainingUpdate,
		Model:     job.Family,
		VersionID: job.VersionID,
		Status:    job.Status,
		Progress:  job.Progress,
		Stage:     job.Stage,
		Metrics:   job.Metrics,
		Error:     job.Error,
		Timestamp: job.UpdatedAt,
	}
}
