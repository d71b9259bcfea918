package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeInvoiceRetry JobType = "invoice_retry"
	JobTypeSendEmail    JobType = "send_email"
	JobTypeArchiveEvent JobType = "archive_event"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// InvoiceRetryJobPayload asks the rotation engine to settle an invoice.
type InvoiceRetryJobPayload struct {
	InvoiceID       string `json:"invoice_id"`
	PreferredMethod string `json:"preferred_method,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// ToMap converts the payload to a map for storage
func (p InvoiceRetryJobPayload) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"invoice_id": p.InvoiceID,
	}
	if p.PreferredMethod != "" {
		m["preferred_method"] = p.PreferredMethod
	}
	if p.Reason != "" {
		m["reason"] = p.Reason
	}
	return m
}

func InvoiceRetryJobPayloadFromMap(data map[string]interface{}) (*InvoiceRetryJobPayload, error) {
	var payload InvoiceRetryJobPayload
	if err := fromMap(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// SendEmailJobPayload contains a rendered e-mail.
type SendEmailJobPayload struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	TenantID uint   `json:"tenant_id,omitempty"`
}

func (p SendEmailJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"to":        p.To,
		"subject":   p.Subject,
		"body":      p.Body,
		"tenant_id": p.TenantID,
	}
}

func SendEmailJobPayloadFromMap(data map[string]interface{}) (*SendEmailJobPayload, error) {
	var payload SendEmailJobPayload
	if err := fromMap(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ArchiveEventJobPayload carries a raw provider payload to the archive.
type ArchiveEventJobPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Payload   string `json:"payload"`
}

func (p ArchiveEventJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_id":   p.EventID,
		"event_type": p.EventType,
		"payload":    p.Payload,
	}
}

func ArchiveEventJobPayloadFromMap(data map[string]interface{}) (*ArchiveEventJobPayload, error) {
	var payload ArchiveEventJobPayload
	if err := fromMap(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func fromMap(data map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
