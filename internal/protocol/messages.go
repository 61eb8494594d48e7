// Package protocol defines the bus subjects and message payloads shared
// between the pipeline and its collaborators.
package protocol

import "time"

// ScriptReadyEvent announces a newly written brief script. The payload is
// informational only: every pipeline invocation rediscovers its own work from
// the job store, so a lost or duplicated event is harmless.
type ScriptReadyEvent struct {
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
}

// AudioPublishedEvent announces a completed job and its published asset.
type AudioPublishedEvent struct {
	JobID     string    `json:"job_id"`
	AudioURL  string    `json:"audio_url"`
	SizeBytes int       `json:"size_bytes"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	// SubjectTrigger invokes one pipeline pass. The message body is ignored;
	// the invocation is idempotent and discovers work on its own.
	SubjectTrigger = "briefcast.jobs.trigger"

	// SubjectScriptReady carries ScriptReadyEvent notifications from the
	// script writer.
	SubjectScriptReady = "briefcast.jobs.script"

	// SubjectAudioPublished carries AudioPublishedEvent notifications.
	SubjectAudioPublished = "briefcast.jobs.audio"
)
