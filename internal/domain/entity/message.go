package entity

import "github.com/google/uuid"

// JobMessage is the inbound message from the roop.processing queue.
type JobMessage struct {
	JobID      uuid.UUID        `json:"job_id"`
	UserID     string           `json:"user_id"`
	SourceKey  string           `json:"source_key"`
	TargetKey  string           `json:"target_key"`
	Processors []string         `json:"processors,omitempty"`
	Tuning     *ProcessorTuning `json:"tuning,omitempty"`
	SkipAudio  bool             `json:"skip_audio,omitempty"`
	KeepFPS    *bool            `json:"keep_fps,omitempty"`
	UserEmail  string           `json:"user_email"`
}

// JobStatusMessage is the outbound message published with the roop.status routing key.
type JobStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	UserID       string    `json:"user_id"`
	Status       JobStatus `json:"status"`
	TargetKey    string    `json:"target_key"`
	OutputKey    string    `json:"output_key,omitempty"`
	MediaKind    MediaKind `json:"media_kind,omitempty"`
	FrameCount   int       `json:"frame_count,omitempty"`
	FPS          float64   `json:"fps,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}
