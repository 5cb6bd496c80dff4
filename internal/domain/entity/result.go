package entity

type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseConfigResolved   Phase = "config_resolved"
	PhaseResourcesLimited Phase = "resources_limited"
	PhasePreflightChecked Phase = "preflight_checked"
	PhaseImagePath        Phase = "image_path"
	PhaseVideoPath        Phase = "video_path"
	PhaseReassembling     Phase = "reassembling"
	PhaseAudioHandling    Phase = "audio_handling"
	PhaseCleaningUp       Phase = "cleaning_up"
	PhaseSucceeded        Phase = "succeeded"
	PhaseFailed           Phase = "failed"
)

type MediaKind string

const (
	MediaUnknown MediaKind = ""
	MediaImage   MediaKind = "image"
	MediaVideo   MediaKind = "video"
)

// PhaseStatus is one human-readable status line emitted on a phase transition.
type PhaseStatus struct {
	Phase   Phase
	Scope   string
	Message string
	Warning bool
}

// PipelineResult is the outcome of one orchestrated job.
type PipelineResult struct {
	Success    bool
	OutputPath string
	MediaKind  MediaKind
	FrameCount int
	FPS        float64
	Statuses   []PhaseStatus
	// Err is the terminal error when Success is false. Non-fatal problems
	// (reassembly, audio) are kept in Warnings.
	Err      error
	Warnings []error
}

// Final returns the last phase recorded.
func (r *PipelineResult) Final() Phase {
	if r == nil || len(r.Statuses) == 0 {
		return PhaseIdle
	}
	return r.Statuses[len(r.Statuses)-1].Phase
}
