package task

type ArtifactStatus string

const (
	StatusSucceeded ArtifactStatus = "succeeded"
	StatusFailed    ArtifactStatus = "failed"
	StatusAbandoned ArtifactStatus = "abandoned"
)

// ArtifactOutcome records how one image tag fared: its final status, how many
// invocations it took, and where the raw tool output landed.
type ArtifactOutcome struct {
	ImageTag      string         `json:"image_tag"`
	Status        ArtifactStatus `json:"status"`
	Attempts      int            `json:"attempts"`
	OutputFile    string         `json:"output_file"`
	FailureReason string         `json:"failure_message,omitempty"`
}

type RunResult struct {
	DoneNumber      int64             `json:"artifacts_done_number"`
	SucceededNumber int64             `json:"artifacts_succeeded_number"`
	FailedNumber    int64             `json:"artifacts_failed_number"`
	AbandonedNumber int64             `json:"artifacts_abandoned_number"`
	Artifacts       []ArtifactOutcome `json:"artifacts"`
}

func (r *RunResult) add(outcome ArtifactOutcome) {
	r.Artifacts = append(r.Artifacts, outcome)
	r.DoneNumber += 1
	switch outcome.Status {
	case StatusSucceeded:
		r.SucceededNumber += 1
	case StatusFailed:
		r.FailedNumber += 1
	case StatusAbandoned:
		r.AbandonedNumber += 1
	}
}
