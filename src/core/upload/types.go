package upload

import (
	"fmt"

	"harvest-capture-go/src/core/imaging"
)

// UploadOutcome is the per-file result a Transport reports back. Index i of
// the outcome slice corresponds to index i of the submitted artifacts.
type UploadOutcome struct {
	Filename    string
	Success     bool
	ErrorReason string
}

// FailedArtifact identifies one artifact the transport could not deliver.
type FailedArtifact struct {
	Filename    string `json:"filename"`
	ErrorReason string `json:"error_reason"`
}

// BatchResult is the consolidated outcome of one batch submission, consumed
// immediately by the caller and then discarded; nothing here is persisted.
//
// UploadedArtifacts keeps the caller's selection/capture order. Every input
// artifact appears in exactly one of the two lists, so
// TotalSucceeded + TotalFailed always equals the input batch size.
type BatchResult struct {
	UploadedArtifacts []*imaging.ImageArtifact    `json:"uploaded_artifacts"`
	FailedArtifacts   []FailedArtifact            `json:"failed_artifacts"`
	TotalSucceeded    int                         `json:"total_succeeded"`
	TotalFailed       int                         `json:"total_failed"`
	CompressionStats  []imaging.CompressionResult `json:"compression_stats,omitempty"`
}

// BatchTooLargeError reports a submission exceeding the configured batch cap
// under the reject overflow policy.
type BatchTooLargeError struct {
	Size  int
	Limit int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("batch of %d files exceeds limit of %d", e.Size, e.Limit)
}

// Overflow policies for batches larger than the configured cap.
const (
	PolicyReject   = "reject"
	PolicyTruncate = "truncate"
)
