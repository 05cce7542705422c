package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ArtifactType string

const (
	ArtifactRawData        ArtifactType = "raw-data"
	ArtifactAnalysis       ArtifactType = "analysis"
	ArtifactExcelReport    ArtifactType = "excel-report"
	ArtifactMarkdownReport ArtifactType = "markdown-report"
)

// ArtifactTypes lists every type in pipeline order.
var ArtifactTypes = []ArtifactType{
	ArtifactRawData,
	ArtifactAnalysis,
	ArtifactExcelReport,
	ArtifactMarkdownReport,
}

func ParseArtifactType(s string) (ArtifactType, error) {
	for _, t := range ArtifactTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "artifact_type", Message: fmt.Sprintf("unknown type %q", s)}
}

// FileName is the object name used for the artifact inside the job prefix.
func (t ArtifactType) FileName() string {
	switch t {
	case ArtifactRawData:
		return "raw_data.json"
	case ArtifactAnalysis:
		return "analysis.json"
	case ArtifactExcelReport:
		return "audit_report.xlsx"
	case ArtifactMarkdownReport:
		return "report.md"
	}
	return string(t)
}

func (t ArtifactType) ContentType() string {
	switch t {
	case ArtifactRawData, ArtifactAnalysis:
		return "application/json"
	case ArtifactExcelReport:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ArtifactMarkdownReport:
		return "text/markdown; charset=utf-8"
	}
	return "application/octet-stream"
}

// ArtifactKey is the blob key of an artifact type for a job.
func ArtifactKey(jobID string, t ArtifactType) string {
	return "audits/" + jobID + "/" + t.FileName()
}

type Artifact struct {
	ID        string       `json:"id"`
	JobID     string       `json:"job_id"`
	Type      ArtifactType `json:"artifact_type"`
	Location  string       `json:"-"`
	SizeBytes int64        `json:"size_bytes"`
	CreatedAt time.Time    `json:"created_at"`
}

func NewArtifact(jobID string, t ArtifactType, location string, size int64, now time.Time) *Artifact {
	return &Artifact{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Type:      t,
		Location:  location,
		SizeBytes: size,
		CreatedAt: now.UTC(),
	}
}

// DownloadName is the file name offered to browsers.
func (a *Artifact) DownloadName() string {
	prefix := a.JobID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "audit_" + prefix + "_" + a.Type.FileName()
}

// ArtifactLink is a short-lived retrieval reference.
type ArtifactLink struct {
	URL              string `json:"url"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}
