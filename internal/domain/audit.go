package domain

import "time"

type Stage string

const (
	StageFetch   Stage = "fetch"
	StageAnalyze Stage = "analyze"
	StageExport  Stage = "export"
	StageReport  Stage = "report"
)

// Stages lists the pipeline in execution order.
var Stages = []Stage{StageFetch, StageAnalyze, StageExport, StageReport}

// ProgressLabel is the progress step shown while the stage runs.
func (s Stage) ProgressLabel() string {
	switch s {
	case StageFetch:
		return "Fetching channel data"
	case StageAnalyze:
		return "Analyzing videos"
	case StageExport:
		return "Exporting Excel report"
	case StageReport:
		return "Generating Markdown report"
	}
	return string(s)
}

// Artifact is the artifact type the stage produces.
func (s Stage) Artifact() ArtifactType {
	switch s {
	case StageFetch:
		return ArtifactRawData
	case StageAnalyze:
		return ArtifactAnalysis
	case StageExport:
		return ArtifactExcelReport
	default:
		return ArtifactMarkdownReport
	}
}

type Channel struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	CustomURL       string `json:"customUrl,omitempty"`
	PublishedAt     string `json:"publishedAt,omitempty"`
	Country         string `json:"country,omitempty"`
	SubscriberCount uint64 `json:"subscriberCount"`
	VideoCount      uint64 `json:"videoCount"`
	ViewCount       uint64 `json:"viewCount"`
	UploadsPlaylist string `json:"uploadsPlaylistId,omitempty"`
}

type Video struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags,omitempty"`
	PublishedAt  string   `json:"publishedAt"`
	Duration     string   `json:"duration"`
	ViewCount    uint64   `json:"viewCount"`
	LikeCount    uint64   `json:"likeCount"`
	CommentCount uint64   `json:"commentCount"`
	HasCaptions  bool     `json:"hasCaptions"`
	Thumbnail    string   `json:"thumbnail,omitempty"`
}

type FetchMetadata struct {
	FetchedAt  time.Time `json:"fetchedAt"`
	VideoCount int       `json:"videoCount"`
	QuotaUsed  int       `json:"quotaUsed"`
}

// ChannelData is the fetch stage output, stored as the raw-data artifact.
type ChannelData struct {
	Channel  Channel       `json:"channel"`
	Videos   []Video       `json:"videos"`
	Metadata FetchMetadata `json:"metadata"`
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Recommendation struct {
	VideoID  string   `json:"videoId,omitempty"`
	Category string   `json:"category"`
	Priority Priority `json:"priority"`
	Message  string   `json:"message"`
}

type VideoScore struct {
	VideoID        string  `json:"videoId"`
	Title          string  `json:"title"`
	ViewCount      uint64  `json:"viewCount"`
	EngagementRate float64 `json:"engagementRate"`
	Score          int     `json:"score"`
}

type AnalysisSummary struct {
	HighPriority   int     `json:"highPriority"`
	MediumPriority int     `json:"mediumPriority"`
	LowPriority    int     `json:"lowPriority"`
	VideosAnalyzed int     `json:"videosAnalyzed"`
	AvgEngagement  float64 `json:"avgEngagement"`
	AvgViews       float64 `json:"avgViews"`
}

// Analysis is the analyze stage output, stored as the analysis artifact.
type Analysis struct {
	ChannelID          string           `json:"channelId"`
	ChannelTitle       string           `json:"channelTitle"`
	ChannelHealthScore int              `json:"channelHealthScore"`
	Summary            AnalysisSummary  `json:"summary"`
	Videos             []VideoScore     `json:"videos"`
	Recommendations    []Recommendation `json:"recommendations"`
	GeneratedAt        time.Time        `json:"generatedAt"`
}

// JobSummary extracts the stored summary metrics.
func (a *Analysis) JobSummary() Summary {
	score := a.ChannelHealthScore
	high := a.Summary.HighPriority
	medium := a.Summary.MediumPriority
	low := a.Summary.LowPriority
	videos := a.Summary.VideosAnalyzed
	return Summary{
		HealthScore:    &score,
		HighPriority:   &high,
		MediumPriority: &medium,
		LowPriority:    &low,
		VideosAnalyzed: &videos,
	}
}

// HealthScore maps priority counts to a 10..100 score.
func HealthScore(high, medium int) int {
	score := 100 - 10*high - 5*medium
	return max(10, min(100, score))
}

// StatusView is the polling projection of a job.
type StatusView struct {
	ID           string         `json:"id"`
	Status       JobStatus      `json:"status"`
	ProgressStep string         `json:"progress_step"`
	ErrorMessage string         `json:"error_message"`
	Summary      Summary        `json:"summary"`
	StartedAt    *time.Time     `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at"`
	Artifacts    []ArtifactInfo `json:"artifacts"`
	LogText      string         `json:"log_text"`
}

type ArtifactInfo struct {
	Type      ArtifactType `json:"artifact_type"`
	SizeBytes int64        `json:"size_bytes"`
	CreatedAt time.Time    `json:"created_at"`
}

func NewStatusView(j *Job, artifacts []*Artifact) StatusView {
	infos := make([]ArtifactInfo, 0, len(artifacts))
	for _, a := range artifacts {
		infos = append(infos, ArtifactInfo{Type: a.Type, SizeBytes: a.SizeBytes, CreatedAt: a.CreatedAt})
	}
	return StatusView{
		ID:           j.ID,
		Status:       j.Status,
		ProgressStep: j.ProgressStep,
		ErrorMessage: j.ErrorMessage,
		Summary:      j.Summary,
		StartedAt:    j.StartedAt,
		FinishedAt:   j.FinishedAt,
		Artifacts:    infos,
		LogText:      j.LogText,
	}
}

type SweepResult struct {
	DeletedJobs      int `json:"deleted_jobs"`
	DeletedArtifacts int `json:"deleted_artifacts"`
	Failed           int `json:"failed"`
}
