package analyzer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/tubeaudit/internal/domain"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAnalyzer() *Analyzer {
	return &Analyzer{now: func() time.Time { return fixedNow }}
}

// healthyVideo passes every channel-level rule.
func healthyVideo(i int) domain.Video {
	return domain.Video{
		ID:           fmt.Sprintf("v%d", i),
		Title:        "A practical walkthrough of building channel audits in Go",
		Description:  "00:00 Intro\n02:30 Setup\n" + strings.Repeat("Detailed notes about the episode. ", 5),
		Tags:         []string{"go", "audit", "youtube", "seo", "tutorial"},
		PublishedAt:  fixedNow.AddDate(0, 0, -7*i).Format(time.RFC3339),
		ViewCount:    10000,
		LikeCount:    250,
		CommentCount: 100,
		HasCaptions:  true,
	}
}

func channelData(videos ...domain.Video) *domain.ChannelData {
	return &domain.ChannelData{
		Channel: domain.Channel{ID: "UC123", Title: "Acme"},
		Videos:  videos,
	}
}

func TestAnalyze_HealthyChannel(t *testing.T) {
	videos := make([]domain.Video, 5)
	for i := range videos {
		videos[i] = healthyVideo(i)
	}

	got, err := newTestAnalyzer().Analyze(context.Background(), channelData(videos...))
	require.NoError(t, err)

	assert.Equal(t, "UC123", got.ChannelID)
	assert.Equal(t, "Acme", got.ChannelTitle)
	assert.Empty(t, got.Recommendations)
	assert.Equal(t, 100, got.ChannelHealthScore)
	assert.Equal(t, 5, got.Summary.VideosAnalyzed)
	assert.InDelta(t, 3.5, got.Summary.AvgEngagement, 0.001)
	assert.InDelta(t, 10000, got.Summary.AvgViews, 0.001)
	assert.Equal(t, fixedNow, got.GeneratedAt)

	require.Len(t, got.Videos, 5)
	for _, s := range got.Videos {
		assert.Equal(t, 100, s.Score)
	}
}

func TestAnalyze_NeglectedChannel(t *testing.T) {
	var videos []domain.Video
	for i := range 4 {
		videos = append(videos, domain.Video{
			ID:          fmt.Sprintf("v%d", i),
			Title:       "Vlog",
			PublishedAt: fixedNow.AddDate(0, 0, -60*i).Format(time.RFC3339),
			ViewCount:   uint64(1000 * (i + 1)),
			LikeCount:   5,
		})
	}

	got, err := newTestAnalyzer().Analyze(context.Background(), channelData(videos...))
	require.NoError(t, err)

	byCategory := map[string]domain.Priority{}
	for _, r := range got.Recommendations {
		if r.VideoID == "" {
			byCategory[r.Category+"/"+string(r.Priority)] = r.Priority
		}
	}
	assert.Contains(t, byCategory, "Titles/medium")
	assert.Contains(t, byCategory, "Descriptions/high")
	assert.Contains(t, byCategory, "Descriptions/medium")
	assert.Contains(t, byCategory, "Tags/high")
	assert.Contains(t, byCategory, "Accessibility/medium")
	assert.Contains(t, byCategory, "Engagement/high")
	assert.Contains(t, byCategory, "Engagement/medium")
	assert.Contains(t, byCategory, "Schedule/high")

	// Channel rules: 4 high, 4 medium. Quick wins: 2 low per video.
	assert.Equal(t, 4, got.Summary.HighPriority)
	assert.Equal(t, 4, got.Summary.MediumPriority)
	assert.Equal(t, 8, got.Summary.LowPriority)
	assert.Equal(t, domain.HealthScore(4, 4), got.ChannelHealthScore)
	assert.Equal(t, 40, got.ChannelHealthScore)

	// Most viewed first among quick wins.
	var quick []string
	for _, r := range got.Recommendations {
		if r.VideoID != "" {
			quick = append(quick, r.VideoID)
		}
	}
	require.NotEmpty(t, quick)
	assert.Equal(t, "v3", quick[0])

	for _, s := range got.Videos {
		assert.Equal(t, 20, s.Score)
	}
}

func TestAnalyze_RecommendationsOrderedByPriority(t *testing.T) {
	videos := []domain.Video{
		{ID: "a", Title: "Short", ViewCount: 100, LikeCount: 10, CommentCount: 1},
		{ID: "b", Title: "Short too", ViewCount: 200, LikeCount: 20, CommentCount: 2},
	}

	got, err := newTestAnalyzer().Analyze(context.Background(), channelData(videos...))
	require.NoError(t, err)
	require.NotEmpty(t, got.Recommendations)

	last := -1
	for _, r := range got.Recommendations {
		rank := priorityRank(r.Priority)
		assert.GreaterOrEqual(t, rank, last, "recommendation %q out of order", r.Message)
		last = rank
	}
}

func TestAnalyze_HealthScoreFloor(t *testing.T) {
	var videos []domain.Video
	for i := range 3 {
		videos = append(videos, domain.Video{
			ID:          fmt.Sprintf("v%d", i),
			Title:       strings.Repeat("very long title ", 6),
			PublishedAt: fixedNow.AddDate(-1, 0, -i*90).Format(time.RFC3339),
			ViewCount:   1000,
		})
	}

	got, err := newTestAnalyzer().Analyze(context.Background(), channelData(videos...))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.ChannelHealthScore, 10)
	assert.LessOrEqual(t, got.ChannelHealthScore, 100)
}

func TestAnalyze_NoVideos(t *testing.T) {
	got, err := newTestAnalyzer().Analyze(context.Background(), channelData())
	require.NoError(t, err)
	assert.Equal(t, 100, got.ChannelHealthScore)
	assert.Empty(t, got.Recommendations)
	assert.NotNil(t, got.Recommendations)
	assert.Equal(t, 0, got.Summary.VideosAnalyzed)
}

func TestAnalyze_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestAnalyzer().Analyze(ctx, channelData(healthyVideo(0)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVideoScore(t *testing.T) {
	tests := []struct {
		name  string
		video domain.Video
		rate  float64
		want  int
	}{
		{"healthy", healthyVideo(0), 3.5, 100},
		{"no tags", func() domain.Video { v := healthyVideo(0); v.Tags = nil; return v }(), 3.5, 80},
		{"no captions low engagement", func() domain.Video { v := healthyVideo(0); v.HasCaptions = false; return v }(), 1, 75},
		{"everything missing", domain.Video{Title: "x"}, 0, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, videoScore(tt.video, tt.rate))
		})
	}
}

func TestEngagementRate(t *testing.T) {
	assert.Zero(t, engagementRate(domain.Video{}))
	assert.InDelta(t, 5.0, engagementRate(domain.Video{ViewCount: 200, LikeCount: 8, CommentCount: 2}), 0.0001)
}
