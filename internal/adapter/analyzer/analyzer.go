// Package analyzer scores fetched channel data and produces prioritized
// recommendations.
package analyzer

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/port"
)

const (
	minTitleLength     = 40
	maxTitleLength     = 70
	shortDescription   = 100
	minTagsPerVideo    = 5
	lowEngagement      = 2.0
	highEngagement     = 5.0
	minCommentsPer1k   = 5.0
	sparseUploadDays   = 30.0
	irregularUploadGap = 14.0
	perVideoChecks     = 10
)

var timestampPattern = regexp.MustCompile(`(?m)(^|\s)\d{1,2}:\d{2}(:\d{2})?\b`)

type Analyzer struct {
	now func() time.Time
}

func New() *Analyzer {
	return &Analyzer{now: time.Now}
}

func (a *Analyzer) Analyze(ctx context.Context, data *domain.ChannelData) (*domain.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	videos := data.Videos
	r := &rules{}

	if len(videos) > 0 {
		r.titles(videos)
		r.descriptions(videos)
		r.tags(videos)
		r.captions(videos)
		r.engagement(videos)
		r.schedule(videos)
		r.perVideo(videos)
	}

	slices.SortStableFunc(r.recs, func(x, y domain.Recommendation) int {
		return cmp.Compare(priorityRank(x.Priority), priorityRank(y.Priority))
	})

	summary := domain.AnalysisSummary{VideosAnalyzed: len(videos)}
	for _, rec := range r.recs {
		switch rec.Priority {
		case domain.PriorityHigh:
			summary.HighPriority++
		case domain.PriorityMedium:
			summary.MediumPriority++
		case domain.PriorityLow:
			summary.LowPriority++
		}
	}

	scores := make([]domain.VideoScore, 0, len(videos))
	var totalViews, totalEngagement float64
	for _, v := range videos {
		rate := engagementRate(v)
		totalViews += float64(v.ViewCount)
		totalEngagement += rate
		scores = append(scores, domain.VideoScore{
			VideoID:        v.ID,
			Title:          v.Title,
			ViewCount:      v.ViewCount,
			EngagementRate: round2(rate),
			Score:          videoScore(v, rate),
		})
	}
	if n := float64(len(videos)); n > 0 {
		summary.AvgViews = round2(totalViews / n)
		summary.AvgEngagement = round2(totalEngagement / n)
	}

	recs := r.recs
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	return &domain.Analysis{
		ChannelID:          data.Channel.ID,
		ChannelTitle:       data.Channel.Title,
		ChannelHealthScore: domain.HealthScore(summary.HighPriority, summary.MediumPriority),
		Summary:            summary,
		Videos:             scores,
		Recommendations:    recs,
		GeneratedAt:        a.now().UTC(),
	}, nil
}

type rules struct {
	recs []domain.Recommendation
}

func (r *rules) add(p domain.Priority, category, videoID, format string, args ...any) {
	r.recs = append(r.recs, domain.Recommendation{
		VideoID:  videoID,
		Category: category,
		Priority: p,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (r *rules) titles(videos []domain.Video) {
	avg := average(videos, func(v domain.Video) float64 { return float64(len([]rune(v.Title))) })
	switch {
	case avg > maxTitleLength:
		r.add(domain.PriorityMedium, "Titles", "",
			"Average title length is %d characters; keep titles to 60-70 so they are not cut off in search", int(avg))
	case avg < minTitleLength:
		r.add(domain.PriorityMedium, "Titles", "",
			"Average title length is %d characters; expand titles to 50-70 characters with relevant keywords", int(avg))
	}
}

func (r *rules) descriptions(videos []domain.Video) {
	short := count(videos, func(v domain.Video) bool { return len(strings.TrimSpace(v.Description)) < shortDescription })
	if float64(short) > 0.3*float64(len(videos)) {
		r.add(domain.PriorityHigh, "Descriptions", "",
			"%d of %d videos have descriptions under %d characters; write 300-500 characters with keywords up front",
			short, len(videos), shortDescription)
	}

	stamped := count(videos, func(v domain.Video) bool { return timestampPattern.MatchString(v.Description) })
	if float64(stamped) < 0.5*float64(len(videos)) {
		r.add(domain.PriorityMedium, "Descriptions", "",
			"Only %d of %d videos have chapter timestamps; add them to enable key moments", stamped, len(videos))
	}
}

func (r *rules) tags(videos []domain.Video) {
	untagged := count(videos, func(v domain.Video) bool { return len(v.Tags) == 0 })
	if float64(untagged) > 0.3*float64(len(videos)) {
		r.add(domain.PriorityHigh, "Tags", "",
			"%d of %d videos have no tags", untagged, len(videos))
		return
	}
	avg := average(videos, func(v domain.Video) float64 { return float64(len(v.Tags)) })
	if avg < minTagsPerVideo {
		r.add(domain.PriorityMedium, "Tags", "",
			"Videos average %.1f tags; use 5-15 specific tags per video", avg)
	}
}

func (r *rules) captions(videos []domain.Video) {
	captioned := count(videos, func(v domain.Video) bool { return v.HasCaptions })
	if float64(captioned) < 0.5*float64(len(videos)) {
		r.add(domain.PriorityMedium, "Accessibility", "",
			"Only %d of %d videos have captions; upload captions to reach more viewers", captioned, len(videos))
	}
}

func (r *rules) engagement(videos []domain.Video) {
	avg := average(videos, engagementRate)
	switch {
	case avg < lowEngagement:
		r.add(domain.PriorityHigh, "Engagement", "",
			"Average engagement rate is %.2f%%; add clear calls to action for likes and comments", avg)
	case avg > highEngagement:
		r.add(domain.PriorityLow, "Engagement", "",
			"Engagement rate of %.2f%% is excellent; study the top performers and keep the format", avg)
	}

	var views, comments uint64
	for _, v := range videos {
		views += v.ViewCount
		comments += v.CommentCount
	}
	if views > 0 {
		per1k := float64(comments) / float64(views) * 1000
		if per1k < minCommentsPer1k {
			r.add(domain.PriorityMedium, "Engagement", "",
				"%.1f comments per 1000 views; ask questions and pin comments to start discussion", per1k)
		}
	}
}

func (r *rules) schedule(videos []domain.Video) {
	var dates []time.Time
	for _, v := range videos {
		if t, err := time.Parse(time.RFC3339, v.PublishedAt); err == nil {
			dates = append(dates, t)
		}
	}
	if len(dates) < 3 {
		return
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	span := dates[len(dates)-1].Sub(dates[0]).Hours() / 24
	gap := span / float64(len(dates)-1)
	switch {
	case gap > sparseUploadDays:
		r.add(domain.PriorityHigh, "Schedule", "",
			"Uploads are %.0f days apart on average; aim for at least one upload per week", gap)
	case gap > irregularUploadGap:
		r.add(domain.PriorityMedium, "Schedule", "",
			"Uploads are %.0f days apart on average; a weekly cadence helps retention", gap)
	}
}

// perVideo flags quick wins on the most viewed videos.
func (r *rules) perVideo(videos []domain.Video) {
	top := slices.Clone(videos)
	slices.SortStableFunc(top, func(a, b domain.Video) int { return cmp.Compare(b.ViewCount, a.ViewCount) })
	if len(top) > perVideoChecks {
		top = top[:perVideoChecks]
	}
	for _, v := range top {
		if len(v.Tags) == 0 {
			r.add(domain.PriorityLow, "Quick wins", v.ID, "Add tags to %q, one of the most viewed videos", v.Title)
		}
		if len(strings.TrimSpace(v.Description)) < shortDescription {
			r.add(domain.PriorityLow, "Quick wins", v.ID, "Expand the description of %q", v.Title)
		}
	}
}

func engagementRate(v domain.Video) float64 {
	if v.ViewCount == 0 {
		return 0
	}
	return float64(v.LikeCount+v.CommentCount) / float64(v.ViewCount) * 100
}

// videoScore rates a single video's metadata hygiene from 0 to 100.
func videoScore(v domain.Video, rate float64) int {
	score := 100
	if len(v.Tags) == 0 {
		score -= 20
	}
	if len(strings.TrimSpace(v.Description)) < shortDescription {
		score -= 20
	}
	if n := len([]rune(v.Title)); n < minTitleLength || n > maxTitleLength {
		score -= 15
	}
	if !v.HasCaptions {
		score -= 15
	}
	if rate < lowEngagement {
		score -= 10
	}
	return max(0, score)
}

func priorityRank(p domain.Priority) int {
	switch p {
	case domain.PriorityHigh:
		return 0
	case domain.PriorityMedium:
		return 1
	}
	return 2
}

func average(videos []domain.Video, f func(domain.Video) float64) float64 {
	if len(videos) == 0 {
		return 0
	}
	var sum float64
	for _, v := range videos {
		sum += f(v)
	}
	return sum / float64(len(videos))
}

func count(videos []domain.Video, pred func(domain.Video) bool) int {
	n := 0
	for _, v := range videos {
		if pred(v) {
			n++
		}
	}
	return n
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

var _ port.Analyzer = (*Analyzer)(nil)
