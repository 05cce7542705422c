// Package excel renders an audit as an .xlsx workbook.
package excel

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/port"
)

const (
	SheetSummary         = "Summary"
	SheetVideos          = "Videos"
	SheetRecommendations = "Recommendations"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Renderer struct{}

func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Render(ctx context.Context, w io.Writer, data *domain.ChannelData, analysis *domain.Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"C00000"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeSummary(f, header, data, analysis); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetVideos); err != nil {
		return fmt.Errorf("create sheet %s: %w", SheetVideos, err)
	}
	if err := writeVideos(f, header, data, analysis); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetRecommendations); err != nil {
		return fmt.Errorf("create sheet %s: %w", SheetRecommendations, err)
	}
	if err := writeRecommendations(f, header, analysis); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, header int, data *domain.ChannelData, a *domain.Analysis) error {
	rows := [][]any{
		{"Metric", "Value"},
		{"Channel", data.Channel.Title},
		{"Channel ID", data.Channel.ID},
		{"Subscribers", data.Channel.SubscriberCount},
		{"Total views", data.Channel.ViewCount},
		{"Total videos", data.Channel.VideoCount},
		{"Videos analyzed", a.Summary.VideosAnalyzed},
		{"Health score", a.ChannelHealthScore},
		{"High priority", a.Summary.HighPriority},
		{"Medium priority", a.Summary.MediumPriority},
		{"Low priority", a.Summary.LowPriority},
		{"Average views", a.Summary.AvgViews},
		{"Average engagement %", a.Summary.AvgEngagement},
		{"Generated at", a.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC")},
	}
	if err := writeRows(f, SheetSummary, rows); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 24); err != nil {
		return fmt.Errorf("set width: %w", err)
	}
	if err := f.SetColWidth(SheetSummary, "B", "B", 40); err != nil {
		return fmt.Errorf("set width: %w", err)
	}
	return f.SetCellStyle(SheetSummary, "A1", "B1", header)
}

func writeVideos(f *excelize.File, header int, data *domain.ChannelData, a *domain.Analysis) error {
	scores := make(map[string]domain.VideoScore, len(a.Videos))
	for _, s := range a.Videos {
		scores[s.VideoID] = s
	}

	rows := [][]any{{"Video ID", "Title", "Published", "Views", "Likes", "Comments", "Engagement %", "Tags", "Captions", "Score"}}
	for _, v := range data.Videos {
		s := scores[v.ID]
		rows = append(rows, []any{
			v.ID, v.Title, v.PublishedAt, v.ViewCount, v.LikeCount, v.CommentCount,
			s.EngagementRate, len(v.Tags), yesNo(v.HasCaptions), s.Score,
		})
	}
	if err := writeRows(f, SheetVideos, rows); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetVideos, "B", "B", 60); err != nil {
		return fmt.Errorf("set width: %w", err)
	}
	return f.SetCellStyle(SheetVideos, "A1", "J1", header)
}

func writeRecommendations(f *excelize.File, header int, a *domain.Analysis) error {
	rows := [][]any{{"Priority", "Category", "Video ID", "Recommendation"}}
	for _, rec := range a.Recommendations {
		rows = append(rows, []any{string(rec.Priority), rec.Category, rec.VideoID, rec.Message})
	}
	if err := writeRows(f, SheetRecommendations, rows); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetRecommendations, "D", "D", 90); err != nil {
		return fmt.Errorf("set width: %w", err)
	}
	return f.SetCellStyle(SheetRecommendations, "A1", "D1", header)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

var _ port.ReportRenderer = (*Renderer)(nil)
