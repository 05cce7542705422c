// Package markdown renders an audit as a markdown document.
package markdown

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/port"
)

const (
	ContentType = "text/markdown; charset=utf-8"
	topVideos   = 10
)

//go:embed report.md.tmpl
var reportTemplate string

var tmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"date":  func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 UTC") },
	"comma": func(n uint64) string { return humanize.Comma(int64(n)) },
	"inc":   func(i int) int { return i + 1 },
	"cell":  func(s string) string { return strings.ReplaceAll(s, "|", `\|`) },
}).Parse(reportTemplate))

type group struct {
	Title string
	Items []domain.Recommendation
}

type view struct {
	Channel  domain.Channel
	Analysis *domain.Analysis
	Groups   []group
	Top      []domain.VideoScore
}

type Renderer struct{}

func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Render(ctx context.Context, w io.Writer, data *domain.ChannelData, analysis *domain.Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v := view{
		Channel:  data.Channel,
		Analysis: analysis,
		Top:      analysis.Videos[:min(topVideos, len(analysis.Videos))],
	}
	for _, p := range []struct {
		priority domain.Priority
		title    string
	}{
		{domain.PriorityHigh, "High priority"},
		{domain.PriorityMedium, "Medium priority"},
		{domain.PriorityLow, "Low priority"},
	} {
		var items []domain.Recommendation
		for _, rec := range analysis.Recommendations {
			if rec.Priority == p.priority {
				items = append(items, rec)
			}
		}
		if len(items) > 0 {
			v.Groups = append(v.Groups, group{Title: p.title, Items: items})
		}
	}

	if err := tmpl.Execute(w, v); err != nil {
		return fmt.Errorf("execute report template: %w", err)
	}
	return nil
}

var _ port.ReportRenderer = (*Renderer)(nil)
