package port

import (
	"context"
	"io"

	"github.com/bnema/tubeaudit/internal/domain"
)

type ChannelFetcher interface {
	Fetch(ctx context.Context, channelURL string, maxVideos int) (*domain.ChannelData, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, data *domain.ChannelData) (*domain.Analysis, error)
}

// ReportRenderer writes one report format for a finished analysis.
type ReportRenderer interface {
	Render(ctx context.Context, w io.Writer, data *domain.ChannelData, analysis *domain.Analysis) error
}
