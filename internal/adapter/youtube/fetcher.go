// Package youtube implements the fetch stage on top of the YouTube Data API v3.
package youtube

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
	"github.com/bnema/tubeaudit/internal/port"
)

const (
	pageSize  = 50
	batchSize = 50

	maxRetries = 4
	retryBase  = time.Second
	retryCap   = 30 * time.Second

	// Quota units per call, as billed by the Data API.
	quotaList   = 1
	quotaSearch = 100
)

var (
	ErrMissingAPIKey   = errors.New("YOUTUBE_API_KEY is not configured")
	ErrChannelNotFound = errors.New("channel not found")
	ErrNoVideos        = errors.New("no videos found in channel")
)

// retryableReasons are googleapi error reasons worth another attempt.
var retryableReasons = map[string]bool{
	"quotaExceeded":         true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"backendError":          true,
}

type Fetcher struct {
	svc       *yt.Service
	hasKey    bool
	retryBase time.Duration
	now       func() time.Time
}

// New builds a fetcher. An empty apiKey is accepted so the process can start;
// every Fetch then fails with ErrMissingAPIKey.
func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Fetcher, error) {
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	} else {
		opts = append([]option.ClientOption{option.WithoutAuthentication()}, opts...)
	}

	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &Fetcher{svc: svc, hasKey: apiKey != "", retryBase: retryBase, now: time.Now}, nil
}

// fetchRun carries per-call state so one Fetcher can serve concurrent jobs.
type fetchRun struct {
	f     *Fetcher
	quota int
}

func (f *Fetcher) Fetch(ctx context.Context, channelURL string, maxVideos int) (*domain.ChannelData, error) {
	if !f.hasKey {
		return nil, ErrMissingAPIKey
	}

	ref, err := domain.ParseChannelRef(channelURL)
	if err != nil {
		return nil, err
	}

	run := &fetchRun{f: f}
	channelID, err := run.resolveChannelID(ctx, ref)
	if err != nil {
		return nil, err
	}

	channel, err := run.channelInfo(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.UploadsPlaylist == "" {
		return nil, fmt.Errorf("channel %s has no uploads playlist", channelID)
	}

	ids, err := run.uploadIDs(ctx, channel.UploadsPlaylist)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoVideos
	}

	videos, err := run.videoDetails(ctx, ids)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(videos, func(a, b domain.Video) int {
		return cmp.Compare(b.ViewCount, a.ViewCount)
	})
	if maxVideos > 0 && len(videos) > maxVideos {
		videos = videos[:maxVideos]
	}

	logger.Info.Printf("fetched %d videos for channel %s (quota ~%d units)", len(videos), channelID, run.quota)
	return &domain.ChannelData{
		Channel: *channel,
		Videos:  videos,
		Metadata: domain.FetchMetadata{
			FetchedAt:  f.now().UTC(),
			VideoCount: len(videos),
			QuotaUsed:  run.quota,
		},
	}, nil
}

func (r *fetchRun) resolveChannelID(ctx context.Context, ref domain.ChannelRef) (string, error) {
	switch ref.Kind {
	case domain.ChannelRefID:
		return ref.Value, nil
	case domain.ChannelRefCustom:
		return r.searchChannel(ctx, ref.Value)
	default:
		// Handles are tried first, then legacy usernames.
		id, err := r.channelIDBy(ctx, func(c *yt.ChannelsListCall) *yt.ChannelsListCall { return c.ForHandle(ref.Value) })
		if err != nil || id != "" {
			return id, err
		}
		id, err = r.channelIDBy(ctx, func(c *yt.ChannelsListCall) *yt.ChannelsListCall { return c.ForUsername(ref.Value) })
		if err != nil {
			return "", err
		}
		if id == "" {
			return "", fmt.Errorf("%w: %s", ErrChannelNotFound, ref.Value)
		}
		return id, nil
	}
}

func (r *fetchRun) channelIDBy(ctx context.Context, filter func(*yt.ChannelsListCall) *yt.ChannelsListCall) (string, error) {
	var id string
	err := r.do(ctx, quotaList, func(ctx context.Context) error {
		resp, err := filter(r.f.svc.Channels.List([]string{"id"})).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) > 0 {
			id = resp.Items[0].Id
		}
		return nil
	})
	return id, err
}

func (r *fetchRun) searchChannel(ctx context.Context, query string) (string, error) {
	var id string
	err := r.do(ctx, quotaSearch, func(ctx context.Context) error {
		resp, err := r.f.svc.Search.List([]string{"snippet"}).
			Q(query).
			Type("channel").
			MaxResults(1).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) > 0 && resp.Items[0].Snippet != nil {
			id = resp.Items[0].Snippet.ChannelId
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrChannelNotFound, query)
	}
	return id, nil
}

func (r *fetchRun) channelInfo(ctx context.Context, channelID string) (*domain.Channel, error) {
	var ch *yt.Channel
	err := r.do(ctx, quotaList, func(ctx context.Context) error {
		resp, err := r.f.svc.Channels.List([]string{"snippet", "statistics", "contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
		}
		ch = resp.Items[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &domain.Channel{ID: ch.Id}
	if s := ch.Snippet; s != nil {
		out.Title = s.Title
		out.Description = s.Description
		out.CustomURL = s.CustomUrl
		out.PublishedAt = s.PublishedAt
		out.Country = s.Country
	}
	if s := ch.Statistics; s != nil {
		out.SubscriberCount = s.SubscriberCount
		out.VideoCount = s.VideoCount
		out.ViewCount = s.ViewCount
	}
	if cd := ch.ContentDetails; cd != nil && cd.RelatedPlaylists != nil {
		out.UploadsPlaylist = cd.RelatedPlaylists.Uploads
	}
	return out, nil
}

func (r *fetchRun) uploadIDs(ctx context.Context, playlistID string) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		var next string
		err := r.do(ctx, quotaList, func(ctx context.Context) error {
			call := r.f.svc.PlaylistItems.List([]string{"contentDetails"}).
				PlaylistId(playlistID).
				MaxResults(pageSize)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			resp, err := call.Context(ctx).Do()
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
					ids = append(ids, item.ContentDetails.VideoId)
				}
			}
			next = resp.NextPageToken
			return nil
		})
		if err != nil {
			return nil, err
		}
		if next == "" {
			return ids, nil
		}
		pageToken = next
	}
}

func (r *fetchRun) videoDetails(ctx context.Context, ids []string) ([]domain.Video, error) {
	videos := make([]domain.Video, 0, len(ids))
	for batch := range slices.Chunk(ids, batchSize) {
		err := r.do(ctx, quotaList, func(ctx context.Context) error {
			resp, err := r.f.svc.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
				Id(batch...).
				Context(ctx).
				Do()
			if err != nil {
				return err
			}
			for _, v := range resp.Items {
				videos = append(videos, toVideo(v))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return videos, nil
}

func toVideo(v *yt.Video) domain.Video {
	out := domain.Video{ID: v.Id}
	if s := v.Snippet; s != nil {
		out.Title = s.Title
		out.Description = s.Description
		out.Tags = s.Tags
		out.PublishedAt = s.PublishedAt
		if t := s.Thumbnails; t != nil {
			switch {
			case t.High != nil:
				out.Thumbnail = t.High.Url
			case t.Default != nil:
				out.Thumbnail = t.Default.Url
			}
		}
	}
	if s := v.Statistics; s != nil {
		out.ViewCount = s.ViewCount
		out.LikeCount = s.LikeCount
		out.CommentCount = s.CommentCount
	}
	if cd := v.ContentDetails; cd != nil {
		out.Duration = cd.Duration
		out.HasCaptions = cd.Caption == "true"
	}
	return out
}

// do runs one API call with exponential backoff on transient failures and
// charges its quota cost once it succeeds.
func (r *fetchRun) do(ctx context.Context, cost int, fn func(context.Context) error) error {
	b := retry.NewExponential(r.f.retryBase)
	b = retry.WithCappedDuration(retryCap, b)
	b = retry.WithMaxRetries(maxRetries, b)

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isRetryable(err) {
			logger.Warn.Printf("youtube API transient error, retrying: %v", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return err
	}
	r.quota += cost
	return nil
}

func isRetryable(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if gErr.Code == http.StatusTooManyRequests || gErr.Code >= 500 {
			return true
		}
		for _, item := range gErr.Errors {
			if retryableReasons[item.Reason] {
				return true
			}
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ port.ChannelFetcher = (*Fetcher)(nil)
