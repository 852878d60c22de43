package youtube

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	storehttp "storefeed/http"
	"storefeed/internal/retry"
)

// maxIDsPerRequest is the Data API's cap for maxResults and for the number
// of ids in one videos.list call.
const maxIDsPerRequest = 50

// APICatalogConfig configures an APICatalog.
type APICatalogConfig struct {
	// APIKey is the Data API key. Required.
	APIKey string
	// Endpoint overrides the API base URL (tests point it at httptest).
	Endpoint string
	// HTTP configures the rate-limited, circuit-broken transport.
	HTTP *storehttp.Config
	// Retry configures per-call retries.
	Retry retry.Config
	// Logger receives retry warnings. Nil disables logging.
	Logger *zap.Logger
}

// APICatalog implements Catalog on top of the YouTube Data API v3.
type APICatalog struct {
	service *youtube.Service
	retry   retry.Config
	logger  *zap.Logger
}

var _ Catalog = (*APICatalog)(nil)

// NewAPICatalog builds a Data API client. The key is attached by the
// transport so it survives option.WithHTTPClient.
func NewAPICatalog(ctx context.Context, cfg APICatalogConfig) (*APICatalog, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("youtube: api key required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpCfg := cfg.HTTP
	if httpCfg == nil {
		httpCfg = storehttp.DefaultConfig()
	}
	if httpCfg.Logger == nil {
		httpCfg.Logger = logger
	}
	client := &nethttp.Client{
		Timeout: httpCfg.Timeout,
		Transport: &transport.APIKey{
			Key:       cfg.APIKey,
			Transport: storehttp.NewTransport(httpCfg),
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	retryCfg := cfg.Retry
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Warn("retrying youtube api call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		}
	}

	return &APICatalog{
		service: service,
		retry:   retryCfg,
		logger:  logger,
	}, nil
}

// UploadsPlaylist implements Catalog. A channel that does not exist yields "".
func (a *APICatalog) UploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	var playlistID string

	err := retry.Do(ctx, a.retry, retry.IsRetryableAPIError, func(ctx context.Context) error {
		resp, err := a.service.Channels.List([]string{"contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}

		playlistID = ""
		if len(resp.Items) > 0 {
			ch := resp.Items[0]
			if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
				playlistID = ch.ContentDetails.RelatedPlaylists.Uploads
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return playlistID, nil
}

// PlaylistEntries implements Catalog, following nextPageToken until limit
// entries are collected or the playlist ends.
func (a *APICatalog) PlaylistEntries(ctx context.Context, playlistID string, limit int) ([]PlaylistEntry, error) {
	var entries []PlaylistEntry
	pageToken := ""

	for len(entries) < limit {
		pageSize := min(limit-len(entries), maxIDsPerRequest)
		var resp *youtube.PlaylistItemListResponse

		err := retry.Do(ctx, a.retry, retry.IsRetryableAPIError, func(ctx context.Context) error {
			call := a.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
				PlaylistId(playlistID).
				MaxResults(int64(pageSize)).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			entries = append(entries, playlistEntry(item))
			if len(entries) == limit {
				break
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" || len(resp.Items) == 0 {
			break
		}
	}

	return entries, nil
}

// VideoDetails implements Catalog, batching ids by maxIDsPerRequest.
func (a *APICatalog) VideoDetails(ctx context.Context, ids []string) ([]VideoDetails, error) {
	details := make([]VideoDetails, 0, len(ids))

	for start := 0; start < len(ids); start += maxIDsPerRequest {
		batch := ids[start:min(start+maxIDsPerRequest, len(ids))]
		var resp *youtube.VideoListResponse

		err := retry.Do(ctx, a.retry, retry.IsRetryableAPIError, func(ctx context.Context) error {
			var err error
			resp, err = a.service.Videos.List([]string{"snippet", "contentDetails"}).
				Id(strings.Join(batch, ",")).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, v := range resp.Items {
			details = append(details, videoDetails(v))
		}
	}

	return details, nil
}

func playlistEntry(item *youtube.PlaylistItem) PlaylistEntry {
	var e PlaylistEntry
	if item.ContentDetails != nil {
		e.VideoID = item.ContentDetails.VideoId
	}
	if s := item.Snippet; s != nil {
		if e.VideoID == "" && s.ResourceId != nil {
			e.VideoID = s.ResourceId.VideoId
		}
		e.Title = s.Title
		e.ThumbnailURL = highThumbnail(s.Thumbnails)
		e.PublishedAt = parseTimestamp(s.PublishedAt)
	}
	return e
}

func videoDetails(v *youtube.Video) VideoDetails {
	d := VideoDetails{ID: v.Id}
	if s := v.Snippet; s != nil {
		d.Title = s.Title
		d.ThumbnailURL = highThumbnail(s.Thumbnails)
		d.PublishedAt = parseTimestamp(s.PublishedAt)
	}
	if v.ContentDetails != nil {
		d.Duration = v.ContentDetails.Duration
	}
	return d
}

// highThumbnail returns the "high" rendition URL, the size the storefront displays.
func highThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil || t.High == nil {
		return ""
	}
	return t.High.Url
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
