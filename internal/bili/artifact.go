package bili

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
)

// Derived artifacts — AI summaries and subtitle tracks. Both are
// computed-once byproducts of a published video, so positive results are
// cached durably (default 24h TTL; the underlying content never changes
// after upload).

const (
	summaryPath  = "/x/web-interface/wbi/view/conclusion/get"
	subtitlePath = "/x/player/wbi/v2"

	summaryKeyPrefix  = "summary:"
	subtitleKeyPrefix = "subtitle:"
)

// Summary is the AI-generated summary of a video.
type Summary struct {
	Bvid    string         `json:"bvid"`
	Text    string         `json:"text"`
	Outline []OutlinePoint `json:"outline,omitempty"`
}

// OutlinePoint is one timestamped chapter of a summary outline.
type OutlinePoint struct {
	Timestamp int64  `json:"timestamp"` // offset into the video, seconds
	Content   string `json:"content"`
}

// Segment is one subtitle cue.
type Segment struct {
	From    float64 `json:"from"`
	To      float64 `json:"to"`
	Content string  `json:"content"`
}

// SubtitleTrack is a parsed subtitle track for a video.
type SubtitleTrack struct {
	Bvid     string    `json:"bvid"`
	Lang     string    `json:"lang"`
	Segments []Segment `json:"segments"`
}

type conclusionData struct {
	Code        int `json:"code"` // 0 = summary exists; -1 = unsupported; 1 = none generated
	ModelResult struct {
		ResultType int    `json:"result_type"`
		Summary    string `json:"summary"`
		Outline    []struct {
			Title       string `json:"title"`
			PartOutline []struct {
				Timestamp int64  `json:"timestamp"`
				Content   string `json:"content"`
			} `json:"part_outline"`
		} `json:"outline"`
	} `json:"model_result"`
}

type playerData struct {
	Subtitle struct {
		Subtitles []struct {
			Lan         string `json:"lan"`
			LanDoc      string `json:"lan_doc"`
			SubtitleURL string `json:"subtitle_url"`
		} `json:"subtitles"`
	} `json:"subtitle"`
}

type subtitleBody struct {
	Body []struct {
		From    float64 `json:"from"`
		To      float64 `json:"to"`
		Content string  `json:"content"`
	} `json:"body"`
}

// Summary fetches the AI summary for a video: resolve → cache → signed
// dispatch → cache the positive result. Returns ErrNoArtifact when the
// video has no summary (unsupported content or none generated yet).
func (c *Client) Summary(ctx context.Context, bvid string) (*Summary, error) {
	var cached Summary
	if ok, err := c.cacheGet(ctx, summaryKeyPrefix+bvid, bvid, &cached); err == nil && ok {
		return &cached, nil
	}

	ref, err := c.Resolve(ctx, bvid)
	if err != nil {
		return nil, downgradeResolveErr(err)
	}

	data, err := c.dispatch(ctx, summaryPath, map[string]string{
		"bvid":   bvid,
		"cid":    strconv.FormatInt(ref.Cid, 10),
		"up_mid": strconv.FormatInt(ref.OwnerMid, 10),
	}, true)
	if err != nil {
		return nil, err
	}

	var conclusion conclusionData
	if err := json.Unmarshal(data, &conclusion); err != nil {
		return nil, &MalformedResponseError{Endpoint: summaryPath, Err: err}
	}
	// The inner code distinguishes "no summary for this video" from a real
	// error; only this exact condition is downgraded to the sentinel.
	if conclusion.Code != 0 || conclusion.ModelResult.Summary == "" {
		return nil, ErrNoArtifact
	}

	summary := &Summary{Bvid: bvid, Text: conclusion.ModelResult.Summary}
	for _, chapter := range conclusion.ModelResult.Outline {
		for _, point := range chapter.PartOutline {
			summary.Outline = append(summary.Outline, OutlinePoint{
				Timestamp: point.Timestamp,
				Content:   point.Content,
			})
		}
	}

	c.cachePut(ctx, summaryKeyPrefix+bvid, bvid, summary)
	return summary, nil
}

// Subtitles fetches and parses the first available subtitle track.
// Returns ErrNoArtifact when the video has no subtitles.
func (c *Client) Subtitles(ctx context.Context, bvid string) (*SubtitleTrack, error) {
	var cached SubtitleTrack
	if ok, err := c.cacheGet(ctx, subtitleKeyPrefix+bvid, bvid, &cached); err == nil && ok {
		return &cached, nil
	}

	ref, err := c.Resolve(ctx, bvid)
	if err != nil {
		return nil, downgradeResolveErr(err)
	}

	data, err := c.dispatch(ctx, subtitlePath, map[string]string{
		"aid": strconv.FormatInt(ref.Aid, 10),
		"cid": strconv.FormatInt(ref.Cid, 10),
	}, true)
	if err != nil {
		return nil, err
	}

	var player playerData
	if err := json.Unmarshal(data, &player); err != nil {
		return nil, &MalformedResponseError{Endpoint: subtitlePath, Err: err}
	}
	if len(player.Subtitle.Subtitles) == 0 {
		return nil, ErrNoArtifact
	}

	pick := player.Subtitle.Subtitles[0]
	trackURL := pick.SubtitleURL
	if strings.HasPrefix(trackURL, "//") {
		trackURL = "https:" + trackURL
	}

	var body subtitleBody
	if err := c.fetchJSON(ctx, trackURL, &body); err != nil {
		return nil, err
	}

	track := &SubtitleTrack{Bvid: bvid, Lang: pick.Lan}
	for _, cue := range body.Body {
		track.Segments = append(track.Segments, Segment{
			From:    cue.From,
			To:      cue.To,
			Content: cue.Content,
		})
	}

	c.cachePut(ctx, subtitleKeyPrefix+bvid, bvid, track)
	return track, nil
}

// SweepCache removes cached artifacts whose key starts with prefix.
// Administrative recovery path, never part of normal requests.
func (c *Client) SweepCache(ctx context.Context, prefix string) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	return c.store.Sweep(ctx, prefix)
}

// downgradeResolveErr maps terminal content-state errors from resolution
// (deleted, restricted, never existed) to the no-artifact sentinel. Auth
// and transport failures pass through untouched.
func downgradeResolveErr(err error) error {
	var business *BusinessError
	if errors.As(err, &business) {
		return ErrNoArtifact
	}
	return err
}

func (c *Client) cacheGet(ctx context.Context, key, identity string, v any) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	raw, ok, err := c.store.Get(ctx, key, identity)
	if err != nil {
		slog.Warn("artifact cache get failed", slog.String("key", key), slog.Any("error", err))
		return false, err
	}
	if !ok {
		cacheLookups.WithLabelValues("miss").Inc()
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		cacheLookups.WithLabelValues("miss").Inc()
		return false, nil // corrupt entry: refetch
	}
	cacheLookups.WithLabelValues("hit").Inc()
	return true, nil
}

func (c *Client) cachePut(ctx context.Context, key, identity string, v any) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.store.Put(ctx, key, raw, identity, c.cfg.ArtifactTTL); err != nil {
		slog.Warn("artifact cache put failed", slog.String("key", key), slog.Any("error", err))
	}
}
