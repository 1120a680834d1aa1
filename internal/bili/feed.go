package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const feedPath = "/x/polymer/web-dynamic/v1/feed/space"

// feed item type marking a video upload; other dynamic types (text posts,
// reposts, drafts) are skipped, not erred.
const dynamicTypeVideo = "DYNAMIC_TYPE_AV"

// VideoEntry is one video from an uploader's recent-activity feed.
type VideoEntry struct {
	Bvid        string `json:"bvid"`
	Title       string `json:"title"`
	CoverURL    string `json:"cover_url"`
	DurationSec int    `json:"duration_sec"`
	Plays       int64  `json:"plays"`
	PublishedAt int64  `json:"published_at"` // unix seconds
}

type feedData struct {
	Items []struct {
		Type    string `json:"type"`
		Modules struct {
			ModuleAuthor struct {
				PubTs int64 `json:"pub_ts"`
			} `json:"module_author"`
			ModuleDynamic struct {
				Major struct {
					Archive *struct {
						Bvid         string `json:"bvid"`
						Title        string `json:"title"`
						Cover        string `json:"cover"`
						DurationText string `json:"duration_text"`
						Stat         struct {
							Play string `json:"play"`
						} `json:"stat"`
					} `json:"archive"`
				} `json:"major"`
			} `json:"module_dynamic"`
		} `json:"modules"`
	} `json:"items"`
}

// RecentVideos lists an uploader's latest uploads from the dynamic feed.
// Unsigned call. Stops once limit entries are collected.
func (c *Client) RecentVideos(ctx context.Context, mid int64, limit int) ([]VideoEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	data, err := c.dispatch(ctx, feedPath, map[string]string{
		"host_mid": strconv.FormatInt(mid, 10),
	}, false)
	if err != nil {
		return nil, err
	}

	var feed feedData
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, &MalformedResponseError{Endpoint: feedPath, Err: err}
	}

	videos := make([]VideoEntry, 0, limit)
	for _, item := range feed.Items {
		if len(videos) >= limit {
			break
		}
		if item.Type != dynamicTypeVideo {
			continue
		}
		archive := item.Modules.ModuleDynamic.Major.Archive
		if archive == nil || archive.Bvid == "" {
			continue
		}
		dur, err := ParseDuration(archive.DurationText)
		if err != nil {
			dur = 0 // free-text field; a bad value should not drop the entry
		}
		plays, err := ParseStatCount(archive.Stat.Play)
		if err != nil {
			plays = 0
		}
		videos = append(videos, VideoEntry{
			Bvid:        archive.Bvid,
			Title:       archive.Title,
			CoverURL:    archive.Cover,
			DurationSec: dur,
			Plays:       plays,
			PublishedAt: item.Modules.ModuleAuthor.PubTs,
		})
	}
	return videos, nil
}

// ParseDuration converts "MM:SS" or "HH:MM:SS" to seconds.
func ParseDuration(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("duration %q: want MM:SS or HH:MM:SS", s)
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("duration %q: bad segment %q", s, p)
		}
		total = total*60 + n
	}
	return total, nil
}

// Localized count multipliers: 万 = ten thousand, 亿 = hundred million.
var countSuffixes = []struct {
	suffix     string
	multiplier float64
}{
	{"亿", 1e8},
	{"万", 1e4},
}

// ParseStatCount converts a localized count string ("1.2万", "3亿", "987")
// to an integer.
func ParseStatCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, nil
	}
	multiplier := 1.0
	for _, cs := range countSuffixes {
		if strings.HasSuffix(s, cs.suffix) {
			multiplier = cs.multiplier
			s = strings.TrimSuffix(s, cs.suffix)
			break
		}
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", s, err)
	}
	return int64(n*multiplier + 0.5), nil
}
