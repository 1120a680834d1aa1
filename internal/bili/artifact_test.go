package bili

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilifeed/internal/cache"
)

const (
	viewFixture = `{"aid": 170001, "cid": 279786, "owner": {"mid": 12345}}`

	conclusionFixture = `{
		"code": 0,
		"model_result": {
			"result_type": 2,
			"summary": "A short overview of the video.",
			"outline": [{
				"title": "Intro",
				"part_outline": [
					{"timestamp": 0, "content": "Opening remarks"},
					{"timestamp": 95, "content": "Main topic"}
				]
			}]
		}
	}`

	subtitleBodyFixture = `{
		"body": [
			{"from": 0.5, "to": 2.3, "content": "hello"},
			{"from": 2.4, "to": 4.0, "content": "world"}
		]
	}`
)

// artifactMux serves every endpoint a derived-artifact fetch touches.
func artifactMux(t *testing.T, conclusionData string, subtitles string) (*http.ServeMux, *atomic.Int32) {
	t.Helper()
	var upstreamCalls atomic.Int32
	count := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			upstreamCalls.Add(1)
			h(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(navPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, -101, "account not logged in", navFixture)
	})
	mux.HandleFunc(viewPath, count(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "0", viewFixture)
	}))
	mux.HandleFunc(summaryPath, count(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "0", conclusionData)
	}))
	mux.HandleFunc(subtitlePath, count(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "0", subtitles)
	}))
	mux.HandleFunc("/track.json", count(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(subtitleBodyFixture))
	}))
	return mux, &upstreamCalls
}

func TestSummary(t *testing.T) {
	mux, _ := artifactMux(t, conclusionFixture, "")
	c := newTestClient(t, mux, func(cfg *Config) {
		cfg.Cache = cache.NewMemory()
	})

	summary, err := c.Summary(context.Background(), "BV1xx411c7mD")
	require.NoError(t, err)
	assert.Equal(t, "BV1xx411c7mD", summary.Bvid)
	assert.Equal(t, "A short overview of the video.", summary.Text)
	require.Len(t, summary.Outline, 2)
	assert.Equal(t, int64(95), summary.Outline[1].Timestamp)
	assert.Equal(t, "Main topic", summary.Outline[1].Content)
}

func TestSummaryServedFromCache(t *testing.T) {
	mux, upstreamCalls := artifactMux(t, conclusionFixture, "")
	c := newTestClient(t, mux, func(cfg *Config) {
		cfg.Cache = cache.NewMemory()
	})
	ctx := context.Background()

	_, err := c.Summary(ctx, "BV1xx411c7mD")
	require.NoError(t, err)
	after := upstreamCalls.Load()

	// Second lookup: no resolve, no conclusion call.
	_, err = c.Summary(ctx, "BV1xx411c7mD")
	require.NoError(t, err)
	assert.Equal(t, after, upstreamCalls.Load(), "cached summary must not hit the upstream")
}

func TestSummaryNoArtifact(t *testing.T) {
	// Inner code -1: summaries unsupported for this content.
	mux, _ := artifactMux(t, `{"code": -1, "model_result": {"result_type": 0, "summary": ""}}`, "")
	c := newTestClient(t, mux, nil)

	_, err := c.Summary(context.Background(), "BV1xx411c7mD")
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestSummaryResolveNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(navPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, -101, "account not logged in", navFixture)
	})
	mux.HandleFunc(viewPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, -404, "video not found", "")
	})
	c := newTestClient(t, mux, nil)

	// A deleted/unknown video has no derived data; not a hard failure.
	_, err := c.Summary(context.Background(), "BV1gone")
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestSummaryAuthErrorPropagates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(navPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, -101, "account not logged in", navFixture)
	})
	mux.HandleFunc(viewPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "0", viewFixture)
	})
	mux.HandleFunc(summaryPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, -101, "account not logged in", "")
	})
	c := newTestClient(t, mux, nil)

	_, err := c.Summary(context.Background(), "BV1xx411c7mD")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.NotErrorIs(t, err, ErrNoArtifact)
}

func TestSubtitles(t *testing.T) {
	c := newSubtitleClient(t)

	track, err := c.Subtitles(context.Background(), "BV1xx411c7mD")
	require.NoError(t, err)
	assert.Equal(t, "zh-CN", track.Lang)
	require.Len(t, track.Segments, 2)
	assert.Equal(t, Segment{From: 0.5, To: 2.3, Content: "hello"}, track.Segments[0])
	assert.Equal(t, "world", track.Segments[1].Content)
}

// newSubtitleClient wires a client whose player response points the
// subtitle track URL back at the test server.
func newSubtitleClient(t *testing.T) *Client {
	t.Helper()
	var baseURL atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc(navPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, -101, "account not logged in", navFixture)
	})
	mux.HandleFunc(viewPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "0", viewFixture)
	})
	mux.HandleFunc(subtitlePath, func(w http.ResponseWriter, r *http.Request) {
		playerData := `{"subtitle": {"subtitles": [{"lan": "zh-CN", "lan_doc": "中文", "subtitle_url": "` +
			baseURL.Load().(string) + `/track.json"}]}}`
		writeEnvelope(w, 0, "0", playerData)
	})
	mux.HandleFunc("/track.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(subtitleBodyFixture))
	})

	c := newTestClient(t, mux, nil)
	baseURL.Store(c.cfg.APIBase)
	return c
}

func TestSubtitlesNoArtifact(t *testing.T) {
	mux, _ := artifactMux(t, "", `{"subtitle": {"subtitles": []}}`)
	c := newTestClient(t, mux, nil)

	_, err := c.Subtitles(context.Background(), "BV1xx411c7mD")
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestSweepCacheWithoutStore(t *testing.T) {
	c := newTestClient(t, http.NewServeMux(), nil)
	removed, err := c.SweepCache(context.Background(), "summary:")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDowngradeResolveErr(t *testing.T) {
	assert.ErrorIs(t, downgradeResolveErr(&BusinessError{Code: -404, Message: "gone"}), ErrNoArtifact)

	authErr := &AuthError{Code: -101}
	assert.Equal(t, error(authErr), downgradeResolveErr(authErr))

	transport := &TransportError{Status: 502}
	if !errors.Is(downgradeResolveErr(transport), transport) {
		t.Error("transport errors must pass through resolution undowngraded")
	}
}
