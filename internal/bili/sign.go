package bili

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const navPath = "/x/web-interface/nav"

// mixinKeyTable is the fixed public permutation applied to the concatenated
// img+sub keys. Indexes select characters from the 64-char concatenation in
// table order; the first 32 selected characters form the mixin key.
var mixinKeyTable = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

// Anti-automation marker fields the upstream expects on every signed
// request. Literal values observed from the web client; only wts varies.
var signedMarkerFields = map[string]string{
	"dm_img_list":      "[]",
	"dm_img_str":       "V2ViR0wgMS4wIChPcGVuR0wgRVMgMi4wIENocm9taXVtKQ",
	"dm_cover_img_str": "QU5HTEUgKEludGVsLCBNZXNhIEludGVsKFIpIFVIRCBHcmFwaGljcywgT3BlbkdMIDQuNik",
	"dm_img_inter":     `{"ds":[],"wh":[0,0,0],"of":[0,0,0]}`,
}

// signingKeys is the per-session key pair published by the upstream.
// In-memory only; refreshed when older than Config.KeyTTL.
type signingKeys struct {
	img       string // exactly 32 chars
	sub       string // exactly 32 chars
	fetchedAt time.Time
}

func (k signingKeys) fresh(now time.Time, ttl time.Duration) bool {
	return k.img != "" && now.Sub(k.fetchedAt) <= ttl
}

type navData struct {
	WbiImg struct {
		ImgURL string `json:"img_url"`
		SubURL string `json:"sub_url"`
	} `json:"wbi_img"`
}

// signingKeysFor returns the cached key pair, fetching a new one when stale.
// The session-info endpoint replies "not logged in" for anonymous sessions
// but still carries both key URLs, so auth codes are tolerated here.
func (c *Client) signingKeysFor(ctx context.Context) (signingKeys, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()

	if c.keys.fresh(time.Now(), c.cfg.KeyTTL) {
		return c.keys, nil
	}

	env, err := c.request(ctx, navPath, nil, reqOpts{tolerateAuth: true})
	if err != nil {
		return signingKeys{}, fmt.Errorf("fetch signing keys: %w", err)
	}
	var data navData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return signingKeys{}, &MalformedResponseError{Endpoint: navPath, Err: err}
	}

	img, err := keyFromURL(data.WbiImg.ImgURL)
	if err != nil {
		return signingKeys{}, &MalformedResponseError{Endpoint: navPath, Err: err}
	}
	sub, err := keyFromURL(data.WbiImg.SubURL)
	if err != nil {
		return signingKeys{}, &MalformedResponseError{Endpoint: navPath, Err: err}
	}

	c.keys = signingKeys{img: img, sub: sub, fetchedAt: time.Now()}
	keyRefreshes.Inc()
	slog.Debug("signing keys refreshed")
	return c.keys, nil
}

// keyFromURL extracts the key: the path segment between the last '/' and
// the last '.' of the published URL. Must be exactly 32 characters.
func keyFromURL(rawURL string) (string, error) {
	slash := strings.LastIndexByte(rawURL, '/')
	dot := strings.LastIndexByte(rawURL, '.')
	if slash < 0 || dot <= slash {
		return "", fmt.Errorf("key URL %q has no name segment", rawURL)
	}
	key := rawURL[slash+1 : dot]
	if len(key) != 32 {
		return "", fmt.Errorf("key %q is %d chars, want 32", key, len(key))
	}
	return key, nil
}

// deriveMixinKey mixes the two 32-char keys into the 32-char signing secret.
// Pure: identical inputs always yield the identical result.
func deriveMixinKey(img, sub string) string {
	concat := img + sub
	var b strings.Builder
	b.Grow(32)
	for _, idx := range mixinKeyTable {
		if idx < len(concat) {
			b.WriteByte(concat[idx])
		}
	}
	mixed := b.String()
	if len(mixed) > 32 {
		mixed = mixed[:32]
	}
	return mixed
}

// signQuery produces the final signed query string for params: marker
// fields and wts merged in, keys sorted, values stripped of !'()*,
// percent-encoded, joined with '&', then w_rid appended.
func signQuery(params map[string]string, mixinKey string, wts int64) string {
	merged := make(map[string]string, len(params)+len(signedMarkerFields)+1)
	for k, v := range params {
		merged[k] = v
	}
	for k, v := range signedMarkerFields {
		merged[k] = v
	}
	merged["wts"] = strconv.FormatInt(wts, 10)

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(encodeComponent(k))
		b.WriteByte('=')
		b.WriteString(encodeComponent(stripUnsafe(merged[k])))
	}
	query := b.String()

	sum := md5.Sum([]byte(query + mixinKey))
	return query + "&w_rid=" + hex.EncodeToString(sum[:])
}

// stripUnsafe removes the characters the upstream signer excludes.
func stripUnsafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '!', '\'', '(', ')', '*':
			return -1
		}
		return r
	}, s)
}

// encodeComponent percent-encodes like encodeURIComponent: spaces become
// %20, not '+'.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// sign returns the signed query string for params using the current keys.
func (c *Client) sign(ctx context.Context, params map[string]string) (string, error) {
	keys, err := c.signingKeysFor(ctx)
	if err != nil {
		return "", err
	}
	return signQuery(params, deriveMixinKey(keys.img, keys.sub), time.Now().Unix()), nil
}
