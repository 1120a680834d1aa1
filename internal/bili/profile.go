package bili

import (
	"context"
	"encoding/json"
	"strconv"
)

const profilePath = "/x/space/wbi/acc/info"

// Profile is an uploader's public profile.
type Profile struct {
	Mid         int64  `json:"mid"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio"`
}

type accInfoData struct {
	Mid  int64  `json:"mid"`
	Name string `json:"name"`
	Face string `json:"face"`
	Sign string `json:"sign"`
}

// Profile looks up an uploader by account id. Signed call; errors propagate
// unchanged.
func (c *Client) Profile(ctx context.Context, mid int64) (*Profile, error) {
	data, err := c.dispatch(ctx, profilePath, map[string]string{
		"mid": strconv.FormatInt(mid, 10),
	}, true)
	if err != nil {
		return nil, err
	}

	var info accInfoData
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, &MalformedResponseError{Endpoint: profilePath, Err: err}
	}
	return &Profile{
		Mid:         info.Mid,
		DisplayName: info.Name,
		AvatarURL:   info.Face,
		Bio:         info.Sign,
	}, nil
}
