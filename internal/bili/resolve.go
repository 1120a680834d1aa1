package bili

import (
	"context"
	"encoding/json"
	"errors"
)

const viewPath = "/x/web-interface/view"

// VideoRef holds the internal ids behind a public video code. Signed calls
// (summary, subtitle listing) require these; callers retrieving derived
// artifacts treat a failed resolution as "nothing available" rather than a
// hard failure.
type VideoRef struct {
	Aid      int64 `json:"aid"`
	Cid      int64 `json:"cid"`
	OwnerMid int64 `json:"owner_mid"`
}

type viewData struct {
	Aid   int64 `json:"aid"`
	Cid   int64 `json:"cid"`
	Owner struct {
		Mid int64 `json:"mid"`
	} `json:"owner"`
}

// Resolve translates a public video code (bvid) to its internal numeric
// ids and owning account.
func (c *Client) Resolve(ctx context.Context, bvid string) (*VideoRef, error) {
	if bvid == "" {
		return nil, errors.New("resolve: empty bvid")
	}
	data, err := c.dispatch(ctx, viewPath, map[string]string{"bvid": bvid}, false)
	if err != nil {
		return nil, err
	}

	var view viewData
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, &MalformedResponseError{Endpoint: viewPath, Err: err}
	}
	if view.Aid == 0 || view.Cid == 0 {
		return nil, &MalformedResponseError{Endpoint: viewPath, Err: errors.New("missing aid/cid")}
	}
	return &VideoRef{Aid: view.Aid, Cid: view.Cid, OwnerMid: view.Owner.Mid}, nil
}
