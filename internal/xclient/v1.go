package xclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"nestling/internal/model"
)

// CreatedAtLayout is how tweet timestamps are stored and displayed.
const CreatedAtLayout = "2006-01-02 15:04:05 -07:00"

const homeTimelinePath = "/statuses/home_timeline.json"

// HomeTimelineFetcher is what the poll loop needs from the API.
type HomeTimelineFetcher interface {
	HomeTimeline(ctx context.Context, sinceID model.TweetID, count int) ([]model.Entry, error)
}

// V1Client supports X API v1.1 home timeline via OAuth 1.0a.
type V1Client struct {
	Base           *HTTPClient
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
	nowFn          func() time.Time
	nonceFn        func() string
	loc            *time.Location
}

func NewV1Client(base *HTTPClient, ck, cs, at, as string) *V1Client {
	return &V1Client{
		Base:           base,
		ConsumerKey:    ck,
		ConsumerSecret: cs,
		AccessToken:    at,
		AccessSecret:   as,
		nowFn:          time.Now,
		nonceFn:        func() string { return strconv.FormatInt(rand.Int63(), 36) },
		loc:            time.Local,
	}
}

type v1Status struct {
	IDStr     string `json:"id_str"`
	CreatedAt string `json:"created_at"`
	FullText  string `json:"full_text"`
	Text      string `json:"text"`
	User      struct {
		ScreenName           string `json:"screen_name"`
		ProfileImageURL      string `json:"profile_image_url"`
		ProfileImageURLHTTPS string `json:"profile_image_url_https"`
	} `json:"user"`
}

// HomeTimeline returns up to count statuses newer than sinceID, newest
// first, as unread entries. sinceID 0 asks for the most recent page.
func (c *V1Client) HomeTimeline(ctx context.Context, sinceID model.TweetID, count int) ([]model.Entry, error) {
	endpoint := c.Base.baseURL + homeTimelinePath
	params := map[string]string{
		"count":      strconv.Itoa(clamp(count, 1, 200)),
		"tweet_mode": "extended",
	}
	if sinceID != 0 {
		params["since_id"] = sinceID.String()
	}
	reqURL := endpoint + "?" + encodeQuery(params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &model.FetchError{URL: endpoint, Err: err}
	}
	resp, err := c.Base.doWithRetry(ctx, req, func(r *http.Request) { c.oauth1Sign(r, params) })
	if err != nil {
		return nil, &model.FetchError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &model.FetchError{URL: endpoint, Status: resp.StatusCode}
	}
	var raw []v1Status
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &model.ParseError{Source: endpoint, Err: err}
	}
	out := make([]model.Entry, 0, len(raw))
	for _, s := range raw {
		e, err := c.toEntry(s)
		if err != nil {
			return nil, &model.ParseError{Source: endpoint, Err: err}
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *V1Client) toEntry(s v1Status) (model.Entry, error) {
	id, err := model.ParseTweetID(s.IDStr)
	if err != nil || id == 0 {
		return model.Entry{}, fmt.Errorf("status id %q: invalid", s.IDStr)
	}
	if s.User.ScreenName == "" {
		return model.Entry{}, errors.New("status " + s.IDStr + ": missing user")
	}
	// Parse example: Mon Jan 02 15:04:05 -0700 2006
	ts, err := time.Parse(time.RubyDate, s.CreatedAt)
	if err != nil {
		return model.Entry{}, fmt.Errorf("status %s created_at: %w", s.IDStr, err)
	}
	text := s.FullText
	if text == "" {
		text = s.Text
	}
	avatar := s.User.ProfileImageURLHTTPS
	if avatar == "" {
		avatar = s.User.ProfileImageURL
	}
	return model.Entry{
		Tweet: model.Tweet{
			CreatedAt: ts.In(c.loc).Format(CreatedAtLayout),
			ID:        id,
			Text:      text,
			User:      model.Author{ScreenName: s.User.ScreenName, ProfileImageURL: avatar},
		},
		Unread: true,
	}, nil
}

func (c *V1Client) oauth1Sign(req *http.Request, queryParams map[string]string) {
	oauth := map[string]string{
		"oauth_consumer_key":     c.ConsumerKey,
		"oauth_nonce":            c.nonceFn(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(c.nowFn().Unix(), 10),
		"oauth_token":            c.AccessToken,
		"oauth_version":          "1.0",
	}
	oauth["oauth_signature"] = c.signature(req.Method, req.URL, oauth, queryParams)

	hdrKeys := make([]string, 0, len(oauth))
	for k := range oauth {
		hdrKeys = append(hdrKeys, k)
	}
	sort.Strings(hdrKeys)
	authParts := make([]string, 0, len(hdrKeys))
	for _, k := range hdrKeys {
		authParts = append(authParts, fmt.Sprintf("%s=\"%s\"", rfc3986(k), rfc3986(oauth[k])))
	}
	req.Header.Set("Authorization", "OAuth "+strings.Join(authParts, ", "))
	req.Header.Set("Accept", "application/json")
}

// signature computes the HMAC-SHA1 OAuth 1.0a signature over the method,
// the URL without query and the sorted union of oauth and query params.
func (c *V1Client) signature(method string, u *url.URL, oauth, queryParams map[string]string) string {
	all := make(map[string]string, len(oauth)+len(queryParams))
	for k, v := range oauth {
		all[k] = v
	}
	for k, v := range queryParams {
		all[k] = v
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	paramParts := make([]string, 0, len(keys))
	for _, k := range keys {
		paramParts = append(paramParts, rfc3986(k)+"="+rfc3986(all[k]))
	}
	baseURL := u.Scheme + "://" + u.Host + u.Path
	base := method + "&" + rfc3986(baseURL) + "&" + rfc3986(strings.Join(paramParts, "&"))
	signingKey := rfc3986(c.ConsumerSecret) + "&" + rfc3986(c.AccessSecret)
	mac := hmac.New(sha1.New, []byte(signingKey))
	_, _ = mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func encodeQuery(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(m[k]))
	}
	return strings.Join(parts, "&")
}

// RFC 3986 percent-encoding for OAuth
func rfc3986(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(url.QueryEscape(s), "+", "%20"), "*", "%2A")
}

var _ HomeTimelineFetcher = (*V1Client)(nil)
