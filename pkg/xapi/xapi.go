// Package xapi wraps the X (Twitter) API v2 endpoints the verification
// pipeline needs. An unconfigured client is a valid, non-error state: every
// lookup reports not-configured and the pipeline degrades to manual review.
package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"kolmarket/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("xapi",
	fx.Provide(NewHTTPClient),
)

// ErrNotConfigured is returned by the HTTP client when no bearer token is set.
var ErrNotConfigured = fmt.Errorf("content api: not configured")

type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Name          string `json:"name"`
	FollowerCount int    `json:"-"`
}

type Post struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	AuthorID string `json:"author_id"`
	// QuotedID is the id of the post this one quotes, if any.
	QuotedID string `json:"-"`
}

// Client is the external verification API contract. Implementations return
// (nil, nil) for lookups that find nothing; errors are transport failures.
type Client interface {
	Configured() bool
	LookupUser(ctx context.Context, handle string) (*User, error)
	GetPost(ctx context.Context, postID string) (*Post, error)
	RepostActors(ctx context.Context, postID string) ([]string, error)
	LikeActors(ctx context.Context, postID string) ([]string, error)
	RecentPostsContain(ctx context.Context, userID, text string) (bool, error)
}

var postURLPattern = regexp.MustCompile(`(?:twitter\.com|x\.com)/\w+/status/(\d+)`)

// ExtractPostID pulls the numeric post id out of a twitter.com or x.com URL.
// Returns the empty string when the URL does not match.
func ExtractPostID(url string) string {
	m := postURLPattern.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}

type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(cfg *config.Config) Client {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.ContentAPI.BaseURL, "/"),
		token:   cfg.ContentAPI.BearerToken,
		client:  &http.Client{Timeout: cfg.ContentAPI.Timeout},
	}
}

func (c *HTTPClient) Configured() bool {
	return c.token != ""
}

func (c *HTTPClient) get(ctx context.Context, path string, query map[string]string, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		zap.L().Warn("content api request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("content api: unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) LookupUser(ctx context.Context, handle string) (*User, error) {
	handle = strings.TrimPrefix(handle, "@")

	var body struct {
		Data *struct {
			ID            string `json:"id"`
			Username      string `json:"username"`
			Name          string `json:"name"`
			PublicMetrics struct {
				FollowersCount int `json:"followers_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	err := c.get(ctx, "/users/by/username/"+handle, map[string]string{
		"user.fields": "public_metrics",
	}, &body)
	if err != nil || body.Data == nil {
		return nil, err
	}

	return &User{
		ID:            body.Data.ID,
		Username:      body.Data.Username,
		Name:          body.Data.Name,
		FollowerCount: body.Data.PublicMetrics.FollowersCount,
	}, nil
}

func (c *HTTPClient) GetPost(ctx context.Context, postID string) (*Post, error) {
	var body struct {
		Data *struct {
			ID               string `json:"id"`
			Text             string `json:"text"`
			AuthorID         string `json:"author_id"`
			ReferencedTweets []struct {
				Type string `json:"type"`
				ID   string `json:"id"`
			} `json:"referenced_tweets"`
		} `json:"data"`
	}
	err := c.get(ctx, "/tweets/"+postID, map[string]string{
		"tweet.fields": "author_id,created_at,referenced_tweets",
	}, &body)
	if err != nil || body.Data == nil {
		return nil, err
	}

	post := &Post{
		ID:       body.Data.ID,
		Text:     body.Data.Text,
		AuthorID: body.Data.AuthorID,
	}
	for _, ref := range body.Data.ReferencedTweets {
		if ref.Type == "quoted" {
			post.QuotedID = ref.ID
		}
	}
	return post, nil
}

func (c *HTTPClient) RepostActors(ctx context.Context, postID string) ([]string, error) {
	return c.actors(ctx, "/tweets/"+postID+"/retweeted_by")
}

func (c *HTTPClient) LikeActors(ctx context.Context, postID string) ([]string, error) {
	return c.actors(ctx, "/tweets/"+postID+"/liking_users")
}

func (c *HTTPClient) actors(ctx context.Context, path string) ([]string, error) {
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.get(ctx, path, nil, &body); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(body.Data))
	for _, u := range body.Data {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func (c *HTTPClient) RecentPostsContain(ctx context.Context, userID, text string) (bool, error) {
	var body struct {
		Data []struct {
			Text string `json:"text"`
		} `json:"data"`
	}
	err := c.get(ctx, "/users/"+userID+"/tweets", map[string]string{
		"max_results":  "10",
		"tweet.fields": "text",
	}, &body)
	if err != nil {
		return false, err
	}

	for _, post := range body.Data {
		if strings.Contains(post.Text, text) {
			return true, nil
		}
	}
	return false, nil
}
