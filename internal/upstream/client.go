package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coursepulse/coursepulse/internal/config"
	"github.com/coursepulse/coursepulse/pkg/logger"
)

// Client is the thin adapter over the upstream system's legacy HTTP
// interface. Every call carries the current session token as a query
// parameter; on a session rejection it rotates the token and retries the
// call once before surfacing the error.
type Client struct {
	baseURL   string
	userAgent string
	pageSize  int
	http      *http.Client
	sessions  *SessionKeeper
}

func NewClient(cfg *config.UpstreamConfig, sessions *SessionKeeper) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		pageSize:  cfg.PageSize,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		sessions: sessions,
	}
}

// ListTerms returns all terms the upstream knows about.
func (c *Client) ListTerms(ctx context.Context) ([]TermInfo, error) {
	var env listEnvelope[TermInfo]
	if err := c.get(ctx, "/classSearch/getTerms", nil, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("list terms: %w", ErrUpstreamFailure)
	}
	return env.Data, nil
}

// ListSubjects returns the subjects offered in a term.
func (c *Client) ListSubjects(ctx context.Context, term string) ([]SubjectInfo, error) {
	var env listEnvelope[SubjectInfo]
	params := url.Values{"term": {term}}
	if err := c.get(ctx, "/classSearch/getSubjects", params, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("list subjects for %s: %w", term, ErrUpstreamFailure)
	}
	return env.Data, nil
}

// SearchCourses fetches one page of course sections for a subject/term.
// offset is zero-based; the returned total is the upstream's full count.
func (c *Client) SearchCourses(ctx context.Context, term, subject string, offset int) (records []CourseRecord, total int, err error) {
	params := url.Values{
		"txt_term":    {term},
		"txt_subject": {subject},
		"pageOffset":  {strconv.Itoa(offset)},
		"pageMaxSize": {strconv.Itoa(c.pageSize)},
	}

	var env searchEnvelope
	if err := c.get(ctx, "/searchResults", params, &env); err != nil {
		return nil, 0, err
	}
	if !env.Success {
		return nil, 0, fmt.Errorf("search %s/%s: %w", term, subject, ErrUpstreamFailure)
	}
	return env.Data, env.TotalCount, nil
}

// AllCourses pages through SearchCourses until the full subject is fetched.
func (c *Client) AllCourses(ctx context.Context, term, subject string) ([]CourseRecord, error) {
	var all []CourseRecord
	offset := 0
	for {
		page, total, err := c.SearchCourses(ctx, term, subject, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		offset += len(page)
		if offset >= total || len(page) == 0 {
			break
		}
	}
	return all, nil
}

// GetMeetingTimes fetches the meeting blocks for one course section.
func (c *Client) GetMeetingTimes(ctx context.Context, term, crn string) ([]MeetingBlock, error) {
	params := url.Values{"term": {term}, "courseReferenceNumber": {crn}}

	var env listEnvelope[MeetingBlock]
	if err := c.get(ctx, "/searchResults/getFacultyMeetingTimes", params, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("meeting times %s/%s: %w", term, crn, ErrUpstreamFailure)
	}
	return env.Data, nil
}

// get performs one upstream GET with the current session token, decoding
// the JSON body into out. On a session rejection the token is rotated and
// the call retried exactly once.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	err := c.getOnce(ctx, path, params, out)
	if err == nil {
		c.sessions.NotifyActivity()
		return nil
	}

	if Classify(err) == KindSessionExpired {
		logger.Warn().Str("path", path).Msg("session rejected, rotating and retrying")
		c.sessions.Invalidate()
		if err = c.getOnce(ctx, path, params, out); err == nil {
			c.sessions.NotifyActivity()
			return nil
		}
	}
	return err
}

func (c *Client) getOnce(ctx context.Context, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("uniqueSessionId", c.sessions.Ensure())

	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, URL: c.baseURL + path}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		// The legacy interface answers an expired session with a login
		// page rather than an error status.
		if strings.Contains(contentType, "text/html") {
			return ErrSessionExpired
		}
		return fmt.Errorf("%w: %s", ErrBadContentType, contentType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
