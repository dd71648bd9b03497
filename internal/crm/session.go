package crm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"

	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var userTokenPattern = regexp.MustCompile(`window\.current_user_token\s+=\s+'(\w+)';`)

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, body)
}

// Session is one user's authenticated connection to the CRM.
type Session struct {
	User *core.User

	http      *http.Client
	base      *url.URL
	csrf      string
	userToken string
}

// CSRF returns the session's authenticity token.
func (s *Session) CSRF() string {
	return s.csrf
}

func newSession(base *url.URL, user *core.User, client *http.Client) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	hc := *client
	hc.Jar = jar
	return &Session{User: user, http: &hc, base: base}, nil
}

// login authenticates with phone and password, then loads the home page
// to pick up cookies, the CSRF token and the page's user token.
func (s *Session) login(ctx context.Context, password string) error {
	form := url.Values{
		"login":    {s.User.Phone},
		"password": {password},
		"device":   {"web"},
	}
	body, err := s.do(ctx, http.MethodPost, "/api/v2/auth/login", nil, form, true)
	if err != nil {
		return fmt.Errorf("login %s: %w", s.User.Phone, err)
	}
	var resp struct {
		Data struct {
			UserToken string `json:"user_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if resp.Data.UserToken == "" {
		return fmt.Errorf("login %s: no user token in response", s.User.Phone)
	}

	page, err := s.do(ctx, http.MethodGet, "/", url.Values{"user_token": {resp.Data.UserToken}}, nil, false)
	if err != nil {
		return fmt.Errorf("loading home page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return fmt.Errorf("parsing home page: %w", err)
	}
	csrf, ok := doc.Find(`meta[name="csrf-token"]`).Attr("content")
	if !ok || csrf == "" {
		return fmt.Errorf("login %s: csrf token not found", s.User.Phone)
	}
	s.csrf = csrf
	s.userToken = resp.Data.UserToken
	if m := userTokenPattern.FindStringSubmatch(doc.Text()); m != nil {
		s.userToken = m[1]
	}
	return nil
}

// do sends a request and returns the body of a 2xx response.
// Form bodies are sent url-encoded; jsonAccept selects the Accept header.
func (s *Session) do(ctx context.Context, method, path string, query, form url.Values, jsonAccept bool) ([]byte, error) {
	u := s.base.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	if jsonAccept {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
	}
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if s.csrf != "" {
		req.Header.Set("X-CSRF-Token", s.csrf)
	}
	if s.userToken != "" {
		req.Header.Set("Authorization", "Token token="+s.userToken)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, &HTTPError{Method: method, URL: u.Path, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// jsonID extracts data.id (number or string) from a JSON response.
func jsonID(body []byte, root string) (string, error) {
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	obj, _ := resp[root].(map[string]any)
	id := cast.ToString(obj["id"])
	if id == "" {
		return "", fmt.Errorf("response has no %s.id", root)
	}
	return id, nil
}
