package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// ErrStatusNotFound is returned when the list page has no row for a record.
var ErrStatusNotFound = errors.New("approval status not found")

// Credentials resolves a user's password by phone.
type Credentials func(phone string) (password string, ok bool)

// Options configures a Client.
type Options struct {
	// BaseURL is the CRM's domain, for example "https://crm.example.com".
	BaseURL string
	Kind    Kind
	Timeout time.Duration
	// Credentials supplies passwords for login.
	Credentials Credentials
	// HTTPClient is copied for each session; nil uses a default client.
	HTTPClient *http.Client
	Logger     *log.Logger
	// Description is sent as the approval comment.
	Description string
}

// Client talks to the CRM on behalf of several users, keeping one logged-in
// session per user.
type Client struct {
	base   *url.URL
	opts   Options
	logger *log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid CRM base URL %q", opts.BaseURL)
	}
	if opts.Kind.Singular == "" {
		return nil, errors.New("business kind is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("credentials are required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Description == "" {
		opts.Description = "approveflow"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	hc := *opts.HTTPClient
	hc.Timeout = opts.Timeout
	opts.HTTPClient = &hc

	return &Client{
		base:     base,
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*Session),
	}, nil
}

// Kind returns the business kind the client drives.
func (c *Client) Kind() Kind {
	return c.opts.Kind
}

// Session returns the logged-in session for user, logging in on first use.
func (c *Client) Session(ctx context.Context, user *core.User) (*Session, error) {
	if user == nil {
		return nil, errors.New("nil user")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[user.Phone]; ok {
		return s, nil
	}
	password, ok := c.opts.Credentials(user.Phone)
	if !ok {
		return nil, fmt.Errorf("no credentials for %s", user.Phone)
	}
	s, err := newSession(c.base, user, c.opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	if err := s.login(ctx, password); err != nil {
		return nil, err
	}
	c.logger.Info("logged in", "user", user.Name, "phone", user.Phone)
	c.sessions[user.Phone] = s
	return s, nil
}

// SetApproval switches the business kind's approval on or off.
// Switching off clears every configured level.
func (c *Client) SetApproval(ctx context.Context, admin *core.User, enabled bool) error {
	s, err := c.Session(ctx, admin)
	if err != nil {
		return err
	}
	flag := "0"
	if enabled {
		flag = "1"
	}
	form := url.Values{c.opts.Kind.switchField(): {flag}}
	if _, err := s.do(ctx, http.MethodPut, c.opts.Kind.settingsPath(), nil, form, true); err != nil {
		return fmt.Errorf("switching %s approval: %w", c.opts.Kind.Singular, err)
	}
	return nil
}

// Configure clears existing approval levels and applies payload, which
// holds the unprefixed "_approve[multistep]..." keys.
func (c *Client) Configure(ctx context.Context, admin *core.User, payload url.Values) error {
	if err := c.SetApproval(ctx, admin, false); err != nil {
		return err
	}
	if err := c.SetApproval(ctx, admin, true); err != nil {
		return err
	}

	s, err := c.Session(ctx, admin)
	if err != nil {
		return err
	}
	form := url.Values{
		"utf8":               {"✓"},
		"_method":            {"put"},
		"authenticity_token": {s.csrf},
	}
	for k, v := range payload {
		form[c.opts.Kind.Singular+k] = append([]string(nil), v...)
	}
	c.logger.Info("configuring approval", "business", c.opts.Kind.Singular, "fields", len(payload))
	if _, err := s.do(ctx, http.MethodPut, c.opts.Kind.settingsPath(), nil, form, true); err != nil {
		return fmt.Errorf("configuring %s approval: %w", c.opts.Kind.Singular, err)
	}
	return nil
}

// Apply submits a new business record as applicant and returns its id.
func (c *Client) Apply(ctx context.Context, applicant *core.User) (string, error) {
	s, err := c.Session(ctx, applicant)
	if err != nil {
		return "", err
	}
	k := c.opts.Kind
	title := strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	form := url.Values{
		"utf8":                         {"✓"},
		"authenticity_token":           {s.csrf},
		k.field(k.TitleField):          {title},
		k.field("approve_status"):      {"applying"},
		k.field("user_id"):             {strconv.FormatInt(applicant.ID, 10)},
		k.field(k.Singular + "_token"): {s.csrf},
	}
	body, err := s.do(ctx, http.MethodPost, "/api/"+k.Plural, nil, form, true)
	if err != nil {
		return "", fmt.Errorf("applying %s: %w", k.Singular, err)
	}
	id, err := jsonID(body, "data")
	if err != nil {
		return "", fmt.Errorf("applying %s: %w", k.Singular, err)
	}
	c.logger.Info("applied", "business", k.Singular, "title", title, "id", id)
	return id, nil
}

// Act submits result for step as actor. It reports whether the CRM
// accepted the action; a refusal (4xx) is not an error.
func (c *Client) Act(ctx context.Context, actor *core.User, businessID string, step int, result core.Outcome) (bool, error) {
	s, err := c.Session(ctx, actor)
	if err != nil {
		return false, err
	}
	k := c.opts.Kind
	form := url.Values{
		"utf8":                         {"✓"},
		"_method":                      {"put"},
		"key":                          {k.Singular},
		"authenticity_token":           {s.csrf},
		k.field("approve_description"): {c.opts.Description},
		k.field("step"):                {strconv.Itoa(step)},
	}
	path := fmt.Sprintf("/api/approvals/%s/%s", url.PathEscape(businessID), result.Action())
	_, err = s.do(ctx, http.MethodPost, path, nil, form, true)
	var herr *HTTPError
	switch {
	case err == nil:
		c.logger.Info("acted", "step", step, "actor", actor.Name, "action", result.Action())
		return true, nil
	case errors.As(err, &herr) && herr.StatusCode >= 400 && herr.StatusCode < 500:
		c.logger.Info("action refused", "step", step, "actor", actor.Name, "status", herr.StatusCode)
		return false, nil
	default:
		return false, fmt.Errorf("acting on %s %s: %w", k.Singular, businessID, err)
	}
}

// Status scrapes the approval status label of a record from the list page
// as seen by viewer.
func (c *Client) Status(ctx context.Context, viewer *core.User, businessID string) (string, error) {
	s, err := c.Session(ctx, viewer)
	if err != nil {
		return "", err
	}
	query := url.Values{
		"scope":        {"all_own"},
		"per_page":     {"10"},
		"type":         {"advance"},
		"section_only": {"true"},
	}
	page, err := s.do(ctx, http.MethodGet, c.opts.Kind.ListPath, query, nil, false)
	if err != nil {
		return "", fmt.Errorf("loading %s list: %w", c.opts.Kind.Plural, err)
	}
	return ParseStatus(page, businessID)
}

// ParseStatus finds the approval status cell of businessID in a list page.
func ParseStatus(page []byte, businessID string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page)))
	if err != nil {
		return "", fmt.Errorf("parsing list page: %w", err)
	}
	selector := fmt.Sprintf(`table>tbody>tr[data-id="%s"]>td[data-column="approve_status_i18n"]>div.value`, businessID)
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: record %s", ErrStatusNotFound, businessID)
	}
	return strings.TrimSpace(sel.Last().Text()), nil
}

// Notifications returns the applicant's notification texts linking to the
// record, newest first. Best effort; rendering varies between CRM builds.
func (c *Client) Notifications(ctx context.Context, viewer *core.User, businessID string) ([]string, error) {
	s, err := c.Session(ctx, viewer)
	if err != nil {
		return nil, err
	}
	page, err := s.do(ctx, http.MethodGet, "/notifications", nil, nil, false)
	if err != nil {
		return nil, fmt.Errorf("loading notifications: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page)))
	if err != nil {
		return nil, fmt.Errorf("parsing notifications: %w", err)
	}
	var out []string
	doc.Find(fmt.Sprintf(`section#notification_table tbody>tr>td>a.text-primary[href$="%s"]`, businessID)).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, strings.TrimSpace(sel.Text()))
	})
	return out, nil
}
