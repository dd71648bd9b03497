package testutil

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/Dicklesworthstone/approveflow/internal/core"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var stepKeyPattern = regexp.MustCompile(`^_approve\[multistep\]\[(\d+)\]\[(\w+)\]`)

// FakeCRM is an httptest CRM with a minimal approval engine: levels advance
// on approve (co-sign steps after every configured user), deny and revert
// end the record.
type FakeCRM struct {
	Server *httptest.Server
	// Singular and Plural name the business kind, for example "customer".
	Singular string
	Plural   string
	Labels   core.Labels

	mu        sync.Mutex
	users     map[string]fakeAccount // by phone
	tokens    map[string]string      // user token -> phone
	refused   map[string]bool        // phones whose actions are refused
	enabled   bool
	steps     map[int]fakeStep
	records   map[string]*fakeRecord
	nextID    int
	requests  []string
	configure int
}

type fakeAccount struct {
	id       int64
	password string
}

type fakeStep struct {
	typ string
	ids []string
}

type fakeRecord struct {
	id        string
	owner     string
	level     int
	status    string
	cosigners map[int]map[int64]bool
}

// NewFakeCRM starts a fake CRM for the "customer" kind, closed on cleanup.
func NewFakeCRM(t testing.TB) *FakeCRM {
	t.Helper()
	f := &FakeCRM{
		Singular: "customer",
		Plural:   "customers",
		Labels:   core.EnglishLabels,
		users:    map[string]fakeAccount{},
		tokens:   map[string]string{},
		refused:  map[string]bool{},
		steps:    map[int]fakeStep{},
		records:  map[string]*fakeRecord{},
		nextID:   100,
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the server's base URL.
func (f *FakeCRM) URL() string {
	return f.Server.URL
}

// AddUser registers an account. Refused users get 403 on every action.
func (f *FakeCRM) AddUser(u *core.User, password string, refused bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.Phone] = fakeAccount{id: u.ID, password: password}
	f.refused[u.Phone] = refused
}

// AddDirectory registers every directory user with password; users tagged
// "illegal" are refused.
func (f *FakeCRM) AddDirectory(d *Directory, password string) {
	for _, u := range d.Users() {
		f.AddUser(u, password, u.Authority == core.RoleIllegal)
	}
}

// Password looks up an account password, usable as crm.Credentials.
func (f *FakeCRM) Password(phone string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.users[phone]
	return a.password, ok
}

// Requests returns "METHOD /path" for every request served.
func (f *FakeCRM) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// StepTypes returns the configured step types in step order.
func (f *FakeCRM) StepTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	nums := make([]int, 0, len(f.steps))
	for n := range f.steps {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	var out []string
	for _, n := range nums {
		out = append(out, f.steps[n].typ)
	}
	return out
}

// StepUserIDs returns the configured participant ids of step n.
func (f *FakeCRM) StepUserIDs(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.steps[n].ids...)
}

// Configured returns how many settings payloads were applied.
func (f *FakeCRM) Configured() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configure
}

// Status returns a record's status.
func (f *FakeCRM) Status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.records[id]; r != nil {
		return r.status
	}
	return ""
}

func (f *FakeCRM) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/v2/auth/login":
		f.login(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/":
		f.home(w, r)
	default:
		phone, ok := f.authenticate(r)
		if !ok {
			http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
			return
		}
		f.route(w, r, phone)
	}
}

func (f *FakeCRM) route(w http.ResponseWriter, r *http.Request, phone string) {
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPut && path == "/settings/"+f.Singular+"_approve/update":
		f.settings(w, r)
	case r.Method == http.MethodPost && path == "/api/"+f.Plural:
		f.apply(w, phone)
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/api/approvals/"):
		f.act(w, r, phone, strings.Split(strings.TrimPrefix(path, "/api/approvals/"), "/"))
	case r.Method == http.MethodGet && path == "/"+f.Plural:
		f.list(w, phone)
	case r.Method == http.MethodGet && path == "/notifications":
		fmt.Fprint(w, `<section id="notification_table"><table><tbody></tbody></table></section>`)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeCRM) login(w http.ResponseWriter, r *http.Request) {
	phone := r.PostForm.Get("login")
	a, ok := f.users[phone]
	if !ok || a.password != r.PostForm.Get("password") || r.PostForm.Get("device") != "web" {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	token := "tok_" + phone
	f.tokens[token] = phone
	writeJSON(w, map[string]any{"data": map[string]any{"user_token": token}})
}

func (f *FakeCRM) home(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("user_token")
	if _, ok := f.tokens[token]; !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "_session", Value: token, Path: "/"})
	fmt.Fprintf(w, `<html><head><meta name="csrf-token" content="csrf-%s"></head>
<body><script>window.current_user_token = '%s';</script></body></html>`, token, token)
}

func (f *FakeCRM) authenticate(r *http.Request) (string, bool) {
	c, err := r.Cookie("_session")
	if err != nil {
		return "", false
	}
	if r.Header.Get("Authorization") != "Token token="+c.Value {
		return "", false
	}
	if r.Method != http.MethodGet && r.Header.Get("X-CSRF-Token") != "csrf-"+c.Value {
		return "", false
	}
	phone, ok := f.tokens[c.Value]
	return phone, ok
}

func (f *FakeCRM) settings(w http.ResponseWriter, r *http.Request) {
	prefix := f.Singular
	switchKey := fmt.Sprintf("%s_approve[enable_%s_approve]", prefix, prefix)
	if v, ok := r.PostForm[switchKey]; ok {
		f.enabled = len(v) > 0 && v[0] == "1"
		if !f.enabled {
			f.steps = map[int]fakeStep{}
		}
		writeJSON(w, map[string]any{"ok": true})
		return
	}
	if r.PostForm.Get("_method") != "put" || r.PostForm.Get("authenticity_token") == "" {
		http.Error(w, "bad settings form", http.StatusUnprocessableEntity)
		return
	}
	f.configure++
	for key, vals := range r.PostForm {
		m := stepKeyPattern.FindStringSubmatch(strings.TrimPrefix(key, prefix))
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		s := f.steps[n]
		switch m[2] {
		case "type":
			s.typ = vals[0]
		case "user_ids":
			s.ids = nil
			for _, v := range vals {
				if v != "" {
					s.ids = append(s.ids, v)
				}
			}
		}
		f.steps[n] = s
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (f *FakeCRM) apply(w http.ResponseWriter, phone string) {
	if !f.enabled || len(f.steps) == 0 {
		http.Error(w, `{"error":"approval disabled"}`, http.StatusUnprocessableEntity)
		return
	}
	f.nextID++
	rec := &fakeRecord{
		id:        strconv.Itoa(f.nextID),
		owner:     phone,
		level:     1,
		status:    f.Labels.AwaitingLevel(1),
		cosigners: map[int]map[int64]bool{},
	}
	f.records[rec.id] = rec
	writeJSON(w, map[string]any{"data": map[string]any{"id": f.nextID}})
}

func (f *FakeCRM) act(w http.ResponseWriter, r *http.Request, phone string, parts []string) {
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	rec := f.records[parts[0]]
	if rec == nil {
		http.NotFound(w, r)
		return
	}
	if f.refused[phone] {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}
	if r.PostForm.Get("key") != f.Singular {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnprocessableEntity)
		return
	}
	step, err := strconv.Atoi(r.PostForm.Get(f.Singular + "[step]"))
	if err != nil {
		http.Error(w, `{"error":"bad step"}`, http.StatusUnprocessableEntity)
		return
	}

	switch parts[1] {
	case "approve":
		s := f.steps[step]
		if s.typ == "specified_jointly" {
			signed := rec.cosigners[step]
			if signed == nil {
				signed = map[int64]bool{}
				rec.cosigners[step] = signed
			}
			signed[f.users[phone].id] = true
			if len(signed) < len(s.ids) {
				break
			}
		}
		rec.level = step + 1
		if rec.level > len(f.steps) {
			rec.status = f.Labels.Approved
		} else {
			rec.status = f.Labels.AwaitingLevel(rec.level)
		}
	case "deny":
		rec.status = f.Labels.Denied
	case "revert":
		rec.status = f.Labels.Revoked
	default:
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (f *FakeCRM) list(w http.ResponseWriter, phone string) {
	ids := make([]string, 0, len(f.records))
	for id, rec := range f.records {
		if rec.owner == phone {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	var b strings.Builder
	b.WriteString(`<section><table><thead><tr><th>status</th></tr></thead><tbody>`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<tr data-id="%s"><td data-column="name"><div class="value">record %s</div></td>`+
			`<td data-column="approve_status_i18n"><div class="value"> %s </div></td></tr>`,
			id, id, html.EscapeString(f.records[id].status))
	}
	b.WriteString(`</tbody></table></section>`)
	fmt.Fprint(w, b.String())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
