package handler

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"confirm-dialog/internal/confirm"
	"confirm-dialog/internal/demo"
	"confirm-dialog/internal/http/middleware"
	"confirm-dialog/internal/render"
	"confirm-dialog/internal/session"
)

type testEnv struct {
	srv       *httptest.Server
	client    *http.Client
	inventory *demo.Inventory
	backend   *session.MemoryBackend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)

	reg := confirm.NewRegistry()
	inventory := demo.NewInventory("report.pdf", "notes.txt")
	d := demo.New(inventory, log)
	require.NoError(t, d.Register(reg))

	renderer, err := render.New(log)
	require.NoError(t, err)

	backend := session.NewMemoryBackend(time.Minute)
	manager := session.NewManager(backend, session.Options{})

	h := New(Options{
		Registry: reg,
		Sessions: manager,
		Renderer: renderer,
		Triggers: d,
		Logger:   log,
	})
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(middleware.Session(manager)(mux))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{srv: srv, client: client, inventory: inventory, backend: backend}
}

type envelope struct {
	Code int              `json:"code"`
	Msg  string           `json:"msg"`
	Data transitionResult `json:"data"`
}

func (e *testEnv) post(t *testing.T, path string, form url.Values, ajax bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", e.srv.URL+"/")
	if ajax {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) ajax(t *testing.T, path string, form url.Values) envelope {
	t.Helper()
	resp := e.post(t, path, form, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) page(t *testing.T, path string) *goquery.Document {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc
}

func tokenFrom(t *testing.T, html string) string {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	tok, ok := doc.Find(`input[name="secureToken"]`).Attr("value")
	require.True(t, ok, "no token in %s", html)
	return tok
}

func TestAjaxShowConfirmAndReplay(t *testing.T) {
	env := newTestEnv(t)

	shown := env.ajax(t, "/dialog/files/delete/show", url.Values{"id": {"1"}})
	require.Equal(t, 0, shown.Code, shown.Msg)
	assert.Equal(t, confirm.OutcomeShown, shown.Data.Outcome)
	require.Contains(t, shown.Data.Snippets, "dialog-files")
	assert.Contains(t, shown.Data.Snippets, "confirmer-files-delete")
	assert.Contains(t, shown.Data.Snippets["dialog-files"], "Delete &#34;report.pdf&#34; for good?")
	tok := tokenFrom(t, shown.Data.Snippets["dialog-files"])

	confirmed := env.ajax(t, "/dialog/files/delete/confirm", url.Values{"secureToken": {tok}})
	require.Equal(t, 0, confirmed.Code, confirmed.Msg)
	assert.Equal(t, confirm.OutcomeConfirmed, confirmed.Data.Outcome)
	assert.Empty(t, confirmed.Data.Flashes)
	assert.NotContains(t, confirmed.Data.Snippets["dialog-files"], "secureToken")
	_, exists := env.inventory.Get(1)
	assert.False(t, exists)

	replayed := env.ajax(t, "/dialog/files/delete/confirm", url.Values{"secureToken": {tok}})
	require.Equal(t, 0, replayed.Code, replayed.Msg)
	assert.Equal(t, confirm.OutcomeExpired, replayed.Data.Outcome)
	assert.Equal(t, []string{confirm.DefaultExpiredNotice}, replayed.Data.Flashes)
}

func TestAjaxCancelKeepsFile(t *testing.T) {
	env := newTestEnv(t)

	shown := env.ajax(t, "/dialog/files/archive/show", url.Values{"id": {"2"}})
	tok := tokenFrom(t, shown.Data.Snippets["dialog-files"])

	cancelled := env.ajax(t, "/dialog/files/archive/cancel", url.Values{"secureToken": {tok}})
	require.Equal(t, 0, cancelled.Code)
	assert.Equal(t, confirm.OutcomeCancelled, cancelled.Data.Outcome)

	f, ok := env.inventory.Get(2)
	require.True(t, ok)
	assert.False(t, f.Archived)

	confirmed := env.ajax(t, "/dialog/files/archive/confirm", url.Values{"secureToken": {tok}})
	assert.Equal(t, confirm.OutcomeExpired, confirmed.Data.Outcome)
}

func TestFullPageFlowRedirectsAndKeepsPrompt(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/dialog/files/delete/show", url.Values{"id": {"1"}}, false)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	doc := env.page(t, "/")
	prompt := doc.Find("#confirmer-files-delete")
	require.Equal(t, 1, prompt.Length())
	tok, _ := prompt.Find(`input[name="secureToken"]`).Attr("value")
	require.NotEmpty(t, tok)
	assert.Equal(t, 1, doc.Find("#dialog-account ul.actions form").Length())

	resp = env.post(t, "/dialog/files/delete/confirm", url.Values{"secureToken": {tok}}, false)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, exists := env.inventory.Get(1)
	assert.False(t, exists)

	doc = env.page(t, "/")
	assert.Zero(t, doc.Find("#confirmer-files-delete").Length())
	assert.Zero(t, doc.Find("#flashes li").Length())
}

func TestFullPageExpiredTokenFlashes(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/dialog/files/delete/confirm", url.Values{"secureToken": {"not-a-real-token"}}, false)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	doc := env.page(t, "/")
	assert.Equal(t, confirm.DefaultExpiredNotice, strings.TrimSpace(doc.Find("#flashes li").Text()))
	assert.Len(t, env.inventory.List(), 2)

	// flashes are shown once
	doc = env.page(t, "/")
	assert.Zero(t, doc.Find("#flashes li").Length())
}

func TestLogoutDestroysSession(t *testing.T) {
	env := newTestEnv(t)

	shown := env.ajax(t, "/dialog/files/delete/show", url.Values{"id": {"1"}})
	fileTok := tokenFrom(t, shown.Data.Snippets["dialog-files"])

	shown = env.ajax(t, "/dialog/account/logout/show", nil)
	logoutTok := tokenFrom(t, shown.Data.Snippets["dialog-account"])

	out := env.ajax(t, "/dialog/account/logout/confirm", url.Values{"secureToken": {logoutTok}})
	assert.Equal(t, confirm.OutcomeConfirmed, out.Data.Outcome)

	// the cookie went with it, so the next request starts a fresh session
	srvURL, err := url.Parse(env.srv.URL)
	require.NoError(t, err)
	for _, c := range env.client.Jar.Cookies(srvURL) {
		assert.NotEqual(t, session.DefaultCookieName, c.Name)
	}

	// the pending delete went with the session
	out = env.ajax(t, "/dialog/files/delete/confirm", url.Values{"secureToken": {fileTok}})
	assert.Equal(t, confirm.OutcomeExpired, out.Data.Outcome)
	_, exists := env.inventory.Get(1)
	assert.True(t, exists)
}

func TestUnknownDialogAndConfirmer(t *testing.T) {
	env := newTestEnv(t)

	out := env.ajax(t, "/dialog/nope/delete/confirm", url.Values{"secureToken": {"x"}})
	assert.Equal(t, http.StatusNotFound, out.Code)

	out = env.ajax(t, "/dialog/files/nope/confirm", url.Values{"secureToken": {"x"}})
	assert.Equal(t, http.StatusNotFound, out.Code)

	resp := env.post(t, "/dialog/nope/delete/cancel", nil, false)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err := env.client.Get(env.srv.URL + "/dialog/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDialogFragment(t *testing.T) {
	env := newTestEnv(t)

	doc := env.page(t, "/dialog/files")
	section := doc.Find("section#dialog-files")
	require.Equal(t, 1, section.Length())
	// delete and archive for each of the two files
	assert.Equal(t, 4, section.Find("ul.actions form").Length())
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.client.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 0, out.Code)
}

func TestFormParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("id=7&tag=a&tag=b&secureToken=x"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.NoError(t, r.ParseForm())

	assert.Equal(t, confirm.Params{"id": "7", "tag": []string{"a", "b"}}, formParams(r))
}

func TestRedirectTarget(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://example.com/dialog/files/delete/confirm", nil)
	assert.Equal(t, "/", redirectTarget(r))

	r.Header.Set("Referer", "http://example.com/files?page=2")
	assert.Equal(t, "/files?page=2", redirectTarget(r))

	r.Header.Set("Referer", "http://evil.test/phish")
	assert.Equal(t, "/", redirectTarget(r))

	r.Header.Set("Referer", "http://example.com//evil.test/phish")
	assert.Equal(t, "/", redirectTarget(r))

	r.Header.Set("Referer", `http://example.com/\evil.test/phish`)
	target := redirectTarget(r)
	assert.True(t, strings.HasPrefix(target, "/"))
	assert.False(t, strings.HasPrefix(target, "//"))
	assert.False(t, strings.HasPrefix(target, `/\`))

	r.Header.Set("Referer", "javascript:alert(1)")
	assert.Equal(t, "/", redirectTarget(r))
}

func TestFullPageRedirectStaysOnSite(t *testing.T) {
	env := newTestEnv(t)
	form := url.Values{"id": {"1"}}
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/dialog/files/delete/show", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", env.srv.URL+"//evil.test/phish")

	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}
