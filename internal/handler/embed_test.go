package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/grafana/sobek"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluefermion/reviews/internal/model"
	"github.com/bluefermion/reviews/internal/widget"
)

// browserEnv is the slice of window and document embed.js touches. innerHTML
// is not parsed: querySelector hands back one stable element per selector,
// and querySelectorAll hands back five for the star selector.
const browserEnv = `
var window = this;
var timers = [];
var requests = [];
var fetchResponse = { status: 200, body: '{"success":true,"message":"Review submitted successfully"}' };
var fetchFails = false;

function setTimeout(fn, ms) { timers.push({ fn: fn, ms: ms }); return timers.length; }
function clearTimeout(id) { if (timers[id - 1]) { timers[id - 1].cleared = true; } }
function runTimers() {
  timers.filter(function (t) { return !t.ran && !t.cleared; })
    .forEach(function (t) { t.ran = true; t.fn(); });
}

function URLSearchParams(search) {
  var values = this.values = {};
  String(search || '').replace(/^\?/, '').split('&').forEach(function (pair) {
    if (!pair) { return; }
    var i = pair.indexOf('=');
    var k = decodeURIComponent(i < 0 ? pair : pair.slice(0, i));
    if (!(k in values)) { values[k] = i < 0 ? '' : decodeURIComponent(pair.slice(i + 1).replace(/\+/g, ' ')); }
  });
}
URLSearchParams.prototype.get = function (k) { return k in this.values ? this.values[k] : null; };

function Element(tag) {
  var cls = {};
  this.tagName = tag;
  this.children = [];
  this.parentNode = null;
  this.listeners = {};
  this.found = {};
  this.style = {};
  this.className = '';
  this.textContent = '';
  this.value = '';
  this.disabled = false;
  this.offsetHeight = 0;
  this.classList = {
    add: function (c) { cls[c] = true; },
    remove: function (c) { delete cls[c]; },
    contains: function (c) { return !!cls[c]; },
    toggle: function (c, on) {
      if (on === undefined) { on = !cls[c]; }
      if (on) { cls[c] = true; } else { delete cls[c]; }
      return on;
    }
  };
}
Object.defineProperty(Element.prototype, 'firstChild', {
  get: function () { return this.children[0] || null; }
});
Object.defineProperty(Element.prototype, 'innerHTML', {
  get: function () { return this.markup || ''; },
  set: function (markup) {
    var child = new Element('node');
    child.parentNode = this;
    this.markup = markup;
    this.children = [child];
    this.found = {};
  }
});
Element.prototype.appendChild = function (c) {
  if (c.parentNode) { c.parentNode.removeChild(c); }
  c.parentNode = this;
  this.children.push(c);
  return c;
};
Element.prototype.removeChild = function (c) {
  var i = this.children.indexOf(c);
  if (i >= 0) { this.children.splice(i, 1); c.parentNode = null; }
  return c;
};
Element.prototype.contains = function (c) {
  for (var n = c; n; n = n.parentNode) { if (n === this) { return true; } }
  return false;
};
Element.prototype.addEventListener = function (type, fn) {
  (this.listeners[type] = this.listeners[type] || []).push(fn);
};
Element.prototype.fire = function (type) {
  var self = this;
  (this.listeners[type] || []).slice().forEach(function (fn) { fn({ type: type, target: self }); });
};
Element.prototype.querySelector = function (sel) {
  if (!this.found[sel]) {
    var el = new Element('node');
    el.parentNode = this;
    this.found[sel] = el;
  }
  return this.found[sel];
};
Element.prototype.querySelectorAll = function (sel) {
  var key = sel + ' *';
  if (!this.found[key]) {
    var list = [];
    for (var i = 0; i < (/star$/.test(sel) ? 5 : 1); i++) {
      var el = new Element('node');
      el.parentNode = this;
      list.push(el);
    }
    this.found[key] = list;
  }
  return this.found[key];
};

var document = {
  referrer: 'https://mail.example.com/',
  head: new Element('head'),
  body: new Element('body'),
  createElement: function (tag) { return new Element(tag); },
  querySelectorAll: function () { return this.body.children.slice(); }
};

window.navigator = { userAgent: '' };
window.location = {
  href: 'https://shop.example.com/p?utm_source=mail&utm_campaign=spring',
  search: '?utm_source=mail&utm_campaign=spring'
};
window.fetch = function (url, init) {
  requests.push({ url: url, method: init.method, headers: init.headers, body: JSON.parse(init.body) });
  if (fetchFails) { return Promise.reject(new TypeError('Failed to fetch')); }
  var r = fetchResponse;
  return Promise.resolve({
    ok: r.status >= 200 && r.status < 300,
    status: r.status,
    text: function () { return Promise.resolve(r.body); }
  });
};

function instance() { return window[NS].instance; }
function clickStar(n) { instance().overlay.querySelectorAll('.' + PREFIX + 'star')[n - 1].fire('click'); }
function clickSubmit() { instance().q('submit').fire('click'); }
function message() { return instance().q('message').textContent; }
`

type scriptPage struct {
	t  *testing.T
	vm *sobek.Runtime
}

func embedScript(t *testing.T, apiKey string) string {
	t.Helper()
	h, err := New(Deps{Log: slog.New(slog.NewTextHandler(io.Discard, nil))}, Options{
		SubmissionEndpoint: publicURL + "/api/reviews",
		WidgetAPIKey:       apiKey,
		SubmitTimeout:      5 * time.Second,
	})
	require.NoError(t, err)
	return string(h.script)
}

// loadScript runs setup (typically the host snippet's queue) and then the
// script, the order a host page produces.
func loadScript(t *testing.T, script, setup string) *scriptPage {
	t.Helper()
	vm := sobek.New()
	require.NoError(t, vm.Set("NS", widget.NamespaceName))
	require.NoError(t, vm.Set("PREFIX", widget.ClassPrefix))
	_, err := vm.RunString(browserEnv)
	require.NoError(t, err)
	p := &scriptPage{t: t, vm: vm}
	if setup != "" {
		p.eval(setup)
	}
	p.eval(script)
	return p
}

func (p *scriptPage) eval(js string) sobek.Value {
	p.t.Helper()
	v, err := p.vm.RunString(js)
	require.NoError(p.t, err)
	return v
}

func (p *scriptPage) set(name string, v any) {
	p.t.Helper()
	require.NoError(p.t, p.vm.Set(name, v))
}

type capturedRequest struct {
	URL     string                        `json:"url"`
	Method  string                        `json:"method"`
	Headers map[string]string             `json:"headers"`
	Body    model.ReviewSubmissionRequest `json:"body"`
}

func (p *scriptPage) requests() []capturedRequest {
	p.t.Helper()
	var out []capturedRequest
	require.NoError(p.t, json.Unmarshal([]byte(p.eval("JSON.stringify(requests)").String()), &out))
	return out
}

func queueInit(raw string) string {
	return "window[NS] = { q: [['init', " + raw + "]] };"
}

func TestEmbedScriptSingleInstance(t *testing.T) {
	script := embedScript(t, "")
	p := loadScript(t, script,
		"window[NS] = { q: [['init', { portalId: 'first', delay: 0 }], ['noop'], ['init', { portalId: 'second' }]] };")

	assert.Equal(t, "first", p.eval("instance().cfg.portalId").String())
	assert.True(t, p.eval("window[NS].init({ portalId: 'third' }) === instance()").ToBoolean())
	assert.True(t, p.eval("window[NS].q.push(['init', { portalId: 'fourth' }]) === instance()").ToBoolean())
	assert.Equal(t, "first", p.eval("instance().cfg.portalId").String())

	// Loading the script a second time leaves the live instance alone.
	p.eval("var before = instance();")
	p.eval(script)
	assert.True(t, p.eval("before === instance()").ToBoolean())

	assert.EqualValues(t, 1, p.eval("document.head.children.length").ToInteger(), "one stylesheet")
	assert.EqualValues(t, 1, p.eval("document.body.children.length").ToInteger(), "one overlay")
	assert.EqualValues(t, 1, p.eval("timers.length").ToInteger(), "one display timer")
}

func TestEmbedScriptDirectInitWithoutQueue(t *testing.T) {
	p := loadScript(t, embedScript(t, ""), "")

	assert.True(t, p.eval("instance() === undefined").ToBoolean())
	p.eval("window[NS].init({ portalId: 'late', primaryColor: '#ff0000' })")
	assert.Equal(t, "late", p.eval("instance().cfg.portalId").String())
	assert.Contains(t, p.eval("document.head.children[0].textContent").String(), "#ff0000")
	assert.NotContains(t, p.eval("document.head.children[0].textContent").String(), colorToken)
}

func TestEmbedScriptDelayMatchesParseConfig(t *testing.T) {
	script := embedScript(t, "")
	for _, raw := range []string{
		`{"delay": 0}`,
		`{"delaySeconds": 2}`,
		`{}`,
		`{"delay": "750"}`,
		`{"delay": " 250 "}`,
		`{"delay": ""}`,
		`{"delay": "soon"}`,
		`{"delay": true}`,
		`{"delay": -5}`,
		`{"delay": 100, "delaySeconds": 3}`,
		`{"delay": 1.5}`,
		`{"delay": 1e300}`,
		`{"delaySeconds": 1e12}`,
	} {
		t.Run(raw, func(t *testing.T) {
			var cfg map[string]any
			require.NoError(t, json.Unmarshal([]byte(raw), &cfg))
			want := float64(widget.ParseConfig(cfg, widget.Deployment{}).Delay) / float64(time.Millisecond)

			p := loadScript(t, script, queueInit(raw))
			assert.InDelta(t, want, p.eval("instance().cfg.delay").ToFloat(), 1e-9)
			assert.InDelta(t, want, p.eval("timers[0].ms").ToFloat(), 1e-9)
		})
	}
}

func TestEmbedScriptZeroDelayShowsOnFirstTick(t *testing.T) {
	p := loadScript(t, embedScript(t, ""), queueInit(`{"portalId": "acme", "delay": 0}`))

	assert.True(t, p.eval("instance().overlay.style.display === undefined").ToBoolean(), "show is asynchronous")
	p.eval("runTimers()")
	assert.Equal(t, "flex", p.eval("instance().overlay.style.display").String())
	assert.True(t, p.eval("instance().overlay.classList.contains('visible')").ToBoolean())
}

func TestEmbedScriptDetectionMatchesGo(t *testing.T) {
	script := embedScript(t, "")
	agents := []string{
		chromeUA,
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (Windows NT 6.1; WOW64; Trident/7.0; rv:11.0) like Gecko",
		"Mozilla/5.0 (Windows NT 10.0) Edge/18.19045",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (iPod; U; CPU iPhone OS 4_3_3) AppleWebKit/533.17.9 (KHTML, like Gecko) Version/5.0.2 Mobile/8J2 Safari/6533.18.5",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.144 Mobile Safari/537.36",
		"Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Linux; U; Android 4.0.3; ko-kr; LG-L160L Build/IML74K) AppleWebKit/534.30 (KHTML, like Gecko) Version/4.0 Mobile Safari/534.30",
		"curl/8.4.0",
		"",
	}
	for _, ua := range agents {
		t.Run(ua, func(t *testing.T) {
			p := loadScript(t, script, queueInit(`{"portalId": "acme", "delay": 0}`))
			p.set("ua", ua)
			p.eval("window.navigator.userAgent = ua; runTimers(); clickStar(4); clickSubmit();")

			reqs := p.requests()
			require.Len(t, reqs, 1)
			md := reqs[0].Body.Metadata

			browser, browserVersion := widget.DetectBrowser(ua)
			osName, osVersion := widget.DetectOS(ua)
			assert.Equal(t, browser, md.Browser)
			assert.Equal(t, browserVersion, md.BrowserVersion)
			assert.Equal(t, osName, md.OS)
			assert.Equal(t, osVersion, md.OSVersion)
			assert.Equal(t, widget.DetectDevice(ua), md.DeviceType)
		})
	}
}

func TestEmbedScriptSubmitsWireContract(t *testing.T) {
	p := loadScript(t, embedScript(t, "site-key"), queueInit(`{"portalId": "acme", "delay": 0}`))
	p.eval("runTimers(); clickStar(4); instance().q('textarea').value = 'Great service'; clickSubmit();")

	reqs := p.requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, publicURL+"/api/reviews", req.URL)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "application/json", req.Headers["Content-Type"])
	assert.Equal(t, "Bearer site-key", req.Headers["Authorization"])
	assert.Equal(t, "acme", req.Body.PortalID)
	assert.Equal(t, 4, req.Body.Rating)
	assert.Equal(t, "Great service", req.Body.ReviewText)
	assert.Equal(t, "https://shop.example.com/p?utm_source=mail&utm_campaign=spring", req.Body.Metadata.LandingPage)
	assert.Equal(t, "https://mail.example.com/", req.Body.Metadata.ReferrerURL)
	assert.Equal(t, "mail", req.Body.Metadata.UTMSource)
	assert.Equal(t, "spring", req.Body.Metadata.UTMCampaign)
	assert.Empty(t, req.Body.Metadata.UTMTerm)

	assert.True(t, p.eval("instance().completed").ToBoolean())

	// The thank-you view takes no further submissions.
	p.eval("clickSubmit()")
	assert.Len(t, p.requests(), 1)
}

func TestEmbedScriptWithoutAPIKeySendsNoAuthorization(t *testing.T) {
	p := loadScript(t, embedScript(t, ""), queueInit(`{"portalId": "acme", "delay": 0}`))
	p.eval("runTimers(); clickStar(1); clickSubmit();")

	reqs := p.requests()
	require.Len(t, reqs, 1)
	assert.NotContains(t, reqs[0].Headers, "Authorization")
}

func TestEmbedScriptRequiresRating(t *testing.T) {
	p := loadScript(t, embedScript(t, ""), queueInit(`{"portalId": "acme", "delay": 0}`))
	p.eval("runTimers(); clickSubmit();")

	assert.Empty(t, p.requests())
	assert.Equal(t, widget.MsgSelectRating, p.eval("message()").String())
}

func TestEmbedScriptErrorMessages(t *testing.T) {
	script := embedScript(t, "")
	tests := []struct {
		name   string
		status int
		body   string
		fails  bool
		want   string
	}{
		{name: "unknown portal", status: 400, body: `{"success":false,"error":"Invalid portal_id","code":"400"}`, want: widget.MsgInvalidPortal},
		{name: "bad rating", status: 400, body: `{"success":false,"error":"Rating must be between 1 and 5","code":"400"}`, want: widget.MsgInvalidRating},
		{name: "server error", status: 500, body: `{"success":false,"error":"Internal server error","code":"500"}`, want: widget.MsgGeneric},
		{name: "non json body", status: 502, body: `<html>Bad Gateway</html>`, want: widget.MsgGeneric},
		{name: "success flag false", status: 200, body: `{"success":false,"error":"Invalid portal_id"}`, want: widget.MsgInvalidPortal},
		{name: "offline", fails: true, want: widget.MsgNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := loadScript(t, script, queueInit(`{"portalId": "acme", "delay": 0}`))
			p.set("status", tt.status)
			p.set("body", tt.body)
			p.set("fails", tt.fails)
			p.eval("fetchResponse = { status: status, body: body }; fetchFails = fails;")
			p.eval("runTimers(); clickStar(2); clickSubmit();")

			assert.Equal(t, tt.want, p.eval("message()").String())
			assert.Contains(t, p.eval("instance().q('message').className").String(), widget.ClassPrefix+"error")
			assert.False(t, p.eval("instance().q('submit').disabled").ToBoolean(), "control re-enabled")
			assert.False(t, p.eval("instance().completed").ToBoolean())

			// The visitor retries with a second click.
			p.eval("fetchResponse = { status: 200, body: '{\"success\":true}' }; fetchFails = false; clickSubmit();")
			assert.Len(t, p.requests(), 2)
			assert.True(t, p.eval("instance().completed").ToBoolean())
		})
	}
}
