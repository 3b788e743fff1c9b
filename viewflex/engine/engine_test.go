package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/viewflex/viewflex/dom"
	"github.com/hazyhaar/viewflex/viewflex/dom/htmldom"
	"github.com/hazyhaar/viewflex/viewflex/site"
)

func testTable() []Descriptor {
	width := SetStyle("max-width", WidthRem())
	return []Descriptor{
		{Name: "container", Site: site.Gemini, Match: Simple{Classes: []string{"conversation-container", "ng-star-inserted"}}, Action: width},
		{Name: "query", Site: site.Gemini, Match: Simple{Tag: "USER-QUERY", Classes: []string{"ng-star-inserted"}}, Action: width},
		{Name: "bubble", Site: site.Gemini, Match: Simple{Classes: []string{"bubble"}}, Action: SetStyle("max-width", Fixed("50rem"))},
		{Name: "thread", Site: site.ChatGPT, Match: Custom{Predicate: ClassContains("--thread-content-max-width")}, Action: SetStyle("--thread-content-max-width", WidthRem())},
		{Name: "claude", Site: site.Claude, Match: Simple{Classes: []string{"max-w-3xl"}}, Action: width},
	}
}

type fixture struct {
	doc     *htmldom.Document
	prefs   *Preferences
	scanner *Scanner
}

func newFixture(t *testing.T, markup string, s site.Site, descs []Descriptor) *fixture {
	t.Helper()
	doc, err := htmldom.ParseString(markup, "https://example.test/")
	require.NoError(t, err)
	prefs := NewPreferences(s)
	reg := NewRegistry(s, descs, nil)
	return &fixture{doc: doc, prefs: prefs, scanner: NewScanner(reg, prefs, nil, nil)}
}

func byID(t *testing.T, d *htmldom.Document, id string) dom.Element {
	t.Helper()
	el, ok := d.ElementByID(id)
	require.True(t, ok, "element %q", id)
	return el
}

func TestMatches(t *testing.T) {
	f := newFixture(t, `<body>
		<div id="a" class="conversation-container ng-star-inserted extra"></div>
		<div id="b" class="conversation-container"></div>
		<user-query id="q" class="ng-star-inserted"></user-query>
		<div id="t" class="[--thread-content-max-width:48rem] mx-auto"></div>
	</body>`, site.Gemini, testTable())

	reg := f.scanner.reg
	container, query, thread := reg.All()[0], reg.All()[1], reg.All()[3]

	assert.True(t, Matches(byID(t, f.doc, "a"), container))
	assert.False(t, Matches(byID(t, f.doc, "b"), container), "all classes required")
	assert.True(t, Matches(byID(t, f.doc, "q"), query), "tag compared case-insensitively")
	assert.False(t, Matches(byID(t, f.doc, "a"), query))
	assert.False(t, Matches(byID(t, f.doc, "t"), thread), "descriptor of another site is inert")
	assert.False(t, Matches(nil, container))
	assert.False(t, Matches(byID(t, f.doc, "a"), nil))
}

func TestMatches_NonElement(t *testing.T) {
	f := newFixture(t, `<body><div id="p"></div></body>`, site.Gemini, []Descriptor{
		{Name: "any", Site: site.Gemini, Match: Custom{Predicate: func(dom.Element) bool { return true }}, Action: SetStyle("x", Fixed("y"))},
	})
	added, err := f.doc.Append(byID(t, f.doc, "p"), `text<!-- c --><span></span>`)
	require.NoError(t, err)
	require.Len(t, added, 3)

	d := f.scanner.reg.All()[0]
	assert.False(t, Matches(added[0], d))
	assert.False(t, Matches(added[1], d))
	assert.True(t, Matches(added[2], d))
}

func TestMalformedDescriptorsAreInert(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	called := false
	act := func(dom.Element, *Preferences) error { called = true; return nil }
	descs := []Descriptor{
		{Name: "empty", Site: site.Gemini, Match: Simple{}, Action: act},
		{Name: "nilmatch", Site: site.Gemini, Action: act},
		{Name: "nilpred", Site: site.Gemini, Match: Custom{}, Action: act},
		{Name: "noaction", Site: site.Gemini, Match: Simple{Tag: "div"}},
		{Name: "badclass", Site: site.Gemini, Match: Simple{Classes: []string{"a b"}}, Action: act},
	}
	doc, err := htmldom.ParseString(`<body><div class="a b"><p></p></div></body>`, "x")
	require.NoError(t, err)

	reg := NewRegistry(site.Gemini, descs, logger)
	assert.Empty(t, reg.Enabled())
	for _, d := range reg.All() {
		assert.False(t, d.Enabled(), d.Name)
	}

	s := NewScanner(reg, NewPreferences(site.Gemini), nil, logger)
	assert.NotPanics(t, func() {
		assert.Zero(t, s.FullScan(doc))
		assert.Zero(t, s.ApplySubtree(doc.Body()))
	})
	assert.False(t, called)
	assert.Equal(t, 5, strings.Count(logs.String(), "malformed descriptor"))
}

func TestDuplicateNameIsInert(t *testing.T) {
	descs := []Descriptor{
		{Name: "dup", Site: site.Gemini, Match: Simple{Tag: "div"}, Action: SetStyle("a", Fixed("1"))},
		{Name: "dup", Site: site.Gemini, Match: Simple{Tag: "p"}, Action: SetStyle("a", Fixed("2"))},
	}
	reg := NewRegistry(site.Gemini, descs, nil)
	require.Len(t, reg.Enabled(), 1)
	assert.Equal(t, Simple{Tag: "div"}, reg.Enabled()[0].Match)
}

func TestActionIdempotent(t *testing.T) {
	f := newFixture(t, `<body><div id="a" class="conversation-container ng-star-inserted" style="color: red"></div></body>`, site.Gemini, testTable())
	el := byID(t, f.doc, "a")
	act := f.scanner.reg.All()[0].Action

	require.NoError(t, act(el, f.prefs))
	once := f.doc.String()
	require.NoError(t, act(el, f.prefs))
	assert.Equal(t, once, f.doc.String())
	assert.Equal(t, "80rem", el.StyleProperty("max-width"))
	assert.Equal(t, "red", el.StyleProperty("color"))
}

func TestScanStylesElementWithMalformedStyle(t *testing.T) {
	f := newFixture(t, `<body>
		<div id="a" class="max-w-3xl" style="color: red;;"></div>
		<div id="b" class="max-w-3xl" style="color:red; /* c */"></div>
		<div id="c" class="max-w-3xl" style=";"></div>
		<div id="d" class="max-w-3xl" style="color: red; margin"></div>
	</body>`, site.Claude, testTable())

	require.Equal(t, 4, f.scanner.FullScan(f.doc))
	assert.EqualValues(t, 4, f.scanner.Counter().Load())
	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, "80rem", byID(t, f.doc, id).StyleProperty("max-width"), id)
	}
	assert.Equal(t, "red", byID(t, f.doc, "a").StyleProperty("color"))
}

func TestRescanConvergence(t *testing.T) {
	f := newFixture(t, `<body>
		<div id="a" class="conversation-container ng-star-inserted"></div>
		<section><user-query id="q" class="ng-star-inserted"></user-query></section>
		<div id="b" class="bubble"></div>
	</body>`, site.Gemini, testTable())

	require.Equal(t, 3, f.scanner.FullScan(f.doc))
	for _, w := range []int{95, 150, 60, 130} {
		f.prefs.SetWidth(w)
	}
	f.scanner.Rescan(f.doc)

	assert.Equal(t, "130rem", byID(t, f.doc, "a").StyleProperty("max-width"))
	assert.Equal(t, "130rem", byID(t, f.doc, "q").StyleProperty("max-width"))
	assert.Equal(t, "50rem", byID(t, f.doc, "b").StyleProperty("max-width"))
}

func TestEnablementIsolation(t *testing.T) {
	markup := `<body>
		<div id="g" class="conversation-container ng-star-inserted"></div>
		<div id="c" class="max-w-3xl"></div>
		<div id="t" class="[--thread-content-max-width:48rem]"></div>
	</body>`
	f := newFixture(t, markup, site.Claude, testTable())

	assert.Equal(t, 1, f.scanner.FullScan(f.doc))
	assert.Equal(t, "80rem", byID(t, f.doc, "c").StyleProperty("max-width"))
	assert.Empty(t, byID(t, f.doc, "g").StyleProperty("max-width"))
	assert.Empty(t, byID(t, f.doc, "t").StyleProperty("--thread-content-max-width"))

	f = newFixture(t, markup, site.Default, testTable())
	assert.Zero(t, f.scanner.FullScan(f.doc))
}

func TestCustomDescriptorCandidateTag(t *testing.T) {
	descs := []Descriptor{
		{Name: "thread", Site: site.ChatGPT, Match: Custom{Predicate: ClassContains("--thread")}, Action: SetStyle("--thread", WidthRem())},
		{Name: "main", Site: site.ChatGPT, Match: Custom{Predicate: ClassContains("--thread"), CandidateTag: "main"}, Action: SetStyle("--main", WidthRem())},
	}
	f := newFixture(t, `<body>
		<div id="d" class="x--thread"></div>
		<main id="m" class="x--thread"></main>
	</body>`, site.ChatGPT, descs)

	assert.Equal(t, 2, f.scanner.FullScan(f.doc))
	assert.Equal(t, "80rem", byID(t, f.doc, "d").StyleProperty("--thread"))
	assert.Empty(t, byID(t, f.doc, "m").StyleProperty("--thread"), "default candidate tag is div")
	assert.Equal(t, "80rem", byID(t, f.doc, "m").StyleProperty("--main"))
}

func TestSelectorEscapesClassTokens(t *testing.T) {
	descs := []Descriptor{
		{Name: "tw", Site: site.Claude, Match: Simple{Classes: []string{"md:max-w-3xl"}}, Action: SetStyle("max-width", WidthRem())},
		{Name: "digit", Site: site.Claude, Match: Simple{Classes: []string{"2xl"}}, Action: SetStyle("min-width", WidthRem())},
	}
	f := newFixture(t, `<body><div id="a" class="md:max-w-3xl 2xl"></div></body>`, site.Claude, descs)

	assert.Equal(t, `.md\:max-w-3xl`, f.scanner.reg.All()[0].selector())
	assert.Equal(t, 2, f.scanner.FullScan(f.doc))
}

type failingRoot struct {
	dom.Queryable
	fail string
}

func (r failingRoot) QueryAll(sel string) ([]dom.Element, error) {
	if sel == r.fail {
		return nil, errors.New("boom")
	}
	return r.Queryable.QueryAll(sel)
}

func TestQueryFailureDoesNotAbortScan(t *testing.T) {
	f := newFixture(t, `<body>
		<div id="a" class="conversation-container ng-star-inserted"></div>
		<div id="b" class="bubble"></div>
	</body>`, site.Gemini, testTable())

	root := failingRoot{Queryable: f.doc, fail: f.scanner.reg.All()[0].selector()}
	assert.Equal(t, 1, f.scanner.FullScan(root))
	assert.Empty(t, byID(t, f.doc, "a").StyleProperty("max-width"))
	assert.Equal(t, "50rem", byID(t, f.doc, "b").StyleProperty("max-width"))
}

func TestFailingActionIsNotCounted(t *testing.T) {
	descs := []Descriptor{
		{Name: "bad", Site: site.Gemini, Match: Simple{Tag: "div"}, Action: func(dom.Element, *Preferences) error { return errors.New("detached") }},
		{Name: "good", Site: site.Gemini, Match: Simple{Tag: "div"}, Action: SetStyle("max-width", WidthRem())},
	}
	f := newFixture(t, `<body><div></div></body>`, site.Gemini, descs)
	assert.Equal(t, 1, f.scanner.FullScan(f.doc))
	assert.EqualValues(t, 1, f.scanner.Counter().Load())
}

func TestScanAndBatchOverlap(t *testing.T) {
	f := newFixture(t, `<body><div id="a" class="conversation-container ng-star-inserted"></div></body>`, site.Gemini, testTable())
	el := byID(t, f.doc, "a")

	f.scanner.FullScan(f.doc)
	after := f.doc.String()
	f.scanner.ApplySubtree(el)

	assert.Equal(t, after, f.doc.String())
	assert.Equal(t, "max-width: 80rem;", styleAttr(t, f.doc, "a"))
}

func styleAttr(t *testing.T, d *htmldom.Document, id string) string {
	t.Helper()
	html := d.String()
	i := strings.Index(html, `id="`+id+`"`)
	require.GreaterOrEqual(t, i, 0)
	rest := html[i:]
	j := strings.Index(rest, `style="`)
	require.GreaterOrEqual(t, j, 0)
	rest = rest[j+len(`style="`):]
	return rest[:strings.IndexByte(rest, '"')]
}

func startWatcher(t *testing.T, doc dom.Document, s *Scanner, onStatus func(Status)) (*Watcher, context.CancelFunc, <-chan error) {
	t.Helper()
	w := NewWatcher(WatcherConfig{Document: doc, Scanner: s, OnStatus: onStatus})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	require.Eventually(t, func() bool { return w.State() == Active }, 2*time.Second, 5*time.Millisecond)
	t.Cleanup(cancel)
	return w, cancel, errc
}

func TestWatcher_NestedSubtreeInOneBatch(t *testing.T) {
	f := newFixture(t, `<body><main id="m"></main></body>`, site.Gemini, testTable())
	w, _, _ := startWatcher(t, f.doc, f.scanner, nil)

	_, err := f.doc.Append(byID(t, f.doc, "m"), `
		<div class="conversation-container ng-star-inserted" id="c1">
			<section><article>
				<user-query class="ng-star-inserted" id="q1"></user-query>
				<div><div><div class="bubble" id="b1"></div></div></div>
			</article></section>
		</div>
		<div class="conversation-container ng-star-inserted" id="c2"></div>`)
	require.NoError(t, err)
	require.NoError(t, w.Sync(context.Background()))

	for _, id := range []string{"c1", "q1", "c2"} {
		assert.Equal(t, "80rem", byID(t, f.doc, id).StyleProperty("max-width"), id)
	}
	assert.Equal(t, "50rem", byID(t, f.doc, "b1").StyleProperty("max-width"))
}

func TestWatcher_WaitsForReady(t *testing.T) {
	doc, err := htmldom.ParseLoading(strings.NewReader(`<body><div class="bubble" id="b"></div></body>`), "x")
	require.NoError(t, err)
	reg := NewRegistry(site.Gemini, testTable(), nil)
	s := NewScanner(reg, NewPreferences(site.Gemini), nil, nil)
	w := NewWatcher(WatcherConfig{Document: doc, Scanner: s})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Inactive, w.State())
	assert.Empty(t, byID(t, doc, "b").StyleProperty("max-width"))

	doc.SetReadyState(dom.Interactive)
	require.Eventually(t, func() bool { return w.State() == Active }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, w.Sync(ctx))
	assert.Equal(t, "50rem", byID(t, doc, "b").StyleProperty("max-width"))
}

func TestWatcher_CancelBeforeReady(t *testing.T) {
	doc, err := htmldom.ParseLoading(strings.NewReader(`<body></body>`), "x")
	require.NoError(t, err)
	s := NewScanner(NewRegistry(site.Gemini, nil, nil), NewPreferences(site.Gemini), nil, nil)
	w := NewWatcher(WatcherConfig{Document: doc, Scanner: s})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, w.Run(ctx))
	assert.Equal(t, Stopped, w.State())
}

func TestWatcher_StatusSurface(t *testing.T) {
	f := newFixture(t, `<body><div id="log"></div><div class="bubble"></div></body>`, site.Gemini, testTable())

	statuses := make(chan Status, 16)
	w, cancel, errc := startWatcher(t, f.doc, f.scanner, func(s Status) { statuses <- s })
	require.NoError(t, w.Sync(context.Background()))

	first := <-statuses
	assert.True(t, first.Active)
	assert.EqualValues(t, 1, first.Modifications)
	assert.Equal(t, "observer status: active; total modifications: 1", byID(t, f.doc, "log").(*htmldom.Element).Text())

	// A batch with nothing to style does not refresh.
	_, err := f.doc.Append(f.doc.Body(), `<p></p>`)
	require.NoError(t, err)
	require.NoError(t, w.Sync(context.Background()))
	assert.Empty(t, statuses)

	_, err = f.doc.Append(f.doc.Body(), `<div class="bubble"></div><div class="bubble"></div>`)
	require.NoError(t, err)
	require.NoError(t, w.Sync(context.Background()))
	assert.EqualValues(t, 3, (<-statuses).Modifications)
	assert.Empty(t, statuses, "one refresh per batch")

	cancel()
	require.NoError(t, <-errc)
	last := <-statuses
	assert.False(t, last.Active)
	assert.Equal(t, "observer status: disconnected; total modifications: 3", byID(t, f.doc, "log").(*htmldom.Element).Text())
}

func TestWatcher_MissingStatusElement(t *testing.T) {
	f := newFixture(t, `<body><div class="bubble"></div></body>`, site.Gemini, testTable())
	w, _, _ := startWatcher(t, f.doc, f.scanner, nil)
	require.NoError(t, w.Sync(context.Background()))
	assert.EqualValues(t, 1, w.Status().Modifications)
}

func TestWatcher_RescanUsesLatestWidth(t *testing.T) {
	f := newFixture(t, `<body><div id="a" class="conversation-container ng-star-inserted"></div></body>`, site.Gemini, testTable())
	w, _, _ := startWatcher(t, f.doc, f.scanner, nil)
	require.NoError(t, w.Sync(context.Background()))

	for _, width := range []int{100, 110, 120} {
		f.prefs.SetWidth(width)
		w.RequestRescan()
	}
	require.NoError(t, w.Sync(context.Background()))
	assert.Equal(t, "120rem", byID(t, f.doc, "a").StyleProperty("max-width"))

	_, err := f.doc.Append(f.doc.Body(), `<div id="late" class="conversation-container ng-star-inserted"></div>`)
	require.NoError(t, err)
	require.NoError(t, w.Sync(context.Background()))
	assert.Equal(t, "120rem", byID(t, f.doc, "late").StyleProperty("max-width"))
}
