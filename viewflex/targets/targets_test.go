package targets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/viewflex/viewflex/dom"
	"github.com/hazyhaar/viewflex/viewflex/dom/htmldom"
	"github.com/hazyhaar/viewflex/viewflex/engine"
	"github.com/hazyhaar/viewflex/viewflex/site"
)

func TestBuiltinIsWellFormed(t *testing.T) {
	table := Builtin()
	reg := engine.NewRegistry(site.Gemini, table, nil)
	require.Len(t, reg.All(), 6)
	assert.Len(t, reg.Enabled(), 4)

	names := map[string]bool{}
	for _, d := range table {
		assert.False(t, names[d.Name], "duplicate %s", d.Name)
		names[d.Name] = true
	}
	for _, s := range []site.Site{site.ChatGPT, site.Claude} {
		assert.Len(t, engine.NewRegistry(s, table, nil).Enabled(), 1, s)
	}
	assert.Empty(t, engine.NewRegistry(site.Default, table, nil).Enabled())
}

func el(t *testing.T, d *htmldom.Document, id string) dom.Element {
	t.Helper()
	e, ok := d.ElementByID(id)
	require.True(t, ok, id)
	return e
}

// Gemini page at 80rem, updated to 120rem, then a bubble streamed in.
func TestGeminiScenario(t *testing.T) {
	doc, err := htmldom.ParseString(`<html><body>
		<div id="log"></div>
		<chat-window id="chat">
			<div id="conv" class="conversation-container ng-star-inserted"></div>
		</chat-window>
	</body></html>`, "https://gemini.google.com/app/42")
	require.NoError(t, err)

	s := site.Detect(doc.Location())
	require.Equal(t, site.Gemini, s)
	prefs := engine.NewPreferences(s)
	counter := &engine.Counter{}
	scanner := engine.NewScanner(engine.NewRegistry(s, Builtin(), nil), prefs, counter, nil)
	w := engine.NewWatcher(engine.WatcherConfig{Document: doc, Scanner: scanner})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	require.Eventually(t, func() bool { return w.State() == engine.Active }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, w.Sync(ctx))

	assert.Equal(t, "80rem", el(t, doc, "conv").StyleProperty("max-width"))
	assert.EqualValues(t, 1, counter.Load())

	prefs.SetWidth(120)
	w.RequestRescan()
	require.NoError(t, w.Sync(ctx))
	assert.Equal(t, "120rem", el(t, doc, "conv").StyleProperty("max-width"))
	assert.EqualValues(t, 2, counter.Load(), "one element touched by the rescan")

	_, err = doc.Append(el(t, doc, "chat"), `
		<user-query id="uq" class="ng-star-inserted">
			<div id="bubble" class="user-query-bubble-with-background ng-star-inserted">hello</div>
		</user-query>
		<div id="conv2" class="conversation-container ng-star-inserted"></div>`)
	require.NoError(t, err)
	require.NoError(t, w.Sync(ctx))

	assert.Equal(t, "120rem", el(t, doc, "uq").StyleProperty("max-width"))
	assert.Equal(t, "120rem", el(t, doc, "conv2").StyleProperty("max-width"))
	assert.Equal(t, BubbleWidth, el(t, doc, "bubble").StyleProperty("max-width"))
	assert.Equal(t, "observer status: active; total modifications: 5",
		el(t, doc, "log").(*htmldom.Element).Text())
}

func TestChatGPTThreadProperty(t *testing.T) {
	doc, err := htmldom.ParseString(`<body>
		<div id="thread" class="mx-auto [--thread-content-max-width:40rem] flex"></div>
		<section id="other" class="[--thread-content-max-width:40rem]"></section>
	</body>`, "https://chatgpt.com/c/1")
	require.NoError(t, err)

	s := site.Detect(doc.Location())
	prefs := engine.NewPreferences(s)
	prefs.SetWidth(100)
	scanner := engine.NewScanner(engine.NewRegistry(s, Builtin(), nil), prefs, nil, nil)

	assert.Equal(t, 1, scanner.FullScan(doc))
	assert.Equal(t, "100rem", el(t, doc, "thread").StyleProperty(ThreadWidthProperty))
	assert.Empty(t, el(t, doc, "other").StyleProperty(ThreadWidthProperty), "only div candidates")
}

func TestClaude(t *testing.T) {
	doc, err := htmldom.ParseString(`<body><div id="c" class="mx-auto max-w-3xl"></div></body>`, "https://claude.ai/chat/1")
	require.NoError(t, err)
	s := site.Detect(doc.Location())
	scanner := engine.NewScanner(engine.NewRegistry(s, Builtin(), nil), engine.NewPreferences(s), nil, nil)
	assert.Equal(t, 1, scanner.FullScan(doc))
	assert.Equal(t, "80rem", el(t, doc, "c").StyleProperty("max-width"))
}

func TestTableFromSpecs(t *testing.T) {
	table, errs := Table([]Spec{
		{Name: "claudeInput", Site: "claude", Classes: []string{"composer"}},
		{Name: "geminiSide", Site: "gemini", ClassContains: "side-nav", CandidateTag: "nav", Property: "min-width", Value: "10rem"},
		{Name: "broken", Site: "bard", Tag: "div"},
	})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], site.ErrUnknownSite)
	require.Len(t, table, len(Builtin())+2)

	doc, err := htmldom.ParseString(`<body><nav id="n" class="x-side-nav"></nav><div id="d" class="composer"></div></body>`, "https://gemini.google.com")
	require.NoError(t, err)
	scanner := engine.NewScanner(engine.NewRegistry(site.Gemini, table, nil), engine.NewPreferences(site.Gemini), nil, nil)
	assert.Equal(t, 1, scanner.FullScan(doc))
	assert.Equal(t, "10rem", el(t, doc, "n").StyleProperty("min-width"))
	assert.Empty(t, el(t, doc, "d").StyleProperty("max-width"))
}
