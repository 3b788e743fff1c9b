package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Headless, m)

	m, err = ParseMode("headful")
	require.NoError(t, err)
	assert.Equal(t, Headful, m)
	assert.Equal(t, "headful", m.String())

	_, err = ParseMode("kiosk")
	assert.Error(t, err)
}

func TestBlockSet(t *testing.T) {
	s := blockSet([]string{"images", " Fonts ", "ping", ""})
	assert.True(t, s["Image"])
	assert.True(t, s["Font"])
	assert.True(t, s["Ping"])
	assert.False(t, s["Stylesheet"])
	assert.Len(t, s, 3)
}

func TestManagerClosed(t *testing.T) {
	m := NewManager(Config{})
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Start(t.Context())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Recycle(), ErrClosed)
	assert.Nil(t, m.Browser())
}

func TestOpenTabWithoutBrowser(t *testing.T) {
	m := NewManager(Config{})
	_, err := m.OpenTab(t.Context(), "p", "https://claude.ai")
	assert.Error(t, err)
}
