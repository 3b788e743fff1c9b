// Package site maps a page location to one of the recognised chat
// applications.
package site

import (
	"errors"
	"fmt"
	"strings"
)

// Site identifies a chat application. It is detected once per page and never
// changes afterwards.
type Site string

const (
	Default Site = "default"
	Gemini  Site = "gemini"
	ChatGPT Site = "chatgpt"
	Claude  Site = "claude"
)

// ErrUnknownSite is returned by Parse for identifiers outside All.
var ErrUnknownSite = errors.New("site: unknown site")

// All lists the recognised sites in display order.
var All = []Site{Gemini, ChatGPT, Claude, Default}

// Detect maps a hostname or full URL to a Site by substring containment.
// Anything unrecognised is Default.
func Detect(location string) Site {
	loc := strings.ToLower(location)
	switch {
	case strings.Contains(loc, "gemini.google.com"):
		return Gemini
	case strings.Contains(loc, "chatgpt.com"), strings.Contains(loc, "openai.com"):
		return ChatGPT
	case strings.Contains(loc, "claude.ai"):
		return Claude
	default:
		return Default
	}
}

// Parse validates a site identifier as typed by a user or sent over the API.
func Parse(s string) (Site, error) {
	v := Site(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSite, s)
}

// DisplayName is the human label shown by the CLI and the API.
func (s Site) DisplayName() string {
	switch s {
	case Gemini:
		return "Google Gemini"
	case ChatGPT:
		return "ChatGPT"
	case Claude:
		return "Claude"
	default:
		return "Unknown Site"
	}
}

func (s Site) String() string { return string(s) }
