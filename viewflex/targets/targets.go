// Package targets holds the built-in descriptor table of the supported chat
// applications and builds extra descriptors from configuration.
package targets

import (
	"fmt"

	"github.com/hazyhaar/viewflex/viewflex/engine"
	"github.com/hazyhaar/viewflex/viewflex/site"
)

// BubbleWidth is the fixed width of Gemini user query bubbles.
const BubbleWidth = "50rem"

// ThreadWidthProperty is the CSS custom property ChatGPT sizes its thread with.
const ThreadWidthProperty = "--thread-content-max-width"

// Builtin returns the descriptor table, in evaluation order.
func Builtin() []engine.Descriptor {
	width := engine.SetStyle("max-width", engine.WidthRem())
	return []engine.Descriptor{
		{
			Name:   "inputAreaContainer",
			Site:   site.Gemini,
			Match:  engine.Simple{Classes: []string{"input-area-container", "ng-star-inserted"}},
			Action: width,
		},
		{
			Name:   "conversationContainer",
			Site:   site.Gemini,
			Match:  engine.Simple{Classes: []string{"conversation-container", "ng-star-inserted"}},
			Action: width,
		},
		{
			Name:   "userQueryTag",
			Site:   site.Gemini,
			Match:  engine.Simple{Tag: "user-query", Classes: []string{"ng-star-inserted"}},
			Action: width,
		},
		{
			Name:   "userQueryBubble",
			Site:   site.Gemini,
			Match:  engine.Simple{Classes: []string{"user-query-bubble-with-background", "ng-star-inserted"}},
			Action: engine.SetStyle("max-width", engine.Fixed(BubbleWidth)),
		},
		{
			Name: "chatGPTConversation",
			Site: site.ChatGPT,
			Match: engine.Custom{
				Predicate:    engine.ClassContains(ThreadWidthProperty),
				CandidateTag: "div",
			},
			Action: engine.SetStyle(ThreadWidthProperty, engine.WidthRem()),
		},
		{
			Name:   "claudeConversation",
			Site:   site.Claude,
			Match:  engine.Simple{Classes: []string{"max-w-3xl"}},
			Action: width,
		},
	}
}

// Spec is a descriptor as written in the configuration file.
type Spec struct {
	Name          string   `yaml:"name"`
	Site          string   `yaml:"site"`
	Tag           string   `yaml:"tag"`
	Classes       []string `yaml:"classes"`
	ClassContains string   `yaml:"class_contains"`
	CandidateTag  string   `yaml:"candidate_tag"`
	Property      string   `yaml:"property"`
	// Value is a fixed value. When empty the preference width is used.
	Value string `yaml:"value"`
}

// FromSpec builds a descriptor from configuration. The result may still be
// malformed (no tag and no classes), in which case the registry keeps it
// inert.
func FromSpec(s Spec) (engine.Descriptor, error) {
	st, err := site.Parse(s.Site)
	if err != nil {
		return engine.Descriptor{}, fmt.Errorf("targets: descriptor %q: %w", s.Name, err)
	}
	prop := s.Property
	if prop == "" {
		prop = "max-width"
	}
	value := engine.WidthRem()
	if s.Value != "" {
		value = engine.Fixed(s.Value)
	}

	d := engine.Descriptor{
		Name:   s.Name,
		Site:   st,
		Action: engine.SetStyle(prop, value),
	}
	if s.ClassContains != "" {
		d.Match = engine.Custom{
			Predicate:    engine.ClassContains(s.ClassContains),
			CandidateTag: s.CandidateTag,
		}
	} else {
		d.Match = engine.Simple{Tag: s.Tag, Classes: s.Classes}
	}
	return d, nil
}

// Table is Builtin followed by the descriptors built from specs. Specs with an
// unknown site are returned as errors and left out.
func Table(specs []Spec) ([]engine.Descriptor, []error) {
	out := Builtin()
	var errs []error
	for _, s := range specs {
		d, err := FromSpec(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, d)
	}
	return out, errs
}
