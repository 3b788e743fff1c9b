package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests whose resource type is listed in kinds.
// Config names are plural ("images"); CDP types are singular ("Image").
func blockResources(page *rod.Page, kinds []string) error {
	blocked := blockSet(kinds)

	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if blocked[string(h.Request.Type())] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return err
	}
	go router.Run()
	return nil
}

var resourceNames = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
}

func blockSet(kinds []string) map[string]bool {
	out := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		k = strings.ToLower(strings.TrimSpace(k))
		if t, ok := resourceNames[k]; ok {
			out[string(t)] = true
			continue
		}
		// Raw CDP type names pass through, e.g. "Ping" or "ping".
		if k != "" {
			out[strings.ToUpper(k[:1])+k[1:]] = true
		}
	}
	return out
}
