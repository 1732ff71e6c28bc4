package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests whose resource type is listed. Documents,
// scripts and XHR are never blocked since the form logic depends on them.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	blocked := make(map[string]bool, len(types))
	for _, t := range types {
		blocked[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(blocked, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

func shouldBlock(blocked map[string]bool, resType string) bool {
	switch strings.ToLower(resType) {
	case "document", "script", "xhr", "fetch":
		return false
	case "image":
		return blocked["images"] || blocked["image"]
	case "font":
		return blocked["fonts"] || blocked["font"]
	case "media":
		return blocked["media"]
	case "stylesheet":
		return blocked["stylesheets"] || blocked["stylesheet"]
	}
	return blocked[strings.ToLower(resType)]
}
