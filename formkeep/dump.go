package formkeep

import (
	"context"
	"fmt"

	"github.com/hazyhaar/formkeep/formkeep/internal/capture"
	"github.com/hazyhaar/formkeep/formkeep/internal/config"
	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
	"github.com/hazyhaar/formkeep/formkeep/internal/htmldoc"
	"github.com/hazyhaar/formkeep/formstate"
)

// Dump captures the form state of static HTML without a browser. frameHTML
// is the iframe document; empty means the page has no frame.
func Dump(ctx context.Context, mainHTML, frameHTML string) (*formstate.Snapshot, error) {
	page, err := htmldoc.NewPage(mainHTML)
	if err != nil {
		return nil, fmt.Errorf("formkeep: dump: %w", err)
	}
	var frame dom.Document
	if frameHTML != "" {
		if _, err := page.AttachFrame(config.DefaultFrameID, frameHTML); err != nil {
			return nil, fmt.Errorf("formkeep: dump frame: %w", err)
		}
		frame = page.FrameDocument(config.DefaultFrameID)
	}
	var s capture.Scanner
	return s.Snapshot(ctx, page.Main(), frame), nil
}
