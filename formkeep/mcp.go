package formkeep

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/formkeep/formkeep/internal/session"
	"github.com/hazyhaar/formkeep/kit"
)

// RegisterMCP registers the formkeep tools on an MCP server.
func (k *Keeper) RegisterMCP(srv *mcp.Server) {
	k.registerPagesTool(srv)
	k.registerCaptureTool(srv)
	k.registerSavedTool(srv)
	k.registerSaveTool(srv)
	k.registerRestoreTool(srv)
	k.registerResetTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var pageIDProp = map[string]any{"type": "string", "description": "Page id from formkeep_pages"}

type pageRequest struct {
	PageID string `json:"page_id"`
}

// pageScoped tags the context with the target page for logging.
func pageScoped(req any) func(context.Context) context.Context {
	return func(ctx context.Context) context.Context {
		if r, ok := req.(interface{ page() string }); ok {
			return kit.WithPageID(ctx, r.page())
		}
		return ctx
	}
}

func (r *pageRequest) page() string { return r.PageID }

// register wraps endpoint with the request-id and logging middleware and
// registers it under tool.Name. Extra middleware runs innermost.
func register[T any](k *Keeper, srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, extra ...kit.Middleware) {
	decode := kit.DecodeJSON[T]()
	wrapped := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		res, err := decode(req)
		if err != nil {
			return nil, err
		}
		res.EnrichCtx = pageScoped(res.Request)
		return res, nil
	}
	mws := append([]kit.Middleware{kit.WithRequestIDs(nil), kit.Logging(k.logger, tool.Name)}, extra...)
	mw := kit.Chain(mws...)
	kit.RegisterMCPTool(srv, tool, mw(endpoint), wrapped)
}

// --- pages ---

func (k *Keeper) registerPagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formkeep_pages",
		Description: "List kept pages with their session state, save counters and last save time.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	register[struct{}](k, srv, tool, func(ctx context.Context, _ any) (any, error) {
		return k.Pages(ctx)
	})
}

// --- capture ---

func (k *Keeper) registerCaptureTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formkeep_capture",
		Description: "Capture the live form state of a page (host document and iframe) without saving it.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}
	register[pageRequest](k, srv, tool, func(ctx context.Context, req any) (any, error) {
		return k.Live(ctx, req.(*pageRequest).PageID)
	})
}

// --- saved ---

func (k *Keeper) registerSavedTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formkeep_saved",
		Description: "Return the persisted form snapshot of a page.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}
	register[pageRequest](k, srv, tool, func(ctx context.Context, req any) (any, error) {
		return k.Saved(ctx, req.(*pageRequest).PageID)
	})
}

// --- save ---

func (k *Keeper) registerSaveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formkeep_save",
		Description: "Persist the current form state of a page now, cancelling any pending debounced save.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}
	register[pageRequest](k, srv, tool, func(ctx context.Context, req any) (any, error) {
		return k.Save(ctx, req.(*pageRequest).PageID)
	}, k.auditing("save"))
}

// --- restore ---

type restoreResponse struct {
	Applied bool `json:"applied"`
}

func (k *Keeper) registerRestoreTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "formkeep_restore",
		Description: "Write the persisted snapshot back into a page and replay input/change events.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}
	register[pageRequest](k, srv, tool, func(ctx context.Context, req any) (any, error) {
		ok, err := k.Restore(ctx, req.(*pageRequest).PageID)
		if err != nil {
			return nil, err
		}
		return restoreResponse{Applied: ok}, nil
	}, k.auditing("restore"))
}

// --- reset ---

type resetRequest struct {
	PageID       string `json:"page_id"`
	Confirm      *bool  `json:"confirm,omitempty"`
	ConfirmAgain *bool  `json:"confirm_again,omitempty"`
}

func (r *resetRequest) page() string { return r.PageID }

type resetResponse struct {
	Reset  bool   `json:"reset"`
	Notice string `json:"notice"`
}

func (k *Keeper) registerResetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "formkeep_reset",
		Description: "Erase all saved and live form data of a page, then reload it. " +
			"Irreversible: both confirm and confirm_again must be true. " +
			"Omit both to have the page's operator confirm instead.",
		InputSchema: inputSchema(map[string]any{
			"page_id":       pageIDProp,
			"confirm":       map[string]any{"type": "boolean", "description": "First confirmation"},
			"confirm_again": map[string]any{"type": "boolean", "description": "Second confirmation"},
		}, []string{"page_id"}),
	}
	register[resetRequest](k, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*resetRequest)
		if err := k.remoteReset(ctx, r.PageID, r.Confirm, r.ConfirmAgain); err != nil {
			return nil, err
		}
		return resetResponse{Reset: true, Notice: session.ResetDoneNotice}, nil
	}, k.auditing("reset"))
}
