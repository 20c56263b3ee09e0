package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/bidfetch/internal/jobs"
	"github.com/kalambet/bidfetch/internal/scrape"
	"github.com/kalambet/bidfetch/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store *storage.Store
	Jobs  JobQueue
}

// NewMCPServer creates an MCP server exposing order lookup and scrape jobs.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"bidfetch",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("bidfetch: purchase orders, artwork downloads and buyer messages scraped from the vendor portal."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_orders",
			mcp.WithDescription("Search stored purchase orders by PO number, vendor, company or status."),
			mcp.WithString("query", mcp.Description("Substring to search for"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpSearchOrders(deps),
	)

	s.AddTool(
		mcp.NewTool("get_order",
			mcp.WithDescription("Return a stored purchase order with its line items and download history."),
			mcp.WithString("po_number", mcp.Description("Purchase order number"), mcp.Required()),
		),
		mcpGetOrder(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_fetch",
			mcp.WithDescription("Start a background job that scrapes header and line items for the given POs."),
			mcp.WithArray("po_numbers", mcp.Description("Purchase order numbers"), mcp.Required(), mcp.WithStringItems()),
		),
		mcpSubmit(deps, scrape.KindFetch),
	)

	s.AddTool(
		mcp.NewTool("submit_download",
			mcp.WithDescription("Start a background job that scrapes the given POs and downloads their artwork."),
			mcp.WithArray("po_numbers", mcp.Description("Purchase order numbers"), mcp.Required(), mcp.WithStringItems()),
		),
		mcpSubmit(deps, scrape.KindDownload),
	)

	s.AddTool(
		mcp.NewTool("job_status",
			mcp.WithDescription("Report the progress and results of a scrape job."),
			mcp.WithString("job_id", mcp.Description("Job id returned by submit_fetch or submit_download"), mcp.Required()),
		),
		mcpJobStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("list_messages",
			mcp.WithDescription("List stored portal messages, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of messages (default 10)")),
		),
		mcpListMessages(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"bidfetch://orders/recent",
			"Recent Orders",
			mcp.WithResourceDescription("The 20 most recently updated purchase orders"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentOrders(deps),
	)

	return s
}

func clampLimit(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpSearchOrders(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}
		limit := clampLimit(req.GetInt("limit", 20), 20, 100)

		orders, err := deps.Store.SearchPOHeaders(strings.TrimSpace(query), limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if orders == nil {
			orders = []storage.POHeader{}
		}
		return mcpJSON(orders), nil
	}
}

func mcpGetOrder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		po, err := req.RequireString("po_number")
		if err != nil {
			return mcpError("po_number is required"), nil
		}

		detail, err := LoadOrderDetail(deps.Store, strings.TrimSpace(po))
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("order %s not found", po)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get order: %v", err)), nil
		}
		return mcpJSON(detail), nil
	}
}

func mcpSubmit(deps MCPDeps, kind scrape.Kind) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids := cleanIdentifiers(req.GetStringSlice("po_numbers", nil))
		if len(ids) == 0 {
			return mcpError("po_numbers is required and must not be empty"), nil
		}
		if len(ids) > maxIdentifiers {
			return mcpError(fmt.Sprintf("at most %d po_numbers per request", maxIdentifiers)), nil
		}

		id, err := deps.Jobs.Submit(kind, scrape.Params{PONumbers: ids})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to submit job: %v", err)), nil
		}
		return mcpJSON(map[string]string{"job_id": id}), nil
	}
}

func mcpJobStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}

		snap, err := deps.Jobs.Status(id)
		if errors.Is(err, jobs.ErrNotFound) {
			return mcpError(fmt.Sprintf("job %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get job: %v", err)), nil
		}
		return mcpJSON(snap), nil
	}
}

func mcpListMessages(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := clampLimit(req.GetInt("limit", 10), 10, 100)

		msgs, err := deps.Store.ListMessages(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list messages: %v", err)), nil
		}
		if msgs == nil {
			msgs = []storage.Message{}
		}
		return mcpJSON(msgs), nil
	}
}

func mcpResourceRecentOrders(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		orders, err := deps.Store.ListPOHeaders(20, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list orders: %w", err)
		}

		type orderSummary struct {
			PONumber   string `json:"po_number"`
			Status     string `json:"status"`
			VendorName string `json:"vendor_name"`
			CancelDate string `json:"cancel_date"`
			UpdatedAt  string `json:"updated_at"`
		}
		summaries := make([]orderSummary, len(orders))
		for i, o := range orders {
			summaries[i] = orderSummary{
				PONumber:   o.PONumber,
				Status:     o.Status,
				VendorName: o.VendorName,
				CancelDate: o.CancelDate,
				UpdatedAt:  o.UpdatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal orders: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
