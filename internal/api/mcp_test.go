package api

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/bidfetch/internal/jobs"
	"github.com/kalambet/bidfetch/internal/scrape"
	"github.com/kalambet/bidfetch/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *fakeJobs) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	q := newFakeJobs()
	return MCPDeps{Store: store, Jobs: q}, q
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_SearchOrders(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	seedOrder(t, deps.Store, "4500", "Acme Bags")
	seedOrder(t, deps.Store, "4501", "Globex")

	result, err := mcpSearchOrders(deps)(context.Background(), makeCallToolRequest("search_orders", map[string]interface{}{
		"query": "globex",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var orders []storage.POHeader
	if err := json.Unmarshal([]byte(toolText(t, result)), &orders); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(orders) != 1 || orders[0].PONumber != "4501" {
		t.Fatalf("expected PO 4501, got %+v", orders)
	}
}

func TestMCPTool_SearchOrders_Empty(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpSearchOrders(deps)(context.Background(), makeCallToolRequest("search_orders", map[string]interface{}{
		"query": "nothing",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}
}

func TestMCPTool_SearchOrders_MissingQuery(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpSearchOrders(deps)(context.Background(), makeCallToolRequest("search_orders", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPTool_GetOrder(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	seedOrder(t, deps.Store, "4500", "Acme Bags")

	result, err := mcpGetOrder(deps)(context.Background(), makeCallToolRequest("get_order", map[string]interface{}{
		"po_number": "4500",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var detail OrderDetail
	if err := json.Unmarshal([]byte(toolText(t, result)), &detail); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if detail.VendorName != "Acme Bags" || len(detail.Items) != 1 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	result, err = mcpGetOrder(deps)(context.Background(), makeCallToolRequest("get_order", map[string]interface{}{
		"po_number": "9999",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for unknown order")
	}
}

func TestMCPTool_SubmitDownload(t *testing.T) {
	deps, q := newTestMCPDeps(t)

	result, err := mcpSubmit(deps, scrape.KindDownload)(context.Background(), makeCallToolRequest("submit_download", map[string]interface{}{
		"po_numbers": []interface{}{"4500", " 4500 ", "4501"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if len(q.submitted) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(q.submitted))
	}
	sub := q.submitted[0]
	if sub.Kind != scrape.KindDownload {
		t.Fatalf("expected download kind, got %s", sub.Kind)
	}
	if len(sub.Params.PONumbers) != 2 {
		t.Fatalf("expected deduplicated po numbers, got %v", sub.Params.PONumbers)
	}
}

func TestMCPTool_SubmitFetch_Empty(t *testing.T) {
	deps, q := newTestMCPDeps(t)

	result, err := mcpSubmit(deps, scrape.KindFetch)(context.Background(), makeCallToolRequest("submit_fetch", map[string]interface{}{
		"po_numbers": []interface{}{},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if len(q.submitted) != 0 {
		t.Fatalf("expected nothing submitted, got %d", len(q.submitted))
	}
}

func TestMCPTool_JobStatus(t *testing.T) {
	deps, q := newTestMCPDeps(t)
	id, _ := q.Submit(scrape.KindFetch, scrape.Params{PONumbers: []string{"4500"}})

	result, err := mcpJobStatus(deps)(context.Background(), makeCallToolRequest("job_status", map[string]interface{}{
		"job_id": id,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var snap jobs.Snapshot
	if err := json.Unmarshal([]byte(toolText(t, result)), &snap); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if snap.ID != id || snap.Status != jobs.StatusProcessing {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	result, err = mcpJobStatus(deps)(context.Background(), makeCallToolRequest("job_status", map[string]interface{}{
		"job_id": "job_404",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for unknown job")
	}
}

func TestMCPTool_ListMessages(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	for _, ref := range []string{"R1", "R2", "R3"} {
		if err := deps.Store.SaveMessage(storage.Message{RefNumber: ref}); err != nil {
			t.Fatalf("saving message: %v", err)
		}
	}

	result, err := mcpListMessages(deps)(context.Background(), makeCallToolRequest("list_messages", map[string]interface{}{
		"limit": 2,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var msgs []storage.Message
	if err := json.Unmarshal([]byte(toolText(t, result)), &msgs); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestMCPResource_RecentOrders(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	seedOrder(t, deps.Store, "4500", "Acme Bags")

	contents, err := mcpResourceRecentOrders(deps)(context.Background(), makeReadResourceRequest("bidfetch://orders/recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var summaries []map[string]string
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 || summaries[0]["po_number"] != "4500" {
		t.Fatalf("unexpected summaries: %v", summaries)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	seedOrder(t, deps.Store, "4500", "Acme Bags")

	search := mcpSearchOrders(deps)
	submit := mcpSubmit(deps, scrape.KindFetch)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := search(context.Background(), makeCallToolRequest("search_orders", map[string]interface{}{"query": "4500"})); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := submit(context.Background(), makeCallToolRequest("submit_fetch", map[string]interface{}{"po_numbers": []interface{}{"4500"}})); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("expected server")
	}
}
