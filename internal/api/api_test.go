package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kalambet/bidfetch/internal/config"
	"github.com/kalambet/bidfetch/internal/jobs"
	"github.com/kalambet/bidfetch/internal/report"
	"github.com/kalambet/bidfetch/internal/scrape"
	"github.com/kalambet/bidfetch/internal/storage"
)

type submission struct {
	Kind   scrape.Kind
	Params scrape.Params
}

type fakeJobs struct {
	mu        sync.Mutex
	submitted []submission
	snaps     map[string]jobs.Snapshot
	err       error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{snaps: make(map[string]jobs.Snapshot)}
}

func (f *fakeJobs) Submit(kind scrape.Kind, params scrape.Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.submitted = append(f.submitted, submission{Kind: kind, Params: params})
	id := fmt.Sprintf("job_%d", len(f.submitted))
	f.snaps[id] = jobs.Snapshot{ID: id, Kind: kind, Status: jobs.StatusProcessing, Identifiers: params.Identifiers()}
	return id, nil
}

func (f *fakeJobs) Status(id string) (jobs.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snaps[id]
	if !ok {
		return jobs.Snapshot{}, jobs.ErrNotFound
	}
	return s, nil
}

func (f *fakeJobs) List() []jobs.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]jobs.Snapshot, 0, len(f.snaps))
	for _, s := range f.snaps {
		out = append(out, s)
	}
	return out
}

type fakeProfile struct {
	username string
	password string
}

func (p *fakeProfile) Get() (config.Profile, error) {
	return config.Profile{Username: p.username, PasswordSet: p.password != ""}, nil
}

func (p *fakeProfile) Update(username, password string) error {
	p.username = username
	if password != "" {
		p.password = password
	}
	return nil
}

type testApp struct {
	handler http.Handler
	store   *storage.Store
	jobs    *fakeJobs
	profile *fakeProfile
}

var fixedNow = time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T, token string) testApp {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	app := testApp{store: store, jobs: newFakeJobs(), profile: &fakeProfile{}}
	app.handler = NewAppHandler(AppDeps{
		Store:   store,
		Jobs:    app.jobs,
		Profile: app.profile,
		Token:   token,
		Now:     func() time.Time { return fixedNow },
	})
	return app
}

func (a testApp) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func seedOrder(t *testing.T, store *storage.Store, po, vendor string) {
	t.Helper()
	require.NoError(t, store.SavePOHeader(storage.POHeader{PONumber: po, Status: "Open", VendorName: vendor}))
	require.NoError(t, store.AddLineItems([]storage.LineItem{
		{PONumber: po, ItemNumber: "A100-01", Description: "Tote", Qty: 1200, UnitPrice: 2.5, Extension: 3000},
	}))
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, "secret")
	rec := app.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerAuth(t *testing.T) {
	app := newTestApp(t, "secret")

	rec := app.do(t, http.MethodGet, "/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	for _, h := range []string{"Bearer secret", "bearer secret"} {
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Authorization", h)
		rec = httptest.NewRecorder()
		app.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, h)
	}

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNoTokenDisablesAuth(t *testing.T) {
	app := newTestApp(t, "")
	rec := app.do(t, http.MethodGet, "/orders", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitFetch(t *testing.T) {
	app := newTestApp(t, "")

	rec := app.do(t, http.MethodPost, "/scrape/fetch", OrdersRequest{PONumbers: []string{" 4500 ", "4501", "4500", ""}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decode[map[string]string](t, rec)
	assert.Equal(t, "job_1", resp["job_id"])

	require.Len(t, app.jobs.submitted, 1)
	assert.Equal(t, scrape.KindFetch, app.jobs.submitted[0].Kind)
	assert.Equal(t, []string{"4500", "4501"}, app.jobs.submitted[0].Params.PONumbers)
}

func TestSubmitDownloadKind(t *testing.T) {
	app := newTestApp(t, "")
	rec := app.do(t, http.MethodPost, "/scrape/download", OrdersRequest{PONumbers: []string{"4500"}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, scrape.KindDownload, app.jobs.submitted[0].Kind)
}

func TestSubmitValidation(t *testing.T) {
	app := newTestApp(t, "")

	tooMany := make([]string, maxIdentifiers+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("PO%d", i)
	}
	exactly := tooMany[:maxIdentifiers]

	tests := []struct {
		name string
		body any
		code int
	}{
		{"empty list", OrdersRequest{}, http.StatusBadRequest},
		{"blank entries", OrdersRequest{PONumbers: []string{" ", ""}}, http.StatusBadRequest},
		{"over limit", OrdersRequest{PONumbers: tooMany}, http.StatusBadRequest},
		{"malformed json", "{", http.StatusBadRequest},
		{"at limit", OrdersRequest{PONumbers: exactly}, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, http.MethodPost, "/scrape/fetch", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestSubmitQueueError(t *testing.T) {
	app := newTestApp(t, "")
	app.jobs.err = errors.New("shutting down")
	rec := app.do(t, http.MethodPost, "/scrape/fetch", OrdersRequest{PONumbers: []string{"4500"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitMessages(t *testing.T) {
	app := newTestApp(t, "")

	rec := app.do(t, http.MethodPost, "/messages/fetch", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	rec = app.do(t, http.MethodPost, "/messages/fetch", MessagesRequest{Date: "3/1/25"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, app.jobs.submitted, 2)
	assert.Equal(t, scrape.KindMessages, app.jobs.submitted[0].Kind)
	assert.Equal(t, "3/7/25", app.jobs.submitted[0].Params.Date)
	assert.Equal(t, "3/1/25", app.jobs.submitted[1].Params.Date)
}

func TestGetJob(t *testing.T) {
	app := newTestApp(t, "")
	app.do(t, http.MethodPost, "/scrape/fetch", OrdersRequest{PONumbers: []string{"4500"}})

	rec := app.do(t, http.MethodGet, "/jobs/job_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[jobs.Snapshot](t, rec)
	assert.Equal(t, "job_1", snap.ID)
	assert.Equal(t, []string{"4500"}, snap.Identifiers)

	rec = app.do(t, http.MethodGet, "/jobs/job_99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]jobs.Snapshot](t, rec), 1)
}

func TestOrders(t *testing.T) {
	app := newTestApp(t, "")
	seedOrder(t, app.store, "4500", "Acme Bags")
	seedOrder(t, app.store, "4501", "Globex")

	rec := app.do(t, http.MethodGet, "/orders?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Orders []storage.POHeader `json:"orders"`
		Total  int                `json:"total"`
	}](t, rec)
	assert.Len(t, list.Orders, 1)
	assert.Equal(t, 2, list.Total)

	rec = app.do(t, http.MethodGet, "/orders/search?q=acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[[]storage.POHeader](t, rec)
	require.Len(t, found, 1)
	assert.Equal(t, "4500", found[0].PONumber)

	rec = app.do(t, http.MethodGet, "/orders/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodGet, "/orders/4500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[OrderDetail](t, rec)
	assert.Equal(t, "Acme Bags", detail.VendorName)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, "A100-01", detail.Items[0].ItemNumber)
	assert.Empty(t, detail.Downloads)

	rec = app.do(t, http.MethodGet, "/orders/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteOrders(t *testing.T) {
	app := newTestApp(t, "")
	seedOrder(t, app.store, "4500", "Acme Bags")
	seedOrder(t, app.store, "4501", "Globex")

	rec := app.do(t, http.MethodDelete, "/orders/4500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := app.store.GetPOHeader("4500")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	items, err := app.store.GetLineItems("4500")
	require.NoError(t, err)
	assert.Empty(t, items)

	rec = app.do(t, http.MethodDelete, "/orders/4500", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodDelete, "/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, resp["deleted"])
}

func TestQCReport(t *testing.T) {
	app := newTestApp(t, "")
	seedOrder(t, app.store, "4500", "Acme Bags")

	rec := app.do(t, http.MethodGet, "/orders/4500/qc-report", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, report.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), report.QCFileName("4500", fixedNow))

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(report.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"4500", "A100-01"}, rows[1][:2])

	rec = app.do(t, http.MethodGet, "/orders/nope/qc-report", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessages(t *testing.T) {
	app := newTestApp(t, "")
	require.NoError(t, app.store.SaveMessage(storage.Message{RefNumber: "R1", Subject: "Artwork approved", ReceivedDate: "3/7/25 9:00"}))

	rec := app.do(t, http.MethodGet, "/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[[]storage.Message](t, rec)
	require.Len(t, msgs, 1)
	id := msgs[0].ID

	rec = app.do(t, http.MethodGet, fmt.Sprintf("/messages/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "R1", decode[storage.Message](t, rec).RefNumber)

	rec = app.do(t, http.MethodGet, "/messages/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodDelete, fmt.Sprintf("/messages/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = app.do(t, http.MethodGet, fmt.Sprintf("/messages/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = app.do(t, http.MethodDelete, fmt.Sprintf("/messages/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, app.store.SaveMessage(storage.Message{RefNumber: "R2"}))
	rec = app.do(t, http.MethodDelete, "/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["deleted"])
}

func TestItems(t *testing.T) {
	app := newTestApp(t, "")
	_, err := app.store.RegisterItemNumber("A100-01")
	require.NoError(t, err)
	_, err = app.store.RegisterItemNumber("B200")
	require.NoError(t, err)

	rec := app.do(t, http.MethodGet, "/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Items []storage.ItemIndexEntry `json:"items"`
		Total int                      `json:"total"`
	}](t, rec)
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Items, 2)
}

func TestProfile(t *testing.T) {
	app := newTestApp(t, "")

	rec := app.do(t, http.MethodPut, "/profile", ProfileRequest{Password: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPut, "/profile", ProfileRequest{Username: "vendor1", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodGet, "/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[config.Profile](t, rec)
	assert.Equal(t, "vendor1", p.Username)
	assert.True(t, p.PasswordSet)
	assert.NotContains(t, rec.Body.String(), "password\":")
}

func TestCleanIdentifiers(t *testing.T) {
	got := cleanIdentifiers([]string{" b ", "a", "b", "", "c"})
	assert.Equal(t, []string{"b", "a", "c"}, got)
	assert.Empty(t, cleanIdentifiers(nil))
}

func TestParseIntParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=9999&bad=x&neg=-1", nil)
	assert.Equal(t, 500, parseIntParam(req, "limit", 50, 500))
	assert.Equal(t, 50, parseIntParam(req, "bad", 50, 500))
	assert.Equal(t, 50, parseIntParam(req, "neg", 50, 500))
	assert.Equal(t, 7, parseIntParam(req, "missing", 7, 0))
}
