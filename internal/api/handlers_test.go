package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-sender/internal/campaigns"
	appconfig "github.com/ignite/campaign-sender/internal/config"
	"github.com/ignite/campaign-sender/internal/contacts"
	"github.com/ignite/campaign-sender/internal/dispatch"
	"github.com/ignite/campaign-sender/internal/domain"
	"github.com/ignite/campaign-sender/internal/recipients"
)

type mockContactStore struct {
	data    map[string]domain.Contact
	batches [][]domain.Contact
}

func newMockContactStore() *mockContactStore {
	return &mockContactStore{data: make(map[string]domain.Contact)}
}

func (m *mockContactStore) Upsert(ctx context.Context, c domain.Contact) error {
	email := c.Key()
	if !domain.ValidEmail(email) {
		return contacts.ErrInvalidEmail
	}
	c.Email = email
	m.data[email] = c
	return nil
}

func (m *mockContactStore) BatchUpsert(ctx context.Context, batch []domain.Contact) (domain.BatchResult, error) {
	m.batches = append(m.batches, batch)
	result := domain.BatchResult{Success: true}
	for _, c := range batch {
		if !domain.ValidEmail(c.Key()) {
			result.Unprocessed++
			continue
		}
		m.data[c.Key()] = c
		result.Imported++
	}
	return result, nil
}

func (m *mockContactStore) Get(ctx context.Context, email string) (domain.Contact, error) {
	c, ok := m.data[domain.NormalizeEmail(email)]
	if !ok {
		return domain.Contact{}, contacts.ErrNotFound
	}
	return c, nil
}

func (m *mockContactStore) Delete(ctx context.Context, email string) error {
	delete(m.data, domain.NormalizeEmail(email))
	return nil
}

func (m *mockContactStore) ListAll(ctx context.Context) ([]domain.Contact, error) {
	var out []domain.Contact
	for _, c := range m.data {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockContactStore) ListByGroup(ctx context.Context, group string) ([]domain.Contact, error) {
	var out []domain.Contact
	for _, c := range m.data {
		if c.Group == group {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockCampaignStore struct {
	data map[string]domain.Campaign
}

func newMockCampaignStore() *mockCampaignStore {
	return &mockCampaignStore{data: make(map[string]domain.Campaign)}
}

func (m *mockCampaignStore) Put(ctx context.Context, c *domain.Campaign) error {
	m.data[c.ID] = *c
	return nil
}

func (m *mockCampaignStore) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, ok := m.data[id]
	if !ok {
		return nil, campaigns.ErrNotFound
	}
	return &c, nil
}

func (m *mockCampaignStore) List(ctx context.Context) ([]domain.Campaign, error) {
	var out []domain.Campaign
	for _, c := range m.data {
		out = append(out, c)
	}
	return out, nil
}

type mockRunner struct {
	started chan *recipients.Resolution
}

func (m *mockRunner) Run(ctx context.Context, campaign *domain.Campaign, res *recipients.Resolution) error {
	m.started <- res
	return nil
}

type mockProgress struct {
	data map[string]dispatch.Progress
}

func (m *mockProgress) Get(ctx context.Context, campaignID string) (dispatch.Progress, error) {
	p, ok := m.data[campaignID]
	if !ok {
		return dispatch.Progress{}, dispatch.ErrProgressNotFound
	}
	return p, nil
}

func newTestServer(t *testing.T) (*Server, *mockContactStore, *mockCampaignStore, *mockRunner, *mockProgress) {
	t.Helper()
	contactStore := newMockContactStore()
	campaignStore := newMockCampaignStore()
	runner := &mockRunner{started: make(chan *recipients.Resolution, 1)}
	progress := &mockProgress{data: make(map[string]dispatch.Progress)}
	srv := NewServer(&appconfig.Config{}, contactStore, campaignStore, runner, progress)
	return srv, contactStore, campaignStore, runner, progress
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBatchUpsertEndpoint(t *testing.T) {
	srv, store, _, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/contacts/batch", batchUpsertRequest{
		Contacts: []domain.Contact{
			{Email: "a@x.com"}, {Email: "not-an-email"}, {Email: "b@x.com"},
		},
	})

	// Partial failure is still a 200 with unprocessed > 0.
	require.Equal(t, http.StatusOK, rec.Code)
	var resp batchUpsertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Imported)
	assert.Equal(t, 1, resp.Unprocessed)
	require.Len(t, store.batches, 1)
}

func TestBatchUpsertRejectsOversizedAndEmpty(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	oversized := make([]domain.Contact, domain.BatchSize+1)
	for i := range oversized {
		oversized[i] = domain.Contact{Email: "a@x.com"}
	}
	rec := doJSON(t, srv, http.MethodPost, "/contacts/batch", batchUpsertRequest{Contacts: oversized})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/contacts/batch", batchUpsertRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/contacts/batch", strings.NewReader("{not json"))
	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGetContact(t *testing.T) {
	srv, store, _, _, _ := newTestServer(t)
	store.data["a@x.com"] = domain.Contact{Email: "a@x.com", FirstName: "Ada"}

	rec := doJSON(t, srv, http.MethodGet, "/contacts/a@x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var c domain.Contact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, "Ada", c.FirstName)

	rec = doJSON(t, srv, http.MethodGet, "/contacts/missing@x.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportCSVEndpoint(t *testing.T) {
	srv, store, _, _, _ := newTestServer(t)

	csvBody := strings.Join([]string{
		"email,first_name",
		"a@x.com,Ada",
		"bad-row,Nobody",
		"b@x.com,Grace",
	}, "\n")
	req := httptest.NewRequest(http.MethodPost, "/contacts/import", strings.NewReader(csvBody))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp importResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Report.TotalImported)
	assert.Equal(t, 1, resp.Report.TotalErrors)
	require.Len(t, resp.Skipped, 1)
	assert.Len(t, store.data, 2)
}

func TestExportCSVEndpoint(t *testing.T) {
	srv, store, _, _, _ := newTestServer(t)
	store.data["a@x.com"] = domain.Contact{Email: "a@x.com", FirstName: "Ada"}

	rec := doJSON(t, srv, http.MethodGet, "/contacts/export", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "a@x.com")
}

func TestSendCampaignEndpoint(t *testing.T) {
	srv, store, campaignStore, runner, _ := newTestServer(t)
	store.data["user1@x.com"] = domain.Contact{Email: "user1@x.com", Group: "launch"}
	store.data["user2@x.com"] = domain.Contact{Email: "user2@x.com", Group: "launch"}

	rec := doJSON(t, srv, http.MethodPost, "/campaigns/send", sendCampaignRequest{
		Name:        "Launch",
		Subject:     "We launched",
		Template:    "<p>Hi {{ first_name }}</p>",
		TargetGroup: "launch",
		CC:          []string{"user2@x.com", "cc-only@x.com"},
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp sendCampaignResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.CampaignID)
	// user1 regular, user2 and cc-only header-only.
	assert.Equal(t, 3, resp.TotalRecipients)
	assert.Equal(t, 1, resp.ExcludedCount)

	select {
	case res := <-runner.started:
		assert.Len(t, res.Regular, 1)
		assert.Len(t, res.HeaderOnly, 2)
	case <-time.After(time.Second):
		t.Fatal("dispatch was not started")
	}

	stored, err := campaignStore.Get(context.Background(), resp.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, "Launch", stored.Name)
}

func TestSendCampaignValidation(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/campaigns/send", sendCampaignRequest{Name: "no body"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/campaigns/send", sendCampaignRequest{
		Subject: "s", Template: "t",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCampaignProgressEndpoint(t *testing.T) {
	srv, _, campaignStore, _, progress := newTestServer(t)

	progress.data["camp-1"] = dispatch.Progress{CampaignID: "camp-1", Status: domain.CampaignSending, Total: 10, Sent: 3}

	rec := doJSON(t, srv, http.MethodGet, "/campaigns/camp-1/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p dispatch.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 3, p.Sent)

	// Expired Redis record falls back to the persisted campaign.
	campaignStore.data["camp-2"] = domain.Campaign{
		ID: "camp-2", Status: domain.CampaignSent, TotalRecipients: 5, SentCount: 5,
	}
	rec = doJSON(t, srv, http.MethodGet, "/campaigns/camp-2/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, domain.CampaignSent, p.Status)
	assert.Equal(t, 5, p.Sent)

	rec = doJSON(t, srv, http.MethodGet, "/campaigns/unknown/progress", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
