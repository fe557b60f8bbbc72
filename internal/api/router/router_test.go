package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provelab/pricing-prover/internal/api/dto"
	"github.com/provelab/pricing-prover/internal/api/handler"
	"github.com/provelab/pricing-prover/internal/job"
	"github.com/provelab/pricing-prover/internal/queue"
	"github.com/provelab/pricing-prover/internal/storage"
)

type apiHarness struct {
	store  *storage.MemoryStore
	work   *queue.MemoryQueue
	router *gin.Engine
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &apiHarness{
		store: storage.NewMemoryStore(),
		work:  queue.NewMemoryQueue(),
	}
	h.router = SetupRouter(&handler.Dependencies{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:     h.store,
		WorkQueue: h.work,
	})
	return h
}

func (h *apiHarness) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func validPricingRequest() dto.PricingDataRequest {
	return dto.PricingDataRequest{
		Identifiers: []string{"PITCH_LAKE_V1"},
		Params: dto.PricingParams{
			Twap:         [2]int64{1000, 2000},
			Volatility:   [2]int64{1100, 2100},
			ReservePrice: [2]int64{1200, 2200},
		},
		ClientInfo: dto.ClientInfo{
			ClientAddress: "0xabc",
			VaultAddress:  "0xdef",
			Timestamp:     1700000000,
		},
	}
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestPostPricingData_AuthRequired(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodPost, "/pricing_data", validPricingRequest(), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodPost, "/pricing_data", validPricingRequest(), map[string]string{
		"X-API-Key": "bogus",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// No jobs dispatched for rejected requests
	assert.Equal(t, 0, h.work.Len())
}

func TestPostPricingData_DispatchesGroup(t *testing.T) {
	h := newAPIHarness(t)
	require.NoError(t, h.store.InsertAPIKey(context.Background(), "secret", "tester"))

	w := h.do(t, http.MethodPost, "/pricing_data", validPricingRequest(), map[string]string{
		"X-API-Key": "secret",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	require.NotEmpty(t, resp.JobGroupID)

	// One Pending record and one queue message per kind
	recs, err := h.store.ListByGroup(context.Background(), resp.JobGroupID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	kinds := map[job.Kind]job.Record{}
	for _, rec := range recs {
		assert.Equal(t, job.StatusPending, rec.Status)
		kinds[rec.Kind] = rec
	}
	assert.Equal(t, int64(1000), kinds[job.KindTwap].WindowStart)
	assert.Equal(t, int64(1200), kinds[job.KindReservePrice].WindowStart)
	// The volatility range drives the max_return job
	assert.Equal(t, int64(1100), kinds[job.KindMaxReturn].WindowStart)

	assert.Equal(t, 3, h.work.Len())

	msgs, err := h.work.Receive(context.Background())
	require.NoError(t, err)
	for _, msg := range msgs {
		m, err := job.DecodeMessage(msg.Body)
		require.NoError(t, err)
		rp, ok := m.(*job.RequestProof)
		require.True(t, ok)
		_, err = rp.Request()
		assert.NoError(t, err)
	}
}

func TestPostPricingData_Validation(t *testing.T) {
	h := newAPIHarness(t)
	require.NoError(t, h.store.InsertAPIKey(context.Background(), "secret", "tester"))
	auth := map[string]string{"X-API-Key": "secret"}

	t.Run("empty identifiers", func(t *testing.T) {
		req := validPricingRequest()
		req.Identifiers = nil
		w := h.do(t, http.MethodPost, "/pricing_data", req, auth)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("inverted range", func(t *testing.T) {
		req := validPricingRequest()
		req.Params.Twap = [2]int64{2000, 1000}
		w := h.do(t, http.MethodPost, "/pricing_data", req, auth)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid twap range")
	})

	t.Run("not json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/pricing_data", bytes.NewBufferString("{{"))
		req.Header.Set("X-API-Key", "secret")
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	assert.Equal(t, 0, h.work.Len())
}

func TestDispatchJob_AndGroupStatus(t *testing.T) {
	h := newAPIHarness(t)

	req := dto.DispatchJobRequest{
		JobGroupID:   "group-42",
		Twap:         dto.TimeRange{StartTimestamp: 1, EndTimestamp: 2},
		ReservePrice: dto.TimeRange{StartTimestamp: 3, EndTimestamp: 4},
		MaxReturn:    dto.TimeRange{StartTimestamp: 5, EndTimestamp: 6},
	}
	w := h.do(t, http.MethodPost, "/api/job", req, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "group-42", resp.JobGroupID)

	w = h.do(t, http.MethodGet, "/api/job/group-42", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status dto.GroupStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "group-42", status.JobGroupID)
	assert.Equal(t, string(job.StatusPending), status.Status)
	assert.Len(t, status.Jobs, 3)
}

// failingSendQueue rejects publishes whose body contains any of the given
// substrings, simulating a broker that drops part of a group dispatch.
type failingSendQueue struct {
	*queue.MemoryQueue
	reject []string
}

func (q *failingSendQueue) Send(ctx context.Context, body []byte) error {
	for _, s := range q.reject {
		if bytes.Contains(body, []byte(s)) {
			return errors.New("broker unavailable")
		}
	}
	return q.MemoryQueue.Send(ctx, body)
}

func TestDispatchJob_PartialPublishFailureReportedInBody(t *testing.T) {
	h := newAPIHarness(t)
	flaky := &failingSendQueue{
		MemoryQueue: h.work,
		reject:      []string{"reserve_price"},
	}
	h.router = SetupRouter(&handler.Dependencies{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:     h.store,
		WorkQueue: flaky,
	})

	req := dto.DispatchJobRequest{
		JobGroupID:   "group-7",
		Twap:         dto.TimeRange{StartTimestamp: 1, EndTimestamp: 2},
		ReservePrice: dto.TimeRange{StartTimestamp: 3, EndTimestamp: 4},
		MaxReturn:    dto.TimeRange{StartTimestamp: 5, EndTimestamp: 6},
	}
	w := h.do(t, http.MethodPost, "/api/job", req, nil)

	// Dispatch errors aggregate into the body; the request itself succeeds
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "reserve_price")
	assert.Equal(t, "group-7", resp.JobGroupID)

	// All three records exist; the undelivered one waits for the reaper
	recs, err := h.store.ListByGroup(context.Background(), "group-7")
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, 2, h.work.Len())
}

func TestDispatchJob_Idempotent(t *testing.T) {
	h := newAPIHarness(t)

	req := dto.DispatchJobRequest{
		JobGroupID:   "group-42",
		Twap:         dto.TimeRange{StartTimestamp: 1, EndTimestamp: 2},
		ReservePrice: dto.TimeRange{StartTimestamp: 3, EndTimestamp: 4},
		MaxReturn:    dto.TimeRange{StartTimestamp: 5, EndTimestamp: 6},
	}
	w := h.do(t, http.MethodPost, "/api/job", req, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(t, http.MethodPost, "/api/job", req, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Resubmission republishes but never duplicates records
	recs, err := h.store.ListByGroup(context.Background(), "group-42")
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, 6, h.work.Len())
}

func TestGetJobGroup_NotFound(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodGet, "/api/job/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobs_Pagination(t *testing.T) {
	h := newAPIHarness(t)

	for i := 0; i < 3; i++ {
		req := dto.DispatchJobRequest{
			Twap:         dto.TimeRange{StartTimestamp: 1, EndTimestamp: 2},
			ReservePrice: dto.TimeRange{StartTimestamp: 3, EndTimestamp: 4},
			MaxReturn:    dto.TimeRange{StartTimestamp: 5, EndTimestamp: 6},
		}
		w := h.do(t, http.MethodPost, "/api/job", req, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := h.do(t, http.MethodGet, "/api/jobs?page_size=4", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Jobs, 4)
	require.NotEmpty(t, page.NextCursor)

	// Walk the remaining pages
	all := append([]dto.JobDTO(nil), page.Jobs...)
	cursor := page.NextCursor
	for cursor != "" {
		w = h.do(t, http.MethodGet, "/api/jobs?page_size=4&cursor="+cursor, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var next dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &next))
		all = append(all, next.Jobs...)
		cursor = next.NextCursor
	}

	// Every record exactly once
	seen := map[string]bool{}
	for _, j := range all {
		assert.False(t, seen[j.JobID], "job %s returned twice", j.JobID)
		seen[j.JobID] = true
	}
	assert.Len(t, seen, 9)
}

func TestCreateAPIKey(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodPost, "/api_key", dto.CreateAPIKeyRequest{Name: "ops"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.CreateAPIKeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ops", resp.Name)
	require.NotEmpty(t, resp.APIKey)

	ak, err := h.store.FindAPIKey(context.Background(), resp.APIKey)
	require.NoError(t, err)
	assert.Equal(t, "ops", ak.Name)

	w = h.do(t, http.MethodPost, "/api_key", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
