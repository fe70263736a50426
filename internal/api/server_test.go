package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labreserve/internal/engine"
	"labreserve/internal/events"
	"labreserve/internal/repository"
	"labreserve/internal/store"
)

const testAdminPassword = "admin1234"

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()

	mem := store.NewMemory()
	repo := repository.New(mem)
	ctx := context.Background()
	require.NoError(t, repo.SaveLabs(ctx, []string{"Lab1", "Lab2"}))
	require.NoError(t, repo.SaveEquipment(ctx, []string{"HPLC", "GC-MS"}))

	logger := zerolog.New(io.Discard)
	eng := engine.New(repo, events.NewBus(), testAdminPassword, &logger)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	eng = eng.WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	return NewHTTPServer(eng, 0, &logger)
}

func doJSON(t *testing.T, s *HTTPServer, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func validCreate() CreateReservationRequest {
	return CreateReservationRequest{
		UserName:  "alice",
		Lab:       "Lab1",
		Equipment: "HPLC",
		Date:      "2026-03-10",
		StartTime: "0900",
		EndTime:   "1100",
		Password:  "1234",
	}
}

func TestCreateAndListReservations(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/reservations", validCreate(), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["overnight"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = doJSON(t, s, http.MethodGet, "/api/reservations", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	reservations := body["reservations"].([]interface{})
	require.Len(t, reservations, 1)
	first := reservations[0].(map[string]interface{})
	assert.Equal(t, "alice", first["user_name"])
	assert.Equal(t, "09:00", first["start_time"])
	_, hasPassword := first["password"]
	assert.False(t, hasPassword)
}

func TestCreateReservationErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name           string
		mutate         func(*CreateReservationRequest)
		expectedStatus int
	}{
		{
			name:           "bad time",
			mutate:         func(r *CreateReservationRequest) { r.StartTime = "9am" },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown equipment",
			mutate:         func(r *CreateReservationRequest) { r.Equipment = "NMR" },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad password",
			mutate:         func(r *CreateReservationRequest) { r.Password = "12" },
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreate()
			tt.mutate(&req)
			rec := doJSON(t, s, http.MethodPost, "/api/reservations", req, nil)
			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateReservationConflict(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/reservations", validCreate(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	second := validCreate()
	second.UserName = "bob"
	second.StartTime = "1000"
	second.EndTime = "1200"
	rec = doJSON(t, s, http.MethodPost, "/api/reservations", second, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["blocked_by"])
}

func TestCreateOvernightReservation(t *testing.T) {
	s := newTestServer(t)

	req := validCreate()
	req.StartTime = "2200"
	req.EndTime = "0200"
	rec := doJSON(t, s, http.MethodPost, "/api/reservations", req, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["overnight"])
	assert.Len(t, body["reservations"].([]interface{}), 2)
}

func TestEditReservation(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/reservations", validCreate(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)["reservations"].([]interface{})[0].(map[string]interface{})
	id := created["id"].(string)

	rec = doJSON(t, s, http.MethodPost, "/api/reservations/edit", EditReservationRequest{
		ID:       id,
		EndTime:  "1200",
		Password: "1234",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody(t, rec)["reservation"].(map[string]interface{})
	assert.Equal(t, "12:00", updated["end_time"])

	rec = doJSON(t, s, http.MethodPost, "/api/reservations/edit", EditReservationRequest{
		ID:       id,
		EndTime:  "1300",
		Password: "0000",
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteReservation(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/reservations", validCreate(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)["reservations"].([]interface{})[0].(map[string]interface{})
	id := created["id"].(string)

	rec = doJSON(t, s, http.MethodPost, "/api/reservations/delete", DeleteReservationRequest{
		ID: id, Password: "9999",
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/reservations/delete", DeleteReservationRequest{
		ID: id,
	}, map[string]string{"X-Admin-Password": testAdminPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/api/reservations", nil, nil)
	body := decodeBody(t, rec)
	assert.Len(t, body["reservations"], 0)
}

func TestRegistryEndpoints(t *testing.T) {
	s := newTestServer(t)
	admin := map[string]string{"X-Admin-Password": testAdminPassword}

	rec := doJSON(t, s, http.MethodGet, "/api/registry", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["labs"], 2)
	assert.Len(t, body["equipment"], 2)

	rec = doJSON(t, s, http.MethodPost, "/api/registry/add", RegistryEntryRequest{
		Kind: "lab", Name: "Lab3",
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/registry/add", RegistryEntryRequest{
		Kind: "lab", Name: "Lab3",
	}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/api/registry/add", RegistryEntryRequest{
		Kind: "lab", Name: "Lab3",
	}, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/registry/remove", RegistryEntryRequest{
		Kind: "lab", Name: "Lab3",
	}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRenameEndpoint(t *testing.T) {
	s := newTestServer(t)
	admin := map[string]string{"X-Admin-Password": testAdminPassword}

	rec := doJSON(t, s, http.MethodPost, "/api/reservations", validCreate(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/registry/rename", RenameRequest{
		Kind: "equipment", OldName: "HPLC", NewName: "HPLC-2",
	}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/api/reservations", nil, nil)
	body := decodeBody(t, rec)
	first := body["reservations"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "HPLC-2", first["equipment"])

	rec = doJSON(t, s, http.MethodPost, "/api/registry/rename", RenameRequest{
		Kind: "building", OldName: "a", NewName: "b",
	}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWaterEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/water", WaterRequest{
		UserName: "carol", Lab: "Lab2", Amount: "12.5",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/api/water", WaterRequest{
		UserName: "carol", Lab: "Lab2", Amount: "zero",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/water", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["water"], 1)
}

func TestStatsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/reservations", validCreate(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/stats/equipment?equipment=HPLC&month=2026-03", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	shares := body["shares"].([]interface{})
	require.Len(t, shares, 1)
	assert.Equal(t, 1.0, shares[0].(map[string]interface{})["share"])

	rec = doJSON(t, s, http.MethodGet, "/api/stats/equipment", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/stats/water", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/logs", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	doJSON(t, s, http.MethodPost, "/api/reservations", validCreate(), nil)

	rec = doJSON(t, s, http.MethodGet, "/api/logs", nil,
		map[string]string{"X-Admin-Password": testAdminPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["logs"], 1)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodDelete, "/api/reservations", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/reservations/edit", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
