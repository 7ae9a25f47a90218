package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	historyservice "github.com/metermate/metermate/internal/history/service"
	meterdomain "github.com/metermate/metermate/internal/meter/domain"
	meterrepo "github.com/metermate/metermate/internal/meter/repository"
	meterservice "github.com/metermate/metermate/internal/meter/service"
	readingdomain "github.com/metermate/metermate/internal/reading/domain"
	readingrepo "github.com/metermate/metermate/internal/reading/repository"
	readingservice "github.com/metermate/metermate/internal/reading/service"
	recorderdomain "github.com/metermate/metermate/internal/recorder/domain"
	recorderrepo "github.com/metermate/metermate/internal/recorder/repository"
	statsdomain "github.com/metermate/metermate/internal/statistics/domain"
	"github.com/metermate/metermate/internal/statistics/engine"
	"github.com/metermate/metermate/internal/statistics/publisher"
	"github.com/metermate/metermate/pkg/keylock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&meterdomain.Meter{},
		&readingdomain.Reading{},
		&recorderdomain.Metadata{},
		&recorderdomain.StatisticRow{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	log := zap.NewNop()
	locks := keylock.New()
	ingestor := recorderrepo.Provide(recorderrepo.Params{DB: db, Log: log, GenID: node})
	readings := readingrepo.Provide()
	meters := meterrepo.Provide()

	history := historyservice.New(historyservice.Params{
		DB:          db,
		Log:         log,
		ReadingRepo: readings,
		MeterRepo:   meters,
		Engine:      engine.New(statsdomain.PolicyClamp),
		Publisher:   publisher.New(publisher.Params{Log: log, Ingestor: ingestor}),
		Locks:       locks,
	})

	meterSvc := meterservice.New(meterservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Repo:        meters,
		ReadingRepo: readings,
		Ingestor:    ingestor,
		Locks:       locks,
	})

	readingSvc := readingservice.New(readingservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Repo:      readings,
		MeterRepo: meters,
		History:   history,
		Locks:     locks,
	})

	r := gin.New()
	r.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:     r,
		meterSvc:   meterSvc,
		readingSvc: readingSvc,
		historySvc: history,
	}
	srv.RegisterAPIRoutes()
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func createTestMeter(t *testing.T, srv *Server) meterdomain.Response {
	t.Helper()

	offset := 100.0
	w := doJSON(t, srv, http.MethodPost, "/api/v1/meters", meterdomain.CreateRequest{
		EntityID:      "main_electricity",
		Name:          "Main Electricity",
		Unit:          "kWh",
		InitialOffset: &offset,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp meterdomain.Response
	decodeData(t, w, &resp)
	return resp
}

func TestAddReadingEndpoint(t *testing.T) {
	srv := newTestServer(t)
	m := createTestMeter(t, srv)

	at := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
	w := doJSON(t, srv, http.MethodPost, "/api/v1/meters/"+m.ID+"/readings", gin.H{
		"kind":      "point",
		"value":     15650,
		"timestamp": at.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result readingdomain.MutationResult
	decodeData(t, w, &result)
	require.NotNil(t, result.Reading)
	assert.Equal(t, "point", result.Reading.Kind)
	assert.Equal(t, 1, result.Rebuild.PointsPublished)
}

func TestAddReadingValidationMapsTo400(t *testing.T) {
	srv := newTestServer(t)
	m := createTestMeter(t, srv)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/meters/"+m.ID+"/readings", gin.H{
		"kind":  "point",
		"value": -1,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Error.Type)
	require.NotEmpty(t, resp.Error.Errors)
	assert.Equal(t, "invalid_value", resp.Error.Errors[0].Code)
}

func TestDuplicateAnchorMapsTo409(t *testing.T) {
	srv := newTestServer(t)
	m := createTestMeter(t, srv)
	at := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

	body := gin.H{"kind": "point", "value": 200, "timestamp": at.Format(time.RFC3339)}
	w := doJSON(t, srv, http.MethodPost, "/api/v1/meters/"+m.ID+"/readings", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/api/v1/meters/"+m.ID+"/readings", body)
	require.Equal(t, http.StatusConflict, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "conflict", resp.Error.Type)
}

func TestUnknownMeterMapsTo400(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/api/v1/meters/12345/readings", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadingLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	m := createTestMeter(t, srv)
	base := "/api/v1/meters/" + m.ID + "/readings"

	at := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second)
	w := doJSON(t, srv, http.MethodPost, base, gin.H{
		"kind":      "point",
		"value":     500,
		"timestamp": at.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var added readingdomain.MutationResult
	decodeData(t, w, &added)
	readingID := added.Reading.ID

	w = doJSON(t, srv, http.MethodPatch, base+"/"+readingID, gin.H{"value": 510})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated readingdomain.MutationResult
	decodeData(t, w, &updated)
	assert.Equal(t, 510.0, updated.Reading.Value)

	w = doJSON(t, srv, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []readingdomain.Response
	decodeData(t, w, &listed)
	require.Len(t, listed, 1)

	w = doJSON(t, srv, http.MethodDelete, base+"/"+readingID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var deleted readingdomain.DeleteResult
	decodeData(t, w, &deleted)
	assert.Equal(t, readingID, deleted.ReadingID)
	assert.Equal(t, 0, deleted.Rebuild.PointsPublished)

	w = doJSON(t, srv, http.MethodGet, base+"/"+readingID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportReadingsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	m := createTestMeter(t, srv)

	now := time.Now().UTC().Truncate(time.Second)
	w := doJSON(t, srv, http.MethodPost, "/api/v1/meters/"+m.ID+"/readings/import", gin.H{
		"items": []gin.H{
			{"kind": "point", "value": 110, "timestamp": now.Add(-72 * time.Hour).Format(time.RFC3339)},
			{"kind": "point", "value": -1, "timestamp": now.Add(-48 * time.Hour).Format(time.RFC3339)},
			{"kind": "point", "value": 130, "timestamp": now.Add(-24 * time.Hour).Format(time.RFC3339)},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result readingdomain.BulkImportResult
	decodeData(t, w, &result)
	assert.NotEmpty(t, result.OperationID)
	assert.Len(t, result.Accepted, 2)
	assert.Len(t, result.Rejected, 1)
	assert.Equal(t, 2, result.Rebuild.PointsPublished)
}

func TestPurgeReadingsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	m := createTestMeter(t, srv)

	now := time.Now().UTC().Truncate(time.Second)
	for _, h := range []int{72, 48, 24} {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/meters/"+m.ID+"/readings", gin.H{
			"kind":      "point",
			"value":     1000 - h,
			"timestamp": now.Add(-time.Duration(h) * time.Hour).Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	path := fmt.Sprintf("/api/v1/meters/%s/readings?start=%s&end=%s",
		m.ID,
		now.Add(-50*time.Hour).Format(time.RFC3339),
		now.Add(-20*time.Hour).Format(time.RFC3339),
	)
	w := doJSON(t, srv, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result readingdomain.PurgeResult
	decodeData(t, w, &result)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, 1, result.Rebuild.PointsPublished)

	w = doJSON(t, srv, http.MethodDelete, "/api/v1/meters/"+m.ID+"/readings", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRebuildEndpoint(t *testing.T) {
	srv := newTestServer(t)
	m := createTestMeter(t, srv)

	at := time.Now().UTC().Add(-3 * time.Hour).Truncate(time.Second)
	w := doJSON(t, srv, http.MethodPost, "/api/v1/meters/"+m.ID+"/readings", gin.H{
		"kind":      "point",
		"value":     300,
		"timestamp": at.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/api/v1/meters/"+m.ID+"/rebuild", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		MeterID         string `json:"meter_id"`
		PointsPublished int    `json:"points_published"`
	}
	decodeData(t, w, &result)
	assert.Equal(t, m.ID, result.MeterID)
	assert.Equal(t, 1, result.PointsPublished)
}

func TestMeterStateEndpoint(t *testing.T) {
	srv := newTestServer(t)
	m := createTestMeter(t, srv)

	w := doJSON(t, srv, http.MethodGet, "/api/v1/meters/"+m.ID+"/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var state meterdomain.StateResponse
	decodeData(t, w, &state)
	assert.Equal(t, meterdomain.StateUnknown, state.State)
	assert.Equal(t, 100.0, state.Value)

	at := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
	w = doJSON(t, srv, http.MethodPost, "/api/v1/meters/"+m.ID+"/readings", gin.H{
		"kind":      "point",
		"value":     15650,
		"timestamp": at.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/meters/"+m.ID+"/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &state)
	assert.Equal(t, meterdomain.StateOK, state.State)
	assert.Equal(t, 15650.0, state.Value)
	assert.EqualValues(t, 1, state.ReadingCount)
}
