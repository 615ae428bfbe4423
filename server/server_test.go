package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tejiriaustin/fimtracker/logger"
	"github.com/tejiriaustin/fimtracker/models"
)

// MockQuerier is a mock implementation of the db.Querier interface
type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) ListFiles(ctx context.Context, limit int) ([]models.FileView, error) {
	args := m.Called(limit)
	return args.Get(0).([]models.FileView), args.Error(1)
}

func (m *MockQuerier) History(ctx context.Context, path string) ([]models.FileView, error) {
	args := m.Called(path)
	return args.Get(0).([]models.FileView), args.Error(1)
}

func (m *MockQuerier) ListEvents(ctx context.Context, since time.Time, limit int) ([]models.Event, error) {
	args := m.Called(since, limit)
	return args.Get(0).([]models.Event), args.Error(1)
}

func TestHandler_Endpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	querier := new(MockQuerier)
	querier.On("ListFiles", defaultLimit).Return([]models.FileView{
		{FileID: 1, Filename: "x.txt", Path: "/data/x.txt", CreationTime: created, Hash: "352441c2", EventType: models.EventScanned},
	}, nil)
	querier.On("ListFiles", 5).Return([]models.FileView{}, errors.New("database is locked"))
	querier.On("History", "/data/x.txt").Return([]models.FileView{
		{FileID: 1, Path: "/data/x.txt", EventType: models.EventCreation},
		{FileID: 2, Path: "/data/x.txt", EventType: models.EventModified},
	}, nil)
	querier.On("History", "/data/none.txt").Return([]models.FileView{}, nil)
	querier.On("ListEvents", since, maxLimit).Return([]models.Event{
		{ID: 9, Type: models.EventRenamed, Time: created, FileID: 3, RenamedFrom: "x.txt", RenamedTo: "y.txt"},
	}, nil)

	router := NewHandler(logger.NewNop()).SetupHandler(querier)

	tests := []struct {
		name           string
		url            string
		expectedStatus int
		expectedBody   interface{}
		validateFunc   func(*testing.T, []byte)
	}{
		{
			name:           "Health Check",
			url:            "/health",
			expectedStatus: http.StatusOK,
			expectedBody:   map[string]interface{}{"status": "alive and well"},
		},
		{
			name:           "List Files",
			url:            "/files",
			expectedStatus: http.StatusOK,
			validateFunc: func(t *testing.T, body []byte) {
				var files []models.FileView
				require.NoError(t, json.Unmarshal(body, &files))
				require.Len(t, files, 1)
				assert.Equal(t, "352441c2", files[0].Hash)
				assert.True(t, files[0].CreationTime.Equal(created))
			},
		},
		{
			name:           "List Files Store Failure",
			url:            "/files?limit=5",
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   map[string]interface{}{"error": "failed to list files"},
		},
		{
			name:           "Invalid Limit",
			url:            "/files?limit=-3",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   map[string]interface{}{"error": errInvalidLimit.Error()},
		},
		{
			name:           "File History",
			url:            "/files/history?path=/data/x.txt",
			expectedStatus: http.StatusOK,
			validateFunc: func(t *testing.T, body []byte) {
				var trail []models.FileView
				require.NoError(t, json.Unmarshal(body, &trail))
				require.Len(t, trail, 2)
				assert.Equal(t, models.EventModified, trail[1].EventType)
			},
		},
		{
			name:           "File History Unknown Path",
			url:            "/files/history?path=/data/none.txt",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "File History Traversal",
			url:            "/files/history?path=/data/../etc/passwd",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   map[string]interface{}{"error": errTraversal.Error()},
		},
		{
			name:           "File History Missing Path",
			url:            "/files/history",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "List Events",
			url:            "/events?since=2026-01-01T00:00:00Z&limit=5000",
			expectedStatus: http.StatusOK,
			validateFunc: func(t *testing.T, body []byte) {
				var events []models.Event
				require.NoError(t, json.Unmarshal(body, &events))
				require.Len(t, events, 1)
				assert.Equal(t, "Renamed from x.txt to y.txt", events[0].Description())
			},
		},
		{
			name:           "List Events Bad Since",
			url:            "/events?since=yesterday",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Unknown Route",
			url:            "/execute",
			expectedStatus: http.StatusNotFound,
			expectedBody:   map[string]interface{}{"status": "not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, tt.url, nil)

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedBody != nil {
				var response interface{}
				err := json.Unmarshal(w.Body.Bytes(), &response)
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedBody, response)
			}

			if tt.validateFunc != nil {
				tt.validateFunc(t, w.Body.Bytes())
			}
		})
	}

	querier.AssertExpectations(t)
}

func TestHandler_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewHandler(logger.NewNop()).SetupHandler(new(MockQuerier))

	expectedRoutes := []string{"/health", "/files", "/files/history", "/events"}
	routes := router.Routes()

	assert.Len(t, routes, len(expectedRoutes))
	for _, route := range routes {
		assert.Contains(t, expectedRoutes, route.Path)
		assert.Equal(t, http.MethodGet, route.Method)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewHandler(logger.NewNop()).SetupHandler(new(MockQuerier))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s := New(listener.Addr().String(), router, logger.NewNop())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
