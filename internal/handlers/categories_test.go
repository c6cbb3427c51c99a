// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowtree/internal/category"
	"knowtree/internal/models"
	"knowtree/internal/store"
)

// envelope mirrors api.Envelope with the data left raw.
type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	counter *store.MemoryContentCounter
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	counter := store.NewMemoryContentCounter()
	return newTestAPIWithCounter(t, counter, counter)
}

func newTestAPIWithCounter(t *testing.T, cc category.ContentCounter, counter *store.MemoryContentCounter) *testAPI {
	t.Helper()
	cfg := category.DefaultConfig()
	cfg.CounterRetryDelay = time.Millisecond
	cfg.SnapshotTTL = 0
	svc := category.New(store.NewMemoryCategoryStore(), cc, cfg)
	return &testAPI{t: t, handler: NewCategories(svc).Routes(), counter: counter}
}

func (a *testAPI) do(method, target, body string) (int, envelope) {
	a.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)

	var env envelope
	require.NoError(a.t, json.NewDecoder(rr.Body).Decode(&env), "body of %s %s", method, target)
	return rr.Code, env
}

// create posts a category and returns it, failing the test on any error.
func (a *testAPI) create(name string, parent *models.Category) models.Category {
	a.t.Helper()
	body := `{"name":"` + name + `"}`
	if parent != nil {
		body = `{"name":"` + name + `","parentId":"` + parent.ID.String() + `"}`
	}
	status, env := a.do(http.MethodPost, "/", body)
	require.Equal(a.t, http.StatusCreated, status, env.Message)
	var c models.Category
	require.NoError(a.t, json.Unmarshal(env.Data, &c))
	return c
}

func TestCreateAndGet(t *testing.T) {
	a := newTestAPI(t)
	math := a.create("Math", nil)
	algebra := a.create("Algebra", &math)

	assert.Equal(t, 0, math.SortOrder)
	assert.Equal(t, "Math", algebra.ParentName)
	assert.Equal(t, 1, algebra.Depth)

	status, env := a.do(http.MethodGet, "/"+algebra.ID.String(), "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	assert.Equal(t, "SUCCESS", env.Code)

	var got models.Category
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, algebra.ID, got.ID)
	assert.True(t, got.Leaf)

	status, env = a.do(http.MethodGet, "/"+math.ID.String()+"/children", "")
	require.Equal(t, http.StatusOK, status)
	var kids []models.Category
	require.NoError(t, json.Unmarshal(env.Data, &kids))
	require.Len(t, kids, 1)
	assert.Equal(t, "Algebra", kids[0].Name)
}

func TestCreateRejections(t *testing.T) {
	a := newTestAPI(t)
	a.create("Math", nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"duplicate sibling", `{"name":"Math"}`, http.StatusConflict, "CATEGORY_NAME_EXISTS"},
		{"missing name", `{"description":"x"}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"blank name", `{"name":"   "}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"name too long", `{"name":"` + strings.Repeat("n", 101) + `"}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"snake_case field", `{"name":"X","sort_order":3}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown field", `{"name":"X","colour":"red"}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"malformed json", `{"name":`, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown parent", `{"name":"X","parentId":"` + uuid.NewString() + `"}`, http.StatusBadRequest, "PARENT_CATEGORY_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := a.do(http.MethodPost, "/", tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantCode, env.Code)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestCreateTrimsNameBeforeLengthCheck(t *testing.T) {
	a := newTestAPI(t)
	name := strings.Repeat("n", 100)

	status, env := a.do(http.MethodPost, "/", `{"name":"  `+name+`  "}`)
	require.Equal(t, http.StatusCreated, status, env.Message)
	var c models.Category
	require.NoError(t, json.Unmarshal(env.Data, &c))
	assert.Equal(t, name, c.Name)

	status, _ = a.do(http.MethodPut, "/"+c.ID.String(), `{"name":" `+strings.Repeat("m", 100)+` "}`)
	assert.Equal(t, http.StatusOK, status)
}

func TestBadAndUnknownIDs(t *testing.T) {
	a := newTestAPI(t)

	status, env := a.do(http.MethodGet, "/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", env.Code)

	status, env = a.do(http.MethodGet, "/"+uuid.NewString()+"/path", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "CATEGORY_NOT_FOUND", env.Code)
}

func TestMoveEndpoint(t *testing.T) {
	a := newTestAPI(t)
	math := a.create("Math", nil)
	algebra := a.create("Algebra", &math)
	linear := a.create("Linear", &algebra)

	status, env := a.do(http.MethodPut, "/"+math.ID.String()+"/move?newParentId="+linear.ID.String(), "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "CATEGORY_CYCLE_DETECTED", env.Code)

	status, env = a.do(http.MethodPut, "/"+algebra.ID.String()+"/move", "")
	require.Equal(t, http.StatusOK, status, env.Message)
	var moved models.Category
	require.NoError(t, json.Unmarshal(env.Data, &moved))
	assert.Nil(t, moved.ParentID)
	assert.Equal(t, 0, moved.Depth)

	status, env = a.do(http.MethodGet, "/"+linear.ID.String()+"/depth", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "1", string(env.Data))

	status, _ = a.do(http.MethodPut, "/"+algebra.ID.String()+"/move?newParentId=zzz", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUpdateEndpoint(t *testing.T) {
	a := newTestAPI(t)
	math := a.create("Math", nil)
	physics := a.create("Physics", nil)
	algebra := a.create("Algebra", &math)

	body := `{"name":"Mechanics","description":"motion","parentId":"` + physics.ID.String() + `","sortOrder":4}`
	status, env := a.do(http.MethodPut, "/"+algebra.ID.String(), body)
	require.Equal(t, http.StatusOK, status, env.Message)

	var got models.Category
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "Mechanics", got.Name)
	assert.Equal(t, "motion", got.Description)
	assert.Equal(t, physics.ID, *got.ParentID)
	assert.Equal(t, 4, got.SortOrder)

	status, env = a.do(http.MethodPut, "/"+physics.ID.String(), `{"name":"Math"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CATEGORY_NAME_EXISTS", env.Code)
}

func TestDeleteEndpoint(t *testing.T) {
	a := newTestAPI(t)
	math := a.create("Math", nil)
	algebra := a.create("Algebra", &math)
	a.counter.Set(algebra.ID, 3, time.Now())

	status, env := a.do(http.MethodDelete, "/"+math.ID.String(), "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CATEGORY_CANNOT_DELETE", env.Code)

	status, env = a.do(http.MethodGet, "/"+algebra.ID.String()+"/can-delete", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "false", string(env.Data))

	status, _ = a.do(http.MethodDelete, "/"+algebra.ID.String(), "")
	assert.Equal(t, http.StatusConflict, status)

	a.counter.Set(algebra.ID, 0, time.Now())
	status, env = a.do(http.MethodDelete, "/"+algebra.ID.String(), "")
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.True(t, env.Success)

	status, _ = a.do(http.MethodGet, "/"+algebra.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSortEndpoints(t *testing.T) {
	a := newTestAPI(t)
	x := a.create("X", nil)
	y := a.create("Y", nil)

	status, env := a.do(http.MethodPut, "/"+x.ID.String()+"/sort", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", env.Code)

	status, _ = a.do(http.MethodPut, "/"+x.ID.String()+"/sort?sortOrder=9", "")
	require.Equal(t, http.StatusOK, status)

	batch := `[{"id":"` + y.ID.String() + `","sortOrder":0},{"id":"` + uuid.NewString() + `","sortOrder":1}]`
	status, env = a.do(http.MethodPost, "/batch-sort", batch)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "CATEGORY_NOT_FOUND", env.Code)

	status, env = a.do(http.MethodPost, "/batch-sort", `[{"sortOrder":1}]`)
	assert.Equal(t, http.StatusBadRequest, status, "a missing id fails validation")
	assert.Equal(t, "INVALID_INPUT", env.Code)

	status, env = a.do(http.MethodPost, "/batch-sort", `[{"id":"`+y.ID.String()+`"}]`)
	assert.Equal(t, http.StatusBadRequest, status, "a missing sort order fails validation")
	assert.Equal(t, "INVALID_INPUT", env.Code)

	status, env = a.do(http.MethodPost, "/batch-sort", `[{"id":"`+y.ID.String()+`","sort_order":5}]`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "sort_order")

	status, env = a.do(http.MethodGet, "/root", "")
	require.Equal(t, http.StatusOK, status)
	var roots []models.Category
	require.NoError(t, json.Unmarshal(env.Data, &roots))
	require.Len(t, roots, 2)
	assert.Equal(t, "Y", roots[0].Name, "Y keeps sort order 1 after the rejected batch")
	assert.Equal(t, 1, roots[0].SortOrder)

	batch = `[{"id":"` + y.ID.String() + `","sortOrder":20},{"id":"` + x.ID.String() + `","sortOrder":10}]`
	status, _ = a.do(http.MethodPost, "/batch-sort", batch)
	require.Equal(t, http.StatusOK, status)

	_, env = a.do(http.MethodGet, "/", "")
	var all []models.Category
	require.NoError(t, json.Unmarshal(env.Data, &all))
	require.Len(t, all, 2)
	assert.Equal(t, "X", all[0].Name)
	assert.Equal(t, 10, all[0].SortOrder)
	assert.Equal(t, "Y", all[1].Name)
	assert.Equal(t, 20, all[1].SortOrder)
}

func TestTreeAndStatsEndpoints(t *testing.T) {
	a := newTestAPI(t)
	math := a.create("Math", nil)
	algebra := a.create("Algebra", &math)
	a.counter.Set(math.ID, 1, time.Now())
	a.counter.Set(algebra.ID, 2, time.Now())

	status, env := a.do(http.MethodGet, "/tree", "")
	require.Equal(t, http.StatusOK, status)
	var roots []models.Category
	require.NoError(t, json.Unmarshal(env.Data, &roots))
	require.Len(t, roots, 1)
	assert.Equal(t, int64(3), *roots[0].TotalContentCount)
	require.Len(t, roots[0].Children, 1)

	status, env = a.do(http.MethodGet, "/"+math.ID.String()+"/stats", "")
	require.Equal(t, http.StatusOK, status)
	var st models.CategoryStats
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, int64(1), st.ContentCount)
	assert.Equal(t, int64(3), st.TotalContentCount)

	status, env = a.do(http.MethodGet, "/popular?limit=1", "")
	require.Equal(t, http.StatusOK, status)
	var top []models.CategoryStats
	require.NoError(t, json.Unmarshal(env.Data, &top))
	require.Len(t, top, 1)
	assert.Equal(t, "Math", top[0].Name)

	status, env = a.do(http.MethodGet, "/popular?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", env.Code)

	status, env = a.do(http.MethodGet, "/recent", "")
	require.Equal(t, http.StatusOK, status)
	var recent []models.Category
	require.NoError(t, json.Unmarshal(env.Data, &recent))
	assert.Len(t, recent, 2)

	status, env = a.do(http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, status)
	var all []models.CategoryStats
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 2)
}

func TestSearchAndValidateEndpoints(t *testing.T) {
	a := newTestAPI(t)
	math := a.create("Math", nil)
	a.create("Algebra", &math)

	status, env := a.do(http.MethodGet, "/search?keyword=alg", "")
	require.Equal(t, http.StatusOK, status)
	var found []models.Category
	require.NoError(t, json.Unmarshal(env.Data, &found))
	require.Len(t, found, 1)

	status, env = a.do(http.MethodGet, "/search?keyword=zzz", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(env.Data), "no match is an empty list, not null")

	status, env = a.do(http.MethodGet, "/recent", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(env.Data), "no content yet is an empty list")

	status, env = a.do(http.MethodGet, "/search", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", env.Code)

	_, env = a.do(http.MethodGet, "/validate/name?name=Algebra&parentId="+math.ID.String(), "")
	assert.JSONEq(t, "false", string(env.Data))

	_, env = a.do(http.MethodGet, "/validate/name?name=Geometry&parentId="+math.ID.String(), "")
	assert.JSONEq(t, "true", string(env.Data))

	_, env = a.do(http.MethodGet, "/validate/depth?parentId="+math.ID.String(), "")
	assert.JSONEq(t, "true", string(env.Data))

	status, env = a.do(http.MethodGet, "/validate/depth?parentId="+uuid.NewString(), "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "PARENT_CATEGORY_NOT_FOUND", env.Code)
}

// downCounter always fails, as an unreachable content service would.
type downCounter struct{}

func (downCounter) CountActiveContent(context.Context, uuid.UUID) (int64, error) {
	return 0, errors.New("connection refused")
}

func (downCounter) LastContentTimestamp(context.Context, uuid.UUID) (*time.Time, error) {
	return nil, errors.New("connection refused")
}

func TestCounterUnavailable(t *testing.T) {
	a := newTestAPIWithCounter(t, downCounter{}, nil)
	math := a.create("Math", nil)

	status, env := a.do(http.MethodGet, "/"+math.ID.String()+"/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "CONTENT_COUNTER_UNAVAILABLE", env.Code)

	status, env = a.do(http.MethodDelete, "/"+math.ID.String(), "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "CONTENT_COUNTER_UNAVAILABLE", env.Code)

	// Structure-only reads do not need the counter.
	status, _ = a.do(http.MethodGet, "/"+math.ID.String()+"/path", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{category.ErrNotFound, http.StatusNotFound},
		{category.ErrParentNotFound, http.StatusBadRequest},
		{category.ErrInvalidInput, http.StatusBadRequest},
		{category.ErrDepthExceeded, http.StatusBadRequest},
		{category.ErrCycleDetected, http.StatusBadRequest},
		{category.ErrDuplicateName, http.StatusConflict},
		{category.ErrDeleteBlocked, http.StatusConflict},
		{category.ErrContentCounterUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	rr := httptest.NewRecorder()
	fail(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "password")
	assert.Contains(t, rr.Body.String(), "INTERNAL_ERROR")
}
