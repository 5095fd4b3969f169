package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reveal-service/internal/middleware"
	"reveal-service/internal/mocks"
	"reveal-service/internal/models"
	"reveal-service/internal/service"
	"reveal-service/internal/telemetry"
)

var alice = models.Caller{ID: "alice", DisplayName: "Alice"}

func withCaller(caller models.Caller) gin.HandlerFunc {
	return func(c *gin.Context) {
		if caller.Authenticated() {
			middleware.SetCaller(c, caller)
		}
		c.Next()
	}
}

func setupGroupRouter(handler *GroupHandler, caller models.Caller) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withCaller(caller))
	r.POST("/groups", handler.CreateGroup)
	r.GET("/groups", handler.ListGroups)
	r.GET("/groups/public", handler.ListPublicGroups)
	r.GET("/groups/:group_id", handler.GetGroup)
	r.PATCH("/groups/:group_id", handler.UpdateGroup)
	r.DELETE("/groups/:group_id", handler.DeleteGroup)
	r.POST("/groups/:group_id/join", handler.JoinGroup)
	r.POST("/groups/:group_id/leave", handler.LeaveGroup)
	r.POST("/groups/:group_id/cover", handler.UploadCover)
	return r
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestCreateGroupSuccess(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, "audit.reveal", "reveal-service", "test", nil)
	router := setupGroupRouter(NewGroupHandler(groups, audit), alice)

	reveal := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	groups.On("CreateGroup", mock.Anything, alice, models.NewGroup{Name: "test", IsPublic: true, RevealDate: reveal}).
		Return(models.Group{ID: "g5", Name: "test"}, nil).Once()
	publisher.On("Publish", mock.Anything, "audit.reveal", mock.AnythingOfType("telemetry.AuditEnvelope")).Return(nil).Once()

	body := bytes.NewBufferString(`{"name":"test","is_public":true,"reveal_date":"2027-01-01T00:00:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got models.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "g5", got.ID)
	groups.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestCreateGroupInvalidBody(t *testing.T) {
	router := setupGroupRouter(NewGroupHandler(new(mocks.GroupServiceMock), nil), alice)

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGroupAsGuest(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	router := setupGroupRouter(NewGroupHandler(groups, nil), models.Caller{})
	groups.On("CreateGroup", mock.Anything, models.Caller{}, mock.Anything).
		Return(nil, fmt.Errorf("you must be logged in to create a group: %w", service.ErrAuthRequired)).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, errorBody(t, rec), "logged in")
}

func TestListGroups(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	router := setupGroupRouter(NewGroupHandler(groups, nil), alice)
	groups.On("GetUserGroups", mock.Anything, alice).Return([]models.Group{{ID: "g1"}, {ID: "g2"}}, nil).Once()
	groups.On("GetPublicGroups", mock.Anything, alice).Return([]models.Group{}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/groups", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Groups []models.Group `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Groups, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/groups/public", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"groups":[]}`, rec.Body.String())
	groups.AssertExpectations(t)
}

func TestGetGroupErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"missing": {fmt.Errorf("failed to load group: %w", service.ErrNotFound), http.StatusNotFound},
		"private": {fmt.Errorf("this group is private: %w", service.ErrPrivateGroup), http.StatusForbidden},
		"outage":  {fmt.Errorf("failed to load group: %w", service.ErrConnectivityLost), http.StatusServiceUnavailable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			groups := new(mocks.GroupServiceMock)
			router := setupGroupRouter(NewGroupHandler(groups, nil), alice)
			groups.On("GetGroup", mock.Anything, alice, "g1").Return(nil, tc.err).Once()

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/groups/g1", nil))
			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.err.Error(), errorBody(t, rec))
		})
	}
}

func TestUpdateGroupPassesPartialUpdate(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	router := setupGroupRouter(NewGroupHandler(groups, nil), alice)
	name := "Renamed"
	groups.On("UpdateGroup", mock.Anything, alice, "g1", models.GroupUpdate{Name: &name}).
		Return(models.Group{ID: "g1", Name: name}, nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/groups/g1", bytes.NewBufferString(`{"name":"Renamed"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groups.AssertExpectations(t)
}

func TestMembershipEndpoints(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	router := setupGroupRouter(NewGroupHandler(groups, nil), alice)
	groups.On("JoinGroup", mock.Anything, alice, "g1").Return(nil).Once()
	groups.On("LeaveGroup", mock.Anything, alice, "g1").
		Return(fmt.Errorf("transfer ownership or delete the group instead: %w", service.ErrOwnerCannotLeave)).Once()
	groups.On("DeleteGroup", mock.Anything, alice, "g1").Return(nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/groups/g1/join", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/groups/g1/leave", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/groups/g1", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	groups.AssertExpectations(t)
}

func multipartBody(t *testing.T, fields map[string]string, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)}
		h["Content-Type"] = []string{contentType}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestUploadCover(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	router := setupGroupRouter(NewGroupHandler(groups, nil), alice)
	cover := "http://media/covers/g1.png"
	groups.On("UploadCoverImage", mock.Anything, alice, "g1", mock.MatchedBy(func(u service.Upload) bool {
		return u.Filename == "c.png" && u.ContentType == "image/png" && u.Size == 3
	})).Return(models.Group{ID: "g1", CoverImage: &cover}, nil).Once()

	body, ct := multipartBody(t, nil, "c.png", "image/png", "png")
	req := httptest.NewRequest(http.MethodPost, "/groups/g1/cover", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groups.AssertExpectations(t)

	req = httptest.NewRequest(http.MethodPost, "/groups/g1/cover", bytes.NewBufferString("nope"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
