package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/hugh/easy-diagrams/internal/api/dto"
	"github.com/hugh/easy-diagrams/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagramHandler_CreateGetUpdateDelete(t *testing.T) {
	s := newServer(t)

	rr := s.call(t, http.MethodPost, "/api/v1/diagrams", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created dto.DiagramResponse
	testutil.ParseJSONResponse(t, rr, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "empty", created.RenderStatus)
	assert.Nil(t, created.Code)

	rr = s.call(t, http.MethodPut, "/api/v1/diagrams/"+created.ID, map[string]interface{}{
		"title": "Sequence",
		"code":  "@startuml\nA -> B\n@enduml",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var updated dto.DiagramResponse
	testutil.ParseJSONResponse(t, rr, &updated)
	require.NotNil(t, updated.Title)
	assert.Equal(t, "Sequence", *updated.Title)
	assert.Equal(t, "rendered", updated.RenderStatus)
	assert.Equal(t, updated.CodeVersion, updated.ImageVersion)
	assert.Equal(t, dto.ImageURL(created.ID), updated.ImageURL)

	rr = s.call(t, http.MethodGet, "/api/v1/diagrams/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.call(t, http.MethodDelete, "/api/v1/diagrams/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = s.call(t, http.MethodGet, "/api/v1/diagrams/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDiagramHandler_CreateInFolder(t *testing.T) {
	s := newServer(t)
	folder := testutil.CreateTestFolder(t, s.DB, s.Org.ID, "Docs", nil)

	rr := s.call(t, http.MethodPost, "/api/v1/diagrams", dto.CreateDiagramRequest{FolderID: &folder.ID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created dto.DiagramResponse
	testutil.ParseJSONResponse(t, rr, &created)
	require.NotNil(t, created.FolderID)
	assert.Equal(t, folder.ID, *created.FolderID)
}

func TestDiagramHandler_RequiresAuth(t *testing.T) {
	s := newServer(t)

	rr := s.do(testutil.UnauthenticatedRequest(t, http.MethodGet, "/api/v1/diagrams", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDiagramHandler_ValidationError(t *testing.T) {
	s := newServer(t)
	d := testutil.CreateTestDiagram(t, s.DB, s.Org.ID, "", false)

	rr := s.call(t, http.MethodPut, "/api/v1/diagrams/"+d.ID, map[string]interface{}{
		"title": strings.Repeat("x", 301),
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var errResp dto.ErrorResponse
	testutil.ParseJSONResponse(t, rr, &errResp)
	assert.NotEmpty(t, errResp.Error)
}

func TestDiagramHandler_MalformedBody(t *testing.T) {
	s := newServer(t)
	d := testutil.CreateTestDiagram(t, s.DB, s.Org.ID, "", false)

	req := testutil.AuthenticatedRequest(t, http.MethodPut, "/api/v1/diagrams/"+d.ID, nil, s.Token)
	req.Body = http.NoBody
	rr := s.do(req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDiagramHandler_TenantIsolation(t *testing.T) {
	s := newServer(t)
	other := testutil.CreateTestOrg(t, s.DB, "Other")
	foreign := testutil.CreateTestDiagram(t, s.DB, other.ID, "A -> B", false)
	mine := testutil.CreateTestDiagram(t, s.DB, s.Org.ID, "", false)

	rr := s.call(t, http.MethodGet, "/api/v1/diagrams/"+foreign.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.call(t, http.MethodPut, "/api/v1/diagrams/"+foreign.ID, map[string]interface{}{"title": "stolen"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.call(t, http.MethodDelete, "/api/v1/diagrams/"+foreign.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.call(t, http.MethodGet, "/api/v1/diagrams", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var page struct {
		Data  []dto.DiagramListItem `json:"data"`
		Total int64                 `json:"total"`
	}
	testutil.ParseJSONResponse(t, rr, &page)
	require.Len(t, page.Data, 1)
	assert.Equal(t, mine.ID, page.Data[0].ID)
	assert.EqualValues(t, 1, page.Total)
}

func TestDiagramHandler_ListFolderFilter(t *testing.T) {
	s := newServer(t)
	folder := testutil.CreateTestFolder(t, s.DB, s.Org.ID, "Docs", nil)
	root := testutil.CreateTestDiagram(t, s.DB, s.Org.ID, "", false)

	rr := s.call(t, http.MethodPost, "/api/v1/diagrams", dto.CreateDiagramRequest{FolderID: &folder.ID})
	require.Equal(t, http.StatusCreated, rr.Code)
	var inFolder dto.DiagramResponse
	testutil.ParseJSONResponse(t, rr, &inFolder)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{inFolder.ID, root.ID}},
		{"?folder_id=root", []string{root.ID}},
		{"?folder_id=" + folder.ID, []string{inFolder.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := s.call(t, http.MethodGet, "/api/v1/diagrams"+tt.query, nil)
			require.Equal(t, http.StatusOK, rr.Code)

			var page struct {
				Data []dto.DiagramListItem `json:"data"`
			}
			testutil.ParseJSONResponse(t, rr, &page)

			var got []string
			for _, d := range page.Data {
				got = append(got, d.ID)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestDiagramHandler_Image(t *testing.T) {
	s := newServer(t)

	rr := s.call(t, http.MethodPost, "/api/v1/diagrams", nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	var d dto.DiagramResponse
	testutil.ParseJSONResponse(t, rr, &d)

	rr = s.call(t, http.MethodPut, "/api/v1/diagrams/"+d.ID, map[string]interface{}{"code": "A -> B"})
	require.Equal(t, http.StatusOK, rr.Code)

	t.Run("private diagram needs a member session", func(t *testing.T) {
		rr := s.do(testutil.UnauthenticatedRequest(t, http.MethodGet, "/diagrams/"+d.ID+"/image.png", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = s.call(t, http.MethodGet, "/diagrams/"+d.ID+"/image.png", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
		assert.Equal(t, "png:A -> B", rr.Body.String())
	})

	t.Run("other organization cannot read private image", func(t *testing.T) {
		other := testutil.CreateTestOrg(t, s.DB, "Other")
		outsider := testutil.CreateTestUser(t, s.DB, "outsider@example.com")
		testutil.AddTestMember(t, s.DB, other, outsider, true)
		token := testutil.GenerateTestToken(t, s.JWTService, outsider, other.ID)

		rr := s.do(testutil.AuthenticatedRequest(t, http.MethodGet, "/diagrams/"+d.ID+"/image.png", nil, token))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("public diagram is readable anonymously", func(t *testing.T) {
		rr := s.call(t, http.MethodPut, "/api/v1/diagrams/"+d.ID, map[string]interface{}{"is_public": true})
		require.Equal(t, http.StatusOK, rr.Code)

		rr = s.do(testutil.UnauthenticatedRequest(t, http.MethodGet, "/diagrams/"+d.ID+"/image.svg", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "png:A -> B", rr.Body.String())
	})

	t.Run("etag", func(t *testing.T) {
		rr := s.call(t, http.MethodGet, "/diagrams/"+d.ID+"/image.png", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		etag := rr.Header().Get("ETag")
		require.NotEmpty(t, etag)

		req := testutil.AuthenticatedRequest(t, http.MethodGet, "/diagrams/"+d.ID+"/image.png", nil, s.Token)
		req.Header.Set("If-None-Match", etag)
		rr = s.do(req)
		assert.Equal(t, http.StatusNotModified, rr.Code)
		assert.Empty(t, rr.Body.Bytes())
	})
}

func TestDiagramHandler_ImageMissing(t *testing.T) {
	s := newServer(t)
	d := testutil.CreateTestDiagram(t, s.DB, s.Org.ID, "", false)

	rr := s.call(t, http.MethodGet, "/diagrams/"+d.ID+"/image.png", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.call(t, http.MethodGet, "/diagrams/doesnotexist/image.png", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
