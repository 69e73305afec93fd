package joinhttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/geoserve/joins/internal/joinmgr"
	"github.com/geoserve/joins/internal/provider"
)

func testServer(t *testing.T) *httptest.Server {
	mgr, err := joinmgr.FromConfig(joinmgr.Config{
		Enabled:   true,
		SourceDir: t.TempDir(),
		Log: func(err error, format string, args ...interface{}) {
			if err != nil {
				format = "ERROR: " + format + ": %s"
				args = append(args, err)
			}
			t.Logf(format, args...)
		},
	})
	assert.NilError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	srv := &Server{
		Manager: mgr,
		Lookup: func(collectionID string) (provider.Provider, bool) {
			if collectionID != "parcels" {
				return nil, false
			}
			return &provider.MemoryProvider{
				KeyFieldsMap: map[string]provider.KeyField{"id": {Type: "string", Default: true}},
				FieldsMap:    map[string]string{"id": "string"},
			}, true
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.Handler)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func multipartUpload(t *testing.T, fields map[string]string, csvBody string) (*bytes.Buffer, string) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		assert.NilError(t, w.WriteField(k, v))
	}
	part, err := w.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="joinFile"; filename="upload.csv"`},
		"Content-Type":        {"text/csv"},
	})
	assert.NilError(t, err)
	_, err = part.Write([]byte(csvBody))
	assert.NilError(t, err)
	assert.NilError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestEndToEndUploadListReadRemove(t *testing.T) {
	ts := testServer(t)

	body, contentType := multipartUpload(t, map[string]string{
		"collectionKey": "id",
		"joinKey":       "id",
	}, "id,owner\n1,Alice\n2,Bob\n")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/collections/parcels/join", body)
	assert.NilError(t, err)
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	assert.NilError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	var table struct {
		ID           string `json:"id"`
		NumberOfRows int    `json:"numberOfRows"`
	}
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(&table))
	assert.Equal(t, table.NumberOfRows, 2)

	listResp, err := http.Get(ts.URL + "/collections/parcels/joins")
	assert.NilError(t, err)
	defer listResp.Body.Close()
	assert.Equal(t, listResp.StatusCode, http.StatusOK)
	var refs map[string]joinmgr.SourceRefView
	assert.NilError(t, json.NewDecoder(listResp.Body).Decode(&refs))
	_, ok := refs[table.ID]
	assert.Equal(t, ok, true)

	readResp, err := http.Get(fmt.Sprintf("%s/collections/parcels/joins/%s", ts.URL, table.ID))
	assert.NilError(t, err)
	defer readResp.Body.Close()
	assert.Equal(t, readResp.StatusCode, http.StatusOK)

	delReq, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/collections/parcels/joins/%s", ts.URL, table.ID), nil)
	assert.NilError(t, err)
	delResp, err := http.DefaultClient.Do(delReq)
	assert.NilError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, delResp.StatusCode, http.StatusOK)

	var removed struct {
		Removed bool `json:"removed"`
	}
	assert.NilError(t, json.NewDecoder(delResp.Body).Decode(&removed))
	assert.Equal(t, removed.Removed, true)

	readResp2, err := http.Get(fmt.Sprintf("%s/collections/parcels/joins/%s", ts.URL, table.ID))
	assert.NilError(t, err)
	defer readResp2.Body.Close()
	assert.Equal(t, readResp2.StatusCode, http.StatusNotFound)
}

func TestUnknownCollectionReturnsNotFound(t *testing.T) {
	ts := testServer(t)

	body, contentType := multipartUpload(t, map[string]string{
		"collectionKey": "id",
		"joinKey":       "id",
	}, "id,owner\n1,Alice\n")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/collections/unknown/join", body)
	assert.NilError(t, err)
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	assert.NilError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestDisabledManagerAlways404s(t *testing.T) {
	srv := &Server{Manager: nil}
	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.Handler)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/collections/parcels/joins")
	assert.NilError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
}
