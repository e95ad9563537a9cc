package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingBody = `{
	"etag": "61a5",
	"richWorkspace": "Holiday shots",
	"files": [
		{"name": "sub", "id": "oc-10", "etag": "d1", "directory": true},
		{"name": "a.jpg", "id": "oc-11", "etag": "f1", "contentType": "image/jpeg",
		 "size": 2048, "mtime": 1683900000000, "favorite": true}
	]
}`

func TestProbeReturnsEtag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/list", r.URL.Path)
		assert.Equal(t, "/Photos", r.URL.Query().Get("path"))
		assert.Equal(t, "0", r.URL.Query().Get("depth"))

		fmt.Fprint(w, `{"etag": "61a5"}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client())

	etag, err := c.Probe(context.Background(), "/Photos")
	require.NoError(t, err)
	assert.Equal(t, "61a5", etag)
}

func TestProbeMissingEtagFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client())

	_, err := c.Probe(context.Background(), "/Photos")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestListParsesEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("depth"))
		fmt.Fprint(w, listingBody)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client())

	listing, err := c.List(context.Background(), "/Photos")
	require.NoError(t, err)

	assert.Equal(t, "61a5", listing.Etag)
	assert.Equal(t, "Holiday shots", listing.RichWorkspace)
	require.Len(t, listing.Entries, 2)

	assert.Equal(t, Entry{Name: "sub", ID: "oc-10", Etag: "d1", Directory: true}, listing.Entries[0])
	assert.Equal(t, Entry{
		Name:        "a.jpg",
		ID:          "oc-11",
		Etag:        "f1",
		ContentType: "image/jpeg",
		Size:        2048,
		MTime:       1683900000000,
		Favorite:    true,
	}, listing.Entries[1])
}

func TestListStatusCodes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "not found", status: http.StatusNotFound, transient: false},
		{name: "forbidden", status: http.StatusForbidden, transient: false},
		{name: "bad gateway", status: http.StatusBadGateway, transient: true},
		{name: "service unavailable", status: http.StatusServiceUnavailable, transient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, srv.Client())

			_, err := c.List(context.Background(), "/Photos")
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestListInvalidJSONFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html>not json</html>`)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client())

	_, err := c.List(context.Background(), "/Photos")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestListConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewHTTPClient(srv.URL, nil)

	_, err := c.List(context.Background(), "/Photos")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestCreateFolder(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   bool
		transient bool
	}{
		{name: "created", status: http.StatusCreated},
		{name: "already exists", status: http.StatusMethodNotAllowed},
		{name: "conflict", status: http.StatusConflict, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true, transient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/mkcol", r.URL.Path)
				assert.Equal(t, "/Photos/2023", r.URL.Query().Get("path"))

				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, srv.Client())

			err := c.CreateFolder(context.Background(), "/Photos/2023")
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestSameHostRedirectPolicy(t *testing.T) {
	var target *httptest.Server

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/list", http.StatusFound)
	}))
	defer srv.Close()

	target = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"etag": "61a5"}`)
	}))
	defer target.Close()

	client := &http.Client{CheckRedirect: sameHostRedirectPolicy}
	c := NewHTTPClient(srv.URL, client)

	_, err := c.Probe(context.Background(), "/Photos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect to different host blocked")
}

func TestSanitizeBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "bad request", want: "bad request"},
		{name: "control characters", in: "a\x00b\x1bc", want: "a?b?c"},
		{name: "keeps newlines", in: "line1\nline2", want: "line1\nline2"},
		{name: "invalid utf8", in: "ok\xffend", want: "ok?end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeBody([]byte(tt.in)))
		})
	}
}

func TestSanitizeBodyTruncates(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}

	assert.Len(t, sanitizeBody(long), 256)
}
