package sky

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferExtension(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare name", "query_results", "query_results.csv"},
		{"csv kept", "report.csv", "report.csv"},
		{"json kept", "report.json", "report.json"},
		{"txt kept", "report.txt", "report.txt"},
		{"case insensitive", "report.CSV", "report.CSV"},
		{"unknown extension", "report.xlsx", "report.xlsx.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferExtension(tt.in))
		})
	}
}

func TestDownload_WritesArtifact(t *testing.T) {
	const content = "id,name\n1,Alice\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(content))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, "http://unused.invalid")

	dest := filepath.Join(t.TempDir(), "query_results")

	got, err := client.Download(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, dest+".csv", got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestDownload_EmptyURL(t *testing.T) {
	client, _ := newTestClient(t, "http://unused.invalid", "http://unused.invalid")

	_, err := client.Download(context.Background(), "", "out")
	assert.ErrorIs(t, err, ErrNoSignedURL)
}

func TestDownload_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"signature expired"}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, "http://unused.invalid")

	dest := filepath.Join(t.TempDir(), "query_results")

	_, err := client.Download(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)

	// No artifact file on an HTTP-level failure.
	assert.NoFileExists(t, dest+".csv")
}

func TestDownload_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	client, _ := newTestClient(t, srv.URL, "http://unused.invalid")

	_, err := client.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}
