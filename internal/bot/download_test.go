package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadFromURL(t *testing.T) {
	imageBytes := []byte("fake-jpeg-data")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(imageBytes)
	}))
	defer server.Close()

	d := NewImageDownloader()
	data, err := d.DownloadFromURL(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, imageBytes, data)
}

func TestDownloadFromURL_NotAnImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>not a photo</html>"))
	}))
	defer server.Close()

	d := NewImageDownloader()
	_, err := d.DownloadFromURL(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid content type")
}

func TestDownloadFromURL_TooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	d := NewImageDownloader().WithMaxSize(1024)
	_, err := d.DownloadFromURL(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image too large")
}

func TestDownloadFromURL_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d := NewImageDownloader()
	_, err := d.DownloadFromURL(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestDownloadFromTelegramFileID(t *testing.T) {
	imageBytes := []byte("telegram-photo")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(imageBytes)
	}))
	defer server.Close()

	d := NewImageDownloader()
	data, err := d.DownloadFromTelegramFileID(context.Background(), func(fileID string) (string, error) {
		assert.Equal(t, "file-123", fileID)
		return server.URL, nil
	}, "file-123")
	require.NoError(t, err)
	assert.Equal(t, imageBytes, data)
}
