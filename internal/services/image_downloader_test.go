package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
)

func TestValidateImageURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://api.telegram.org/file/bot123/photos/file_1.jpg", false},
		{"http://images.example.com/plate.png", false},
		{"", true},
		{"ftp://images.example.com/plate.png", true},
		{"file:///etc/passwd", true},
		{"http://localhost/admin", true},
		{"http://127.0.0.1:8080/admin", true},
		{"http://10.1.2.3/x", true},
		{"http://192.168.0.10/x", true},
		{"http://169.254.169.254/latest/meta-data/", true},
		{"http://[::1]/x", true},
		{"http://[fd00::1]/x", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateImageURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateImageURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err != nil && apperrors.HTTPStatus(err) != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", apperrors.HTTPStatus(err))
			}
		})
	}
}

func TestImageDownloaderRefusesLoopback(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Write([]byte("internal-admin-secret"))
	}))
	defer srv.Close()

	d := NewImageDownloader(2 * time.Second)
	data, err := d.Fetch(context.Background(), srv.URL+"/admin")
	if err == nil {
		t.Fatalf("fetched loopback URL: %q", data)
	}
	if hits.Load() != 0 {
		t.Errorf("loopback server received %d requests", hits.Load())
	}
}
