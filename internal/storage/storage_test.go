package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"img2pdf/internal/config"
)

func TestDocumentKey(t *testing.T) {
	assert.Equal(t, "archive/3f2a.pdf", DocumentKey("3f2a"))
}

func TestNewMinIO_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.MinIOConfig
		wantErr []string
	}{
		{
			name:    "everything missing",
			cfg:     config.MinIOConfig{},
			wantErr: []string{"endpoint", "credentials", "bucket"},
		},
		{
			name:    "missing secret",
			cfg:     config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "key", Bucket: "docs"},
			wantErr: []string{"credentials"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive, err := NewMinIO(context.Background(), tt.cfg)

			require.Error(t, err)
			assert.Nil(t, archive)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestNewMinIO_TracesS3Calls(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["location"]; ok {
			w.Header().Set("Content-Type", "application/xml")
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
				`<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	archive, err := NewMinIO(context.Background(), config.MinIOConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "docs",
	})
	require.NoError(t, err)
	require.NotNil(t, archive)

	assert.NotEmpty(t, recorder.Ended())
	for _, span := range recorder.Ended() {
		assert.Equal(t, trace.SpanKindClient, span.SpanKind())
	}
}
