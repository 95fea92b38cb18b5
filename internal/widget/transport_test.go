package widget

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluefermion/reviews/internal/model"
)

func sampleRequest() model.ReviewSubmissionRequest {
	return model.ReviewSubmissionRequest{
		PortalID:   "acme",
		Rating:     4,
		ReviewText: "Quick delivery",
		Metadata:   CollectMetadata(Environment{Location: "https://shop.example.com/?utm_source=x", UserAgent: chromeWindowsUA}),
	}
}

func TestHTTPTransportSendsContract(t *testing.T) {
	var got map[string]any
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"message":"Review submitted successfully"}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "anon-key", time.Second, srv.Client())
	require.NoError(t, tr.Submit(context.Background(), sampleRequest()))

	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "Bearer anon-key", header.Get("Authorization"))
	assert.Equal(t, "acme", got["portalId"])
	assert.Equal(t, float64(4), got["rating"])
	assert.Equal(t, "Quick delivery", got["reviewText"])

	md, ok := got["metadata"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{
		"landing_page", "referrer_url", "device_type", "browser", "browser_version",
		"os", "os_version", "utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	} {
		assert.Contains(t, md, key)
	}
	assert.Equal(t, "x", md["utm_source"])
}

func TestHTTPTransportOmitsAuthWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "", time.Second, nil)
	assert.NoError(t, tr.Submit(context.Background(), sampleRequest()))
}

func TestHTTPTransportClassifiesResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{"unknown portal", 400, `{"success":false,"error":"Invalid portal_id"}`, KindInvalidPortal, MsgInvalidPortal},
		{"rating out of range", 400, `{"success":false,"error":"Rating must be between 1 and 5"}`, KindInvalidRating, MsgInvalidRating},
		{"other backend error", 500, `{"success":false,"error":"deadlock detected"}`, KindUnknown, MsgGeneric},
		{"unparseable body", 502, `<html>Bad Gateway</html>`, KindUnknown, MsgGeneric},
		{"empty body", 500, ``, KindUnknown, MsgGeneric},
		{"2xx with success false", 200, `{"success":false,"error":"Invalid portal_id"}`, KindInvalidPortal, MsgInvalidPortal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewHTTPTransport(srv.URL, "", time.Second, nil).Submit(context.Background(), sampleRequest())
			var se *SubmitError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.kind, se.Kind)
			assert.Equal(t, tt.status, se.Status)
			assert.Equal(t, tt.message, UserMessage(err))
		})
	}
}

func TestHTTPTransportSuccessWithoutFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	assert.NoError(t, NewHTTPTransport(srv.URL, "", time.Second, nil).Submit(context.Background(), sampleRequest()))
}

func TestHTTPTransportNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewHTTPTransport(url, "", time.Second, nil).Submit(context.Background(), sampleRequest())
	var se *SubmitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindNetwork, se.Kind)
	assert.Equal(t, MsgNetwork, UserMessage(err))
}

func TestHTTPTransportTimeoutIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	err := NewHTTPTransport(srv.URL, "", 20*time.Millisecond, nil).Submit(context.Background(), sampleRequest())
	var se *SubmitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindNetwork, se.Kind)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindInvalidPortal, Classify("insert failed: Invalid portal_id"))
	assert.Equal(t, KindInvalidRating, Classify("Rating must be between 1 and 5"))
	assert.Equal(t, KindUnknown, Classify("Invalid metadata fields: foo"))
	assert.Equal(t, KindUnknown, Classify(""))
}
