package weather

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"famcal/internal/model"
)

type mockTransport struct {
	statusCode int
	body       string
	err        error

	lastURL string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.lastURL = req.URL.String()
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(strings.NewReader(m.body)),
	}, nil
}

func TestFetchWithoutAPIKeyReturnsPlaceholder(t *testing.T) {
	c := NewClientWithHTTP(&mockTransport{})

	got, err := c.Fetch(context.Background(), "Oslo,NO", "C", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := model.WeatherReport{
		Temperature: 72,
		Condition:   "Sunny",
		Icon:        "01d",
		Location:    "Oslo,NO",
		Unit:        "C",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("placeholder mismatch (-want +got):\n%s", diff)
	}
}

func TestFetch(t *testing.T) {
	payload := `{"name":"Oslo","main":{"temp":18.6},"weather":[{"main":"Clouds","icon":"03d"}]}`
	transport := &mockTransport{statusCode: 200, body: payload}
	c := NewClientWithHTTP(transport)

	got, err := c.Fetch(context.Background(), "Oslo,NO", "C", "test-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := model.WeatherReport{
		Temperature: 19, // rounded
		Condition:   "Clouds",
		Icon:        "03d",
		Location:    "Oslo",
		Unit:        "C",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(transport.lastURL, "units=metric") {
		t.Errorf("expected metric units in request, got %s", transport.lastURL)
	}
}

func TestFetchImperialDefault(t *testing.T) {
	payload := `{"name":"New York","main":{"temp":71.2},"weather":[{"main":"Clear","icon":"01d"}]}`
	transport := &mockTransport{statusCode: 200, body: payload}
	c := NewClientWithHTTP(transport)

	got, err := c.Fetch(context.Background(), "New York,US", "F", "test-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Temperature != 71 || got.Unit != "F" {
		t.Errorf("unexpected report: %+v", got)
	}
	if !strings.Contains(transport.lastURL, "units=imperial") {
		t.Errorf("expected imperial units in request, got %s", transport.lastURL)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
	}{
		{"http error", &mockTransport{statusCode: 401, body: "{}"}},
		{"network error", &mockTransport{err: io.ErrUnexpectedEOF}},
		{"bad payload", &mockTransport{statusCode: 200, body: "not json"}},
		{"empty conditions", &mockTransport{statusCode: 200, body: `{"name":"X","main":{"temp":1},"weather":[]}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClientWithHTTP(tt.transport)
			if _, err := c.Fetch(context.Background(), "Oslo,NO", "C", "test-key"); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
