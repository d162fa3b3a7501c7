package webhook_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alphabridge/alphabridge/pkg/webhook"
)

type mockHTTPClient struct {
	*testing.T
	wantURL  string
	wantBody webhook.EventLog
	err      error
	called   bool
}

func (c *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.called = true
	if c.err != nil {
		return nil, c.err
	}

	if req.Method != http.MethodPost {
		c.Errorf("got method %q; want POST", req.Method)
	}
	if req.URL.String() != c.wantURL {
		c.Errorf("got url %q; want %q", req.URL, c.wantURL)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		c.Errorf("got content type %q; want \"application/json\"", ct)
	}

	var el webhook.EventLog
	if err := json.NewDecoder(req.Body).Decode(&el); err != nil {
		c.Fatal(err)
	}
	if len(el.Topics) != len(c.wantBody.Topics) {
		c.Errorf("got topics %v; want %v", el.Topics, c.wantBody.Topics)
	}
	if !el.OccurredAt.Equal(c.wantBody.OccurredAt) {
		c.Errorf("got occurredAt %v; want %v", el.OccurredAt, c.wantBody.OccurredAt)
	}

	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func TestWebhook_DispatchEvent(t *testing.T) {
	occurredAt := time.Now().UTC().Truncate(time.Second)

	tt := []struct {
		name          string
		allowedTopics []string
		eventTopics   []string
		clientErr     error
		wantErr       error
		wantCall      bool
	}{
		{
			name:          "AllowedTopic",
			allowedTopics: []string{"join", "check"},
			eventTopics:   []string{"join"},
			wantCall:      true,
		},
		{
			name:          "OneOfManyTopicsAllowed",
			allowedTopics: []string{"check"},
			eventTopics:   []string{"join", "check"},
			wantCall:      true,
		},
		{
			name:          "DisallowedTopic",
			allowedTopics: []string{"join"},
			eventTopics:   []string{"check"},
			wantErr:       webhook.ErrTopicNotAllowed,
		},
		{
			name:          "NoAllowedTopics",
			allowedTopics: nil,
			eventTopics:   []string{"join"},
			wantErr:       webhook.ErrTopicNotAllowed,
		},
		{
			name:          "ClientFailure",
			allowedTopics: []string{"join"},
			eventTopics:   []string{"join"},
			clientErr:     errors.New("connection refused"),
			wantErr:       errors.New("connection refused"),
			wantCall:      true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			el := webhook.EventLog{
				Topics:     tc.eventTopics,
				OccurredAt: occurredAt,
				Data:       map[string]any{"username": "Notch"},
			}

			client := &mockHTTPClient{
				T:        t,
				wantURL:  "https://hooks.example.com/alphabridge",
				wantBody: el,
				err:      tc.clientErr,
			}
			wh := webhook.Webhook{
				ID:            "test",
				HTTPClient:    client,
				URL:           "https://hooks.example.com/alphabridge",
				AllowedTopics: tc.allowedTopics,
			}

			err := wh.DispatchEvent(el)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatal(err)
				}
			} else if err == nil || err.Error() != tc.wantErr.Error() {
				t.Fatalf("got error %v; want %v", err, tc.wantErr)
			}

			if client.called != tc.wantCall {
				t.Errorf("got called %t; want %t", client.called, tc.wantCall)
			}
		})
	}
}
