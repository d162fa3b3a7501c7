package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

var ErrTopicNotAllowed = errors.New("event topic not allowed")

// HTTPClient is the interface the Webhook sends events with.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// EventLog is the JSON payload posted to Webhook.URL.
type EventLog struct {
	Topics     []string  `json:"topics"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

// Webhook posts event logs to a fixed URL. Only events carrying at least
// one allowed topic are dispatched.
type Webhook struct {
	ID            string
	HTTPClient    HTTPClient
	URL           string
	AllowedTopics []string
}

func (wh Webhook) allows(el EventLog) bool {
	for _, allowed := range wh.AllowedTopics {
		for _, topic := range el.Topics {
			if allowed == topic {
				return true
			}
		}
	}
	return false
}

// DispatchEvent marshals el into JSON and sends it in a POST request to
// Webhook.URL.
func (wh Webhook) DispatchEvent(el EventLog) error {
	if !wh.allows(el) {
		return ErrTopicNotAllowed
	}

	bb, err := json.Marshal(el)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewReader(bb))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := wh.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	// The response does not matter, but the body has to be closed so the
	// underlying connection can be reused.
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return nil
}
