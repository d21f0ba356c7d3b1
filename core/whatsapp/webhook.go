package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

const signaturePrefix = "sha256="

// VerifySignature checks an X-Hub-Signature-256 header: "sha256=" + hex(HMAC-SHA256(body, appSecret)).
func VerifySignature(body []byte, header, appSecret string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the X-Hub-Signature-256 header of body.
func Sign(body []byte, appSecret string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

type (
	webhookPayload struct {
		Object string `json:"object"`
		Entry  []struct {
			ID      string `json:"id"`
			Changes []struct {
				Field string `json:"field"`
				Value struct {
					Statuses []StatusUpdate `json:"statuses"`
				} `json:"value"`
			} `json:"changes"`
		} `json:"entry"`
	}

	// StatusUpdate is a delivery status reported by the Cloud API.
	StatusUpdate struct {
		ID          string `json:"id"` // provider message id
		Status      string `json:"status"`
		Timestamp   string `json:"timestamp"`
		RecipientID string `json:"recipient_id"`
		Errors      []struct {
			Code  int    `json:"code"`
			Title string `json:"title"`
		} `json:"errors"`
	}
)

func (su StatusUpdate) ErrorText() string {
	titles := make([]string, 0, len(su.Errors))
	for _, e := range su.Errors {
		titles = append(titles, e.Title)
	}
	return strings.Join(titles, "; ")
}

// ParseStatuses extracts the status updates of a webhook body.
func ParseStatuses(body []byte) ([]StatusUpdate, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errors.Wrap(err, "decoding webhook payload")
	}
	var updates []StatusUpdate
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			updates = append(updates, c.Value.Statuses...)
		}
	}
	return updates, nil
}
