package server

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(data string) string {
	return `{"message":{"data":"` + data + `","messageId":"123"},"subscription":"projects/p/subscriptions/s"}`
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestDecodePush(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Notification
		wantErr bool
	}{
		{"numeric history id", b64(`{"emailAddress":"support@example.com","historyId":9876}`), Notification{"support@example.com", 9876}, false},
		{"string history id", b64(`{"emailAddress":"support@example.com","historyId":"9876"}`), Notification{"support@example.com", 9876}, false},
		{"url encoding", base64.URLEncoding.EncodeToString([]byte(`{"emailAddress":"a>>>?@example.com"}`)), Notification{EmailAddress: "a>>>?@example.com"}, false},
		{"empty data", "", Notification{}, true},
		{"not base64", "%%%", Notification{}, true},
		{"not json", b64("hello"), Notification{}, true},
		{"no address", b64(`{"historyId":1}`), Notification{}, true},
		{"bad history id", b64(`{"emailAddress":"a@b.c","historyId":"x"}`), Notification{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env PushEnvelope
			env.Message.Data = tt.data
			got, err := DecodePush(env)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPushHandler(t *testing.T) {
	valid := envelope(b64(`{"emailAddress":"Support@Example.com","historyId":"42"}`))
	other := envelope(b64(`{"emailAddress":"other@example.com","historyId":"42"}`))

	tests := []struct {
		name       string
		target     string
		body       string
		wantCode   int
		wantNotify int32
	}{
		{"accepted", "/pubsub/push?token=s3cret", valid, http.StatusNoContent, 1},
		{"missing token", "/pubsub/push", valid, http.StatusForbidden, 0},
		{"wrong token", "/pubsub/push?token=nope", valid, http.StatusForbidden, 0},
		{"other mailbox", "/pubsub/push?token=s3cret", other, http.StatusNoContent, 0},
		{"bad envelope", "/pubsub/push?token=s3cret", "{", http.StatusBadRequest, 0},
		{"bad payload", "/pubsub/push?token=s3cret", envelope(b64("x")), http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var notified atomic.Int32
			h := NewPushHandler("s3cret", "support@example.com", func() { notified.Add(1) }, nil)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantNotify, notified.Load())
		})
	}
}

func TestPushHandler_NoToken(t *testing.T) {
	var notified atomic.Int32
	h := NewPushHandler("", "", func() { notified.Add(1) }, nil)

	rec := httptest.NewRecorder()
	body := envelope(b64(`{"emailAddress":"anyone@example.com","historyId":1}`))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pubsub/push", strings.NewReader(body)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.EqualValues(t, 1, notified.Load())
}
