package server

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/teemow/inboxreply/internal/logging"
)

// maxPushBody bounds a Pub/Sub push request body.
const maxPushBody = 64 << 10

// PushEnvelope is the body of a Pub/Sub push delivery.
type PushEnvelope struct {
	Message struct {
		Data        string            `json:"data"`
		MessageID   string            `json:"messageId"`
		Attributes  map[string]string `json:"attributes,omitempty"`
		PublishTime string            `json:"publishTime,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Notification is the Gmail payload carried in PushEnvelope.Message.Data.
type Notification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// UnmarshalJSON accepts historyId as a number or a numeric string.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw struct {
		EmailAddress string          `json:"emailAddress"`
		HistoryID    json.RawMessage `json:"historyId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.EmailAddress = raw.EmailAddress
	n.HistoryID = 0
	if len(raw.HistoryID) == 0 {
		return nil
	}

	s := string(raw.HistoryID)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid historyId %s: %w", raw.HistoryID, err)
	}
	n.HistoryID = id
	return nil
}

// DecodePush extracts the Gmail notification from a push envelope.
func DecodePush(env PushEnvelope) (Notification, error) {
	var n Notification
	if env.Message.Data == "" {
		return n, errors.New("push message has no data")
	}
	data, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		if data, err = base64.URLEncoding.DecodeString(env.Message.Data); err != nil {
			return n, fmt.Errorf("failed to decode push data: %w", err)
		}
	}
	if err := json.Unmarshal(data, &n); err != nil {
		return n, fmt.Errorf("failed to parse notification: %w", err)
	}
	if n.EmailAddress == "" {
		return n, errors.New("notification has no emailAddress")
	}
	return n, nil
}

// PushHandler receives Gmail notifications from a Pub/Sub push subscription.
type PushHandler struct {
	token   string
	mailbox string
	notify  func()
	logger  *slog.Logger
}

// NewPushHandler creates a PushHandler. notify must not block. When token is
// set, requests must carry it as ?token=. When mailbox is set, notifications
// for other addresses are acknowledged and ignored.
func NewPushHandler(token, mailbox string, notify func(), logger *slog.Logger) *PushHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushHandler{
		token:   token,
		mailbox: mailbox,
		notify:  notify,
		logger:  logging.WithOperation(logger, "push"),
	}
}

// ServeHTTP implements http.Handler. Malformed deliveries are answered with
// 400 so Pub/Sub does not redeliver them forever.
func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.token != "" && subtle.ConstantTimeCompare([]byte(r.URL.Query().Get("token")), []byte(h.token)) != 1 {
		h.logger.WarnContext(r.Context(), "rejected push with bad token")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var env PushEnvelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBody)).Decode(&env); err != nil {
		http.Error(w, "invalid push envelope", http.StatusBadRequest)
		return
	}
	n, err := DecodePush(env)
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid push notification", logging.Err(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.mailbox != "" && !strings.EqualFold(n.EmailAddress, h.mailbox) {
		h.logger.WarnContext(r.Context(), "ignoring notification for another mailbox", logging.UserHash(n.EmailAddress))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.logger.DebugContext(r.Context(), "push received",
		slog.String("pubsub_message_id", env.Message.MessageID),
		slog.Uint64("history_id", n.HistoryID))
	h.notify()
	w.WriteHeader(http.StatusNoContent)
}
