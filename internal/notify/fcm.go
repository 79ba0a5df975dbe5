package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	"firebase.google.com/go/messaging"
)

// Logger is the pair of printf-style loggers threaded from main.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// FCMPusher delivers order updates as push notifications to every device
// token registered for the topic's owner. Errors are logged and dropped.
type FCMPusher struct {
	client *messaging.Client
	db     *sql.DB
	log    Logger
}

func NewFCMPusher(client *messaging.Client, db *sql.DB, log Logger) *FCMPusher {
	return &FCMPusher{client: client, db: db, log: log}
}

// Publish resolves the topic's device tokens and sends a data message per
// token. The payload is expected to be JSON with optional title/body keys.
func (p *FCMPusher) Publish(ctx context.Context, topic string, payload []byte) {
	ownerType, ownerID, ok := splitTopic(topic)
	if !ok {
		p.log.Errorf("fcm: bad topic %q", topic)
		return
	}

	tokens, err := p.tokensFor(ctx, ownerType, ownerID)
	if err != nil {
		p.log.Errorf("fcm: token lookup for %s: %v", topic, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	var body struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	_ = json.Unmarshal(payload, &body)

	for _, token := range tokens {
		msg := &messaging.Message{
			Token: token,
			Notification: &messaging.Notification{
				Title: body.Title,
				Body:  body.Body,
			},
			Data: map[string]string{"payload": string(payload)},
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
		}
		if _, err := p.client.Send(ctx, msg); err != nil {
			p.log.Errorf("fcm: send to %s: %v", topic, err)
		}
	}
}

func (p *FCMPusher) tokensFor(ctx context.Context, ownerType string, ownerID int64) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT token FROM device_tokens WHERE owner_type = ? AND owner_id = ?`, ownerType, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func splitTopic(topic string) (string, int64, bool) {
	parts := strings.SplitN(topic, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[0], id, true
}
