package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"relove/market/internal/config"
)

// RedisSender stores a representation of each email in Redis instead of
// delivering it. End-to-end tests read the keys back to assert that a
// booking or receipt notification went out.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender.
func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{client: client, cfg: cfg}
}

// Send stores the email under a key derived from recipient and notification
// kind, with a short TTL.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	// Classify the notification from the subject for key differentiation.
	kind := "unknown"
	switch {
	case strings.Contains(subject, "booked"):
		kind = "booking"
	case strings.Contains(subject, "receipt"), strings.Contains(subject, "Receipt"):
		kind = "receipt"
	}

	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	emailData := map[string]interface{}{
		"to":      strings.Join(to, ", "),
		"from":    s.cfg.SmtpFromAddress,
		"subject": subject,
		"body":    string(rawMessage),
		"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
		"kind":    kind,
	}

	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := fmt.Sprintf("mockemail:%s:%s", primaryTo, kind)
	ttl := 5 * time.Minute

	if err := s.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}

	log.Printf("Mock email stored in Redis key '%s' (TTL: %v, To: %s, Subject: %s)", key, ttl, strings.Join(to, ", "), subject)
	return nil
}
