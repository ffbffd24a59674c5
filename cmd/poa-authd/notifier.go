package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	poaAuth "github.com/lucaaxano/poa-app-sub000"
)

// webhookNotifier POSTs each notice as JSON to a delivery service that owns
// mail templates. Without a URL it logs that a notice was dropped, never the
// token itself.
type webhookNotifier struct {
	url    string
	client *http.Client
	logger *log.Logger
}

type notice struct {
	Kind      string    `json:"kind"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CompanyID string    `json:"company_id,omitempty"`
	Role      string    `json:"role,omitempty"`
}

func newWebhookNotifier(url string, logger *log.Logger) *webhookNotifier {
	return &webhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

func (n *webhookNotifier) PasswordReset(ctx context.Context, r poaAuth.ResetNotice) error {
	return n.send(ctx, notice{
		Kind:      "password_reset",
		Email:     r.Email,
		Token:     r.Token,
		ExpiresAt: r.ExpiresAt,
	})
}

func (n *webhookNotifier) Invitation(ctx context.Context, i poaAuth.InvitationNotice) error {
	return n.send(ctx, notice{
		Kind:      "invitation",
		Email:     i.Email,
		Token:     i.Token,
		ExpiresAt: i.ExpiresAt,
		CompanyID: i.CompanyID,
		Role:      i.Role.String(),
	})
}

func (n *webhookNotifier) send(ctx context.Context, msg notice) error {
	if n.url == "" {
		n.logger.Printf("notify: no delivery configured, dropped %s notice for %s", msg.Kind, msg.Email)
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("notify %s: status %d", msg.Kind, resp.StatusCode)
	}
	return nil
}
