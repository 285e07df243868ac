package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds the notification endpoints. An empty URL disables that channel.
type Config struct {
	SMSURL        string        `mapstructure:"sms_url"`
	ChatURL       string        `mapstructure:"chat_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CountryCode   string        `mapstructure:"country_code"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// Message is the body POSTed to both channels.
type Message struct {
	Mobile      string  `json:"mobile"`
	OrderNumber string  `json:"orderNumber"`
	Amount      float64 `json:"amount"`
}

// Dispatcher sends order confirmations over SMS and chat. Every failure is logged and
// dropped: a notification can never fail or undo an order.
type Dispatcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New returns a Dispatcher. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "91"
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger,
	}
}

// Notify sends both notifications for a created order. It never returns an error.
func (d *Dispatcher) Notify(ctx context.Context, phone, orderNumber string, amount float64) {
	mobile := NormalizePhone(phone, d.cfg.CountryCode)
	if mobile == "" {
		d.logger.Warn("notification skipped: no usable phone number",
			zap.String("order_number", orderNumber))
		return
	}
	msg := Message{Mobile: mobile, OrderNumber: orderNumber, Amount: amount}

	for _, ch := range []struct {
		name string
		url  string
	}{
		{"sms", d.cfg.SMSURL},
		{"chat", d.cfg.ChatURL},
	} {
		if ch.url == "" {
			continue
		}
		if err := d.send(ctx, ch.url, msg); err != nil {
			d.logger.Warn("notification failed",
				zap.String("channel", ch.name),
				zap.String("order_number", orderNumber),
				zap.Error(err))
			continue
		}
		d.logger.Info("notification sent",
			zap.String("channel", ch.name),
			zap.String("order_number", orderNumber))
	}
}

func (d *Dispatcher) send(ctx context.Context, url string, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic sending notification: %v", r)
		}
	}()

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// NormalizePhone keeps digits only, drops leading zeros, and strips countryCode when what is
// left is longer than a 10-digit national number.
func NormalizePhone(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if len(digits) > 10 && countryCode != "" && strings.HasPrefix(digits, countryCode) {
		digits = digits[len(countryCode):]
	}
	return digits
}
