package webpush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eternisai/devotional-push/internal/logger"
)

// Outcome classifies what a push service said about one message.
type Outcome string

const (
	// OutcomeDelivered means the push service accepted the message (2xx).
	OutcomeDelivered Outcome = "delivered"
	// OutcomeDrop means the subscription is gone (404/410) and should be deleted.
	OutcomeDrop Outcome = "drop"
	// OutcomeTransient covers every other failure; the next run may retry.
	OutcomeTransient Outcome = "transient"
)

// Message is the JSON notification the service worker decrypts and displays.
type Message struct {
	Title string `json:"title" yaml:"title"`
	Body  string `json:"body" yaml:"body"`
	Tag   string `json:"tag" yaml:"tag"`
	URL   string `json:"url" yaml:"url"`
}

// Result is the outcome of a single Send.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Err        error
}

// Delivered reports whether the push service accepted the message.
func (r Result) Delivered() bool {
	return r.Outcome == OutcomeDelivered
}

// SenderConfig tunes outbound requests.
type SenderConfig struct {
	// TTL is how long the push service should hold an undelivered message.
	TTL time.Duration
	// RequestTimeout bounds one POST to the push service.
	RequestTimeout time.Duration
}

// Sender delivers encrypted, VAPID-authenticated messages to push endpoints.
type Sender struct {
	signer     *VapidSigner
	encryptor  *Encryptor
	httpClient *http.Client
	ttl        string
	logger     *logger.Logger
	observe    func(Message, Result)
}

// NewSender creates a Sender. The VAPID key pair is validated up front so a bad
// deployment fails at startup rather than once per subscriber.
func NewSender(keys VapidKeyPair, cfg SenderConfig, logger *logger.Logger) (*Sender, error) {
	signer, err := NewVapidSigner(keys)
	if err != nil {
		return nil, err
	}

	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	return &Sender{
		signer:    signer,
		encryptor: NewEncryptor(),
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		ttl:    strconv.Itoa(int(cfg.TTL / time.Second)),
		logger: logger.WithComponent("webpush-sender"),
	}, nil
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func (s *Sender) WithHTTPClient(client *http.Client) *Sender {
	s.httpClient = client
	return s
}

// OnResult registers a callback invoked after every send, used for metrics.
func (s *Sender) OnResult(fn func(Message, Result)) *Sender {
	s.observe = fn
	return s
}

// PublicKey returns the VAPID public key.
func (s *Sender) PublicKey() string {
	return s.signer.PublicKey()
}

// Send encrypts msg for sub and posts it to the subscription endpoint. It never
// returns an error; failures are classified into the Result.
func (s *Sender) Send(ctx context.Context, sub Subscription, msg Message) Result {
	result := s.send(ctx, sub, msg)
	if s.observe != nil {
		s.observe(msg, result)
	}
	return result
}

func (s *Sender) send(ctx context.Context, sub Subscription, msg Message) Result {
	log := s.logger.WithContext(ctx)

	audience, err := Origin(sub.Endpoint)
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: err}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	body, err := s.encryptor.Encrypt(sub, payload)
	if err != nil {
		log.Error("failed to encrypt push payload", slog.String("error", err.Error()))
		return Result{Outcome: OutcomeTransient, Err: err}
	}

	auth, err := s.signer.AuthorizationHeader(audience)
	if err != nil {
		log.Error("failed to sign VAPID token", slog.String("error", err.Error()))
		return Result{Outcome: OutcomeTransient, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Encoding", "aes128gcm")
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("TTL", s.ttl)
	req.Header.Set("Urgency", "normal")
	if msg.Tag != "" {
		req.Header.Set("Topic", msg.Tag)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Warn("push request failed",
			slog.String("audience", audience),
			slog.String("error", err.Error()))
		return Result{Outcome: OutcomeTransient, Err: fmt.Errorf("post to push service: %w", err)}
	}
	defer resp.Body.Close()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		log.Debug("push delivered",
			slog.String("audience", audience),
			slog.Int("status", resp.StatusCode),
			slog.String("tag", msg.Tag))
		return Result{Outcome: OutcomeDelivered, StatusCode: resp.StatusCode}

	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		log.Info("push subscription expired",
			slog.String("audience", audience),
			slog.Int("status", resp.StatusCode))
		return Result{
			Outcome:    OutcomeDrop,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("push service returned %d: subscription gone", resp.StatusCode),
		}

	default:
		log.Warn("push service rejected message",
			slog.String("audience", audience),
			slog.Int("status", resp.StatusCode),
			slog.String("response", string(detail)))
		return Result{
			Outcome:    OutcomeTransient,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("push service returned %d", resp.StatusCode),
		}
	}
}
