package payments

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Service simulates a payment provider. Intents are held in redis with a TTL
// when a client is configured; without redis every lookup degrades to the
// stateless always-succeeded simulation the storefront shipped with.
type Service struct {
	redis *redis.Client
	ttl   time.Duration
	log   *zap.Logger
}

func New(redisClient *redis.Client, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{redis: redisClient, ttl: ttl, log: log}
}

var ErrIntentNotFound = errors.New("payment intent not found")

type Intent struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	Metadata     map[string]string `json:"metadata"`
}

type Refund struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
}

func (s *Service) CreateIntent(ctx context.Context, userID string, amount int64, currency string, metadata map[string]string) (Intent, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["userId"] = userID

	intent := Intent{
		ID:           "pi_" + randomID(9),
		Amount:       amount,
		Currency:     currency,
		Status:       "requires_payment_method",
		ClientSecret: "pi_" + randomID(9) + "_secret_" + randomID(9),
		Metadata:     metadata,
	}
	if err := s.save(ctx, intent); err != nil {
		return Intent{}, err
	}
	s.log.Info("payment intent created",
		zap.String("intent_id", intent.ID),
		zap.Int64("amount", amount),
		zap.String("user_id", userID),
	)
	return intent, nil
}

func (s *Service) Confirm(ctx context.Context, intentID string) (Intent, error) {
	intent, err := s.load(ctx, intentID)
	if err != nil {
		return Intent{}, err
	}
	intent.Status = "succeeded"
	if err := s.save(ctx, intent); err != nil {
		return Intent{}, err
	}
	return intent, nil
}

func (s *Service) Refund(ctx context.Context, intentID string, amount int64) (Refund, error) {
	intent, err := s.load(ctx, intentID)
	if err != nil {
		return Refund{}, err
	}
	if amount <= 0 {
		amount = intent.Amount
	}
	refund := Refund{
		ID:            "re_" + randomID(9),
		PaymentIntent: intent.ID,
		Amount:        amount,
		Status:        "succeeded",
	}
	s.log.Info("payment refunded",
		zap.String("intent_id", intentID),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount", amount),
	)
	return refund, nil
}

func (s *Service) Status(ctx context.Context, intentID string) (Intent, error) {
	return s.load(ctx, intentID)
}

func (s *Service) save(ctx context.Context, intent Intent) error {
	if s.redis == nil {
		return nil
	}
	data, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, intentKey(intent.ID), data, s.ttl).Err()
}

func (s *Service) load(ctx context.Context, intentID string) (Intent, error) {
	if intentID == "" {
		return Intent{}, ErrIntentNotFound
	}
	if s.redis == nil {
		// Stateless simulation: any id reports success with a mock amount.
		return Intent{ID: intentID, Amount: 1000, Currency: "usd", Status: "succeeded"}, nil
	}
	data, err := s.redis.Get(ctx, intentKey(intentID)).Bytes()
	if err == redis.Nil {
		return Intent{}, ErrIntentNotFound
	}
	if err != nil {
		return Intent{}, err
	}
	var intent Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		return Intent{}, err
	}
	return intent, nil
}

func intentKey(intentID string) string {
	return "payment_intent:" + intentID
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomID(length int) string {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			buf[i] = idAlphabet[0]
			continue
		}
		buf[i] = idAlphabet[n.Int64()]
	}
	return string(buf)
}
