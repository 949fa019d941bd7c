package services

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/chacha20poly1305"

	"ticketing-core/config"
	"ticketing-core/internal/status"
	"ticketing-core/models"
	"ticketing-core/monitoring"
)

// TokenPrefix tags every QR token so scanners can recognize the format
// before attempting decryption.
const TokenPrefix = "TKT1."

// QRService issues rotating opaque tokens and performs exactly-once
// redemption. Token freshness is deliberately not enforced: any token for an
// unused ticket redeems, the status transition is the sole guard.
type QRService struct {
	db        *dbx.DB
	locker    Locker
	aead      cipher.AEAD
	imageSize int
	txTimeout time.Duration
}

func NewQRService(db *dbx.DB, locker Locker, cfg *config.Config) (*QRService, error) {
	aead, err := chacha20poly1305.NewX(cfg.QRSecret())
	if err != nil {
		return nil, status.Infrastructure("init token cipher", err)
	}
	return &QRService{
		db:        db,
		locker:    locker,
		aead:      aead,
		imageSize: cfg.QRImageSize,
		txTimeout: cfg.TxTimeout,
	}, nil
}

// TokenBundle is a freshly rotated token plus its rendered QR image
// (base64-encoded PNG).
type TokenBundle struct {
	TicketID string `json:"ticket_id"`
	Token    string `json:"token"`
	Image    string `json:"image"`
}

type tokenPayload struct {
	TicketID string `json:"tid"`
	Nonce    string `json:"jti"`
	IssuedAt int64  `json:"iat"`
}

// GenerateToken rotates the ticket's QR token. Every call seals a fresh
// nonce, so the same ticket yields a different opaque value each time.
func (s *QRService) GenerateToken(ctx context.Context, ticketID string) (*TokenBundle, error) {
	if ticketID == "" {
		return nil, status.Validation(status.ReasonInvalidInput, "ticket id is required")
	}

	var exists int
	err := s.db.NewQuery(`SELECT COUNT(*) FROM tickets WHERE id = {:id}`).
		Bind(dbx.Params{"id": ticketID}).
		WithContext(ctx).
		Row(&exists)
	if err != nil {
		return nil, status.Infrastructure("look up ticket", err)
	}
	if exists == 0 {
		return nil, status.NotFound(status.ReasonTicketNotFound, "ticket not found")
	}

	token, err := s.seal(ticketID)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(token, qrcode.Medium, s.imageSize)
	if err != nil {
		return nil, status.Infrastructure("render qr image", err)
	}

	return &TokenBundle{
		TicketID: ticketID,
		Token:    token,
		Image:    base64.StdEncoding.EncodeToString(png),
	}, nil
}

type ValidateTokenInput struct {
	Token       string `json:"token"`
	EventID     string `json:"event_id"`
	ValidatorID string `json:"validator_id"`
}

// ValidationResult reports a redemption outcome. Business rejections land
// here as Valid=false with a reason; only infrastructure failures error.
type ValidationResult struct {
	Valid       bool             `json:"valid"`
	Reason      string           `json:"reason,omitempty"`
	TicketID    string           `json:"ticket_id,omitempty"`
	ValidatedAt *models.DateTime `json:"validated_at,omitempty"`
}

func reject(reason string) *ValidationResult {
	monitoring.TrackRedemption(reason)
	return &ValidationResult{Valid: false, Reason: reason}
}

// ValidateToken redeems the ticket the token decrypts to. Of N concurrent
// calls for one ticket exactly one sees Valid=true; the rest observe
// AlreadyUsed. The entity lock only shortens the contention window - the
// guarded status transition inside the transaction is what enforces
// exactly-once, so an unavailable lock store degrades, not fails.
func (s *QRService) ValidateToken(ctx context.Context, in ValidateTokenInput) (*ValidationResult, error) {
	if in.EventID == "" {
		return nil, status.Validation(status.ReasonInvalidInput, "event_id is required")
	}

	ticketID, ok := s.open(in.Token)
	if !ok {
		return reject(status.ReasonInvalidFormat), nil
	}

	lockToken, lockErr := s.locker.Acquire(ctx, LockKeyTicket+ticketID)
	if lockErr != nil {
		slog.Warn("redemption proceeding without entity lock", "ticket_id", ticketID, "error", lockErr)
	} else {
		defer s.locker.Release(ctx, LockKeyTicket+ticketID, lockToken)
	}

	var result *ValidationResult
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()
	err := s.db.TransactionalContext(txCtx, nil, func(tx *dbx.Tx) error {
		var ticket models.Ticket
		err := tx.Select("*").From("tickets").Where(dbx.HashExp{"id": ticketID}).One(&ticket)
		if errors.Is(err, sql.ErrNoRows) {
			result = reject(status.ReasonTicketNotFound)
			return nil
		}
		if err != nil {
			return status.Infrastructure("load ticket", err)
		}

		if ticket.EventID != in.EventID {
			result = reject(status.ReasonWrongEvent)
			return nil
		}
		if ticket.Status == models.TicketCancelled {
			result = reject(status.ReasonTicketCancelled)
			return nil
		}
		if !ticket.Usable() {
			result = reject(status.ReasonAlreadyUsed)
			return nil
		}

		now := models.NowDateTime()
		res, err := tx.NewQuery(`
			UPDATE tickets SET status = {:used}, validated_at = {:now}
			WHERE id = {:id} AND status IN ({:active}, {:transferred})`).
			Bind(dbx.Params{
				"used":        models.TicketUsed,
				"now":         now,
				"id":          ticketID,
				"active":      models.TicketActive,
				"transferred": models.TicketTransferred,
			}).Execute()
		if err != nil {
			return status.Infrastructure("mark ticket used", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// lost the race to a concurrent scan
			result = reject(status.ReasonAlreadyUsed)
			return nil
		}

		_, err = tx.Insert("validation_records", dbx.Params{
			"id":           uuid.NewString(),
			"ticket_id":    ticketID,
			"event_id":     in.EventID,
			"validator_id": in.ValidatorID,
			"validated_at": now,
		}).Execute()
		if err != nil {
			return status.Infrastructure("insert validation record", err)
		}

		if err := appendOutbox(tx, "ticket", ticketID, models.EventTicketValidated, map[string]any{
			"ticketId":    ticketID,
			"eventId":     in.EventID,
			"validatorId": in.ValidatorID,
			"validatedAt": now,
		}); err != nil {
			return err
		}

		result = &ValidationResult{Valid: true, TicketID: ticketID, ValidatedAt: &now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Valid {
		monitoring.TrackRedemption("valid")
	}
	return result, nil
}

func (s *QRService) seal(ticketID string) (string, error) {
	payload := tokenPayload{
		TicketID: ticketID,
		Nonce:    uuid.NewString(),
		IssuedAt: time.Now().UTC().Unix(),
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", status.Infrastructure("marshal token payload", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", status.Infrastructure("generate token nonce", err)
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// open decrypts a token back to its ticket id. Any malformed or tampered
// input reports ok=false, never an error - the caller maps it to
// InvalidFormat.
func (s *QRService) open(token string) (string, bool) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, TokenPrefix))
	if err != nil || len(raw) <= chacha20poly1305.NonceSizeX {
		return "", false
	}

	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", false
	}

	var payload tokenPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil || payload.TicketID == "" {
		return "", false
	}
	return payload.TicketID, true
}
