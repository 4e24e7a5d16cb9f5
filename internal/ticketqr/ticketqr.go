// Package ticketqr renders tickets as QR codes whose payload is sealed so gate
// scanners can trust what they read.
package ticketqr

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/spec-kit/ticket-inventory/internal/domain"
)

// ErrInvalidPayload is returned for payloads that fail to decode or authenticate.
var ErrInvalidPayload = errors.New("ticketqr: invalid payload")

// Claims is the content sealed into a QR code.
type Claims struct {
	TicketID     string `json:"tid"`
	TicketTypeID string `json:"ttid"`
	TicketCode   string `json:"code"`
}

// Generator seals ticket claims and renders them as PNG images.
type Generator struct {
	key  [chacha20poly1305.KeySize]byte
	size int
}

// NewGenerator derives the sealing key from secret.
func NewGenerator(secret string, size int) *Generator {
	if size <= 0 {
		size = 256
	}
	return &Generator{key: sha256.Sum256([]byte(secret)), size: size}
}

// Seal encrypts the ticket's claims into a URL-safe string.
func (g *Generator) Seal(ticket *domain.Ticket) (string, error) {
	plain, err := json.Marshal(Claims{
		TicketID:     ticket.ID,
		TicketTypeID: ticket.TicketTypeID,
		TicketCode:   ticket.TicketCode,
	})
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(g.key[:])
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("ticketqr: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open authenticates and decodes a payload produced by Seal.
func (g *Generator) Open(payload string) (Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidPayload
	}
	aead, err := chacha20poly1305.NewX(g.key[:])
	if err != nil {
		return Claims{}, err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return Claims{}, ErrInvalidPayload
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Claims{}, ErrInvalidPayload
	}
	var claims Claims
	if err := json.Unmarshal(plain, &claims); err != nil {
		return Claims{}, ErrInvalidPayload
	}
	return claims, nil
}

// PNG renders the sealed payload of ticket as a QR image.
func (g *Generator) PNG(ticket *domain.Ticket) ([]byte, error) {
	payload, err := g.Seal(ticket)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(payload, qrcode.Medium, g.size)
}
