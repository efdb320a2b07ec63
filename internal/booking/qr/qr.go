package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/skip2/go-qrcode"

	"cinebook/internal/models"
)

// TicketPayload is what the gate scanner reads back out of the code.
type TicketPayload struct {
	Reference string    `json:"reference"`
	ShowID    string    `json:"show_id"`
	Seats     []string  `json:"seats"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Generator produces entry QR codes for confirmed bookings. The payload is
// AES-encrypted so a code cannot be forged from a known reference.
type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// GenerateTicketQR returns a 256x256 PNG encoding the encrypted ticket
// payload for a booking and its seats.
func (g *Generator) GenerateTicketQR(booking *models.Booking, seats []models.BookingSeat) ([]byte, error) {
	payload := TicketPayload{
		Reference: booking.Reference,
		ShowID:    booking.ShowID,
		IssuedAt:  time.Now().UTC(),
	}
	for _, s := range seats {
		payload.Seats = append(payload.Seats, s.SeatKey)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// DecodePayload reverses the encryption for scanner-side verification.
func (g *Generator) DecodePayload(encoded string) (*TicketPayload, error) {
	data, err := decryptAES(encoded, g.secret)
	if err != nil {
		return nil, err
	}
	var payload TicketPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(encoded string, key []byte) ([]byte, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aes.BlockSize {
		return nil, errors.New("ciphertext shorter than IV")
	}

	iv := ciphertext[:aes.BlockSize]
	data := make([]byte, len(ciphertext)-aes.BlockSize)
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, ciphertext[aes.BlockSize:])
	return data, nil
}
