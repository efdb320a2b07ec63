package qr

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinebook/internal/models"
)

func TestGenerateTicketQRProducesPNG(t *testing.T) {
	g := NewGenerator("test-secret")
	booking := &models.Booking{
		ID:        "b-1",
		Reference: "BKTEST01",
		ShowID:    "show-1",
		Status:    models.BookingConfirmed,
	}
	seats := []models.BookingSeat{
		{SeatKey: "E6"}, {SeatKey: "E7"},
	}

	png, err := g.GenerateTicketQR(booking, seats)
	require.NoError(t, err)
	require.NotEmpty(t, png)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "output is a PNG image")
}

func TestPayloadRoundTrip(t *testing.T) {
	g := NewGenerator("test-secret")
	payload := TicketPayload{
		Reference: "BKTEST01",
		ShowID:    "show-1",
		Seats:     []string{"E6", "E7"},
		IssuedAt:  time.Now().UTC().Truncate(time.Second),
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	encrypted, err := encryptAES(data, g.secret)
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "BKTEST01", "payload is not readable in the clear")

	decoded, err := g.DecodePayload(encrypted)
	require.NoError(t, err)
	assert.Equal(t, payload.Reference, decoded.Reference)
	assert.Equal(t, payload.ShowID, decoded.ShowID)
	assert.Equal(t, payload.Seats, decoded.Seats)
	assert.True(t, payload.IssuedAt.Equal(decoded.IssuedAt))
}

func TestDecodeWithWrongSecretFails(t *testing.T) {
	issuer := NewGenerator("real-secret")
	data, err := json.Marshal(TicketPayload{Reference: "BKTEST01"})
	require.NoError(t, err)
	encrypted, err := encryptAES(data, issuer.secret)
	require.NoError(t, err)

	forger := NewGenerator("guessed-secret")
	_, err = forger.DecodePayload(encrypted)
	assert.Error(t, err, "wrong key decrypts to garbage, not JSON")
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	g := NewGenerator("test-secret")

	_, err := g.DecodePayload("not base64!!!")
	assert.Error(t, err)

	// Valid base64 but shorter than one AES block.
	_, err = g.DecodePayload("c2hvcnQ=")
	assert.Error(t, err)
}
