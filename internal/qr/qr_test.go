package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func TestPayloadFormat(t *testing.T) {
	p, err := Payload("SHP-202506-00001", "SO-2506-0042", "Golden Foods Ltd")
	require.NoError(t, err)
	assert.Equal(t, "SHIPMENT:SHP-202506-00001:SO-2506-0042:Golden Foods Ltd", p)
}

func TestPayloadRequiresAllParts(t *testing.T) {
	_, err := Payload("", "SO-2506-0042", "Golden Foods Ltd")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = Payload("SHP-202506-00001", "SO-2506-0042", "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPNGProducesDecodableImage(t *testing.T) {
	data, err := PNG("SHIPMENT:SHP-202506-00001:SO-2506-0042:Golden Foods Ltd")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestPNGRejectsEmptyPayload(t *testing.T) {
	_, err := PNG("")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
