// Package qr produces shipment QR payloads and their PNG rendering. Payloads
// are opaque identifiers scanned back verbatim at delivery; nothing in this
// service parses them.
package qr

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const imageSize = 300

// Payload builds the scan string for a shipment.
// Format: SHIPMENT:<shipment number>:<order number>:<customer name>.
func Payload(shipmentNumber, orderNumber, customerName string) (string, error) {
	if shipmentNumber == "" || orderNumber == "" || customerName == "" {
		return "", shared.NewValidationError("qr", "shipment, order and customer are all required")
	}
	return fmt.Sprintf("SHIPMENT:%s:%s:%s", shipmentNumber, orderNumber, customerName), nil
}

// PNG renders the payload as a 300x300 PNG.
func PNG(payload string) ([]byte, error) {
	if payload == "" {
		return nil, shared.NewValidationError("qr", "payload is empty")
	}
	code, err := qr.Encode(payload, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	code, err = barcode.Scale(code, imageSize, imageSize)
	if err != nil {
		return nil, fmt.Errorf("qr: scale: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, fmt.Errorf("qr: render png: %w", err)
	}
	return buf.Bytes(), nil
}
