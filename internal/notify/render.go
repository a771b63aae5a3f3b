package notify

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// RenderData carries the values substituted into a template. Zero-value
// fields simply leave their placeholder alone so one template can serve
// both order and shipment events.
type RenderData struct {
	PartnerName    string
	OrderNumber    string
	ShipmentNumber string
	Date           time.Time
	Amount         *float64
	BoxesCount     *int
	TrackingNumber string
}

// FormatAmount renders a monetary value with thousands grouping, the way the
// templates present totals (1,234.50).
func FormatAmount(v float64) string {
	return amountPrinter.Sprintf("%.2f", v)
}

// Render substitutes the known placeholders into the template body. Unknown
// placeholders are left intact.
func Render(body string, data RenderData) string {
	date := data.Date
	if date.IsZero() {
		date = time.Now()
	}
	pairs := []string{
		"{partner_name}", data.PartnerName,
		"{order_number}", data.OrderNumber,
		"{shipment_number}", data.ShipmentNumber,
		"{date}", date.Format("02.01.2006"),
	}
	if data.Amount != nil {
		pairs = append(pairs, "{amount}", FormatAmount(*data.Amount))
	}
	if data.BoxesCount != nil {
		pairs = append(pairs, "{boxes_count}", amountPrinter.Sprintf("%d", *data.BoxesCount))
	}
	if data.TrackingNumber != "" {
		pairs = append(pairs, "{tracking_number}", data.TrackingNumber)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// defaultTemplates seed the template table and back Dispatch when no stored
// template is active for a type.
var defaultTemplates = map[TemplateType]string{
	TemplateOrderConfirmation: "Hello {partner_name}! Your order #{order_number} has been received.\nOrder date: {date}\nTotal: {amount}\nThank you for your business.",
	TemplateShipmentReady:     "Hello {partner_name}! Your shipment #{shipment_number} is packed and ready to go.\nDate: {date}\nTracking number: {tracking_number}",
	TemplateShipmentSent:      "Hello {partner_name}! Your shipment #{shipment_number} is on its way.\nShipped: {date}\nTracking number: {tracking_number}",
	TemplateDeliveryConfirmed: "Hello {partner_name}! Delivery of shipment #{shipment_number} for order #{order_number} was confirmed on {date}.\nThank you for your business.",
	TemplatePaymentReminder:   "Hello {partner_name}! This is a friendly reminder that payment of {amount} for order #{order_number} is due.",
	TemplateCustom:            "{partner_name}",
}

// DefaultBody returns the built-in body for a template type.
func DefaultBody(t TemplateType) string {
	return defaultTemplates[t]
}
