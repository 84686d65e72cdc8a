package domain

import "time"

// PixQRCode is the instant-payment payload issued by the gateway for a charge.
type PixQRCode struct {
	ChargeID       string
	EncodedImage   string // base64 PNG
	Payload        string // copy-and-paste code
	ExpirationDate time.Time
}
