package domain

// PaymentType represents how a charge was settled.
type PaymentType string

const (
	PaymentTypeCash         PaymentType = "CASH"
	PaymentTypePix          PaymentType = "PIX"
	PaymentTypeDebitCard    PaymentType = "DEBIT_CARD"
	PaymentTypeCreditCard   PaymentType = "CREDIT_CARD"
	PaymentTypeBankTransfer PaymentType = "BANK_TRANSFER"
	PaymentTypeBankSlip     PaymentType = "BANK_SLIP"
)

// Valid reports whether p is a known payment type.
func (p PaymentType) Valid() bool {
	switch p {
	case PaymentTypeCash, PaymentTypePix, PaymentTypeDebitCard,
		PaymentTypeCreditCard, PaymentTypeBankTransfer, PaymentTypeBankSlip:
		return true
	}
	return false
}
