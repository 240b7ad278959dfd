package enums

// PaymentStatus is recorded on payment rows. Only captured payments are stored.
type PaymentStatus string

const (
	PaymentStatusPaid PaymentStatus = "paid"
)

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	return p == PaymentStatusPaid
}
