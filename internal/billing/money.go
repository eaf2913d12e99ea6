package billing

import "math"

// centsLimit равен 2^63: суммы в копейках хранятся в BIGINT.
const centsLimit = float64(math.MaxInt64)

// ToCents переводит сумму в копейки. ok равно false для NaN, бесконечностей,
// отрицательных сумм и значений, не помещающихся в int64.
func ToCents(v float64) (cents int64, ok bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	c := math.Round(v * 100)
	if c < 0 || c >= centsLimit {
		return 0, false
	}
	return int64(c), true
}

// FromCents переводит сумму в копейках обратно в денежные единицы.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}

// ValidPaymentAmount сообщает, что сумма платежа не меньше одной копейки и представима в хранилище.
func ValidPaymentAmount(v float64) bool {
	c, ok := ToCents(v)
	return ok && c > 0
}
