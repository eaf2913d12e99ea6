// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/mmeshcher/gymmaster/internal/billing"
)

// ErrInvalidInput возвращается для некорректных входных данных.
var ErrInvalidInput = errors.New("invalid input")

// FieldError описывает ошибку валидации конкретного поля.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap позволяет сравнивать ошибку с ErrInvalidInput через errors.Is.
func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}

// IsValidPhone проверяет, что телефон состоит из цифр и допустимых разделителей.
func IsValidPhone(phone string) bool {
	digits := 0
	for _, ch := range phone {
		switch {
		case unicode.IsDigit(ch):
			digits++
		case ch == ' ' || ch == '+' || ch == '-' || ch == '(' || ch == ')':
		default:
			return false
		}
	}
	return digits > 0
}

// IsValidEmail проверяет адрес электронной почты.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// MemberFields проверяет поля профиля участника. Пустые телефон и email допустимы.
func MemberFields(name, phone, email string, planPrice float64) error {
	if strings.TrimSpace(name) == "" {
		return &FieldError{Field: "name", Reason: "must not be empty"}
	}
	if phone != "" && !IsValidPhone(phone) {
		return &FieldError{Field: "phone", Reason: "must contain digits and separators only"}
	}
	if email != "" && !IsValidEmail(email) {
		return &FieldError{Field: "email", Reason: "malformed address"}
	}
	if planPrice < 0 {
		return &FieldError{Field: "plan_price", Reason: "must not be negative"}
	}
	if _, ok := billing.ToCents(planPrice); !ok {
		return &FieldError{Field: "plan_price", Reason: "out of range"}
	}
	return nil
}
