package domain

import (
	"strings"
	"time"
)

// Address — адрес доставки пользователя.
type Address struct {
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	State      string
	PostalCode string
}

// User — покупатель.
type User struct {
	ID              string
	Name            string
	Email           string
	Phone           string
	ShippingAddress Address
	RegisteredAt    time.Time
}

// NormalizeUser обрезает пробелы и подставляет дату регистрации.
func NormalizeUser(u User, now time.Time) User {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Phone = strings.TrimSpace(u.Phone)
	if u.RegisteredAt.IsZero() {
		u.RegisteredAt = now
	}
	u.RegisteredAt = u.RegisteredAt.UTC()
	return u
}

// Validate проверяет обязательные поля пользователя.
func (u *User) Validate() []error {
	var errs []error
	if u.Name == "" {
		errs = append(errs, ErrNameRequired)
	}
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		errs = append(errs, ErrEmailRequired)
	}
	return errs
}
