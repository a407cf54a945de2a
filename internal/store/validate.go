package store

import (
	"strconv"
	"strings"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
)

// NormalizePhone converts a phone number to E.164. Ten digit numbers are
// treated as North American and get a +1 prefix.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ValidationError{Field: "phone", Reason: "is required"}
	}
	digits := phoneDigits(raw)
	switch {
	case strings.HasPrefix(raw, "+"):
	case len(digits) == 10:
		digits = "1" + digits
	case len(digits) == 11 && digits[0] == '1':
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	default:
		return "", &ValidationError{Field: "phone", Reason: "must be in international format, e.g. +15551234567"}
	}
	if len(digits) < 8 || len(digits) > 15 {
		return "", &ValidationError{Field: "phone", Reason: "must contain 8 to 15 digits"}
	}
	return "+" + digits, nil
}

// NormalizeEmail lower-cases and checks an email address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", &ValidationError{Field: "email", Reason: "is required"}
	}
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return "", &ValidationError{Field: "email", Reason: "must look like name@example.com"}
	}
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", &ValidationError{Field: "email", Reason: "must have a valid domain"}
	}
	return email, nil
}

// NormalizeCustomerID accepts "42", "cust42" or "CUST0042" and returns
// the canonical CUST0042 form. Unrecognized input is returned trimmed.
func NormalizeCustomerID(raw string) string {
	id := strings.ToUpper(strings.TrimSpace(raw))
	num := strings.TrimPrefix(id, CustomerPrefix)
	if n, err := strconv.Atoi(num); err == nil && n >= 0 {
		return CustomerPrefix + pad4(n)
	}
	return id
}

func pad4(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}

func phoneDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalize canonicalizes the query keys. A phone number that cannot be
// normalized is kept as bare digits and matched as a suffix.
func (q CustomerQuery) normalize() CustomerQuery {
	out := CustomerQuery{}
	if q.ID != "" {
		out.ID = NormalizeCustomerID(q.ID)
	}
	if q.Email != "" {
		out.Email = strings.ToLower(strings.TrimSpace(q.Email))
	}
	if q.Phone != "" {
		if p, err := NormalizePhone(q.Phone); err == nil {
			out.Phone = p
		} else {
			out.Phone = phoneDigits(q.Phone)
		}
	}
	return out
}

// partialPhone reports whether a normalized query phone is a bare digit suffix.
func partialPhone(p string) bool {
	return p != "" && !strings.HasPrefix(p, "+")
}

func matchesCustomer(c model.Customer, q CustomerQuery) bool {
	if q.ID != "" && c.ID != q.ID {
		return false
	}
	if q.Email != "" && c.Email != q.Email {
		return false
	}
	if q.Phone != "" {
		if partialPhone(q.Phone) {
			if len(q.Phone) < 7 || !strings.HasSuffix(phoneDigits(c.Phone), q.Phone) {
				return false
			}
		} else if c.Phone != q.Phone {
			return false
		}
	}
	return true
}
