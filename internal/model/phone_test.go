package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Phone
		ok   bool
	}{
		{"national spaced", "555 123 456", "+995555123456", true},
		{"international", "+995555123456", "+995555123456", true},
		{"dashed with country code", "995-555-123-456", "+995555123456", true},
		{"national compact", "511234567", "+995511234567", true},
		{"tel link", "tel:+995 571 233 844", "+995571233844", true},
		{"long fallback keeps last nine", "00995571233844", "+995571233844", true},
		{"too short", "12345", "", false},
		{"empty", "", "", false},
		{"non numeric", "bad", "", false},
		{"landline fallback", "4123456789", "", false},
		{"nine digits not mobile", "412345678", "", false},
		{"country code landline", "995322123456", "", false},
		{"fallback landline suffix", "77322123456", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizePhone(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhone_PunctuationInsensitive(t *testing.T) {
	a, okA := NormalizePhone("555 123 456")
	b, okB := NormalizePhone("+995555123456")
	c, okC := NormalizePhone("995-555-123-456")
	assert.True(t, okA && okB && okC)
	assert.Equal(t, a, b)
	assert.Equal(t, b, c)
}

func TestPhoneSpaced(t *testing.T) {
	assert.Equal(t, "+995 571 233 844", Phone("+995571233844").Spaced())
	assert.Equal(t, "571233844", Phone("+995571233844").National())
	assert.Equal(t, "123", Phone("123").Spaced())
}
