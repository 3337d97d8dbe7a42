package model

import "strings"

// CountryCode is the Georgian dialing prefix every identity carries.
const CountryCode = "995"

const nationalLen = 9

// Phone is a canonical mobile number in the form +995XXXXXXXXX where the
// national part starts with 5. It is the only unit of deduplication.
type Phone string

// NormalizePhone maps an arbitrary raw string to its canonical Phone.
// It never panics; anything that is not a recognisable mobile number is
// rejected with ok == false.
func NormalizePhone(raw string) (Phone, bool) {
	digits := onlyDigits(raw)

	switch {
	case len(digits) == nationalLen && digits[0] == '5':
		return Phone("+" + CountryCode + digits), true
	case len(digits) == nationalLen+len(CountryCode) && strings.HasPrefix(digits, CountryCode):
		national := digits[len(CountryCode):]
		if national[0] != '5' {
			return "", false
		}
		return Phone("+" + digits), true
	case len(digits) >= nationalLen:
		national := digits[len(digits)-nationalLen:]
		if national[0] != '5' {
			return "", false
		}
		return Phone("+" + CountryCode + national), true
	}
	return "", false
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// String returns the canonical form.
func (p Phone) String() string { return string(p) }

// National returns the 9 digit subscriber number.
func (p Phone) National() string {
	s := string(p)
	if len(s) < nationalLen {
		return s
	}
	return s[len(s)-nationalLen:]
}

// Spaced renders the number the way the client spreadsheets expect it:
// +995 571 233 844
func (p Phone) Spaced() string {
	n := p.National()
	if len(n) != nationalLen {
		return string(p)
	}
	return "+" + CountryCode + " " + n[0:3] + " " + n[3:6] + " " + n[6:9]
}
