// Package sanitize makes user-supplied text safe for the Phoenix PD
// portal's fragile input handling. The portal is known to reject or
// crash on forms containing < > & # and unescaped quotes, so every
// value is cleaned here before it gets anywhere near the form.
//
// Everything in this package is pure: same input, same output, no I/O.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var structuralReplacements = []struct {
	old string
	new string
}{
	{"<", "("},
	{">", ")"},
	{"&", "and"},
	{"#", "number"},
	{`"`, "'"},
	{"\n", " "},
	{"\r", " "},
	{"\t", " "},
}

var multiSpace = regexp.MustCompile(`\s+`)

// FreeText cleans arbitrary text (names, locations, notes) for
// submission. It never fails, an empty result is acceptable for
// optional fields.
func FreeText(text string) string {
	if text == "" {
		return ""
	}

	result := text
	for _, r := range structuralReplacements {
		result = strings.ReplaceAll(result, r.old, r.new)
	}

	var printable strings.Builder
	for _, c := range result {
		if unicode.IsPrint(c) || c == ' ' {
			printable.WriteRune(c)
		}
	}
	result = printable.String()

	result = multiSpace.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

var caseNumberStrip = regexp.MustCompile(`[^A-Za-z0-9\-]`)

// CaseNumber uppercases and strips everything outside alphanumerics
// and hyphens. It fails rather than silently accept an identifier
// that sanitizes to nothing.
func CaseNumber(caseNumber string) (string, error) {
	if caseNumber == "" {
		return "", &ValidationError{Field: "case_number", Reason: "cannot be empty"}
	}

	sanitized := caseNumberStrip.ReplaceAllString(caseNumber, "")
	if sanitized == "" {
		return "", &ValidationError{
			Field:  "case_number",
			Reason: fmt.Sprintf("%q contains no valid characters", caseNumber),
		}
	}

	return strings.ToUpper(sanitized), nil
}

var emailDenylist = regexp.MustCompile(`[<>&#"]`)
var emailFormat = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func Email(address string) (string, error) {
	if address == "" {
		return "", nil
	}

	address = strings.ToLower(strings.TrimSpace(address))
	address = emailDenylist.ReplaceAllString(address, "")

	if !emailFormat.MatchString(address) {
		return "", &ValidationError{
			Field:  "email",
			Reason: fmt.Sprintf("%q is not a valid address", address),
		}
	}

	return address, nil
}

var nonDigit = regexp.MustCompile(`\D`)

// Phone reduces a phone number to its ten digits, tolerating a
// leading US country code.
func Phone(phone string) (string, error) {
	if phone == "" {
		return "", nil
	}

	digits := nonDigit.ReplaceAllString(phone, "")
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", &ValidationError{
			Field:  "phone",
			Reason: fmt.Sprintf("%q does not contain exactly 10 digits", phone),
		}
	}

	return digits, nil
}

// ContactInfo is the requestor contact block attached to a records
// request. Zero values mean "not provided".
type ContactInfo struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Company   string
	Address   string
}

// Contact sanitizes every populated field of a contact block,
// failing on the first field that doesn't survive cleaning.
func Contact(info ContactInfo) (ContactInfo, error) {
	out := ContactInfo{
		FirstName: FreeText(info.FirstName),
		LastName:  FreeText(info.LastName),
		Company:   FreeText(info.Company),
		Address:   FreeText(info.Address),
	}

	email, err := Email(info.Email)
	if err != nil {
		return ContactInfo{}, err
	}
	out.Email = email

	phone, err := Phone(info.Phone)
	if err != nil {
		return ContactInfo{}, err
	}
	out.Phone = phone

	return out, nil
}
