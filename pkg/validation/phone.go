package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var e164Regex = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

func ValidateE164(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone number is required")
	}

	phone = strings.TrimSpace(phone)

	if !e164Regex.MatchString(phone) {
		return fmt.Errorf("phone number must be in E.164 format (e.g., +14155551234)")
	}

	return nil
}

// NormalizeE164 strips common formatting characters and validates the result.
// Numbers without a leading + are rejected rather than guessed at: the caller
// decides the default country code, not this package.
func NormalizeE164(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")
	phone = strings.ReplaceAll(phone, "(", "")
	phone = strings.ReplaceAll(phone, ")", "")
	phone = strings.ReplaceAll(phone, ".", "")

	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}

	if !strings.HasPrefix(phone, "+") {
		return "", fmt.Errorf("cannot normalize phone number without country code: %s", phone)
	}

	if err := ValidateE164(phone); err != nil {
		return "", err
	}

	return phone, nil
}
