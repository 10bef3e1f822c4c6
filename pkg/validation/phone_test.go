package validation

import "testing"

func TestValidateE164(t *testing.T) {
	tests := []struct {
		phone   string
		wantErr bool
	}{
		{"+14155551234", false},
		{"+919876543210", false},
		{"+442071838750", false},
		{"", true},
		{"14155551234", true},
		{"+0123456789", true},
		{"+1", true},
		{"+1415555123456789012", true},
		{"not a number", true},
	}

	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			err := ValidateE164(tt.phone)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateE164(%q) err = %v, wantErr %v", tt.phone, err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (415) 555-1234", "+14155551234", false},
		{"  +14155551234  ", "+14155551234", false},
		{"0014155551234", "+14155551234", false},
		{"+91 98765.43210", "+919876543210", false},
		{"4155551234", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeE164(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeE164(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeE164(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
