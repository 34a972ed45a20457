package validation

import "testing"

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		valid bool
	}{
		{
			name:  "plain digits",
			phone: "9161234567",
			valid: true,
		},
		{
			name:  "international format",
			phone: "+7 916 123-45-67",
			valid: true,
		},
		{
			name:  "with parentheses",
			phone: "+7 (916) 123-45-67",
			valid: true,
		},
		{
			name:  "too short",
			phone: "1234",
			valid: false,
		},
		{
			name:  "too long",
			phone: "1234567890123456",
			valid: false,
		},
		{
			name:  "plus in the middle",
			phone: "916+1234567",
			valid: false,
		},
		{
			name:  "contains letters",
			phone: "916abc4567",
			valid: false,
		},
		{
			name:  "empty string",
			phone: "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidPhone(tt.phone)
			if got != tt.valid {
				t.Fatalf("IsValidPhone(%q) = %v, want %v", tt.phone, got, tt.valid)
			}
		})
	}
}
