package util

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("HC_TEST_STR", "  value ")
	if got := GetEnv("HC_TEST_STR", "d"); got != "value" {
		t.Errorf("GetEnv = %q, want value", got)
	}
	t.Setenv("HC_TEST_STR", "   ")
	if got := GetEnv("HC_TEST_STR", "d"); got != "d" {
		t.Errorf("GetEnv blank = %q, want default", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		val  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("HC_TEST_BOOL", tt.val)
		if got := ParseBoolEnv("HC_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.val, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		val  string
		want int
	}{
		{"", 64},
		{"8", 8},
		{" 16 ", 16},
		{"0", 64},
		{"-3", 64},
		{"many", 64},
	}
	for _, tt := range tests {
		t.Setenv("HC_TEST_INT", tt.val)
		if got := ParseIntEnv("HC_TEST_INT", 64); got != tt.want {
			t.Errorf("ParseIntEnv(%q) = %d, want %d", tt.val, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	def := 30 * time.Second
	tests := []struct {
		val  string
		want time.Duration
	}{
		{"", def},
		{"45s", 45 * time.Second},
		{"2m", 2 * time.Minute},
		{"90", 90 * time.Second},
		{"0", def},
		{"-5s", def},
		{"soon", def},
	}
	for _, tt := range tests {
		t.Setenv("HC_TEST_DUR", tt.val)
		if got := ParseDurationEnv("HC_TEST_DUR", def); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.val, got, tt.want)
		}
	}
}
