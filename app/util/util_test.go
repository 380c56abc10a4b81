package util

import (
	"os"
	"testing"
)

func TestEnvDefault(t *testing.T) {
	os.Unsetenv("SUBTRACK_TEST_ENV_VAR")
	if got := Env("SUBTRACK_TEST_ENV_VAR", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %s", got)
	}

	os.Setenv("SUBTRACK_TEST_ENV_VAR", "value")
	defer os.Unsetenv("SUBTRACK_TEST_ENV_VAR")
	if got := Env("SUBTRACK_TEST_ENV_VAR", "fallback"); got != "value" {
		t.Errorf("expected value, got %s", got)
	}
}
