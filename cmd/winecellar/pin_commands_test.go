package main

import (
	"testing"

	"winecellar/internal/testsupport"
)

func TestPINEnrollVerifyAndChange(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"pin", "verify", "--pin", "1234"}, env.configPath); err == nil {
		t.Fatal("expected verify to fail before enrollment")
	}

	out, _, err := runCLI(t, []string{"pin", "set", "--new", "1234"}, env.configPath)
	if err != nil {
		t.Fatalf("pin set: %v", err)
	}
	requireContains(t, out, "PIN enrolled")

	if _, _, err := runCLI(t, []string{"pin", "verify", "--pin", "9999"}, env.configPath); err == nil {
		t.Fatal("expected wrong PIN to be rejected")
	}
	out, _, err = runCLI(t, []string{"pin", "verify", "--pin", "1234"}, env.configPath)
	if err != nil {
		t.Fatalf("pin verify: %v", err)
	}
	requireContains(t, out, "PIN verified")

	if _, _, err := runCLI(t, []string{"pin", "set", "--pin", "0000", "--new", "5678"}, env.configPath); err == nil {
		t.Fatal("expected change with wrong current PIN to fail")
	}
	out, _, err = runCLI(t, []string{"pin", "set", "--pin", "1234", "--new", "5678"}, env.configPath)
	if err != nil {
		t.Fatalf("pin change: %v", err)
	}
	requireContains(t, out, "PIN changed")
}

func TestRequirePINGuardsCapture(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithRequirePIN(true))

	if _, _, err := runCLI(t, []string{"pin", "set", "--new", "2468"}, env.configPath); err != nil {
		t.Fatalf("pin set: %v", err)
	}
	if _, _, err := runCLI(t, []string{"--pin", "1111", "capture", env.photo}, env.configPath); err == nil {
		t.Fatal("expected capture with wrong PIN to fail")
	}
	t.Setenv(pinEnvVar, "2468")
	if _, _, err := runCLI(t, []string{"capture", env.photo, "--wine", "Gamay"}, env.configPath); err != nil {
		t.Fatalf("capture with PIN from env: %v", err)
	}
}
