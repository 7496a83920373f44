package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt"
)

func TestTokenCommand(t *testing.T) {
	chdir(t, t.TempDir())
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"driver_id": "driver-42",
		"role":      "DRIVER",
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("DRIVER_TOKEN", token)
	t.Setenv("JWT_SECRET", "k")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "driver-42" {
		t.Errorf("output = %q", got)
	}
}

func TestFlushCommand_EmptyStore(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DRIVER_ID", "driver-42")
	t.Setenv("PENDING_STORE", "memory")
	t.Setenv("LOG_LEVEL", "ERROR")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"flush"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !strings.Contains(out.String(), `"locations"`) || !strings.Contains(out.String(), `"remaining": 0`) {
		t.Errorf("output = %s", out.String())
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	want := map[string]bool{"run": false, "flush": false, "token": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}
