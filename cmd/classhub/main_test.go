package main

import (
	"bytes"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(out) != "classhub "+version {
		t.Errorf("output = %q", out)
	}
}

func TestServeFlags(t *testing.T) {
	cmd := newRootCmd()
	serve, _, err := cmd.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("serve not found: %v", err)
	}
	for _, name := range []string{"memory", "http_addr", "mongo_uri", "redis_addr", "static_dir", "token_secret"} {
		if serve.Flags().Lookup(name) == nil {
			t.Errorf("serve has no --%s flag", name)
		}
	}
}

func TestEnsureIndexes_RejectsMemory(t *testing.T) {
	if _, err := run(t, "ensure-indexes", "--memory"); err == nil {
		t.Error("expected ensure-indexes --memory to fail")
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	if _, err := run(t, "serve", "--env", "staging"); err == nil {
		t.Error("expected serve to reject an unknown env")
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := run(t, "frobnicate"); err == nil {
		t.Error("expected error for unknown command")
	}
}
