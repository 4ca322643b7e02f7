package main

import (
	"strings"
	"testing"
	"time"
)

func TestBuildRootWiresCommands(t *testing.T) {
	root := buildRoot()
	want := []string{"serve", "create", "list", "get", "stop", "restart", "delete", "logs", "recent", "clear-logs"}
	have := make(map[string]bool)
	for _, c := range root.Commands() {
		have[strings.Fields(c.Use)[0]] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestClientCommandsRequireDaemon(t *testing.T) {
	f := ClientFlags{APIUrl: "http://127.0.0.1:1/api", APITimeout: 200 * time.Millisecond}
	if _, err := apiClient(f); err == nil {
		t.Fatal("expected unreachable daemon error")
	}
	if err := runList(SessionFlags{Client: f}); err == nil {
		t.Fatal("expected list to fail without daemon")
	}
	if err := runCreate(CreateFlags{Client: f}); err == nil {
		t.Fatal("expected create to fail without daemon")
	}
}
