package cmd

import (
	"bytes"
	"testing"
)

func TestNewRootCmd_RegistersAllVerbs(t *testing.T) {
	cmd := NewRootCmd()

	want := []string{"ingest", "search", "rebuild", "stats", "content"}
	for _, name := range want {
		found, _, err := cmd.Find([]string{name})
		if err != nil || found.Name() != name {
			t.Errorf("expected %q subcommand to be registered, got err=%v", name, err)
		}
	}
}

func TestNewRootCmd_HelpDoesNotError(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("--help returned error: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected help output")
	}
}

func TestNewRootCmd_RebuildRequiresConfirmation(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"rebuild"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected rebuild without --yes to fail")
	}
}
