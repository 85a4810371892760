package main

import "testing"

func TestNewRootCmdRegistersEverySubcommand(t *testing.T) {
	root := NewRootCmd()

	want := []string{"ingest", "process", "rank", "health", "status", "holdings"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Errorf("Find(%q): %v", name, err)
			continue
		}
		if cmd.Name() != name {
			t.Errorf("Find(%q) resolved to %q", name, cmd.Name())
		}
	}
}

func TestHoldingsSubcommandsRegistered(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"add", "list"} {
		if _, _, err := root.Find([]string{"holdings", name}); err != nil {
			t.Errorf("Find(holdings %q): %v", name, err)
		}
	}
}

func TestProcessCmdFlagsDefaultToFalse(t *testing.T) {
	root := NewRootCmd()
	cmd, _, err := root.Find([]string{"process"})
	if err != nil {
		t.Fatalf("Find(process): %v", err)
	}
	for _, name := range []string{"incremental", "dry-run"} {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			t.Fatalf("process command missing --%s flag", name)
		}
		if f.DefValue != "false" {
			t.Errorf("--%s default = %q, want false", name, f.DefValue)
		}
	}
}
