package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestFlagsPreserveSingleLetterShorthand(t *testing.T) {
	fs := pflag.NewFlagSet("confd-backend", pflag.ContinueOnError)
	Flags(fs)

	for _, letter := range []string{"f", "d", "b", "z", "F", "1", "u", "P", "I", "R", "C", "c", "r", "p", "g", "y", "x"} {
		if fs.ShorthandLookup(letter) == nil {
			t.Fatalf("expected shorthand -%s to be bound", letter)
		}
	}
}

func TestValidateRequiresConfigFile(t *testing.T) {
	c := defaults()
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error without -f")
	}
	c.ConfigFile = "/etc/confd/confd.yaml"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRejectsKillAndForeground(t *testing.T) {
	c := defaults()
	c.ConfigFile = "x"
	c.KillAndExit = true
	c.Foreground = true
	if err := c.Validate(); err == nil {
		t.Fatal("expected -z/-F to be mutually exclusive")
	}
}

func TestLoadFileOverlaysDefaultsOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "confd.yaml")
	if err := os.WriteFile(path, []byte("db_dir: /var/lib/confd\nsocket_group: netconf\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := defaults()
	c.SocketGroup = "operators" // CLI override should win over the file
	if err := LoadFile(path, &c); err != nil {
		t.Fatal(err)
	}
	if c.DBDir != "/var/lib/confd" {
		t.Fatalf("expected file value to fill unset db_dir, got %q", c.DBDir)
	}
	if c.SocketGroup != "operators" {
		t.Fatalf("expected CLI override to win, got %q", c.SocketGroup)
	}
}
