package cli

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var inputs StringList
	var verbose Count
	fs.Var(&inputs, "i", "input")
	fs.Var(&verbose, "v", "verbose")

	if err := fs.Parse([]string{"-i", "a.mp4", "-v", "--i=b.mp4", "-v", "-v", "x/%08d.jpg"}); err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 2 || inputs[1] != "b.mp4" {
		t.Errorf("unexpected inputs %v", inputs)
	}
	if verbose != 3 {
		t.Errorf("Expected verbosity 3, got %d", verbose)
	}
	if fs.NArg() != 1 || fs.Arg(0) != "x/%08d.jpg" {
		t.Errorf("unexpected args %v", fs.Args())
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate.txt")
	err := WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "30\n")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != "30\n" {
		t.Errorf("unexpected content %q", b)
	}

	called := false
	_ = WriteFile("", func(io.Writer) error { called = true; return nil })
	if called {
		t.Error("empty path must not call write")
	}
}
