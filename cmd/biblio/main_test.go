package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"biblio/internal/config"
)

func TestConfirm(t *testing.T) {
	cases := map[string]bool{
		"WIPE\n":    true,
		"  WIPE \n": true,
		"WIPE":      true,
		"wipe\n":    false,
		"y\n":       false,
		"\n":        false,
		"":          false,
	}
	for input, want := range cases {
		var out bytes.Buffer
		got := confirm(strings.NewReader(input), &out, wipePrompt, "WIPE")
		assert.Equal(t, want, got, "input %q", input)
		assert.Equal(t, wipePrompt, out.String())
	}
}

func TestOutputPath(t *testing.T) {
	cfg := config.Config{OutputDir: filepath.Join("srv", "out")}

	assert.Equal(t, filepath.Join("srv", "out", "books.xlsx"), outputPath(cfg, "", "books.xlsx"))
	assert.Equal(t, filepath.Join("srv", "out", "mine.csv"), outputPath(cfg, " mine.csv ", "books.xlsx"))
	assert.Equal(t, filepath.Join("tmp", "x.xlsx"), outputPath(cfg, filepath.Join("tmp", "x.xlsx"), "books.xlsx"))

	abs, _ := filepath.Abs("x.xlsx")
	assert.Equal(t, abs, outputPath(cfg, abs, "books.xlsx"))
}
