package util

import (
	"errors"
	"math"
	"testing"
)

type brokenStringer struct{}

func (*brokenStringer) String() string { panic(errors.New("boom")) }

func TestClean(t *testing.T) {
	var nilStr *string
	cases := []struct {
		name  string
		input any
		want  string
	}{
		{name: "nil", input: nil, want: ""},
		{name: "nan", input: math.NaN(), want: ""},
		{name: "inf", input: math.Inf(1), want: ""},
		{name: "whole float", input: 12.0, want: "12"},
		{name: "decimal float", input: 1.5, want: "1.5"},
		{name: "int", input: 42, want: "42"},
		{name: "bool", input: true, want: "true"},
		{name: "padded", input: "  Tintin au Tibet \t", want: "Tintin au Tibet"},
		{name: "newlines", input: "Le Petit\r\nPrince\n", want: "Le Petit Prince"},
		{name: "bom", input: "\ufeffTitre", want: "Titre"},
		{name: "nil string pointer", input: nilStr, want: ""},
		{name: "bytes", input: []byte(" x "), want: "x"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.input); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestCleanNeverPanics(t *testing.T) {
	inputs := []any{&brokenStringer{}, struct{ A int }{1}, []int{1, 2}, map[string]int{"a": 1}, float32(math.NaN())}
	for _, in := range inputs {
		_ = Clean(in)
		_ = ToBool(in)
	}
}

func TestToBool(t *testing.T) {
	truthy := []any{"true", "TRUE", "1", 1, 1.0, "x", "X", "yes", "oui", "OUI", " Oui ", "vrai", true}
	for _, v := range truthy {
		if !ToBool(v) {
			t.Fatalf("expected true for %#v", v)
		}
	}

	falsy := []any{nil, "", "non", "no", "0", 0, "false", false, math.NaN(), "xx", "ouii", 2}
	for _, v := range falsy {
		if ToBool(v) {
			t.Fatalf("expected false for %#v", v)
		}
	}
}

func TestFold(t *testing.T) {
	if got := Fold("\ufeff  Auteur "); got != "auteur" {
		t.Fatalf("got %q", got)
	}
	if got := Fold("Lu\n?"); got != "lu ?" {
		t.Fatalf("got %q", got)
	}
}

func TestIsBlank(t *testing.T) {
	for _, v := range []string{"", "  ", "nan", "NaN", " NAN "} {
		if !IsBlank(v) {
			t.Fatalf("expected blank for %q", v)
		}
	}
	if IsBlank("Nana") {
		t.Fatal("Nana is a title")
	}
}
