package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadFull(t *testing.T) {
	got, err := Load(strings.NewReader(`
# target tuning
gpregs 8
xmmregs = 4
entry start0
concurrency 4
debug on
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := &Config{
		GPRegs:      8,
		XMMRegs:     4,
		Entry:       "start0",
		Concurrency: 4,
		Debug:       true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDefaults(t *testing.T) {
	got, err := Load(strings.NewReader("# nothing but comments\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Fatalf("empty file should keep defaults (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"unknown option", "colorize on\n"},
		{"gpregs range", "gpregs 99\n"},
		{"gpregs junk", "gpregs many\n"},
		{"malformed line", "gpregs\n"},
		{"bad debug", "debug maybe\n"},
	}
	for _, tc := range cases {
		if _, err := Load(strings.NewReader(tc.src)); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}
