package kernelcheck

import "testing"

func TestParseRelease(t *testing.T) {
	cases := map[string]string{
		"5.15.0-91-generic": "5.15.0",
		"6.1.55":            "6.1.55",
		"4.19.0+":           "4.19.0",
	}
	for in, want := range cases {
		v, err := parseRelease(in)
		if err != nil {
			t.Fatalf("parseRelease(%q): %v", in, err)
		}
		if v.String() != want {
			t.Fatalf("parseRelease(%q) = %q, want %q", in, v.String(), want)
		}
	}
}

func TestCheckUnknownNamespaceIgnored(t *testing.T) {
	// A namespace type this package has no minimum for must not block
	// create; it's simply not checked here.
	if err := Check([]string{"network"}); err != nil {
		t.Fatalf("expected unknown namespace type to be skipped, got %v", err)
	}
}
