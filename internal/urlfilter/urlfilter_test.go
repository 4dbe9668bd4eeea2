package urlfilter

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain jpg", raw: "https://x.com/a.jpg", want: "https://x.com/a.jpg"},
		{name: "uppercase extension", raw: "https://x.com/a.JPG", want: "https://x.com/a.JPG"},
		{name: "trailing slash stripped", raw: "https://x.com/a.png/", want: "https://x.com/a.png"},
		{name: "surrounding whitespace", raw: "  https://x.com/a.pdf \t", want: "https://x.com/a.pdf"},
		{name: "non-breaking space", raw: " https://x.com/a.jfif ", want: "https://x.com/a.jfif"},
		{name: "http allowed", raw: "http://x.com/b.jpeg", want: "http://x.com/b.jpeg"},
		{name: "ftp scheme", raw: "ftp://x.com/a.jpg", wantErr: true},
		{name: "gif extension", raw: "https://x.com/a.gif", wantErr: true},
		{name: "no extension", raw: "https://x.com/a", wantErr: true},
		{name: "missing host", raw: "https:///a.jpg", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "only whitespace", raw: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%q) = %q, expected error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) returned error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFilterBatchDedupes(t *testing.T) {
	urls := []string{
		"https://x.com/a.jpg",
		"https://x.com/a.jpg/",
		"ftp://x.com/a.jpg",
		"https://x.com/b.png",
		"https://x.com/a.jpg",
	}

	valid, invalid := FilterBatch(urls, true)

	wantValid := []string{"https://x.com/a.jpg", "https://x.com/b.png"}
	if !reflect.DeepEqual(valid, wantValid) {
		t.Errorf("valid = %v, want %v", valid, wantValid)
	}
	wantInvalid := []string{"ftp://x.com/a.jpg"}
	if !reflect.DeepEqual(invalid, wantInvalid) {
		t.Errorf("invalid = %v, want %v", invalid, wantInvalid)
	}
}

func TestFilterBatchNoDedupe(t *testing.T) {
	urls := []string{"https://x.com/a.jpg", "https://x.com/a.jpg"}
	valid, invalid := FilterBatch(urls, false)
	if len(valid) != 2 {
		t.Errorf("expected duplicates kept without dedupe, got %v", valid)
	}
	if len(invalid) != 0 {
		t.Errorf("unexpected invalid entries: %v", invalid)
	}
}
