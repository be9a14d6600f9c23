package handlers

import (
	"net/http/httptest"
	"testing"
)

func TestExpectedVersion(t *testing.T) {
	tests := []struct {
		ifMatch string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"*", 0, false},
		{`"3"`, 3, false},
		{"7", 7, false},
		{` "12" `, 12, false},
		{`W/"3"`, 0, true},
		{`"abc"`, 0, true},
		{`"0"`, 0, true},
		{`"-2"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.ifMatch, func(t *testing.T) {
			r := httptest.NewRequest("PUT", "/", nil)
			if tt.ifMatch != "" {
				r.Header.Set("If-Match", tt.ifMatch)
			}

			got, err := expectedVersion(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expectedVersion(%q) err = %v, wantErr %v", tt.ifMatch, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("expectedVersion(%q) = %d, want %d", tt.ifMatch, got, tt.want)
			}
		})
	}
}
