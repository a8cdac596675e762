package clientip

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRealClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"forwarded single", "203.0.113.7", "10.0.0.1:4321", "203.0.113.7"},
		{"forwarded chain takes first", "203.0.113.7, 10.0.0.2, 10.0.0.3", "10.0.0.1:4321", "203.0.113.7"},
		{"forwarded with spaces", "  203.0.113.7 , 10.0.0.2", "10.0.0.1:4321", "203.0.113.7"},
		{"no forwarded falls back to remote addr", "", "198.51.100.4:9999", "198.51.100.4"},
		{"remote addr without port", "", "198.51.100.4", "198.51.100.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/device/register", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, RealClientIP(r))
		})
	}
}
