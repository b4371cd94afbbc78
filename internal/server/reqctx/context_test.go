package reqctx

import (
	"context"
	"net/http"
	"testing"

	"github.com/maruel/ksid"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "RemoteAddr with port",
			remoteAddr: "192.168.1.1:12345",
			want:       "192.168.1.1",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "192.168.1.1",
			want:       "192.168.1.1",
		},
		{
			name:       "IPv6 RemoteAddr with port",
			remoteAddr: "[::1]:8080",
			want:       "::1",
		},
		{
			name:       "IPv6 RemoteAddr without port",
			remoteAddr: "[fe80::1]",
			want:       "fe80::1",
		},
		{
			name:       "X-Forwarded-For is ignored",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.195"},
			remoteAddr: "192.168.1.20:5000",
			want:       "192.168.1.20",
		},
		{
			name:       "X-Real-IP is ignored",
			headers:    map[string]string{"X-Real-IP": "203.0.113.195"},
			remoteAddr: "192.168.1.20:5000",
			want:       "192.168.1.20",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{Header: http.Header{}, RemoteAddr: tt.remoteAddr}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if ClientIP(ctx) != "" {
		t.Error("ClientIP() on empty context should be empty")
	}
	if !RequestID(ctx).IsZero() {
		t.Error("RequestID() on empty context should be zero")
	}

	id := ksid.NewID()
	ctx = WithRequestID(WithClientIP(ctx, "10.0.0.2"), id)
	if got := ClientIP(ctx); got != "10.0.0.2" {
		t.Errorf("ClientIP() = %q", got)
	}
	if got := RequestID(ctx); got != id {
		t.Errorf("RequestID() = %v, want %v", got, id)
	}
}
