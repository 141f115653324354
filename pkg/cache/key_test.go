package cache

import (
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "platform object",
			key:  CacheKey{Resource: "charges", ID: "ch_123"},
			want: "stripe:charges:ch_123",
		},
		{
			name: "connected account object",
			key:  CacheKey{Resource: "charges", ID: "ch_123", Account: "acct_9"},
			want: "stripe:charges:ch_123:acct=acct_9",
		},
		{
			name: "resource with slashes trimmed",
			key:  CacheKey{Resource: "/transfers/", ID: "tr_1"},
			want: "stripe:transfers:tr_1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("CacheKey.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheKey_AccountIsolation(t *testing.T) {
	platform := CacheKey{Resource: "charges", ID: "ch_1"}
	connected := CacheKey{Resource: "charges", ID: "ch_1", Account: "acct_1"}

	if platform.String() == connected.String() {
		t.Error("Keys for different accounts must differ")
	}
}
