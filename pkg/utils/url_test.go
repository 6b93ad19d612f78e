package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashURLIsStable(t *testing.T) {
	a := HashURL("https://www.facebook.com/marketplace/item/1/")
	b := HashURL("https://www.facebook.com/marketplace/item/1/")
	c := HashURL("https://www.facebook.com/marketplace/item/2/")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestCanonicalURL(t *testing.T) {
	base, err := url.Parse("https://www.facebook.com/marketplace/montreal/vehicles/?sortBy=creation_time_descend")
	require.NoError(t, err)

	tests := []struct {
		name string
		href string
		want string
	}{
		{"relative with query", "/marketplace/item/123/?ref=search&tracking=abc", "https://www.facebook.com/marketplace/item/123/"},
		{"absolute with fragment", "https://www.facebook.com/marketplace/item/456/#photos", "https://www.facebook.com/marketplace/item/456/"},
		{"bare question mark", "/marketplace/item/789/?", "https://www.facebook.com/marketplace/item/789/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(base, tt.href)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalURLWithoutBase(t *testing.T) {
	got, err := CanonicalURL(nil, "https://www.facebook.com/marketplace/item/1/?a=b")
	require.NoError(t, err)
	assert.Equal(t, "https://www.facebook.com/marketplace/item/1/", got)
}
