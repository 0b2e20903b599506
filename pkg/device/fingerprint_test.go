package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tendant/simple-deviceid/pkg/attributes"
)

func TestGenerateProfileName(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		expected string
	}{
		{"iPhone", `{"userAgent":"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"}`, "iPhone (1f2e3d4c)"},
		{"Pixel", `{"userAgent":"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile"}`, "Google Pixel (1f2e3d4c)"},
		{"Android tablet", `{"userAgent":"Mozilla/5.0 (Linux; Android 13; SM-X700)"}`, "Samsung Phone (1f2e3d4c)"},
		{"Windows", `{"userAgent":"Mozilla/5.0 (Windows NT 10.0; Win64; x64)"}`, "Windows PC (1f2e3d4c)"},
		{"platform fallback", `{"platform":"MacIntel"}`, "Mac (1f2e3d4c)"},
		{"unknown", `{"screen":{"width":1}}`, "Unknown Device (1f2e3d4c)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs, err := attributes.ParseString(tt.doc)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, GenerateProfileName(attrs, "1f2e3d4c-aaaa-bbbb-cccc-000000000000"))
		})
	}

	assert.Equal(t, "Unknown Device", GenerateProfileName(nil, ""))
}

func TestWithClientIP(t *testing.T) {
	attrs := attributes.NewMap()
	attrs.Set("userAgent", attributes.String("curl"))

	out := WithClientIP(attrs, "198.51.100.1")
	ip, ok := out.GetString(AttrClientIPAddress)
	assert.True(t, ok)
	assert.Equal(t, "198.51.100.1", ip)
	assert.Equal(t, []string{"userAgent", AttrClientIPAddress}, out.Keys())
	assert.Equal(t, 1, attrs.Len())

	assert.Same(t, attrs, WithClientIP(attrs, ""))
	assert.True(t, WithClientIP(attributes.NewMap(), "198.51.100.1").IsEmpty())
}
