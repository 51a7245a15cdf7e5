package xapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractPostID(t *testing.T) {
	cases := map[string]string{
		"https://x.com/someone/status/1234567890":           "1234567890",
		"https://twitter.com/someone/status/42":             "42",
		"https://x.com/someone/status/42?s=20&t=abc":        "42",
		"http://x.com/a_b_c/status/99":                      "99",
		"https://example.com/someone/status/42":             "",
		"https://x.com/someone/statuses/42":                 "",
		"not a url":                                         "",
		"https://x.com/someone/status/42/photo/1 trailing!": "42",
	}
	for url, want := range cases {
		require.Equal(t, want, ExtractPostID(url), "url %q", url)
	}
}
