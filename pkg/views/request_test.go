package views

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidURL(t *testing.T) {
	testCases := []struct {
		desc string
		url  string
		want bool
	}{
		{desc: "video link", url: "https://tiktok.com/@user/123", want: true},
		{desc: "http scheme", url: "http://www.tiktok.com/@user/video/123", want: true},
		{desc: "subdomain", url: "https://vm.tiktok.com/@user/123?lang=en", want: true},
		{desc: "wrong scheme", url: "ftp://tiktok.com/@user/123"},
		{desc: "single segment", url: "https://tiktok.com/@user"},
		{desc: "single segment trailing slash", url: "https://tiktok.com/@user/"},
		{desc: "other domain", url: "https://example.com/@user/123"},
		{desc: "no host", url: "https:///@user/123"},
		{desc: "not a url", url: "::not a url"},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			assert.Equal(t, tC.want, IsValidURL(tC.url, "tiktok.com"))
		})
	}
}

func TestNewViewRequest(t *testing.T) {
	testCases := []struct {
		desc      string
		url       string
		count     int
		wantField string
	}{
		{desc: "accepted", url: testURL, count: 10},
		{desc: "lower bound", url: testURL, count: 1},
		{desc: "upper bound", url: testURL, count: 5000},
		{desc: "zero count", url: testURL, count: 0, wantField: "count"},
		{desc: "above max", url: testURL, count: 5001, wantField: "count"},
		{desc: "bad url", url: "https://tiktok.com/@user", count: 10, wantField: "url"},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			req, err := NewViewRequest(testPolicy, tC.url, tC.count)

			if tC.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, tC.url, req.TargetURL())
				assert.Equal(t, tC.count, req.RequestedCount())
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tC.wantField, verr.Field)
		})
	}
}
