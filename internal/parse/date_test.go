package parse

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12/10/2025", "2025-10-12"},
		{"1/1/25", "2025-01-01"},
		{"31/12/2024", "2024-12-31"},
		{"29/2/24", "2024-02-29"},
		{"5/6/99", "2099-06-05"},
	}
	for _, tt := range tests {
		d, ok := NormalizeDate(tt.in)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.want, d.String(), tt.in)
	}
}

func TestNormalizeDate_TwoDigitPivot(t *testing.T) {
	for yy := 0; yy < 100; yy++ {
		d, ok := NormalizeDate(fmt.Sprintf("15/6/%02d", yy))
		require.True(t, ok)
		assert.Equal(t, 2000+yy, d.Year)
		assert.Equal(t, time.June, d.Month)
		assert.Equal(t, 15, d.Day)
	}
}

func TestNormalizeDate_Invalid(t *testing.T) {
	for _, in := range []string{
		"invalid",
		"",
		"12/10",
		"12/10/2025/1",
		"aa/10/2025",
		"31/2/2025",
		"0/1/2025",
		"1/13/2025",
		"-1/1/2025",
	} {
		_, ok := NormalizeDate(in)
		assert.False(t, ok, in)
	}
}
