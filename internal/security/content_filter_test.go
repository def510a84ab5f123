package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentFilter_FilterMessage(t *testing.T) {
	filter := NewContentFilter()

	tests := []struct {
		name    string
		content string
		allowed bool
	}{
		{"Plain text passes", "你好，我想查询订单状态", true},
		{"Script tag blocked", "<script>alert('xss')</script>", false},
		{"Script tag case insensitive", "<SCRIPT>alert(1)</SCRIPT>", false},
		{"Javascript scheme blocked", "click javascript:alert(1)", false},
		{"Onerror handler blocked", "<img src=x onerror=alert(1)>", false},
		{"Iframe blocked", "<iframe src='http://evil.example'>", false},
		{"Eval call blocked", "eval(atob('...'))", false},
		{"Cookie access blocked", "document.cookie", false},
		{"Single spam keyword passes", "congratulations on the launch", true},
		{"Two spam keywords pass", "congratulations, you are a winner", true},
		{"Three spam keywords blocked", "congratulations winner, claim your free money", false},
		{"HTML-looking but harmless", "价格 < 100 并且 > 50", true},
		{"Empty message passes", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, reason := filter.FilterMessage(tt.content)
			assert.Equal(t, tt.allowed, allowed)
			if !tt.allowed {
				assert.NotEmpty(t, reason)
			}
		})
	}
}
