package security

import (
	"regexp"
	"strings"
)

// ContentFilter 消息内容过滤器
//
// 客户侧消息直接进入坐席工作台渲染，注入类内容在入库前拦截。
type ContentFilter struct {
	// 注入类内容模式
	maliciousPatterns []*regexp.Regexp

	// 垃圾消息关键词
	spamKeywords []string
}

// NewContentFilter 创建内容过滤器
func NewContentFilter() *ContentFilter {
	return &ContentFilter{
		maliciousPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`),
			regexp.MustCompile(`(?i)javascript:`),
			regexp.MustCompile(`(?i)onload\s*=`),
			regexp.MustCompile(`(?i)onerror\s*=`),
			regexp.MustCompile(`(?i)eval\s*\(`),
			regexp.MustCompile(`(?i)document\.cookie`),
			regexp.MustCompile(`(?i)<iframe[^>]*>`),
			regexp.MustCompile(`(?i)<object[^>]*>`),
			regexp.MustCompile(`(?i)<embed[^>]*>`),
		},
		spamKeywords: []string{
			"casino", "lottery", "winner", "congratulations",
			"free money", "click here", "limited time", "act now",
			"guaranteed", "no risk", "earn money", "work from home",
		},
	}
}

// FilterMessage 过滤消息内容，返回是否放行及拦截原因
func (cf *ContentFilter) FilterMessage(content string) (bool, string) {
	if malicious, reason := cf.checkMaliciousContent(content); malicious {
		return false, reason
	}

	if spam, reason := cf.checkSpamContent(content); spam {
		return false, reason
	}

	return true, ""
}

// checkMaliciousContent 检查注入类内容
func (cf *ContentFilter) checkMaliciousContent(content string) (bool, string) {
	for _, pattern := range cf.maliciousPatterns {
		if pattern.MatchString(content) {
			return true, "malicious content detected: " + pattern.String()
		}
	}
	return false, ""
}

// checkSpamContent 检查垃圾消息
func (cf *ContentFilter) checkSpamContent(content string) (bool, string) {
	contentLower := strings.ToLower(content)

	spamCount := 0
	for _, keyword := range cf.spamKeywords {
		if strings.Contains(contentLower, keyword) {
			spamCount++
		}
	}

	if spamCount >= 3 {
		return true, "spam content detected: multiple spam keywords found"
	}

	return false, ""
}
