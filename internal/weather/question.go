package weather

import (
	"regexp"
	"strings"
)

var weatherKeywords = []string{
	"weather", "temperature", "hot", "cold", "warm", "rain", "sunny",
	"forecast", "climate", "humidity", "precipitation",
}

// 按顺序尝试，第一个命中的模式生效。
var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)weather\s+in\s+([A-Za-z\s]+)(?:\?|$)`),
	regexp.MustCompile(`(?i)temperature\s+in\s+([A-Za-z\s]+)(?:\?|$)`),
	regexp.MustCompile(`(?i)how\s+(?:hot|cold|warm)\s+is\s+(?:it\s+in\s+)?([A-Za-z\s]+)(?:\?|$)`),
	regexp.MustCompile(`(?i)what'?s\s+the\s+weather\s+(?:like\s+)?(?:in\s+)?([A-Za-z\s]+)(?:\?|$)`),
}

// IsWeatherQuestion 判断问题是否与天气相关（关键字子串匹配，不区分大小写）。
func IsWeatherQuestion(question string) bool {
	lower := strings.ToLower(question)
	for _, keyword := range weatherKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// ExtractLocation 从天气问题中提取地名。
func ExtractLocation(question string) (string, bool) {
	for _, pattern := range locationPatterns {
		match := pattern.FindStringSubmatch(question)
		if match == nil {
			continue
		}
		if location := strings.TrimSpace(match[1]); location != "" {
			return location, true
		}
	}
	return "", false
}
