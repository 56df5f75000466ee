package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Provider 定义客服知识库的检索接口。
type Provider interface {
	Query(text string) []Snippet
	All() []Snippet
}

// Snippet 是一条客服知识。
type Snippet struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// StaticProvider 通过加载 JSON 文件提供静态知识检索能力。
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

// NewStaticProvider 创建静态知识库实例。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{
		items:      items,
		maxResults: maxResults,
	}
}

// LoadStaticProvider 从 JSON 文件加载知识条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析知识库路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	defer file.Close()

	var entries []Snippet
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析知识库文件失败: %w", err)
	}

	return NewStaticProvider(entries, maxResults), nil
}

// Query 按关键字与标签做子串匹配，最多返回 maxResults 条。
func (p *StaticProvider) Query(text string) []Snippet {
	if p == nil {
		return nil
	}

	text = strings.ToLower(strings.TrimSpace(text))
	results := make([]Snippet, 0, p.maxResults)
	for _, item := range p.items {
		if matches(item, text) {
			results = append(results, item)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

// All 返回全部知识条目。
func (p *StaticProvider) All() []Snippet {
	if p == nil {
		return nil
	}
	return slices.Clone(p.items)
}

// matches 判断条目是否与文本相关。没有关键字的条目视为通用条目。
func matches(snippet Snippet, text string) bool {
	if len(snippet.Keywords) == 0 {
		return true
	}
	return containsAny(text, snippet.Keywords) || containsAny(text, snippet.Tags)
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		normalized := strings.ToLower(strings.TrimSpace(term))
		if normalized != "" && strings.Contains(text, normalized) {
			return true
		}
	}
	return false
}

var _ Provider = (*StaticProvider)(nil)
