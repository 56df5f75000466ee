package todo

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record 是一条待办事项。Completed 为 true 时 CompletedAt 必然非空。
type Record struct {
	ID          int        `json:"id"`
	Task        string     `json:"task"`
	CreatedAt   Timestamp  `json:"created_at"`
	Completed   bool       `json:"completed"`
	CompletedAt *Timestamp `json:"completed_at"`
}

// Timestamp 以 ISO-8601 字符串形式序列化的时间。
type Timestamp struct {
	time.Time
}

// 读取时兼容的无时区格式，按本地时间解析。小数秒部分可有可无。
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NewTimestamp 包装一个时间值。
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON 实现 json.Marshaler。
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// UnmarshalJSON 实现 json.Unmarshaler。
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("时间字段必须是字符串: %w", err)
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTimestamp 解析 RFC 3339 或不带时区的 ISO-8601 时间。
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed, nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间 %q", raw)
}

// DisplayTime 以 YYYY-MM-DD HH:MM 格式输出时间。
func DisplayTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

// Describe 按列表格式输出一条记录。首行形如 "3. [✓] Buy milk"，
// 第二行缩进三格，形如 "Created: 2024-05-01 09:30 | Completed: 2024-05-01 18:00"。
func (r Record) Describe() string {
	mark := "□"
	completed := "N/A"
	if r.Completed {
		mark = "✓"
		if r.CompletedAt != nil {
			completed = DisplayTime(r.CompletedAt.Time)
		}
	}
	return fmt.Sprintf("%d. [%s] %s\n   Created: %s | Completed: %s",
		r.ID, mark, r.Task, DisplayTime(r.CreatedAt.Time), completed)
}

// decodeRecords 解析持久化文档。completed 与 completed_at 不一致的单条记录会被修正：
// 已完成却缺少完成时间的，以创建时间补齐；未完成却带有完成时间的，清空完成时间。
func decodeRecords(data []byte) ([]Record, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("解析待办数据失败: %w", err)
	}
	for i := range records {
		switch {
		case records[i].Completed && records[i].CompletedAt == nil:
			completedAt := records[i].CreatedAt
			records[i].CompletedAt = &completedAt
		case !records[i].Completed:
			records[i].CompletedAt = nil
		}
	}
	return records, nil
}

func encodeRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化待办数据失败: %w", err)
	}
	return data, nil
}
