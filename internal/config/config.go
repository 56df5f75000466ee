package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"llmflow/pkg/logger"
)

// Config 描述了 llmflow 在启动阶段需要加载的全部配置。
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Storage   StorageConfig   `yaml:"storage"`
	Weather   WeatherConfig   `yaml:"weather"`
	Queue     QueueConfig     `yaml:"queue"`
	Server    ServerConfig    `yaml:"server"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Log       logger.Config   `yaml:"log"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string             `yaml:"provider"`
	APIKey         string             `yaml:"api_key"`
	APIKeyEnv      string             `yaml:"api_key_env"`
	BaseURL        string             `yaml:"base_url"`
	Model          string             `yaml:"model"`
	TimeoutSeconds int                `yaml:"timeout_seconds"`
	Python         PythonBridgeConfig `yaml:"python_bridge"`
}

// Timeout 返回单次调用的超时时间。
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveAPIKey 优先使用显式配置的 key，其次读取环境变量。
func (c LLMConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	if c.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
}

// PythonBridgeConfig 描述通过外部脚本完成推理时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `yaml:"python_executable"`
	ScriptPath       string `yaml:"script_path"`
	WorkingDir       string `yaml:"working_dir"`
}

// StorageConfig 描述待办存储后端。
type StorageConfig struct {
	Todo TodoStoreConfig `yaml:"todo"`
}

// TodoStoreConfig 支持 file、redis 与 mysql 三种驱动。
type TodoStoreConfig struct {
	Driver                 string      `yaml:"driver"`
	File                   string      `yaml:"file"`
	DSN                    string      `yaml:"dsn"`
	Document               string      `yaml:"document"`
	MaxOpenConns           int         `yaml:"max_open_conns"`
	MaxIdleConns           int         `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int         `yaml:"conn_max_lifetime_seconds"`
	Redis                  RedisConfig `yaml:"redis"`
}

// ConnMaxLifetime 返回 MySQL 连接的最长存活时间，0 表示不限制。
func (c TodoStoreConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeSeconds) * time.Second
}

// RedisConfig 是 Redis 连接参数。
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	Queue    string `yaml:"queue"`
	// BlockWait 以秒为单位。
	BlockWait int `yaml:"block_wait"`
}

// WeatherConfig 配置地理编码与天气预报服务。
type WeatherConfig struct {
	GeocodeURL     string `yaml:"geocode_url"`
	ForecastURL    string `yaml:"forecast_url"`
	UserAgent      string `yaml:"user_agent"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout 返回 HTTP 请求超时时间。
func (c WeatherConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// QueueConfig 描述入站消息队列。
type QueueConfig struct {
	Driver   string         `yaml:"driver"`
	Size     int            `yaml:"size"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 队列参数。
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Queue      string `yaml:"queue"`
	Prefetch   int    `yaml:"prefetch"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ServerConfig 控制 API 服务的监听地址。
type ServerConfig struct {
	Address string `yaml:"address"`
}

// KnowledgeConfig 指向客服知识库 JSON 文件。
type KnowledgeConfig struct {
	Source     string `yaml:"source"`
	MaxResults int    `yaml:"max_results"`
}

// Load 解析指定路径的 YAML 配置文件。文件不存在时使用默认配置。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	var cfg Config
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// applyEnv 使用环境变量覆盖部分配置。
func (c *Config) applyEnv() {
	if key := strings.TrimSpace(os.Getenv("LLMFLOW_API_KEY")); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if file := strings.TrimSpace(os.Getenv("LLMFLOW_TODO_FILE")); file != "" {
		c.Storage.Todo.File = file
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.Python.PythonExecutable == "" {
		c.LLM.Python.PythonExecutable = "python3"
	}
	c.LLM.Python.WorkingDir = resolvePath(baseDir, c.LLM.Python.WorkingDir, baseDir)

	if c.Storage.Todo.Driver == "" {
		c.Storage.Todo.Driver = "file"
	}
	if c.Storage.Todo.File == "" {
		c.Storage.Todo.File = "todos.json"
	}
	if !filepath.IsAbs(c.Storage.Todo.File) {
		c.Storage.Todo.File = filepath.Join(baseDir, c.Storage.Todo.File)
	}
	if c.Storage.Todo.Document == "" {
		c.Storage.Todo.Document = "todos"
	}
	if c.Storage.Todo.Redis.Key == "" {
		c.Storage.Todo.Redis.Key = "llmflow:todos"
	}

	if c.Weather.GeocodeURL == "" {
		c.Weather.GeocodeURL = "https://nominatim.openstreetmap.org/search"
	}
	if c.Weather.ForecastURL == "" {
		c.Weather.ForecastURL = "https://api.open-meteo.com/v1/forecast"
	}
	if c.Weather.UserAgent == "" {
		c.Weather.UserAgent = "WeatherApp/1.0"
	}
	if c.Weather.TimeoutSeconds <= 0 {
		c.Weather.TimeoutSeconds = 10
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Size <= 0 {
		c.Queue.Size = 64
	}

	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Knowledge.Source != "" {
		c.Knowledge.Source = resolvePath(baseDir, c.Knowledge.Source, "")
	}
	if c.Knowledge.MaxResults <= 0 {
		c.Knowledge.MaxResults = 3
	}
}

func resolvePath(baseDir, value, fallback string) string {
	if value == "" {
		return fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}
