package main

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"llmflow/internal/config"
	"llmflow/pkg/logger"
)

const usage = `Usage: llmflow [--config path] [--quiet] <command> [args]

Commands:
  add <task>                 Add a new task
  complete <id>              Mark a task as completed
  delete <id>                Delete a task
  list [--all|--completed]   List tasks
  process <message>          Process a message and route it
  validate <text>            Check a calendar request in parallel
  chain <text>               Turn a calendar request into a confirmation
  ask <prompt>               Answer with the help of registered tools
  serve                      Start the HTTP API and the inbox processor
`

// main 是 llmflow 命令行的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("llmflow", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)
	flags.Usage = func() { fmt.Fprint(stderr, usage) }

	configPath := flags.String("config", defaultConfigPath(), "配置文件路径")
	quiet := flags.Bool("quiet", false, "只输出错误日志")
	if err := flags.Parse(args); err != nil {
		if stdErrors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	rest := flags.Args()
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return 1
	}
	if *quiet {
		cfg.Log.Level = "error"
	}
	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintf(stderr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	a := newApp(cfg, stdout)
	defer a.close()

	if err := a.execute(ctx, rest[0], rest[1:]); err != nil {
		if stdErrors.Is(err, errUsage) {
			fmt.Fprint(stderr, usage)
			return 2
		}
		if stdErrors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "llmflow %s 失败: %v\n", rest[0], err)
		return 1
	}
	return 0
}

func defaultConfigPath() string {
	if path := strings.TrimSpace(os.Getenv("LLMFLOW_CONFIG")); path != "" {
		return path
	}
	return filepath.Join("configs", "llmflow.yaml")
}
