package main

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"llmflow/internal/api"
	"llmflow/internal/chain"
	"llmflow/internal/config"
	xerrors "llmflow/internal/errors"
	"llmflow/internal/inbox"
	"llmflow/internal/knowledge"
	"llmflow/internal/llm"
	"llmflow/internal/llm/openai"
	"llmflow/internal/llm/pythonbridge"
	"llmflow/internal/router"
	"llmflow/internal/todo"
	"llmflow/internal/toolcall"
	"llmflow/internal/validation"
	"llmflow/internal/weather"
	"llmflow/pkg/logger"
)

var errUsage = stdErrors.New("usage")

// app 按需构建各命令依赖的组件，避免待办命令也要求配置大模型。
type app struct {
	cfg    *config.Config
	out    io.Writer
	client llm.Client
	store  *todo.Store
	log    *slog.Logger
}

func newApp(cfg *config.Config, out io.Writer) *app {
	return &app{cfg: cfg, out: out, log: logger.Named("cli")}
}

func (a *app) execute(ctx context.Context, command string, args []string) error {
	switch command {
	case "add":
		return a.add(ctx, args)
	case "complete":
		return a.complete(ctx, args)
	case "delete":
		return a.remove(ctx, args)
	case "list":
		return a.list(ctx, args)
	case "process":
		return a.process(ctx, args)
	case "validate":
		return a.validate(ctx, args)
	case "chain":
		return a.chain(ctx, args)
	case "ask":
		return a.ask(ctx, args)
	case "serve":
		return a.serve(ctx, args)
	default:
		return errUsage
	}
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("关闭待办存储失败", slog.Any("error", err))
		}
	}
}

func (a *app) llmClient() (llm.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	cfg := a.cfg.LLM
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err := openai.NewClient(openai.Config{
			APIKey:  cfg.ResolveAPIKey(),
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		a.client = client
	case "python_bridge", "python":
		script := pythonbridge.ResolveScriptPath(cfg.Python.WorkingDir, cfg.Python.ScriptPath)
		client, err := pythonbridge.NewClient(cfg.Python.PythonExecutable, script, cfg.Python.WorkingDir, cfg.Model)
		if err != nil {
			return nil, err
		}
		a.client = client
	default:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, fmt.Sprintf("未知的大模型提供方: %s", cfg.Provider))
	}
	return a.client, nil
}

func (a *app) todoStore(ctx context.Context) (*todo.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	backend, err := todo.NewBackend(ctx, a.cfg.Storage.Todo)
	if err != nil {
		return nil, err
	}
	a.store = todo.Open(ctx, backend)
	return a.store, nil
}

func (a *app) dispatcher(ctx context.Context) (*router.Dispatcher, error) {
	client, err := a.llmClient()
	if err != nil {
		return nil, err
	}
	store, err := a.todoStore(ctx)
	if err != nil {
		return nil, err
	}
	pipeline := weather.NewPipeline(a.cfg.Weather)
	return router.NewDispatcher(client, store, pipeline, router.WithLLMTimeout(a.cfg.LLM.Timeout())), nil
}

// joinArgs 把剩余参数拼成一段文本，未加引号的多个单词也能作为一条消息。
func joinArgs(args []string) (string, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return "", errUsage
	}
	return text, nil
}

func parseID(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errUsage
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("无效的任务 ID: %s", args[0]))
	}
	return id, nil
}

func (a *app) printSaveWarning(res todo.Result) {
	if !res.Persisted {
		fmt.Fprintln(a.out, "Warning: task could not be saved to storage")
	}
}

func (a *app) add(ctx context.Context, args []string) error {
	text, err := joinArgs(args)
	if err != nil {
		return err
	}
	store, err := a.todoStore(ctx)
	if err != nil {
		return err
	}
	res := store.Add(ctx, text)
	fmt.Fprintf(a.out, "Added task: %s (ID: %d)\n", res.Record.Task, res.Record.ID)
	a.printSaveWarning(res)
	return nil
}

func (a *app) complete(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	store, err := a.todoStore(ctx)
	if err != nil {
		return err
	}
	res, err := store.Complete(ctx, id)
	if stdErrors.Is(err, todo.ErrTodoNotFound) {
		fmt.Fprintf(a.out, "No task found with ID %d\n", id)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Marked task as completed: %s\n", res.Record.Task)
	a.printSaveWarning(res)
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	store, err := a.todoStore(ctx)
	if err != nil {
		return err
	}
	res, ok := store.Delete(ctx, id)
	if !ok {
		fmt.Fprintf(a.out, "No task found with ID %d\n", id)
		return nil
	}
	fmt.Fprintf(a.out, "Deleted task with ID %d\n", id)
	a.printSaveWarning(res)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	all := flags.Bool("all", false, "显示全部任务")
	completed := flags.Bool("completed", false, "只显示已完成任务")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}

	store, err := a.todoStore(ctx)
	if err != nil {
		return err
	}

	var records []todo.Record
	switch {
	case *completed:
		fmt.Fprintln(a.out, "Completed Tasks:")
		records = store.CompletedOnly()
	case *all:
		fmt.Fprintln(a.out, "All Tasks:")
		records = store.All()
	default:
		fmt.Fprintln(a.out, "Active Tasks:")
		records = store.Active()
	}

	if len(records) == 0 {
		fmt.Fprintln(a.out, "No items in the to-do list.")
		return nil
	}
	for _, record := range records {
		fmt.Fprintln(a.out, record.Describe())
	}
	return nil
}

func (a *app) process(ctx context.Context, args []string) error {
	message, err := joinArgs(args)
	if err != nil {
		return err
	}
	dispatcher, err := a.dispatcher(ctx)
	if err != nil {
		return err
	}
	reply, err := dispatcher.Process(ctx, message)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, reply)
	return nil
}

func (a *app) validate(ctx context.Context, args []string) error {
	text, err := joinArgs(args)
	if err != nil {
		return err
	}
	client, err := a.llmClient()
	if err != nil {
		return err
	}
	verdict, err := validation.New(client).Validate(ctx, text)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Calendar request: %t (confidence %.2f)\n",
		verdict.Calendar.IsCalendarRequest, verdict.Calendar.ConfidenceScore)
	fmt.Fprintf(a.out, "Safe: %t\n", verdict.Security.IsSafe)
	if len(verdict.Security.RiskFlags) > 0 {
		fmt.Fprintf(a.out, "Risk flags: %s\n", strings.Join(verdict.Security.RiskFlags, ", "))
	}
	fmt.Fprintf(a.out, "Valid: %t\n", verdict.Valid)
	return nil
}

func (a *app) chain(ctx context.Context, args []string) error {
	text, err := joinArgs(args)
	if err != nil {
		return err
	}
	client, err := a.llmClient()
	if err != nil {
		return err
	}
	confirmation, err := chain.New(client).Run(ctx, text)
	if err != nil {
		return err
	}
	if confirmation == nil {
		fmt.Fprintln(a.out, "This doesn't appear to be a calendar event request.")
		return nil
	}
	fmt.Fprintln(a.out, confirmation.ConfirmationMessage)
	return nil
}

func (a *app) ask(ctx context.Context, args []string) error {
	prompt, err := joinArgs(args)
	if err != nil {
		return err
	}
	client, err := a.llmClient()
	if err != nil {
		return err
	}

	pipeline := weather.NewPipeline(a.cfg.Weather)
	runner := toolcall.NewRunner(client, toolcall.NewWeatherTool(pipeline.Forecaster()))
	if a.cfg.Knowledge.Source != "" {
		provider, err := knowledge.LoadStaticProvider(a.cfg.Knowledge.Source, a.cfg.Knowledge.MaxResults)
		if err != nil {
			return err
		}
		runner.Register(toolcall.NewCustomerServiceTool(provider))
	}

	answer, err := runner.Ask(ctx, prompt)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, answer)
	return nil
}

func (a *app) serve(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return errUsage
	}
	dispatcher, err := a.dispatcher(ctx)
	if err != nil {
		return err
	}

	queue, err := inbox.NewQueue(ctx, a.cfg.Queue)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			a.log.Warn("关闭消息队列失败", slog.Any("error", err))
		}
	}()

	processor := inbox.NewProcessor(dispatcher, queue,
		inbox.WithMessageTimeout(a.cfg.LLM.Timeout()*2),
		inbox.WithOutcomeHook(a.logOutcome),
	)
	server := api.NewServer(a.cfg.Server.Address, dispatcher, a.store, api.WithInbox(queue))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return processor.Start(groupCtx)
	})
	group.Go(func() error {
		return server.Start(groupCtx)
	})

	if err := group.Wait(); err != nil && !stdErrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *app) logOutcome(outcome inbox.Outcome) {
	if outcome.Err != nil {
		return
	}
	a.log.Info("异步消息已处理",
		slog.String("id", outcome.Envelope.ID),
		slog.String("response", outcome.Response),
		slog.Duration("duration", outcome.Duration.Round(time.Millisecond)))
}
