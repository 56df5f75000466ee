package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"llmflow/sdk/go/llmflow"
)

// 示例：向运行中的 llmflow serve 发送消息并列出待办。
func main() {
	addr := flag.String("addr", "http://localhost:8080", "llmflow API 地址")
	message := flag.String("message", "Buy milk tomorrow", "要发送的消息")
	flag.Parse()

	client, err := llmflow.NewClient(*addr, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reply, err := client.SendMessage(ctx, *message)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(reply)

	todos, err := client.ListTodos(ctx, llmflow.FilterAll)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, item := range todos {
		mark := "□"
		if item.Completed {
			mark = "✓"
		}
		fmt.Printf("%d. [%s] %s\n", item.ID, mark, item.Task)
	}
}
