package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/widgetd/internal/client"
	"github.com/GriffinCanCode/widgetd/internal/ipc"
	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

const usage = `usage: widgetctl [-addr url] [-timeout d] <command> [args]

commands:
  stats
  list [widget_id] [limit]
  get <widget_id> <instance_id>
  create <widget_id>
  launch <widget_id> [instance_id] [width height]
  terminate <widget_id> <instance_id>
  destroy <widget_id> <instance_id>
  resize <widget_id> <instance_id> <width> <height>
  update <widget_id> <instance_id> [force]
  period <widget_id> <instance_id> <seconds>
  emit <widget_id> <instance_id> <event_code> [content_json]
  log-level [level]
`

func main() {
	addr := flag.String("addr", envOr("WIDGETD_ADDR", "http://127.0.0.1:8710"), "widgetd base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := client.New(*addr, *timeout)
	out, err := run(context.Background(), c, args[0], args[1:])
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.InstanceID != "" {
			fmt.Fprintf(os.Stderr, "error: %v (instance %s)\n", err, apiErr.InstanceID)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
	if out != nil {
		data, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) (any, error) {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: expected %d arguments\n%s", cmd, n, usage)
		}
		return nil
	}

	switch cmd {
	case "stats":
		return c.Stats(ctx)
	case "list":
		widgetID, limit := "", 0
		if len(args) > 0 {
			widgetID = args[0]
		}
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, fmt.Errorf("limit: %w", err)
			}
			limit = n
		}
		return c.List(ctx, widgetID, limit)
	case "get":
		if err := need(2); err != nil {
			return nil, err
		}
		return c.Get(ctx, args[0], args[1])
	case "create":
		if err := need(1); err != nil {
			return nil, err
		}
		id, err := c.Create(ctx, args[0])
		return map[string]string{"instance_id": id}, err
	case "launch":
		if err := need(1); err != nil {
			return nil, err
		}
		opts := client.LaunchOptions{}
		rest := args[1:]
		if len(rest) == 1 || len(rest) == 3 {
			opts.InstanceID = rest[0]
			rest = rest[1:]
		}
		if len(rest) == 2 {
			w, h, err := size(rest[0], rest[1])
			if err != nil {
				return nil, err
			}
			opts.Width, opts.Height = w, h
		}
		return c.Launch(ctx, args[0], opts)
	case "terminate":
		if err := need(2); err != nil {
			return nil, err
		}
		return nil, c.Terminate(ctx, args[0], args[1])
	case "destroy":
		if err := need(2); err != nil {
			return nil, err
		}
		return nil, c.Destroy(ctx, args[0], args[1])
	case "resize":
		if err := need(4); err != nil {
			return nil, err
		}
		w, h, err := size(args[2], args[3])
		if err != nil {
			return nil, err
		}
		return nil, c.Resize(ctx, args[0], args[1], w, h)
	case "update":
		if err := need(2); err != nil {
			return nil, err
		}
		force := len(args) > 2 && args[2] == "force"
		return nil, c.Update(ctx, args[0], args[1], nil, force)
	case "period":
		if err := need(3); err != nil {
			return nil, err
		}
		p, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, fmt.Errorf("period: %w", err)
		}
		return nil, c.Period(ctx, args[0], args[1], p)
	case "emit":
		if err := need(3); err != nil {
			return nil, err
		}
		env := types.Bundle{
			ipc.KeyWidgetID:   args[0],
			ipc.KeyInstanceID: args[1],
			ipc.KeyStatus:     args[2],
		}
		if len(args) > 3 {
			env[ipc.KeyContentInfo] = args[3]
		}
		return nil, c.Emit(ctx, env)
	case "log-level":
		if len(args) > 0 {
			if err := c.SetLogLevel(ctx, args[0]); err != nil {
				return nil, err
			}
		}
		level, err := c.LogLevel(ctx)
		return map[string]string{"level": level}, err
	default:
		return nil, fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func size(w, h string) (int, int, error) {
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("width: %w", err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("height: %w", err)
	}
	return width, height, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
