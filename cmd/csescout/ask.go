package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BaSui01/csescout/agent"
	"github.com/BaSui01/csescout/agent/hierarchical"
	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 ask 命令
// =============================================================================

// runAsk 在终端运行一次查询，实时打印轨迹。返回进程退出码
func runAsk(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	quiet := fs.Bool("quiet", false, "Print only the final answer")
	verbose := fs.Bool("verbose", false, "Write component logs to stderr")
	timeout := fs.Duration("timeout", 5*time.Minute, "Abort the run after this duration")
	_ = fs.Parse(args)

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, `Usage: csescout ask [--config path] [--quiet] "<query>"`)
		return 2
	}

	cfg := loadConfig(*configPath)
	cfg.Log.OutputPaths = []string{"stderr"}
	if !*verbose {
		cfg.Log.Level = "warn"
	}
	logger, _ := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext(context.Background())
	defer stop()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		return 1
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			logger.Warn("failed to release resources", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	return askQuery(ctx, app, query, out, *quiet)
}

// askQuery 运行查询并写出轨迹与结果，失败时返回非零退出码
func askQuery(ctx context.Context, app *App, query string, out io.Writer, quiet bool) int {
	if err := app.Validator.Validate(query); err != nil {
		fmt.Fprintf(out, "✗ %s\n", errorMessage(err))
		return 2
	}

	var opts []hierarchical.RunOption
	if !quiet {
		opts = append(opts, hierarchical.WithTraceHandler(func(ev agent.TraceEvent) {
			if line := formatTraceEvent(ev); line != "" {
				fmt.Fprintln(out, line)
			}
		}))
	}

	ans, err := app.Scheduler.RunQuery(ctx, query, opts...)

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if rerr := app.RecordOutcome(recordCtx, ans, err); rerr != nil {
		app.logger.Warn("failed to record run", zap.Error(rerr))
	}

	if err != nil {
		if re, ok := hierarchical.AsRunError(err); ok {
			fmt.Fprintf(out, "✗ run %s ended with %s after %d step(s): %s\n", re.RunID, re.Outcome, re.Steps, errorMessage(re.Cause))
		} else {
			fmt.Fprintf(out, "✗ %v\n", err)
		}
		return 1
	}

	if !quiet {
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, ans.Text)
	return 0
}

// recordTimeout 终端退出前写入运行记录的上限
const recordTimeout = 5 * time.Second

// formatTraceEvent 把轨迹事件渲染成一行终端输出；不需要展示的事件返回空串
func formatTraceEvent(ev agent.TraceEvent) string {
	switch ev.Kind {
	case agent.TraceRunStarted:
		return fmt.Sprintf("▶ run %s", ev.RunID)
	case agent.TraceSupervisorDecision:
		if ev.Data["kind"] == string(hierarchical.DecisionFinish) {
			return "🧭 supervisor: FINISH"
		}
		return fmt.Sprintf("🧭 supervisor → %v", ev.Data["targets"])
	case agent.TraceRoutingRetry:
		return fmt.Sprintf("↻ supervisor re-prompted: %s", ev.Error)
	case agent.TraceWorkerStarted:
		return fmt.Sprintf("👷 [step %d] %s ← %s", ev.Step, ev.Actor, ev.Detail)
	case agent.TraceToolCall:
		return fmt.Sprintf("   🔧 %s.%s %s", ev.Actor, ev.Tool, ev.Detail)
	case agent.TraceToolResult:
		if ev.Error != "" {
			return fmt.Sprintf("   ⚠ %s failed: %s", ev.Tool, ev.Error)
		}
		return fmt.Sprintf("   ✓ %s %s", ev.Tool, ev.Detail)
	case agent.TraceWorkerCompleted:
		return fmt.Sprintf("📝 %s: %s", ev.Actor, ev.Detail)
	case agent.TraceGuardrail:
		if flagged, _ := ev.Data["flagged"].(bool); flagged {
			return fmt.Sprintf("🛡 guardrail appended the disclaimer (matched %v)", ev.Data["matches"])
		}
		return ""
	case agent.TraceRunFailed:
		return fmt.Sprintf("✗ run failed: %s", ev.Error)
	default:
		return ""
	}
}

func errorMessage(err error) string {
	if e, ok := types.AsError(err); ok {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return err.Error()
}
