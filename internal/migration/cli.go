package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
)

// CLI 迁移命令的终端输出层，供 `csescout migrate <command>` 使用
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// NewCLI 创建 CLI
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, out: os.Stdout}
}

// SetOutput 设置输出
func (c *CLI) SetOutput(w io.Writer) { c.out = w }

// Commands 支持的子命令
var Commands = []string{"up", "down", "down-all", "steps", "goto", "force", "version", "status", "info"}

// Run 按命令名分发。steps/goto/force 需要一个数字参数
func (c *CLI) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "up":
		return c.RunUp(ctx)
	case "down":
		return c.RunDown(ctx)
	case "down-all":
		return c.RunDownAll(ctx)
	case "version":
		return c.RunVersion(ctx)
	case "status":
		return c.RunStatus(ctx)
	case "info":
		return c.RunInfo(ctx)
	case "steps", "goto", "force":
		if len(args) != 1 {
			return fmt.Errorf("migrate %s requires exactly one numeric argument", command)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("migrate %s: invalid number %q", command, args[0])
		}
		switch command {
		case "steps":
			return c.RunSteps(ctx, n)
		case "goto":
			if n < 0 {
				return fmt.Errorf("migrate goto: version must not be negative")
			}
			return c.RunGoto(ctx, uint(n))
		default:
			return c.RunForce(ctx, n)
		}
	default:
		return fmt.Errorf("unknown migrate command %q (want one of %v)", command, Commands)
	}
}

func (c *CLI) RunUp(ctx context.Context) error {
	fmt.Fprintln(c.out, "Applying pending migrations...")
	if err := c.migrator.Up(ctx); err != nil {
		return err
	}
	return c.printVersion(ctx, "Done.")
}

func (c *CLI) RunDown(ctx context.Context) error {
	fmt.Fprintln(c.out, "Rolling back the last migration...")
	if err := c.migrator.Down(ctx); err != nil {
		return err
	}
	return c.printVersion(ctx, "Done.")
}

func (c *CLI) RunDownAll(ctx context.Context) error {
	fmt.Fprintln(c.out, "Rolling back all migrations...")
	if err := c.migrator.DownAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "All migrations rolled back.")
	return nil
}

func (c *CLI) RunSteps(ctx context.Context, n int) error {
	if n >= 0 {
		fmt.Fprintf(c.out, "Applying %d migration(s)...\n", n)
	} else {
		fmt.Fprintf(c.out, "Rolling back %d migration(s)...\n", -n)
	}
	if err := c.migrator.Steps(ctx, n); err != nil {
		return err
	}
	return c.printVersion(ctx, "Done.")
}

func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	fmt.Fprintf(c.out, "Migrating to version %d...\n", version)
	if err := c.migrator.Goto(ctx, version); err != nil {
		return err
	}
	return c.printVersion(ctx, "Done.")
}

func (c *CLI) RunForce(ctx context.Context, version int) error {
	if err := c.migrator.Force(ctx, version); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Version forced to %d.\n", version)
	return nil
}

func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Fprintln(c.out, "No migrations applied yet.")
		return nil
	}
	if dirty {
		fmt.Fprintf(c.out, "Current version: %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(c.out, "Current version: %d\n", version)
	return nil
}

func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.out, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	return w.Flush()
}

func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Current version:  %d\n", info.CurrentVersion)
	fmt.Fprintf(c.out, "Dirty:            %v\n", info.Dirty)
	fmt.Fprintf(c.out, "Applied/Total:    %d/%d\n", info.AppliedMigrations, info.TotalMigrations)
	fmt.Fprintf(c.out, "Pending:          %d\n", info.PendingMigrations)
	return nil
}

func (c *CLI) printVersion(ctx context.Context, prefix string) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s Current version: %d\n", prefix, info.CurrentVersion)
	return nil
}
