package migration

import (
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// ErrUsage reports a command line the migrate tool cannot run.
var ErrUsage = errors.New("invalid migrate command")

// Command is one parsed migrate invocation.
type Command struct {
	Name string
	N    int
}

// NeedsDatabase is false only for commands that read the directory alone.
func (c Command) NeedsDatabase() bool {
	return c.Name != "list"
}

// ParseCommand validates args as "<command> [n]".
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("%w: missing command", ErrUsage)
	}
	cmd := Command{Name: args[0]}
	switch cmd.Name {
	case "up", "down", "version", "status", "list":
		return cmd, nil
	case "step", "force":
		if len(args) < 2 {
			return Command{}, fmt.Errorf("%w: %s needs a number", ErrUsage, cmd.Name)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return Command{}, fmt.Errorf("%w: %s %q is not a number", ErrUsage, cmd.Name, args[1])
		}
		if cmd.Name == "step" && n == 0 {
			return Command{}, fmt.Errorf("%w: step needs a non-zero count", ErrUsage)
		}
		if cmd.Name == "force" && n < 0 {
			return Command{}, fmt.Errorf("%w: force needs a version >= 0", ErrUsage)
		}
		cmd.N = n
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%w: unknown command %q", ErrUsage, cmd.Name)
	}
}

// Run executes a database command against m.
func (m *Migrator) Run(cmd Command) error {
	switch cmd.Name {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "step":
		return m.Steps(cmd.N)
	case "force":
		return m.Force(cmd.N)
	case "version", "status":
		st, err := m.Status()
		if err != nil {
			return err
		}
		fields := []zap.Field{zap.Uint("version", st.Version), zap.Bool("dirty", st.Dirty)}
		if cmd.Name == "status" {
			pending := make([]string, len(st.Pending))
			for i, p := range st.Pending {
				pending[i] = fmt.Sprintf("%06d_%s", p.Version, p.Identifier)
			}
			fields = append(fields, zap.Strings("pending", pending))
		}
		m.logger.Info("Schema version", fields...)
		return nil
	default:
		return fmt.Errorf("%w: %q does not run against a database", ErrUsage, cmd.Name)
	}
}
