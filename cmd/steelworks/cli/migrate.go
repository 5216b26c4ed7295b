package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/steelworks-erp/steelworks/internal/platform/migrate"
)

// Migrations is the subset of migrate.Migrator the CLI drives.
type Migrations interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
}

var _ Migrations = (*migrate.Migrator)(nil)

// RunMigrate executes `migrate up|down|version|steps N|force N` and returns the exit code.
func RunMigrate(m Migrations, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: steelworks migrate up | down | version | steps <n> | force <version>")
		return 2
	}
	var err error
	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		var version uint
		var dirty bool
		version, dirty, err = m.Version()
		if err == nil {
			fmt.Fprintf(stdout, "version=%d dirty=%t\n", version, dirty)
		}
	case "steps", "force":
		if len(args) != 2 {
			fmt.Fprintf(stderr, "usage: steelworks migrate %s <n>\n", args[0])
			return 2
		}
		n, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			fmt.Fprintf(stderr, "migrate %s: %q is not an integer\n", args[0], args[1])
			return 2
		}
		if args[0] == "steps" {
			err = m.Steps(n)
		} else {
			err = m.Force(n)
		}
	default:
		fmt.Fprintf(stderr, "migrate: unknown command %q\n", args[0])
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "migrate %s: %v\n", args[0], err)
		return 1
	}
	return 0
}
