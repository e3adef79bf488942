package pipeline

import (
	"strings"

	"github.com/Norgate-AV/pharpack/internal/config"
)

// ShellCommand is an external tool invocation
type ShellCommand struct {
	Path string
	Args []string
}

func (c ShellCommand) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// CloneCommand clones the repository into the current directory
func CloneCommand(cfg *config.Config) ShellCommand {
	return ShellCommand{
		Path: cfg.GitPath,
		Args: []string{"clone", cfg.Repository, "."},
	}
}

// CheckoutCommand switches the clone to the release tag
func CheckoutCommand(cfg *config.Config) ShellCommand {
	return ShellCommand{
		Path: cfg.GitPath,
		Args: []string{"checkout", "tags/" + cfg.Version},
	}
}

// InstallCommand installs the project's dependencies
func InstallCommand(cfg *config.Config) ShellCommand {
	var args []string
	args = append(args, "update")

	for _, flag := range cfg.ComposerFlags {
		if flag != "" {
			args = append(args, flag)
		}
	}

	return ShellCommand{
		Path: cfg.ComposerPath,
		Args: args,
	}
}
