package execution

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const CPUProvider = "CPUExecutionProvider"

// StaticProviders reports a fixed availability list, best first.
type StaticProviders []string

func (s StaticProviders) AvailableProviders(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// CommandProviders asks the inference runtime for its providers by running a
// command that prints one provider name per line.
type CommandProviders struct {
	Name string
	Args []string
}

// NewCommandProviders splits a shell-like command line on whitespace.
func NewCommandProviders(commandLine string) *CommandProviders {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return &CommandProviders{}
	}
	return &CommandProviders{Name: fields[0], Args: fields[1:]}
}

func (c *CommandProviders) AvailableProviders(ctx context.Context) ([]string, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("provider query command is empty")
	}
	out, err := exec.CommandContext(ctx, c.Name, c.Args...).Output()
	if err != nil {
		return nil, fmt.Errorf("query providers with %s: %w", c.Name, err)
	}
	return parseProviderList(string(out)), nil
}

// parseProviderList accepts newline, comma or python-list style output.
func parseProviderList(out string) []string {
	var providers []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		for _, field := range strings.FieldsFunc(scanner.Text(), func(r rune) bool {
			return r == ',' || r == '[' || r == ']' || r == ' ' || r == '\t'
		}) {
			field = strings.Trim(field, `'"`)
			if field != "" {
				providers = append(providers, field)
			}
		}
	}
	return providers
}
