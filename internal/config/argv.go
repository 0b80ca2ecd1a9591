package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// parseWorkerCommand splits a worker.cmd string into argv with shell-like
// quoting and backslash escapes. A leading "~/" in the binary expands to the
// home directory. Blank or "#"-commented input yields no argv.
func parseWorkerCommand(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var (
		argv     []string
		word     strings.Builder
		inWord   bool
		quote    rune
		quoteCol int
		escaped  bool
	)

	for i, r := range []rune(input) {
		col := i + 1
		switch {
		case escaped:
			word.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped, inWord = true, true
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			word.WriteRune(r)
		case r == '\'' || r == '"':
			quote, quoteCol, inWord = r, col, true
		case unicode.IsSpace(r):
			if inWord {
				argv = append(argv, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	switch {
	case escaped:
		return nil, fmt.Errorf("worker.cmd: unterminated escape sequence at end of %q", input)
	case quote != 0:
		return nil, fmt.Errorf("worker.cmd: unterminated quote %q opened at column %d", quote, quoteCol)
	}
	if inWord {
		argv = append(argv, word.String())
	}
	if len(argv) == 0 {
		return nil, nil
	}

	if rest, ok := strings.CutPrefix(argv[0], "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			argv[0] = filepath.Join(home, rest)
		}
	}
	return argv, nil
}

func mustParseWorkerCommand(input string) []string {
	argv, err := parseWorkerCommand(input)
	if err != nil {
		panic(err)
	}
	return argv
}
