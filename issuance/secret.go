package issuance

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// SecretProvider supplies the bundle password when the run configuration
// does not carry one.
type SecretProvider interface {
	ObtainBundlePassword() (string, error)
}

// StaticSecret returns a fixed password.
type StaticSecret string

func (s StaticSecret) ObtainBundlePassword() (string, error) {
	return string(s), nil
}

// PromptSecret collects the password interactively and requires two
// matching non-empty entries before accepting one.
type PromptSecret struct {
	Prompt func(label string) (string, error)
}

func (p *PromptSecret) ObtainBundlePassword() (string, error) {
	for {
		first, err := p.Prompt("Bundle password: ")
		if err != nil {
			return "", err
		}
		if first == "" {
			slog.Warn("Password must not be empty")
			continue
		}
		second, err := p.Prompt("Confirm bundle password: ")
		if err != nil {
			return "", err
		}
		if first == second {
			return first, nil
		}
		slog.Warn("Passwords do not match, try again")
	}
}

// TerminalPrompt reads a password from the controlling terminal without
// echo.
func TerminalPrompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Confirmer asks for go-ahead before a challenge is finalized.
type Confirmer interface {
	Confirm(domain, instructions string) bool
}

// AutoConfirm proceeds without asking.
type AutoConfirm struct{}

func (AutoConfirm) Confirm(string, string) bool { return true }

// TerminalConfirm asks on the terminal and accepts y/yes.
type TerminalConfirm struct {
	In io.Reader
}

func (t TerminalConfirm) Confirm(domain, instructions string) bool {
	in := t.In
	if in == nil {
		in = os.Stdin
	}
	fmt.Fprintf(os.Stderr, "Proceed with challenge for %s? [y/N] ", domain)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
