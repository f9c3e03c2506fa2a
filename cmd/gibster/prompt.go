package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const passwordEnv = "GIBSTER_PASSWORD"

type credentials struct {
	email        string
	passwordFile string
}

// readInput читает строку из in
func readInput(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && !(err == io.EOF && input != "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// readPassword reads without echo when in is a terminal.
func readPassword(in io.Reader, out io.Writer, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, prompt)
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	return readInput(in, out, prompt)
}

// resolve fills in the email and password. Password sources by priority:
// environment, file, interactive prompt.
func (c credentials) resolve(in io.Reader, out io.Writer) (string, string, error) {
	email := strings.TrimSpace(c.email)
	if email == "" {
		var err error
		if email, err = readInput(in, out, "Email: "); err != nil {
			return "", "", fmt.Errorf("failed to read email: %w", err)
		}
	}
	if email == "" {
		return "", "", fmt.Errorf("email cannot be empty")
	}

	if pw := os.Getenv(passwordEnv); pw != "" {
		return email, pw, nil
	}

	if c.passwordFile != "" {
		content, err := os.ReadFile(c.passwordFile)
		if err != nil {
			return "", "", fmt.Errorf("failed to read password file: %w", err)
		}
		pw := strings.TrimSpace(string(content))
		if pw == "" {
			return "", "", fmt.Errorf("password file is empty")
		}
		return email, pw, nil
	}

	pw, err := readPassword(in, out, "Password: ")
	if err != nil {
		return "", "", fmt.Errorf("failed to read password: %w", err)
	}
	if pw == "" {
		return "", "", fmt.Errorf("password cannot be empty")
	}
	return email, pw, nil
}
