// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Terminal abstracts the prompts the wipe confirmation workflow needs,
// so tests can substitute a scripted fake instead of a real TTY.
type Terminal interface {
	ReadLine(prompt string) (string, error)
	ReadSecret(prompt string) (string, error)
}

// DefaultTerminal implements Terminal against a real reader/writer pair.
type DefaultTerminal struct {
	In  *bufio.Reader
	Out io.Writer
	raw io.Reader
}

// NewDefaultTerminal wraps in/out for interactive use.
func NewDefaultTerminal(in io.Reader, out io.Writer) *DefaultTerminal {
	return &DefaultTerminal{In: bufio.NewReader(in), Out: out, raw: in}
}

func (t *DefaultTerminal) ReadLine(prompt string) (string, error) {
	_, _ = fmt.Fprint(t.Out, prompt)
	line, err := t.In.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ReadSecret prompts for a value without echoing it. Falls back to a
// plain line read when the input isn't a real TTY, so piped/scripted
// input still works.
func (t *DefaultTerminal) ReadSecret(prompt string) (string, error) {
	_, _ = fmt.Fprint(t.Out, prompt)

	if f, ok := t.raw.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(t.Out)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}

	line, err := t.In.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
