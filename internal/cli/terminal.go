// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for the chatdeck CLI.
//
// USABILITY: colors and markdown only when stdout is a terminal.
// Piped output stays plain so `chatdeck ask | less` and scripted use
// behave; NO_COLOR and CHATDECK_FORCE_COLOR are honored.
package cli

import (
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const defaultTerminalWidth = 80

// IsTTY reports whether stdin is a terminal. Interactive prompts
// (the chat REPL) require this.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY reports whether stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// GetTerminalWidth returns the stdout width, or 80 when it cannot be
// determined (pipes, CI).
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultTerminalWidth
	}
	return width
}

var (
	colorProfile     termenv.Profile
	colorProfileOnce sync.Once
)

// ColorsEnabled reports whether ANSI colors should be emitted.
// Precedence: CHATDECK_FORCE_COLOR > NO_COLOR > stdout TTY.
func ColorsEnabled() bool {
	if isEnvTruthy("CHATDECK_FORCE_COLOR") {
		return true
	}
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	return IsStdoutTTY()
}

// GetColorProfile returns the termenv profile for stdout, downgraded
// to Ascii when colors are disabled. Cached for the process lifetime.
func GetColorProfile() termenv.Profile {
	colorProfileOnce.Do(func() {
		if !ColorsEnabled() {
			colorProfile = termenv.Ascii
			return
		}
		colorProfile = termenv.ColorProfile()
	})
	return colorProfile
}

// CanPrompt reports whether interactive input is possible.
func CanPrompt() bool {
	return IsTTY() && IsStdoutTTY()
}

func isEnvTruthy(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	return v == "1" || v == "true" || v == "yes"
}
