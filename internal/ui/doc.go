// Package ui renders command-line output: lipgloss status colours, batch progress lines and
// result tables.
//
// Nothing here is interactive. Output degrades to plain text when the terminal has no colour
// support.
package ui
