package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/mangax/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// interface Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func (p *Palette) On(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Background(c).Render(s)
}

func (p *Palette) As(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

// status returns the style for a match status.
func (p *Palette) status(st models.MatchStatus) lipgloss.Style {
	switch st {
	case models.StatusMatched, models.StatusManual:
		return p.ok
	case models.StatusConflict:
		return p.warn
	case models.StatusSkipped:
		return p.help
	default:
		return lipgloss.NewStyle()
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func Title(s string) string   { return styles.title.Render(s) }
func Success(s string) string { return styles.ok.Render(s) }
func Error(s string) string   { return styles.err.Render(s) }
func Warning(s string) string { return styles.warn.Render(s) }
func Help(s string) string    { return styles.help.Render(s) }

// Status renders st in its colour.
func Status(st models.MatchStatus) string {
	return styles.status(st).Render(string(st))
}

var _ Painter = (*Palette)(nil)
