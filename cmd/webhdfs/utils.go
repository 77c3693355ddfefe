package main

import "github.com/charmbracelet/lipgloss"

var (
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	header = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell   = lipgloss.NewStyle().Padding(0, 1)
)
