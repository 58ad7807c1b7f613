package logger

import (
	"strings"

	"github.com/fatih/color"

	"github.com/harrison/packrat/internal/models"
)

// colorScheme holds the colors used for console output.
type colorScheme struct {
	header  *color.Color
	success *color.Color
	skipped *color.Color
	failure *color.Color
	levels  map[string]*color.Color
}

func newColorScheme() *colorScheme {
	return &colorScheme{
		header:  color.New(color.Bold),
		success: color.New(color.FgGreen),
		skipped: color.New(color.FgYellow),
		failure: color.New(color.FgRed),
		levels: map[string]*color.Color{
			"TRACE": color.New(color.FgHiBlack),
			"DEBUG": color.New(color.FgCyan),
			"INFO":  color.New(color.FgBlue),
			"WARN":  color.New(color.FgYellow),
			"ERROR": color.New(color.FgRed),
		},
	}
}

// level colors a level label; unknown labels pass through.
func (s *colorScheme) level(label string) string {
	if c, ok := s.levels[strings.ToUpper(label)]; ok {
		return c.Sprint(label)
	}
	return label
}

// status colors a job status.
func (s *colorScheme) status(status string) string {
	switch status {
	case models.StatusSucceeded:
		return s.success.Sprint(status)
	case models.StatusSkipped:
		return s.skipped.Sprint(status)
	case models.StatusFailed:
		return s.failure.Sprint(status)
	default:
		return status
	}
}
