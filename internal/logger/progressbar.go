package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ProgressBar renders completed jobs out of the operation total.
type ProgressBar struct {
	current     int
	total       int
	width       int
	enableColor bool
	prefix      string
	mu          sync.RWMutex
}

// NewProgressBar creates a new progress bar
func NewProgressBar(total, width int, enableColor bool) *ProgressBar {
	if width < 1 {
		width = 10
	}
	return &ProgressBar{
		current:     0,
		total:       total,
		width:       width,
		enableColor: enableColor,
		prefix:      "",
	}
}

// Update sets the current progress value
func (pb *ProgressBar) Update(current int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = current
}

// Increment increments the current progress by 1
func (pb *ProgressBar) Increment() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
}

// Current returns the current progress value
func (pb *ProgressBar) Current() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.current
}

// Total returns the total progress value
func (pb *ProgressBar) Total() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.total
}

// Percentage returns the progress percentage (0-100)
func (pb *ProgressBar) Percentage() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.percent()
}

// percent requires pb.mu to be held.
func (pb *ProgressBar) percent() int {
	if pb.total == 0 {
		return 0
	}
	return min(max(pb.current*100/pb.total, 0), 100)
}

// SetPrefix sets a custom prefix for the progress bar
func (pb *ProgressBar) SetPrefix(prefix string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.prefix = prefix
}

// Render generates the ASCII progress bar string
func (pb *ProgressBar) Render() string {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	perc := pb.percent()
	filled := perc * pb.width / 100
	bar := "[" + strings.Repeat("=", filled) + strings.Repeat(" ", pb.width-filled) + "]"

	// Add counter and percentage
	result := fmt.Sprintf("%s%s %d/%d (%d%%)", pb.prefix, bar, pb.current, pb.total, perc)

	if pb.enableColor {
		if perc < 100 {
			result = color.New(color.FgCyan).Sprint(result)
		} else {
			result = color.New(color.FgGreen).Sprint(result)
		}
	}

	return result
}
