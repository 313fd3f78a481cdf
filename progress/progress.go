package progress

import (
	"github.com/pterm/pterm"
)

// Bar manages a progress bar spanning the header-fetch phase, one tick per
// mailbox item.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	enabled bool
}

// New creates a progress bar if logLevel is "info"; at other levels the bar
// stays silent so debug logs and quiet runs are not interleaved with it.
func New(total int, logLevel string) *Bar {
	bar := &Bar{enabled: logLevel == "info" && total > 0}

	if bar.enabled {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Fetching messages").
			Start()
		bar.pb = pb
	}

	return bar
}

// Increment advances the bar by one message.
func (b *Bar) Increment() {
	if !b.enabled || b.pb == nil {
		return
	}
	b.pb.Increment()
}

// Finish stops the bar.
func (b *Bar) Finish() {
	if !b.enabled || b.pb == nil {
		return
	}
	_, _ = b.pb.Stop()
}
