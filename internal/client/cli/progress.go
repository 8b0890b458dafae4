package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/events"
)

// widthFn is a test seam for stdoutWidth.
var widthFn = stdoutWidth

// progressBar redraws one line per progress event while an operation runs.
// It stays silent when stdout is not a terminal.
type progressBar struct {
	mu    sync.Mutex
	w     io.Writer
	width int
	drawn bool
	sub   *events.Subscription
}

func newProgressBar(w io.Writer, bus *events.Bus, sampleID string, dataType models.DataType) *progressBar {
	b := &progressBar{w: w, width: widthFn()}
	if b.width <= 0 {
		return b
	}
	b.sub = bus.Subscribe(events.ProgressTopic(sampleID, string(dataType)), func(payload any) {
		if ev, ok := payload.(models.ProgressEvent); ok {
			b.draw(ev)
		}
	})
	return b
}

func (b *progressBar) draw(ev models.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprint(b.w, "\r"+renderLine(ev, b.width))
	b.drawn = true
}

// Close detaches the bar and finishes its line.
func (b *progressBar) Close() {
	if b.sub != nil {
		b.sub.Unsubscribe()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drawn {
		fmt.Fprintln(b.w)
		b.drawn = false
	}
}

// renderLine fits "[####    ]  40% message" into width columns.
func renderLine(ev models.ProgressEvent, width int) string {
	pct := models.ClampPercentage(ev.ProgressPercentage)
	slots := 20
	if width < 40 {
		slots = 10
	}
	filled := pct * slots / 100
	line := fmt.Sprintf("[%s%s] %3d%% %s",
		strings.Repeat("#", filled), strings.Repeat(" ", slots-filled), pct, ev.StatusMessage)
	if len(line) > width-1 {
		line = line[:width-1]
	}
	return line + strings.Repeat(" ", max(0, width-1-len(line)))
}
