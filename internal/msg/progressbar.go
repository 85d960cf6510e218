package msg

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ProgressBar is an io.Writer that counts bytes passing through it, meant
// to sit on the side of an io.TeeReader during downloads.
type ProgressBar struct {
	Label      string
	Total      int64
	Current    int64
	Indent     int
	Start      time.Time
	W          io.Writer
	lastPrint  time.Time
	throbIndex int
}

var throbbers = []rune{'|', '/', '-', '\\'}

// NewProgressBar creates a progress bar. A total <= 0 means unknown size,
// in which case only the byte count is shown.
func NewProgressBar(label string, total int64, indent int, w io.Writer) *ProgressBar {
	if w == nil {
		w = Output
	}
	return &ProgressBar{
		Label:     label,
		Total:     total,
		Indent:    indent,
		Start:     time.Now(),
		W:         w,
		lastPrint: time.Now(),
	}
}

func (pb *ProgressBar) Write(p []byte) (int, error) {
	n := len(p)
	pb.Current += int64(n)

	if time.Since(pb.lastPrint) > 40*time.Millisecond {
		pb.print(false)
		pb.lastPrint = time.Now()
	}
	return n, nil
}

func (pb *ProgressBar) print(finish bool) {
	width := 40
	percent := float64(pb.Current) / float64(max(pb.Total, 1))
	if finish {
		percent = 1
	}

	filled := min(int(percent*float64(width)), width)
	bar := strings.Repeat("█", filled) + strings.Repeat("-", width-filled)

	throb := throbbers[pb.throbIndex%len(throbbers)]
	pb.throbIndex++
	if finish {
		throb = ' '
	}

	if pb.Total > 0 {
		fmt.Fprintf(pb.W, "\r%s%s%6.f%% [%s] %c",
			strings.Repeat(" ", pb.Indent),
			pb.Label,
			percent*100,
			bar,
			throb,
		)
	} else {
		fmt.Fprintf(pb.W, "\r%s%s%d KB %c",
			strings.Repeat(" ", pb.Indent),
			pb.Label,
			pb.Current/1024,
			throb,
		)
	}
}

func (pb *ProgressBar) Finish() {
	pb.print(true)
	fmt.Fprintf(pb.W, " %s\n", time.Since(pb.Start).Round(time.Millisecond))
}
