package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Window is the number of recent ticks the rate is measured over.
const Window = 12

// Reporter advances once per converted frame.
type Reporter interface {
	Tick()
	Close() error
}

// Factory creates a reporter for a run of total frames. Total is advisory and may be zero
// when the container does not declare it.
type Factory func(total int) Reporter

// Meter logs progress lines with a rate and remaining time measured over the last Window
// ticks.
type Meter struct {
	logger   *zap.Logger
	total    int
	current  int
	every    int
	measures []time.Time
	now      func() time.Time
}

func NewMeter(total int, logger *zap.Logger) *Meter {
	return &Meter{logger: logger, total: total, every: Window, now: time.Now}
}

func MeterFactory(logger *zap.Logger) Factory {
	return func(total int) Reporter {
		return NewMeter(total, logger)
	}
}

func (m *Meter) Tick() {
	m.current++
	m.measures = append(m.measures, m.now())

	for Window < len(m.measures) {
		m.measures = m.measures[1:]
	}

	if 0 == m.current%m.every {
		m.log("progress")
	}
}

// Rate returns frames per second over the window and the time left to reach total. ok is
// false until the window is full.
func (m *Meter) Rate() (fps float64, remaining time.Duration, ok bool) {
	if Window != len(m.measures) {
		return 0, 0, false
	}

	elapsed := m.measures[len(m.measures)-1].Sub(m.measures[0])
	if 0 >= elapsed {
		return 0, 0, false
	}

	fps = float64(Window-1) / elapsed.Seconds()
	if m.total > m.current {
		remaining = time.Duration(float64(m.total-m.current) / fps * float64(time.Second))
	}

	return fps, remaining, true
}

func (m *Meter) Current() int {
	return m.current
}

func (m *Meter) log(msg string) {
	fields := []zap.Field{zap.Int("frame", m.current)}

	if 0 < m.total {
		fields = append(fields,
			zap.Int("total", m.total),
			zap.String("percent", fmt.Sprintf("%.3f", 100*float64(m.current)/float64(m.total))),
		)
	}

	if fps, remaining, ok := m.Rate(); ok {
		fields = append(fields,
			zap.String("fps", fmt.Sprintf("%4.1f", fps)),
			zap.String("remaining", fmt.Sprintf("%02d:%02d", int(remaining.Seconds())/60, int(remaining.Seconds())%60)),
		)
	}

	m.logger.Info(msg, fields...)
}

func (m *Meter) Close() error {
	m.log("progress done")

	return nil
}

// Bar draws a terminal progress bar.
type Bar struct {
	bar     *progressbar.ProgressBar
	max     int
	current int
}

func NewBar(total int, w io.Writer) *Bar {
	max := total
	if 0 >= max {
		max = -1
	}

	bar := progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Converting"),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)

	return &Bar{bar: bar, max: max}
}

func BarFactory(w io.Writer) Factory {
	return func(total int) Reporter {
		return NewBar(total, w)
	}
}

func (b *Bar) Tick() {
	b.current++

	// the declared frame count is a hint, grow the bar instead of overflowing it
	if -1 != b.max && b.current > b.max {
		b.max = b.current
		b.bar.ChangeMax(b.max)
	}

	b.bar.Add(1)
}

func (b *Bar) Close() error {
	if -1 != b.max && b.current < b.max {
		b.bar.ChangeMax(b.current)
	}

	return b.bar.Finish()
}
