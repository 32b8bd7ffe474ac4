// file: nats-micro/pkg/x_log/style.go
package x_log

import (
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap/zapcore"
)

const (
	colorGray   = "#8d8d8d"
	colorBlue   = "#78a9ff"
	colorGreen  = "#42be65"
	colorOrange = "#ff832b"
	colorRed    = "#da1e28"
)

// Styles holds the lipgloss styles used by the console encoder.
type Styles struct {
	Timestamp lipgloss.Style
	Name      lipgloss.Style
	Levels    map[zapcore.Level]lipgloss.Style
}

func DefaultStyles() *Styles {
	return &Styles{
		Timestamp: lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Name:      lipgloss.NewStyle().Foreground(lipgloss.Color(colorBlue)),
		Levels: map[zapcore.Level]lipgloss.Style{
			zapcore.DebugLevel: lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
			zapcore.InfoLevel:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
			zapcore.WarnLevel:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorOrange)),
			zapcore.ErrorLevel: lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		},
	}
}

var (
	styles = DefaultStyles()

	// Styling is wasted on pipes and files.
	styled = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
)

func styledTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	s := t.Format("15:04:05.000")
	if styled {
		s = styles.Timestamp.Render(s)
	}
	enc.AppendString(s)
}

func styledLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	s := l.CapitalString()
	if styled {
		if st, ok := styles.Levels[l]; ok {
			s = st.Render(s)
		}
	}
	enc.AppendString(s)
}

func styledNameEncoder(name string, enc zapcore.PrimitiveArrayEncoder) {
	s := "[" + name + "]"
	if styled {
		s = styles.Name.Render(s)
	}
	enc.AppendString(s)
}
