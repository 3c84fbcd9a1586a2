package logger

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// palette is one terminal color theme
type palette struct {
	fg        string
	time      string
	primary   string // transitions, accepted completions
	secondary string // client and transport events
	lifecycle string // startup and shutdown
	accent    string // component names and bracketed markers
	id        string
	number    string
	warn      string
	warnBg    string
	err       string
	errBg     string
}

// Gruvbox Dark: warm, muted
var gruvbox = palette{
	fg:        "\x1b[38;5;223m",
	time:      "\x1b[38;5;108m",
	primary:   "\x1b[38;5;142m",
	secondary: "\x1b[38;5;109m",
	lifecycle: "\x1b[38;5;208m",
	accent:    "\x1b[38;5;214m",
	id:        "\x1b[38;5;109m",
	number:    "\x1b[38;5;175m",
	warn:      "\x1b[38;5;214m",
	warnBg:    "\x1b[48;5;58m",
	err:       "\x1b[38;5;167m",
	errBg:     "\x1b[48;5;88m",
}

// Everforest Dark: forest greens
var everforest = palette{
	fg:        "\x1b[38;5;223m",
	time:      "\x1b[38;5;107m",
	primary:   "\x1b[38;5;108m",
	secondary: "\x1b[38;5;107m",
	lifecycle: "\x1b[38;5;65m",
	accent:    "\x1b[38;5;208m",
	id:        "\x1b[38;5;109m",
	number:    "\x1b[38;5;108m",
	warn:      "\x1b[38;5;179m",
	warnBg:    "\x1b[48;5;58m",
	err:       "\x1b[38;5;167m",
	errBg:     "\x1b[48;5;52m",
}

var currentTheme = "everforest"

// SetTheme configures the color scheme for log output (everforest, gruvbox)
func SetTheme(theme string) {
	if theme == "everforest" || theme == "gruvbox" {
		currentTheme = theme
	}
}

// CurrentTheme returns the active theme name
func CurrentTheme() string {
	return currentTheme
}

func colors() palette {
	if currentTheme == "gruvbox" {
		return gruvbox
	}
	return everforest
}

func colorComponent(name string) string {
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	p := colors()
	switch hash % 3 {
	case 0:
		return p.primary
	case 1:
		return p.lifecycle
	default:
		return p.accent
	}
}

func colorMessage(msg string) string {
	lower := strings.ToLower(msg)
	p := colors()

	switch {
	case strings.Contains(lower, "transition") || strings.Contains(lower, "accept") ||
		strings.Contains(lower, "completion"):
		return p.primary
	case strings.Contains(lower, "client") || strings.Contains(lower, "connected") ||
		strings.Contains(lower, "websocket") || strings.Contains(lower, "lsp"):
		return p.secondary
	case strings.Contains(lower, "starting") || strings.Contains(lower, "started") ||
		strings.Contains(lower, "stopping") || strings.Contains(lower, "config"):
		return p.lifecycle
	}
	return p.fg
}

var bracketPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// colorizeMessage highlights bracketed markers such as [req:12] or [accepting]
func colorizeMessage(msg string) string {
	p := colors()
	base := colorMessage(msg)

	var result strings.Builder
	lastIndex := 0
	for _, match := range bracketPattern.FindAllStringSubmatchIndex(msg, -1) {
		if before := msg[lastIndex:match[0]]; before != "" {
			result.WriteString(base + before + colorReset)
		}
		color := p.accent
		if strings.HasPrefix(msg[match[2]:match[3]], "req:") {
			color = p.id
		}
		result.WriteString(color + msg[match[0]:match[1]] + colorReset)
		lastIndex = match[1]
	}
	if remaining := msg[lastIndex:]; remaining != "" {
		result.WriteString(base + remaining + colorReset)
	}
	return result.String()
}

// minimalEncoder implements a calm, compact console encoder with theme support
// Format: "13:04:35  l.machine  transition  12 idle→requesting 3ms"
type minimalEncoder struct {
	zapcore.Encoder
	fields []zapcore.Field
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{
		Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	fields := make([]zapcore.Field, len(enc.fields))
	copy(fields, enc.fields)
	return &minimalEncoder{
		Encoder: enc.Encoder.Clone(),
		fields:  fields,
	}
}

// AddString and friends capture fields bound with Logger.With so they render
// alongside per-entry fields.
func (enc *minimalEncoder) AddString(key, value string) {
	enc.fields = append(enc.fields, zap.String(key, value))
}

func (enc *minimalEncoder) AddInt64(key string, value int64) {
	enc.fields = append(enc.fields, zap.Int64(key, value))
}

func (enc *minimalEncoder) AddUint64(key string, value uint64) {
	enc.fields = append(enc.fields, zap.Uint64(key, value))
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	p := colors()
	final := buffer.NewPool().Get()

	final.AppendString(p.time)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(ent.Level))
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(colorComponent(ent.LoggerName))
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(colorizeMessage(ent.Message))

	all := make([]zapcore.Field, 0, len(enc.fields)+len(fields))
	all = append(all, enc.fields...)
	all = append(all, fields...)
	if values := extractFieldValues(all); values != "" {
		final.AppendString("  ")
		final.AppendString(values)
	}

	final.AppendString("\n")
	return final, nil
}

func levelColorString(level zapcore.Level) string {
	p := colors()
	switch level {
	case zapcore.DebugLevel:
		return p.fg + "DEBUG" + colorReset
	case zapcore.WarnLevel:
		return colorBold + p.warnBg + p.warn + "WARN" + colorReset
	default:
		return colorBold + p.errBg + p.err + level.CapitalString() + colorReset
	}
}

// abbreviateName shortens component names: lifecycle.machine -> l.machine
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// getFieldValue extracts the value from a zap field, handling different field types
func getFieldValue(field zapcore.Field) string {
	switch field.Type {
	case zapcore.StringType:
		return field.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
		return fmt.Sprintf("%d", field.Integer)
	case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", uint64(field.Integer))
	case zapcore.BoolType:
		return fmt.Sprintf("%t", field.Integer == 1)
	case zapcore.Float64Type:
		return strconv.FormatFloat(math.Float64frombits(uint64(field.Integer)), 'g', -1, 64)
	case zapcore.Float32Type:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(field.Integer))), 'g', -1, 32)
	case zapcore.DurationType:
		return time.Duration(field.Integer).String()
	}
	if field.Interface != nil {
		return fmt.Sprintf("%v", field.Interface)
	}
	return ""
}

// extractFieldValues renders well-known fields compactly and everything else
// as key=value so no field is dropped.
//
// Input:  {"request_id": 12, "from": "idle", "to": "requesting", "duration_ms": 3}
// Output: "12 idle→requesting 3ms"
func extractFieldValues(fields []zapcore.Field) string {
	p := colors()
	var values []string
	var from, to string

	for _, field := range fields {
		val := getFieldValue(field)
		if val == "" {
			continue
		}
		switch field.Key {
		case FieldRequestID, FieldSessionID:
			values = append(values, p.id+val+colorReset)
		case FieldFrom:
			from = val
		case FieldTo:
			to = val
		case FieldDurationMS:
			values = append(values, p.number+val+colorReset+"ms")
		case FieldTextChars:
			values = append(values, p.number+val+colorReset+" chars")
		default:
			values = append(values, p.fg+field.Key+"="+colorReset+val)
		}
	}

	if from != "" || to != "" {
		values = append(values, p.primary+from+"→"+to+colorReset)
	}

	return strings.Join(values, " ")
}
