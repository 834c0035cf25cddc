package seriallink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Telemetry field names, in the order the firmware prints them.
const (
	FieldWorkTime    = "workTime"
	FieldTemperature = "temperature"
	FieldSensor1     = "sensor1"
	FieldSensor2     = "sensor2"
	FieldSensor3     = "sensor3"
	FieldSensor4     = "sensor4"
	FieldWater       = "water"
	FieldBattery     = "battery"
	FieldMoved       = "moved"
)

// InboundFields lists the positional mapping of an inbound CSV line.
var InboundFields = []string{
	FieldWorkTime, FieldTemperature,
	FieldSensor1, FieldSensor2, FieldSensor3, FieldSensor4,
	FieldWater, FieldBattery, FieldMoved,
}

// LabelChannel carries the Clean/Dirty label to the board. Other outbound
// values must use a different channel.
const LabelChannel = 1

// ErrMalformedLine marks an inbound line that cannot be mapped to telemetry.
var ErrMalformedLine = errors.New("malformed inbound line")

// FormatFrame serialises one outbound command as "<channel>:<value>#".
func FormatFrame(channel int, value string) (string, error) {
	if channel < 0 {
		return "", fmt.Errorf("invalid channel %d: must be non-negative", channel)
	}
	return strconv.Itoa(channel) + ":" + value + "#", nil
}

// InboundLine is one decoded telemetry line from the actuator board. Values
// are kept as the text the firmware printed; every field has been checked to
// be numeric.
type InboundLine struct {
	WorkTime    string
	Temperature string
	Sensor1     string
	Sensor2     string
	Sensor3     string
	Sensor4     string
	Water       string
	Battery     string
	Moved       string
}

// Telemetry returns the line as a field-name to value mapping.
func (l InboundLine) Telemetry() map[string]string {
	return map[string]string{
		FieldWorkTime:    l.WorkTime,
		FieldTemperature: l.Temperature,
		FieldSensor1:     l.Sensor1,
		FieldSensor2:     l.Sensor2,
		FieldSensor3:     l.Sensor3,
		FieldSensor4:     l.Sensor4,
		FieldWater:       l.Water,
		FieldBattery:     l.Battery,
		FieldMoved:       l.Moved,
	}
}

// ParseResult is either a parsed InboundLine or the raw bytes of a line that
// could not be parsed.
type ParseResult struct {
	Line InboundLine
	Raw  []byte
	Err  error
}

// Ok reports whether the line parsed cleanly.
func (r ParseResult) Ok() bool { return r.Err == nil }

// Malformed reports whether the line was rejected.
func (r ParseResult) Malformed() bool { return r.Err != nil }

// decodePermissive drops invalid UTF-8 and surrounding whitespace.
func decodePermissive(raw []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
}

// ParseLine decodes one inbound line. It never panics; any problem is
// reported through the returned ParseResult.
func ParseLine(raw []byte) ParseResult {
	text := decodePermissive(raw)
	segments := strings.Split(text, ",")
	if len(segments) != len(InboundFields) {
		return ParseResult{
			Raw: raw,
			Err: fmt.Errorf("%w: got %d fields, expected %d", ErrMalformedLine, len(segments), len(InboundFields)),
		}
	}
	for i, s := range segments {
		s = strings.TrimSpace(s)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return ParseResult{
				Raw: raw,
				Err: fmt.Errorf("%w: field %s=%q is not numeric", ErrMalformedLine, InboundFields[i], s),
			}
		}
		segments[i] = s
	}
	return ParseResult{Line: InboundLine{
		WorkTime:    segments[0],
		Temperature: segments[1],
		Sensor1:     segments[2],
		Sensor2:     segments[3],
		Sensor3:     segments[4],
		Sensor4:     segments[5],
		Water:       segments[6],
		Battery:     segments[7],
		Moved:       segments[8],
	}}
}
