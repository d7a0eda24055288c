// Package logging holds the console formatter used by the scraper CLI.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// ColoredJSONFormatter writes one line per entry: timestamp, level, message,
// then key=value fields with job and URL identifiers first. Values that are
// not strings or errors are JSON encoded.
type ColoredJSONFormatter struct {
	TimestampFormat string
	// SortingFunc orders field keys. Nil sorts by priority, then name.
	SortingFunc   func([]string) []string
	DisableColors bool
}

// NewColoredJSONFormatter returns a formatter with RFC3339 timestamps.
func NewColoredJSONFormatter() *ColoredJSONFormatter {
	return &ColoredJSONFormatter{TimestampFormat: time.RFC3339}
}

// fieldRank puts identifiers that tie a line to a job, task or page first.
var fieldRank = map[string]int{
	"job_id":   1,
	"task_id":  2,
	"url":      3,
	"provider": 4,
	"label":    5,
	"error":    6,
}

var highlighted = map[string]bool{
	"job_id":   true,
	"task_id":  true,
	"url":      true,
	"provider": true,
	"error":    true,
}

func (f *ColoredJSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	levelColor := f.color(levelAttribute(entry.Level)...)
	fmt.Fprintf(b, "%s %s %s",
		f.color(color.FgYellow).Sprint(entry.Time.Format(f.TimestampFormat)),
		levelColor.Sprintf("%-7s", strings.ToUpper(entry.Level.String())),
		levelColor.Sprint(entry.Message))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	if f.SortingFunc != nil {
		keys = f.SortingFunc(keys)
	} else {
		sortByRank(keys)
	}

	value := f.color(color.FgWhite)
	for _, k := range keys {
		key := f.color(color.FgCyan)
		if highlighted[k] {
			key = f.color(color.FgGreen)
		}
		b.WriteByte(' ')
		b.WriteString(key.Sprintf("%s=", k))
		b.WriteString(value.Sprint(render(entry.Data[k])))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *ColoredJSONFormatter) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if f.DisableColors {
		c.DisableColor()
	}
	return c
}

func render(v any) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func levelAttribute(level logrus.Level) []color.Attribute {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return []color.Attribute{color.FgBlue}
	case logrus.InfoLevel:
		return []color.Attribute{color.FgGreen}
	case logrus.WarnLevel:
		return []color.Attribute{color.FgYellow}
	case logrus.ErrorLevel:
		return []color.Attribute{color.FgRed}
	case logrus.FatalLevel, logrus.PanicLevel:
		return []color.Attribute{color.FgRed, color.Bold}
	}
	return []color.Attribute{color.FgWhite}
}

func sortByRank(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := fieldRank[keys[i]], fieldRank[keys[j]]
		switch {
		case ri != 0 && rj != 0:
			return ri < rj
		case ri != 0 || rj != 0:
			return ri != 0
		}
		return keys[i] < keys[j]
	})
}
