// Package export renders events as CSV downloads.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"production-tracker-backend/internal/model"
)

const startedAtLayout = "02/01/2006 15:04:05"

// TimepointsLabel heads the timepoint column of log CSVs.
const TimepointsLabel = "Timepoints (s)"

// ErrNoLogFields is returned for event kinds that never record logs.
var ErrNoLogFields = errors.New("event kind does not record any logs")

var unitSuffix = regexp.MustCompile(` \(.*\)$`)

// ReadableName turns a field name such as "heater_open_circuit_threshold" into
// "Heater open circuit threshold". A trailing "(unit)" keeps its case.
func ReadableName(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	unit := unitSuffix.FindString(name)
	base := strings.ToLower(strings.TrimSuffix(name, unit))
	if r, size := utf8.DecodeRuneInString(base); size > 0 {
		base = string(unicode.ToUpper(r)) + base[size:]
	}
	return base + unit
}

// Filename returns an attachment name stamped with t.
func Filename(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", prefix, t.Format("2006-01-02_15-04-05"))
}

// WriteDetails writes one row per event with its item, machine, operator and
// outcome followed by the non-log fields of its details. Events must have their
// Item, Machine and Operator loaded and are written in the given order.
func WriteDetails(w io.Writer, events []model.Event) error {
	cw := csv.NewWriter(w)

	header := []string{
		"Event ID", "Item UID", "Item SKU", "Work order", "Started at", "Duration", "Time since prev",
		"Machine", "Operator", "Failed", "Completed", "Fail State",
	}
	var fields []detailField
	if len(events) > 0 {
		fields = detailFields(&events[0])
	}
	for _, f := range fields {
		header = append(header, ReadableName(f.name))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range events {
		ev := &events[i]
		sincePrev := ""
		if i+1 < len(events) {
			sincePrev = ev.CreatedAt.Sub(events[i+1].CreatedAt).String()
		}
		uid := ""
		if ev.Item.UIDCode != nil {
			uid = *ev.Item.UIDCode
		}
		row := []string{
			strconv.FormatUint(ev.ID, 10),
			uid,
			ev.Item.SkuCode,
			ev.WorkOrderCode,
			ev.CreatedAt.Format(startedAtLayout),
			ev.UpdatedAt.Sub(ev.CreatedAt).String(),
			sincePrev,
			ev.Machine.Name,
			ev.Operator.Name,
			yesNo(ev.Failed),
			yesNo(ev.Completed),
			ev.FailState,
		}
		values := detailValues(ev)
		for _, f := range fields {
			row = append(row, values[f.name])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write event %d: %w", ev.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLogs writes one row per timepoint per event: the event id, the
// timepoint and the value of every log array at that point. An event whose
// log arrays disagree with its timepoints fails the whole export with an
// IntegrityError.
func WriteLogs(w io.Writer, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	labels := events[0].LogFields()
	if len(labels) == 0 {
		return ErrNoLogFields
	}

	cw := csv.NewWriter(w)
	header := []string{"Event ID", TimepointsLabel}
	for _, f := range labels {
		header = append(header, f.Label)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range events {
		ev := &events[i]
		logs, err := ev.GetLogResults()
		if err != nil {
			return fmt.Errorf("event %d: %w", ev.ID, err)
		}
		for j, tp := range logs.Timepoints {
			row := []string{strconv.FormatUint(ev.ID, 10), formatFloat(tp)}
			for _, series := range logs.Results {
				row = append(row, formatFloat(series.Data[j]))
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write logs of event %d: %w", ev.ID, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

type detailField struct {
	name  string
	index int
}

// detailFields lists the JSON-named fields of the event's details struct,
// leaving out its log arrays.
func detailFields(ev *model.Event) []detailField {
	v := reflect.ValueOf(ev.Details)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	logs := map[string]bool{}
	for _, f := range ev.LogFields() {
		logs[f.Name] = true
	}

	var out []detailField
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if logs[name] {
			continue
		}
		out = append(out, detailField{name: name, index: i})
	}
	return out
}

func detailValues(ev *model.Event) map[string]string {
	out := map[string]string{}
	v := reflect.ValueOf(ev.Details)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return out
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return out
	}
	for _, f := range detailFields(ev) {
		out[f.name] = formatValue(v.Field(f.index))
	}
	return out
}

func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Bool:
		return yesNo(v.Bool())
	case reflect.Float32, reflect.Float64:
		return formatFloat(v.Float())
	case reflect.Pointer:
		if v.IsNil() {
			return ""
		}
		return formatValue(v.Elem())
	default:
		return fmt.Sprint(v.Interface())
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
