package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/project"
)

func qcEvent(id uint64, at time.Time, timepoints []float64, temps []float64) model.Event {
	uid := "123456789"
	return model.Event{
		ID:            id,
		Kind:          "v7_curing_qc",
		WorkOrderCode: "E3D-WO-100",
		CreatedAt:     at,
		UpdatedAt:     at.Add(90 * time.Second),
		Failed:        true,
		FailState:     "Leakage",
		LogTimepoints: timepoints,
		Details: &project.V7CuringQCDetails{
			TestedLeakage:           true,
			SuccessfulThermalCycles: 3,
			LogTemperatures:         temps,
		},
		Item:     model.Item{UIDCode: &uid, SkuCode: "V7-24V"},
		Machine:  model.Machine{Name: "QC One"},
		Operator: model.Operator{Name: "Sam Jones"},
	}
}

func readCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	rows, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestReadableName(t *testing.T) {
	assert.Equal(t, "Heater open circuit threshold", ReadableName("heater_open_circuit_threshold"))
	assert.Equal(t, "Temperatures (°C)", ReadableName("temperatures (°C)"))
	assert.Equal(t, "", ReadableName(""))
}

func TestFilename(t *testing.T) {
	at := time.Date(2024, 3, 4, 13, 5, 9, 0, time.UTC)
	assert.Equal(t, "event_logs_2024-03-04_13-05-09.csv", Filename("event_logs", at))
}

func TestWriteDetails(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	events := []model.Event{
		qcEvent(2, t0.Add(10*time.Minute), nil, nil),
		qcEvent(1, t0, nil, nil),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteDetails(&buf, events))
	rows := readCSV(t, &buf)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"Event ID", "Item UID", "Item SKU", "Work order", "Started at", "Duration", "Time since prev",
		"Machine", "Operator", "Failed", "Completed", "Fail State",
		"Tested leakage", "Tested circuit", "Tested thermal cycling", "Successful thermal cycles",
	}, rows[0])
	assert.Equal(t, []string{
		"2", "123456789", "V7-24V", "E3D-WO-100", "04/03/2024 08:10:00", "1m30s", "10m0s",
		"QC One", "Sam Jones", "Yes", "No", "Leakage",
		"Yes", "No", "No", "3",
	}, rows[1])
	assert.Equal(t, "", rows[2][6])
}

func TestWriteLogs(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	events := []model.Event{
		qcEvent(7, t0, []float64{0, 0.5, 1}, []float64{21.5, 30, 42.25}),
		qcEvent(8, t0, []float64{0, 1}, []float64{20, 21}),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLogs(&buf, events))
	rows := readCSV(t, &buf)

	assert.Equal(t, [][]string{
		{"Event ID", "Timepoints (s)", "Temperatures (°C)"},
		{"7", "0", "21.5"},
		{"7", "0.5", "30"},
		{"7", "1", "42.25"},
		{"8", "0", "20"},
		{"8", "1", "21"},
	}, rows)
}

func TestWriteLogs_LengthMismatch(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name         string
		temperatures []float64
	}{
		{"longer than timepoints", []float64{20, 21, 22, 23}},
		{"shorter than timepoints", []float64{20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := []model.Event{qcEvent(7, t0, []float64{0, 1}, tt.temperatures)}

			err := WriteLogs(&bytes.Buffer{}, events)
			var integrity *apperr.IntegrityError
			require.ErrorAs(t, err, &integrity)
			assert.Contains(t, err.Error(), "event 7")
		})
	}
}

func TestWriteLogs_KindWithoutLogs(t *testing.T) {
	ev := model.Event{ID: 1, Kind: "generic", Details: &project.GenericDetails{}}
	err := WriteLogs(&bytes.Buffer{}, []model.Event{ev})
	assert.ErrorIs(t, err, ErrNoLogFields)
}
