package project

import "production-tracker-backend/internal/model"

// Thermistor types accepted by V7 QC configurations.
const (
	ThermistorGeneric  = "Thermistor"
	Thermistor104NT4   = "104NT-4 Thermistor"
	ThermistorPT100    = "PT100"
	ThermistorPT1000   = "PT1000"
	ThermistorBCN      = "BCN Thermistor"
	labelTemperaturesC = "Temperatures (°C)"
)

// V7CuringQCDetails is the result of a post-curing QC run. The tested_* flags
// record which stages actually ran, since stages can be skipped.
type V7CuringQCDetails struct {
	TestedLeakage           bool      `json:"tested_leakage"`
	TestedCircuit           bool      `json:"tested_circuit"`
	TestedThermalCycling    bool      `json:"tested_thermal_cycling"`
	SuccessfulThermalCycles uint      `json:"successful_thermal_cycles"`
	LogTemperatures         []float64 `json:"log_temperatures"`
}

func (d *V7CuringQCDetails) LogFields() []model.LogField {
	return []model.LogField{
		{Name: "log_temperatures", Label: labelTemperaturesC, Data: d.LogTemperatures},
	}
}

// V7CuringQCSettings configures the QC rig for a SKU.
type V7CuringQCSettings struct {
	Voltage        int    `json:"voltage" binding:"oneof=12 24"`
	ThermistorType string `json:"thermistor_type" binding:"oneof=Thermistor '104NT-4 Thermistor' PT100 PT1000 'BCN Thermistor'"`
	Wattage        int    `json:"wattage" binding:"min=0,max=99"`

	// Pre-thermal-cycling thresholds
	TemperatureOpenCircuitThreshold  float64 `json:"temperature_open_circuit_threshold" binding:"min=0"`
	TemperatureShortCircuitThreshold float64 `json:"temperature_short_circuit_threshold" binding:"min=0"`
	CurrentTestPWM                   float64 `json:"current_test_pwm" binding:"min=0"`
	HeaterOpenCircuitThreshold       float64 `json:"heater_open_circuit_threshold" binding:"min=0"`
	HeaterShortCircuitThreshold      float64 `json:"heater_short_circuit_threshold" binding:"min=0"`

	// Thermal cycling
	ThermalTargetTemp   float64 `json:"thermal_target_temp" binding:"min=0"`
	ThermalMinHotTemp   float64 `json:"thermal_min_hot_temp" binding:"min=0"`
	ThermalMaxHotTemp   float64 `json:"thermal_max_hot_temp" binding:"min=0"`
	CurrentMin          float64 `json:"current_min" binding:"min=0"`
	CurrentMax          float64 `json:"current_max" binding:"min=0"`
	HeatRateMinOffset   float64 `json:"heat_rate_min_offset"`
	HeatRateMinGradient float64 `json:"heat_rate_min_gradient"`
	HeatRateMaxOffset   float64 `json:"heat_rate_max_offset"`
	HeatRateMaxGradient float64 `json:"heat_rate_max_gradient"`

	// Safety checks
	OverheatTemp                 float64 `json:"overheat_temp" binding:"min=0"`
	HeatupTimeout                float64 `json:"heatup_timeout" binding:"min=0"`
	CoolingTimeout               float64 `json:"cooling_timeout" binding:"min=0"`
	MosfetMaxCurrentAfterDisable float64 `json:"mosfet_max_current_after_disable" binding:"min=0"`
	DisconnectTolerance          float64 `json:"disconnect_tolerance"`
	SafeHandlingTemperature      float64 `json:"safe_handling_temperature" binding:"min=0"`

	// PID
	PIDKp float64 `json:"pid_kp"`
	PIDKi float64 `json:"pid_ki"`
	PIDKd float64 `json:"pid_kd"`
}

func (*V7CuringQCSettings) ProductionStep() model.ProductionStep { return model.StepAssemblyQC }

// NewV7CuringQCSettings returns the rig defaults. Voltage and thermistor type have none.
func NewV7CuringQCSettings() *V7CuringQCSettings {
	return &V7CuringQCSettings{
		Wattage:                          40,
		TemperatureOpenCircuitThreshold:  10.0,
		TemperatureShortCircuitThreshold: 350.0,
		CurrentTestPWM:                   0.1,
		HeaterOpenCircuitThreshold:       0.015,
		HeaterShortCircuitThreshold:      0.225,
		ThermalTargetTemp:                250.0,
		ThermalMinHotTemp:                220.0,
		ThermalMaxHotTemp:                270.0,
		CurrentMin:                       0.001,
		CurrentMax:                       4.7,
		HeatRateMaxOffset:                1000.0,
		OverheatTemp:                     300.0,
		HeatupTimeout:                    180.0,
		CoolingTimeout:                   180.0,
		DisconnectTolerance:              8.0,
		SafeHandlingTemperature:          50.0,
		PIDKp:                            0.01,
		PIDKi:                            0.01,
	}
}

func init() {
	model.RegisterEventKind("v7_curing_qc", func() model.EventDetails { return &V7CuringQCDetails{} })
	model.RegisterConfigKind("v7_curing_qc", func() model.ConfigSettings { return NewV7CuringQCSettings() })

	Register(Project{
		Name:       "v7_post_curing_qc",
		Title:      "V7 (Revo) QC rig",
		ItemKind:   model.ItemKindSingle,
		EventKind:  "v7_curing_qc",
		ConfigKind: "v7_curing_qc",
	})
}
