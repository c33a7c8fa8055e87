package model

// ProductionStep tags the manufacturing operation an Event or Configuration pertains to.
type ProductionStep string

const (
	StepAssemblyQC     ProductionStep = "Mid-assembly QC"
	StepCuring         ProductionStep = "Curing"
	StepCutting        ProductionStep = "Cutting"
	StepDryAssembly    ProductionStep = "Dry assembly"
	StepEOLQC          ProductionStep = "End-of-line QC"
	StepGoodsInQC      ProductionStep = "Goods-In QC"
	StepGreasing       ProductionStep = "Greasing"
	StepHeaterAssembly ProductionStep = "Heater assembly"
	StepHotTightening  ProductionStep = "Hot tightening"
	StepInspection     ProductionStep = "Inspection"
	StepPacking        ProductionStep = "Packing"
	StepPotting        ProductionStep = "Potting"
	StepPressing       ProductionStep = "Pressing"
	StepUIDSetting     ProductionStep = "Unique ID setting"
)

var productionSteps = []ProductionStep{
	StepAssemblyQC, StepCuring, StepCutting, StepDryAssembly, StepEOLQC, StepGoodsInQC, StepGreasing,
	StepHeaterAssembly, StepHotTightening, StepInspection, StepPacking, StepPotting, StepPressing, StepUIDSetting,
}

// ProductionSteps lists every known step.
func ProductionSteps() []ProductionStep {
	out := make([]ProductionStep, len(productionSteps))
	copy(out, productionSteps)
	return out
}

// Valid reports whether s is one of the known steps.
func (s ProductionStep) Valid() bool {
	for _, p := range productionSteps {
		if p == s {
			return true
		}
	}
	return false
}
