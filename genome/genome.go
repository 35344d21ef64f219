// Package genome implements the fixed-length integer encoding of a
// candidate dispatch plan: the battery action, EV charge index, and
// optional appliance start hour genes, plus the codec that packs and
// unpacks them.
package genome

import "math/rand"

// Kind identifies which gene region a position belongs to.
type Kind int

const (
	KindBattery Kind = iota
	KindEV
	KindAppliance
)

// Layout describes the static shape of a genome for one optimization run.
type Layout struct {
	Horizon         int // H
	HasAppliance    bool
	EVLockedTail    int // trailing hours where the EV gene is forced to zero
	StartHour       int // wall-clock hour aligned to genome index 0
	ActionMagnitude int // width of the charge side of the battery alphabet, default 5
	NumCurrents     int // |I|
}

// Length returns L = 2H + {0,1}.
func (l Layout) Length() int {
	n := 2 * l.Horizon
	if l.HasAppliance {
		n++
	}
	return n
}

// Individual is a genome plus its fitness and optional evaluation diagnostics.
type Individual struct {
	Genes   []int
	Fitness float64

	HasDiagnostics bool
	Balance        float64
	Losses         float64
	SoCShortfall   float64
}

// Clone returns a deep copy of the individual.
func (ind *Individual) Clone() *Individual {
	genes := make([]int, len(ind.Genes))
	copy(genes, ind.Genes)
	c := *ind
	c.Genes = genes
	return &c
}

// Codec owns the gene layout constants and is the sole authority on gene
// domains: every other component treats gene domains as this codec's
// responsibility to enforce.
type Codec struct {
	Layout    Layout
	Currents  []float64 // I, ordered EV charging currents, index 0 = no charge
}

// NewCodec builds a codec for one optimization run. actionMagnitude of 0
// defaults to 5, matching the spec's [-5,+1] battery action alphabet.
func NewCodec(horizon int, hasAppliance bool, evLockedTail int, startHour int, currents []float64, actionMagnitude int) *Codec {
	if actionMagnitude <= 0 {
		actionMagnitude = 5
	}
	return &Codec{
		Layout: Layout{
			Horizon:         horizon,
			HasAppliance:    hasAppliance,
			EVLockedTail:    evLockedTail,
			StartHour:       startHour,
			ActionMagnitude: actionMagnitude,
			NumCurrents:     len(currents),
		},
		Currents: currents,
	}
}

// Length returns the vector length for this codec's layout.
func (c *Codec) Length() int {
	return c.Layout.Length()
}

// BatteryDomain returns the inclusive [low, high] bounds of the battery
// action gene.
func (c *Codec) BatteryDomain() (int, int) {
	return -c.Layout.ActionMagnitude, 1
}

// EVDomain returns the inclusive [low, high] bounds of the EV charge index gene.
func (c *Codec) EVDomain() (int, int) {
	return 0, c.Layout.NumCurrents - 1
}

// ApplianceDomain returns the inclusive [low, high] bounds of the appliance
// start-hour gene.
func (c *Codec) ApplianceDomain() (int, int) {
	return c.Layout.StartHour, 23
}

// SampleGene produces a uniform integer within the given kind's domain.
func (c *Codec) SampleGene(kind Kind, rng *rand.Rand) int {
	var low, high int
	switch kind {
	case KindBattery:
		low, high = c.BatteryDomain()
	case KindEV:
		low, high = c.EVDomain()
	case KindAppliance:
		low, high = c.ApplianceDomain()
	}
	return low + rng.Intn(high-low+1)
}

// NewRandomIndividual assembles a fresh genome respecting every gene's
// domain, with the EV locked tail pre-zeroed.
func (c *Codec) NewRandomIndividual(rng *rand.Rand) *Individual {
	genes := make([]int, 0, c.Length())
	h := c.Layout.Horizon

	for i := 0; i < h; i++ {
		genes = append(genes, c.SampleGene(KindBattery, rng))
	}
	for i := 0; i < h; i++ {
		genes = append(genes, c.SampleGene(KindEV, rng))
	}
	if c.Layout.HasAppliance {
		genes = append(genes, c.SampleGene(KindAppliance, rng))
	}

	ind := &Individual{Genes: genes}
	c.ClampLockedTail(ind.Genes)
	return ind
}

// ClampLockedTail re-zeroes the EV genes in [2H-EVLockedTail, 2H) in place.
// This is the sole enforcement point for invariant 2 (§3): callers that
// mutate or recombine genomes must call this afterward as a repair pass.
func (c *Codec) ClampLockedTail(genes []int) {
	h := c.Layout.Horizon
	tail := c.Layout.EVLockedTail
	if tail <= 0 {
		return
	}
	if tail > h {
		tail = h
	}
	for i := 2*h - tail; i < 2*h; i++ {
		genes[i] = 0
	}
}

// Split returns non-copying views into the genome's three gene regions.
// appliance is nil when the layout has no appliance gene.
func (c *Codec) Split(genes []int) (battery, ev []int, appliance *int) {
	h := c.Layout.Horizon
	battery = genes[:h]
	ev = genes[h : 2*h]
	if c.Layout.HasAppliance {
		appliance = &genes[2*h]
	}
	return battery, ev, appliance
}

// DecodeBattery turns the raw battery action genes into a discharge 0/1
// array and a charge relative-intensity array peaking at 1. See §4.A.
func (c *Codec) DecodeBattery(battery []int) (charge, discharge []float64) {
	h := len(battery)
	charge = make([]float64, h)
	discharge = make([]float64, h)
	rawCharge := make([]float64, h)

	maxRaw := 0.0
	for i, gene := range battery {
		if gene > 0 {
			discharge[i] = float64(gene)
		}
		if gene < 0 {
			rawCharge[i] = float64(-gene)
			if rawCharge[i] > maxRaw {
				maxRaw = rawCharge[i]
			}
		}
	}

	if maxRaw > 0 {
		for i := range charge {
			charge[i] = rawCharge[i] / maxRaw
		}
	}

	return charge, discharge
}

// DecodeEV maps each EV charge index gene through the configured current
// table I.
func (c *Codec) DecodeEV(ev []int) []float64 {
	out := make([]float64, len(ev))
	for i, idx := range ev {
		if idx < 0 || idx >= len(c.Currents) {
			idx = 0
		}
		out[i] = c.Currents[idx]
	}
	return out
}
