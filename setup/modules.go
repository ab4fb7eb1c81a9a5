package setup

import "math"

// SensorModule describes the position and readout of one detector module ring.
// Lengths are in cm.
type SensorModule struct {
	ID         int     `json:"id" yaml:"id"`
	LayerID    int     `json:"layer_id" yaml:"layer_id"` // 1-6 barrel, 11-15 endcap disks
	Barrel     bool    `json:"barrel" yaml:"barrel"`
	PS         bool    `json:"ps" yaml:"ps"`
	R          float64 `json:"r" yaml:"r"`
	Z          float64 `json:"z" yaml:"z"`
	Cos        float64 `json:"cos" yaml:"cos"` // tilt of the column direction
	Sin        float64 `json:"sin" yaml:"sin"`
	NumColumns int     `json:"num_columns" yaml:"num_columns"`
	PitchCol   float64 `json:"pitch_col" yaml:"pitch_col"`
}

// DZ returns the z resolution of a stub measured by this module.
func (m *SensorModule) DZ() float64 {
	if m.Barrel {
		return m.PitchCol
	}
	return m.PitchCol * math.Abs(m.Z/m.R)
}

// Length returns the extent of the module along its column direction.
func (m *SensorModule) Length() float64 {
	return float64(m.NumColumns) * m.PitchCol
}

// Sensor types.
const (
	psNumColumns  = 32
	psPitchCol    = 0.15
	twoSNumColumn = 2
	twoSPitchCol  = 5.025
)

var (
	barrelRadii      = []float64{23.0, 35.7, 50.8, 68.6, 88.4, 108.0}
	barrelHalfLength = []float64{60.0, 60.0, 60.0, 110.0, 110.0, 110.0}
	diskZ            = []float64{131.0, 155.0, 185.0, 221.0, 265.0}
)

const (
	diskInnerRadius = 23.0
	diskOuterRadius = 110.0
	diskPSMaxRadius = 60.0
)

// DefaultModules generates a simplified tracker: six barrel layers (three PS)
// and five disks per endcap with PS rings at small radii.
func DefaultModules() []SensorModule {
	var modules []SensorModule
	add := func(m SensorModule) {
		m.ID = len(modules)
		modules = append(modules, m)
	}

	for i, r := range barrelRadii {
		ps := i < 3
		m := SensorModule{LayerID: i + 1, Barrel: true, PS: ps, R: r, Cos: 1}
		m.NumColumns, m.PitchCol = twoSNumColumn, twoSPitchCol
		if ps {
			m.NumColumns, m.PitchCol = psNumColumns, psPitchCol
		}
		length := m.Length()
		n := int(math.Ceil(2 * barrelHalfLength[i] / length))
		for k := 0; k < n; k++ {
			m.Z = -float64(n)*length/2 + (float64(k)+0.5)*length
			add(m)
		}
	}

	for _, side := range []float64{-1, 1} {
		for i, z := range diskZ {
			r := diskInnerRadius
			for r < diskOuterRadius {
				ps := r < diskPSMaxRadius
				m := SensorModule{LayerID: 11 + i, PS: ps, Z: side * z, Sin: 1}
				m.NumColumns, m.PitchCol = twoSNumColumn, twoSPitchCol
				if ps {
					m.NumColumns, m.PitchCol = psNumColumns, psPitchCol
				}
				m.R = r + m.Length()/2
				add(m)
				r += m.Length()
			}
		}
	}

	return modules
}

// physical layer ids per internal layer for barrel and endcap stubs
var layerIDs = [7][2]int{
	{1, 1},
	{2, 2},
	{6, 11},
	{5, 12},
	{4, 13},
	{14, 14},
	{3, 15},
}

// LayerID maps an internal layer index and barrel flag to the physical
// detector layer id. It returns 0 for unknown layers.
func LayerID(layer int, barrel bool) int {
	if layer < 0 || layer >= len(layerIDs) {
		return 0
	}
	if barrel {
		return layerIDs[layer][0]
	}
	return layerIDs[layer][1]
}

// InternalLayer maps a physical layer id to the internal layer index used by
// the stub formats. It returns -1 for unknown ids.
func InternalLayer(layerID int, barrel bool) int {
	for layer, ids := range layerIDs {
		id := ids[1]
		if barrel {
			id = ids[0]
		}
		if id == layerID {
			return layer
		}
	}
	return -1
}
