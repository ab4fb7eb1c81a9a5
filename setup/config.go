// Package setup provides the geometry and configuration service shared by all
// processing stages.
package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds every tunable value of the emulated processor. It is loaded
// once per run and turned into an immutable Setup by New.
type Config struct {
	// Detector geometry (lengths in cm).
	NumRegions            int       `json:"num_regions" yaml:"num_regions"`
	NumSectorsPhi         int       `json:"num_sectors_phi" yaml:"num_sectors_phi"`
	BoundariesEta         []float64 `json:"boundaries_eta" yaml:"boundaries_eta"`
	ChosenRofPhi          float64   `json:"chosen_r_of_phi" yaml:"chosen_r_of_phi"`
	ChosenRofZ            float64   `json:"chosen_r_of_z" yaml:"chosen_r_of_z"`
	BeamWindowZ           float64   `json:"beam_window_z" yaml:"beam_window_z"`
	HalfLength            float64   `json:"half_length" yaml:"half_length"`
	InnerRadius           float64   `json:"inner_radius" yaml:"inner_radius"`
	OuterRadius           float64   `json:"outer_radius" yaml:"outer_radius"`
	BField                float64   `json:"b_field" yaml:"b_field"`
	MinPt                 float64   `json:"min_pt" yaml:"min_pt"`
	NumLayers             int       `json:"num_layers" yaml:"num_layers"`
	NumDTCsPerRegion      int       `json:"num_dtcs_per_region" yaml:"num_dtcs_per_region"`
	NumOverlappingRegions int       `json:"num_overlapping_regions" yaml:"num_overlapping_regions"`

	// Modules overrides the generated sensor module geometry when non-empty.
	Modules []SensorModule `json:"modules,omitempty" yaml:"modules,omitempty"`

	// Clocking.
	FreqLHCMHz     float64 `json:"freq_lhc_mhz" yaml:"freq_lhc_mhz"`
	FreqBEMHz      float64 `json:"freq_be_mhz" yaml:"freq_be_mhz"`
	FreqIOMHz      float64 `json:"freq_io_mhz" yaml:"freq_io_mhz"`
	TMPTFP         int     `json:"tmp_tfp" yaml:"tmp_tfp"`
	NumFramesInfra int     `json:"num_frames_infra" yaml:"num_frames_infra"`

	// Bit budgets of the DTC stub.
	WidthR   int `json:"width_r" yaml:"width_r"`
	WidthPhi int `json:"width_phi" yaml:"width_phi"`
	WidthZ   int `json:"width_z" yaml:"width_z"`

	// Hough transform.
	HTNumBinsQoverPt int `json:"ht_num_bins_qoverpt" yaml:"ht_num_bins_qoverpt"`
	HTNumBinsPhiT    int `json:"ht_num_bins_phit" yaml:"ht_num_bins_phit"`
	HTMinLayers      int `json:"ht_min_layers" yaml:"ht_min_layers"`

	// Mini Hough transform and its load balancing network.
	MHTNumBinsQoverPt int `json:"mht_num_bins_qoverpt" yaml:"mht_num_bins_qoverpt"`
	MHTNumBinsPhiT    int `json:"mht_num_bins_phit" yaml:"mht_num_bins_phit"`
	MHTNumDLBs        int `json:"mht_num_dlbs" yaml:"mht_num_dlbs"`
	MHTNumDLBNodes    int `json:"mht_num_dlb_nodes" yaml:"mht_num_dlb_nodes"`
	MHTNumDLBChannel  int `json:"mht_num_dlb_channel" yaml:"mht_num_dlb_channel"`
	MHTMinLayers      int `json:"mht_min_layers" yaml:"mht_min_layers"`

	// Geometric processor.
	GPDepthMemory int `json:"gp_depth_memory" yaml:"gp_depth_memory"`

	// Seed filter.
	SFMinLayers int `json:"sf_min_layers" yaml:"sf_min_layers"`
	SFMaxTracks int `json:"sf_max_tracks" yaml:"sf_max_tracks"`
	SFWidthZ0   int `json:"sf_width_z0" yaml:"sf_width_z0"`
	SFWidthCot  int `json:"sf_width_cot" yaml:"sf_width_cot"`

	// Linear regression.
	LRMinLayers       int     `json:"lr_min_layers" yaml:"lr_min_layers"`
	LRMinLayersPS     int     `json:"lr_min_layers_ps" yaml:"lr_min_layers_ps"`
	LRNumIterations   int     `json:"lr_num_iterations" yaml:"lr_num_iterations"`
	LRResidPhi        float64 `json:"lr_resid_phi" yaml:"lr_resid_phi"`
	LRResidZPS        float64 `json:"lr_resid_z_ps" yaml:"lr_resid_z_ps"`
	LRResidZ2S        float64 `json:"lr_resid_z_2s" yaml:"lr_resid_z_2s"`
	LRBaseDiffPhiT    int     `json:"lr_base_diff_phit" yaml:"lr_base_diff_phit"`
	LRBaseDiffQoverPt int     `json:"lr_base_diff_qoverpt" yaml:"lr_base_diff_qoverpt"`
	LRBaseDiffZT      int     `json:"lr_base_diff_zt" yaml:"lr_base_diff_zt"`
	LRBaseDiffCot     int     `json:"lr_base_diff_cot" yaml:"lr_base_diff_cot"`

	// Kalman filter input.
	KF KFConfig `json:"kf" yaml:"kf"`

	// EnableTruncation emulates fixed buffer and link capacities. Items
	// pushed out are routed to lost streams.
	EnableTruncation bool `json:"enable_truncation" yaml:"enable_truncation"`
}

// KFConfig holds the Kalman filter layer limits and the widths and base
// shifts of its internal formats.
type KFConfig struct {
	MinLayers        int `json:"min_layers" yaml:"min_layers"`
	MaxLayers        int `json:"max_layers" yaml:"max_layers"`
	MaxSkippedLayers int `json:"max_skipped_layers" yaml:"max_skipped_layers"`

	WidthQoverPt int `json:"width_qoverpt" yaml:"width_qoverpt"`
	WidthPhi0    int `json:"width_phi0" yaml:"width_phi0"`
	WidthCot     int `json:"width_cot" yaml:"width_cot"`
	WidthZ0      int `json:"width_z0" yaml:"width_z0"`

	BaseShiftV0     int `json:"base_shift_v0" yaml:"base_shift_v0"`
	BaseShiftV1     int `json:"base_shift_v1" yaml:"base_shift_v1"`
	BaseShiftR0     int `json:"base_shift_r0" yaml:"base_shift_r0"`
	BaseShiftR1     int `json:"base_shift_r1" yaml:"base_shift_r1"`
	BaseShiftR02    int `json:"base_shift_r02" yaml:"base_shift_r02"`
	BaseShiftR12    int `json:"base_shift_r12" yaml:"base_shift_r12"`
	BaseShiftS00    int `json:"base_shift_s00" yaml:"base_shift_s00"`
	BaseShiftS01    int `json:"base_shift_s01" yaml:"base_shift_s01"`
	BaseShiftS12    int `json:"base_shift_s12" yaml:"base_shift_s12"`
	BaseShiftS13    int `json:"base_shift_s13" yaml:"base_shift_s13"`
	BaseShiftK00    int `json:"base_shift_k00" yaml:"base_shift_k00"`
	BaseShiftK10    int `json:"base_shift_k10" yaml:"base_shift_k10"`
	BaseShiftK21    int `json:"base_shift_k21" yaml:"base_shift_k21"`
	BaseShiftK31    int `json:"base_shift_k31" yaml:"base_shift_k31"`
	BaseShiftR00    int `json:"base_shift_r00" yaml:"base_shift_r00"`
	BaseShiftR11    int `json:"base_shift_r11" yaml:"base_shift_r11"`
	BaseShiftInvR00 int `json:"base_shift_inv_r00" yaml:"base_shift_inv_r00"`
	BaseShiftInvR11 int `json:"base_shift_inv_r11" yaml:"base_shift_inv_r11"`
	BaseShiftChi20  int `json:"base_shift_chi20" yaml:"base_shift_chi20"`
	BaseShiftChi21  int `json:"base_shift_chi21" yaml:"base_shift_chi21"`
	BaseShiftChi2   int `json:"base_shift_chi2" yaml:"base_shift_chi2"`
	BaseShiftC00    int `json:"base_shift_c00" yaml:"base_shift_c00"`
	BaseShiftC01    int `json:"base_shift_c01" yaml:"base_shift_c01"`
	BaseShiftC11    int `json:"base_shift_c11" yaml:"base_shift_c11"`
	BaseShiftC22    int `json:"base_shift_c22" yaml:"base_shift_c22"`
	BaseShiftC23    int `json:"base_shift_c23" yaml:"base_shift_c23"`
	BaseShiftC33    int `json:"base_shift_c33" yaml:"base_shift_c33"`
}

// DefaultConfig returns the configuration of the reference processor.
func DefaultConfig() *Config {
	return &Config{
		NumRegions:    9,
		NumSectorsPhi: 2,
		BoundariesEta: []float64{
			-2.40, -2.08, -1.68, -1.26, -0.90, -0.62, -0.41, -0.20, 0.0,
			0.20, 0.41, 0.62, 0.90, 1.26, 1.68, 2.08, 2.40,
		},
		ChosenRofPhi:          67.24,
		ChosenRofZ:            50.0,
		BeamWindowZ:           15.0,
		HalfLength:            270.0,
		InnerRadius:           19.6,
		OuterRadius:           112.7,
		BField:                3.81120228767395,
		MinPt:                 3.0,
		NumLayers:             7,
		NumDTCsPerRegion:      24,
		NumOverlappingRegions: 2,

		FreqLHCMHz:     40.0,
		FreqBEMHz:      360.0,
		FreqIOMHz:      240.0,
		TMPTFP:         18,
		NumFramesInfra: 6,

		WidthR:   12,
		WidthPhi: 14,
		WidthZ:   12,

		HTNumBinsQoverPt: 16,
		HTNumBinsPhiT:    32,
		HTMinLayers:      5,

		MHTNumBinsQoverPt: 2,
		MHTNumBinsPhiT:    2,
		MHTNumDLBs:        2,
		MHTNumDLBNodes:    8,
		MHTNumDLBChannel:  2,
		MHTMinLayers:      5,

		GPDepthMemory: 32,

		SFMinLayers: 4,
		SFMaxTracks: 32,
		SFWidthZ0:   4,
		SFWidthCot:  3,

		LRMinLayers:       4,
		LRMinLayersPS:     2,
		LRNumIterations:   12,
		LRResidPhi:        0.001,
		LRResidZPS:        0.07,
		LRResidZ2S:        5.57,
		LRBaseDiffPhiT:    -4,
		LRBaseDiffQoverPt: -4,
		LRBaseDiffZT:      -2,
		LRBaseDiffCot:     -12,

		KF: KFConfig{
			MinLayers:        4,
			MaxLayers:        4,
			MaxSkippedLayers: 2,

			WidthQoverPt: 15,
			WidthPhi0:    12,
			WidthCot:     16,
			WidthZ0:      12,

			BaseShiftV0:     -2,
			BaseShiftV1:     -3,
			BaseShiftR0:     -1,
			BaseShiftR1:     -1,
			BaseShiftR02:    -2,
			BaseShiftR12:    -2,
			BaseShiftS00:    -1,
			BaseShiftS01:    -1,
			BaseShiftS12:    -1,
			BaseShiftS13:    -1,
			BaseShiftK00:    -7,
			BaseShiftK10:    -13,
			BaseShiftK21:    -5,
			BaseShiftK31:    -13,
			BaseShiftR00:    -2,
			BaseShiftR11:    -3,
			BaseShiftInvR00: -17,
			BaseShiftInvR11: -13,
			BaseShiftChi20:  -5,
			BaseShiftChi21:  -5,
			BaseShiftChi2:   -5,
			BaseShiftC00:    -5,
			BaseShiftC01:    -6,
			BaseShiftC11:    -7,
			BaseShiftC22:    -5,
			BaseShiftC23:    -6,
			BaseShiftC33:    -5,
		},

		EnableTruncation: true,
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfig loads a Config from a JSON or YAML file. Fields missing from the
// file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON or YAML file, chosen by extension.
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// covers reports whether index maps [0, outer) x [0, inner) one to one onto
// [0, n).
func covers(n, outer, inner int, index func(i, k int) int) bool {
	if outer*inner != n {
		return false
	}
	seen := make([]bool, n)
	for i := 0; i < outer; i++ {
		for k := 0; k < inner; k++ {
			j := index(i, k)
			if j < 0 || j >= n || seen[j] {
				return false
			}
			seen[j] = true
		}
	}
	return true
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Validate checks the configuration for values the processor cannot run with.
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"num_regions", c.NumRegions},
		{"num_sectors_phi", c.NumSectorsPhi},
		{"num_layers", c.NumLayers},
		{"num_dtcs_per_region", c.NumDTCsPerRegion},
		{"num_overlapping_regions", c.NumOverlappingRegions},
		{"tmp_tfp", c.TMPTFP},
		{"width_r", c.WidthR},
		{"width_phi", c.WidthPhi},
		{"width_z", c.WidthZ},
		{"ht_min_layers", c.HTMinLayers},
		{"mht_num_dlbs", c.MHTNumDLBs},
		{"mht_num_dlb_nodes", c.MHTNumDLBNodes},
		{"mht_min_layers", c.MHTMinLayers},
		{"gp_depth_memory", c.GPDepthMemory},
		{"sf_min_layers", c.SFMinLayers},
		{"sf_max_tracks", c.SFMaxTracks},
		{"sf_width_z0", c.SFWidthZ0},
		{"sf_width_cot", c.SFWidthCot},
		{"lr_min_layers", c.LRMinLayers},
		{"lr_num_iterations", c.LRNumIterations},
		{"kf.max_layers", c.KF.MaxLayers},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return invalid("%s must be > 0", p.name)
		}
	}

	if len(c.BoundariesEta) < 2 {
		return invalid("boundaries_eta needs at least two entries")
	}
	for i := 1; i < len(c.BoundariesEta); i++ {
		if c.BoundariesEta[i] <= c.BoundariesEta[i-1] {
			return invalid("boundaries_eta must be strictly increasing")
		}
	}
	if c.InnerRadius >= c.OuterRadius {
		return invalid("inner_radius must be < outer_radius")
	}
	if c.ChosenRofPhi <= 0 || c.ChosenRofZ <= 0 || c.BeamWindowZ <= 0 || c.HalfLength <= 0 {
		return invalid("reference radii, beam window and half length must be > 0")
	}
	if c.BField <= 0 || c.MinPt <= 0 {
		return invalid("b_field and min_pt must be > 0")
	}
	if c.FreqLHCMHz <= 0 || c.FreqBEMHz <= 0 || c.FreqIOMHz <= 0 {
		return invalid("clock frequencies must be > 0")
	}
	if c.NumFramesInfra < 0 {
		return invalid("num_frames_infra must be >= 0")
	}
	if !isPowerOfTwo(c.HTNumBinsQoverPt) || !isPowerOfTwo(c.HTNumBinsPhiT) {
		return invalid("ht bin counts must be powers of two")
	}
	if !isPowerOfTwo(c.MHTNumBinsQoverPt) || !isPowerOfTwo(c.MHTNumBinsPhiT) {
		return invalid("mht bin counts must be powers of two")
	}
	if c.MHTNumBinsQoverPt*c.MHTNumBinsPhiT != 4 {
		return invalid("mht must split each cell into 4 fine cells")
	}
	if c.MHTNumDLBChannel != 2 {
		return invalid("mht_num_dlb_channel must be 2")
	}
	if c.MHTNumDLBNodes*c.MHTNumDLBChannel != c.HTNumBinsQoverPt {
		return invalid("mht_num_dlb_nodes * mht_num_dlb_channel must equal ht_num_bins_qoverpt")
	}
	if c.HTNumBinsQoverPt%(c.MHTNumBinsQoverPt*c.MHTNumBinsPhiT) != 0 {
		return invalid("ht_num_bins_qoverpt must be a multiple of the mht cell count")
	}
	if c.MHTNumDLBs != 2 {
		return invalid("mht_num_dlbs must be 2")
	}
	numCells := c.MHTNumBinsQoverPt * c.MHTNumBinsPhiT
	cellStreams := func(channel, k int) int { return mhtCellStream(c.HTNumBinsQoverPt, numCells, channel, k) }
	if !covers(c.HTNumBinsQoverPt*numCells, c.HTNumBinsQoverPt, numCells, cellStreams) {
		return invalid("mht static load balancers must read every fine cell once")
	}
	nodeInputs := func(node, k int) int { return mhtNodeInput(c.MHTNumDLBNodes, numCells, node, k) }
	if !covers(c.HTNumBinsQoverPt, c.MHTNumDLBNodes, c.MHTNumDLBChannel, nodeInputs) {
		return invalid("mht load balancer nodes must read every channel once")
	}
	if c.LRMinLayersPS < 0 || c.LRMinLayersPS > c.LRMinLayers {
		return invalid("lr_min_layers_ps must be in [0, lr_min_layers]")
	}
	if c.LRResidPhi <= 0 || c.LRResidZPS <= 0 || c.LRResidZ2S <= 0 {
		return invalid("lr residual scales must be > 0")
	}
	if c.KF.MaxLayers > c.NumLayers || c.KF.MinLayers > c.KF.MaxLayers {
		return invalid("kf layer limits must satisfy min <= max <= num_layers")
	}
	if 2*c.NumLayers > 64 {
		return invalid("num_layers too large for the layer map")
	}
	for i, m := range c.Modules {
		if m.NumColumns <= 0 || m.PitchCol <= 0 {
			return invalid("module %d needs positive column count and pitch", i)
		}
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	clone.BoundariesEta = append([]float64(nil), c.BoundariesEta...)
	if c.Modules != nil {
		clone.Modules = append([]SensorModule(nil), c.Modules...)
	}
	return &clone
}
