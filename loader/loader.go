// Package loader reads and writes event files holding the stubs delivered to
// the track finding processor.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/tfpsim/bitvec"
	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/stream"
)

var (
	// ErrUnknownModule is returned for stubs referring to a sensor module the
	// geometry does not have.
	ErrUnknownModule = errors.New("unknown module")
	// ErrOutOfRange is returned for stubs whose link or fields do not fit the
	// processor.
	ErrOutOfRange = errors.New("stub out of range")
	// ErrTickOrder is returned when a stub is placed before an earlier stub
	// of the same link.
	ErrTickOrder = errors.New("tick out of order")
)

// Stub is one stub of an event file. A stub either carries the raw pp frame
// in Bits or its physical fields, which are encoded through the registry.
type Stub struct {
	// Region is the processor the stub is delivered to.
	Region int `json:"region" yaml:"region"`
	// Channel is the input link within the region.
	Channel int `json:"channel" yaml:"channel"`
	// Tick places the stub at a clock tick of its link. Without it the stub
	// follows the previous stub of the link.
	Tick *int `json:"tick,omitempty" yaml:"tick,omitempty"`
	// Module is the index of the sensor module that measured the stub.
	Module int `json:"module" yaml:"module"`

	// Bits is the pp frame in hex.
	Bits string `json:"bits,omitempty" yaml:"bits,omitempty"`

	R          float64 `json:"r" yaml:"r"`
	Phi        float64 `json:"phi" yaml:"phi"`
	Z          float64 `json:"z" yaml:"z"`
	Layer      int     `json:"layer" yaml:"layer"`
	SectorsPhi []int   `json:"sectors_phi,omitempty" yaml:"sectors_phi,omitempty"`
	EtaMin     int     `json:"eta_min" yaml:"eta_min"`
	EtaMax     int     `json:"eta_max" yaml:"eta_max"`
	QMin       int     `json:"q_min" yaml:"q_min"`
	QMax       int     `json:"q_max" yaml:"q_max"`
}

// Event is the content of an event file.
type Event struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Stubs []Stub `json:"stubs" yaml:"stubs"`
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads an event from a JSON or YAML file.
func Load(path string) (*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event file: %w", err)
	}

	ev := &Event{}
	if isYAML(path) {
		err = yaml.Unmarshal(data, ev)
	} else {
		err = json.Unmarshal(data, ev)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}

	return ev, nil
}

// Save writes an event to a JSON or YAML file, chosen by extension.
func (ev *Event) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(ev)
	} else {
		data, err = json.MarshalIndent(ev, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write event file: %w", err)
	}

	return nil
}

// Streams converts the event into the pp streams of all regions. The Ref ID
// of a frame is the index of its stub in the event.
func (ev *Event) Streams(df *formats.DataFormats) (stream.Streams, error) {
	s := df.Setup()
	numChannel := df.NumChannel(formats.PP)
	streams := stream.NewStreams(s.NumRegions() * numChannel)

	for id, st := range ev.Stubs {
		if st.Region < 0 || st.Region >= s.NumRegions() || st.Channel < 0 || st.Channel >= numChannel {
			return nil, fmt.Errorf("%w: stub %d on region %d channel %d", ErrOutOfRange, id, st.Region, st.Channel)
		}
		module, ok := s.Module(st.Module)
		if !ok {
			return nil, fmt.Errorf("%w: stub %d module %d", ErrUnknownModule, id, st.Module)
		}
		bits, err := st.encode(df)
		if err != nil {
			return nil, fmt.Errorf("stub %d: %w", id, err)
		}

		index := st.Region*numChannel + st.Channel
		link := streams[index]
		if st.Tick != nil {
			if *st.Tick < len(link) {
				return nil, fmt.Errorf("%w: stub %d at tick %d, link already at %d", ErrTickOrder, id, *st.Tick, len(link))
			}
			for len(link) < *st.Tick {
				link = append(link, stream.Gap())
			}
		}
		streams[index] = append(link, stream.Frame{
			Ref:  &stream.Ref{ID: id, Module: module},
			Bits: bits,
		})
	}

	return streams, nil
}

func (st *Stub) encode(df *formats.DataFormats) (bitvec.BV, error) {
	width := df.RecordWidth(formats.RecordPP)
	if st.Bits != "" {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(st.Bits), "0x"), 16, 64)
		if err != nil {
			return bitvec.BV{}, fmt.Errorf("failed to parse bits: %w", err)
		}
		if width < bitvec.MaxSize && v>>uint(width) != 0 {
			return bitvec.BV{}, fmt.Errorf("%w: bits %s wider than %d", ErrOutOfRange, st.Bits, width)
		}
		return bitvec.New(v, width), nil
	}

	s := df.Setup()
	fields := []struct {
		name string
		v    formats.Variable
		val  float64
	}{
		{"r", formats.R, st.R},
		{"phi", formats.Phi, st.Phi},
		{"z", formats.Z, st.Z},
	}
	for _, f := range fields {
		if !df.Format(f.v, formats.PP).InRange(f.val) {
			return bitvec.BV{}, fmt.Errorf("%w: %s %g", ErrOutOfRange, f.name, f.val)
		}
	}
	q := df.Format(formats.QoverPt, formats.PP)
	switch {
	case st.Layer < 0 || st.Layer >= s.NumLayers():
		return bitvec.BV{}, fmt.Errorf("%w: layer %d", ErrOutOfRange, st.Layer)
	case st.EtaMin < 0 || st.EtaMax >= s.NumSectorsEta() || st.EtaMin > st.EtaMax:
		return bitvec.BV{}, fmt.Errorf("%w: eta %d..%d", ErrOutOfRange, st.EtaMin, st.EtaMax)
	case !q.InRangeInt(st.QMin) || !q.InRangeInt(st.QMax) || st.QMin > st.QMax:
		return bitvec.BV{}, fmt.Errorf("%w: q/pT %d..%d", ErrOutOfRange, st.QMin, st.QMax)
	}

	sectors := bitvec.New(0, s.NumSectorsPhi())
	for _, sector := range st.SectorsPhi {
		if sector < 0 || sector >= s.NumSectorsPhi() {
			return bitvec.BV{}, fmt.Errorf("%w: phi sector %d", ErrOutOfRange, sector)
		}
		sectors.Set(sector)
	}

	return df.EncodePP(formats.StubPP{
		R:          st.R,
		Phi:        st.Phi,
		Z:          st.Z,
		Layer:      st.Layer,
		SectorsPhi: sectors,
		EtaMin:     st.EtaMin,
		EtaMax:     st.EtaMax,
		QMin:       st.QMin,
		QMax:       st.QMax,
	}), nil
}
