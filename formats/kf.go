package formats

import (
	"fmt"
	"math"

	"github.com/sarchlab/tfpsim/setup"
)

// VariableKF identifies a quantity of the Kalman filter arithmetic.
type VariableKF int

// Kalman filter quantities.
const (
	X0 VariableKF = iota
	X1
	X2
	X3
	H00
	H12
	M0
	M1
	V0
	V1
	R0
	R1
	R02
	R12
	S00
	S01
	S12
	S13
	K00
	K10
	K21
	K31
	R00
	R11
	InvR00
	InvR11
	Chi20
	Chi21
	Chi2
	C00
	C01
	C11
	C22
	C23
	C33
	numVariablesKF
)

var variableKFNames = [numVariablesKF]string{
	"x0", "x1", "x2", "x3", "H00", "H12", "m0", "m1", "v0", "v1",
	"r0", "r1", "r02", "r12", "S00", "S01", "S12", "S13",
	"K00", "K10", "K21", "K31", "R00", "R11", "invR00", "invR11",
	"chi20", "chi21", "chi2", "C00", "C01", "C11", "C22", "C23", "C33",
}

func (v VariableKF) String() string {
	if v < 0 || v >= numVariablesKF {
		return fmt.Sprintf("VariableKF(%d)", int(v))
	}
	return variableKFNames[v]
}

// KalmanFilterFormats holds the formats of the Kalman filter arithmetic. They
// are derived from the sf stage formats and the KF base shifts.
type KalmanFilterFormats struct {
	df      *DataFormats
	formats [numVariablesKF]Format
}

// NewKF builds the Kalman filter formats on top of a registry.
func NewKF(df *DataFormats) *KalmanFilterFormats {
	kf := &KalmanFilterFormats{df: df}
	s := df.Setup()
	cfg := s.KF()
	f := &kf.formats

	qOverPt := df.Format(QoverPt, SF)
	f[X0] = Format{twos: true, width: cfg.WidthQoverPt, rng: qOverPt.rng,
		base: qOverPt.base * math.Exp2(float64(qOverPt.width-cfg.WidthQoverPt))}

	phiT, r := df.Format(PhiT, SF), df.Format(R, SF)
	rangePhi0 := 2*math.Pi/float64(s.NumRegions()) + qOverPt.rng/r.rng/2
	shift := ceilLog2(rangePhi0 / phiT.base * math.Exp2(-float64(cfg.WidthPhi0)))
	f[X1] = Format{twos: true, base: phiT.base * math.Exp2(float64(shift)), rng: phiT.rng}
	f[X1].width = ceilLog2(phiT.rng / f[X1].base)

	maxEta := s.BoundaryEta(s.NumSectorsEta())
	cotShift := ceilLog2(2*math.Sinh(maxEta)) - cfg.WidthCot
	f[X2] = Format{twos: true, base: math.Exp2(float64(cotShift)), rng: s.MaxDeltaCot()}
	f[X2].width = ceilLog2(f[X2].rng / f[X2].base)

	z := df.Format(Z, SF)
	f[X3] = Format{twos: true, width: cfg.WidthZ0, rng: 2 * s.BeamWindowZ()}
	f[X3].base = z.base * math.Exp2(float64(ceilLog2(f[X3].rng/z.base*math.Exp2(-float64(cfg.WidthZ0)))))

	f[H00] = r
	f[H12] = Format{base: r.base, rng: s.OuterRadius()}
	f[H12].width = ceilLog2(f[H12].rng / f[H12].base)
	f[M0] = df.Format(Phi, SF)
	f[M1] = z

	x0, x1, x2, x3 := f[X0].base, f[X1].base, f[X2].base, f[X3].base
	shifted := func(twos bool, shift int, base float64) Format {
		return Format{twos: twos, base: math.Exp2(float64(shift)) * base}
	}
	f[V0] = shifted(false, cfg.BaseShiftV0, x1*x1)
	f[V1] = shifted(true, cfg.BaseShiftV1, x3*x3)
	f[R0] = shifted(true, cfg.BaseShiftR0, x1)
	f[R1] = shifted(true, cfg.BaseShiftR1, x3)
	f[R02] = shifted(false, cfg.BaseShiftR02, x1*x1)
	f[R12] = shifted(false, cfg.BaseShiftR12, x3*x3)
	f[S00] = shifted(true, cfg.BaseShiftS00, x0*x1)
	f[S01] = shifted(true, cfg.BaseShiftS01, x1*x1)
	f[S12] = shifted(true, cfg.BaseShiftS12, x2*x3)
	f[S13] = shifted(true, cfg.BaseShiftS13, x3*x3)
	f[K00] = shifted(true, cfg.BaseShiftK00, x0/x1)
	f[K10] = shifted(true, cfg.BaseShiftK10, 1)
	f[K21] = shifted(true, cfg.BaseShiftK21, x2/x3)
	f[K31] = shifted(true, cfg.BaseShiftK31, 1)
	f[R00] = shifted(false, cfg.BaseShiftR00, x1*x1)
	f[R11] = shifted(false, cfg.BaseShiftR11, x3*x3)
	f[InvR00] = shifted(false, cfg.BaseShiftInvR00, 1/x1/x1)
	f[InvR11] = shifted(false, cfg.BaseShiftInvR11, 1/x3/x3)
	f[Chi20] = shifted(false, cfg.BaseShiftChi20, 1)
	f[Chi21] = shifted(false, cfg.BaseShiftChi21, 1)
	f[Chi2] = shifted(false, cfg.BaseShiftChi2, 1)
	f[C00] = shifted(false, cfg.BaseShiftC00, x0*x0)
	f[C01] = shifted(true, cfg.BaseShiftC01, x0*x1)
	f[C11] = shifted(false, cfg.BaseShiftC11, x1*x1)
	f[C22] = shifted(false, cfg.BaseShiftC22, x2*x2)
	f[C23] = shifted(true, cfg.BaseShiftC23, x2*x3)
	f[C33] = shifted(false, cfg.BaseShiftC33, x3*x3)

	return kf
}

// Format returns the format of a Kalman filter quantity.
func (kf *KalmanFilterFormats) Format(v VariableKF) Format { return kf.formats[v] }

// Base returns the LSB value of a Kalman filter quantity.
func (kf *KalmanFilterFormats) Base(v VariableKF) float64 { return kf.formats[v].base }

// Digi quantises a value with the format of a Kalman filter quantity.
func (kf *KalmanFilterFormats) Digi(v VariableKF, d float64) float64 {
	return kf.formats[v].Digi(d)
}

// DataFormats returns the registry the formats were derived from.
func (kf *KalmanFilterFormats) DataFormats() *DataFormats { return kf.df }

// Setup returns the Setup of the underlying registry.
func (kf *KalmanFilterFormats) Setup() *setup.Setup { return kf.df.Setup() }
