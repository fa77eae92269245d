package catmull

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"
)

func near(a, b complex128, eps float64) bool {
	return cmplx.Abs(a-b) <= eps
}

var curve = [4]complex128{complex(0, 0), complex(1, 2), complex(3, 3), complex(6, 2.5)}

func TestEvaluateBoundaries(t *testing.T) {
	p := curve
	got, err := Evaluate(0, p[0], p[1], p[2], p[3])
	if err != nil {
		t.Fatal(err)
	}
	if got != p[1] {
		t.Errorf("Evaluate(0) = %v, want exactly %v", got, p[1])
	}
	got, _ = Evaluate(1, p[0], p[1], p[2], p[3])
	if got != p[2] {
		t.Errorf("Evaluate(1) = %v, want exactly %v", got, p[2])
	}

	// 边界附近连续
	got, _ = Evaluate(1e-9, p[0], p[1], p[2], p[3])
	if !near(got, p[1], 1e-6) {
		t.Errorf("Evaluate near 0 = %v, want ~%v", got, p[1])
	}
}

func TestEvaluateStraightLine(t *testing.T) {
	for _, f := range []float64{0.25, 0.5, 0.75} {
		got, err := Evaluate(f, 0, 1, 2, 3)
		if err != nil {
			t.Fatal(err)
		}
		if !near(got, complex(1+f, 0), 1e-12) {
			t.Errorf("Evaluate(%v) on a uniform line = %v, want %v", f, got, 1+f)
		}
	}
}

func TestEvaluateErrors(t *testing.T) {
	if _, err := Evaluate(0.5, 1, 1, 2, 3); !errors.Is(err, ErrCoincidentPoints) {
		t.Errorf("Expected ErrCoincidentPoints, got %v", err)
	}
	if _, err := Evaluate(0.5, 0, 1, 2, 2); !errors.Is(err, ErrCoincidentPoints) {
		t.Errorf("Expected ErrCoincidentPoints, got %v", err)
	}
	for _, bad := range []float64{-0.1, 1.1, math.NaN()} {
		if _, err := Evaluate(bad, 0, 1, 2, 3); !errors.Is(err, ErrParameterRange) {
			t.Errorf("Evaluate(%v): expected ErrParameterRange, got %v", bad, err)
		}
		if _, err := Derivative(bad, 0, 1, 2, 3); !errors.Is(err, ErrParameterRange) {
			t.Errorf("Derivative(%v): expected ErrParameterRange, got %v", bad, err)
		}
	}
}

func TestParametricIsMonotone(t *testing.T) {
	p := curve
	k, err := Parametric(p[0], p[1], p[2], p[3])
	if err != nil {
		t.Fatal(err)
	}
	if !(k.T0 == 0 && k.T0 < k.T1 && k.T1 < k.T2 && k.T2 < k.T3) {
		t.Errorf("knots not strictly increasing: %+v", k)
	}
	if math.Abs(k.T1-math.Sqrt(cmplx.Abs(p[1]-p[0]))) > 1e-12 {
		t.Errorf("t1 must be the square root of the first chord, got %v", k.T1)
	}
}

func TestTangent(t *testing.T) {
	got, err := Tangent(0, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !near(got, 1, 1e-12) {
		t.Errorf("tangent on a uniform line = %v, want 1", got)
	}

	if _, err := Tangent(1, 1, 2); !errors.Is(err, ErrCoincidentPoints) {
		t.Errorf("Expected ErrCoincidentPoints, got %v", err)
	}
}

func TestTangentScaleInvariance(t *testing.T) {
	p0, p1, p2 := complex(0, 0), complex(1, 1), complex(4, 1.5)
	ref, err := Tangent(p0, p1, p2)
	if err != nil {
		t.Fatal(err)
	}

	for _, k := range []float64{0.001, 0.5, 10, 1e4} {
		s := complex(k, 0)
		got, err := Tangent(s*p0, s*p1, s*p2)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(cmplx.Phase(got)-cmplx.Phase(ref)) > 1e-9 {
			t.Errorf("scale %v: direction changed from %v to %v", k, cmplx.Phase(ref), cmplx.Phase(got))
		}
		if want := cmplx.Abs(ref) * math.Sqrt(k); math.Abs(cmplx.Abs(got)-want) > 1e-9*want {
			t.Errorf("scale %v: magnitude %v, want %v", k, cmplx.Abs(got), want)
		}
	}

	// 平移不变
	shift := complex(48, 11)
	got, _ := Tangent(p0+shift, p1+shift, p2+shift)
	if !near(got, ref, 1e-9) {
		t.Errorf("translation changed tangent: %v vs %v", got, ref)
	}
}

func TestDerivativeMatchesFiniteDifference(t *testing.T) {
	p := curve
	const h = 1e-6
	for _, f := range []float64{0, 0.1, 0.5, 0.9, 1} {
		got, err := Derivative(f, p[0], p[1], p[2], p[3])
		if err != nil {
			t.Fatal(err)
		}

		lo, hi := math.Max(f-h, 0), math.Min(f+h, 1)
		a, _ := Evaluate(lo, p[0], p[1], p[2], p[3])
		b, _ := Evaluate(hi, p[0], p[1], p[2], p[3])
		want := (b - a) / complex(hi-lo, 0)

		if !near(got, want, 1e-4) {
			t.Errorf("Derivative(%v) = %v, finite difference %v", f, got, want)
		}
	}
}

func TestDerivativeStraightLine(t *testing.T) {
	for _, f := range []float64{0, 0.3, 1} {
		got, err := Derivative(f, 0, 1, 2, 3)
		if err != nil {
			t.Fatal(err)
		}
		if !near(got, 1, 1e-12) {
			t.Errorf("Derivative(%v) on a uniform line = %v, want 1", f, got)
		}
	}
}
