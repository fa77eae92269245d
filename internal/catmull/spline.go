// Package catmull 向心 Catmull-Rom 样条
//
// 点用 complex128 表示 (实部、虚部各一维)。节点参数用弦长的平方根，
// 在不均匀分布的控制点上不会出现尖点和自交。
package catmull

import (
	"errors"
	"math"
	"math/cmplx"
)

// Alpha 参数化指数: 0 均匀, 0.5 向心, 1 弦长
const Alpha = 0.5

var (
	// ErrCoincidentPoints 相邻控制点重合，弦长为 0
	ErrCoincidentPoints = errors.New("catmull: coincident control points")
	// ErrParameterRange t 不在 [0,1] 内
	ErrParameterRange = errors.New("catmull: t out of range [0,1]")
)

func tj(pi, pj complex128) (float64, error) {
	chord := cmplx.Abs(pj - pi)
	if !(chord > 0) {
		return 0, ErrCoincidentPoints
	}
	return math.Pow(chord, Alpha), nil
}

// Knots 四个节点参数
type Knots struct {
	T0, T1, T2, T3 float64
}

// Parametric 计算 p0..p3 的节点参数，t0 = 0 且严格递增
func Parametric(p0, p1, p2, p3 complex128) (Knots, error) {
	var k Knots
	d, err := tj(p0, p1)
	if err != nil {
		return k, err
	}
	k.T1 = k.T0 + d
	if d, err = tj(p1, p2); err != nil {
		return k, err
	}
	k.T2 = k.T1 + d
	if d, err = tj(p2, p3); err != nil {
		return k, err
	}
	k.T3 = k.T2 + d
	return k, nil
}

func lerp(ta, tb, t float64, a, b complex128) complex128 {
	return complex((tb-t)/(tb-ta), 0)*a + complex((t-ta)/(tb-ta), 0)*b
}

// Evaluate p1 和 p2 之间 t∈[0,1] 处的点
// t=0 恰好返回 p1, t=1 恰好返回 p2
func Evaluate(t float64, p0, p1, p2, p3 complex128) (complex128, error) {
	if t < 0 || t > 1 || math.IsNaN(t) {
		return 0, ErrParameterRange
	}
	k, err := Parametric(p0, p1, p2, p3)
	if err != nil {
		return 0, err
	}
	switch t {
	case 0:
		return p1, nil
	case 1:
		return p2, nil
	}

	u := k.T1 + t*(k.T2-k.T1)

	a1 := lerp(k.T0, k.T1, u, p0, p1)
	a2 := lerp(k.T1, k.T2, u, p1, p2)
	a3 := lerp(k.T2, k.T3, u, p2, p3)

	b1 := lerp(k.T0, k.T2, u, a1, a2)
	b2 := lerp(k.T1, k.T3, u, a2, a3)

	return lerp(k.T1, k.T2, u, b1, b2), nil
}

// Tangent 在中间点 p1 处的切向量
func Tangent(p0, p1, p2 complex128) (complex128, error) {
	d0, err := tj(p0, p1)
	if err != nil {
		return 0, err
	}
	d1, err := tj(p1, p2)
	if err != nil {
		return 0, err
	}
	t0, t1, t2 := 0.0, d0, d0+d1

	v0 := (p1 - p0) / complex(t1-t0, 0)
	v1 := (p2 - p1) / complex(t2-t1, 0)

	return (complex(t2-t1, 0)*v0 + complex(t1-t0, 0)*v1) / complex(t2-t0, 0), nil
}

// Derivative Evaluate 对 t 的导数 (t∈[0,1])
//
// 逐层对线性混合求导:
//
//	A' = (p_{i+1}-p_i)/(t_{i+1}-t_i)
//	B' = (A_{i+1}-A_i)/(t_{i+2}-t_i) + 混合(A')
//	C' = (B2-B1)/(t2-t1) + 混合(B')
//
// 结果乘以 (t2-t1) 换算到归一化的 t。
func Derivative(t float64, p0, p1, p2, p3 complex128) (complex128, error) {
	if t < 0 || t > 1 || math.IsNaN(t) {
		return 0, ErrParameterRange
	}
	k, err := Parametric(p0, p1, p2, p3)
	if err != nil {
		return 0, err
	}
	t0, t1, t2, t3 := k.T0, k.T1, k.T2, k.T3
	u := t1 + t*(t2-t1)
	c := func(v float64) complex128 { return complex(v, 0) }

	a1 := lerp(t0, t1, u, p0, p1)
	a2 := lerp(t1, t2, u, p1, p2)
	a3 := lerp(t2, t3, u, p2, p3)
	da1 := (p1 - p0) / c(t1-t0)
	da2 := (p2 - p1) / c(t2-t1)
	da3 := (p3 - p2) / c(t3-t2)

	b1 := lerp(t0, t2, u, a1, a2)
	b2 := lerp(t1, t3, u, a2, a3)
	db1 := (a2-a1)/c(t2-t0) + lerp(t0, t2, u, da1, da2)
	db2 := (a3-a2)/c(t3-t1) + lerp(t1, t3, u, da2, da3)

	dc := (b2-b1)/c(t2-t1) + lerp(t1, t2, u, db1, db2)
	return dc * c(t2-t1), nil
}
