package stats

import (
	"math"
	"sort"
)

// Window is a fixed-size sliding window over a series. Every statistic is
// recomputed from the buffered values, so results do not depend on push history.
// A statistic is NaN until the window is full and holds no NaN.
type Window struct {
	size  int
	buf   []float64
	head  int
	count int
	nans  int
}

// NewWindow returns an empty window; sizes below 1 become 1.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{size: size, buf: make([]float64, size)}
}

// Size is the capacity, not the number of buffered values.
func (w *Window) Size() int { return w.size }

// Push appends v, evicting the oldest value once full.
func (w *Window) Push(v float64) {
	if w.count == w.size {
		if math.IsNaN(w.buf[w.head]) {
			w.nans--
		}
	} else {
		w.count++
	}
	w.buf[w.head] = v
	if math.IsNaN(v) {
		w.nans++
	}
	w.head = (w.head + 1) % w.size
}

// Full reports whether size values have been pushed.
func (w *Window) Full() bool { return w.count == w.size }

// Valid reports whether statistics are defined.
func (w *Window) Valid() bool { return w.Full() && w.nans == 0 }

// Values returns the buffered values oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, w.count)
	start := 0
	if w.count == w.size {
		start = w.head
	}
	for i := 0; i < w.count; i++ {
		out = append(out, w.buf[(start+i)%w.size])
	}
	return out
}

// Sum of the buffered values, NaN unless Valid.
func (w *Window) Sum() float64 {
	if !w.Valid() {
		return math.NaN()
	}
	s := 0.0
	for _, v := range w.Values() {
		s += v
	}
	return s
}

// Mean of the buffered values, NaN unless Valid.
func (w *Window) Mean() float64 {
	if !w.Valid() {
		return math.NaN()
	}
	return w.Sum() / float64(w.size)
}

// Std is the sample standard deviation (ddof=1).
func (w *Window) Std() float64 {
	if !w.Valid() || w.size < 2 {
		return math.NaN()
	}
	vals := w.Values()
	mean := w.Mean()
	ss := 0.0
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(w.size-1))
}

// Quantile uses linear interpolation between closest ranks.
func (w *Window) Quantile(p float64) float64 {
	if !w.Valid() {
		return math.NaN()
	}
	return Quantile(w.Values(), p)
}

// Quantile of values with linear interpolation; p is clamped to [0,1].
func Quantile(values []float64, p float64) float64 {
	if len(values) == 0 || math.IsNaN(p) {
		return math.NaN()
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[len(s)-1]
	}
	pos := p * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (s[hi]-s[lo])*(pos-float64(lo))
}

func rolling(xs []float64, n int, stat func(*Window) float64) []float64 {
	out := make([]float64, len(xs))
	w := NewWindow(n)
	for i, v := range xs {
		w.Push(v)
		out[i] = stat(w)
	}
	return out
}

// RollingMean returns the n-bar mean per index, NaN during warm-up.
func RollingMean(xs []float64, n int) []float64 {
	return rolling(xs, n, (*Window).Mean)
}

// RollingStd returns the n-bar sample std per index.
func RollingStd(xs []float64, n int) []float64 {
	return rolling(xs, n, (*Window).Std)
}

// RollingSum returns the n-bar sum per index, NaN during warm-up.
func RollingSum(xs []float64, n int) []float64 {
	return rolling(xs, n, (*Window).Sum)
}

// RollingQuantile returns the n-bar quantile p per index. The window
// includes the current value.
func RollingQuantile(xs []float64, n int, p float64) []float64 {
	return rolling(xs, n, func(w *Window) float64 { return w.Quantile(p) })
}

// ForwardFill replaces NaN with the last finite value seen; leading NaN stay.
func ForwardFill(xs []float64) []float64 {
	out := make([]float64, len(xs))
	last := math.NaN()
	for i, v := range xs {
		if math.IsNaN(v) {
			out[i] = last
			continue
		}
		out[i] = v
		last = v
	}
	return out
}

// FillZero replaces NaN/Inf with 0.
func FillZero(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = OrZero(v)
	}
	return out
}
