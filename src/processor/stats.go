package processor

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Summary 单个数值列的描述统计
type Summary struct {
	Column string
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Q1     float64
	Median float64
	Q3     float64
	Max    float64
}

// dropNaN 返回去掉NaN后的副本
func dropNaN(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// Quantile 返回已排序数据的p分位数
// 在相邻秩之间线性插值: h = (n-1)p
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// Summarize 计算一列的描述统计, 缺失值不参与
func Summarize(name string, xs []float64) Summary {
	vals := dropNaN(xs)
	s := Summary{Column: name, Count: len(vals)}
	if len(vals) == 0 {
		s.Mean, s.Std, s.Min, s.Q1, s.Median, s.Q3, s.Max =
			math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}

	sort.Float64s(vals)
	s.Mean = stat.Mean(vals, nil)
	s.Std = math.NaN()
	if len(vals) > 1 {
		s.Std = stat.StdDev(vals, nil)
	}
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	s.Q1 = Quantile(vals, 0.25)
	s.Median = Quantile(vals, 0.5)
	s.Q3 = Quantile(vals, 0.75)
	return s
}

// pairwise 只保留两列都不缺失的位置
func pairwise(x, y []float64) ([]float64, []float64) {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if i >= len(y) || math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}

// Correlation 皮尔逊相关系数; 样本不足或方差为0时为NaN
func Correlation(x, y []float64) float64 {
	xs, ys := pairwise(x, y)
	if len(xs) < 2 {
		return math.NaN()
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

// CorrelationMatrix 计算多列两两相关系数
func CorrelationMatrix(cols [][]float64) [][]float64 {
	n := len(cols)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			r := Correlation(cols[i], cols[j])
			if i == j && !math.IsNaN(r) {
				r = 1
			}
			m[i][j], m[j][i] = r, r
		}
	}
	return m
}

// LinearFit 最小二乘拟合 y = alpha + beta*x
func LinearFit(x, y []float64) (alpha, beta float64, ok bool) {
	xs, ys := pairwise(x, y)
	if len(xs) < 2 || stat.Variance(xs, nil) == 0 {
		return 0, 0, false
	}
	alpha, beta = stat.LinearRegression(xs, ys, nil, false)
	return alpha, beta, true
}

// FitBand 拟合线在at各点处均值预测的置信区间, level如0.95
// 至少需要3个成对样本
func FitBand(x, y, at []float64, level float64) (lo, hi []float64, ok bool) {
	xs, ys := pairwise(x, y)
	n := float64(len(xs))
	if len(xs) < 3 || stat.Variance(xs, nil) == 0 {
		return nil, nil, false
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	sse := 0.0
	for i := range xs {
		r := ys[i] - (alpha + beta*xs[i])
		sse += r * r
	}
	s2 := sse / (n - 2)
	xbar := stat.Mean(xs, nil)
	sxx := stat.Variance(xs, nil) * (n - 1)
	tq := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 2}.Quantile(1 - (1-level)/2)

	lo = make([]float64, len(at))
	hi = make([]float64, len(at))
	for i, a := range at {
		fit := alpha + beta*a
		half := tq * math.Sqrt(s2*(1/n+(a-xbar)*(a-xbar)/sxx))
		lo[i], hi[i] = fit-half, fit+half
	}
	return lo, hi, true
}
