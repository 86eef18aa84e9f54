package report

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"SalesInsight/src/config"
	"SalesInsight/src/processor"
	"SalesInsight/src/utils"
)

var (
	skyBlue = color.RGBA{R: 135, G: 206, B: 235, A: 255}
	teal    = color.RGBA{R: 0, G: 128, B: 128, A: 255}
	set2    = []color.Color{
		color.RGBA{R: 102, G: 194, B: 165, A: 255},
		color.RGBA{R: 252, G: 141, B: 98, A: 255},
		color.RGBA{R: 141, G: 160, B: 203, A: 255},
	}
)

// Chart 一张图表: 名称决定输出文件名, 尺寸单位为英寸
type Chart struct {
	Name   string
	Width  float64
	Height float64
	Build  func(t *processor.SalesTable, cols *config.DataConfig) (*plot.Plot, error)
}

// BeforeFeatures 清洗后、派生特征前的图表
func BeforeFeatures() []Chart {
	return []Chart{
		{"weekly_sales_distribution", 10, 6, salesHistogram},
		{"holiday_count", 6, 4, holidayCount},
		{"weekly_sales_over_time", 15, 5, salesOverTime},
		{"correlation_matrix", 10, 6, correlationHeatmap},
		{"sales_vs_temperature", 8, 5, temperatureScatter},
		{"holiday_sales_boxplot", 6, 4, holidayBoxplot},
		{"average_sales_by_store", 15, 6, storeAverages},
	}
}

// AfterCalendar 依赖年、月、星期列的图表
func AfterCalendar() []Chart {
	return []Chart{
		{"monthly_sales_trends", 15, 6, monthlyTrends},
		{"sales_by_weekday", 10, 5, weekdayBoxplot},
	}
}

// AfterCategory 销售额分档之后的图表
func AfterCategory() []Chart {
	return []Chart{
		{"unemployment_vs_sales", 8, 5, unemploymentRegression},
	}
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Add(plotter.NewGrid())
	return p
}

func rotateX(p *plot.Plot) {
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = text.XRight
	p.X.Tick.Label.YAlign = text.YCenter
}

// valuesOf 返回非缺失数值
func valuesOf(t *processor.SalesTable, column string) (plotter.Values, error) {
	xs, err := t.Floats(column)
	if err != nil {
		return nil, err
	}
	vals := make(plotter.Values, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			vals = append(vals, x)
		}
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("列 %q 没有数值", column)
	}
	return vals, nil
}

// groupValues 按分组列的文本值收集数值列, 键按数值或字典序排序
func groupValues(t *processor.SalesTable, groupCol, valueCol string) ([]string, map[string]plotter.Values, error) {
	keys, err := t.Column(groupCol)
	if err != nil {
		return nil, nil, err
	}
	xs, err := t.Floats(valueCol)
	if err != nil {
		return nil, nil, err
	}

	groups := make(map[string]plotter.Values)
	for i, x := range xs {
		if math.IsNaN(x) || keys.Elem(i).IsNA() {
			continue
		}
		k := keys.Elem(i).String()
		groups[k] = append(groups[k], x)
	}

	names := make([]string, 0, len(groups))
	for k := range groups {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		a, errA := strconv.ParseFloat(names[i], 64)
		b, errB := strconv.ParseFloat(names[j], 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return names[i] < names[j]
	})
	return names, groups, nil
}

// KDE 高斯核密度估计, 带宽使用Scott规则
func KDE(vals []float64, points int) plotter.XYs {
	n := float64(len(vals))
	sd := stat.StdDev(vals, nil)
	if len(vals) < 2 || sd == 0 || math.IsNaN(sd) || points < 2 {
		return nil
	}
	bw := sd * math.Pow(n, -0.2)
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}

	xys := make(plotter.XYs, points)
	step := (hi - lo) / float64(points-1)
	norm := 1 / (n * bw * math.Sqrt(2*math.Pi))
	for i := range xys {
		x := lo + float64(i)*step
		sum := 0.0
		for _, v := range vals {
			u := (x - v) / bw
			sum += math.Exp(-0.5 * u * u)
		}
		xys[i].X = x
		xys[i].Y = sum * norm
	}
	return xys
}

func salesHistogram(t *processor.SalesTable, cols *config.DataConfig) (*plot.Plot, error) {
	vals, err := valuesOf(t, cols.SalesColumn)
	if err != nil {
		return nil, err
	}

	p := newPlot("Distribution of Weekly Sales", "Weekly Sales", "Frequency")
	h, err := plotter.NewHist(vals, 30)
	if err != nil {
		return nil, err
	}
	h.FillColor = skyBlue
	p.Add(h)

	// 密度曲线按频数缩放到直方图
	if kde := KDE(vals, 200); kde != nil {
		scale := float64(len(vals)) * h.Width
		for i := range kde {
			kde[i].Y *= scale
		}
		line, err := plotter.NewLine(kde)
		if err != nil {
			return nil, err
		}
		line.LineStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
	}
	return p, nil
}

func holidayCount(t *processor.SalesTable, cols *config.DataConfig) (*plot.Plot, error) {
	names, groups, err := groupValues(t, cols.HolidayColumn, cols.HolidayColumn)
	if err != nil {
		return nil, err
	}

	p := newPlot("Holiday vs Non-Holiday Weeks", "Holiday Flag", "Count")
	for i, name := range names {
		counts := make(plotter.Values, len(names))
		counts[i] = float64(len(groups[name]))
		bar, err := plotter.NewBarChart(counts, vg.Points(40))
		if err != nil {
			return nil, err
		}
		bar.Color = set2[i%len(set2)]
		bar.LineStyle.Width = 0
		p.Add(bar)
	}
	p.NominalX(names...)
	return p, nil
}

func salesOverTime(t *processor.SalesTable, cols *config.DataConfig) (*plot.Plot, error) {
	dates, err := t.Column(cols.DateColumn)
	if err != nil {
		return nil, err
	}
	sales, err := t.Floats(cols.SalesColumn)
	if err != nil {
		return nil, err
	}

	// 同一日期取均值
	sum := make(map[int64]float64)
	count := make(map[int64]int)
	for i, s := range sales {
		if math.IsNaN(s) || dates.Elem(i).IsNA() {
			continue
		}
		d, ok := utils.ParseDate(dates.Elem(i).String())
		if !ok {
			continue
		}
		sum[d.Unix()] += s
		count[d.Unix()]++
	}
	if len(sum) == 0 {
		return nil, fmt.Errorf("没有可绘制的日期")
	}

	xys := make(plotter.XYs, 0, len(sum))
	for ts, s := range sum {
		xys = append(xys, plotter.XY{X: float64(ts), Y: s / float64(count[ts])})
	}
	sort.Slice(xys, func(i, j int) bool { return xys[i].X < xys[j].X })

	p := newPlot("Weekly Sales Over Time", "Date", "Weekly Sales")
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01", Time: func(t float64) time.Time {
		return time.Unix(int64(t), 0).UTC()
	}}
	rotateX(p)

	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	line.LineStyle.Color = plotutil.Color(0)
	p.Add(line)
	return p, nil
}

// corrGrid 实现 plotter.GridXYZ, 第0行画在顶部
type corrGrid struct {
	m [][]float64
}

func (g corrGrid) Dims() (c, r int) { return len(g.m), len(g.m) }
func (g corrGrid) X(c int) float64  { return float64(c) }
func (g corrGrid) Y(r int) float64  { return float64(r) }
func (g corrGrid) Z(c, r int) float64 {
	z := g.m[len(g.m)-1-r][c]
	if math.IsNaN(z) {
		return 0
	}
	return z
}

func correlationHeatmap(t *processor.SalesTable, _ *config.DataConfig) (*plot.Plot, error) {
	names := t.NumericColumns()
	if len(names) < 2 {
		return nil, fmt.Errorf("数值列不足, 无法计算相关矩阵")
	}
	data := make([][]float64, len(names))
	for i, name := range names {
		xs, err := t.Floats(name)
		if err != nil {
			return nil, err
		}
		data[i] = xs
	}
	m := processor.CorrelationMatrix(data)

	p := plot.New()
	p.Title.Text = "Correlation Matrix"

	heat := plotter.NewHeatMap(corrGrid{m: m}, moreland.SmoothBlueRed().Palette(255))
	heat.Min, heat.Max = -1, 1
	p.Add(heat)

	// 单元格内标注相关系数
	n := len(names)
	labels := plotter.XYLabels{}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			v := m[r][c]
			label := "nan"
			if !math.IsNaN(v) {
				label = fmt.Sprintf("%.2f", v)
			}
			labels.XYs = append(labels.XYs, plotter.XY{X: float64(c), Y: float64(n - 1 - r)})
			labels.Labels = append(labels.Labels, label)
		}
	}
	annot, err := plotter.NewLabels(labels)
	if err != nil {
		return nil, err
	}
	for i := range annot.TextStyle {
		annot.TextStyle[i].XAlign = text.XCenter
		annot.TextStyle[i].YAlign = text.YCenter
	}
	p.Add(annot)

	reversed := make([]string, n)
	for i, name := range names {
		reversed[n-1-i] = name
	}
	p.NominalX(names...)
	p.NominalY(reversed...)
	rotateX(p)
	return p, nil
}

func temperatureScatter(t *processor.SalesTable, cols *config.DataConfig) (*plot.Plot, error) {
	temp, err := t.Floats(cols.TemperatureColumn)
	if err != nil {
		return nil, err
	}
	sales, err := t.Floats(cols.SalesColumn)
	if err != nil {
		return nil, err
	}
	flags, err := t.Column(cols.HolidayColumn)
	if err != nil {
		return nil, err
	}

	byFlag := make(map[string]plotter.XYs)
	for i := range sales {
		if math.IsNaN(temp[i]) || math.IsNaN(sales[i]) || flags.Elem(i).IsNA() {
			continue
		}
		k := flags.Elem(i).String()
		byFlag[k] = append(byFlag[k], plotter.XY{X: temp[i], Y: sales[i]})
	}
	keys := make([]string, 0, len(byFlag))
	for k := range byFlag {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := newPlot("Weekly Sales vs Temperature", "Temperature", "Weekly Sales")
	p.Legend.Top = true
	for i, k := range keys {
		s, err := plotter.NewScatter(byFlag[k])
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Color = plotutil.Color(i)
		s.GlyphStyle.Radius = vg.Points(2)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(cols.HolidayColumn+"="+k, s)
	}
	return p, nil
}

// boxes 在连续位置上画箱线图, 返回实际画出的分组名
func boxes(p *plot.Plot, names []string, groups map[string]plotter.Values) ([]string, error) {
	var drawn []string
	for _, name := range names {
		vals := groups[name]
		if len(vals) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(30), float64(len(drawn)), vals)
		if err != nil {
			return nil, err
		}
		box.FillColor = set2[len(drawn)%len(set2)]
		p.Add(box)
		drawn = append(drawn, name)
	}
	if len(drawn) == 0 {
		return nil, fmt.Errorf("没有可绘制的分组")
	}
	p.NominalX(drawn...)
	return drawn, nil
}

func holidayBoxplot(t *processor.SalesTable, cols *config.DataConfig) (*plot.Plot, error) {
	names, groups, err := groupValues(t, cols.HolidayColumn, cols.SalesColumn)
	if err != nil {
		return nil, err
	}
	p := newPlot("Sales Distribution: Holiday vs Non-Holiday", "Holiday", "Weekly Sales")
	if _, err := boxes(p, names, groups); err != nil {
		return nil, err
	}
	return p, nil
}

func storeAverages(t *processor.SalesTable, cols *config.DataConfig) (*plot.Plot, error) {
	storeCol, ok := cols.StoreColumn(t.Names())
	if !ok {
		return nil, fmt.Errorf("找不到门店列 %v", cols.StoreColumns)
	}
	means, err := StoreMeans(t, storeCol, cols.SalesColumn)
	if err != nil {
		return nil, err
	}

	values := make(plotter.Values, len(means))
	labels := make([]string, len(means))
	for i, m := range means {
		values[i] = m.Mean
		labels[i] = m.Store
	}

	p := newPlot("Average Weekly Sales by Store", "Store Number", "Average Weekly Sales")
	bar, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return nil, err
	}
	bar.Color = teal
	bar.LineStyle.Width = 0
	p.Add(bar)
	p.NominalX(labels...)
	rotateX(p)
	return p, nil
}

// StoreMean 单个门店的平均周销售额
type StoreMean struct {
	Store string
	Mean  float64
}

// StoreMeans 按门店分组求平均销售额, 从高到低排序
func StoreMeans(t *processor.SalesTable, storeCol, salesCol string) ([]StoreMean, error) {
	if _, err := t.Floats(salesCol); err != nil {
		return nil, err
	}
	groups := t.GetDF().GroupBy(storeCol)
	if groups.Err != nil {
		return nil, fmt.Errorf("门店分组失败: %w", groups.Err)
	}

	var means []StoreMean
	for store, g := range groups.GetGroups() {
		means = append(means, StoreMean{Store: store, Mean: stat.Mean(nonNaN(g.Col(salesCol).Float()), nil)})
	}
	sort.Slice(means, func(i, j int) bool {
		if means[i].Mean == means[j].Mean {
			return means[i].Store < means[j].Store
		}
		return means[i].Mean > means[j].Mean
	})
	return means, nil
}

func nonNaN(xs []float64) []float64 {
	out := xs[:0:0]
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// MonthlyTotals 按年、月汇总销售额; 返回 年 -> 月 -> 合计
func MonthlyTotals(t *processor.SalesTable, salesCol string) (map[int]map[int]float64, error) {
	years, err := t.Floats(processor.ColYear)
	if err != nil {
		return nil, err
	}
	months, err := t.Floats(processor.ColMonth)
	if err != nil {
		return nil, err
	}
	sales, err := t.Floats(salesCol)
	if err != nil {
		return nil, err
	}

	totals := make(map[int]map[int]float64)
	for i, s := range sales {
		if math.IsNaN(s) || math.IsNaN(years[i]) || math.IsNaN(months[i]) {
			continue
		}
		y, m := int(years[i]), int(months[i])
		if totals[y] == nil {
			totals[y] = make(map[int]float64)
		}
		totals[y][m] += s
	}
	return totals, nil
}

func monthlyTrends(t *processor.SalesTable, cols *config.DataConfig) (*plot.Plot, error) {
	totals, err := MonthlyTotals(t, cols.SalesColumn)
	if err != nil {
		return nil, err
	}
	if len(totals) == 0 {
		return nil, fmt.Errorf("没有可汇总的月度数据")
	}

	years := make([]int, 0, len(totals))
	for y := range totals {
		years = append(years, y)
	}
	sort.Ints(years)

	p := newPlot("Monthly Sales Trends Over Years", "Month", "Total Sales")
	p.Legend.Top = true
	var lines []interface{}
	for _, y := range years {
		var xys plotter.XYs
		for m := 1; m <= 12; m++ {
			if v, ok := totals[y][m]; ok {
				xys = append(xys, plotter.XY{X: float64(m), Y: v})
			}
		}
		lines = append(lines, strconv.Itoa(y), xys)
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return nil, err
	}

	ticks := make([]plot.Tick, 12)
	for m := 1; m <= 12; m++ {
		ticks[m-1] = plot.Tick{Value: float64(m), Label: strconv.Itoa(m)}
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	return p, nil
}

func weekdayBoxplot(t *processor.SalesTable, cols *config.DataConfig) (*plot.Plot, error) {
	_, groups, err := groupValues(t, processor.ColWeekday, cols.SalesColumn)
	if err != nil {
		return nil, err
	}
	p := newPlot("Sales Distribution by Day of the Week", "weekday", "weekly_sales")
	if _, err := boxes(p, cols.WeekdayOrder, groups); err != nil {
		return nil, err
	}
	rotateX(p)
	return p, nil
}

func unemploymentRegression(t *processor.SalesTable, cols *config.DataConfig) (*plot.Plot, error) {
	x, err := t.Floats(cols.UnemploymentColumn)
	if err != nil {
		return nil, err
	}
	y, err := t.Floats(cols.SalesColumn)
	if err != nil {
		return nil, err
	}

	var xys plotter.XYs
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xys = append(xys, plotter.XY{X: x[i], Y: y[i]})
		lo, hi = math.Min(lo, x[i]), math.Max(hi, x[i])
	}
	if len(xys) == 0 {
		return nil, fmt.Errorf("没有可绘制的失业率数据")
	}

	p := newPlot("Impact of Unemployment Rate on Weekly Sales", "Unemployment Rate", "Weekly Sales")
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, err
	}
	s.GlyphStyle.Color = plotutil.Color(0)
	s.GlyphStyle.Radius = vg.Points(2)
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(s)

	band, err := confidenceBand(x, y, lo, hi)
	if err != nil {
		return nil, err
	}
	if band != nil {
		p.Add(band)
	}

	if alpha, beta, ok := processor.LinearFit(x, y); ok {
		fit, err := plotter.NewLine(plotter.XYs{
			{X: lo, Y: alpha + beta*lo},
			{X: hi, Y: alpha + beta*hi},
		})
		if err != nil {
			return nil, err
		}
		fit.LineStyle.Color = plotutil.Color(1)
		fit.LineStyle.Width = vg.Points(2)
		p.Add(fit)
	}
	return p, nil
}

// confidenceBand 回归线95%置信区间的填充多边形; 样本不足时返回nil
func confidenceBand(x, y []float64, lo, hi float64) (*plotter.Polygon, error) {
	const steps = 50
	at := make([]float64, steps)
	for i := range at {
		at[i] = lo + (hi-lo)*float64(i)/float64(steps-1)
	}
	lower, upper, ok := processor.FitBand(x, y, at, 0.95)
	if !ok {
		return nil, nil
	}

	ring := make(plotter.XYs, 0, 2*steps)
	for i := range at {
		ring = append(ring, plotter.XY{X: at[i], Y: lower[i]})
	}
	for i := len(at) - 1; i >= 0; i-- {
		ring = append(ring, plotter.XY{X: at[i], Y: upper[i]})
	}
	band, err := plotter.NewPolygon(ring)
	if err != nil {
		return nil, err
	}
	band.Color = color.NRGBA{R: 255, G: 127, B: 14, A: 60}
	band.LineStyle.Width = 0
	return band, nil
}
