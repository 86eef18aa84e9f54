package processor

import (
	"bytes"
	"math"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *SalesTable {
	df := dataframe.New(
		series.New([]string{"1", "1", "1", "2", "2", "2"}, series.Int, "Store Number"),
		series.New([]string{"2012-02-10", "17-02-2012", "bad", "40949", "NaN", "40949"}, series.String, " Date"),
		series.New([]string{"1500000", "NaN", "1600000", "900000", "800000", "900000"}, series.Float, "Weekly_Sales"),
		series.New([]string{"1", "0", "0", "1", "0", "1"}, series.Int, "Holiday_Flag"),
		series.New([]string{"38.5", "40.1", "NaN", "41", "NaN", "41"}, series.Float, "Temperature"),
	)
	return NewSalesTable(df)
}

func clean(t *testing.T, table *SalesTable) {
	t.Helper()
	_, err := table.ParseDates("Date")
	require.NoError(t, err)
	require.NoError(t, table.NormalizeColumns())
	_, err = table.ForwardFill()
	require.NoError(t, err)
	_, err = table.DropDuplicates()
	require.NoError(t, err)
}

func TestParseDatesCoerces(t *testing.T) {
	table := sampleTable()

	coerced, err := table.ParseDates("date")
	require.NoError(t, err)
	assert.Equal(t, 1, coerced)

	col, err := table.Column(" Date")
	require.NoError(t, err)
	assert.Equal(t, "2012-02-10", col.Elem(0).String())
	assert.Equal(t, "2012-02-17", col.Elem(1).String())
	assert.True(t, col.Elem(2).IsNA())
	assert.Equal(t, "2012-02-10", col.Elem(3).String())
	assert.True(t, col.Elem(4).IsNA())
}

func TestParseDatesMissingColumn(t *testing.T) {
	_, err := sampleTable().ParseDates("when")
	assert.Error(t, err)
}

func TestNormalizeColumns(t *testing.T) {
	table := sampleTable()
	require.NoError(t, table.NormalizeColumns())
	assert.Equal(t, []string{"store_number", "date", "weekly_sales", "holiday_flag", "temperature"}, table.Names())

	dup := NewSalesTable(dataframe.New(
		series.New([]int{1}, series.Int, "Store"),
		series.New([]int{1}, series.Int, " store "),
	))
	assert.Error(t, dup.NormalizeColumns())
}

func TestCleanerInvariants(t *testing.T) {
	table := sampleTable()
	loaded := table.Nrow()

	clean(t, table)

	assert.LessOrEqual(t, table.Nrow(), loaded)
	assert.Equal(t, 0, TotalMissing(table))
	assert.Equal(t, 0, DuplicateCount(table))

	// 第三行日期解析失败后由前一行补齐
	date, err := table.Column("date")
	require.NoError(t, err)
	assert.Equal(t, "2012-02-17", date.Elem(2).String())

	sales, err := table.Floats("weekly_sales")
	require.NoError(t, err)
	assert.Equal(t, 1500000.0, sales[1])
}

func TestForwardFillLeadingNA(t *testing.T) {
	table := NewSalesTable(dataframe.New(
		series.New([]string{"NaN", "a", "NaN"}, series.String, "s"),
		series.New([]string{"NaN", "2", "NaN"}, series.Int, "i"),
	))

	filled, err := table.ForwardFill()
	require.NoError(t, err)
	assert.Equal(t, 2, filled)

	s, _ := table.Column("s")
	assert.True(t, s.Elem(0).IsNA())
	assert.Equal(t, "a", s.Elem(2).String())
	i, _ := table.Column("i")
	assert.Equal(t, 2, i.Elem(2).Val())
}

func TestDropDuplicatesKeepsFirst(t *testing.T) {
	table := NewSalesTable(dataframe.New(
		series.New([]int{1, 2, 1, 3, 2}, series.Int, "store"),
		series.New([]string{"a", "b", "a", "c", "x"}, series.String, "tag"),
	))

	dropped, err := table.DropDuplicates()
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	tag, _ := table.Column("tag")
	assert.Equal(t, []string{"a", "b", "c", "x"}, tag.Records())
}

func TestDropDuplicatesFullPrecision(t *testing.T) {
	table := NewSalesTable(dataframe.New(
		series.New([]int{1, 1, 1}, series.Int, "store"),
		series.New([]float64{211.0963582, 211.0963583, 211.0963582}, series.Float, "cpi"),
	))
	assert.Equal(t, 1, DuplicateCount(table))

	dropped, err := table.DropDuplicates()
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	cpi, err := table.Floats("cpi")
	require.NoError(t, err)
	assert.Equal(t, []float64{211.0963582, 211.0963583}, cpi)
}

func TestCalendarFeaturesExample(t *testing.T) {
	table := NewSalesTable(dataframe.New(
		series.New([]int{1}, series.Int, "store"),
		series.New([]string{"2012-02-10"}, series.String, "date"),
		series.New([]float64{1500000}, series.Float, "weekly_sales"),
		series.New([]int{1}, series.Int, "holiday_flag"),
	))

	require.NoError(t, table.AddCalendarFeatures("date"))

	year, _ := table.Column(ColYear)
	month, _ := table.Column(ColMonth)
	weekday, _ := table.Column(ColWeekday)
	weekend, _ := table.Column(ColIsWeekend)
	assert.Equal(t, 2012, year.Elem(0).Val())
	assert.Equal(t, 2, month.Elem(0).Val())
	assert.Equal(t, "Friday", weekday.Elem(0).String())
	assert.Equal(t, false, weekend.Elem(0).Val())
}

func TestIsWeekendMatchesWeekday(t *testing.T) {
	dates := []string{"2012-02-06", "2012-02-07", "2012-02-08", "2012-02-09",
		"2012-02-10", "2012-02-11", "2012-02-12", "NaN"}
	table := NewSalesTable(dataframe.New(series.New(dates, series.String, "date")))
	require.NoError(t, table.AddCalendarFeatures("date"))

	weekday, _ := table.Column(ColWeekday)
	weekend, _ := table.Column(ColIsWeekend)
	for i := 0; i < len(dates); i++ {
		name := weekday.Elem(i).String()
		want := name == "Saturday" || name == "Sunday"
		assert.Equal(t, want, weekend.Elem(i).Val(), dates[i])
	}
	assert.True(t, weekday.Elem(7).IsNA())
}

func TestSalesCategoryQuartiles(t *testing.T) {
	sales := make([]float64, 100)
	for i := range sales {
		sales[i] = float64((i*37)%100 + 1)
	}
	table := NewSalesTable(dataframe.New(series.New(sales, series.Float, "weekly_sales")))

	labels := []string{"Low", "Medium", "High", "Very High"}
	require.NoError(t, table.AddSalesCategory("weekly_sales", labels))

	cat, _ := table.Column(ColSalesCategory)
	counts := map[string]int{}
	for _, r := range cat.Records() {
		counts[r]++
	}
	assert.Len(t, counts, 4)
	for _, l := range labels {
		assert.InDelta(t, 25, counts[l], 1, l)
	}

	// 最小值进入第一箱, 最大值进入最后一箱
	for i, x := range sales {
		if x == 1 {
			assert.Equal(t, "Low", cat.Elem(i).String())
		}
		if x == 100 {
			assert.Equal(t, "Very High", cat.Elem(i).String())
		}
	}
}

func TestSalesCategoryErrors(t *testing.T) {
	flat := NewSalesTable(dataframe.New(series.New([]float64{5, 5, 5, 5}, series.Float, "weekly_sales")))
	assert.Error(t, flat.AddSalesCategory("weekly_sales", []string{"a", "b", "c", "d"}))
	assert.Error(t, flat.AddSalesCategory("weekly_sales", []string{"a"}))
	assert.Error(t, flat.AddSalesCategory("sales", []string{"a", "b", "c", "d"}))
}

func TestQuantileAndBucket(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.75, Quantile(sorted, 0.25))
	assert.Equal(t, 2.5, Quantile(sorted, 0.5))
	assert.Equal(t, 4.0, Quantile(sorted, 1))
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))

	edges := []float64{1, 1.75, 2.5, 3.25, 4}
	assert.Equal(t, 0, Bucket(1, edges))
	assert.Equal(t, 0, Bucket(1.75, edges))
	assert.Equal(t, 1, Bucket(2, edges))
	assert.Equal(t, 3, Bucket(4, edges))
	assert.Equal(t, -1, Bucket(math.NaN(), edges))
	assert.Equal(t, -1, Bucket(5, edges))
}

func TestStats(t *testing.T) {
	s := Summarize("x", []float64{1, 2, 3, 4, math.NaN()})
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 2.5, s.Mean)
	assert.InDelta(t, 1.2909944, s.Std, 1e-6)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, 1.75, s.Q1)

	assert.InDelta(t, 1.0, Correlation([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, Correlation([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-9)
	assert.True(t, math.IsNaN(Correlation([]float64{1, 1}, []float64{1, 2})))

	m := CorrelationMatrix([][]float64{{1, 2, 3}, {1, 3, 2}})
	assert.Equal(t, 1.0, m[0][0])
	assert.Equal(t, m[0][1], m[1][0])

	alpha, beta, ok := LinearFit([]float64{0, 1, 2}, []float64{1, 3, 5})
	assert.True(t, ok)
	assert.InDelta(t, 1, alpha, 1e-9)
	assert.InDelta(t, 2, beta, 1e-9)
}

func TestFitBand(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	y := []float64{1, 3, 2, 5}

	lo, hi, ok := FitBand(x, y, []float64{0, 1.5}, 0.95)
	require.True(t, ok)
	// 拟合线 y = 1.1 + 1.1x, t(0.975, 2) = 4.3027
	assert.InDelta(t, 1.1-4.182656, lo[0], 1e-5)
	assert.InDelta(t, 1.1+4.182656, hi[0], 1e-5)
	assert.InDelta(t, 2.75-2.499615, lo[1], 1e-5)
	assert.InDelta(t, 2.75+2.499615, hi[1], 1e-5)
	// 在x均值处最窄
	assert.Less(t, hi[1]-lo[1], hi[0]-lo[0])

	lo, hi, ok = FitBand([]float64{0, 1, 2}, []float64{1, 3, 5}, []float64{1}, 0.95)
	require.True(t, ok)
	assert.InDelta(t, 3, lo[0], 1e-9)
	assert.InDelta(t, 3, hi[0], 1e-9)

	_, _, ok = FitBand([]float64{1, 2}, []float64{1, 2}, []float64{1}, 0.95)
	assert.False(t, ok)
}

func TestProfilerReport(t *testing.T) {
	table := sampleTable()

	assert.Equal(t, 1, DuplicateCount(table))
	missing := MissingCounts(table)
	require.Len(t, missing, 5)
	assert.Equal(t, MissingCount{Column: "Weekly_Sales", Count: 1}, missing[2])
	assert.Equal(t, 2, missing[4].Count)

	info := Info(table)
	assert.Equal(t, 6, info.Rows)
	assert.Equal(t, series.Float, info.Columns[2].DataType)
	assert.Equal(t, 5, info.Columns[2].NonNull)

	var buf bytes.Buffer
	Report(&buf, table)
	out := buf.String()
	assert.Contains(t, out, "--- DataFrame Info ---")
	assert.Contains(t, out, "--- Summary Statistics ---")
	assert.Contains(t, out, "--- Missing Values ---")
	assert.Contains(t, out, "--- Duplicate Records ---")
	assert.Contains(t, out, "Weekly_Sales")
}
