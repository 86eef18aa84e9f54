package processor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"SalesInsight/src/utils"
)

// 派生列名
const (
	ColYear          = "year"
	ColMonth         = "month"
	ColWeekday       = "weekday"
	ColIsWeekend     = "is_weekend"
	ColSalesCategory = "sales_category"
)

// AddCalendarFeatures 从日期列派生年、月、星期名和是否周末
// 日期缺失时年、月、星期为缺失, 是否周末为false
func (t *SalesTable) AddCalendarFeatures(dateColumn string) error {
	return t.update(func(df dataframe.DataFrame) (dataframe.DataFrame, error) {
		actual, ok := findColumn(df, dateColumn)
		if !ok {
			return df, fmt.Errorf("日期列 %q 不存在", dateColumn)
		}

		col := df.Col(actual)
		n := col.Len()
		years := make([]string, n)
		months := make([]string, n)
		weekdays := make([]string, n)
		weekend := make([]bool, n)

		for i := 0; i < n; i++ {
			var d time.Time
			ok := false
			if !col.Elem(i).IsNA() {
				d, ok = utils.ParseDate(col.Elem(i).String())
			}
			if !ok {
				years[i], months[i], weekdays[i] = "NaN", "NaN", "NaN"
				continue
			}
			years[i] = fmt.Sprint(d.Year())
			months[i] = fmt.Sprint(int(d.Month()))
			weekdays[i] = d.Weekday().String()
			weekend[i] = d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
		}

		return df.
			Mutate(series.New(years, series.Int, ColYear)).
			Mutate(series.New(months, series.Int, ColMonth)).
			Mutate(series.New(weekdays, series.String, ColWeekday)).
			Mutate(series.New(weekend, series.Bool, ColIsWeekend)), nil
	})
}

// QuartileEdges 返回全列的 0/25/50/75/100% 分位点
// 相邻分位点相同时无法等频分箱, 返回错误
func QuartileEdges(xs []float64) ([]float64, error) {
	vals := dropNaN(xs)
	if len(vals) == 0 {
		return nil, fmt.Errorf("没有可分箱的数值")
	}
	sort.Float64s(vals)

	edges := make([]float64, 5)
	for i := range edges {
		edges[i] = Quantile(vals, float64(i)/4)
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] == edges[i-1] {
			return nil, fmt.Errorf("分箱边界不唯一: %v", edges)
		}
	}
	return edges, nil
}

// Bucket 按右闭区间归入分箱, 最小值归入第一箱; 缺失或越界返回-1
func Bucket(x float64, edges []float64) int {
	if math.IsNaN(x) || len(edges) < 2 || x < edges[0] || x > edges[len(edges)-1] {
		return -1
	}
	for i := 1; i < len(edges); i++ {
		if x <= edges[i] {
			return i - 1
		}
	}
	return len(edges) - 2
}

// AddSalesCategory 按全表销售额四分位数给每行打标签
// 必须在全部行加载、清洗完成后调用
func (t *SalesTable) AddSalesCategory(salesColumn string, labels []string) error {
	if len(labels) != 4 {
		return fmt.Errorf("需要4个分箱标签, 实际 %d 个", len(labels))
	}
	return t.update(func(df dataframe.DataFrame) (dataframe.DataFrame, error) {
		actual, ok := findColumn(df, salesColumn)
		if !ok {
			return df, fmt.Errorf("销售额列 %q 不存在", salesColumn)
		}
		xs := df.Col(actual).Float()

		edges, err := QuartileEdges(xs)
		if err != nil {
			return df, err
		}

		cats := make([]string, len(xs))
		for i, x := range xs {
			b := Bucket(x, edges)
			if b < 0 {
				cats[i] = "NaN"
				continue
			}
			cats[i] = labels[b]
		}
		return df.Mutate(series.New(cats, series.String, ColSalesCategory)), nil
	})
}
