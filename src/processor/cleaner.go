package processor

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"SalesInsight/src/utils"
)

var lower = cases.Lower(language.Und)

// NormalizeName 去首尾空白, 空格换成下划线, 转小写
func NormalizeName(name string) string {
	return lower.String(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// findColumn 按规范化名称查找列, 返回实际列名
func findColumn(df dataframe.DataFrame, name string) (string, bool) {
	want := NormalizeName(name)
	for _, n := range df.Names() {
		if NormalizeName(n) == want {
			return n, true
		}
	}
	return "", false
}

// ParseDates 将日期列解析为 2006-01-02 文本; 无法解析的值置为缺失, 不报错
// 返回被置为缺失的数量(原本就缺失的不计)
func (t *SalesTable) ParseDates(column string) (int, error) {
	coerced := 0
	err := t.update(func(df dataframe.DataFrame) (dataframe.DataFrame, error) {
		actual, ok := findColumn(df, column)
		if !ok {
			return df, fmt.Errorf("日期列 %q 不存在", column)
		}

		col := df.Col(actual)
		records := col.Records()
		for i, v := range records {
			if col.Elem(i).IsNA() {
				records[i] = "NaN"
				continue
			}
			d, ok := utils.ParseDate(v)
			if !ok {
				records[i] = "NaN"
				coerced++
				continue
			}
			records[i] = d.Format(utils.DateLayout)
		}
		return df.Mutate(series.New(records, series.String, actual)), nil
	})
	return coerced, err
}

// NormalizeColumns 规范化全部列名
func (t *SalesTable) NormalizeColumns() error {
	return t.update(func(df dataframe.DataFrame) (dataframe.DataFrame, error) {
		seen := make(map[string]string, df.Ncol())
		cols := make([]series.Series, 0, df.Ncol())
		for _, name := range df.Names() {
			normalized := NormalizeName(name)
			if prev, dup := seen[normalized]; dup {
				return df, fmt.Errorf("列 %q 与 %q 规范化后重名: %s", prev, name, normalized)
			}
			seen[normalized] = name

			s := df.Col(name).Copy()
			s.Name = normalized
			cols = append(cols, s)
		}
		return dataframe.New(cols...), nil
	})
}

// ForwardFill 每个缺失值取同列中前面最近的非缺失值
// 开头就缺失的单元格保持缺失; 返回填充的单元格数
func (t *SalesTable) ForwardFill() (int, error) {
	filled := 0
	err := t.update(func(df dataframe.DataFrame) (dataframe.DataFrame, error) {
		out := df
		for _, name := range df.Names() {
			col := df.Col(name)
			n := countNA(col)
			if n == 0 {
				continue
			}
			s, count := forwardFillSeries(col)
			filled += count
			out = out.Mutate(s)
		}
		return out, nil
	})
	return filled, err
}

func forwardFillSeries(col series.Series) (series.Series, int) {
	filled := 0
	if col.Type() == series.Float {
		xs := col.Float()
		last := math.NaN()
		for i, x := range xs {
			if math.IsNaN(x) {
				if !math.IsNaN(last) {
					xs[i] = last
					filled++
				}
				continue
			}
			last = x
		}
		return series.New(xs, series.Float, col.Name), filled
	}

	records := col.Records()
	na := col.IsNaN()
	last, has := "", false
	for i := range records {
		if na[i] {
			if has {
				records[i] = last
				filled++
			} else {
				records[i] = "NaN"
			}
			continue
		}
		last, has = records[i], true
	}
	return series.New(records, col.Type(), col.Name), filled
}

// DropDuplicates 删除完全重复的行, 保留第一次出现, 保持行顺序
// 返回删除的行数
func (t *SalesTable) DropDuplicates() (int, error) {
	dropped := 0
	err := t.update(func(df dataframe.DataFrame) (dataframe.DataFrame, error) {
		cols := columnsOf(df)
		seen := make(map[string]struct{}, df.Nrow())
		keep := make([]int, 0, df.Nrow())
		for i := 0; i < df.Nrow(); i++ {
			key := rowKey(cols, i)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keep = append(keep, i)
		}

		dropped = df.Nrow() - len(keep)
		if dropped == 0 {
			return df, nil
		}
		return df.Subset(keep), nil
	})
	return dropped, err
}
