package processor

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/go-gota/gota/series"
)

// ColumnInfo 列的结构信息
type ColumnInfo struct {
	Name     string
	NonNull  int
	DataType series.Type
}

// TableInfo 对应 DataFrame Info 段
type TableInfo struct {
	Rows    int
	Columns []ColumnInfo
}

// MissingCount 单列缺失值数量
type MissingCount struct {
	Column string
	Count  int
}

// Info 返回行数以及每列的非空数量与类型
func Info(t *SalesTable) TableInfo {
	df := t.GetDF()
	info := TableInfo{Rows: df.Nrow()}
	for i, name := range df.Names() {
		col := df.Col(name)
		info.Columns = append(info.Columns, ColumnInfo{
			Name:     name,
			NonNull:  col.Len() - countNA(col),
			DataType: df.Types()[i],
		})
	}
	return info
}

// Describe 对每个数值列计算描述统计
func Describe(t *SalesTable) []Summary {
	var out []Summary
	for _, name := range t.NumericColumns() {
		xs, err := t.Floats(name)
		if err != nil {
			continue
		}
		out = append(out, Summarize(name, xs))
	}
	return out
}

// MissingCounts 每列缺失值数量, 按列顺序
func MissingCounts(t *SalesTable) []MissingCount {
	df := t.GetDF()
	counts := make([]MissingCount, 0, df.Ncol())
	for _, name := range df.Names() {
		counts = append(counts, MissingCount{Column: name, Count: countNA(df.Col(name))})
	}
	return counts
}

// TotalMissing 所有列缺失值之和
func TotalMissing(t *SalesTable) int {
	total := 0
	for _, m := range MissingCounts(t) {
		total += m.Count
	}
	return total
}

// DuplicateCount 与之前某行完全相同的行数
func DuplicateCount(t *SalesTable) int {
	df := t.GetDF()
	cols := columnsOf(df)
	seen := make(map[string]struct{}, df.Nrow())
	dups := 0
	for i := 0; i < df.Nrow(); i++ {
		key := rowKey(cols, i)
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

func countNA(col series.Series) int {
	n := 0
	for _, na := range col.IsNaN() {
		if na {
			n++
		}
	}
	return n
}

// Report 打印诊断信息: 结构、描述统计、缺失值、重复行
func Report(w io.Writer, t *SalesTable) {
	info := Info(t)
	fmt.Fprintln(w, "\n--- DataFrame Info ---")
	fmt.Fprintf(w, "%d entries, %d columns\n", info.Rows, len(info.Columns))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tColumn\tNon-Null Count\tDtype")
	for i, c := range info.Columns {
		fmt.Fprintf(tw, "%d\t%s\t%d non-null\t%s\n", i, c.Name, c.NonNull, c.DataType)
	}
	tw.Flush()

	fmt.Fprintln(w, "\n--- Summary Statistics ---")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "column\tcount\tmean\tstd\tmin\t25%\t50%\t75%\tmax\t")
	for _, s := range Describe(t) {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			s.Column, s.Count, num(s.Mean), num(s.Std), num(s.Min),
			num(s.Q1), num(s.Median), num(s.Q3), num(s.Max))
	}
	tw.Flush()

	fmt.Fprintln(w, "\n--- Missing Values ---")
	PrintMissing(w, MissingCounts(t))

	fmt.Fprintln(w, "\n--- Duplicate Records ---")
	fmt.Fprintln(w, DuplicateCount(t))
}

// PrintMissing 打印每列缺失值数量
func PrintMissing(w io.Writer, counts []MissingCount) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, m := range counts {
		fmt.Fprintf(tw, "%s\t%d\n", m.Column, m.Count)
	}
	tw.Flush()
}

func num(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	return fmt.Sprintf("%.6g", f)
}
