// data.go
package processor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"SalesInsight/src/utils"
)

// SalesTable 封装销售记录DataFrame并提供线程安全访问
// 清洗与特征步骤原地修改表, 报表与导出只读
type SalesTable struct {
	df dataframe.DataFrame
	mu sync.RWMutex
}

// NewSalesTable 用加载得到的DataFrame创建销售表
func NewSalesTable(df dataframe.DataFrame) *SalesTable {
	return &SalesTable{df: df}
}

// GetDF 获取当前DataFrame(线程安全)
func (t *SalesTable) GetDF() dataframe.DataFrame {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.df
}

// update 在写锁内对DataFrame做一次变换
func (t *SalesTable) update(fn func(df dataframe.DataFrame) (dataframe.DataFrame, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	df, err := fn(t.df)
	if err != nil {
		return err
	}
	if df.Err != nil {
		return df.Err
	}
	t.df = df
	return nil
}

func (t *SalesTable) Nrow() int {
	return t.GetDF().Nrow()
}

func (t *SalesTable) Names() []string {
	return t.GetDF().Names()
}

// Column 返回指定列, 列不存在时返回错误
func (t *SalesTable) Column(name string) (series.Series, error) {
	df := t.GetDF()
	if utils.HasColumn(df, name) {
		return df.Col(name), nil
	}
	return series.Series{}, fmt.Errorf("列 %q 不存在 (现有列: %s)", name, strings.Join(df.Names(), ", "))
}

// Floats 返回数值列的float64切片, 缺失值为NaN
func (t *SalesTable) Floats(name string) ([]float64, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	switch col.Type() {
	case series.Int, series.Float, series.Bool:
		return col.Float(), nil
	default:
		return nil, fmt.Errorf("列 %q 不是数值类型 (%s)", name, col.Type())
	}
}

// NumericColumns 返回所有数值列名(Int/Float/Bool), 保持列顺序
func (t *SalesTable) NumericColumns() []string {
	df := t.GetDF()
	var names []string
	for i, typ := range df.Types() {
		if typ == series.Int || typ == series.Float || typ == series.Bool {
			names = append(names, df.Names()[i])
		}
	}
	return names
}

// rowKey 用于判断整行是否重复
func rowKey(cols []series.Series, i int) string {
	parts := make([]string, len(cols))
	for c, col := range cols {
		elem := col.Elem(i)
		if elem.IsNA() {
			parts[c] = "\x00NA"
			continue
		}
		parts[c] = utils.CellText(elem)
	}
	return strings.Join(parts, "\x1f")
}

func columnsOf(df dataframe.DataFrame) []series.Series {
	cols := make([]series.Series, df.Ncol())
	for i, name := range df.Names() {
		cols[i] = df.Col(name)
	}
	return cols
}
