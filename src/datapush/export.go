package datapush

import (
	"fmt"
	"math"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"

	"SalesInsight/src/processor"
	"SalesInsight/src/utils"
)

// WriteCSV 导出整张表: 带标题行, 不带索引列, 覆盖同名文件
// 浮点数按完整精度写出, 缺失值写为NaN
func WriteCSV(t *processor.SalesTable, filePath string) error {
	df := t.GetDF()
	records := make([][]string, 0, df.Nrow()+1)
	records = append(records, df.Names())

	cols := make([]series.Series, df.Ncol())
	for i, name := range df.Names() {
		cols[i] = df.Col(name)
	}
	for r := 0; r < df.Nrow(); r++ {
		row := make([]string, len(cols))
		for c, col := range cols {
			row[c] = utils.CellText(col.Elem(r))
		}
		records = append(records, row)
	}

	text := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if text.Err != nil {
		return fmt.Errorf("准备CSV数据失败: %w", text.Err)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("创建CSV文件失败: %w", err)
	}
	if err := text.WriteCSV(f, dataframe.WriteHeader(true)); err != nil {
		f.Close()
		return fmt.Errorf("写入CSV失败: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("关闭CSV文件失败: %w", err)
	}
	return nil
}

// SaveToExcel 将表保存为xlsx, 另附 profile 工作表记录描述统计和缺失值
func SaveToExcel(t *processor.SalesTable, filePath string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "sales"
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("重命名工作表失败: %w", err)
	}

	df := t.GetDF()
	colNames := df.Names()
	header := make([]interface{}, len(colNames))
	for i, name := range colNames {
		header[i] = name
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("写入标题行失败: %w", err)
	}

	cols := make([]series.Series, len(colNames))
	for i, name := range colNames {
		cols[i] = df.Col(name)
	}
	for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
		row := make([]interface{}, len(colNames))
		for colIdx := range colNames {
			// 缺失值为nil, 写成空单元格
			row[colIdx] = cols[colIdx].Val(rowIdx)
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("写入第 %d 行失败: %w", rowIdx+2, err)
		}
	}

	if err := writeProfile(f, t); err != nil {
		return err
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}

func writeProfile(f *excelize.File, t *processor.SalesTable) error {
	const sheet = "profile"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("创建profile工作表失败: %w", err)
	}

	rows := [][]interface{}{
		{"column", "count", "mean", "std", "min", "25%", "50%", "75%", "max", "missing"},
	}
	missing := make(map[string]int)
	for _, m := range processor.MissingCounts(t) {
		missing[m.Column] = m.Count
	}
	for _, s := range processor.Describe(t) {
		rows = append(rows, []interface{}{
			s.Column, s.Count, cellFloat(s.Mean), cellFloat(s.Std), cellFloat(s.Min),
			cellFloat(s.Q1), cellFloat(s.Median), cellFloat(s.Q3), cellFloat(s.Max), missing[s.Column],
		})
	}

	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("写入profile失败: %w", err)
		}
	}
	return nil
}

// cellFloat NaN无法写入xlsx, 用空单元格代替
func cellFloat(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
