package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"SalesInsight/src/config"
	"SalesInsight/src/datasource/file"
	"SalesInsight/src/processor"
	"SalesInsight/src/storage"
)

const sheet = "Walmart_sales_analysis"

func writeSalesWorkbook(t *testing.T, dir string) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName(f.GetSheetName(0), sheet)

	rows := [][]interface{}{
		{"Store Number", "Date", "Weekly_Sales", "Holiday_Flag", "Temperature", "Fuel_Price", "CPI", "Unemployment"},
	}
	start := time.Date(2010, 2, 5, 0, 0, 0, 0, time.UTC)
	for store := 1; store <= 3; store++ {
		for w := 0; w < 30; w++ {
			d := start.AddDate(0, 0, 7*w)
			holiday := 0
			if w%8 == 0 {
				holiday = 1
			}
			rows = append(rows, []interface{}{
				store, d.Format("02-01-2006"), float64(store)*500000 + float64(w*(store+3)%17)*10000 + 0.5,
				holiday, 30 + float64(w), 2.5 + float64(w)/100, 211 + float64(store), 8.1 - float64(w)/50,
			})
		}
	}
	// 含有示例记录、重复行、缺失值与无法解析的日期
	rows = append(rows,
		[]interface{}{1, "2012-02-10", 1500000, 1, 40.0, 3.4, 220.0, 7.0},
		[]interface{}{1, "2012-02-10", 1500000, 1, 40.0, 3.4, 220.0, 7.0},
		[]interface{}{2, "not a date", 1400000, 0, nil, 3.5, 219.0, 7.1},
	)

	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}

	path := filepath.Join(dir, "Walmart_sales_data.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func newPipeline(t *testing.T, dir string) (*Pipeline, *bytes.Buffer) {
	t.Helper()
	cfg, cols := config.Default()
	cfg.Input.SheetName = sheet
	cfg.Output.CSVPath = filepath.Join(dir, "cleaned_walmart_sales.csv")
	cfg.Output.XLSXPath = filepath.Join(dir, "cleaned_walmart_sales.xlsx")
	cfg.Output.ChartDir = filepath.Join(dir, "charts")

	logger, err := storage.NewLogger(filepath.Join(dir, "app.log"), "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })

	var out bytes.Buffer
	return New(cfg, cols, logger, &out), &out
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := writeSalesWorkbook(t, dir)
	p, out := newPipeline(t, dir)

	res, err := p.Run(path)
	require.NoError(t, err)

	assert.Equal(t, 93, res.RowsLoaded)
	assert.Equal(t, 92, res.RowsCleaned)
	assert.Equal(t, 1, res.Coerced)
	assert.Len(t, res.Charts, 10)
	assert.Equal(t, 0, processor.TotalMissing(res.Table))

	assert.Equal(t, []string{
		"store_number", "date", "weekly_sales", "holiday_flag", "temperature", "fuel_price", "cpi", "unemployment",
		"year", "month", "weekday", "is_weekend", "sales_category",
	}, res.Table.Names())

	// 示例记录
	df := res.Table.GetDF()
	found := false
	for i := 0; i < df.Nrow(); i++ {
		if df.Col("date").Elem(i).String() == "2012-02-10" && df.Col("weekly_sales").Elem(i).Float() == 1500000 {
			found = true
			assert.Equal(t, 2012, df.Col("year").Elem(i).Val())
			assert.Equal(t, 2, df.Col("month").Elem(i).Val())
			assert.Equal(t, "Friday", df.Col("weekday").Elem(i).String())
			assert.Equal(t, false, df.Col("is_weekend").Elem(i).Val())
		}
	}
	assert.True(t, found)

	back, err := file.ReadCSV(res.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, res.Table.Nrow(), back.Nrow())
	assert.ElementsMatch(t, res.Table.Names(), back.Names())

	text := out.String()
	assert.Contains(t, text, "--- Duplicate Records ---")
	assert.Contains(t, text, "Missing values after forward fill:")
	assert.Contains(t, text, "Cleaned data exported as")
}

func TestRunMissingSheet(t *testing.T) {
	dir := t.TempDir()
	path := writeSalesWorkbook(t, dir)
	p, _ := newPipeline(t, dir)
	p.Cfg.Input.SheetName = "other"

	_, err := p.Run(path)
	assert.Error(t, err)
}

func TestRunMissingColumn(t *testing.T) {
	dir := t.TempDir()
	path := writeSalesWorkbook(t, dir)
	p, _ := newPipeline(t, dir)
	p.Cols.DateColumn = "week"

	_, err := p.Run(path)
	assert.Error(t, err)
}

func TestConcurrentRunsAreSerialized(t *testing.T) {
	dir := t.TempDir()
	path := writeSalesWorkbook(t, dir)
	p, out := newPipeline(t, dir)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Run(path)
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// 第二次运行的诊断输出在第一次导出完成之后才开始
	text := out.String()
	firstDone := strings.Index(text, "Cleaned data exported as")
	secondStart := strings.LastIndex(text, "--- DataFrame Info ---")
	require.GreaterOrEqual(t, firstDone, 0)
	assert.Greater(t, secondStart, firstDone)
	assert.Equal(t, 2, strings.Count(text, "Cleaned data exported as"))

	back, err := file.ReadCSV(p.Cfg.Output.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, 92, back.Nrow())
}

func TestRunWorkbook(t *testing.T) {
	dir := t.TempDir()
	path := writeSalesWorkbook(t, dir)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	p, _ := newPipeline(t, dir)
	res, err := p.RunWorkbook("Walmart_sales_data.xlsx", data)
	require.NoError(t, err)
	assert.Equal(t, 92, res.RowsCleaned)
	assert.Len(t, res.Charts, 10)

	_, err = p.RunWorkbook("broken.xlsx", []byte("not a zip"))
	assert.Error(t, err)
}
