// reader.go
package file

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
)

// ReadXLSX 读取工作簿中的指定工作表并转换为DataFrame
// headerRow 为标题行下标, 之后的行均为数据
func ReadXLSX(filePath, sheetName string, headerRow int) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("xlsx open file %s: %w", filePath, err)
	}
	return sheetFromFile(xlFile, sheetName, headerRow)
}

// ReadXLSXBinary 从内存中的xlsx数据(例如邮件附件)加载
func ReadXLSXBinary(data []byte, sheetName string, headerRow int) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("xlsx open binary: %w", err)
	}
	return sheetFromFile(xlFile, sheetName, headerRow)
}

// ReadCSV 读取导出的CSV, 自动推断列类型
func ReadCSV(filePath string) (dataframe.DataFrame, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("打开CSV失败: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.DetectTypes(true), dataframe.HasHeader(true))
	if df.Err != nil {
		return df, fmt.Errorf("解析CSV失败: %w", df.Err)
	}
	return df, nil
}

func sheetFromFile(xlFile *xlsx.File, sheetName string, headerRow int) (dataframe.DataFrame, error) {
	if len(xlFile.Sheets) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("excel文件中没有工作表")
	}
	sheet, ok := xlFile.Sheet[sheetName]
	if !ok || sheet == nil {
		return dataframe.DataFrame{}, fmt.Errorf("工作表 %q 不存在", sheetName)
	}
	return convertSheetToDataFrame(sheet, headerRow)
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame
func convertSheetToDataFrame(sheet *xlsx.Sheet, headerRow int) (dataframe.DataFrame, error) {
	if headerRow < 0 || len(sheet.Rows) <= headerRow {
		return dataframe.DataFrame{}, fmt.Errorf("工作表 %s 缺少标题行 %d", sheet.Name, headerRow)
	}

	// 标题行, 尾部的空单元格不算列
	var headers []string
	for _, cell := range sheet.Rows[headerRow].Cells {
		headers = append(headers, cell.Value)
	}
	for len(headers) > 0 && strings.TrimSpace(headers[len(headers)-1]) == "" {
		headers = headers[:len(headers)-1]
	}
	if len(headers) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("工作表 %s 标题行为空", sheet.Name)
	}

	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, 0, len(sheet.Rows)-headerRow-1)
	}

	for _, row := range sheet.Rows[headerRow+1:] {
		if row == nil || isBlankRow(row) {
			continue
		}
		// 短行补空值
		for i := range headers {
			value := ""
			if i < len(row.Cells) && row.Cells[i] != nil {
				value = strings.TrimSpace(row.Cells[i].Value)
			}
			columns[i] = append(columns[i], value)
		}
	}

	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = buildSeries(columns[i], colName)
	}

	df := dataframe.New(seriesList...)
	if df.Err != nil {
		return df, fmt.Errorf("转换为dataframe失败: %w", df.Err)
	}
	return df, nil
}

func isBlankRow(row *xlsx.Row) bool {
	for _, cell := range row.Cells {
		if cell != nil && strings.TrimSpace(cell.Value) != "" {
			return false
		}
	}
	return true
}

// buildSeries 推断列类型: 全部为整数->Int, 全部为数字->Float, 否则String
// 空单元格在任何类型下都是缺失值
func buildSeries(values []string, name string) series.Series {
	colType := InferType(values)

	records := make([]string, len(values))
	for i, v := range values {
		if v == "" {
			records[i] = "NaN"
			continue
		}
		records[i] = v
	}
	return series.New(records, colType, name)
}

// InferType 推断字符串列的类型
func InferType(values []string) series.Type {
	isInt, isFloat, seen := true, true, false
	for _, v := range values {
		if v == "" || v == "NaN" {
			continue
		}
		seen = true
		if _, err := strconv.Atoi(v); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			isFloat = false
			break
		}
	}

	switch {
	case !seen:
		return series.String
	case isInt:
		return series.Int
	case isFloat:
		return series.Float
	default:
		return series.String
	}
}
