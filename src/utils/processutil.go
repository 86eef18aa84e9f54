package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// DateLayout 清洗后日期列统一使用的格式
const DateLayout = "2006-01-02"

// 预编译: Excel 日期序列号
var serialPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// 尝试的文本日期格式, 按顺序匹配; 日-月-年 优先于 月/日/年
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"02-01-2006",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"1/2/2006",
	"02.01.2006",
}

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// HasColumn 判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	return Contains(df.Names(), name)
}

// CellText 元素的文本形式, 缺失值为"NaN"
// gota的Float.String()只保留6位小数, 这里按最短可还原的十进制输出
func CellText(e series.Element) string {
	if e.IsNA() {
		return "NaN"
	}
	if e.Type() == series.Float {
		return strconv.FormatFloat(e.Float(), 'f', -1, 64)
	}
	return e.String()
}

// ExcelSerialToTime Excel日期序列号转time.Time
// 基准日为1899-12-30, 对1900-03-01之后的日期正确
func ExcelSerialToTime(excelDays float64) time.Time {
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	days := int(excelDays)
	fraction := excelDays - float64(days)

	return base.AddDate(0, 0, days).
		Add(time.Duration(86400*fraction*1e9) * time.Nanosecond)
}

// ParseDate 解析文本日期或Excel序列号, 无法解析时ok为false
func ParseDate(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "NaN" {
		return time.Time{}, false
	}

	if serialPattern.MatchString(s) {
		days, err := strconv.ParseFloat(s, 64)
		// 序列号 60 为Excel虚构的1900-02-29
		if err != nil || days < 61 {
			return time.Time{}, false
		}
		return ExcelSerialToTime(days), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
