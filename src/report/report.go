package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/plot/vg"

	"SalesInsight/src/config"
	"SalesInsight/src/processor"
)

// Reporter 把图表渲染为PNG写入 Dir
type Reporter struct {
	Dir      string
	Columns  *config.DataConfig
	Progress io.Writer // 为nil时不显示进度条
}

func NewReporter(dir string, cols *config.DataConfig, progress io.Writer) *Reporter {
	return &Reporter{Dir: dir, Columns: cols, Progress: progress}
}

// Render 依次渲染charts, 每张图只读取表的当前状态; 任一失败即返回
func (r *Reporter) Render(t *processor.SalesTable, charts []Chart) ([]string, error) {
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return nil, fmt.Errorf("创建图表目录失败: %w", err)
	}

	var bar *progressbar.ProgressBar
	if r.Progress != nil {
		bar = progressbar.NewOptions(len(charts),
			progressbar.OptionSetWriter(r.Progress),
			progressbar.OptionSetDescription("rendering charts"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(r.Progress)
			}),
		)
	}

	paths := make([]string, 0, len(charts))
	for _, c := range charts {
		p, err := c.Build(t, r.Columns)
		if err != nil {
			return paths, fmt.Errorf("生成图表 %s 失败: %w", c.Name, err)
		}

		path := filepath.Join(r.Dir, c.Name+".png")
		if err := p.Save(vg.Length(c.Width)*vg.Inch, vg.Length(c.Height)*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("保存图表 %s 失败: %w", c.Name, err)
		}
		paths = append(paths, path)

		if bar != nil {
			bar.Add(1)
		}
	}
	return paths, nil
}
