package experiment

import (
	"fmt"
	"os"
	"path"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// writeRewardPlot renders the per-step reward curve of every run into one
// PNG under dir.
func writeRewardPlot(dir, name string, runs []RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Reward"
	for i, r := range runs {
		if len(r.Rewards) == 0 {
			continue
		}
		points := make(plotter.XYs, len(r.Rewards))
		for j, v := range r.Rewards {
			points[j] = plotter.XY{X: float64(j), Y: v}
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("run %d", r.Run), line)
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, path.Join(dir, name+"_rewards.png"))
}
