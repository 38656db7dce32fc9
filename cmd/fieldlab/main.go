package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/jori-v/fieldlab/internal/analysis"
	"github.com/jori-v/fieldlab/internal/config"
	"github.com/jori-v/fieldlab/internal/data"
	"github.com/jori-v/fieldlab/internal/dynamo"
	"github.com/jori-v/fieldlab/internal/eval"
	"github.com/jori-v/fieldlab/internal/export"
	"github.com/jori-v/fieldlab/internal/hessian"
	"github.com/jori-v/fieldlab/internal/integrators"
	"github.com/jori-v/fieldlab/internal/model"
	"github.com/jori-v/fieldlab/internal/optim"
	"github.com/jori-v/fieldlab/internal/physics"
	"github.com/jori-v/fieldlab/internal/storage"
	"github.com/jori-v/fieldlab/internal/train"
	"github.com/jori-v/fieldlab/internal/tui"
)

var (
	dataDir    string
	configFile string
	preset     string

	integrator   string
	dt           float64
	tmax         float64
	theta0       float64
	seed         int64
	hidden       int
	activation   string
	epochs       int
	batchSize    int
	lr           float64
	wd           float64
	testFraction float64
	live         bool

	// Sweep / plot
	sweepDts []float64
	variant  string
	svgPath  string

	// Spectrum
	eigK        int
	eigTol      float64
	maxRestarts int
	numBatches  int
	paramNames  []string

	// Grid search
	gridLRs []float64
	gridWDs []float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fieldlab",
		Short: "learn pendulum vector fields and probe their loss curvature",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".fieldlab", "data directory")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "train a field net against the closed-form pendulum",
		RunE:  runTrain,
	}
	trainCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	trainCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	trainCmd.Flags().StringVar(&integrator, "integrator", "rk4", "training integrator (euler|rk4)")
	trainCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	trainCmd.Flags().Float64Var(&tmax, "tmax", config.DefaultTMax, "trajectory length in seconds")
	trainCmd.Flags().Float64Var(&theta0, "theta0", config.DefaultTheta0, "initial angle (rad)")
	trainCmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	trainCmd.Flags().IntVar(&hidden, "hidden", config.DefaultHidden, "hidden units")
	trainCmd.Flags().StringVar(&activation, "activation", "tanh", "hidden activation (identity|tanh|relu)")
	trainCmd.Flags().IntVar(&epochs, "epochs", config.DefaultEpochs, "training epochs")
	trainCmd.Flags().IntVar(&batchSize, "batch", config.DefaultBatchSize, "batch size")
	trainCmd.Flags().Float64Var(&lr, "lr", config.DefaultLearningRate, "learning rate")
	trainCmd.Flags().Float64Var(&wd, "wd", 0.0, "weight decay")
	trainCmd.Flags().Float64Var(&testFraction, "test-frac", config.DefaultTestFraction, "held-out fraction")
	trainCmd.Flags().BoolVar(&live, "live", false, "live training monitor")

	sweepCmd := &cobra.Command{
		Use:   "sweep [run_id]",
		Short: "step-size consistency sweep for a trained run",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().Float64SliceVar(&sweepDts, "dts", nil, "step sizes (default from config)")
	sweepCmd.Flags().StringVar(&variant, "checkpoint", "best", "checkpoint variant (best|final)")
	sweepCmd.Flags().Float64Var(&tmax, "tmax", 0, "sweep horizon (default: training tmax)")
	sweepCmd.Flags().StringVar(&svgPath, "svg", "", "write consistency curve SVG to path")

	spectrumCmd := &cobra.Command{
		Use:   "spectrum [run_id]",
		Short: "top Hessian eigenvalues of the training loss",
		Args:  cobra.ExactArgs(1),
		RunE:  runSpectrum,
	}
	spectrumCmd.Flags().IntVar(&eigK, "k", 5, "number of eigenpairs")
	spectrumCmd.Flags().Float64Var(&eigTol, "tol", 1e-3, "relative residual tolerance")
	spectrumCmd.Flags().IntVar(&maxRestarts, "restarts", 100, "max Lanczos restarts")
	spectrumCmd.Flags().IntVar(&numBatches, "batches", 4, "frozen training batches")
	spectrumCmd.Flags().StringSliceVar(&paramNames, "params", nil, "restrict to named parameters (w1,b1,w2,b2)")
	spectrumCmd.Flags().StringVar(&variant, "checkpoint", "best", "checkpoint variant (best|final)")
	spectrumCmd.Flags().Int64Var(&seed, "seed", 1, "Lanczos start vector seed")

	gridCmd := &cobra.Command{
		Use:   "grid",
		Short: "grid-search learning rate and weight decay",
		RunE:  runGrid,
	}
	gridCmd.Flags().Float64SliceVar(&gridLRs, "lrs", []float64{1e-2, 3e-3, 1e-3}, "learning rates")
	gridCmd.Flags().Float64SliceVar(&gridWDs, "wds", []float64{0, 1e-4}, "weight decays")
	gridCmd.Flags().IntVar(&epochs, "epochs", 50, "epochs per grid point")
	gridCmd.Flags().StringVar(&preset, "preset", "", "base preset configuration")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list training runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot loss history of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&svgPath, "svg", "", "write loss curves SVG to path")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase portrait of the learned field against the reference",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().StringVar(&variant, "checkpoint", "best", "checkpoint variant (best|final)")
	phaseCmd.Flags().Float64Var(&tmax, "tmax", 0, "rollout horizon (default: training tmax)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				fmt.Println(name)
			}
			return nil
		},
	}

	rootCmd.AddCommand(trainCmd, sweepCmd, spectrumCmd, gridCmd, listCmd, plotCmd, phaseCmd, exportCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfig layers preset, config file, and explicitly set CLI flags,
// later sources winning.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %s)", preset, strings.Join(config.ListPresets(), ", "))
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("tmax") {
		cfg.TMax = tmax
	}
	if flags.Changed("theta0") {
		cfg.Theta0 = theta0
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("hidden") {
		cfg.Hidden = hidden
	}
	if flags.Changed("activation") {
		cfg.Activation = activation
	}
	if flags.Changed("epochs") {
		cfg.Epochs = epochs
	}
	if flags.Changed("batch") {
		cfg.BatchSize = batchSize
	}
	if flags.Changed("lr") {
		cfg.LearningRate = lr
	}
	if flags.Changed("wd") {
		cfg.WeightDecay = wd
	}
	if flags.Changed("test-frac") {
		cfg.TestFraction = testFraction
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildSources solves the reference pendulum and splits it into training
// and held-out sources. The same config always produces the same split.
func buildSources(cfg *config.Config) (*data.Source, *data.Source, error) {
	p := physics.NewPendulum()
	ref, err := p.Solve(cfg.TMax, cfg.Dt, cfg.Theta0)
	if err != nil {
		return nil, nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	return data.Split(ref, cfg.TestFraction, cfg.BatchSize, rng)
}

func trainConfig(cfg *config.Config) train.Config {
	return train.Config{
		Integrator:   integrators.Config{Scheme: cfg.Scheme(), Dt: cfg.Dt},
		Epochs:       cfg.Epochs,
		LearningRate: cfg.LearningRate,
		WeightDecay:  cfg.WeightDecay,
	}
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	trainSrc, testSrc, err := buildSources(cfg)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	net := model.New(2, cfg.Hidden, cfg.Act(), rng)

	fmt.Printf("training %s dt=%g hidden=%d act=%s samples=%d/%d\n",
		cfg.Integrator, cfg.Dt, cfg.Hidden, cfg.Activation,
		trainSrc.NumSamples(), testSrc.NumSamples())
	start := time.Now()

	var result *train.Result
	if live {
		err = tui.Run(cmd.Context(), cfg.Epochs, func(ctx context.Context, observer func(train.EpochUpdate)) error {
			var fitErr error
			result, fitErr = train.Fit(ctx, net, trainSrc, testSrc, trainConfig(cfg), observer)
			return fitErr
		})
	} else {
		logEvery := cfg.Epochs / 10
		if logEvery == 0 {
			logEvery = 1
		}
		result, err = train.Fit(cmd.Context(), net, trainSrc, testSrc, trainConfig(cfg), func(u train.EpochUpdate) {
			if u.Epoch%logEvery == 0 || u.Best {
				marker := ""
				if u.Best {
					marker = " *"
				}
				fmt.Printf("epoch %4d/%d  train %.6g  test %.6g%s\n", u.Epoch, u.Epochs, u.TrainLoss, u.TestLoss, marker)
			}
		})
	}
	if err != nil {
		return err
	}

	elapsed := time.Since(start)

	runID, err := st.SaveRun(cfg, result)
	if err != nil {
		return err
	}

	hist := result.History
	fmt.Printf("\ncompleted in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("best: test %.6g @ epoch %d\n", result.Best.TestLoss, result.Best.Epoch)
	fmt.Printf("final: train %.6g test %.6g\n",
		hist.TrainLoss[len(hist.TrainLoss)-1], hist.TestLoss[len(hist.TestLoss)-1])

	if len(hist.TestLoss) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(logAll(hist.TestLoss),
			asciigraph.Height(10),
			asciigraph.Width(70),
			asciigraph.Caption("log10 held-out loss")))
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	net, err := st.LoadNet(runID, variant)
	if err != nil {
		return err
	}

	dts := sweepDts
	if len(dts) == 0 {
		dts = config.DefaultConfig().SweepDts
	}
	horizon := meta.TMax
	if cmd.Flags().Changed("tmax") {
		horizon = tmax
	}

	scheme, err := integrators.ParseScheme(meta.Integrator)
	if err != nil {
		return err
	}

	points, err := eval.Consistency(net, physics.NewPendulum(), eval.SweepConfig{
		Scheme: scheme,
		Dts:    dts,
		TMax:   horizon,
		Theta0: meta.Theta0,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run: %s (%s checkpoint, %s, tmax=%g, theta0=%g)\n\n", runID, variant, meta.Integrator, horizon, meta.Theta0)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DT\tMSE\tENERGY DRIFT\tSTATUS")
	for _, pt := range points {
		status := "ok"
		if pt.Diverged {
			status = "diverged"
		}
		fmt.Fprintf(w, "%g\t%.6g\t%.6g\t%s\n", pt.Dt, pt.Error, pt.Drift, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if svgPath != "" {
		xs := make([]float64, len(points))
		ys := make([]float64, len(points))
		for i, pt := range points {
			xs[i] = pt.Dt
			ys[i] = pt.Error
		}
		if err := export.WriteFile(svgPath, export.ConsistencySVG(xs, ys, 640, 360)); err != nil {
			return err
		}
		fmt.Printf("\nwrote %s\n", svgPath)
	}
	return nil
}

func runSpectrum(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	net, err := st.LoadNet(runID, variant)
	if err != nil {
		return err
	}

	// Rebuild the training split the run was fitted on; the stored seed
	// reproduces the shuffle, so the frozen oracle batches are the first
	// batches of a fresh epoch.
	cfg := metaConfig(meta)
	trainSrc, _, err := buildSources(cfg)
	if err != nil {
		return err
	}

	oracle, err := hessian.NewOracle(net,
		integrators.Config{Scheme: cfg.Scheme(), Dt: cfg.Dt},
		trainSrc, numBatches, paramNames...)
	if err != nil {
		return err
	}

	solver := hessian.NewEigenSolver(rand.New(rand.NewSource(seed)))
	solver.Tol = eigTol
	solver.MaxRestarts = maxRestarts

	fmt.Printf("operator: %d params, %d frozen samples, loss %.6g\n",
		oracle.Dim(), oracle.SubsetSize(), oracle.Loss())
	start := time.Now()

	values, _, err := solver.Solve(oracle, eigK)
	if err != nil {
		return err
	}

	fmt.Printf("solved in %v\n\n", time.Since(start))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tEIGENVALUE")
	for i := len(values) - 1; i >= 0; i-- {
		fmt.Fprintf(w, "%d\t%+.6g\n", len(values)-i, values[i])
	}
	return w.Flush()
}

func metaConfig(meta *storage.RunMetadata) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Integrator = meta.Integrator
	cfg.Dt = meta.Dt
	cfg.TMax = meta.TMax
	cfg.Theta0 = meta.Theta0
	cfg.Seed = meta.Seed
	cfg.Hidden = meta.Hidden
	cfg.Activation = meta.Activation
	cfg.Epochs = meta.Epochs
	cfg.BatchSize = meta.BatchSize
	cfg.LearningRate = meta.LearningRate
	cfg.WeightDecay = meta.WeightDecay
	cfg.TestFraction = meta.TestFraction
	return cfg
}

func runGrid(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Epochs = epochs

	gs, err := optim.NewGridSearch([]string{"lr", "wd"}, [][]float64{gridLRs, gridWDs})
	if err != nil {
		return err
	}

	fmt.Printf("grid: %d points, %d epochs each\n", len(gridLRs)*len(gridWDs), cfg.Epochs)

	bestParams, best, err := gs.Search(cmd.Context(), func(ctx context.Context, params map[string]float64) (float64, error) {
		pointCfg := *cfg
		pointCfg.LearningRate = params["lr"]
		pointCfg.WeightDecay = params["wd"]

		trainSrc, testSrc, err := buildSources(&pointCfg)
		if err != nil {
			return 0, err
		}
		net := model.New(2, pointCfg.Hidden, pointCfg.Act(), rand.New(rand.NewSource(pointCfg.Seed)))
		result, err := train.Fit(ctx, net, trainSrc, testSrc, trainConfig(&pointCfg))
		if err != nil {
			fmt.Printf("  lr=%-8g wd=%-8g failed: %v\n", params["lr"], params["wd"], err)
			return 0, err
		}
		fmt.Printf("  lr=%-8g wd=%-8g best test %.6g\n", params["lr"], params["wd"], result.Best.TestLoss)
		return result.Best.TestLoss, nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nbest: lr=%g wd=%g test %.6g\n", bestParams["lr"], bestParams["wd"], best)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tINTEG\tDT\tHIDDEN\tACT\tEPOCHS\tBEST TEST\tBEST EPOCH")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%d\t%s\t%d\t%.6g\t%d\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Integrator,
			run.Dt,
			run.Hidden,
			run.Activation,
			run.Epochs,
			run.BestTestLoss,
			run.BestEpoch,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	trainLoss, testLoss, err := st.LoadHistory(runID)
	if err != nil {
		return err
	}
	if len(trainLoss) == 0 {
		return fmt.Errorf("no history to plot")
	}

	fmt.Printf("run: %s, %d epochs\n\n", runID, len(trainLoss))
	fmt.Println(asciigraph.Plot(logAll(trainLoss),
		asciigraph.Height(10), asciigraph.Width(70), asciigraph.Caption("log10 train loss")))
	fmt.Println()
	fmt.Println(asciigraph.Plot(logAll(testLoss),
		asciigraph.Height(10), asciigraph.Width(70), asciigraph.Caption("log10 held-out loss")))

	if svgPath != "" {
		if err := export.WriteFile(svgPath, export.LossCurvesSVG(trainLoss, testLoss, 640, 360)); err != nil {
			return err
		}
		fmt.Printf("\nwrote %s\n", svgPath)
	}
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	net, err := st.LoadNet(runID, variant)
	if err != nil {
		return err
	}

	horizon := meta.TMax
	if cmd.Flags().Changed("tmax") {
		horizon = tmax
	}

	p := physics.NewPendulum()
	ref, err := p.Solve(horizon, meta.Dt, meta.Theta0)
	if err != nil {
		return err
	}

	scheme, err := integrators.ParseScheme(meta.Integrator)
	if err != nil {
		return err
	}
	ic := integrators.Config{Scheme: scheme, Dt: meta.Dt}
	roll, err := ic.Rollout(net, ref.States[0], len(ref.States)-1)
	if err != nil {
		return err
	}

	refPortrait := analysis.PortraitOf(ref, 0, 1)
	modelPortrait := analysis.PortraitOf(roll, 0, 1)

	fmt.Printf("run: %s (%s checkpoint)\n", runID, variant)
	fmt.Printf("reference '.' vs learned 'o', theta right, omega up\n\n")
	fmt.Print(analysis.RenderASCII(
		[]*analysis.PhasePortrait{refPortrait, modelPortrait},
		[]rune{'.', 'o'}, 72, 28))

	refFreq := analysis.DominantFrequency(column(ref, 0), meta.Dt)
	modelFreq := analysis.DominantFrequency(column(roll, 0), meta.Dt)
	fmt.Printf("\ndominant frequency: reference %.4g Hz, learned %.4g Hz\n", refFreq, modelFreq)
	return nil
}

func column(tr *dynamo.Trajectory, idx int) []float64 {
	out := make([]float64, 0, len(tr.States))
	for _, x := range tr.States {
		if !x.IsValid() {
			break
		}
		out = append(out, x[idx])
	}
	return out
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func logAll(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		if v <= 0 {
			out[i] = 0
			continue
		}
		out[i] = math.Log10(v)
	}
	return out
}
