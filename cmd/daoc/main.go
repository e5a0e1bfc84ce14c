// Command daoc is the CLI entry point of the DAOC clustering engine: it
// parses argv (internal/cliargs), loads an input graph (pkg/rcg, pkg/nsl),
// runs the agglomeration loop (pkg/cluster), and writes every requested
// output view (pkg/cnl, pkg/rhb, pkg/vec).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/daoc-go/daoc/internal/cliargs"
	"github.com/daoc-go/daoc/internal/config"
	"github.com/daoc-go/daoc/pkg/cluster"
	"github.com/daoc-go/daoc/pkg/cnl"
	"github.com/daoc-go/daoc/pkg/graph"
	"github.com/daoc-go/daoc/pkg/nsl"
	"github.com/daoc-go/daoc/pkg/rcg"
	"github.com/daoc-go/daoc/pkg/rhb"
	"github.com/daoc-go/daoc/pkg/vec"
)

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	args, err := cliargs.Parse(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if args.Help {
		printHelp()
		return 0
	}
	if args.PrintVersion {
		printVersion(args.PrintVersionLong)
		return 0
	}
	if len(args.InputFiles) == 0 {
		fmt.Fprintln(os.Stderr, "daoc: no input file given")
		return 2
	}

	cfg := config.New()
	cliargs.Overlay(args, cfg)
	logger := cfg.CreateLogger()

	g, err := loadGraph(args.InputFiles[0], args, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("graph load failed")
		return 1
	}
	if err := g.Validate(); err != nil {
		logger.Error().Err(err).Msg("graph validation failed")
		return 1
	}
	if nodeErrs, linkErrs := g.Errors.Drain(); len(nodeErrs) > 0 || len(linkErrs) > 0 {
		for _, e := range nodeErrs {
			logger.Warn().Msg(e.Error())
		}
		for _, e := range linkErrs {
			logger.Warn().Msg(e.Error())
		}
	}

	if r := reductionSeverity(cfg); r != graph.ReduceNone {
		g.Reduce(r)
	}

	totalWeight := g.TotalWeight()
	nodes := g.Release()
	if len(nodes) == 0 {
		// boundary: empty graph -> empty hierarchy, exit 0, no
		// output files.
		return 0
	}

	if args.Eval != nil {
		// Evaluation runs against the externally supplied reference
		// partition, independent of this run's own hierarchy, so it must
		// happen before cluster.Run takes ownership of nodes.
		if err := evaluate(nodes, totalWeight, cfg.Gamma(), args.Eval); err != nil {
			logger.Error().Err(err).Msg("evaluation failed")
			return 1
		}
	}

	h, err := cluster.Run(nodes, totalWeight, clusterOptions(cfg))
	if err != nil {
		logger.Error().Err(err).Msg("clustering failed")
		return 1
	}

	logger.Info().
		Int("levels", h.NumLevels()).
		Int("rootClusters", h.Score().Clusters).
		Float64("modularity", h.Score().Modularity).
		Msg("clustering completed")

	for _, co := range args.Clusters {
		if err := writeClustersOutput(h, co, cfg); err != nil {
			logger.Error().Err(err).Str("option", co.Raw).Msg("output failed")
			return 1
		}
	}

	if cfg.Vectorize() {
		if err := writeVectorizationOutput(h, cfg); err != nil {
			logger.Error().Err(err).Msg("vectorization output failed")
			return 1
		}
	}

	return 0
}

// writeVectorizationOutput emits the optional node-vectorization output
// over the hierarchy's significant clusters, one
// dimension per significant cluster.
func writeVectorizationOutput(h *cluster.Hierarchy, cfg *config.Config) error {
	out := os.Stdout
	if cfg.VectorizeFile() != "" {
		f, err := os.Create(cfg.VectorizeFile())
		if err != nil {
			return fmt.Errorf("daoc: cannot create vectorization output %q: %w", cfg.VectorizeFile(), err)
		}
		defer f.Close()
		out = f
	}

	clusters := h.SignificantClusters(significantOptions(cfg, cluster.ModeSomeDirect, 0))
	return vec.Write(out, h, clusters, vec.Options{
		Encoding: parseVecEncoding(cfg.VectorizeEncoding()),
		Compress: parseVecCompression(cfg.VectorizeSparse()),
		MinValue: cfg.VectorizeMinValue(),
		Numbered: cfg.VectorizeNumbered(),
	})
}

func parseVecEncoding(s string) vec.Encoding {
	switch s {
	case "bit":
		return vec.EncodingBit
	case "uint8":
		return vec.EncodingUint8
	case "uint16":
		return vec.EncodingUint16
	default:
		return vec.EncodingFloat32
	}
}

func parseVecCompression(sparse bool) vec.Compression {
	if sparse {
		return vec.CompressionSparse
	}
	return vec.CompressionNone
}

// loadGraph dispatches to the RCG or NSL parser by forced format, else by
// file extension.
func loadGraph(path string, args cliargs.ParsedArgs, cfg *config.Config) (*graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("daoc: cannot open input %q: %w", path, err)
	}
	defer f.Close()

	validation := graph.ValidationLevel(cfg.ValidationLevel())
	format := args.ForceFormat
	if format == "" {
		format = detectFormat(path)
	}

	switch format {
	case "r":
		g, _, err := rcg.Parse(f, cfg.SumDuplicates(), cfg.Shuffle(), validation)
		return g, err
	case "e":
		g, _, err := nsl.Parse(f, false, cfg.Weighted(), cfg.SumDuplicates(), cfg.Shuffle(), validation)
		return g, err
	case "a":
		g, _, err := nsl.Parse(f, true, cfg.Weighted(), cfg.SumDuplicates(), cfg.Shuffle(), validation)
		return g, err
	default:
		return nil, fmt.Errorf("daoc: cannot determine input format for %q (use -n{r,e,a})", path)
	}
}

func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rcg":
		return "r"
	case ".nse":
		return "e"
	case ".nsa":
		return "a"
	default:
		return ""
	}
}

func reductionSeverity(cfg *config.Config) graph.ReduceSeverity {
	switch cfg.Reduction() {
	case "accurate":
		return graph.ReduceAccurate
	case "mean":
		return graph.ReduceMean
	case "severe":
		return graph.ReduceSevere
	default:
		return graph.ReduceNone
	}
}

func clusterOptions(cfg *config.Config) cluster.Options {
	return cluster.Options{
		Directed:              cfg.Directed(),
		Gamma:                 cfg.Gamma(),
		GammaRatio:            cfg.GammaRatio(),
		GammaRatioMax:         cfg.GammaRatioMax(),
		GammaMin:              cfg.GammaMin(),
		GammaMax:              cfg.GammaMax(),
		RootBound: cluster.RootBoundPolicy{
			RootMax:     cfg.RootMax(),
			Up:          cfg.BoundUp(),
			Down:        cfg.BoundDown(),
			Standalone:  cfg.BoundStandalone(),
			NonNegative: cfg.BoundNonNegative(),
		},
		GainMargin:            cfg.GainMargin(),
		GainMarginBySqrtLinks: cfg.GainMarginBySqrtLinks(),
		FilterMargin:          cfg.FilterMargin(),
		ChainsExtra:           cfg.ChainsExtra(),
		FuzzyOverlap:          cfg.FuzzyOverlap(),
		Prefilter:             cfg.Prefilter(),
		UseAOH:                cfg.AOHEnabled(),
		MaxLevels:             cfg.MaxLevels(),
		Logger:                cfg.CreateLogger(),
		Timings:               cfg.Timings(),
		Informative:           cfg.Informative(),
	}
}

// evaluate implements "-e{c,m,g}=file": it scores the
// externally supplied reference CNL's own partition against nodes, not
// anything this run itself produces.
func evaluate(nodes []*graph.Node, totalWeight, gamma float64, ev *cliargs.EvalRequest) error {
	f, err := os.Open(ev.File)
	if err != nil {
		return fmt.Errorf("daoc: cannot open eval reference %q: %w", ev.File, err)
	}
	defer f.Close()
	reference, err := cnl.Read(f)
	if err != nil {
		return fmt.Errorf("daoc: cannot parse eval reference %q: %w", ev.File, err)
	}

	m := cluster.EvaluateExternal(nodes, totalWeight, gamma, reference, ev.Conductance, ev.Modularity, ev.ExpectedG)
	if ev.Conductance {
		fmt.Printf("conductance=%.6f\n", m.Conductance)
	}
	if ev.Modularity {
		fmt.Printf("modularity=%.6f\n", m.Modularity)
	}
	if ev.ExpectedG {
		fmt.Printf("expectedGamma=%.6f\n", m.ExpectedG)
	}
	return nil
}

// writeClustersOutput dispatches one "-c..." request to the matching
// output selector and printer.
func writeClustersOutput(h *cluster.Hierarchy, co cliargs.ClustersOutput, cfg *config.Config) error {
	out := os.Stdout
	if co.File != "" {
		f, err := os.Create(co.File)
		if err != nil {
			return fmt.Errorf("daoc: cannot create output %q: %w", co.File, err)
		}
		defer f.Close()
		out = f
	}

	switch co.Selector {
	case 'h':
		return rhb.Write(out, h)
	case 'r':
		return writeCNLFromOwners(out, h, rootClusters(h), co, cfg)
	case 's':
		opts := significantOptions(cfg, cluster.ModeSomeDirect, co.Owners)
		return writeCNLFromOwners(out, h, h.SignificantClusters(opts), co, cfg)
	case 'S':
		opts := significantOptions(cfg, cluster.ModeAllDirect, co.Owners)
		return writeCNLFromOwners(out, h, h.SignificantClusters(opts), co, cfg)
	case 'l':
		levels := h.CustomLevels(cfg.LevStepRatio(), cfg.MargMin(), cfg.MargMax())
		var all []cluster.NodeOwner
		for _, lv := range levels {
			all = append(all, h.PerLevel(lv, true)...)
		}
		return writeCNLFromOwners(out, h, all, co, cfg)
	case 'a':
		var all []cluster.NodeOwner
		for lv := 0; lv < h.NumLevels(); lv++ {
			all = append(all, h.PerLevel(lv, true)...)
		}
		return writeCNLFromOwners(out, h, all, co, cfg)
	default:
		return fmt.Errorf("daoc: unsupported cluster selector %q", string(co.Selector))
	}
}

func rootClusters(h *cluster.Hierarchy) []cluster.NodeOwner {
	root := h.Root()
	if root == nil {
		return nil
	}
	return h.PerLevel(h.NumLevels()-1, true)
}

func significantOptions(cfg *config.Config, mode cluster.SignificantMode, owners rune) cluster.SignificantOptions {
	if owners == 'x' {
		switch mode {
		case cluster.ModeSomeDirect:
			mode = cluster.ModeSomeHier
		case cluster.ModeAllDirect:
			mode = cluster.ModeAllHier
		}
	}
	return cluster.SignificantOptions{
		DensityDrop: cfg.DensityDrop(),
		WeightStep:  cfg.WeightStep(),
		Mode:        mode,
		SzMinRule:   cfg.SzMin(),
	}
}

func writeCNLFromOwners(out *os.File, h *cluster.Hierarchy, owners []cluster.NodeOwner, co cliargs.ClustersOutput, cfg *config.Config) error {
	var clusters []cnl.Cluster
	for i, no := range owners {
		members := h.Unwrap(no.Level, no.ClusterIdx, false)
		nodeIDs := make([]uint32, 0, len(members))
		for nodeID := range members {
			nodeIDs = append(nodeIDs, uint32(nodeID))
		}
		sort.Slice(nodeIDs, func(a, b int) bool { return nodeIDs[a] < nodeIDs[b] })

		c := cnl.Cluster{ID: i, HasID: true}
		for _, nodeID := range nodeIDs {
			m := cnl.Member{NodeID: nodeID}
			if co.Fuzzy {
				m.Share, m.HasShare = members[graph.ID(nodeID)], true
			}
			c.Members = append(c.Members, m)
		}
		clusters = append(clusters, c)
	}
	format := cnl.FormatSimple
	switch co.Format {
	case 'p':
		format = cnl.FormatPure
	case 'h':
		format = cnl.FormatShared
	case 'e':
		format = cnl.FormatExtended
	}
	return cnl.Write(out, clusters, format, co.Fuzzy, co.Owners != 0)
}

func printVersion(long bool) {
	fmt.Printf("daoc version %s\n", version)
	if long {
		fmt.Println("Deterministic Agglomerative Overlapping Clustering engine (Go port)")
	}
}

func printHelp() {
	fmt.Println(`daoc - deterministic parameter-free agglomerative clustering

Usage: daoc [options] input-file

  -c[f][o|x]{r|s|S|l|a|h}[fmt][=file]  clusters output
  -e{c,m,g}*=file                      evaluate intrinsic measures
  -a                                   accumulate weights of duplicated links
  -g=gamma                             static resolution
  -gr[rstep][:rmax][=gmin:gmax]        dynamic resolution sweep
  -b[s][p][u|d][=rootMax]              root-bound policy
  -r[w][a|m|s]                         link reduction
  -l=0..2                              validation severity
  -f=margin                            prefilter margin
  -m[s]=gainMargin                     gain-based early exit
  -s                                   shuffle input order
  -t                                   timings
  -i                                   informative per-iteration trace
  -x{a}                                disable a feature (a = AOH)
  -n{r,e,a}                            force input format
  -V[x]                                print version
  -h                                   this help`)
}
