// Package cliargs parses the combined single-dash CLI argument grammar into
// a ParsedArgs value and overlays it onto an internal/config.Config,
// mirroring internal/config's own "config.Set(key, value)" overlay pattern.
package cliargs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/daoc-go/daoc/internal/config"
)

// ClustersOutput describes one "-c..." output request.
type ClustersOutput struct {
	Raw       string
	Fuzzy     bool // 'f' modifier: fuzzy-overlap output requested
	Owners    rune // 'o' (direct) or 'x' (hierarchical), 0 if unset
	Selector  rune // r|s|S|l|a|h: root, significant-some, significant-all, per-level, all-levels, full hierarchy
	Format    rune // p|s|h|e, 0 if default
	File      string
}

// EvalRequest describes an "-e{c,m,g}*=file" intrinsic-measure evaluation
// request.
type EvalRequest struct {
	Conductance bool
	Modularity  bool
	ExpectedG   bool
	File        string
}

// ParsedArgs is the fully decoded argv, ready to overlay onto a
// config.Config and to drive cmd/daoc's dispatch.
type ParsedArgs struct {
	InputFiles []string

	Clusters []ClustersOutput
	Eval     *EvalRequest

	AccumulateDuplicates bool

	Gamma         float64
	HasGamma      bool
	GammaRatio    float64
	GammaRatioMax float64
	GammaMin      float64
	GammaMax      float64
	HasGammaRange bool

	RootMax          int
	HasRootMax       bool
	BoundStandalone  bool
	BoundUp          bool
	BoundDown        bool
	BoundNonNegative bool

	ReduceWeighted bool
	ReduceSeverity string // "accurate"|"mean"|"severe"
	HasReduce      bool

	ValidationLevel int
	HasValidation   bool

	FilterMargin    float64
	HasFilterMargin bool

	GainMargin          float64
	HasGainMargin       bool
	GainMarginSqrtLinks bool

	Shuffle     bool
	Timings     bool
	Informative bool

	DisableAOH bool

	ForceFormat string // "r"|"e"|"a", "" = auto-detect

	PrintVersion     bool
	PrintVersionLong bool
	Help             bool
}

// Parse decodes argv (excluding the program name) per grammar.
// Unknown "-X..." options return an error naming the offending token;
// positional (non-dash) arguments are collected as input files.
func Parse(argv []string) (ParsedArgs, error) {
	var p ParsedArgs
	for _, arg := range argv {
		if arg == "" {
			continue
		}
		if arg[0] != '-' {
			p.InputFiles = append(p.InputFiles, arg)
			continue
		}
		if err := parseOption(&p, arg); err != nil {
			return p, err
		}
	}
	return p, nil
}

func parseOption(p *ParsedArgs, arg string) error {
	body := arg[1:]
	if body == "" {
		return fmt.Errorf("cliargs: empty option %q", arg)
	}
	switch body[0] {
	case 'c':
		co, err := parseClustersOption(body)
		if err != nil {
			return err
		}
		p.Clusters = append(p.Clusters, co)
	case 'e':
		ev, err := parseEvalOption(body)
		if err != nil {
			return err
		}
		p.Eval = &ev
	case 'a':
		if body != "a" {
			return fmt.Errorf("cliargs: malformed -a option %q", arg)
		}
		p.AccumulateDuplicates = true
	case 'g':
		if err := parseGammaOption(p, body); err != nil {
			return err
		}
	case 'b':
		if err := parseBoundOption(p, body); err != nil {
			return err
		}
	case 'r':
		if err := parseReduceOption(p, body); err != nil {
			return err
		}
	case 'l':
		v, err := valueAfterEquals(body, "l")
		if err != nil {
			return err
		}
		lvl, err := strconv.Atoi(v)
		if err != nil || lvl < 0 || lvl > 2 {
			return fmt.Errorf("cliargs: invalid -l value %q", v)
		}
		p.ValidationLevel, p.HasValidation = lvl, true
	case 'f':
		v, err := valueAfterEquals(body, "f")
		if err != nil {
			return err
		}
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("cliargs: invalid -f value %q", v)
		}
		p.FilterMargin, p.HasFilterMargin = m, true
	case 'm':
		if err := parseGainMarginOption(p, body); err != nil {
			return err
		}
	case 's':
		if body != "s" {
			return fmt.Errorf("cliargs: malformed -s option %q", arg)
		}
		p.Shuffle = true
	case 't':
		if body != "t" {
			return fmt.Errorf("cliargs: malformed -t option %q", arg)
		}
		p.Timings = true
	case 'i':
		if body != "i" {
			return fmt.Errorf("cliargs: malformed -i option %q", arg)
		}
		p.Informative = true
	case 'x':
		if body != "xa" {
			return fmt.Errorf("cliargs: unsupported -x option %q (only -xa is implemented)", arg)
		}
		p.DisableAOH = true
	case 'n':
		if len(body) != 2 || !strings.ContainsRune("rea", rune(body[1])) {
			return fmt.Errorf("cliargs: invalid -n option %q", arg)
		}
		p.ForceFormat = string(body[1])
	case 'V':
		p.PrintVersion = true
		if body == "Vx" {
			p.PrintVersionLong = true
		}
	case 'h':
		if body != "h" {
			return fmt.Errorf("cliargs: malformed -h option %q", arg)
		}
		p.Help = true
	default:
		return fmt.Errorf("cliargs: unknown option %q", arg)
	}
	return nil
}

// parseClustersOption decodes "-c[f][o|x]{r|s|S|l|a|h}[fmt][=file]".
func parseClustersOption(body string) (ClustersOutput, error) {
	raw := "-" + body
	rest, file, _ := strings.Cut(body, "=")
	rest = rest[1:] // drop leading 'c'

	co := ClustersOutput{Raw: raw, File: file}
	i := 0
	if i < len(rest) && rest[i] == 'f' {
		co.Fuzzy = true
		i++
	}
	if i < len(rest) && (rest[i] == 'o' || rest[i] == 'x') {
		co.Owners = rune(rest[i])
		i++
	}
	if i >= len(rest) {
		return co, fmt.Errorf("cliargs: -c option missing selector in %q", raw)
	}
	switch rest[i] {
	case 'r', 's', 'S', 'l', 'a', 'h':
		co.Selector = rune(rest[i])
		i++
	default:
		return co, fmt.Errorf("cliargs: -c option has invalid selector %q in %q", string(rest[i]), raw)
	}
	if i < len(rest) {
		switch rest[i] {
		case 'p', 's', 'h', 'e':
			co.Format = rune(rest[i])
			i++
		default:
			return co, fmt.Errorf("cliargs: -c option has invalid format %q in %q", string(rest[i]), raw)
		}
	}
	if i != len(rest) {
		return co, fmt.Errorf("cliargs: trailing characters in -c option %q", raw)
	}
	return co, nil
}

// parseEvalOption decodes "-e{c,m,g}*=file".
func parseEvalOption(body string) (EvalRequest, error) {
	rest, file, hasFile := strings.Cut(body, "=")
	if !hasFile || file == "" {
		return EvalRequest{}, fmt.Errorf("cliargs: -e option requires =file")
	}
	var ev EvalRequest
	ev.File = file
	for _, r := range rest[1:] {
		switch r {
		case 'c':
			ev.Conductance = true
		case 'm':
			ev.Modularity = true
		case 'g':
			ev.ExpectedG = true
		default:
			return ev, fmt.Errorf("cliargs: -e option has invalid measure %q", string(r))
		}
	}
	return ev, nil
}

// parseGammaOption decodes "-g=γ" and "-gr[rstep][:rmax][=γmin:γmax]".
func parseGammaOption(p *ParsedArgs, body string) error {
	if len(body) >= 2 && body[1] == 'r' {
		rest := body[2:]
		stepPart, rangePart, hasRange := strings.Cut(rest, "=")
		stepStr, rmaxStr, hasRmax := strings.Cut(stepPart, ":")
		if stepStr != "" {
			v, err := strconv.ParseFloat(stepStr, 64)
			if err != nil {
				return fmt.Errorf("cliargs: invalid gamma ratio step in %q: %w", body, err)
			}
			p.GammaRatio = v
		}
		if hasRmax && rmaxStr != "" {
			v, err := strconv.ParseFloat(rmaxStr, 64)
			if err != nil {
				return fmt.Errorf("cliargs: invalid gamma ratio max in %q: %w", body, err)
			}
			p.GammaRatioMax = v
		}
		if hasRange {
			lo, hi, ok := strings.Cut(rangePart, ":")
			if !ok {
				return fmt.Errorf("cliargs: -gr range must be gammaMin:gammaMax in %q", body)
			}
			gmin, err := strconv.ParseFloat(lo, 64)
			if err != nil {
				return fmt.Errorf("cliargs: invalid gammaMin in %q: %w", body, err)
			}
			gmax, err := strconv.ParseFloat(hi, 64)
			if err != nil {
				return fmt.Errorf("cliargs: invalid gammaMax in %q: %w", body, err)
			}
			p.GammaMin, p.GammaMax, p.HasGammaRange = gmin, gmax, true
		}
		return nil
	}
	v, err := valueAfterEquals(body, "g")
	if err != nil {
		return err
	}
	g, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("cliargs: invalid -g value %q: %w", v, err)
	}
	p.Gamma, p.HasGamma = g, true
	return nil
}

// parseBoundOption decodes "-b[s][p][u|d][=rootMax]".
func parseBoundOption(p *ParsedArgs, body string) error {
	rest, val, hasVal := strings.Cut(body[1:], "=")
	for _, r := range rest {
		switch r {
		case 's':
			p.BoundStandalone = true
		case 'p':
			p.BoundNonNegative = true
		case 'u':
			p.BoundUp = true
		case 'd':
			p.BoundDown = true
		default:
			return fmt.Errorf("cliargs: invalid -b modifier %q in %q", string(r), body)
		}
	}
	if hasVal {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("cliargs: invalid -b rootMax %q: %w", val, err)
		}
		p.RootMax, p.HasRootMax = n, true
	}
	return nil
}

// parseReduceOption decodes "-r[w][a|m|s]".
func parseReduceOption(p *ParsedArgs, body string) error {
	rest := body[1:]
	p.HasReduce = true
	for _, r := range rest {
		switch r {
		case 'w':
			p.ReduceWeighted = true
		case 'a':
			p.ReduceSeverity = "accurate"
		case 'm':
			p.ReduceSeverity = "mean"
		case 's':
			p.ReduceSeverity = "severe"
		default:
			return fmt.Errorf("cliargs: invalid -r modifier %q in %q", string(r), body)
		}
	}
	return nil
}

// parseGainMarginOption decodes "-m[s]=gainMargin".
func parseGainMarginOption(p *ParsedArgs, body string) error {
	rest, val, hasVal := strings.Cut(body[1:], "=")
	for _, r := range rest {
		if r == 's' {
			p.GainMarginSqrtLinks = true
		} else {
			return fmt.Errorf("cliargs: invalid -m modifier %q in %q", string(r), body)
		}
	}
	if !hasVal {
		return fmt.Errorf("cliargs: -m option requires =gainMargin in %q", body)
	}
	g, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("cliargs: invalid -m value %q: %w", val, err)
	}
	p.GainMargin, p.HasGainMargin = g, true
	return nil
}

func valueAfterEquals(body, flag string) (string, error) {
	prefix := flag + "="
	if !strings.HasPrefix(body, prefix) {
		return "", fmt.Errorf("cliargs: -%s option requires =value, got %q", flag, body)
	}
	return body[len(prefix):], nil
}

// Overlay applies every explicitly-set field of p onto cfg, leaving
// defaults untouched for anything the user did not pass, via the same
// "overlay viper values via Config.Set" pattern internal/config exposes.
func Overlay(p ParsedArgs, cfg *config.Config) {
	if p.HasGamma {
		cfg.Set("loop.gamma", p.Gamma)
	}
	if p.GammaRatio != 0 {
		cfg.Set("loop.gammaRatio", p.GammaRatio)
	}
	if p.GammaRatioMax != 0 {
		cfg.Set("loop.gammaRatioMax", p.GammaRatioMax)
	}
	if p.HasGammaRange {
		cfg.Set("loop.gammaMin", p.GammaMin)
		cfg.Set("loop.gammaMax", p.GammaMax)
	}
	if p.HasRootMax {
		cfg.Set("loop.rootMax", p.RootMax)
	}
	if p.BoundUp {
		cfg.Set("loop.boundUp", true)
	}
	if p.BoundDown {
		cfg.Set("loop.boundDown", true)
	}
	if p.BoundStandalone {
		cfg.Set("loop.boundStandalone", true)
	}
	if p.BoundNonNegative {
		cfg.Set("loop.boundNonNegative", true)
	}
	if p.HasGainMargin {
		cfg.Set("loop.gainMargin", p.GainMargin)
		cfg.Set("loop.gainMarginBySqrtLinks", p.GainMarginSqrtLinks)
	}
	if p.HasFilterMargin {
		cfg.Set("merge.filterMargin", p.FilterMargin)
	}
	if p.AccumulateDuplicates {
		cfg.Set("graph.sumDuplicates", true)
	}
	if p.Shuffle {
		cfg.Set("graph.shuffle", true)
	}
	if p.HasReduce {
		severity := p.ReduceSeverity
		if severity == "" {
			severity = "accurate"
		}
		cfg.Set("graph.reduction", severity)
	}
	if p.HasValidation {
		cfg.Set("graph.validation", p.ValidationLevel)
	}
	if p.Timings {
		cfg.Set("trace.timings", true)
	}
	if p.Informative {
		cfg.Set("trace.informative", true)
	}
	if p.DisableAOH {
		cfg.Set("features.aoh", false)
	}
}
