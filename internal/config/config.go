// Package config holds the runtime configuration of a clustering run: every
// tunable named by the CLI surface, defaulted through Viper and overlaid by
// internal/cliargs.
package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config wraps a *viper.Viper carrying every agglomeration, merge-policy,
// output, and I/O tunable of the engine.
type Config struct {
	v *viper.Viper
}

// New creates a configuration preloaded with the engine's defaults.
func New() *Config {
	v := viper.New()

	// Agglomeration loop (-g/-gr/-b/-m)
	v.SetDefault("loop.gamma", 1.0)
	v.SetDefault("loop.gammaRatio", 0.0) // 0 = static gamma, no sweep
	v.SetDefault("loop.gammaRatioMax", 0.0)
	v.SetDefault("loop.gammaMin", -1.0) // -1 = auto-derive from W
	v.SetDefault("loop.gammaMax", -1.0)
	v.SetDefault("loop.rootMax", 0) // 0 = unbounded
	v.SetDefault("loop.boundUp", false)
	v.SetDefault("loop.boundDown", false)
	v.SetDefault("loop.boundStandalone", false)
	v.SetDefault("loop.boundNonNegative", false)
	v.SetDefault("loop.gainMargin", 0.0)
	v.SetDefault("loop.gainMarginBySqrtLinks", false)
	v.SetDefault("loop.maxLevels", 0) // 0 = unbounded

	// Candidate selector / merger (-f)
	v.SetDefault("merge.filterMargin", 1e-3)
	v.SetDefault("merge.chainsExtra", false)
	v.SetDefault("merge.fuzzyOverlap", false) // MEMBERSHARE_BYCANDS
	v.SetDefault("merge.prefilter", true)

	// Graph construction (-a/-r/-l/-s)
	v.SetDefault("graph.weighted", true)
	v.SetDefault("graph.directed", false)
	v.SetDefault("graph.sumDuplicates", false)
	v.SetDefault("graph.shuffle", false)
	v.SetDefault("graph.reduction", "none") // none|accurate|mean|severe
	v.SetDefault("graph.reduceNewLevels", false)
	v.SetDefault("graph.validation", 1) // 0..2

	// Build-time feature toggles (-x)
	v.SetDefault("features.aoh", true)

	// Output selection (-c)
	v.SetDefault("output.densityDrop", 0.5)
	v.SetDefault("output.weightStep", 0.5)
	v.SetDefault("output.szmin", "log2") // log2|ln|phi|sqrt|<int>
	v.SetDefault("output.levStepRatio", 1.0)
	v.SetDefault("output.margmin", 0)
	v.SetDefault("output.margmax", 0)

	// Node-vectorization output (no dedicated -c letter, opted
	// into via config/file rather than the -c grammar)
	v.SetDefault("output.vectorize", false)
	v.SetDefault("output.vectorizeFile", "")
	v.SetDefault("output.vectorizeEncoding", "float32") // bit|uint8|uint16|float32
	v.SetDefault("output.vectorizeSparse", false)
	v.SetDefault("output.vectorizeMinValue", 0.0)
	v.SetDefault("output.vectorizeNumbered", true)

	// Logging / trace (-t/-i)
	v.SetDefault("trace.level", "info")
	v.SetDefault("trace.timings", false)
	v.SetDefault("trace.informative", false)

	return &Config{v: v}
}

// LoadFromFile merges tunables from a config file (any format Viper
// recognizes) on top of the defaults.
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// Set overlays a single value, used by internal/cliargs to apply parsed CLI
// flags on top of defaults/file configuration.
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// Loop/resolution getters.
func (c *Config) Gamma() float64              { return c.v.GetFloat64("loop.gamma") }
func (c *Config) GammaRatio() float64         { return c.v.GetFloat64("loop.gammaRatio") }
func (c *Config) GammaRatioMax() float64      { return c.v.GetFloat64("loop.gammaRatioMax") }
func (c *Config) GammaMin() float64           { return c.v.GetFloat64("loop.gammaMin") }
func (c *Config) GammaMax() float64           { return c.v.GetFloat64("loop.gammaMax") }
func (c *Config) RootMax() int                { return c.v.GetInt("loop.rootMax") }
func (c *Config) BoundUp() bool               { return c.v.GetBool("loop.boundUp") }
func (c *Config) BoundDown() bool             { return c.v.GetBool("loop.boundDown") }
func (c *Config) BoundStandalone() bool       { return c.v.GetBool("loop.boundStandalone") }
func (c *Config) BoundNonNegative() bool      { return c.v.GetBool("loop.boundNonNegative") }
func (c *Config) GainMargin() float64         { return c.v.GetFloat64("loop.gainMargin") }
func (c *Config) GainMarginBySqrtLinks() bool { return c.v.GetBool("loop.gainMarginBySqrtLinks") }
func (c *Config) MaxLevels() int              { return c.v.GetInt("loop.maxLevels") }

// Merge/candidate getters.
func (c *Config) FilterMargin() float64 { return c.v.GetFloat64("merge.filterMargin") }
func (c *Config) ChainsExtra() bool     { return c.v.GetBool("merge.chainsExtra") }
func (c *Config) FuzzyOverlap() bool    { return c.v.GetBool("merge.fuzzyOverlap") }
func (c *Config) Prefilter() bool       { return c.v.GetBool("merge.prefilter") }

// Graph construction getters.
func (c *Config) Weighted() bool         { return c.v.GetBool("graph.weighted") }
func (c *Config) Directed() bool         { return c.v.GetBool("graph.directed") }
func (c *Config) SumDuplicates() bool    { return c.v.GetBool("graph.sumDuplicates") }
func (c *Config) Shuffle() bool          { return c.v.GetBool("graph.shuffle") }
func (c *Config) Reduction() string      { return c.v.GetString("graph.reduction") }
func (c *Config) ReduceNewLevels() bool  { return c.v.GetBool("graph.reduceNewLevels") }
func (c *Config) ValidationLevel() int   { return c.v.GetInt("graph.validation") }
func (c *Config) AOHEnabled() bool       { return c.v.GetBool("features.aoh") }

// Output getters.
func (c *Config) DensityDrop() float64  { return c.v.GetFloat64("output.densityDrop") }
func (c *Config) WeightStep() float64   { return c.v.GetFloat64("output.weightStep") }
func (c *Config) SzMin() string         { return c.v.GetString("output.szmin") }
func (c *Config) LevStepRatio() float64 { return c.v.GetFloat64("output.levStepRatio") }
func (c *Config) MargMin() int          { return c.v.GetInt("output.margmin") }
func (c *Config) MargMax() int          { return c.v.GetInt("output.margmax") }

// Node-vectorization getters.
func (c *Config) Vectorize() bool            { return c.v.GetBool("output.vectorize") }
func (c *Config) VectorizeFile() string      { return c.v.GetString("output.vectorizeFile") }
func (c *Config) VectorizeEncoding() string  { return c.v.GetString("output.vectorizeEncoding") }
func (c *Config) VectorizeSparse() bool      { return c.v.GetBool("output.vectorizeSparse") }
func (c *Config) VectorizeMinValue() float64 { return c.v.GetFloat64("output.vectorizeMinValue") }
func (c *Config) VectorizeNumbered() bool    { return c.v.GetBool("output.vectorizeNumbered") }

// Trace getters.
func (c *Config) TraceLevel() string { return c.v.GetString("trace.level") }
func (c *Config) Timings() bool      { return c.v.GetBool("trace.timings") }
func (c *Config) Informative() bool  { return c.v.GetBool("trace.informative") }

// CreateLogger builds the zerolog logger used throughout the engine: a
// console writer with a short timestamp and a service tag, leveled from
// TraceLevel() (bumped to Debug when Informative() is set, i.e. "-i
// informative trace").
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.TraceLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	if c.Informative() && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "daoc").Logger()
}

// RandomSeed returns a time-based seed for the shuffle random source, used
// only when Shuffle() is enabled; it never affects clustering results.
func (c *Config) RandomSeed() int64 { return time.Now().UnixNano() }
