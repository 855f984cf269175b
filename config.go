package dsim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dsim-project/dsim/asynchrony"
	"github.com/dsim-project/dsim/distributions"
	"github.com/dsim-project/dsim/network"
)

// Conf is the simulation's top-level configuration, loaded from YAML.
// Field names mirror the original's configuration file exactly so
// existing churn/matrix/config fixtures need no translation.
type Conf struct {
	N            uint32            `yaml:"n"`
	Network      NetworkConfig     `yaml:"network"`
	Asynchrony   AsynchronyConfig  `yaml:"asynchrony"`
	OpDuration   *int32            `yaml:"op_duration"`
	ChurnFile    string            `yaml:"churn_file"`
	Seed         uint64            `yaml:"seed"`
	Save         *int32            `yaml:"save"`
	SaveAndStop  bool              `yaml:"save_and_stop"`
	SaveFilename string            `yaml:"save_filename"`
	Load         string            `yaml:"load"`
	NewSeed      *uint64           `yaml:"new_seed"`
}

// JitterConfig configures a network Jitter. Type selects the
// implementation; the remaining fields are read by name depending on
// Type, matching the original's per-distribution wrapper field names.
type JitterConfig struct {
	Type    string   `yaml:"type"`
	Mean    *float64 `yaml:"mean"`
	StdDev  *float64 `yaml:"std_dev"`
	Low     *float64 `yaml:"low"`
	High    *float64 `yaml:"high"`
}

// NetworkConfig configures the network oracle. Type "ConstantNetwork"
// (the default) uses Latency/Jitter/Loss; "MatrixNetwork" uses
// LatencyFile/N/Jitter/Loss.
type NetworkConfig struct {
	Type        string       `yaml:"type"`
	Latency     int32        `yaml:"latency"`
	LatencyFile string       `yaml:"latency_file"`
	N           int          `yaml:"n"`
	Jitter      JitterConfig `yaml:"jitter"`
	Loss        float64      `yaml:"loss"`
}

// AsynchronyConfig configures the clock-skew oracle applied to local
// timers. Type "NoAsynchrony" (the default) ignores the remaining
// fields.
type AsynchronyConfig struct {
	Type   string   `yaml:"type"`
	Mean   *float64 `yaml:"mean"`
	StdDev *float64 `yaml:"std_dev"`
	Low    *float64 `yaml:"low"`
	High   *float64 `yaml:"high"`
	Scale  *float64 `yaml:"scale"`
	Shape  *float64 `yaml:"shape"`
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// LoadConf reads and parses a Conf from filename.
func LoadConf(filename string) (*Conf, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("dsim: reading config %s: %w", filename, err)
	}
	conf := &Conf{SaveFilename: "state.bin"}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("dsim: parsing config %s: %w", filename, err)
	}
	return conf, nil
}

// buildJitter resolves a JitterConfig into a network.Jitter, bound to
// src for its random draws.
func buildJitter(c JitterConfig, src network.Source) network.Jitter {
	switch c.Type {
	case "", "NoJitter":
		return network.NoJitter{}
	case "UniformJitter":
		low := floatOr(c.Low, network.UniformJitterDefaultLow)
		high := floatOr(c.High, network.UniformJitterDefaultHigh)
		return network.DistJitter{Factor: distributions.NewUniform(low, high, src)}
	case "LogNormalJitter":
		mean := floatOr(c.Mean, network.LogNormalJitterDefaultMean)
		stdDev := floatOr(c.StdDev, network.LogNormalJitterDefaultStdDev)
		return network.DistJitter{Factor: distributions.NewLogNormal(mean, stdDev, src)}
	default:
		return network.NoJitter{}
	}
}

// buildNetwork resolves a NetworkConfig into a network.Oracle.
func buildNetwork(c NetworkConfig, src network.Source) (network.Oracle, error) {
	jitter := buildJitter(c.Jitter, src)
	switch c.Type {
	case "", "ConstantNetwork":
		latency := c.Latency
		if c.Type == "" && latency == 0 {
			latency = 100
		}
		return network.NewConstantNetwork(latency, jitter, c.Loss), nil
	case "MatrixNetwork":
		return network.NewMatrixNetworkFromFile(c.LatencyFile, c.N, jitter, c.Loss)
	default:
		return nil, fmt.Errorf("dsim: unknown network type %q", c.Type)
	}
}

// buildAsynchrony resolves an AsynchronyConfig into an asynchrony.Oracle.
func buildAsynchrony(c AsynchronyConfig, src asynchrony.Source) asynchrony.Oracle {
	switch c.Type {
	case "", "NoAsynchrony":
		return asynchrony.NoAsynchrony{}
	case "UniformAsynchrony":
		low := floatOr(c.Low, asynchrony.UniformDefaultLow)
		high := floatOr(c.High, asynchrony.UniformDefaultHigh)
		return asynchrony.DistAsynchrony{Factor: distributions.NewUniform(low, high, src)}
	case "NormalAsynchrony":
		mean := floatOr(c.Mean, asynchrony.NormalDefaultMean)
		stdDev := floatOr(c.StdDev, asynchrony.NormalDefaultStdDev)
		return asynchrony.DistAsynchrony{Factor: distributions.NewNormal(mean, stdDev, src)}
	case "WeibullAsynchrony":
		scale := floatOr(c.Scale, asynchrony.WeibullDefaultScale)
		shape := floatOr(c.Shape, asynchrony.WeibullDefaultShape)
		return asynchrony.DistAsynchrony{Factor: distributions.NewWeibull(scale, shape, src)}
	default:
		return asynchrony.NoAsynchrony{}
	}
}

// isNoAsynchrony reports whether cfg resolves to NoAsynchrony, the one
// case where op_duration is not required.
func isNoAsynchrony(c AsynchronyConfig) bool {
	return c.Type == "" || c.Type == "NoAsynchrony"
}
