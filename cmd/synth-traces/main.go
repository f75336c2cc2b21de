// Command synth-traces writes synthetic roundness-rig captures, one text
// file per measurement, in the format read by the roundness command.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/roundness/internal/adapters/loader"
	"github.com/okian/roundness/internal/config"
	"github.com/okian/roundness/internal/synth"
)

type options struct {
	out          string
	files        int
	sampleRate   float64
	drift        int
	lead         int
	noise        float64
	eccentricity float64
	seed         int64
}

func parseFlags(args []string) (options, error) {
	def := synth.DefaultConfig()
	o := options{}
	fs := flag.NewFlagSet("synth-traces", flag.ContinueOnError)
	fs.StringVar(&o.out, "out", "traces", "output directory")
	fs.IntVar(&o.files, "files", def.Files, "number of captures")
	fs.Float64Var(&o.sampleRate, "rate", 1000, "sample rate in Hz")
	fs.IntVar(&o.drift, "drift", def.DriftSamples, "angular drift per file, in samples")
	fs.IntVar(&o.lead, "lead", 0, "samples recorded before the program starts")
	fs.Float64Var(&o.noise, "noise", 0, "standard deviation of additive noise, volts")
	fs.Float64Var(&o.eccentricity, "eccentricity", def.Eccentricity, "centre offset of the part")
	fs.Int64Var(&o.seed, "seed", def.Seed, "random seed")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

// write generates the batch and returns the written paths. The program is
// taken from the roundness configuration so both commands agree.
func write(o options, cfg *config.Config) ([]string, error) {
	gen := synth.DefaultConfig()
	gen.Kinematics = cfg.Kinematics()
	gen.SampleRate = o.sampleRate
	gen.Files = o.files
	gen.DriftSamples = o.drift
	gen.LeadSamples = o.lead
	gen.Noise = o.noise
	gen.Eccentricity = o.eccentricity
	gen.Seed = o.seed

	files, err := synth.Generate(gen)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(o.out, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	paths := make([]string, 0, len(files))
	for i, f := range files {
		path := filepath.Join(o.out, fmt.Sprintf("capture-%04d.txt", i))
		if err := loader.WriteSamples(path, f.Trace.Samples); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "synth-traces:", err)
		os.Exit(1)
	}
	paths, err := write(o, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "synth-traces:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d captures to %s\n", len(paths), o.out)
}
