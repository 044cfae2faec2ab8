package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/cadence/pipeline"
	"golang.org/x/exp/slog"
)

type program int

const (
	programInteractive program = iota
	programSquare
	programImage
)

type config struct {
	diagnostics device.Diagnostics
	shaders     string
	pipelines   map[string]pipeline.GraphicsConfig
	pipeline    string
	in          string
	out         string
}

func (c config) shader(name string) string {
	return filepath.Join(c.shaders, name)
}

// readProgram reads the program index from the first line of r
func readProgram(r io.Reader) (program, bool, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, false, errors.Wrap(err, "failed to read from stdin")
	}

	line = strings.TrimSpace(line)
	index, err := strconv.Atoi(line)
	if err != nil || index < 0 {
		return 0, false, errors.Newf("failed to parse: %s", line)
	}

	selected := program(index)
	return selected, selected <= programImage, nil
}

func main() {
	diagnostics := flag.String("diagnostics", "none", "validation level: none, validation or performance")
	shaders := flag.String("shaders", "./shader", "directory holding compiled SPIR-V shaders")
	pipelines := flag.String("pipelines", "", "TOML file of graphics pipeline configurations, added to the null and flat presets")
	pipelineName := flag.String("pipeline", "null", "pipeline configuration to render with in interactive mode")
	in := flag.String("in", "assets/mcry.png", "image demo input")
	out := flag.String("out", "assets/result.png", "image demo output")
	verbose := flag.Bool("v", false, "log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := config{
		shaders:  *shaders,
		pipeline: *pipelineName,
		in:       *in,
		out:      *out,
	}

	var ok bool
	cfg.diagnostics, ok = device.ParseDiagnostics(*diagnostics)
	if !ok {
		logger.Error("unknown diagnostics level", slog.String("Level", *diagnostics))
		os.Exit(1)
	}

	cfg.pipelines = pipeline.Presets()
	if *pipelines != "" {
		loaded, err := pipeline.LoadGraphicsConfigs(*pipelines)
		if err != nil {
			logger.Error("could not load pipeline configurations", slog.Any("error", err))
			os.Exit(1)
		}
		cfg.pipelines = pipeline.WithPresets(loaded)
	}

	selected, found, err := readProgram(os.Stdin)
	if err != nil {
		fmt.Println(err)
		return
	}
	if !found {
		fmt.Printf("program idx not found: %d\n", selected)
		return
	}

	switch selected {
	case programInteractive:
		err = runInteractive(logger, cfg)
	default:
		err = runCompute(logger, cfg, selected)
	}
	if err != nil {
		logger.Error("program failed", slog.Int("Program", int(selected)), slog.Any("error", err))
		os.Exit(1)
	}
}
