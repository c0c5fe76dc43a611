// Command calibrate produces the camera calibration record the detection
// binary measures against.
//
// Usage:
//
//	calibrate [flags] intrinsic   capture chessboard stills and solve the lens model
//	calibrate [flags] scale       mark a reference object and store mm per pixel
//	calibrate [flags] all         run both in order
//
// Both steps are driven from the terminal. Intrinsic capture snaps a frame on
// Enter and aborts on q; reference marking reads four corner coordinates
// against a preview image written next to the still.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/pothole.report/internal/calibration"
	"github.com/banshee-data/pothole.report/internal/config"
	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the JSON config file")
	calibPath   = flag.String("calibration", "", "Calibration record (overrides config)")
	imageDir    = flag.String("images", "checkerboard_images", "Directory for captured chessboard stills")
	camera      = flag.Int("camera", 0, "Video capture device index")
	count       = flag.Int("count", 0, "Chessboard stills to capture (default from config)")
	fromImages  = flag.Bool("from-images", false, "Skip capture and solve the stills already in -images")
	plotDir     = flag.String("plots", "", "Write reprojection plots to this directory")
	still       = flag.String("still", "", "Reference still for scale calibration (default: snap from -camera)")
	corners     = flag.String("corners", "", "Reference corners in preview pixels, \"x,y x,y x,y x,y\" (TL TR BR BL)")
	widthMM     = flag.Float64("width-mm", 0, "Real width of the reference object in mm (default from config, else prompt)")
	logDir      = flag.String("log-dir", "", "Directory for rotated log files (default: stderr only)")
	diag        = flag.Bool("diag", false, "Enable diagnostic logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// session carries what both steps need: the resolved settings and the
// operator's terminal.
type session struct {
	cfg   *config.Config
	store *calibration.Store
	in    *bufio.Scanner
	out   io.Writer
}

func (s *session) prompt(format string, args ...interface{}) (string, bool) {
	fmt.Fprintf(s.out, format, args...)
	if !s.in.Scan() {
		return "", false
	}
	return s.in.Text(), true
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] intrinsic|scale|all\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println("calibrate", version.String())
		return
	}
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	streams, err := monitoring.OpenStreams("calibrate", monitoring.LogOptions{Dir: *logDir, Diag: *diag}, os.Stderr)
	if err != nil {
		log.Fatalf("failed to open logs: %v", err)
	}
	defer streams.Close()
	streams.Install()
	calibration.SetLogWriters(streams.Ops, streams.Diag, streams.Trace)

	path := cfg.GetCalibrationPath()
	if *calibPath != "" {
		path = *calibPath
	}
	s := &session{
		cfg:   cfg,
		store: calibration.NewStore(path),
		in:    bufio.NewScanner(os.Stdin),
		out:   os.Stdout,
	}

	switch cmd := flag.Arg(0); cmd {
	case "intrinsic":
		err = s.runIntrinsic()
	case "scale":
		err = s.runScale()
	case "all":
		if err = s.runIntrinsic(); err == nil {
			err = s.runScale()
		}
	default:
		usage()
		log.Fatalf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatal(err)
	}
	fmt.Fprintf(s.out, "calibration stored in %s\n", s.store.Path())
}
