package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/Brownie44l1/crcseg-api/internal/conf"
	"github.com/Brownie44l1/crcseg-api/internal/handlers"
	"github.com/Brownie44l1/crcseg-api/internal/img"
	"github.com/Brownie44l1/crcseg-api/internal/model"
	"github.com/Brownie44l1/crcseg-api/internal/pipeline"
)

var Version = "unknown"

const shutdownTimeout = 10 * time.Second

func main() {
	app := cli.NewApp()
	app.Name = "crcseg"
	app.Usage = "colorectal polyp segmentation service"
	app.Version = Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Value:  filepath.Join("etc", conf.ConfFileName),
			Usage:  "path of the YAML configuration file",
			EnvVar: "CRCSEG_CONFIG",
		},
	}
	app.Action = serve
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "start the HTTP API (default)",
			Action: serve,
		},
		{
			Name:   "inspect",
			Usage:  "load the model and print its inputs, outputs and backend",
			Action: inspect,
		},
		{
			Name:      "segment",
			Usage:     "run the pipeline on local images and write overlay and heatmap PNGs",
			ArgsUsage: "FILE...",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Value: ".",
					Usage: "output directory",
				},
			},
			Action: segment,
		},
	}

	if err := app.Run(os.Args); err != nil {
		conf.Log.Errorf("%v", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*conf.Config, error) {
	path := c.GlobalString("config")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		conf.Log.Warnf("config file %s not found, using defaults and environment", path)
		path = ""
	}
	cfg, err := conf.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conf.SetupLogOutput(cfg.Basic)
	return cfg, nil
}

func newSegmenter(cfg *conf.Config) (model.Segmenter, error) {
	if cfg.Model.Stub {
		conf.Log.Warn("model.stub is set: serving the demo segmenter, results are not clinical predictions")
		return model.NewStub(nil), nil
	}
	return model.NewServer(cfg.Model)
}

func serve(c *cli.Context) error {
	undo, _ := maxprocs.Set(maxprocs.Logger(conf.Log.Infof))
	defer undo()

	cfg, err := setup(c)
	if err != nil {
		return err
	}
	defer conf.CloseLogger()

	seg, err := newSegmenter(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize model server: %w", err)
	}
	defer seg.Close()

	p := pipeline.New(seg, pipeline.OptionsFrom(cfg))
	srv := handlers.NewServer(cfg, handlers.NewHandler(p, cfg.Basic.MaxUploadSize))

	errCh := make(chan error, 1)
	go func() {
		conf.Log.Infof("Serving crcseg %s on %s", Version, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigint:
		conf.Log.Infof("crcseg stopped by %v", s)
	case err := <-errCh:
		return fmt.Errorf("rest server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		conf.Log.Errorf("rest server shutdown error: %v", err)
	}
	conf.Log.Info("rest server successfully shutdown.")
	return nil
}

func inspect(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	seg, err := newSegmenter(cfg)
	if err != nil {
		return err
	}
	defer seg.Close()

	info := seg.Info()
	fmt.Printf("path:     %s\n", cfg.Model.Path)
	fmt.Printf("input:    %s %v\n", info.InputName, info.InputShape)
	fmt.Printf("output:   %s %v\n", info.OutputName, info.OutputShape)
	fmt.Printf("strategy: %s\n", info.Strategy)
	fmt.Printf("backend:  %s\n", info.Backend)
	fmt.Printf("sessions: %d\n", info.Sessions)
	return nil
}

func segment(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.NewExitError("no input files", 2)
	}
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	seg, err := newSegmenter(cfg)
	if err != nil {
		return err
	}
	defer seg.Close()

	out := c.String("out")
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}

	p := pipeline.New(seg, pipeline.OptionsFrom(cfg))
	raws := make([]img.Raw, 0, c.NArg())
	for _, f := range c.Args() {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		raws = append(raws, img.Raw{Filename: f, Data: data})
	}

	failed := 0
	for _, it := range p.ProcessBatch(context.Background(), raws) {
		if it.Err != nil {
			failed++
			fmt.Printf("%s: %v\n", it.Filename, it.Err)
			continue
		}
		base := strings.TrimSuffix(filepath.Base(it.Filename), filepath.Ext(it.Filename))
		if err := os.WriteFile(filepath.Join(out, base+"_overlay.png"), it.Result.OverlayPNG, 0o644); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(out, base+"_heatmap.png"), it.Result.HeatmapPNG, 0o644); err != nil {
			return err
		}
		fmt.Printf("%s: %s (%.2f%% coverage)\n", it.Filename, it.Result.Risk, it.Result.Statistics.CancerPercentage)
	}
	if failed > 0 {
		return cli.NewExitError(fmt.Sprintf("%d of %d images failed", failed, len(raws)), 1)
	}
	return nil
}
