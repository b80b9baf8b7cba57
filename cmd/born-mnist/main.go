// Package main is the born-mnist command: download MNIST or Fashion-MNIST,
// train the MLP classifier, evaluate and inspect checkpoints, and predict
// single images.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/born-ml/born-mnist/internal/config"
)

const version = "v0.1.0"

// Flags.
const (
	flagConfig     = "config"
	flagDebug      = "debug"
	flagDataset    = "dataset"
	flagDir        = "dir"
	flagLimit      = "limit"
	flagCheckpoint = "checkpoint"
	flagEpochs     = "epochs"
	flagBatchSize  = "batch-size"
	flagLR         = "lr"
	flagOptimizer  = "optimizer"
	flagHidden     = "hidden"
	flagDropProb   = "drop-prob"
	flagResume     = "resume"
	flagDownload   = "download"
	flagSplit      = "split"
	flagIndex      = "index"
	flagTop        = "top"
	flagOut        = "out"
	flagBins       = "bins"
	flagHistograms = "histograms"
)

// env is the state shared by every command, built in Before.
type env struct {
	cfg    config.Config
	logger *zap.SugaredLogger
	out    io.Writer
}

func newLogger(debug bool, errOut io.Writer) *zap.SugaredLogger {
	level := zap.InfoLevel
	encCfg := zap.NewProductionEncoderConfig()
	if debug {
		level = zap.DebugLevel
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(errOut), level)
	return zap.New(core).Sugar()
}

func datasetFlag() cli.Flag {
	return &cli.StringFlag{Name: flagDataset, Usage: "dataset to use (mnist or fashion-mnist)"}
}

func dirFlag() cli.Flag {
	return &cli.StringFlag{Name: flagDir, Usage: "directory holding the IDX files"}
}

func limitFlag() cli.Flag {
	return &cli.IntFlag{Name: flagLimit, Usage: "use at most `N` examples per split (0 for all)"}
}

func checkpointFlag() cli.Flag {
	return &cli.StringFlag{Name: flagCheckpoint, Aliases: []string{"ckpt"}, Usage: "checkpoint `FILE`"}
}

func splitFlag() cli.Flag {
	return &cli.StringFlag{Name: flagSplit, Value: "test", Usage: "split to read (train or test)"}
}

func downloadFlag() cli.Flag {
	return &cli.BoolFlag{Name: flagDownload, Usage: "download the dataset first when it is missing"}
}

// newApp returns the CLI with Writer set to out and ErrWriter to errOut.
func newApp(out, errOut io.Writer) *cli.App {
	e := &env{out: out}
	return &cli.App{
		Name:            "born-mnist",
		Usage:           "train and use an MLP classifier on MNIST and Fashion-MNIST",
		Version:         version,
		Writer:          out,
		ErrWriter:       errOut,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
				EnvVars: []string{"BORN_MNIST_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			e.logger = newLogger(c.Bool(flagDebug), errOut)
			if path := c.String(flagConfig); path != "" {
				cfg, err := config.Load(path)
				if err != nil {
					return errors.Wrap(err, "could not load config")
				}
				e.cfg = cfg
				e.logger.Debugw("loaded config", "path", path)
			} else {
				e.cfg = config.Default()
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "download",
				Usage:  "download the dataset archives",
				Flags:  []cli.Flag{datasetFlag(), dirFlag()},
				Action: e.downloadAction,
			},
			{
				Name:  "train",
				Usage: "train a network and write a checkpoint",
				Flags: []cli.Flag{
					datasetFlag(), dirFlag(), limitFlag(), checkpointFlag(), downloadFlag(),
					&cli.IntFlag{Name: flagEpochs, Usage: "number of epochs"},
					&cli.IntFlag{Name: flagBatchSize, Usage: "mini-batch size"},
					&cli.Float64Flag{Name: flagLR, Usage: "learning rate"},
					&cli.StringFlag{Name: flagOptimizer, Usage: "optimizer (sgd or adam)"},
					&cli.IntSliceFlag{Name: flagHidden, Usage: "hidden layer sizes, e.g. --hidden 256 --hidden 64"},
					&cli.Float64Flag{Name: flagDropProb, Usage: "dropout probability"},
					&cli.BoolFlag{Name: flagResume, Usage: "continue from the checkpoint, including optimizer state"},
				},
				Action: e.trainAction,
			},
			{
				Name:   "evaluate",
				Usage:  "report loss and accuracy of a checkpoint",
				Flags:  []cli.Flag{datasetFlag(), dirFlag(), limitFlag(), checkpointFlag(), splitFlag(), downloadFlag()},
				Action: e.evaluateAction,
			},
			{
				Name:  "predict",
				Usage: "classify one image of the dataset",
				Flags: []cli.Flag{
					datasetFlag(), dirFlag(), checkpointFlag(), splitFlag(), downloadFlag(),
					&cli.IntFlag{Name: flagIndex, Usage: "index of the image in the split"},
					&cli.IntFlag{Name: flagTop, Value: 3, Usage: "number of classes to print"},
					&cli.StringFlag{Name: flagOut, Usage: "write the image and class probabilities to `PNG`"},
				},
				Action: e.predictAction,
			},
			{
				Name:  "inspect",
				Usage: "describe a checkpoint file",
				Flags: []cli.Flag{
					checkpointFlag(),
					&cli.BoolFlag{Name: flagHistograms, Usage: "print a histogram of every weight matrix"},
					&cli.IntFlag{Name: flagBins, Value: 20, Usage: "histogram bins"},
				},
				Action: e.inspectAction,
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}
