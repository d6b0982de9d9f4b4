package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"saliency-forge/internal/config"
	"saliency-forge/internal/dataset"
	"saliency-forge/internal/device"
	"saliency-forge/internal/model"
	"saliency-forge/internal/optim"
	"saliency-forge/internal/results"
	"saliency-forge/internal/summary"
	"saliency-forge/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "configs/salicon.yaml", "Path to YAML config")
	datasetRoot := flag.String("dataset-root", "", "Override dataset root (expects train/ and val/ shards)")
	logDir := flag.String("log-dir", "", "Override summary log directory")
	resultsDir := flag.String("results-dir", "", "Override directory for validation results")
	learningRate := flag.Float64("learning-rate", 0, "Initial learning rate; seeds the linear schedule, so a value below final_learning_rate is rejected")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	epochs := flag.Int("epochs", 0, "Number of epochs")
	valFrequency := flag.Int("val-frequency", 0, "Validate every N epochs")
	logFrequency := flag.Int("log-frequency", 0, "Log metrics every N steps")
	printFrequency := flag.Int("print-frequency", 0, "Print progress every N steps")
	var workers int
	flag.IntVar(&workers, "worker-count", 0, "Number of data loader workers")
	flag.IntVar(&workers, "j", 0, "Shorthand for -worker-count")
	seed := flag.Int64("seed", 0, "PRNG seed")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(config.Overrides{
		DatasetRoot:    *datasetRoot,
		LogDir:         *logDir,
		ResultsDir:     *resultsDir,
		LearningRate:   *learningRate,
		BatchSize:      *batchSize,
		Epochs:         *epochs,
		ValFrequency:   *valFrequency,
		LogFrequency:   *logFrequency,
		PrintFrequency: *printFrequency,
		WorkerCount:    workers,
		Seed:           *seed,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if got := cfg.MapHeight * cfg.MapWidth; got != model.MapSize {
		log.Fatalf("invalid config: map geometry %dx%d gives %d values, the network predicts %d",
			cfg.MapHeight, cfg.MapWidth, got, model.MapSize)
	}

	dev := device.Select(cfg.WorkerCount)
	log.Printf("device=%s", dev)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	geom := dataset.Geometry{
		Height:    cfg.ImageHeight,
		Width:     cfg.ImageWidth,
		Channels:  cfg.ImageChannels,
		MapHeight: cfg.MapHeight,
		MapWidth:  cfg.MapWidth,
	}
	trainLoader, err := openSplit(ctx, cfg, geom, dataset.TrainSplit, true)
	if err != nil {
		log.Fatalf("train split: %v", err)
	}
	valLoader, err := openSplit(ctx, cfg, geom, dataset.ValSplit, false)
	if err != nil {
		log.Fatalf("val split: %v", err)
	}

	net, err := model.NewSaliencyNet(model.Config{
		Input:   model.ImageShape{Height: cfg.ImageHeight, Width: cfg.ImageWidth, Channels: cfg.ImageChannels},
		Workers: dev.Threads,
		Seed:    cfg.Seed,
	})
	if err != nil {
		log.Fatalf("build model: %v", err)
	}
	log.Printf("model flatten=%d params=%d", net.FlattenSize(), len(net.Params()))

	opt, err := optim.NewSGD(net.Params(), optim.SGDConfig{
		LearningRate: cfg.LearningRate,
		Momentum:     0.9,
		WeightDecay:  5e-4,
		Nesterov:     true,
	})
	if err != nil {
		log.Fatalf("build optimizer: %v", err)
	}

	runDir, err := summary.RunDir(cfg.LogDir, cfg.BatchSize, cfg.LearningRate)
	if err != nil {
		log.Fatalf("log dir: %v", err)
	}
	sink, err := summary.NewWriter(runDir, summary.DefaultFlushInterval)
	if err != nil {
		log.Fatalf("summary writer: %v", err)
	}
	log.Printf("Writing logs to %s", runDir)

	tr, err := trainer.New(trainer.Options{
		Network:   net,
		Train:     trainLoader,
		Val:       valLoader,
		Optimizer: opt,
		Sink:      sink,
		Store:     results.FileStore{Dir: cfg.ResultsDir},
	})
	if err != nil {
		log.Fatalf("build trainer: %v", err)
	}

	runErr := tr.Train(ctx, trainer.RunConfig{
		Epochs:         cfg.Epochs,
		ValFrequency:   cfg.ValFrequency,
		LogFrequency:   cfg.LogFrequency,
		PrintFrequency: cfg.PrintFrequency,
		InitialLR:      cfg.LearningRate,
		FinalLR:        cfg.FinalLearningRate,
	})
	if err := sink.Close(); err != nil {
		log.Printf("close summary writer: %v", err)
	}
	if runErr != nil {
		log.Fatalf("training failed: %v", runErr)
	}
}

func openSplit(ctx context.Context, cfg *config.Config, geom dataset.Geometry, split dataset.Split, shuffle bool) (*dataset.Loader, error) {
	shards, err := dataset.DiscoverSplit(cfg.DatasetRoot, split)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.OpenShards(ctx, shards, geom)
	if err != nil {
		return nil, err
	}
	log.Printf("split=%s shards=%d samples=%d", split, len(shards), ds.Len())
	return dataset.NewLoader(ds, dataset.LoaderOptions{
		BatchSize:  cfg.BatchSize,
		Shuffle:    shuffle,
		Seed:       cfg.Seed,
		NumWorkers: cfg.WorkerCount,
	})
}
