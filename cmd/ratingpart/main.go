package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/goccy/go-json"

	"ratingpart/internal/config"
	"ratingpart/internal/kafka"
	"ratingpart/internal/logger"
	"ratingpart/internal/models"
	"ratingpart/internal/partition"
	"ratingpart/internal/processor"
	"ratingpart/internal/storage"
)

const usage = `usage: ratingpart [-config file] <command> [args]

commands:
  bootstrap                           create the target database if it does not exist
  load <ratings-file>                 bulk load a ratings file into the ratings table
  range <n>                           split the ratings table into n range partitions
  rrobin <n>                          split the ratings table into n round-robin partitions
  insert <scheme> <user> <movie> <r>  insert one rating under scheme (range, roundrobin)
  stats                               print row counts for the table and its partitions
  serve                               run the HTTP API and optional Kafka consumer
  publish <ratings-file> [scheme]     publish a ratings file to the Kafka topic
`

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	table := flag.String("table", "", "Ratings table name (overrides config)")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *table != "" {
		if err := storage.ValidateIdentifier(*table); err != nil {
			fmt.Fprintf(os.Stderr, "invalid -table: %v\n", err)
			os.Exit(1)
		}
		cfg.Partitioning.RatingsTable = *table
	}

	logger.Init(cfg.Log.Level)
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Error().Err(err).Str("command", flag.Arg(0)).Msg("command failed")
		fmt.Fprintf(os.Stderr, "ratingpart %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, cmd string, args []string) error {
	switch cmd {
	case "bootstrap":
		created, err := storage.Bootstrap(ctx, cfg.Database)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("database %s created\n", cfg.Database.Name)
		} else {
			fmt.Printf("database %s already exists\n", cfg.Database.Name)
		}
		return nil
	case "serve":
		return processor.New(cfg).Run(ctx)
	case "publish":
		return publish(ctx, cfg, args)
	}

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := partition.NewStore(db, partition.NamesFromConfig(cfg.Partitioning))
	if err != nil {
		return err
	}
	table := cfg.Partitioning.RatingsTable

	switch cmd {
	case "load":
		if len(args) != 1 {
			return errors.New("load takes exactly one ratings file")
		}
		n, err := store.LoadRatings(ctx, table, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("loaded %d ratings into %s\n", n, table)
		return nil

	case "range", "rrobin":
		if len(args) != 1 {
			return fmt.Errorf("%s takes exactly one partition count", cmd)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid partition count %q: %w", args[0], err)
		}
		if cmd == "range" {
			err = store.RangePartition(ctx, table, n)
		} else {
			err = store.RoundRobinPartition(ctx, table, n)
		}
		if err != nil {
			return err
		}
		fmt.Printf("partitioned %s into %d %s partitions\n", table, n, cmd)
		return nil

	case "insert":
		if len(args) != 4 {
			return errors.New("insert takes <scheme> <userid> <movieid> <rating>")
		}
		scheme, err := models.ParseScheme(args[0])
		if err != nil {
			return err
		}
		r, err := parseRating(args[1:])
		if err != nil {
			return err
		}
		res, err := store.Insert(ctx, scheme, table, r)
		if err != nil {
			return err
		}
		return printJSON(res)

	case "stats":
		stats, err := store.Stats(ctx, table)
		if err != nil {
			return err
		}
		return printJSON(stats)
	}

	return fmt.Errorf("unknown command %q", cmd)
}

func parseRating(args []string) (models.Rating, error) {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return models.Rating{}, fmt.Errorf("invalid userid %q: %w", args[0], err)
	}
	movieID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return models.Rating{}, fmt.Errorf("invalid movieid %q: %w", args[1], err)
	}
	rating, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return models.Rating{}, fmt.Errorf("invalid rating %q: %w", args[2], err)
	}
	r := models.Rating{UserID: userID, MovieID: movieID, Rating: rating}
	return r, r.Validate()
}

// publish streams a ratings file to Kafka in batches of cfg.Worker.BatchSize.
func publish(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("publish takes <ratings-file> [scheme]")
	}
	schemeName := cfg.Kafka.Scheme
	if len(args) == 2 {
		schemeName = args[1]
	}
	scheme, err := models.ParseScheme(schemeName)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open ratings file: %w", err)
	}
	defer f.Close()

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	defer producer.Close()

	batchSize := cfg.Worker.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	batch := make([]models.Rating, 0, batchSize)
	var published int

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := producer.PublishBatch(ctx, batch, scheme); err != nil {
			return err
		}
		published += len(batch)
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		rec, err := models.ParseLine(text)
		if err != nil {
			return &models.LineError{Line: line, Err: err}
		}
		r := rec.ToRating()
		if err := r.Validate(); err != nil {
			return &models.LineError{Line: line, Err: err}
		}

		batch = append(batch, r)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ratings file: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	fmt.Printf("published %d ratings to %s\n", published, cfg.Kafka.Topic)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
