package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/messaging/kafka"
)

const (
	defaultGroupID  = "coffee-dlq-reprocess"
	defaultDuration = 30 * time.Second
)

type config struct {
	brokers     []string
	groupID     string
	sourceTopic string
	targetTopic string
	execute     bool
	duration    time.Duration
}

type replayConsumer interface {
	Start(ctx context.Context) error
	Stop() error
}

// runtime собирает зависимости; подменяется в тестах.
type runtime struct {
	newProducer func(brokers []string) (*kafka.Producer, error)
	newConsumer func(cfg config, handler kafka.MessageHandler) (replayConsumer, error)
}

func defaultRuntime() runtime {
	return runtime{
		newProducer: kafka.NewProducer,
		newConsumer: func(cfg config, handler kafka.MessageHandler) (replayConsumer, error) {
			return kafka.NewConsumer(cfg.brokers, cfg.groupID, []string{cfg.sourceTopic}, handler)
		},
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail(os.Stderr, "%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, defaultRuntime(), os.Stdout); err != nil {
		fail(os.Stderr, "dlq replay failed: %v", err)
	}
}

func parseConfig(args []string, lookupEnv func(string) (string, bool)) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: COFFEE_KAFKA_BROKERS)")
	fs.StringVar(&cfg.groupID, "group", defaultGroupID, "consumer group id")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "target topic for replay")
	fs.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	fs.DurationVar(&cfg.duration, "duration", defaultDuration, "how long to consume before exit")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw, _ = lookupEnv("COFFEE_KAFKA_BROKERS")
	}
	cfg.brokers = parseBrokers(brokersRaw)

	var errs []error
	if len(cfg.brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers are required (-brokers or COFFEE_KAFKA_BROKERS)"))
	}
	if strings.TrimSpace(cfg.groupID) == "" {
		errs = append(errs, errors.New("group is required"))
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		errs = append(errs, errors.New("source-topic is required"))
	}
	if strings.TrimSpace(cfg.targetTopic) == "" {
		errs = append(errs, errors.New("target-topic is required"))
	}
	if cfg.sourceTopic == cfg.targetTopic {
		errs = append(errs, errors.New("source-topic and target-topic must differ"))
	}
	if cfg.duration <= 0 {
		errs = append(errs, errors.New("duration must be > 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

// run читает DLQ в течение cfg.duration и повторно публикует события.
// Без -execute события только логируются.
func run(ctx context.Context, cfg config, rt runtime, out io.Writer) error {
	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	logger := log.WithFields(log.Fields{
		"component":    "dlq-reprocess",
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"mode":         mode,
	})
	logger.Info("starting dlq replay")

	var publisher domain.OutboxPublisher
	if cfg.execute {
		producer, err := rt.newProducer(cfg.brokers)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				logger.WithError(err).Warn("failed to close kafka producer")
			}
		}()
		publisher = kafka.NewOutboxPublisher(producer, cfg.targetTopic)
	}

	replayer := kafka.NewDeadLetterReplayer(publisher, logger)
	consumer, err := rt.newConsumer(cfg, replayer.Handle)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.duration)
	defer cancel()

	if err := consumer.Start(runCtx); err != nil {
		return fmt.Errorf("start kafka consumer: %w", err)
	}
	<-runCtx.Done()
	if err := consumer.Stop(); err != nil {
		return err
	}

	replayed, skipped := replayer.Stats()
	logger.WithFields(log.Fields{"replayed": replayed, "skipped": skipped}).Info("dlq replay finished")
	_, err = fmt.Fprintf(out, "dlq replay %s: replayed=%d skipped=%d\n", mode, replayed, skipped)
	return err
}

func fail(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
	os.Exit(1)
}
