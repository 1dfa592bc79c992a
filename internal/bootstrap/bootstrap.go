// Package bootstrap builds the components shared by the api and worker
// processes from their environment config.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"correspondence/internal/awsutil"
	"correspondence/internal/cache"
	"correspondence/internal/config"
	"correspondence/internal/dialog"
	"correspondence/internal/events"
	"correspondence/internal/httpapi"
	"correspondence/internal/jobs"
	"correspondence/internal/ledger"
	"correspondence/internal/lock"
	"correspondence/internal/providers/dialogporten"
	"correspondence/internal/providers/legacy"
	"correspondence/internal/providers/register"
	"correspondence/internal/providers/transport"
	sqsqueue "correspondence/internal/queue/sqs"
	"correspondence/internal/service"
	"correspondence/internal/store/pg"
	"correspondence/internal/sweep"
)

type Config struct {
	DB       config.DBConfig
	AWS      config.AWSConfig
	Redis    config.RedisConfig
	External config.ExternalConfig
	Lock     config.LockConfig

	ConfirmTimeout time.Duration
}

type Components struct {
	DB    *pgxpool.Pool
	SQS   *sqs.Client
	Redis *redis.Client

	Store     *pg.Store
	Producer  *sqsqueue.Producer
	Scheduler *jobs.Scheduler
	Events    *events.Publisher
	Parties   *register.Client
	Dialogs   *dialog.Coordinator
	Service   *service.CorrespondenceService
	Sweeper   *sweep.Sweeper

	cfg Config
}

func (c Config) transportOptions() transport.Options {
	return transport.Options{
		APIKey:          c.External.APIKey,
		HTTPTimeout:     c.External.HTTPTimeout,
		CallTimeout:     c.External.CallTimeout,
		RPS:             c.External.RPSPerPod,
		Burst:           c.External.Burst,
		BreakerFailures: c.External.BreakerFailures,
		BreakerOpenFor:  c.External.BreakerOpenFor,
	}
}

// HTTPClient returns the protected client for one collaborating service.
func (c Config) HTTPClient(service, baseURL string) *transport.Client {
	return transport.New(service, baseURL, c.transportOptions())
}

func Build(ctx context.Context, cfg Config) (*Components, error) {
	db, err := pg.NewPool(ctx, cfg.DB.DSN, pg.PoolOptions{
		MaxConns:          cfg.DB.MaxConns,
		MinConns:          cfg.DB.MinConns,
		MaxConnLifetime:   cfg.DB.MaxConnLifetime,
		MaxConnIdleTime:   cfg.DB.MaxConnIdleTime,
		HealthCheckPeriod: cfg.DB.HealthCheckPeriod,
	})
	if err != nil {
		return nil, err
	}

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWS.Region, cfg.AWS.LocalstackEndpoint)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqs client init: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})

	st := pg.New(db)
	producer := &sqsqueue.Producer{
		SQS:          sqsClient,
		QueueURL:     cfg.AWS.JobQueueURL,
		FIFO:         cfg.AWS.JobQueueFIFO,
		GroupBuckets: cfg.AWS.JobGroupBuckets,
	}
	scheduler := jobs.NewScheduler(st, producer)
	publisher := events.NewPublisher(sqsClient, cfg.AWS.EventQueueURL)
	parties := register.New(
		cfg.HTTPClient("register", cfg.External.RegisterBaseURL),
		cache.NewRedis(rdb, "corr:"),
		cfg.External.PartyCacheTTL,
	)
	dialogs := dialog.New(st, st, dialogporten.New(cfg.HTTPClient("dialogporten", cfg.External.DialogBaseURL)))

	svc := service.New(service.Deps{
		Store:     st,
		Ledger:    ledger.New(st),
		Scheduler: scheduler,
		Locks: lock.New(rdb, lock.Options{
			Expiry:     cfg.Lock.Expiry,
			Retries:    cfg.Lock.Retries,
			RetryDelay: cfg.Lock.RetryDelay,
		}),
		Parties: parties,
		Dialogs: dialogs,
		Legacy:  legacy.New(cfg.HTTPClient("legacy", cfg.External.LegacyBridgeBaseURL)),
		Events:  publisher,
	}, service.Options{ConfirmTimeout: cfg.ConfirmTimeout})

	return &Components{
		DB:        db,
		SQS:       sqsClient,
		Redis:     rdb,
		Store:     st,
		Producer:  producer,
		Scheduler: scheduler,
		Events:    publisher,
		Parties:   parties,
		Dialogs:   dialogs,
		Service:   svc,
		Sweeper:   sweep.New(st, dialogs, scheduler),
		cfg:       cfg,
	}, nil
}

// ReadyChecks probes postgres, redis and the job queue.
func (c *Components) ReadyChecks() []httpapi.Check {
	return []httpapi.Check{
		{Name: "postgres", Probe: func(ctx context.Context) error { return c.DB.Ping(ctx) }},
		{Name: "redis", Probe: func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() }},
		{Name: "sqs", Probe: func(ctx context.Context) error {
			_, err := c.SQS.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
				QueueUrl:       &c.cfg.AWS.JobQueueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		}},
	}
}

func (c *Components) Close() {
	_ = c.Redis.Close()
	c.DB.Close()
}
