package main

import (
	"context"
	"net/http"
	"time"

	"municipalrecords-backend/lib/configutil"
	configlibsql "municipalrecords-backend/lib/configutil/libsql"
	"municipalrecords-backend/lib/pacing"
	"municipalrecords-backend/lib/proxy"
	"municipalrecords-backend/lib/ratelimit"
	"municipalrecords-backend/lib/scrapers/phoenixpd"
	"municipalrecords-backend/lib/serviceutil"
	"municipalrecords-backend/lib/telemetry"
	"municipalrecords-backend/services/requests"
	requestsdb "municipalrecords-backend/services/requests/db"
)

type PortalConfig struct {
	Url         string `json:"url"`
	EvidenceDir string `json:"evidence_dir"`
}

type RateLimitConfig struct {
	RedisUrl string `json:"redis_url"`
	// submissions per clock hour, 0 means the default of 10
	HourlyCeiling int64 `json:"hourly_ceiling"`
}

type ProxyConfig struct {
	Strategy string   `json:"strategy"`
	Proxies  []string `json:"proxies"`
}

type WebhookConfig struct {
	Port   int    `json:"port"`
	Secret string `json:"secret"`
}

type Config struct {
	Database  configlibsql.Struct  `json:"database"`
	Portal    PortalConfig         `json:"portal"`
	RateLimit RateLimitConfig      `json:"rate_limit"`
	Proxy     ProxyConfig          `json:"proxy"`
	Webhook   WebhookConfig        `json:"webhook"`
	Smtp      *requests.SmtpConfig `json:"smtp"`
}

func main() {
	ctx := serviceutil.SignalContext()

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	db, err := config.Database.OpenDB(requestsdb.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}

	t, err := telemetry.SetupFromEnv(ctx, "records-worker")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	store, err := ratelimit.NewRedisStore(config.RateLimit.RedisUrl)
	if err != nil {
		serviceutil.Fatal("failed to connect to redis", err)
	}
	defer store.Close()

	var proxies proxy.Strategy
	if len(config.Proxy.Proxies) > 0 {
		proxies, err = proxy.FromConfig(config.Proxy.Strategy, config.Proxy.Proxies)
		if err != nil {
			serviceutil.Fatal("failed to build proxy pool", err)
		}
	}

	var notifier *requests.Notifier
	if config.Smtp != nil {
		notifier = requests.NewNotifier(*config.Smtp)
	}

	service := requests.NewService(db)
	worker := requests.NewWorker(service, requests.WorkerOptions{
		Limiter: ratelimit.NewLimiter(store, "phoenixpd:submissions", config.RateLimit.HourlyCeiling),
		NewSession: func(runId string) (*phoenixpd.Session, error) {
			return phoenixpd.NewSession(phoenixpd.SessionOptions{
				PortalUrl:   config.Portal.Url,
				EvidenceDir: config.Portal.EvidenceDir,
				RunId:       runId,
				Proxy:       proxies,
				Pace:        pacing.Default(),
				Timeout:     time.Second * 30,
			})
		},
		Notifier: notifier,
	})

	mux := http.NewServeMux()
	RegisterWebhook(mux, service, config.Webhook.Secret)
	go serviceutil.StartHttpServer(config.Webhook.Port, mux)

	go worker.Run(ctx)

	<-ctx.Done()
}
