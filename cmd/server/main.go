package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/casbin/caswaf/bodyparsing"
	"github.com/casbin/caswaf/geodb"
	"github.com/casbin/caswaf/logging"
	"github.com/casbin/caswaf/pipeline"
	"github.com/casbin/caswaf/ratelimit"
	"github.com/casbin/caswaf/ruleeval"
	"github.com/casbin/caswaf/ruleset"
	"github.com/casbin/caswaf/waf"
)

// Dependency injection composition root
func main() {
	lengthLimits := waf.DefaultLengthLimits

	logLevel := flag.String("loglevel", "info", "sets log level. Can be one of: debug, info, warn, error, fatal, panic.")
	profiling := flag.Bool("profiling", false, "whether to enable the :6060/debug/pprof/ endpoint")
	configFile := flag.String("config", "caswaf.yaml", "path to the YAML rule and site config file")
	listenAddr := flag.String("listen", ":8080", "address to serve HTTP on")
	mmdbFile := flag.String("mmdb", "", "if set, path to a MaxMind country database for geolocation rules")
	homeCountry := flag.String("homecountry", "CN", "2-letter country code that counts as not abroad")
	redisAddr := flag.String("redisaddr", "", "if set, use this Redis server as the shared rate counter store")
	resultsLogDir := flag.String("resultslogdir", "", "if set, append firewall result entries to results.log in this directory")
	limitsArg := flag.String("bodylimits", "", fmt.Sprintf("if set, use these request body length limits. Unit is bytes. This parameter takes two integer values: max length of any single field, and max total request body length. Example (these are the defaults): -bodylimits=%v,%v", lengthLimits.MaxLengthField, lengthLimits.MaxLengthTotal))
	flag.Parse()

	if *profiling {
		go func() {
			http.ListenAndServe(":6060", nil)
		}()
	}

	loglevel, _ := zerolog.ParseLevel(*logLevel)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(loglevel).With().Timestamp().Caller().Logger()

	lengthLimits = parseLengthLimitsArgOrDefault(logger, limitsArg, lengthLimits)

	store, err := ruleset.NewFileStore(logger, *configFile)
	if err != nil {
		logger.Fatal().Err(err).Str("config", *configFile).Msg("Error while loading config file")
	}

	var geoDB waf.GeoDB
	if *mmdbFile != "" {
		mm, err := geodb.NewMaxMindGeoDB(logger, *mmdbFile)
		if err != nil {
			logger.Fatal().Err(err).Str("mmdb", *mmdbFile).Msg("Error while opening geolocation database")
		}
		defer mm.Close()
		geoDB = mm
	}

	var limiter ruleeval.RateLimiter
	if *redisAddr != "" {
		limiter = ratelimit.NewRedisLimiter(logger, redis.NewClient(&redis.Options{Addr: *redisAddr}))
	} else {
		limiter = ratelimit.NewLimiter(logger)
	}

	resultsLogger := logging.NewZerologResultsLogger(logger)
	if *resultsLogDir != "" {
		dir := *resultsLogDir
		if !strings.HasSuffix(dir, "/") {
			dir += "/"
		}
		resultsLogger, err = logging.NewFileResultsLogger(&logging.OsFileSystem{}, logger, dir, "results.log")
		if err != nil {
			logger.Fatal().Err(err).Msg("Error while creating results logger")
		}
	}

	bodyParser := bodyparsing.NewRequestBodyParser(lengthLimits)
	engine := ruleeval.NewEngine(logger, geoDB, limiter, bodyParser, *homeCountry)
	resolver := ruleset.NewResolver(logger, store)
	p := pipeline.NewPipeline(logger, resolver, engine, resultsLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: *listenAddr, Handler: newHandler(logger, store, p)}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return store.Watch(ctx)
	})
	g.Go(func() error {
		logger.Info().Str("addr", *listenAddr).Msg("Starting WAF server")
		return server.ListenAndServe()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("Error while running WAF server")
	}
}

// newHandler serves as a demonstration front end: it looks the site up by
// host, runs the decision pipeline and applies the outcome.
func newHandler(logger zerolog.Logger, store waf.ConfigStore, p *pipeline.Pipeline) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := pipeline.NewHTTPRequest(r)

		site, err := store.GetSiteByDomain(req.Host())
		if err != nil {
			http.Error(w, "no site configured for this host", http.StatusNotFound)
			return
		}

		decision := p.Decide(r.Context(), site, req)

		switch decision.Action {
		case waf.ActionAllow:
			w.WriteHeader(decision.StatusCode)
			fmt.Fprintln(w, "allowed")
		case waf.ActionRedirect, waf.ActionCaptcha:
			url := decision.RedirectURL
			if url == "" {
				url = "/"
			}
			http.Redirect(w, r, url, decision.StatusCode)
		default:
			http.Error(w, decision.Reason, decision.StatusCode)
		}
	})
}

func parseLengthLimitsArgOrDefault(logger zerolog.Logger, limitsArg *string, defaults waf.LengthLimits) (lengthLimits waf.LengthLimits) {
	lengthLimits = defaults

	if *limitsArg != "" {
		nn := strings.Split(*limitsArg, ",")
		if len(nn) != 2 {
			logger.Fatal().Msg("The limits arg must contain exactly 2 comma separated integer values")
		}

		n, err := strconv.Atoi(nn[0])
		if err != nil {
			logger.Fatal().Err(err).Msg("Error while parsing limits arg 1")
		}
		lengthLimits.MaxLengthField = n

		n, err = strconv.Atoi(nn[1])
		if err != nil {
			logger.Fatal().Err(err).Msg("Error while parsing limits arg 2")
		}
		lengthLimits.MaxLengthTotal = n
	}

	return
}
