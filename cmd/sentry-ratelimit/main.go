// Command sentry-ratelimit explains the rate limits announced by Sentry.
//
// Usage:
//
//	sentry-ratelimit [-status N] [-retry-after V] [HEADER]
//	sentry-ratelimit -config sentry.yaml -probe
//	sentry-ratelimit -categories
//
// HEADER is the value of an X-Sentry-Rate-Limits response header. With
// -probe, an empty client report is sent to the configured DSN and the limits
// from the response are printed.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	sentry "github.com/getsentry/sentry-go-ratelimit"
	"github.com/getsentry/sentry-go-ratelimit/internal/ratelimit"
	"github.com/getsentry/sentry-go-ratelimit/internal/report"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const probeTimeout = 10 * time.Second

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	columnStyle  = lipgloss.NewStyle().Width(24)
	limitedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "203"})
)

type config struct {
	configFile string
	status     int
	retryAfter string
	categories bool
	probe      bool
	header     string
}

func main() {
	logger := logrus.New()
	logger.Out = os.Stderr

	if err := run(os.Args[1:], os.Stdout, logger); err != nil {
		logger.WithError(err).Error("sentry-ratelimit failed")
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, logger *logrus.Logger) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}

	var options sentry.ClientOptions
	if cfg.configFile != "" {
		options, err = sentry.LoadOptions(cfg.configFile)
		if err != nil {
			return errors.Wrap(err, "loading config")
		}
	}
	if options.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	switch {
	case cfg.categories:
		printCategories(stdout)
		return nil
	case cfg.probe:
		return probe(options, stdout, logger)
	default:
		return explain(cfg, stdout, logger)
	}
}

func parseFlags(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("sentry-ratelimit", flag.ContinueOnError)
	fs.StringVar(&cfg.configFile, "config", "", "YAML file with client options")
	fs.IntVar(&cfg.status, "status", http.StatusOK, "HTTP status code of the response")
	fs.StringVar(&cfg.retryAfter, "retry-after", "", "value of the Retry-After header")
	fs.BoolVar(&cfg.categories, "categories", false, "print the data category table")
	fs.BoolVar(&cfg.probe, "probe", false, "send an empty client report to the configured DSN")

	if err := fs.Parse(args); err != nil {
		return cfg, errors.Wrap(err, "parsing flags")
	}
	if fs.NArg() > 1 {
		return cfg, errors.Errorf("expected at most one header value, got %d", fs.NArg())
	}
	cfg.header = fs.Arg(0)

	if cfg.status < 100 || cfg.status > 599 {
		return cfg, errors.Errorf("invalid status code %d", cfg.status)
	}
	if cfg.retryAfter != "" && cfg.status == http.StatusOK {
		cfg.status = http.StatusTooManyRequests
	}
	return cfg, nil
}

func printCategories(w io.Writer) {
	fmt.Fprintln(w, headerStyle.Render(row("ORDINAL", "CATEGORY", "LABEL")))
	for _, c := range ratelimit.Categories() {
		fmt.Fprintln(w, row(fmt.Sprint(uint(c)), c.String(), fmt.Sprintf("%q", c.Label())))
	}
}

// explain prints the limits of a synthesized response carrying the given
// status and headers.
func explain(cfg config, w io.Writer, logger *logrus.Logger) error {
	if cfg.header == "" && cfg.retryAfter == "" && cfg.status != http.StatusTooManyRequests {
		return errors.New("nothing to explain: pass a header value, -retry-after or -status 429")
	}

	response := &http.Response{
		StatusCode: cfg.status,
		Header:     make(http.Header),
	}
	if cfg.header != "" {
		response.Header.Set("X-Sentry-Rate-Limits", cfg.header)
	}
	if cfg.retryAfter != "" {
		response.Header.Set("Retry-After", cfg.retryAfter)
	}

	limits := ratelimit.FromResponse(response)
	if len(limits) == 0 {
		fmt.Fprintln(w, "no rate limits")
		return nil
	}

	fmt.Fprintln(w, headerStyle.Render(row("CATEGORY", "LABEL", "UNTIL")))
	for _, c := range ratelimit.Categories() {
		deadline, ok := limits[c]
		if !ok {
			continue
		}
		logger.WithFields(logrus.Fields{
			"category": c.Label(),
			"deadline": deadline.String(),
		}).Debug("rate limit parsed")
		fmt.Fprintln(w, limitedStyle.Render(row(c.String(), fmt.Sprintf("%q", c.Label()), deadline.String())))
	}
	return nil
}

// probe sends an empty client report to the configured DSN and prints which
// categories the server rate limits in its response.
func probe(options sentry.ClientOptions, w io.Writer, logger *logrus.Logger) error {
	debugWriter := logger.WriterLevel(logrus.DebugLevel)
	defer debugWriter.Close()
	options.DebugWriter = debugWriter

	client, err := sentry.NewClient(options)
	if err != nil {
		return errors.Wrap(err, "creating client")
	}
	defer client.Close()
	if client.Options().Dsn == "" {
		return errors.New("probe needs a DSN, set dsn in the config file or SENTRY_DSN")
	}

	r := report.ClientReport{Timestamp: time.Now().UTC()}
	item, err := r.ToEnvelopeItem()
	if err != nil {
		return errors.Wrap(err, "building client report")
	}
	envelope := &sentry.Envelope{}
	envelope.AddItem(item)
	if err := client.SendEnvelope(envelope); err != nil {
		return errors.Wrap(err, "sending probe")
	}
	if !client.Flush(probeTimeout) {
		return errors.Errorf("probe not delivered within %v", probeTimeout)
	}

	fmt.Fprintln(w, headerStyle.Render(row("CATEGORY", "LABEL", "STATUS")))
	for _, c := range sentry.DataCategories() {
		if c == sentry.DataCategoryAll {
			continue
		}
		status, style := "ok", lipgloss.NewStyle()
		if client.IsRateLimited(c) {
			status, style = "rate limited", limitedStyle
		}
		logger.WithFields(logrus.Fields{"category": c.Label(), "status": status}).Debug("probed")
		fmt.Fprintln(w, style.Render(row(c.String(), fmt.Sprintf("%q", c.Label()), status)))
	}
	return nil
}

func row(cells ...string) string {
	rendered := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			rendered[i] = cell
			continue
		}
		rendered[i] = columnStyle.Render(cell)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}
