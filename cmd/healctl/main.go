// Command healctl is an operator CLI for exercising a Healer against a
// live page outside of a test run: point it at a URL and a broken
// selector and it reports what the engine would have done.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/selectorheal/selectorheal/internal/browserdriver"
	"github.com/selectorheal/selectorheal/internal/config"
	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/driver"
	"github.com/selectorheal/selectorheal/internal/healer"
	"github.com/selectorheal/selectorheal/internal/llmclient"
	"github.com/selectorheal/selectorheal/internal/strategy"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	dim    = color.New(color.Faint)
)

func main() {
	godotenv.Load()

	targetURL := flag.String("url", "", "page URL to navigate to before healing")
	selector := flag.String("selector", "", "broken selector to heal")
	expectedType := flag.String("expected-type", "", "expected element tag name, if known")
	headless := flag.Bool("headless", true, "launch Chromium headless")
	verbose := flag.Bool("verbose", false, "verbose output")
	envFile := flag.String("env", ".env", "path to .env file (optional)")

	flag.Parse()

	if *targetURL == "" || *selector == "" {
		red.Println("-url and -selector are required")
		flag.Usage()
		os.Exit(1)
	}

	var logger *zap.Logger
	if *verbose {
		logger, _ = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{"/dev/null"}
		logger, _ = cfg.Build()
	}
	defer logger.Sync()

	cyan.Println("selectorheal")
	fmt.Printf("  target:   %s\n", *targetURL)
	fmt.Printf("  selector: %s\n", *selector)
	fmt.Println()

	cfg, err := config.Load(*envFile, "")
	if err != nil {
		red.Printf("loading config: %v\n", err)
		os.Exit(1)
	}

	var llmBackend strategy.LLMBackend
	if cfg.Ollama.URL != "" {
		client, err := llmclient.New(llmclient.Config{
			URL:         cfg.Ollama.URL,
			Model:       cfg.Ollama.Model,
			Timeout:     time.Duration(cfg.Ollama.TimeoutMs) * time.Millisecond,
			Temperature: cfg.Ollama.Temperature,
			TopP:        cfg.Ollama.TopP,
		})
		if err != nil {
			yellow.Printf("llm backend disabled: %v\n", err)
		} else {
			llmBackend = client
		}
	}

	driverInstance, cleanup, err := browserdriver.Launch(*headless)
	if err != nil {
		red.Printf("launching browser: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := driverInstance.Interact(ctx, "", driver.ActionGoto, driver.InteractOptions{Value: *targetURL, Timeout: 30 * time.Second}); err != nil {
		red.Printf("navigating: %v\n", err)
		os.Exit(1)
	}

	h := healer.New(*cfg, driverInstance, llmBackend, healer.WithLogger(logger))
	defer h.Close()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("  healing..."),
		progressbar.OptionSpinnerType(14),
	)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				bar.Add(1)
				time.Sleep(100 * time.Millisecond)
			}
		}
	}()

	result := h.Heal(ctx, domain.Selector(*selector), domain.HealOptions{ExpectedType: *expectedType})
	close(done)
	bar.Finish()
	fmt.Println()

	if result.Success {
		green.Printf("healed: %s\n", result.Selector)
		fmt.Printf("  strategy:   %s\n", result.Strategy)
		fmt.Printf("  confidence: %.2f\n", result.Confidence)
		dim.Printf("  duration:   %dms\n", result.DurationMs)
	} else {
		red.Printf("healing failed: %s\n", result.Error)
		os.Exit(1)
	}
}
