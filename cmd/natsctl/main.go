// Command natsctl publishes to or listens on the ingestor's event subject.
//
//	natsctl [-config file] pub [-text "hello"]   send one external_message envelope
//	natsctl [-config file] sub                    print every envelope received
//
// The bus URL and subject are resolved exactly like the service resolves them:
// defaults, the YAML file, .env, then NATS_URL / NATS_SUBJECT.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"rates-ingestor/src/config"
	"rates-ingestor/src/models"
	"rates-ingestor/src/serializers"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	url, subject, err := resolveBus(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "natsctl: %v\n", err)
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "pub":
		fs := flag.NewFlagSet("pub", flag.ExitOnError)
		text := fs.String("text", "hello from publisher", "message text")
		eventType := fs.String("type", "external_message", "event type")
		_ = fs.Parse(flag.Args()[1:])
		err = publish(url, subject, *eventType, *text)
	case "sub":
		err = subscribe(url, subject)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "natsctl: %v\n", err)
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------

// resolveBus returns the NATS URL and subject the service would use.
func resolveBus(configPath string) (string, string, error) {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return "", "", err
	}
	return cfg.NATS.URL, cfg.NATS.Subject, nil
}

// -----------------------------------------------------------------------------

func publish(url, subject, eventType, text string) error {
	nc, err := nats.Connect(url, nats.Name("natsctl"), nats.Timeout(2*time.Second))
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer nc.Close()

	event := models.NewEvent(models.MEventType(eventType), map[string]string{"text": text})
	data, err := serializers.NewJSONSerializer().Marshal(event)
	if err != nil {
		return err
	}
	if err := nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if err := nc.FlushTimeout(time.Second); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	fmt.Println("published")
	return nil
}

// -----------------------------------------------------------------------------

func subscribe(url, subject string) error {
	nc, err := nats.Connect(url, nats.Name("natsctl"), nats.Timeout(2*time.Second))
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer nc.Close()

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		fmt.Printf("%s: %s\n", msg.Subject, string(msg.Data))
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	fmt.Printf("listening %s at %s\n", subject, url)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	return nil
}

// -----------------------------------------------------------------------------

func usage() {
	fmt.Fprintln(os.Stderr, "usage: natsctl [-config FILE] pub [-text TEXT] [-type TYPE] | natsctl [-config FILE] sub")
}
