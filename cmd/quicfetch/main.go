package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"example.com/quicfetch/internal/config"
	"example.com/quicfetch/internal/logger"
	"example.com/quicfetch/internal/quic"
	"example.com/quicfetch/internal/quictest"
)

var (
	configFilePath string
	requestURL     string
	requestBody    string
)

func main() {
	flag.StringVar(&configFilePath, "config", "", "Path to the configuration file (JSON or TOML)")
	flag.StringVar(&requestURL, "url", "https://www.example.org/", "Request URL for the simulated exchanges")
	flag.StringVar(&requestBody, "body", "a small upload payload", "Body for the POST exchange")
	flag.Parse()

	var cfg *config.Config
	if configFilePath != "" {
		absConfigPath, err := filepath.Abs(configFilePath)
		if err != nil {
			log.Fatalf("Error getting absolute path for config file %s: %v", configFilePath, err)
		}
		cfg, err = config.LoadConfig(absConfigPath)
		if err != nil {
			log.Fatalf("Failed to load configuration from %s: %v", absConfigPath, err)
		}
	} else {
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
	}

	appLogger, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if err := appLogger.Close(); err != nil {
			log.Printf("Error closing log target during shutdown: %v", err)
		}
	}()
	appLogger.Info("Logger initialized", nil)

	var body quic.BodySource
	if requestBody != "" {
		// Split the payload so the body pump runs more than one fill/drain
		// cycle.
		half := len(requestBody) / 2
		body = quictest.NewBodySource([]byte(requestBody[:half]), []byte(requestBody[half:]))
	}

	exchanges := []struct {
		method string
		body   quic.BodySource
	}{
		{method: "GET"},
		{method: "POST", body: body},
	}
	for _, e := range exchanges {
		if err := runExchange(cfg, appLogger, e.method, e.body); err != nil {
			appLogger.Error("Exchange failed", logger.LogFields{
				"method": e.method,
				"error":  err.Error(),
				"status": quic.StatusOf(err).String(),
			})
			os.Exit(1)
		}
	}
	os.Exit(0)
}

// runExchange drives one request/response exchange against an in-memory
// session scripted to answer it, exercising the full adapter lifecycle.
func runExchange(cfg *config.Config, appLogger *logger.Logger, method string, body quic.BodySource) error {
	sess := quictest.NewSession()
	stream := quictest.NewStream(5)
	sess.NextStream = stream

	req := &quic.RequestInfo{
		Method: method,
		URL:    requestURL,
		Headers: quic.HeaderBlock{
			{Name: "accept", Value: "*/*"},
			{Name: "accept-encoding", Value: "gzip"},
		},
		Body: body,
	}

	opts := quic.Options{
		MaxPacketSize:     *cfg.Client.MaxPacketSize,
		BodyBufferPackets: *cfg.Client.BodyBufferPackets,
		DisablePush:       !*cfg.Client.EnablePush,
	}
	s := quic.NewHTTPStream(sess, opts, appLogger)

	failNever := func(n int, err error) {
		appLogger.Error("Unexpected asynchronous completion", logger.LogFields{"n": n})
	}

	priority := quic.RequestPriority(*cfg.Client.DefaultPriority)
	if err := s.InitializeStream(req, priority, failNever); err != nil {
		return err
	}
	appLogger.Info("Stream initialized", logger.LogFields{
		"url":      req.URL,
		"method":   req.Method,
		"priority": priority.String(),
	})

	var resp quic.ResponseInfo
	if err := s.SendRequest(req.Headers, &resp, failNever); err != nil {
		return err
	}

	// The scripted peer answers with a small plaintext body.
	stream.DeliverResponseHeaders(quic.HeaderBlock{
		{Name: ":status", Value: "200"},
		{Name: "content-type", Value: "text/plain"},
	})
	stream.DeliverBody([]byte("hello from the simulated peer\n"), true)

	if err := s.ReadResponseHeaders(failNever); err != nil {
		return err
	}
	appLogger.Info("Response headers received", logger.LogFields{
		"status":          resp.StatusCode,
		"peer":            resp.PeerAddress,
		"connection_info": resp.ConnectionInfo,
	})

	var respBody []byte
	buf := make([]byte, opts.MaxPacketSize)
	for {
		n, err := s.ReadResponseBody(buf, failNever)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		respBody = append(respBody, buf[:n]...)
	}

	var timing quic.LoadTimingInfo
	s.LoadTimingInfo(&timing)

	appLogger.Info("Exchange complete", logger.LogFields{
		"method":         method,
		"body_bytes":     len(respBody),
		"total_sent":     humanize.Bytes(uint64(s.TotalSentBytes())),
		"total_received": humanize.Bytes(uint64(s.TotalReceivedBytes())),
		"socket_reused":  timing.SocketReused,
	})
	fmt.Print(string(respBody))
	return nil
}
