package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"wardwatch/internal/alerts"
	"wardwatch/internal/api"
	"wardwatch/internal/models"
	"wardwatch/internal/monitor"
	"wardwatch/internal/stream"
	"wardwatch/internal/utils"
)

const (
	envClientSecret = "BEDSIDE_CLIENT_SECRET"
	envPassword     = "BEDSIDE_PASSWORD"
)

func main() {
	server := flag.String("server", "http://127.0.0.1:8000", "Backend base URL")
	room := flag.String("room", "", "Monitor a single room's fill-colour stream instead of the directory view")
	clientID := flag.String("client-id", "", "API client id for the client-credentials grant")
	username := flag.String("username", "", "Username for the password grant (prompts for the password)")
	alertMode := flag.String("alerts", "modal", "Alert policy: modal or transient")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := utils.NewLogger(*logLevel, "console", "bedside")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var policy alerts.Policy
	switch *alertMode {
	case "modal":
		policy = alerts.PolicyModal
	case "transient":
		policy = alerts.PolicyTransient
	default:
		fmt.Fprintln(os.Stderr, "alerts must be 'modal' or 'transient'")
		os.Exit(1)
	}

	token, err := login(*server, *clientID, *username, logger)
	if err != nil {
		var httpErr *api.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == 401 {
			// Invalid credentials: stay unauthenticated, let the operator retry.
			fmt.Fprintln(os.Stderr, "Invalid credentials")
			os.Exit(1)
		}
		logger.Fatal("login failed", zap.Error(err))
	}

	// Session starts here: one broker, one authenticated client, torn down
	// together on exit.
	broker := alerts.NewBroker(policy, logger, renderAlert)
	defer broker.Shutdown()

	client := api.NewClient(api.Options{
		BaseURL: *server,
		Headers: map[string]string{"Authorization": "Bearer " + token},
		Logger:  logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	supervisor := stream.NewSupervisor(logger)
	defer supervisor.Close()

	if *room != "" {
		runRoomView(ctx, client, supervisor, broker, token, *room, logger)
	} else {
		runDirectoryView(ctx, client, supervisor, broker, token, logger)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
}

// login performs the auth exchange and returns the access token. The
// core never authenticates on its own; it only consumes this token.
func login(server, clientID, username string, logger *zap.Logger) (string, error) {
	authClient := api.NewClient(api.Options{BaseURL: server, Logger: logger})

	var endpoint string
	form := url.Values{}
	switch {
	case clientID != "":
		secret := os.Getenv(envClientSecret)
		if secret == "" {
			var err error
			if secret, err = promptSecret("Client secret: "); err != nil {
				return "", err
			}
		}
		endpoint = "/auth/token"
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", clientID)
		form.Set("client_secret", secret)
	case username != "":
		password := os.Getenv(envPassword)
		if password == "" {
			var err error
			if password, err = promptSecret("Password: "); err != nil {
				return "", err
			}
		}
		endpoint = "/auth/token-password"
		form.Set("username", username)
		form.Set("password", password)
	default:
		return "", errors.New("either --client-id or --username is required")
	}

	raw, err := authClient.Request(context.Background(), endpoint, "POST", form)
	if err != nil {
		return "", err
	}
	var resp models.TokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("auth response carried no token")
	}
	logger.Info("authenticated", zap.Int("expires_in", resp.ExpiresIn))
	return resp.AccessToken, nil
}

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", errors.New("empty secret")
	}
	return secret, nil
}

// runRoomView watches one room's fill colour, like a bedside display.
func runRoomView(ctx context.Context, client *api.Client, supervisor *stream.Supervisor, broker *alerts.Broker, token, room string, logger *zap.Logger) {
	watcher := monitor.NewRoomWatcher(room, broker, logger)
	path := fmt.Sprintf("/liquid/colour/subscribe?token=%s&room=%s",
		url.QueryEscape(token), url.QueryEscape(room))

	fmt.Printf("Room %s: awaiting connection\n", room)
	supervisor.Set(ctx, client, path, stream.Options{
		Logger: logger,
		OnSample: func(sample models.SensorSample) {
			watcher.HandleSample(sample)
			if hex, shade, ok := watcher.FillColour(); ok {
				fmt.Printf("Room %s fill: %s (outline %s)\n", room, hex, shade)
			}
		},
		OnClose: func() {
			// No automatic retry; the indicator stays until a new session.
			fmt.Printf("Room %s: stream disconnected, awaiting connection\n", room)
		},
	})
}

// runDirectoryView fetches the patient directory and watches the global
// detection stream, surfacing per-room detail as events arrive.
func runDirectoryView(ctx context.Context, client *api.Client, supervisor *stream.Supervisor, broker *alerts.Broker, token string, logger *zap.Logger) {
	correlator := monitor.NewCorrelator(broker, logger)
	if err := correlator.LoadDirectory(ctx, client); err != nil {
		// Keep the session alive; the directory view shows its error state.
		fmt.Fprintf(os.Stderr, "Patient directory unavailable: %v\n", err)
	} else {
		for _, p := range correlator.Patients() {
			fmt.Printf("Room %s: %s %s (%s)\n", p.Room, p.FirstName, p.LastName, p.BloodType)
		}
	}

	path := "/liquid/detected/subscribe?token=" + url.QueryEscape(token)
	supervisor.Set(ctx, client, path, stream.Options{
		Logger: logger,
		OnSample: func(sample models.SensorSample) {
			correlator.HandleDetection(sample)
			if p, open := correlator.Dialog(); open {
				fmt.Printf("-- %s %s | Room %s | blood type %s | LIQUID DETECTED --\n",
					p.FirstName, p.LastName, p.Room, p.BloodType)
			}
		},
		OnClose: func() {
			fmt.Println("Detection stream disconnected, awaiting connection")
		},
	})
}

// renderAlert is the presentation hook for the session broker.
func renderAlert(ev *alerts.Event) {
	if ev == nil {
		fmt.Println("[alert dismissed]")
		return
	}
	prefix := strings.ToUpper(string(ev.Severity))
	if ev.Title != "" {
		fmt.Printf("[%s] %s: %s\n", prefix, ev.Title, ev.Body)
		return
	}
	fmt.Printf("[%s] %s\n", prefix, ev.Body)
}
