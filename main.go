package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"callpilot.dev/assist"
	"callpilot.dev/audio"
	"callpilot.dev/bus"
	"callpilot.dev/call"
	"callpilot.dev/config"
	"callpilot.dev/dispatch"
	"callpilot.dev/ingest"
	"callpilot.dev/metrics"
	"callpilot.dev/pipeline"
	"callpilot.dev/store"
	"callpilot.dev/stt"
	"callpilot.dev/trigger"
	"callpilot.dev/web"
	"callpilot.dev/window"
	callws "callpilot.dev/ws"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCallsCmd)
	rootCmd.AddCommand(watchCmd)

	rootCmd.PersistentFlags().Int("port", 8080, "HTTP and websocket port")
	rootCmd.PersistentFlags().
		String("database-url", "", "Postgres URL; empty runs the in-memory store")
	rootCmd.PersistentFlags().String("stt-url", "", "Realtime transcription endpoint")
	rootCmd.PersistentFlags().String("stt-api-key", "", "Transcription API key")
	rootCmd.PersistentFlags().
		Bool("mock-stt", false, "Use the scripted transcription engine")
	rootCmd.PersistentFlags().
		String("ws-url", "ws://localhost:8080/ws", "Websocket URL advertised to clients")
	rootCmd.PersistentFlags().
		String("api-url", "http://localhost:8080", "API base URL for client commands")

	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag(
		"database_url",
		rootCmd.PersistentFlags().Lookup("database-url"),
	)
	viper.BindPFlag("stt_url", rootCmd.PersistentFlags().Lookup("stt-url"))
	viper.BindPFlag(
		"stt_api_key",
		rootCmd.PersistentFlags().Lookup("stt-api-key"),
	)
	viper.BindPFlag("mock_stt", rootCmd.PersistentFlags().Lookup("mock-stt"))
	viper.BindPFlag("ws_url", rootCmd.PersistentFlags().Lookup("ws-url"))
	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	viper.ReadInConfig()

	logger = log.New(os.Stdout)
}

var rootCmd = &cobra.Command{
	Use:   "callpilot",
	Short: "Callpilot is a real-time copilot for support calls",
	Long:  `Callpilot listens to support calls, keeps a rolling transcript context, and pushes suggestion cards to agent dashboards while the customer is still talking.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the call processing server",
	Run:   runServe,
}

var listCallsCmd = &cobra.Command{
	Use:   "calls",
	Short: "List calls known to the server",
	Run:   runListCalls,
}

var watchCmd = &cobra.Command{
	Use:   "watch <call_id>",
	Short: "Stream one call's transcript and cards to the terminal",
	Args:  cobra.ExactArgs(1),
	Run:   runWatch,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	mainLogger := serverLogger()
	settings := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := openStore(ctx, settings, mainLogger)
	if err != nil {
		mainLogger.Fatal("open store", "error", err.Error())
	}
	defer closeStore()

	recognition := openRecognition(settings, mainLogger.WithPrefix("hear"))

	m := metrics.New()
	b := bus.New()
	defer b.Close()

	registry := ingest.NewRegistry(recognition, b, m, mainLogger.WithPrefix("hear"))
	mux := ingest.NewMultiplexer(registry, m, mainLogger.WithPrefix("feed"))
	hub := callws.NewHub(st, mux, mainLogger.WithPrefix("sock"))
	dispatcher := dispatch.New(st, hub, m, mainLogger.WithPrefix("send"))

	flow := pipeline.New(
		b,
		window.NewEngine(st, mainLogger.WithPrefix("text")),
		trigger.NewEngine(st, m, mainLogger.WithPrefix("cues")),
		assist.NewRetriever(assist.MockFactSource{}, mainLogger.WithPrefix("fact")),
		assist.NewBuilder(st, assist.MockPhraser{}, m, mainLogger.WithPrefix("card")),
		dispatcher,
		mainLogger.WithPrefix("flow"),
	)

	pipelineDone := make(chan error, 1)
	go func() { pipelineDone <- flow.Run(ctx) }()

	api := web.NewAPI(st, hub, settings.WSURL, mainLogger.WithPrefix("http"))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", settings.Port),
		Handler: api.Router(),
	}

	go func() {
		mainLogger.Info("listening", "url", fmt.Sprintf("http://localhost:%d", settings.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			mainLogger.Fatal("start server", "error", err.Error())
		}
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	mainLogger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	registry.Stop()
	cancel()
	if err := <-pipelineDone; err != nil {
		mainLogger.Error("pipeline stopped", "error", err.Error())
	}
}

func openStore(ctx context.Context, settings config.Settings, logger *log.Logger) (store.Store, func(), error) {
	if !settings.UsePostgres() {
		logger.Info("using in-memory call store")
		return store.NewMemory(), func() {}, nil
	}

	pg, err := store.OpenPostgres(ctx, settings.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using postgres call store")
	return pg, pg.Close, nil
}

func openRecognition(settings config.Settings, logger *log.Logger) stt.Recognition {
	if settings.UseMockSTT() {
		logger.Info("using scripted transcription engine")
		return stt.NewMock()
	}
	return stt.NewClient(
		settings.STTURL,
		settings.STTAPIKey,
		audio.TargetSampleRate,
		logger,
	)
}

func runListCalls(cmd *cobra.Command, args []string) {
	resp, err := http.Get(config.Load().APIURL + "/calls")
	if err != nil {
		logger.Fatal("fetch calls", "error", err.Error())
	}
	defer resp.Body.Close()

	var body struct {
		Calls []store.CallState `json:"calls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logger.Fatal("decode calls", "error", err.Error())
	}

	if len(body.Calls) == 0 {
		fmt.Println("No calls found.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Status", "Created At", "Segments", "Active Card"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, state := range body.Calls {
		segments := 0
		if state.ContextWindow != nil {
			segments = len(state.ContextWindow.Segments)
		}
		table.Append([]string{
			state.CallID,
			state.Status,
			time.UnixMilli(state.CreatedAt).Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", segments),
			state.ActiveCardID,
		})
	}

	table.Render()
}

var (
	speakerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff8800"))
	partialStyle = lipgloss.NewStyle().Faint(true)
	cardStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Foreground(lipgloss.Color("#00cc88"))
)

func runWatch(cmd *cobra.Command, args []string) {
	callID := args[0]
	wsURL := config.Load().WSURL

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		logger.Fatal("connect", "url", wsURL, "error", err.Error())
	}
	defer conn.Close()

	err = conn.WriteJSON(map[string]string{"action": "register", "call_id": callID})
	if err != nil {
		logger.Fatal("register", "error", err.Error())
	}
	logger.Info("watching call", "call_id", callID)

	for {
		var msg struct {
			Type    string       `json:"type"`
			Text    string       `json:"text"`
			Speaker string       `json:"speaker"`
			Segment call.Segment `json:"segment"`
			Card    call.Card    `json:"card"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			logger.Fatal("read", "error", err.Error())
		}

		switch msg.Type {
		case "transcript.partial":
			fmt.Printf("\r%s %s",
				speakerStyle.Render(msg.Speaker+":"),
				partialStyle.Render(msg.Text))
		case "transcript.final":
			fmt.Printf("\r%s %s\n",
				speakerStyle.Render(msg.Segment.Speaker+":"),
				msg.Segment.Text)
		case "assist.card":
			var lines []string
			lines = append(lines, "Next step: "+msg.Card.NextStep)
			for _, fact := range msg.Card.Facts {
				lines = append(lines, "- "+fact)
			}
			if len(msg.Card.Sources) > 0 {
				lines = append(lines, "Sources: "+strings.Join(msg.Card.Sources, ", "))
			}
			fmt.Println(cardStyle.Render(strings.Join(lines, "\n")))
		}
	}
}

func serverLogger() *log.Logger {
	logger.SetLevel(log.DebugLevel)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))
	logger.SetStyles(styles)

	return logger.With().WithPrefix("main")
}
