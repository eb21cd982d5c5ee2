package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sagernet/sing-uv"
	"github.com/sagernet/sing-uv/common/buf"
	E "github.com/sagernet/sing-uv/common/exceptions"
	"github.com/sagernet/sing-uv/common/log"
	"github.com/sagernet/sing-uv/common/metrics"
	"github.com/sagernet/sing-uv/common/x/list"
	"github.com/sagernet/sing-uv/reactor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var logger = log.NewLogger("uv-echo")

type flags struct {
	Listen        string          `yaml:"listen"`
	Backlog       int             `yaml:"backlog"`
	LogLevel      string          `yaml:"log_level"`
	MetricsListen string          `yaml:"metrics_listen"`
	StatsInterval time.Duration   `yaml:"stats_interval"`
	Loop          reactor.Options `yaml:"loop"`
	ConfigFile    string          `yaml:"-"`
}

func main() {
	f := new(flags)

	command := &cobra.Command{
		Use:     "uv-echo",
		Short:   "tcp echo server",
		Version: uv.Version,
		Run: func(cmd *cobra.Command, args []string) {
			err := run(cmd, f)
			if err != nil {
				logrus.Fatal(err)
			}
		},
	}

	command.Flags().StringVarP(&f.Listen, "listen", "l", "127.0.0.1:7777", "Set the listen address. Host names are resolved first.")
	command.Flags().IntVarP(&f.Backlog, "backlog", "b", 128, "Set the listen backlog.")
	command.Flags().StringVar(&f.LogLevel, "log-level", "info", "Set the log level.")
	command.Flags().StringVar(&f.MetricsListen, "metrics", "", "Serve prometheus metrics on this address.")
	command.Flags().DurationVar(&f.StatsInterval, "stats-interval", 0, "Log loop statistics periodically.")
	command.Flags().IntVar(&f.Loop.ThreadPoolSize, "threads", 0, "Set the thread pool size.")
	command.Flags().StringVarP(&f.ConfigFile, "config", "c", "", "Use a configuration file.")

	err := command.Execute()
	if err != nil {
		logrus.Fatal(err)
	}
}

func loadConfig(cmd *cobra.Command, f *flags) error {
	if f.ConfigFile == "" {
		return nil
	}
	content, err := os.ReadFile(f.ConfigFile)
	if err != nil {
		return E.Cause(err, "read config file")
	}
	var fileFlags flags
	err = yaml.Unmarshal(content, &fileFlags)
	if err != nil {
		return E.Cause(err, "decode config file")
	}
	changed := cmd.Flags().Changed
	if fileFlags.Listen != "" && !changed("listen") {
		f.Listen = fileFlags.Listen
	}
	if fileFlags.Backlog != 0 && !changed("backlog") {
		f.Backlog = fileFlags.Backlog
	}
	if fileFlags.LogLevel != "" && !changed("log-level") {
		f.LogLevel = fileFlags.LogLevel
	}
	if fileFlags.MetricsListen != "" && !changed("metrics") {
		f.MetricsListen = fileFlags.MetricsListen
	}
	if fileFlags.StatsInterval != 0 && !changed("stats-interval") {
		f.StatsInterval = fileFlags.StatsInterval
	}
	if fileFlags.Loop.ThreadPoolSize != 0 && !changed("threads") {
		f.Loop.ThreadPoolSize = fileFlags.Loop.ThreadPoolSize
	}
	if fileFlags.Loop.MaxEvents != 0 {
		f.Loop.MaxEvents = fileFlags.Loop.MaxEvents
	}
	return nil
}

func run(cmd *cobra.Command, f *flags) error {
	err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	err = log.SetLevel(f.LogLevel)
	if err != nil {
		return err
	}
	host, port, err := uv.ParseHostPort(f.Listen)
	if err != nil {
		return E.Cause(err, "listen address")
	}

	loop, err := reactor.New(f.Loop)
	if err != nil {
		return err
	}
	s, err := newServer(loop, f)
	if err != nil {
		return err
	}
	err = s.start(host, port)
	if err != nil {
		s.close()
		loop.Run(reactor.RunDefault)
		loop.Close()
		return err
	}

	if f.MetricsListen != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(metrics.NewLoopCollector(loop, prometheus.Labels{"listen": f.Listen}))
		go func() {
			metricsErr := http.ListenAndServe(f.MetricsListen, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if metricsErr != nil {
				logger.Error("serve metrics: ", metricsErr)
			}
		}()
	}

	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-osSignals
		logger.Info("stopping")
		loop.Stop()
	}()

	err = loop.Run(reactor.RunDefault)
	if err != nil {
		return err
	}
	s.close()
	err = loop.Run(reactor.RunDefault)
	if err != nil {
		return err
	}
	return loop.Close()
}

type server struct {
	loop          *reactor.Loop
	backlog       int
	statsInterval time.Duration
	listener      *uv.TCP
	stats         *uv.Timer
	clients       list.List[*uv.TCP]
}

func newServer(loop *reactor.Loop, f *flags) (*server, error) {
	listener, err := uv.NewTCP(loop)
	if err != nil {
		return nil, err
	}
	s := &server{
		loop:          loop,
		backlog:       f.Backlog,
		statsInterval: f.StatsInterval,
		listener:      listener,
	}
	uv.On(listener, s.onBind)
	uv.On(listener, s.onAccept)
	uv.On(listener, func(event uv.EvError, listener *uv.TCP) {
		logger.Error("listener: ", event)
	})
	return s, nil
}

func (s *server) start(host string, port uint16) error {
	if s.statsInterval > 0 {
		stats, err := uv.NewTimer(s.loop)
		if err != nil {
			return err
		}
		s.stats = stats
		uv.On(stats, s.onStats)
		err = stats.Start(s.statsInterval, s.statsInterval)
		if err != nil {
			return err
		}
	}
	return s.listener.BindHost(host, port)
}

func (s *server) onBind(event uv.EvBind, listener *uv.TCP) {
	err := listener.Listen(s.backlog)
	if err != nil {
		logger.Error("listen: ", err)
		listener.Close()
		return
	}
	addr, _ := listener.LocalAddr()
	logger.Info("server started at ", addr)
}

func (s *server) onAccept(event uv.EvAccept[*uv.TCP], listener *uv.TCP) {
	client := event.Client
	uv.SelfRefUntil[uv.EvClose](client)
	client.Release()
	element := s.clients.PushBack(client)
	logger.Debug("accepted ", client.IP(), ":", client.Port())
	uv.On(client, func(event uv.EvRead, client *uv.TCP) {
		buffer := buf.Copy(event.Data)
		err := client.WriteAsync(buffer)
		if err != nil {
			buffer.Release()
			logger.Debug("echo: ", err)
			client.Close()
		}
	})
	uv.On(client, func(event uv.EvBufferRecycled, client *uv.TCP) {
		event.Buffer.Release()
	})
	uv.On(client, func(event uv.EvError, client *uv.TCP) {
		logger.Debug("client: ", event)
	})
	uv.On(client, func(event uv.EvClose, client *uv.TCP) {
		s.clients.Remove(element)
	})
	err := client.ReadStart()
	if err != nil {
		logger.Warn("read start: ", err)
		client.Close()
	}
}

func (s *server) onStats(event uv.EvTimer, timer *uv.Timer) {
	stats := s.loop.Stats()
	logger.Info(
		"clients: ", s.clients.Len(),
		", handles: ", stats.Handles,
		", resources: ", stats.Resources,
		", iterations: ", stats.Iterations,
	)
}

func (s *server) close() {
	for element := s.clients.Front(); element != nil; element = element.Next() {
		element.Value.Close()
	}
	if s.stats != nil {
		s.stats.Close()
		s.stats.Release()
	}
	s.listener.Close()
	s.listener.Release()
}
