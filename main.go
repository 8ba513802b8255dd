package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-ini/ini"
	log "github.com/sirupsen/logrus"
	"github.com/tuannh982/toa/toa"
	"github.com/tuannh982/toa/toa/commons"
	"github.com/tuannh982/toa/toa/network"
	"github.com/tuannh982/toa/utils/logging"
	"github.com/tuannh982/toa/utils/math"
)

type demoSettings struct {
	Nodes     int           `ini:"nodes"`
	Messages  int           `ini:"messages"`
	GroupSize int           `ini:"group_size"`
	Timeout   time.Duration `ini:"timeout"`
}

func defaultDemoSettings() demoSettings {
	return demoSettings{
		Nodes:     3,
		Messages:  5,
		GroupSize: 2,
		Timeout:   10 * time.Second,
	}
}

func loadDemoSettings(path string) (demoSettings, error) {
	settings := defaultDemoSettings()
	cfg, err := ini.Load(path)
	if err != nil {
		return settings, err
	}
	if err = cfg.Section("demo").MapTo(&settings); err != nil {
		return settings, err
	}
	if settings.Nodes <= 0 || settings.GroupSize <= 0 || settings.GroupSize > settings.Nodes {
		return settings, fmt.Errorf("invalid demo settings %+v", settings)
	}
	return settings, nil
}

type deliveryLog struct {
	mu        sync.Mutex
	addr      commons.Address
	delivered []string
	log       *log.Entry
}

func (d *deliveryLog) Deliver(msg *commons.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, string(msg.Payload))
	d.log.Info("DELIVER ", string(msg.Payload), " from ", msg.Src)
}

func (d *deliveryLog) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.delivered...)
}

func main() {
	configPath := flag.String("config", "", "path to an ini file with [log], [protocol] and [demo] sections")
	flag.Parse()

	logSettings := logging.DefaultSettings()
	protocolConfig := toa.DefaultConfig()
	settings := defaultDemoSettings()
	if *configPath != "" {
		var err error
		if logSettings, err = logging.Load(*configPath); err != nil {
			log.Fatal(err)
		}
		if protocolConfig, err = toa.LoadConfig(*configPath); err != nil {
			log.Fatal(err)
		}
		if settings, err = loadDemoSettings(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	logger := logging.New(logSettings)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	net := network.NewLocalNetwork(logger)
	addrs := make([]commons.Address, 0, settings.Nodes)
	nodes := make([]*toa.Protocol, 0, settings.Nodes)
	logs := make([]*deliveryLog, 0, settings.Nodes)
	for i := 0; i < settings.Nodes; i++ {
		addr := commons.NewRandomAddress(fmt.Sprintf("n%d", i))
		d := &deliveryLog{addr: addr, log: logger.WithField("node", string(addr))}
		p := toa.NewProtocol(net.Link(addr), d, protocolConfig, logger)
		p.SetLocalAddress(addr)
		if _, err := net.Join(addr, p); err != nil {
			log.Fatal(err)
		}
		addrs = append(addrs, addr)
		nodes = append(nodes, p)
		logs = append(logs, d)
	}
	view := commons.View{ID: 1, Members: addrs}
	for _, p := range nodes {
		if err := p.Start(ctx); err != nil {
			log.Fatal(err)
		}
		p.ViewChanged(view)
	}
	if err := net.Start(ctx); err != nil {
		log.Fatal(err)
	}

	expected := make(map[commons.Address]int)
	for i, p := range nodes {
		for j := 0; j < settings.Messages; j++ {
			group := randomGroup(addrs, settings.GroupSize)
			for _, member := range group.Addresses() {
				expected[member]++
			}
			payload := fmt.Sprintf("%s#%d", addrs[i], j)
			if err := p.Down(commons.NewMessage(group, []byte(payload))); err != nil {
				logger.WithError(err).Error("multicast failed")
			}
		}
	}

	finished := make(chan struct{})
	go func() {
		waitForDeliveries(logs, expected, settings.Timeout)
		checkOrder(logger, logs)
		for _, p := range nodes {
			stats := p.Stats()
			logger.WithFields(log.Fields{
				"node":      p.LocalAddress(),
				"delivered": stats.Delivered,
				"anycasts":  stats.AnycastsSent,
				"unicasts":  stats.UnicastsSent,
				"avg":       stats.AvgUnicastsPerAnycast(),
			}).Info("STATS")
		}
		close(finished)
	}()
	done := make(chan struct{})
	go hookShutdownSignal(done)
	select {
	case <-finished:
	case <-done:
	}
	cancel()
	<-net.Done()
}

func randomGroup(addrs []commons.Address, size int) *commons.GroupAddress {
	perm := rand.Perm(len(addrs))
	size = math.Min(size, len(perm))
	members := make([]commons.Address, 0, size)
	for _, i := range perm[:size] {
		members = append(members, addrs[i])
	}
	return commons.NewGroupAddress(members...)
}

func waitForDeliveries(logs []*deliveryLog, expected map[commons.Address]int, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		complete := true
		for _, d := range logs {
			if len(d.snapshot()) < expected[d.addr] {
				complete = false
				break
			}
		}
		if complete {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// checkOrder logs whether every pair of nodes delivered their common messages
// in the same order.
func checkOrder(logger *log.Logger, logs []*deliveryLog) {
	for i, a := range logs {
		for _, b := range logs[i+1:] {
			if !sameRelativeOrder(a.snapshot(), b.snapshot()) {
				logger.Error("ORDER MISMATCH between ", a.addr, " and ", b.addr)
				return
			}
		}
	}
	logger.Info("all nodes delivered common messages in the same order")
}

func sameRelativeOrder(a, b []string) bool {
	inA := make(map[string]bool, len(a))
	for _, m := range a {
		inA[m] = true
	}
	var common []string
	for _, m := range b {
		if inA[m] {
			common = append(common, m)
		}
	}
	k := 0
	for _, m := range a {
		if k < len(common) && m == common[k] {
			k++
		}
	}
	return k == len(common)
}

func hookShutdownSignal(done chan struct{}) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	close(done)
}
