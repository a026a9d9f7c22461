// Stress driver for the gateway: many clients issuing commands on an
// interval, reporting throughput every few seconds. The gateway serializes
// instrument access, so this measures queueing behavior, not the scope.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type Stats struct {
	TotalSent      int64
	TotalFailed    int64
	TotalConnected int64
	ActiveClients  int64
}

type Client struct {
	ID           int
	ServerAddr   string
	SendInterval time.Duration
	Stats        *Stats
	Log          *logrus.Logger
	StopChan     chan struct{}
}

func NewClient(id int, serverAddr string, interval time.Duration, stats *Stats, log *logrus.Logger) *Client {
	return &Client{
		ID:           id,
		ServerAddr:   serverAddr,
		SendInterval: interval,
		Stats:        stats,
		Log:          log,
		StopChan:     make(chan struct{}),
	}
}

func (c *Client) Run(wg *sync.WaitGroup) {
	defer wg.Done()

	conn, err := net.DialTimeout("tcp", c.ServerAddr, 5*time.Second)
	if err != nil {
		c.Log.Errorf("client %d connect failed: %v", c.ID, err)
		atomic.AddInt64(&c.Stats.TotalFailed, 1)
		return
	}
	defer conn.Close()

	atomic.AddInt64(&c.Stats.TotalConnected, 1)
	atomic.AddInt64(&c.Stats.ActiveClients, 1)
	defer atomic.AddInt64(&c.Stats.ActiveClients, -1)

	c.Log.Debugf("client %d connected", c.ID)

	reader := bufio.NewReader(conn)
	ticker := time.NewTicker(c.SendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.StopChan:
			c.Log.Debugf("client %d stopping", c.ID)
			return

		case <-ticker.C:
			cmd := c.pickCommand()

			conn.SetDeadline(time.Now().Add(30 * time.Second))
			if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
				c.Log.Errorf("client %d send failed: %v", c.ID, err)
				atomic.AddInt64(&c.Stats.TotalFailed, 1)
				return
			}
			resp, err := reader.ReadString('\n')
			if err != nil {
				c.Log.Errorf("client %d read failed: %v", c.ID, err)
				atomic.AddInt64(&c.Stats.TotalFailed, 1)
				return
			}
			if !strings.HasPrefix(resp, "OK") {
				atomic.AddInt64(&c.Stats.TotalFailed, 1)
				continue
			}
			atomic.AddInt64(&c.Stats.TotalSent, 1)
		}
	}
}

func (c *Client) Stop() {
	close(c.StopChan)
}

// pickCommand weights cheap commands heavily so the serialized instrument
// path is not dominated by captures.
func (c *Client) pickCommand() string {
	r := rand.Intn(100)
	switch {
	case r < 60:
		return "IDN"
	case r < 85:
		return "RAW :TRIGger:MODE?"
	case r < 95:
		return "MEASURE channel1"
	default:
		return fmt.Sprintf("CAPTURE channel%d", rand.Intn(4)+1)
	}
}

type StressTest struct {
	ServerAddr   string
	NumClients   int
	SendInterval time.Duration
	Duration     time.Duration
	Stats        *Stats
	Clients      []*Client
	Log          *logrus.Logger
}

func NewStressTest(serverAddr string, numClients int, sendInterval, duration time.Duration) *StressTest {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &StressTest{
		ServerAddr:   serverAddr,
		NumClients:   numClients,
		SendInterval: sendInterval,
		Duration:     duration,
		Stats:        &Stats{},
		Clients:      make([]*Client, 0),
		Log:          log,
	}
}

func (st *StressTest) Run() {
	st.Log.Infof("========================================")
	st.Log.Infof("gateway stress test")
	st.Log.Infof("========================================")
	st.Log.Infof("server:   %s", st.ServerAddr)
	st.Log.Infof("clients:  %d", st.NumClients)
	st.Log.Infof("interval: %v", st.SendInterval)
	st.Log.Infof("duration: %v", st.Duration)
	st.Log.Infof("========================================")

	go st.monitorStats()

	var wg sync.WaitGroup
	startTime := time.Now()

	for i := 0; i < st.NumClients; i++ {
		client := NewClient(i+1, st.ServerAddr, st.SendInterval, st.Stats, st.Log)
		st.Clients = append(st.Clients, client)

		wg.Add(1)
		go client.Run(&wg)

		if (i+1)%10 == 0 {
			time.Sleep(10 * time.Millisecond)
			st.Log.Infof("started %d/%d clients...", i+1, st.NumClients)
		}
	}

	st.Log.Infof("all clients started in %v", time.Since(startTime))

	if st.Duration > 0 {
		time.Sleep(st.Duration)
		st.Log.Infof("duration reached, stopping...")
		st.Stop()
	}

	wg.Wait()
	st.printFinalStats()
}

func (st *StressTest) Stop() {
	st.Log.Infof("stopping all clients...")
	for _, client := range st.Clients {
		client.Stop()
	}
}

func (st *StressTest) monitorStats() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	lastSent := int64(0)
	lastTime := time.Now()

	for range ticker.C {
		now := time.Now()
		duration := now.Sub(lastTime).Seconds()

		currentSent := atomic.LoadInt64(&st.Stats.TotalSent)
		active := atomic.LoadInt64(&st.Stats.ActiveClients)
		totalConn := atomic.LoadInt64(&st.Stats.TotalConnected)
		totalFailed := atomic.LoadInt64(&st.Stats.TotalFailed)

		qps := float64(currentSent-lastSent) / duration

		st.Log.Infof("active: %d | connected: %d | failed: %d | completed: %d | QPS: %.0f",
			active, totalConn, totalFailed, currentSent, qps)

		lastSent = currentSent
		lastTime = now
	}
}

func (st *StressTest) printFinalStats() {
	st.Log.Infof("========================================")
	st.Log.Infof("stress test complete")
	st.Log.Infof("========================================")
	st.Log.Infof("connections: %d", atomic.LoadInt64(&st.Stats.TotalConnected))
	st.Log.Infof("completed:   %d", atomic.LoadInt64(&st.Stats.TotalSent))
	st.Log.Infof("failed:      %d", atomic.LoadInt64(&st.Stats.TotalFailed))

	total := atomic.LoadInt64(&st.Stats.TotalSent) + atomic.LoadInt64(&st.Stats.TotalFailed)
	if total > 0 {
		successRate := float64(atomic.LoadInt64(&st.Stats.TotalSent)) / float64(total) * 100
		st.Log.Infof("success:     %.2f%%", successRate)
	}
	st.Log.Infof("========================================")
}

func main() {
	serverAddr := flag.String("server", "localhost:8888", "gateway address")
	numClients := flag.Int("clients", 10, "number of concurrent clients")
	sendInterval := flag.Duration("interval", time.Second, "interval between commands")
	duration := flag.Duration("duration", 60*time.Second, "test duration (0 = unlimited)")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	st := NewStressTest(*serverAddr, *numClients, *sendInterval, *duration)

	if *debug {
		st.Log.SetLevel(logrus.DebugLevel)
	}

	st.Run()
}
