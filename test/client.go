// Manual smoke client for the gateway: connects, identifies the instrument
// and runs a handful of captures.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
)

func main() {
	host := flag.String("host", "localhost:8888", "gateway address")
	source := flag.String("source", "channel1", "capture source channel")
	count := flag.Int("count", 3, "number of captures to request")
	flag.Parse()

	conn, err := net.Dial("tcp", *host)
	if err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	defer conn.Close()

	fmt.Printf("connected to %s\n", *host)
	reader := bufio.NewReader(conn)

	send := func(cmd string) string {
		if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
			log.Fatalf("send failed: %v", err)
		}
		resp, err := reader.ReadString('\n')
		if err != nil {
			log.Fatalf("read failed: %v", err)
		}
		resp = strings.TrimSpace(resp)
		fmt.Printf("> %s\n< %s\n", cmd, resp)
		return resp
	}

	send("IDN")

	for i := 0; i < *count; i++ {
		send("CAPTURE " + *source)
	}

	send("MEASURE " + *source)
	send("STATS")
	send("QUIT")
	fmt.Println("done")
}
