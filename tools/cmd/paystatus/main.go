// tools/cmd/paystatus/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/example/rent-payments-poc/internal/grpcserver"
)

// paystatus asks payments-grpc for the state of one or more payments.
//
//	paystatus -addr localhost:9091 ws_CO_123 ws_CO_456
func main() {
	addr := flag.String("addr", getenv("PAYMENTS_ADDR", "localhost:9091"), "payments-grpc address")
	timeout := flag.Duration("timeout", 5*time.Second, "per-call timeout")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: paystatus [-addr host:port] <correlation-id>...")
		os.Exit(2)
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("connect %s: %v", *addr, err)
	}
	defer conn.Close()

	out := protojson.MarshalOptions{Multiline: true, Indent: "  "}
	failed := false
	for _, id := range flag.Args() {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		st, err := grpcserver.GetStatus(ctx, conn, id)
		cancel()
		if err != nil {
			log.Printf("%s: %v", id, err)
			failed = true
			continue
		}
		b, _ := out.Marshal(st)
		fmt.Println(string(b))
	}
	if failed {
		os.Exit(1)
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
