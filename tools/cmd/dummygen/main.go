// tools/cmd/dummygen/main.go
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

var header = []string{"request_id", "phone", "amount", "tenant_reference"}

// phoneFormats covers the shapes tenants actually type into the form.
var phoneFormats = []func(subscriber string) string{
	func(s string) string { return "0" + s },
	func(s string) string { return "254" + s },
	func(s string) string { return "+254" + s },
	func(s string) string { return fmt.Sprintf("+254 %s %s %s", s[:3], s[3:6], s[6:]) },
	func(s string) string { return fmt.Sprintf("0%s-%s-%s", s[:3], s[3:6], s[6:]) },
}

func main() {
	n := flag.Int("n", 100, "number of rows (excluding header)")
	out := flag.String("out", "testdata/initiations.csv", "output CSV path")
	flag.Parse()

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := writeRows(w, *n, rand.New(rand.NewSource(time.Now().UnixNano()))); err != nil {
		log.Fatal(err)
	}
	log.Printf("generated %s (%d rows + header)", *out, *n)
}

func writeRows(w *csv.Writer, n int, rnd *rand.Rand) error {
	if err := w.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(rnd)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func row(rnd *rand.Rand) []string {
	// Safaricom subscriber numbers: 7XXXXXXXX or 1XXXXXXXX.
	subscriber := fmt.Sprintf("%d%08d", []int{7, 1}[rnd.Intn(2)], rnd.Intn(100000000))
	return []string{
		uuid.NewString(),
		phoneFormats[rnd.Intn(len(phoneFormats))](subscriber),
		fmt.Sprintf("%d", 500+rnd.Intn(60)*500),
		fmt.Sprintf("RENT_%04d", rnd.Intn(10000)),
	}
}
