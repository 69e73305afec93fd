// joinserver launches a reference HTTP server for the OGC API Joins
// extension on the given address.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/geoserve/joins/internal/joinhttp"
	"github.com/geoserve/joins/internal/joinmgr"
	"github.com/geoserve/joins/internal/provider"
)

var (
	host     = flag.String("host", "localhost", "the address to bind to on the local machine")
	port     = flag.Int("port", 9001, "the port number to bind to on the local machine")
	dir      = flag.String("dir", "", "directory to persist join sources in (defaults to the OS temp dir)")
	maxDays  = flag.Int("max-days", 0, "retention age cap in days (0 = no cap)")
	maxFiles = flag.Int("max-files", 0, "retention count cap per collection (0 = no cap)")
)

func main() {
	flag.Parse()

	logFn := func(err error, format string, args ...interface{}) {
		if err != nil {
			format = "ERROR: " + format + ": %s"
			args = append(args, err)
		}
		log.Printf(format, args...)
	}

	mgr, err := joinmgr.FromConfig(joinmgr.Config{
		Enabled:   true,
		SourceDir: *dir,
		MaxDays:   *maxDays,
		MaxFiles:  *maxFiles,
		Log:       logFn,
	})
	if err != nil {
		log.Fatalf("failed to start join manager: %s", err)
	}
	defer mgr.Close()

	srv := &joinhttp.Server{
		Manager: mgr,
		Lookup:  demoProviders,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.Handler)

	addr := fmt.Sprintf("%s:%d", *host, *port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("failed to listen on addr %s: %s", addr, err)
	}

	httpSrv := &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	fmt.Printf("Join Manager server running on http://%s\n", addr)
	log.Fatal(httpSrv.Serve(l))
}

// demoProviders is a hard-coded collection registry standing in for
// whatever the host OGC API server already resolves collections
// through; see provider.MemoryProvider.
func demoProviders(collectionID string) (provider.Provider, bool) {
	if collectionID != "demo" {
		return nil, false
	}
	return &provider.MemoryProvider{
		KeyFieldsMap: map[string]provider.KeyField{
			"id": {Type: "string", Default: true},
		},
		FieldsMap: map[string]string{
			"id":   "string",
			"name": "string",
		},
	}, true
}
