// Command server stands in for prometheus-rds-exporter in end-to-end runs.
// It serves a static metrics page and echoes the file given with --config.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
)

func main() {
	config := flag.String("config", "", "configuration file")
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	_ = flag.CommandLine.Parse(os.Args[1:])

	listen := os.Getenv("LISTEN_ADDRESS")
	if listen == "" {
		listen = ":9043"
	}

	http.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "# TYPE rds_exporter_up gauge")
		fmt.Fprintln(w, "rds_exporter_up 1")
	})
	http.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile(*config)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write(data)
	})
	if err := http.ListenAndServe(listen, nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
