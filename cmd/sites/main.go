// Package main provides the sites command: it lists the site
// configurations available in a directory.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/marvst/properties-scraper/internal/config"
	"github.com/marvst/properties-scraper/internal/formatter"
)

func main() {
	dir := flag.String("dir", "sites", "Directory containing site YAML files")
	flag.Parse()

	sites, err := config.LoadSites(*dir)
	if err != nil {
		log.Fatalf("Error loading sites: %v", err)
	}

	fmt.Print(formatter.RenderSites(sites))
}
