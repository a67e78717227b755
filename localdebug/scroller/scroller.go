package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"pgregory.net/rand"
)

// primitive tool for testing visibility debounce and batch spacing
// scrolls grid of running cardgallery-cache up and down with random jitter
func main() {
	addr := flag.String("addr", "http://localhost:8090", "cardgallery-cache address")
	variant := flag.String("variant", "thumb", "image variant")
	rows := flag.Int("rows", 100, "rows in grid")
	columns := flag.Int("columns", 4, "cards per row")
	page := flag.Int("page", 5, "visible rows")
	flag.Parse()

	start, dir := 0, 1
	for {
		time.Sleep(time.Millisecond * time.Duration(rand.Intn(40))) // faster than debounce most of the time
		if start+*page >= *rows || (start > 0 && rand.Intn(50) == 0) {
			dir = -dir
		}
		start += dir
		if start < 0 {
			start, dir = 0, 1
		}
		url := fmt.Sprintf("%s/visible/%s?start=%d&end=%d&columns=%d", *addr, *variant, start, start+*page-1, *columns)
		resp, err := http.Post(url, "", nil)
		if err != nil {
			log.Printf("error posting visible range: %v", err)
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		fmt.Printf("rows %d..%d: %s\n", start, start+*page-1, body)
	}
}
