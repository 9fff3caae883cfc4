package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/technosupport/slothunter/internal/detector"
)

// cmdDetect runs one detection over a saved page or a URL, without the
// daemon.
func cmdDetect(ctx context.Context, c *cli, args []string) error {
	fs := newFlags("detect")
	modeFlag := fs.String("mode", string(detector.ModeBoth), "pattern, structural or both")
	verbose := fs.BoolP("verbose", "v", false, "print the evidence")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	mode, err := detector.ParseMode(*modeFlag)
	if err != nil {
		return err
	}

	src := fs.Arg(0)
	rc, err := open(ctx, src)
	if err != nil {
		return err
	}
	defer rc.Close()

	doc, err := goquery.NewDocumentFromReader(rc)
	if err != nil {
		return fmt.Errorf("parse %s: %w", src, err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ev := detector.Evaluate(doc, mode, detector.CompileRules(nil, logger), logger)

	if ev.Count == 0 {
		c.printf("No slots found.\n")
	} else {
		c.printf("%s\n", detector.IndicatorText(ev.Count, detector.EarliestDate(ev.Slots)))
	}
	if *verbose {
		c.printf("title: %s\nbooking page: %t\n", ev.Title, ev.IsBookingPage)
		for _, s := range ev.Slots {
			c.printf("  - %s", s.Text)
			if s.Date != "" {
				c.printf(" [%s]", s.Date)
			}
			c.printf("\n")
		}
	}
	return nil
}

func open(ctx context.Context, src string) (io.ReadCloser, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return os.Open(src)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", "SlotHunter/1.0")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("fetch %s: %s", src, resp.Status)
	}
	return cancelOnClose{resp.Body, cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
