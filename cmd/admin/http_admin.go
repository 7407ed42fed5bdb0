package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type adminClient struct {
	base string
	http *http.Client
}

func newClient(baseURL string) adminClient {
	return adminClient{
		base: strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/admin/v1",
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// do sends one request and returns the body; a non-2xx status is an error carrying the body.
func (c adminClient) do(method, path string, body any) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return b, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(b)))
	}
	return b, nil
}

// arenaRequest maps a subcommand onto its admin route.
func arenaRequest(cmd, key string) (method, path string) {
	p := "/arenas/" + url.PathEscape(key)
	switch cmd {
	case "arena":
		return http.MethodGet, p
	case "remove":
		return http.MethodDelete, p
	default:
		return http.MethodPost, p + "/" + cmd
	}
}

func arenasCmd(args []string) {
	fs := flag.NewFlagSet("arenas", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	b, err := newClient(*baseURL).do(http.MethodGet, "/arenas", nil)
	exitOn(err)
	fmt.Println(string(b))
}

func arenaCmd(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	key := fs.String("key", "", "arena key")
	_ = fs.Parse(args)

	if strings.TrimSpace(*key) == "" {
		fmt.Fprintln(os.Stderr, "missing -key")
		os.Exit(2)
	}
	method, path := arenaRequest(cmd, *key)
	b, err := newClient(*baseURL).do(method, path, nil)
	exitOn(err)
	fmt.Println(string(b))
}

func playerCmd(args []string) {
	fs := flag.NewFlagSet("player", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	id := fs.String("id", "", "player id")
	_ = fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		fmt.Fprintln(os.Stderr, "missing -id")
		os.Exit(2)
	}
	b, err := newClient(*baseURL).do(http.MethodGet, "/players/"+url.PathEscape(*id), nil)
	exitOn(err)
	fmt.Println(string(b))
}

func depositCmd(args []string) {
	fs := flag.NewFlagSet("deposit", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	id := fs.String("id", "", "player id")
	amount := fs.String("amount", "", "amount to credit, e.g. 25 or 10.50")
	_ = fs.Parse(args)

	amt, err := decimal.NewFromString(strings.TrimSpace(*amount))
	if err != nil || !amt.IsPositive() || strings.TrimSpace(*id) == "" {
		fmt.Fprintln(os.Stderr, "need -id and a positive -amount")
		os.Exit(2)
	}
	body := map[string]decimal.Decimal{"amount": amt}
	b, err := newClient(*baseURL).do(http.MethodPost, "/players/"+url.PathEscape(*id)+"/deposit", body)
	exitOn(err)
	fmt.Println(string(b))
}

func exitOn(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "request:", err)
	os.Exit(1)
}
