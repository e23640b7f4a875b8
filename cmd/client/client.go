package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"time"
)

type batchRequest struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

func main() {

	var (
		httpAddr = flag.String("http-addr", "http://localhost:8082", "server base address")
		caller   = flag.String("caller", "1234", "caller id")
		proxies  = flag.String("proxies", "", "proxies to add before submitting, space separated host:port")
		url      = flag.String("url", "https://www.tiktok.com/@user/video/123", "target url")
		count    = flag.Int("count", 10, "views to request")
		wait     = flag.Bool("wait", false, "poll the outbox until the batch reports back")
	)
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	base := fmt.Sprintf("%s/v1/callers/%s", *httpAddr, *caller)

	if *proxies != "" {
		body, err := call(client, http.MethodPost, base+"/proxies", []byte(*proxies))
		if err != nil {
			log.Fatalf("could not add proxies: %s", err)
		}
		fmt.Println(string(body))
	}

	payload, err := json.Marshal(batchRequest{URL: *url, Count: *count})
	if err != nil {
		log.Fatalf("could not encode request: %s", err)
	}

	body, err := call(client, http.MethodPost, base+"/batches", payload)
	if err != nil {
		log.Fatalf("could not submit batch: %s", err)
	}
	fmt.Println(string(body))

	for *wait {
		time.Sleep(2 * time.Second)

		body, err := call(client, http.MethodGet, base+"/outbox", nil)
		if err != nil {
			fmt.Println("error: ", err)
			continue
		}

		var outbox struct {
			Messages []string `json:"messages"`
		}
		if err := json.Unmarshal(body, &outbox); err != nil {
			log.Fatalf("could not decode outbox: %s", err)
		}
		for _, m := range outbox.Messages {
			fmt.Println(m)
		}
		if len(outbox.Messages) > 0 {
			return
		}
	}
}

func call(client *http.Client, method, url string, payload []byte) ([]byte, error) {
	defer func(begin time.Time) {
		fmt.Println(method, url, "took > ", time.Since(begin))
	}(time.Now())

	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return body, nil
}
