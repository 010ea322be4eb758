// Command watch logs in and prints the caller's entry change events as they arrive.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"diary/internal/models"

	"github.com/gorilla/websocket"
)

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	username := flag.String("username", "demo_1", "Username")
	password := flag.String("password", "diary-demo-password", "Password")
	flag.Parse()

	token, err := login(*host, *username, *password)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	log.Printf("logged in as %s", *username)

	u := url.URL{Scheme: "ws", Host: *host, Path: "/api/ws"}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	c, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		log.Fatalf("Connect to %s failed: %v", u.String(), err)
	}
	defer func() { _ = c.Close() }()
	log.Printf("watching %s", u.String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("read: %v", err)
				}
				return
			}
			printEvent(data)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
	case <-interrupt:
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func printEvent(data []byte) {
	var event models.EntryEvent
	if err := json.Unmarshal(data, &event); err != nil || event.Type == "" {
		log.Printf("message: %s", data)
		return
	}
	if event.Type == "events_dropped" {
		log.Println("some events were dropped; reload your entries")
		return
	}
	log.Printf("%s entry=%d at=%s", event.Type, event.EntryID, event.At.Format(time.RFC3339))
}

func login(host, username, password string) (string, error) {
	loginURL := fmt.Sprintf("http://%s/api/login", host)
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(loginURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}
