package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	sessionhousenet "sessionhouse/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the session server")
	owner := flag.String("owner", "", "user id submitting the request (compulsory)")
	action := flag.String("action", "place", "action to perform: ['create', 'start', 'place', 'cancel', 'subscribe']")

	sessionID := flag.String("session", "", "session id (required for all actions except create)")
	ticker := flag.String("ticker", "AAPL", "security id")
	sideStr := flag.String("side", "buy", "order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "order type: 'market', 'limit', 'stop', 'stop_limit'")
	tifStr := flag.String("tif", "day", "time in force: 'day', 'ioc', 'fok', 'gtc'")
	priceStr := flag.String("price", "100.00", "limit price")
	qtyStr := flag.String("qty", "10", "quantity or comma-separated list (e.g. 10,20,50)")
	orderID := flag.String("orderId", "", "order id to cancel")
	startingCash := flag.String("startingCash", "100000", "starting cash for a created lesson")

	flag.Parse()

	if *owner == "" && *action != "create" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s as %q\n", *serverAddr, *owner)

	enc := json.NewEncoder(conn)
	go readFrames(conn)

	switch strings.ToLower(*action) {
	case "create":
		send(enc, sessionhousenet.Request{
			ID: uuid.NewString(),
			Op: sessionhousenet.OpCreateSession,
			Lesson: &sessionhousenet.LessonRequest{
				ScenarioID:   "cli-adhoc",
				StartingCash: mustDecimal(*startingCash),
				Roster:       []string{*owner},
				Securities: []sessionhousenet.SecurityRequest{
					{ID: *ticker, Type: "EQUITY", TickSize: mustDecimal("0.01"), StartPrice: mustDecimal(*priceStr)},
				},
			},
		})

	case "start":
		requireSession(*sessionID)
		send(enc, sessionhousenet.Request{ID: uuid.NewString(), Op: sessionhousenet.OpStart, SessionID: *sessionID})

	case "place":
		requireSession(*sessionID)
		for _, qty := range parseQuantities(*qtyStr) {
			send(enc, sessionhousenet.Request{
				ID:        uuid.NewString(),
				Op:        sessionhousenet.OpSubmitOrder,
				SessionID: *sessionID,
				UserID:    *owner,
				Order: &sessionhousenet.OrderRequest{
					SecurityID: *ticker,
					Side:       strings.ToUpper(*sideStr),
					Type:       strings.ToUpper(*typeStr),
					TIF:        strings.ToUpper(*tifStr),
					Quantity:   qty,
					LimitPrice: mustDecimal(*priceStr),
				},
			})
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		requireSession(*sessionID)
		if *orderID == "" {
			log.Fatal("Error: -orderId is required for cancellation")
		}
		send(enc, sessionhousenet.Request{
			ID: uuid.NewString(), Op: sessionhousenet.OpCancelOrder,
			SessionID: *sessionID, UserID: *owner, OrderID: *orderID,
		})

	case "subscribe":
		requireSession(*sessionID)
		send(enc, sessionhousenet.Request{
			ID: uuid.NewString(), Op: sessionhousenet.OpSubscribe,
			SessionID: *sessionID, UserID: *owner,
		})

	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("\nlistening for responses and events... (press ctrl+c to exit)")
	select {}
}

func requireSession(id string) {
	if id == "" {
		log.Fatal("Error: -session is required for this action")
	}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatalf("invalid decimal %q: %v", s, err)
	}
	return d
}

func send(enc *json.Encoder, req sessionhousenet.Request) {
	if err := enc.Encode(req); err != nil {
		log.Printf("failed to send request: %v", err)
	}
}

// parseQuantities splits a comma-separated string into a slice of uint64.
func parseQuantities(input string) []uint64 {
	parts := strings.Split(input, ",")
	var result []uint64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("warning: invalid quantity %q, skipping", p)
		}
	}
	return result
}

// readFrames prints every response and pushed event frame from the server.
// Both share the envelope shape, so we decode into a raw map first and
// branch on which fields are present.
func readFrames(conn net.Conn) {
	dec := json.NewDecoder(bufio.NewReader(conn))
	for {
		var raw map[string]json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			fmt.Printf("\nconnection lost: %v\n", err)
			os.Exit(0)
		}
		if _, ok := raw["event"]; ok {
			var frame sessionhousenet.EventFrame
			if err := remarshal(raw, &frame); err == nil && frame.Event != nil {
				fmt.Printf("\n[EVENT] %s seq=%d payload=%s\n", frame.Event.Kind, frame.Event.Seq, string(mustJSON(frame.Event.Payload)))
			}
			continue
		}
		var resp sessionhousenet.Response
		if err := remarshal(raw, &resp); err == nil {
			if !resp.OK {
				fmt.Printf("\n[ERROR] %s\n", resp.Error)
			} else {
				fmt.Printf("\n[OK] %s\n", string(mustJSON(resp)))
			}
		}
	}
}

func remarshal(raw map[string]json.RawMessage, v any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf("%v", v))
	}
	return b
}
