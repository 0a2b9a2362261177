package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ksred/settler-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minSettlements = 10
	maxSettlements = 40
	refundRatio    = 0.3 // fraction of auctions that also produce a refund event
	serverAddress  = "http://localhost:8080"
	signingSecret  = "settler-secret-key"
	pollInterval   = 500 * time.Millisecond
	pollBudget     = 60 * time.Second
)

var (
	auctionTypes   = []string{"ENGLISH", "DUTCH", "SEALED_BID", "RESERVE"}
	currencies     = []string{"USD", "EUR"}
	userTiers      = []string{"STANDARD", "PREMIUM", "VIP"}
	paymentMethods = []string{
		"PLATFORM_BALANCE", "BANK_TRANSFER", "WALLET_CREDIT",
		"SMART_CONTRACT", "ON_CHAIN_CRYPTO", "ESCROW",
	}
	refundCauses = []string{"OUTBID", "AUCTION_CANCELLED", "AUCTION_FAILED"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes min, max, mean, median, 95th and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the settlement API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient prepares the client and signs a collaborator token.
// Token issuance normally lives in the auth collaborator; the simulation
// plays that role using the shared signing secret.
func newSimulationClient() (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"rule":       {name: "Create Rule"},
			"settlement": {name: "Create Settlement"},
			"refund":     {name: "Create Refund"},
			"get":        {name: "Get Record"},
			"retry":      {name: "Retry Record"},
			"summary":    {name: "Analytics Summary"},
			"export":     {name: "Export CSV"},
		},
	}

	token, err := signToken()
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

func signToken() (string, error) {
	claims := jwt.MapClaims{
		"client_id": "simulation",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(signingSecret))
}

func (sc *simulationClient) do(method, path, statKey string, payload interface{}, out interface{}) error {
	start := time.Now()
	defer func() {
		sc.stats[statKey].addDuration(time.Since(start))
	}()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sc.authToken)

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats[statKey].failures++
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		sc.stats[statKey].failures++
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out != nil {
		var envelope struct {
			Success bool            `json:"success"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return err
		}
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

type recordView struct {
	RecordID string `json:"record_id"`
	Status   string `json:"status"`
	Steps    []struct {
		Step   string `json:"step"`
		Status string `json:"status"`
	} `json:"steps"`
}

// seedRules installs a small rule set so the run exercises every fee
// structure: a tiered VIP rule, a percentage rule with clamping, and a cheap
// refund rule.
func (sc *simulationClient) seedRules() error {
	minFee := 0.5
	maxFee := 250.0

	ruleRequests := []map[string]interface{}{
		{
			"name":     "vip-tiered",
			"pipeline": "SETTLEMENT",
			"priority": 100,
			"conditions": map[string]interface{}{
				"user_tiers": []string{"VIP"},
			},
			"action": map[string]interface{}{
				"auto_settle":   true,
				"fee_structure": "TIERED",
				"fee_tiers":     []float64{1000, 10000, 100000},
			},
		},
		{
			"name":     "standard-percentage",
			"pipeline": "SETTLEMENT",
			"priority": 10,
			"conditions": map[string]interface{}{
				"min_amount": 1.0,
			},
			"action": map[string]interface{}{
				"auto_settle":   true,
				"fee_structure": "PERCENTAGE",
				"fee_value":     2.0,
				"min_fee":       minFee,
				"max_fee":       maxFee,
			},
		},
		{
			"name":     "refund-flat",
			"pipeline": "REFUND",
			"priority": 10,
			"action": map[string]interface{}{
				"auto_settle":   true,
				"fee_structure": "FIXED",
				"fee_value":     0.25,
			},
		},
	}

	for _, req := range ruleRequests {
		if err := sc.do(http.MethodPost, "/api/v1/rules", "rule", req, nil); err != nil {
			return err
		}
	}

	log.Info().Int("rules", len(ruleRequests)).Msg("rule set seeded")
	return nil
}

func (sc *simulationClient) submitSettlement(i int) (string, error) {
	amount := 10 + rand.Float64()*5000
	event := &types.WinnerDeterminedEvent{
		AuctionID:     fmt.Sprintf("AUC_%s", uuid.New().String()),
		WinnerID:      fmt.Sprintf("USR_%03d", rand.Intn(50)),
		SellerID:      fmt.Sprintf("USR_%03d", 50+rand.Intn(50)),
		WinningAmount: amount,
		ActualPrice:   amount,
		AuctionType:   auctionTypes[rand.Intn(len(auctionTypes))],
		Currency:      currencies[rand.Intn(len(currencies))],
		PaymentMethod: paymentMethods[rand.Intn(len(paymentMethods))],
		UserTier:      userTiers[rand.Intn(len(userTiers))],
		CorrelationID: uuid.New().String(),
	}

	// Every tenth event is malformed on purpose so the run exercises the
	// validation failure path and the retry endpoint.
	if i%10 == 9 {
		event.SellerID = ""
	}

	var record recordView
	if err := sc.do(http.MethodPost, "/api/v1/settlements", "settlement", event, &record); err != nil {
		return "", err
	}
	return record.RecordID, nil
}

func (sc *simulationClient) submitRefund() (string, error) {
	event := &types.RefundRequestEvent{
		UserID:        fmt.Sprintf("USR_%03d", rand.Intn(100)),
		AuctionID:     fmt.Sprintf("AUC_%s", uuid.New().String()),
		Amount:        5 + rand.Float64()*500,
		Currency:      "USD",
		Cause:         refundCauses[rand.Intn(len(refundCauses))],
		PaymentMethod: "WALLET_CREDIT",
		CorrelationID: uuid.New().String(),
	}

	var record recordView
	if err := sc.do(http.MethodPost, "/api/v1/refunds", "refund", event, &record); err != nil {
		return "", err
	}
	return record.RecordID, nil
}

// awaitTerminal polls until every record reaches a terminal status or the
// budget runs out. Returns the records still in flight.
func (sc *simulationClient) awaitTerminal(recordIDs []string) map[string]recordView {
	terminal := map[string]bool{
		"COMPLETED": true, "FAILED": true, "CANCELLED": true, "ESCALATED": true,
	}
	final := make(map[string]recordView)
	deadline := time.Now().Add(pollBudget)

	for time.Now().Before(deadline) && len(final) < len(recordIDs) {
		for _, id := range recordIDs {
			if _, done := final[id]; done {
				continue
			}
			var record recordView
			if err := sc.do(http.MethodGet, "/api/v1/settlements/"+id, "get", nil, &record); err != nil {
				log.Warn().Err(err).Str("record_id", id).Msg("poll failed")
				continue
			}
			if terminal[record.Status] {
				final[id] = record
			}
		}
		time.Sleep(pollInterval)
	}

	return final
}

func (sc *simulationClient) printStats() {
	log.Info().Msg("=== Route performance ===")
	for _, rs := range sc.stats {
		if rs.totalCalls == 0 {
			continue
		}
		min, max, mean, median, p95, p99 := rs.calculate()
		log.Info().
			Str("route", rs.name).
			Int("calls", rs.totalCalls).
			Int("failures", rs.failures).
			Dur("min", min).
			Dur("max", max).
			Dur("mean", mean).
			Dur("median", median).
			Dur("p95", p95).
			Dur("p99", p99).
			Msg("route stats")
	}
}

func main() {
	sc, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize simulation client")
	}

	if err := sc.seedRules(); err != nil {
		log.Fatal().Err(err).Msg("failed to seed rules")
	}

	numSettlements := minSettlements + rand.Intn(maxSettlements-minSettlements+1)
	log.Info().Int("settlements", numSettlements).Msg("starting simulation run")

	var recordIDs []string
	for i := 0; i < numSettlements; i++ {
		id, err := sc.submitSettlement(i)
		if err != nil {
			log.Warn().Err(err).Msg("settlement submission failed")
			continue
		}
		recordIDs = append(recordIDs, id)

		if rand.Float64() < refundRatio {
			refundID, err := sc.submitRefund()
			if err != nil {
				log.Warn().Err(err).Msg("refund submission failed")
				continue
			}
			recordIDs = append(recordIDs, refundID)
		}
	}

	final := sc.awaitTerminal(recordIDs)

	completed, failed := 0, 0
	var firstFailed string
	for _, record := range final {
		switch record.Status {
		case "COMPLETED":
			completed++
		case "FAILED":
			failed++
			if firstFailed == "" {
				firstFailed = record.RecordID
			}
		}
	}
	log.Info().
		Int("terminal", len(final)).
		Int("completed", completed).
		Int("failed", failed).
		Int("in_flight", len(recordIDs)-len(final)).
		Msg("pipeline run finished")

	// Exercise the operator retry path on one failed record
	if firstFailed != "" {
		var result struct {
			Accepted bool `json:"accepted"`
		}
		if err := sc.do(http.MethodPost, "/api/v1/settlements/"+firstFailed+"/retry", "retry", nil, &result); err != nil {
			log.Warn().Err(err).Msg("retry request failed")
		} else {
			log.Info().
				Str("record_id", firstFailed).
				Bool("accepted", result.Accepted).
				Msg("retry requested")
		}
	}

	var summary json.RawMessage
	if err := sc.do(http.MethodGet, "/api/v1/analytics/summary", "summary", nil, &summary); err != nil {
		log.Warn().Err(err).Msg("failed to fetch analytics summary")
	} else {
		log.Info().RawJSON("summary", summary).Msg("analytics summary")
	}

	if err := sc.do(http.MethodGet, "/api/v1/export?format=csv", "export", nil, nil); err != nil {
		log.Warn().Err(err).Msg("failed to fetch CSV export")
	}

	sc.printStats()
}
