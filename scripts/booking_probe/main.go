package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/counseling-booking-api/internal/models"
)

// booking_probe fires concurrent create requests at one slot and checks that
// the server never commits more appointments than the pool holds.

type outcome struct {
	Student  string
	Status   int
	Conflict string
	Duration time.Duration
	Error    error
}

type envelope struct {
	Data struct {
		ConflictType string `json:"conflictType"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func main() {
	var (
		base        string
		secret      string
		issuer      string
		counselorID string
		date        string
		unit        string
		kind        string
		concurrency int
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&secret, "secret", "dev_secret", "HS256 secret used to mint student tokens")
	flag.StringVar(&issuer, "issuer", "", "Token issuer")
	flag.StringVar(&counselorID, "counselor", "", "Counselor ID (empty books with no preference)")
	flag.StringVar(&date, "date", "", "Appointment date (YYYY-MM-DD)")
	flag.StringVar(&unit, "unit", "8:00 AM - 8:30 AM", "Time unit")
	flag.StringVar(&kind, "type", string(models.ConsultationGroup), "Consultation type")
	flag.IntVar(&concurrency, "n", 10, "Concurrent bookings")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if date == "" {
		log.Fatal("-date is required")
	}
	ct := models.ConsultationType(kind)
	if !ct.Valid() {
		log.Fatalf("unknown consultation type %q", kind)
	}

	client := &http.Client{Timeout: timeout}
	results := make([]outcome, concurrency)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			student := fmt.Sprintf("probe-student-%03d", i)
			token, err := mintToken(secret, issuer, student)
			if err != nil {
				results[i] = outcome{Student: student, Error: err}
				return
			}
			payload := map[string]interface{}{
				"counselorId":      counselorID,
				"noPreference":     counselorID == "",
				"date":             date,
				"timeUnit":         unit,
				"consultationType": string(ct),
				"methodType":       "Online",
				"purpose":          "Load probe",
			}
			<-start
			results[i] = book(client, base, token, student, payload)
		}(i)
	}
	close(start)
	wg.Wait()

	committed := printReport(results)
	limit := ct.Capacity()
	fmt.Printf("Committed: %d, pool capacity: %d\n", committed, limit)
	if counselorID != "" && committed > limit {
		fmt.Println("OVERBOOKED")
		os.Exit(1)
	}
}

func mintToken(secret, issuer, student string) (string, error) {
	claims := models.JWTClaims{
		UserID: student,
		Role:   models.RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   student,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func book(client *http.Client, base, token, student string, payload map[string]interface{}) outcome {
	res := outcome{Student: student}
	body, err := json.Marshal(payload)
	if err != nil {
		res.Error = err
		return res
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(base, "/")+"/appointments", bytes.NewReader(body))
	if err != nil {
		res.Error = err
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	began := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(began)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Error = fmt.Errorf("read body: %w", err)
		return res
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil {
		switch {
		case env.Data.ConflictType != "":
			res.Conflict = env.Data.ConflictType
		case env.Error != nil:
			res.Conflict = env.Error.Code
		}
	}
	return res
}

func printReport(results []outcome) int {
	sort.Slice(results, func(i, j int) bool { return results[i].Student < results[j].Student })
	fmt.Println("Booking Probe Report")
	fmt.Println("====================")
	committed := 0
	for _, res := range results {
		switch {
		case res.Error != nil:
			fmt.Printf("[ERROR] %s: %v\n", res.Student, res.Error)
		case res.Status == http.StatusCreated:
			committed++
			fmt.Printf("[BOOKED] %s (%s)\n", res.Student, res.Duration)
		default:
			fmt.Printf("[%d] %s %s (%s)\n", res.Status, res.Student, res.Conflict, res.Duration)
		}
	}
	return committed
}
