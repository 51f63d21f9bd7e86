package report

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"
)

const triviaURL = "https://uselessfacts.jsph.pl/api/v2/facts/random?language=en"

// fallbackTrivias keep the wait entertaining when the facts API is down.
var fallbackTrivias = []string{
	"The first computer bug was an actual moth stuck in a relay.",
	"Email existed before the World Wide Web.",
	"The first 1GB hard drive (1980) weighed over 500 pounds.",
}

// Trivia returns a random fact for the long-wait console output. Never fails;
// a local fallback is returned when the API is unreachable.
func Trivia(ctx context.Context) string {
	return fetchTrivia(ctx, triviaURL)
}

func fetchTrivia(ctx context.Context, url string) string {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fallback()
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fallback()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fallback()
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Text == "" {
		return fallback()
	}

	return payload.Text
}

func fallback() string {
	return fallbackTrivias[rand.Intn(len(fallbackTrivias))]
}

// TriviaLine prints a "DYK?" line to the reporter.
func (r *Reporter) TriviaLine(ctx context.Context) {
	r.Infof("DYK? %s", Trivia(ctx))
}
