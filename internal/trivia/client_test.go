package trivia

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trivia-quiz-service/internal/domain"
)

const sampleBody = `{
	"response_code": 0,
	"results": [
		{
			"category": "Science &amp; Nature",
			"type": "multiple",
			"difficulty": "hard",
			"question": "What does &quot;DNA&quot; stand for?",
			"correct_answer": "Deoxyribonucleic acid",
			"incorrect_answers": ["Ribonucleic acid", "Nucleic acid", "Amino acid"]
		},
		{
			"category": "General Knowledge",
			"type": "boolean",
			"difficulty": "easy",
			"question": "The sky is blue.",
			"correct_answer": "True",
			"incorrect_answers": ["False"]
		}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append(opts, WithRand(rand.New(rand.NewSource(1))))
	return NewClient(server.URL, opts...), server
}

func TestFetchQuestionsNormalizes(t *testing.T) {
	var gotQuery atomic.Value
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		fmt.Fprint(w, sampleBody)
	})

	questions, err := client.FetchQuestions(context.Background(), domain.QuizParams{
		Amount:     2,
		Difficulty: domain.DifficultyHard,
		Category:   17,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	q := questions[0]
	if q.Text != `What does "DNA" stand for?` {
		t.Fatalf("entities not decoded: %q", q.Text)
	}
	if q.Category != "Science & Nature" {
		t.Fatalf("category not decoded: %q", q.Category)
	}
	if q.Difficulty != domain.DifficultyHard {
		t.Fatalf("difficulty = %q", q.Difficulty)
	}
	if q.ID == "" || q.ID == questions[1].ID {
		t.Fatalf("expected distinct stable ids")
	}

	// Answer options hold the correct answer exactly once.
	count := 0
	for _, a := range q.Answers {
		if a == q.CorrectAnswer {
			count++
		}
	}
	if count != 1 || len(q.Answers) != 4 {
		t.Fatalf("bad options %v", q.Answers)
	}

	query, _ := gotQuery.Load().(string)
	for _, want := range []string{"amount=2", "type=multiple", "difficulty=hard", "category=17"} {
		if !strings.Contains(query, want) {
			t.Fatalf("query %q missing %q", query, want)
		}
	}
}

func TestFetchQuestionsEmptyResultIsLoadFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response_code": 1, "results": []}`)
	})

	_, err := client.FetchQuestions(context.Background(), domain.QuizParams{})
	if !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}

func TestFetchQuestionsServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	if _, err := client.FetchQuestions(context.Background(), domain.QuizParams{}); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestShuffleIsUnbiased(t *testing.T) {
	client := NewClient("http://unused", WithRand(rand.New(rand.NewSource(42))))

	// Count where the correct answer lands over many shuffles; with a fair
	// shuffle every position is roughly equally likely.
	positions := make([]int, 4)
	const runs = 4000
	for i := 0; i < runs; i++ {
		q := client.normalize(apiQuestion{
			Question:         "q",
			CorrectAnswer:    "correct",
			IncorrectAnswers: []string{"w1", "w2", "w3"},
		})
		for pos, a := range q.Answers {
			if a == "correct" {
				positions[pos]++
			}
		}
	}
	for pos, n := range positions {
		if n < runs/8 || n > runs/2 {
			t.Fatalf("position %d hit %d times out of %d, shuffle looks biased", pos, n, runs)
		}
	}
}

func TestCategoriesCachedWithSingleflight(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"trivia_categories": [{"id": 9, "name": "General Knowledge"}, {"id": 17, "name": "Science &amp; Nature"}]}`)
	}, WithCategoryTTL(time.Minute))

	first, err := client.Categories(context.Background())
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(first) != 2 || first[1].Name != "Science & Nature" {
		t.Fatalf("unexpected categories %+v", first)
	}

	if _, err := client.Categories(context.Background()); err != nil {
		t.Fatalf("second categories: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected cache hit, provider called %d times", got)
	}
}
