// Package trivia adapts an Open Trivia DB compatible HTTP provider into
// normalized domain questions.
package trivia

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"trivia-quiz-service/internal/domain"
)

// DefaultBaseURL points at the public Open Trivia DB API.
const DefaultBaseURL = "https://opentdb.com"

// Category is one provider question category, used by start-quiz forms.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Client fetches and normalizes trivia questions. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	newID      func() string

	rndMu sync.Mutex
	rnd   *rand.Rand

	// Category list cache: the catalogue changes rarely, so responses are
	// cached with a jittered TTL and concurrent misses are deduped.
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	catMu      sync.RWMutex
	categories []Category
	expiresAt  time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRand injects a seeded shuffle source for deterministic tests.
func WithRand(rnd *rand.Rand) Option {
	return func(c *Client) { c.rnd = rnd }
}

// WithIDGenerator overrides question id generation.
func WithIDGenerator(newID func() string) Option {
	return func(c *Client) { c.newID = newID }
}

// WithCategoryTTL sets how long the category list is cached.
func WithCategoryTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		newID:      uuid.NewString,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		ttl:        time.Hour,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiQuestion struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

type apiResponse struct {
	ResponseCode int           `json:"response_code"`
	Results      []apiQuestion `json:"results"`
}

type categoryResponse struct {
	TriviaCategories []Category `json:"trivia_categories"`
}

// FetchQuestions requests questions for the given parameters and returns
// them normalized: entity-decoded text, a fresh stable id, and answer
// options shuffled with every permutation equally likely. An empty result
// set (no questions match the filters) is reported as ErrNoQuestions.
func (c *Client) FetchQuestions(ctx context.Context, p domain.QuizParams) ([]domain.Question, error) {
	p = p.Normalized()

	params := url.Values{}
	params.Set("amount", strconv.Itoa(p.Amount))
	params.Set("type", string(p.Type))
	if p.Difficulty != "" {
		params.Set("difficulty", string(p.Difficulty))
	}
	if p.Category > 0 {
		params.Set("category", strconv.Itoa(p.Category))
	}

	var decoded apiResponse
	if err := c.getJSON(ctx, "/api.php?"+params.Encode(), &decoded); err != nil {
		return nil, err
	}
	if decoded.ResponseCode != 0 || len(decoded.Results) == 0 {
		return nil, domain.ErrNoQuestions
	}

	questions := make([]domain.Question, 0, len(decoded.Results))
	for _, raw := range decoded.Results {
		questions = append(questions, c.normalize(raw))
	}
	return questions, nil
}

// Categories returns the provider's category catalogue, cached.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	now := c.clock()

	c.catMu.RLock()
	if c.categories != nil && c.expiresAt.After(now) {
		cached := c.categories
		c.catMu.RUnlock()
		return cached, nil
	}
	c.catMu.RUnlock()

	result, err, _ := c.sf.Do("categories", func() (interface{}, error) {
		now := c.clock()
		c.catMu.RLock()
		if c.categories != nil && c.expiresAt.After(now) {
			cached := c.categories
			c.catMu.RUnlock()
			return cached, nil
		}
		c.catMu.RUnlock()

		var decoded categoryResponse
		if err := c.getJSON(ctx, "/api_category.php", &decoded); err != nil {
			return nil, err
		}
		categories := make([]Category, 0, len(decoded.TriviaCategories))
		for _, cat := range decoded.TriviaCategories {
			cat.Name = html.UnescapeString(cat.Name)
			categories = append(categories, cat)
		}

		c.catMu.Lock()
		c.categories = categories
		c.expiresAt = now.Add(c.ttlWithJitter())
		c.catMu.Unlock()
		return categories, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Category), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) normalize(raw apiQuestion) domain.Question {
	correct := html.UnescapeString(raw.CorrectAnswer)
	answers := make([]string, 0, len(raw.IncorrectAnswers)+1)
	answers = append(answers, correct)
	for _, a := range raw.IncorrectAnswers {
		answers = append(answers, html.UnescapeString(a))
	}
	c.shuffle(answers)

	return domain.Question{
		ID:            c.newID(),
		Text:          html.UnescapeString(raw.Question),
		Category:      html.UnescapeString(raw.Category),
		Difficulty:    domain.ParseDifficulty(raw.Difficulty),
		CorrectAnswer: correct,
		Answers:       answers,
		Type:          domain.QuestionType(raw.Type),
	}
}

// shuffle is an in-place Fisher-Yates: swap from the last element down so
// each permutation is equally likely.
func (c *Client) shuffle(answers []string) {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	for i := len(answers) - 1; i > 0; i-- {
		j := c.rnd.Intn(i + 1)
		answers[i], answers[j] = answers[j], answers[i]
	}
}

func (c *Client) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
