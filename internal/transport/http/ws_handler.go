package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type loadPayload struct {
	Amount     int    `json:"amount"`
	Category   int    `json:"category"`
	Difficulty string `json:"difficulty"`
	Type       string `json:"questionType"`
	Duration   int    `json:"durationSec"`
}

type startPayload struct {
	Duration int `json:"durationSec"`
}

type answerPayload struct {
	Selected string `json:"selected"`
}

type answerResult struct {
	QuestionID    string `json:"questionId"`
	Selected      string `json:"selected"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer"`
}

type finishedPayload struct {
	User    domain.User          `json:"user"`
	Receipt domain.RewardReceipt `json:"receipt"`
}

// questionView is the client-facing shape of the current question. The
// correct answer stays server-side until the reveal in answerResult.
type questionView struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
	Type       string   `json:"type"`
	Answers    []string `json:"answers"`
	Eliminated []string `json:"eliminated,omitempty"`
}

type stateView struct {
	Status           string        `json:"status"`
	CurrentIndex     int           `json:"currentIndex"`
	TotalQuestions   int           `json:"totalQuestions"`
	Answered         int           `json:"answered"`
	Correct          int           `json:"correct"`
	Wrong            int           `json:"wrong"`
	RemainingSeconds int           `json:"remainingSeconds"`
	Paused           bool          `json:"paused"`
	Question         *questionView `json:"question,omitempty"`
}

func viewOf(st domain.QuizState, now time.Time) stateView {
	view := stateView{
		Status:           string(st.Status),
		CurrentIndex:     st.CurrentIndex,
		TotalQuestions:   len(st.Questions),
		Answered:         st.AnsweredCount,
		Correct:          st.CorrectCount,
		Wrong:            st.WrongCount,
		RemainingSeconds: app.RemainingSeconds(st, now),
		Paused:           !st.PausedAt.IsZero(),
	}
	if q, ok := st.CurrentQuestion(); ok {
		view.Question = &questionView{
			ID:         q.ID,
			Text:       q.Text,
			Category:   q.Category,
			Difficulty: string(q.Difficulty),
			Type:       string(q.Type),
			Answers:    q.Answers,
			Eliminated: st.Eliminated[q.ID],
		}
	}
	return view
}

// ServeWS upgrades the request and runs the quiz play protocol for one user.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	st, _, err := h.service.ResumeSession(r.Context(), userID)
	if err != nil {
		log.Printf("resume session for %s: %v", userID, err)
		st = h.service.Session(userID).State()
	}

	updates, cancel := h.service.Session(userID).Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// A dead writer must not wedge the producers: close the connection so
	// the read loop fails over, and let sends fall through.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				conn.Close()
				return
			}
		}
	}()

	trySend := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: viewOf(update, time.Now())}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	trySend(outboundMessage[any]{Type: "state", Payload: viewOf(st, time.Now())})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, userID, inbound, trySend)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, userID string, inbound inboundMessage, send func(outboundMessage[any])) {
	ctx := r.Context()

	switch inbound.Type {
	case "load":
		var payload loadPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send(errorMessage("invalid load payload"))
			return
		}
		params := domain.QuizParams{
			Amount:      payload.Amount,
			Category:    payload.Category,
			Type:        domain.QuestionType(payload.Type),
			DurationSec: payload.Duration,
		}
		// Absent difficulty means no filter; only map it when the client
		// actually picked one.
		if payload.Difficulty != "" {
			params.Difficulty = domain.ParseDifficulty(payload.Difficulty)
		}
		if _, err := h.service.LoadQuiz(ctx, userID, params); err != nil {
			send(errorMessage(err.Error()))
		}

	case "replay":
		params, ok := h.service.LastParams(ctx, userID)
		if !ok {
			send(errorMessage("no previous quiz to replay"))
			return
		}
		if _, err := h.service.LoadQuiz(ctx, userID, params); err != nil {
			send(errorMessage(err.Error()))
		}

	case "start":
		var payload startPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send(errorMessage("invalid start payload"))
				return
			}
		}
		if _, err := h.service.StartQuiz(ctx, userID, payload.Duration); err != nil {
			send(errorMessage(err.Error()))
		}

	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send(errorMessage("invalid answer payload"))
			return
		}
		q, hasQuestion := h.service.Session(userID).CurrentQuestion()
		record, ok, err := h.service.Answer(ctx, userID, payload.Selected)
		if err != nil {
			send(errorMessage(err.Error()))
			return
		}
		if !ok || !hasQuestion {
			return
		}
		send(outboundMessage[any]{Type: "answerResult", Payload: answerResult{
			QuestionID:    q.ID,
			Selected:      record.Selected,
			Correct:       record.Correct,
			CorrectAnswer: q.CorrectAnswer,
		}})

	case "continue":
		h.service.Continue(ctx, userID)

	case "next":
		h.service.Next(ctx, userID)

	case "pause":
		h.service.Pause(ctx, userID)

	case "resume":
		h.service.Resume(ctx, userID)

	case "hint":
		result, err := h.service.UseHint(ctx, userID)
		if err != nil {
			send(errorMessage(err.Error()))
			return
		}
		send(outboundMessage[any]{Type: "hintResult", Payload: result})

	case "finish":
		user, receipt, err := h.service.FinishQuiz(ctx, userID)
		if err != nil {
			send(errorMessage(err.Error()))
			return
		}
		send(outboundMessage[any]{Type: "finished", Payload: finishedPayload{User: user, Receipt: receipt}})

	case "reset":
		h.service.ResetQuiz(ctx, userID)

	case "leaderboard":
		lb, err := h.service.Leaderboard(ctx)
		if err != nil {
			send(errorMessage(err.Error()))
			return
		}
		send(outboundMessage[any]{Type: "leaderboard", Payload: lb})

	case "settings":
		if len(inbound.Payload) == 0 {
			send(outboundMessage[any]{Type: "settings", Payload: h.service.Settings(ctx, userID)})
			return
		}
		var settings domain.Settings
		if err := json.Unmarshal(inbound.Payload, &settings); err != nil {
			send(errorMessage("invalid settings payload"))
			return
		}
		saved, err := h.service.SaveSettings(ctx, userID, settings)
		if err != nil {
			send(errorMessage(err.Error()))
			return
		}
		send(outboundMessage[any]{Type: "settings", Payload: saved})

	default:
		send(errorMessage("unsupported message type"))
	}
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}
