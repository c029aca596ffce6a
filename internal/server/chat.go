package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"aeval/internal/chat"
)

type chatSessionPath struct {
	SessionID string `path:"session_id"`
}

func chatView(id string, s *chat.Session) ChatSessionResponse {
	return ChatSessionResponse{ID: id, State: string(s.State()), Messages: s.Messages()}
}

func registerChat(api huma.API, st *state) {
	huma.Register(api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/chat",
		Summary:     "Answer one chat message",
		Description: "Stateless turn used by remote chat clients. Failures are answered with the apology message.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ChatRequest `json:"body"`
	}) (*struct {
		Body ChatReplyResponse `json:"body"`
	}, error) {
		text := strings.TrimSpace(input.Body.Message)
		if text == "" {
			return nil, handleError(chat.ErrEmptyMessage)
		}
		reply, err := st.engine.LocalResponder().Respond(ctx, text)
		if err != nil {
			st.engine.Logger.Warn("chat: stateless turn failed", "error", err)
			reply = chat.Reply{Content: chat.ApologyMessage}
		}
		return &struct {
			Body ChatReplyResponse `json:"body"`
		}{Body: ChatReplyResponse{Content: reply.Content, Recommendation: reply.Recommendation}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-chat-session",
		Method:        http.MethodPost,
		Path:          "/chat/sessions",
		Summary:       "Start a chat session",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ChatSessionResponse `json:"body"`
	}, error) {
		s := st.engine.NewChat(st.profile.Load(), nil)
		id := st.chats.Put(s)
		return &struct {
			Body ChatSessionResponse `json:"body"`
		}{Body: chatView(id, s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-chat-session",
		Method:      http.MethodGet,
		Path:        "/chat/sessions/{session_id}",
		Summary:     "Get chat session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *chatSessionPath) (*struct {
		Body ChatSessionResponse `json:"body"`
	}, error) {
		s, err := st.chats.Get(input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatSessionResponse `json:"body"`
		}{Body: chatView(input.SessionID, s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-chat-message",
		Method:      http.MethodPost,
		Path:        "/chat/sessions/{session_id}/messages",
		Summary:     "Send a chat message",
		Description: "Blocks until the system reply is appended. A second message while one is pending is rejected.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SessionID string      `path:"session_id"`
		Body      ChatRequest `json:"body"`
	}) (*struct {
		Body ChatTurnResponse `json:"body"`
	}, error) {
		s, err := st.chats.Get(input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		msg, err := s.Send(ctx, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatTurnResponse `json:"body"`
		}{Body: ChatTurnResponse{Message: msg, Session: chatView(input.SessionID, s)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-recommendation",
		Method:      http.MethodPost,
		Path:        "/chat/sessions/{session_id}/messages/{message_id}/accept",
		Summary:     "Accept the recommendation on a message",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
		MessageID string `path:"message_id"`
	}) (*struct {
		Body ChatTurnResponse `json:"body"`
	}, error) {
		s, err := st.chats.Get(input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		msg, err := s.Accept(ctx, input.MessageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatTurnResponse `json:"body"`
		}{Body: ChatTurnResponse{Message: msg, Session: chatView(input.SessionID, s)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-recommendation-metrics",
		Method:      http.MethodPut,
		Path:        "/chat/sessions/{session_id}/messages/{message_id}/metrics",
		Summary:     "Replace the metrics of a recommendation",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		SessionID string               `path:"session_id"`
		MessageID string               `path:"message_id"`
		Body      UpdateMetricsRequest `json:"body"`
	}) (*struct {
		Body ChatTurnResponse `json:"body"`
	}, error) {
		s, err := st.chats.Get(input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		msg, err := s.UpdateMetrics(input.MessageID, input.Body.MetricIDs)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatTurnResponse `json:"body"`
		}{Body: ChatTurnResponse{Message: msg, Session: chatView(input.SessionID, s)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-chat-session",
		Method:      http.MethodPost,
		Path:        "/chat/sessions/{session_id}/reset",
		Summary:     "Reset a chat session to the greeting",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *chatSessionPath) (*struct {
		Body ChatSessionResponse `json:"body"`
	}, error) {
		s, err := st.chats.Get(input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		s.Reset()
		return &struct {
			Body ChatSessionResponse `json:"body"`
		}{Body: chatView(input.SessionID, s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-chat-session",
		Method:        http.MethodDelete,
		Path:          "/chat/sessions/{session_id}",
		Summary:       "End a chat session",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *chatSessionPath) (*struct{}, error) {
		if _, err := st.chats.Get(input.SessionID); err != nil {
			return nil, handleError(err)
		}
		st.chats.Delete(input.SessionID)
		return &struct{}{}, nil
	})
}
