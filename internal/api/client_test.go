package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/huddle/internal/chat"
)

const idAt1700000000000 = "018bcfe5-6800-7000-8000-000000000001"

func TestFetchMessages(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[
			{"id":"` + idAt1700000000000 + `","username":"alice","content":"hi","timestamp":"1999-01-01T00:00:00Z"},
			{"id":"not-a-uuid","username":"bob","content":"yo"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "tok")
	msgs, err := c.FetchMessages(context.Background(), "general", 50, "")
	require.NoError(t, err)

	require.Equal(t, "/api/messages/general", gotPath)
	require.Equal(t, "limit=50", gotQuery)
	require.Equal(t, "Bearer tok", gotAuth)

	require.Len(t, msgs, 2)
	require.Equal(t, "2023-11-14T22:13:20.000Z", msgs[0].Timestamp)
	require.Equal(t, "", msgs[1].Timestamp)
}

func TestFetchMessages_Before(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	msgs, err := New(srv.URL, "tok").FetchMessages(context.Background(), "general", 20, "abc")
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Equal(t, "before=abc&limit=20", gotQuery)
}

func TestFetchSubscribers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/channels/secret/subscribers", r.URL.Path)
		_, _ = w.Write([]byte(`{"subscribers":[
			{"user_id":"1","username":"alice","role":"admin"},
			{"user_id":"2","username":"bob"}
		]}`))
	}))
	defer srv.Close()

	subs, err := New(srv.URL, "tok").FetchSubscribers(context.Background(), "secret")
	require.NoError(t, err)
	require.Equal(t, []chat.Subscriber{
		{UserID: "1", Username: "alice", Role: chat.RoleAdmin},
		{UserID: "2", Username: "bob", Role: chat.RoleMember},
	}, subs)
}

func TestGet_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").FetchSubscribers(context.Background(), "secret")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusForbidden, statusErr.Code)
	require.Equal(t, "nope", statusErr.Body)
}

func TestGet_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").FetchMessages(context.Background(), "general", 50, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode")
}
